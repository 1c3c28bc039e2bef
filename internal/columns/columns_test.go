package columns

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matflow/matflow-cli/internal/config"
	"github.com/matflow/matflow-cli/internal/models"
)

func rows(t *testing.T, s string) models.Rows {
	t.Helper()
	rs, err := models.DecodeRows([]byte(s))
	require.NoError(t, err)
	return rs
}

func TestInfer_Basic(t *testing.T) {
	data := rows(t, `[{"a":"x","b":1},{"a":"y","b":2}]`)

	for _, opts := range []Options{
		{FirstRowOnly, Strict},
		{FirstRowOnly, Coercing},
		{ScanAll, Strict},
		{ScanAll, Coercing},
	} {
		got := Infer(data, opts)
		assert.Equal(t, []string{"a"}, got.Categorical, "%v/%v", opts.Strategy, opts.Rule)
		assert.Equal(t, []string{"b"}, got.Numeric, "%v/%v", opts.Strategy, opts.Rule)
	}
}

func TestInfer_NullFirstCell(t *testing.T) {
	data := rows(t, `[{"a":null},{"a":"text"}]`)

	strict := Infer(data, Options{FirstRowOnly, Strict})
	assert.Equal(t, []string{"a"}, strict.Categorical)
	assert.Empty(t, strict.Numeric)

	coercing := Infer(data, Options{FirstRowOnly, Coercing})
	assert.Empty(t, coercing.Categorical)
	assert.Equal(t, []string{"a"}, coercing.Numeric)
}

func TestInfer_CellRules(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		strict   bool
		coercing bool
	}{
		{"integer", 3, true, true},
		{"float", 2.5, true, true},
		{"null", nil, false, true},
		{"true", true, false, true},
		{"false", false, false, true},
		{"empty string", "", false, false},
		{"numeric string", "42", false, false},
		{"text", "abc", false, false},
		{"NaN", math.NaN(), false, false},
		{"Inf", math.Inf(1), false, false},
		{"object", map[string]any{}, false, false},
		{"array", []any{1}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.strict, IsNumeric(tt.value, Strict), "strict")
			assert.Equal(t, tt.coercing, IsNumeric(tt.value, Coercing), "coercing")
		})
	}
}

func TestInfer_NonFiniteFromServer(t *testing.T) {
	// NaN arrives as a bare token and is decoded as null.
	data := rows(t, `[{"a": NaN, "b": 1.5}]`)

	got := Infer(data, Options{FirstRowOnly, Strict})
	assert.Equal(t, []string{"a"}, got.Categorical)
	assert.Equal(t, []string{"b"}, got.Numeric)
}

func TestInfer_ScanAllDeduplicates(t *testing.T) {
	data := rows(t, `[
		{"id": 1, "name": "a", "score": null},
		{"id": 2, "name": "b", "score": 3.5},
		{"id": 3, "name": 7, "score": 4}
	]`)

	first := Infer(data, Options{FirstRowOnly, Strict})
	assert.Equal(t, []string{"name", "score"}, first.Categorical)
	assert.Equal(t, []string{"id"}, first.Numeric)

	all := Infer(data, Options{ScanAll, Strict})
	assert.Equal(t, []string{"name", "score"}, all.Categorical)
	assert.Equal(t, []string{"id", "score", "name"}, all.Numeric)
	assert.True(t, all.IsNumeric("score") && all.IsCategorical("score"))
}

func TestInfer_ScanAllSeesLaterColumns(t *testing.T) {
	data := rows(t, `[{"a": 1}, {"a": 2, "b": "x"}]`)

	assert.Equal(t, Summary{Categorical: []string{}, Numeric: []string{"a"}},
		Infer(data, Options{FirstRowOnly, Strict}))
	assert.Equal(t, Summary{Categorical: []string{"b"}, Numeric: []string{"a"}},
		Infer(data, Options{ScanAll, Strict}))
}

func TestInfer_KeepsColumnOrder(t *testing.T) {
	data := rows(t, `[{"z": 1, "y": "a", "x": 2, "w": "b"}]`)
	got := Infer(data, Options{})
	assert.Equal(t, []string{"y", "w"}, got.Categorical)
	assert.Equal(t, []string{"z", "x"}, got.Numeric)
}

func TestInfer_Empty(t *testing.T) {
	got := Infer(nil, Options{})
	assert.NotNil(t, got.Categorical)
	assert.NotNil(t, got.Numeric)
	assert.False(t, got.Has("a"))
}

func TestParse(t *testing.T) {
	opts, err := OptionsFromConfig(config.ColumnsConfig{Strategy: "scan_all", NumericRule: "coercing"})
	require.NoError(t, err)
	assert.Equal(t, Options{ScanAll, Coercing}, opts)
	assert.Equal(t, "scan_all", opts.Strategy.String())
	assert.Equal(t, "coercing", opts.Rule.String())

	opts, err = OptionsFromConfig(config.ColumnsConfig{})
	require.NoError(t, err)
	assert.Equal(t, Options{FirstRowOnly, Strict}, opts)

	_, err = ParseStrategy("sample")
	assert.ErrorIs(t, err, config.ErrInvalidStrategy)
	_, err = ParseNumericRule("loose")
	assert.ErrorIs(t, err, config.ErrInvalidNumericRule)
}
