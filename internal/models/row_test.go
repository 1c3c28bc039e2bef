package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRows_DecodePreservesColumnOrder(t *testing.T) {
	rows, err := DecodeRows([]byte(`[{"zeta": 1, "alpha": "x", "mid": null}, {"alpha": "y", "zeta": 2.5, "extra": true}]`))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, rows[0].Columns())
	v, ok := rows[0].Get("zeta")
	require.True(t, ok)
	assert.Equal(t, json.Number("1"), v)
	v, _ = rows[0].Get("mid")
	assert.Nil(t, v)

	assert.Equal(t, []string{"zeta", "alpha", "mid", "extra"}, rows.Columns())
}

func TestRows_SingleObjectAndNull(t *testing.T) {
	rows, err := DecodeRows([]byte(`{"a": 1}`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"a"}, rows[0].Columns())

	rows, err = DecodeRows([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = DecodeRows([]byte(`"oops"`))
	assert.ErrorIs(t, err, ErrUnexpectedShape)

	_, err = DecodeRows([]byte(`[1, 2]`))
	assert.ErrorIs(t, err, ErrUnexpectedShape)
}

func TestRows_NonFiniteTokens(t *testing.T) {
	rows, err := DecodeRows([]byte(`[{"a": NaN, "b": "NaN", "c": -Infinity, "d": Infinity, "e": "say \"NaN\""}]`))
	require.NoError(t, err)
	a, _ := rows[0].Get("a")
	assert.Nil(t, a)
	b, _ := rows[0].Get("b")
	assert.Equal(t, "NaN", b)
	c, _ := rows[0].Get("c")
	assert.Nil(t, c)
	d, _ := rows[0].Get("d")
	assert.Nil(t, d)
	e, _ := rows[0].Get("e")
	assert.Equal(t, `say "NaN"`, e)
}

func TestRow_MarshalKeepsOrder(t *testing.T) {
	r := NewRow("b", 1, "a", "x")
	out, err := json.Marshal(Rows{r})
	require.NoError(t, err)
	assert.Equal(t, `[{"b":1,"a":"x"}]`, string(out))
}

func TestPlotResult_Normalisation(t *testing.T) {
	var p PlotResult
	require.NoError(t, json.Unmarshal([]byte(`{"plotly": [{"data": []}, {"data": [1]}]}`), &p))
	assert.Len(t, p.Figures, 2)

	require.NoError(t, json.Unmarshal([]byte(`{"plotly": {"data": [], "layout": {"title": {"text": "Counts"}}}}`), &p))
	require.Len(t, p.Figures, 1)
	assert.Equal(t, "Counts", FigureTitle(p.Figures[0]))

	require.NoError(t, json.Unmarshal([]byte(`{"png": ["aGVsbG8="], "svg": [], "plotly": null}`), &p))
	assert.Empty(t, p.Figures)
	assert.Equal(t, []string{"aGVsbG8="}, p.PNG)
	assert.False(t, p.Empty())

	require.NoError(t, json.Unmarshal([]byte(`{}`), &p))
	assert.True(t, p.Empty())

	assert.ErrorIs(t, json.Unmarshal([]byte(`{"plotly": "nope"}`), &p), ErrUnexpectedShape)
	assert.ErrorIs(t, json.Unmarshal([]byte(`[1]`), &p), ErrUnexpectedShape)
}

func TestPlotResult_MarshalAlwaysList(t *testing.T) {
	out, err := json.Marshal(PlotResult{Figures: []json.RawMessage{json.RawMessage(`{"a":1}`)}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"plotly":[{"a":1}]}`, string(out))
}

func TestFigureTitle_PlainString(t *testing.T) {
	assert.Equal(t, "Hello", FigureTitle(json.RawMessage(`{"layout": {"title": "Hello"}}`)))
	assert.Equal(t, "", FigureTitle(json.RawMessage(`{"data": []}`)))
}
