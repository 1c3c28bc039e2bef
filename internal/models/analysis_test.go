package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimizationResult_PivotsComparison(t *testing.T) {
	var r OptimizationResult
	require.NoError(t, json.Unmarshal([]byte(`{
		"best_model": "Lasso",
		"best_runtime": 2.5,
		"best_fopt": 0.001,
		"best_solution": [{"temp": 41.2, "pressure": 3.1}],
		"comparison_table": {
			"temp": {"Lasso": 41.2, "Random Forest": 40},
			"Runtime": {"Lasso": 2.5, "Random Forest": 9.1}
		},
		"graphs": {"png": "aGk="}
	}`), &r))

	assert.Equal(t, "Lasso", r.BestModel)
	assert.Equal(t, 2.5, r.BestRuntime)
	require.Len(t, r.BestSolution, 1)
	assert.Equal(t, []string{"temp", "pressure"}, r.BestSolution[0].Columns())

	require.Len(t, r.Comparison, 2)
	assert.Equal(t, []string{ModelNameColumn, "temp", "Runtime"}, r.Comparison.Columns())
	name, _ := r.Comparison[1].Get(ModelNameColumn)
	assert.Equal(t, "Random Forest", name)
	runtime, _ := r.Comparison[1].Get("Runtime")
	assert.Equal(t, json.Number("9.1"), runtime)
	assert.Equal(t, map[string]string{"png": "aGk="}, r.Graphs)
}

func TestOptimizationResult_Shapes(t *testing.T) {
	var r OptimizationResult
	require.NoError(t, json.Unmarshal([]byte(`{"best_model": "x", "comparison_table": null}`), &r))
	assert.Empty(t, r.Comparison)

	assert.ErrorIs(t, json.Unmarshal([]byte(`[1]`), &r), ErrUnexpectedShape)
	assert.Error(t, json.Unmarshal([]byte(`{"comparison_table": {"temp": 3}}`), &r))
}

func TestFeatureSelectionResult_UnwrapsFigure(t *testing.T) {
	var r FeatureSelectionResult
	require.NoError(t, json.Unmarshal([]byte(`{
		"selected_features": ["b", "a"],
		"dropped_features": ["c"],
		"selected_feature_scores": [{"feature": "b", "score": 0.9}],
		"dropped_feature_scores": [],
		"plot_data": "{\"data\": [{\"type\": \"bar\"}]}",
		"modified_dataset_csv": [{"b": 1, "a": 2, "y": 3}]
	}`), &r))

	assert.Equal(t, []string{"b", "a"}, r.SelectedFeatures)
	assert.Equal(t, []string{"c"}, r.DroppedFeatures)
	assert.JSONEq(t, `{"data": [{"type": "bar"}]}`, string(r.Figure))
	require.Len(t, r.Dataset, 1)
	assert.Equal(t, []string{"b", "a", "y"}, r.Dataset[0].Columns())

	require.NoError(t, json.Unmarshal([]byte(`{"plot_data": {"data": []}}`), &r))
	assert.JSONEq(t, `{"data": []}`, string(r.Figure))

	require.NoError(t, json.Unmarshal([]byte(`{"plot_data": null}`), &r))
	assert.Empty(t, r.Figure)

	assert.ErrorIs(t, json.Unmarshal([]byte(`{"plot_data": "not json"}`), &r), ErrUnexpectedShape)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"plot_data": 3}`), &r), ErrUnexpectedShape)
}
