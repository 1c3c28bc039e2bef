package panels

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matflow/matflow-cli/internal/models"
)

func analysisBody(t *testing.T, a Analysis, rows models.Rows) map[string]any {
	t.Helper()
	data, err := json.Marshal(a.Body(rows, irisCols))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestParseBound(t *testing.T) {
	f, b, err := ParseBound(" temp = -1.5 : 40 ")
	require.NoError(t, err)
	assert.Equal(t, "temp", f)
	assert.Equal(t, Bound{Lower: -1.5, Upper: 40}, b)

	for _, bad := range []string{"temp", "temp=1", "temp=a:2", "temp=1:b"} {
		_, _, err := ParseBound(bad)
		assert.True(t, IsValidationError(err), bad)
	}
}

func TestAnalysisValidation(t *testing.T) {
	features := []string{"sepal_length", "sepal_width"}
	pso := DefaultPSOConfig()
	pso.Omega = 1.5

	tests := []struct {
		name     string
		analysis Analysis
		field    string // "" means valid
	}{
		{"optimize ok", &Optimize{Features: features, Target: "petal_length", TargetValue: 2}, ""},
		{"optimize no features", &Optimize{Target: "petal_length"}, "features"},
		{"optimize categorical feature", &Optimize{Features: []string{"species"}, Target: "petal_length"}, "features"},
		{"optimize categorical target", &Optimize{Features: features, Target: "species"}, "target"},
		{"optimize target is a feature", &Optimize{Features: features, Target: "sepal_width"}, "target"},
		{"optimize infinite target", &Optimize{Features: features, Target: "petal_length", TargetValue: math.Inf(1)}, "target_value"},
		{"optimize bound on other column", &Optimize{Features: features, Target: "petal_length", Bounds: map[string]Bound{"petal_length": {0, 1}}}, "bound"},
		{"optimize empty bound", &Optimize{Features: features, Target: "petal_length", Bounds: map[string]Bound{"sepal_length": {2, 2}}}, "bound"},
		{"optimize bad omega", &Optimize{Features: features, Target: "petal_length", PSO: pso}, "omega"},
		{"selection regression", &FeatureSelection{Target: "petal_length"}, ""},
		{"selection classification", &FeatureSelection{Target: "species", Estimator: "RandomForestClassifier", KFold: 5}, ""},
		{"selection missing target", &FeatureSelection{}, "target_var"},
		{"selection regression on categories", &FeatureSelection{Target: "species", ProblemType: Regression}, "problem_type"},
		{"selection unknown problem", &FeatureSelection{Target: "species", ProblemType: "clustering"}, "problem_type"},
		{"selection wrong estimator", &FeatureSelection{Target: "petal_length", Estimator: "XGBClassifier"}, "estimator_name"},
		{"selection one fold", &FeatureSelection{Target: "petal_length", KFold: 1}, "kfold"},
		{"selection custom without columns", &FeatureSelection{Target: "petal_length", Display: DisplayCustom}, "features_to_display"},
		{"selection columns with all", &FeatureSelection{Target: "petal_length", Display: DisplayAll, Features: features}, "features_to_display"},
		{"selection bad display", &FeatureSelection{Target: "petal_length", Display: "Some"}, "display_opt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.analysis.Validate(irisCols)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var v *ValidationError
			require.ErrorAs(t, err, &v)
			assert.Equal(t, tt.field, v.Field)
		})
	}
}

func TestOptimizeBody(t *testing.T) {
	rows := models.Rows{
		models.NewRow("sepal_length", json.Number("5.1"), "sepal_width", 3.5, "petal_length", 1.4),
		models.NewRow("sepal_length", json.Number("4.3"), "sepal_width", "3.0", "petal_length", 1.3),
		models.NewRow("sepal_length", nil, "sepal_width", "n/a", "petal_length", 1.2),
	}
	o := &Optimize{
		Features:    []string{"sepal_length", "sepal_width"},
		Target:      "petal_length",
		TargetValue: 1.5,
		Bounds:      map[string]Bound{"sepal_width": {Lower: 0, Upper: 10}},
	}
	body := analysisBody(t, o, rows)

	assert.Equal(t, "petal_length", body["target"])
	assert.Equal(t, 1.5, body["target_value"])
	assert.Equal(t, []any{"sepal_length", "sepal_width"}, body["features"])
	assert.Len(t, body["data"], 3)

	pso := body["pso_config"].(map[string]any)
	assert.Equal(t, []any{4.3, 0.0}, pso["lb"])
	assert.Equal(t, []any{5.1, 10.0}, pso["ub"])
	assert.Equal(t, 50.0, pso["swarmsize"])
	assert.Equal(t, 10.0, pso["n_solutions"])
	assert.Equal(t, false, pso["debug_flag"])

	empty := &Optimize{Features: []string{"sepal_length"}, Target: "petal_length"}
	pso = analysisBody(t, empty, nil)["pso_config"].(map[string]any)
	assert.Equal(t, []any{0.0}, pso["lb"], "no values means the unit range")
	assert.Equal(t, []any{1.0}, pso["ub"])
}

func TestFeatureSelectionBody(t *testing.T) {
	body := analysisBody(t, &FeatureSelection{Target: "species"}, irisRows)
	assert.Equal(t, "species", body["target_var"])
	assert.Equal(t, Classification, body["problem_type"])
	assert.Equal(t, "ExtraTreesClassifier", body["estimator_name"])
	assert.Equal(t, 2.0, body["kfold"])
	assert.Equal(t, DisplayAll, body["display_opt"])
	assert.NotContains(t, body, "features_to_display")

	body = analysisBody(t, &FeatureSelection{Target: "petal_length", Features: []string{"sepal_length"}}, irisRows)
	assert.Equal(t, Regression, body["problem_type"])
	assert.Equal(t, DisplayCustom, body["display_opt"])
	assert.Equal(t, []any{"sepal_length"}, body["features_to_display"])
}

type fakeAnalyzer struct {
	calls int
	body  any
	err   error
}

func (f *fakeAnalyzer) Optimize(ctx context.Context, body interface{}) (*models.OptimizationResult, error) {
	f.calls++
	f.body = body
	if f.err != nil {
		return nil, f.err
	}
	return &models.OptimizationResult{
		BestModel:    "Lasso",
		BestSolution: models.Rows{models.NewRow("sepal_length", 5.0, "sepal_width", 3.0)},
	}, nil
}

func (f *fakeAnalyzer) SelectFeatures(ctx context.Context, body interface{}) (*models.FeatureSelectionResult, error) {
	f.calls++
	f.body = body
	if f.err != nil {
		return nil, f.err
	}
	return &models.FeatureSelectionResult{
		SelectedFeatures: []string{"sepal_length"},
		Figure:           json.RawMessage(`{"data": []}`),
		Dataset:          models.Rows{models.NewRow("sepal_length", 5.1, "species", "setosa")},
	}, nil
}

func TestRunAnalysis(t *testing.T) {
	client := &fakeAnalyzer{}
	creator := &fakeCreator{}
	r := NewRunner("optimize", nil, nil)
	opt := &Optimize{Features: []string{"sepal_length", "sepal_width"}, Target: "petal_length", TargetValue: 1}

	res := r.RunAnalysis(context.Background(), client, opt, irisRows, irisCols, SaveAs{Name: "best", Folder: "raw"}, creator)
	require.NoError(t, res.Err)
	require.NotNil(t, res.Optimization)
	assert.Equal(t, "Lasso", res.Optimization.BestModel)
	assert.Equal(t, "raw/best.csv", res.SavedPath)
	assert.Equal(t, "best", creator.name)
	assert.Equal(t, res.Optimization.BestSolution, res.Rows)

	sel := NewRunner("feature_selection", nil, nil)
	res = sel.RunAnalysis(context.Background(), client, &FeatureSelection{Target: "species"}, irisRows, irisCols, SaveAs{}, creator)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"sepal_length"}, res.Selection.SelectedFeatures)
	assert.Len(t, res.Rows, 1)
	assert.Equal(t, "", res.SavedPath)
	assert.Equal(t, 2, client.calls)
}

func TestRunAnalysis_RejectsBeforeSubmitting(t *testing.T) {
	client := &fakeAnalyzer{}
	r := NewRunner("optimize", nil, nil)

	res := r.RunAnalysis(context.Background(), client, &Optimize{Target: "petal_length"}, irisRows, irisCols, SaveAs{}, nil)
	assert.True(t, IsValidationError(res.Err))

	opt := &Optimize{Features: []string{"sepal_length"}, Target: "petal_length"}
	res = r.RunAnalysis(context.Background(), client, opt, irisRows, irisCols, SaveAs{Name: "x"}, nil)
	assert.True(t, IsValidationError(res.Err), "saving needs a creator")
	assert.Equal(t, 0, client.calls)
	assert.Equal(t, uint64(0), r.Generation())

	client.err = errors.New("no models")
	res = r.RunAnalysis(context.Background(), client, opt, irisRows, irisCols, SaveAs{}, nil)
	assert.EqualError(t, res.Err, "no models")
	assert.Nil(t, res.Optimization)
}
