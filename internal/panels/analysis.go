package panels

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/matflow/matflow-cli/internal/columns"
	"github.com/matflow/matflow-cli/internal/models"
)

// Analysis is a model-driven request whose result is a report rather than
// a plain dataset.
type Analysis interface {
	Name() string
	Validate(cols columns.Summary) error
	Body(rows models.Rows, cols columns.Summary) any
	Submit(ctx context.Context, client Analyzer, body any) (Output, error)
}

// Bound limits the search range of one feature.
type Bound struct {
	Lower float64
	Upper float64
}

// ParseBound parses "feature=lower:upper".
func ParseBound(s string) (string, Bound, error) {
	feature, rng, ok := strings.Cut(s, "=")
	lo, hi, ok2 := strings.Cut(rng, ":")
	if !ok || !ok2 {
		return "", Bound{}, invalid("bound", "expected feature=lower:upper, got %q", s)
	}
	lower, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return "", Bound{}, invalid("bound", "invalid lower bound %q", lo)
	}
	upper, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return "", Bound{}, invalid("bound", "invalid upper bound %q", hi)
	}
	return strings.TrimSpace(feature), Bound{Lower: lower, Upper: upper}, nil
}

// PSOConfig tunes the particle swarm the optimizer runs per model.
type PSOConfig struct {
	SwarmSize  int
	MaxIter    int
	Omega      float64
	PhiP       float64
	PhiG       float64
	Solutions  int
	Processors int
	MaxRounds  int
}

// DefaultPSOConfig returns the swarm settings the optimizer form starts with.
func DefaultPSOConfig() PSOConfig {
	return PSOConfig{
		SwarmSize:  50,
		MaxIter:    100,
		Omega:      0.5,
		PhiP:       0.5,
		PhiG:       0.5,
		Solutions:  10,
		Processors: 4,
		MaxRounds:  5,
	}
}

func (c PSOConfig) validate() error {
	ints := []struct {
		field    string
		v        int
		min, max int
	}{
		{"swarmsize", c.SwarmSize, 10, 100},
		{"maxiter", c.MaxIter, 10, 1000},
		{"n_solutions", c.Solutions, 1, 50},
		{"nprocessors", c.Processors, 1, 10},
		{"max_rounds", c.MaxRounds, 1, 20},
	}
	for _, f := range ints {
		if f.v < f.min || f.v > f.max {
			return invalid(f.field, "must be between %d and %d", f.min, f.max)
		}
	}
	floats := []struct {
		field    string
		v        float64
		min, max float64
	}{
		{"omega", c.Omega, 0, 1},
		{"phip", c.PhiP, 0, 2},
		{"phig", c.PhiG, 0, 2},
	}
	for _, f := range floats {
		if math.IsNaN(f.v) || f.v < f.min || f.v > f.max {
			return invalid(f.field, "must be between %g and %g", f.min, f.max)
		}
	}
	return nil
}

// Optimize searches for feature values whose predicted target is closest
// to TargetValue, once per regression model on the server.
type Optimize struct {
	Features    []string
	Target      string
	TargetValue float64
	// Bounds overrides the search range of some features. Others range
	// over the values observed in the dataset.
	Bounds map[string]Bound
	// PSO defaults to DefaultPSOConfig when zero.
	PSO PSOConfig
}

func (o *Optimize) Name() string { return "optimize" }

func (o *Optimize) swarm() PSOConfig {
	if o.PSO == (PSOConfig{}) {
		return DefaultPSOConfig()
	}
	return o.PSO
}

func (o *Optimize) Validate(cols columns.Summary) error {
	if err := requireList("features", o.Features, cols); err != nil {
		return err
	}
	for _, f := range o.Features {
		if !cols.IsNumeric(f) {
			return invalid("features", "%q is not numeric", f)
		}
	}
	if err := requireColumn("target", o.Target, cols); err != nil {
		return err
	}
	if !cols.IsNumeric(o.Target) {
		return invalid("target", "%q is not numeric", o.Target)
	}
	if containsString(o.Features, o.Target) {
		return invalid("target", "%q is also a feature", o.Target)
	}
	if math.IsNaN(o.TargetValue) || math.IsInf(o.TargetValue, 0) {
		return invalid("target_value", "must be a finite number")
	}
	for f, b := range o.Bounds {
		if !containsString(o.Features, f) {
			return invalid("bound", "%q is not a selected feature", f)
		}
		if !(b.Lower < b.Upper) {
			return invalid("bound", "lower bound of %q must be below its upper bound", f)
		}
	}
	return o.swarm().validate()
}

// bounds returns the search range of every feature in order.
func (o *Optimize) bounds(rows models.Rows) (lb, ub []float64) {
	for _, f := range o.Features {
		b, ok := o.Bounds[f]
		if !ok {
			b = observedRange(rows, f)
		}
		lb = append(lb, b.Lower)
		ub = append(ub, b.Upper)
	}
	return lb, ub
}

// observedRange is the min and max of col, or [0, 1] when col holds no
// numbers.
func observedRange(rows models.Rows, col string) Bound {
	b := Bound{Lower: math.Inf(1), Upper: math.Inf(-1)}
	for _, row := range rows {
		v, _ := row.Get(col)
		f, ok := toFloat(v)
		if !ok {
			continue
		}
		b.Lower = math.Min(b.Lower, f)
		b.Upper = math.Max(b.Upper, f)
	}
	if math.IsInf(b.Lower, 1) {
		return Bound{Lower: 0, Upper: 1}
	}
	return b
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
	case float64:
		f = n
	case int:
		f = float64(n)
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(n), 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

type psoBody struct {
	LB          []float64 `json:"lb"`
	UB          []float64 `json:"ub"`
	SwarmSize   int       `json:"swarmsize"`
	Omega       float64   `json:"omega"`
	PhiP        float64   `json:"phip"`
	PhiG        float64   `json:"phig"`
	MaxIter     int       `json:"maxiter"`
	NSolutions  int       `json:"n_solutions"`
	NProcessors int       `json:"nprocessors"`
	MaxRounds   int       `json:"max_rounds"`
	Debug       bool      `json:"debug_flag"`
}

func (o *Optimize) Body(rows models.Rows, cols columns.Summary) any {
	c := o.swarm()
	lb, ub := o.bounds(rows)
	return struct {
		Data        models.Rows `json:"data"`
		Features    []string    `json:"features"`
		Target      string      `json:"target"`
		TargetValue float64     `json:"target_value"`
		PSO         psoBody     `json:"pso_config"`
	}{
		Data:        fileRows(rows),
		Features:    o.Features,
		Target:      o.Target,
		TargetValue: o.TargetValue,
		PSO: psoBody{
			LB: lb, UB: ub,
			SwarmSize: c.SwarmSize, Omega: c.Omega, PhiP: c.PhiP, PhiG: c.PhiG,
			MaxIter: c.MaxIter, NSolutions: c.Solutions, NProcessors: c.Processors,
			MaxRounds: c.MaxRounds,
		},
	}
}

func (o *Optimize) Submit(ctx context.Context, client Analyzer, body any) (Output, error) {
	result, err := client.Optimize(ctx, body)
	if err != nil {
		return Output{}, err
	}
	return Output{Optimization: result, Rows: result.BestSolution}, nil
}

// Problem types and display modes of feature selection.
const (
	Regression     = "regression"
	Classification = "classification"

	DisplayAll    = "All"
	DisplayCustom = "Custom"
	DisplayNone   = "None"
)

// Estimators the feature selection server accepts per problem type.
var (
	RegressionEstimators     = []string{"ExtraTreesRegressor", "RandomForestRegressor", "GradientBoostingRegressor", "XGBRegressor"}
	ClassificationEstimators = []string{"ExtraTreesClassifier", "RandomForestClassifier", "GradientBoostingClassifier", "XGBClassifier"}
)

// FeatureSelection adds features one at a time while the cross-validated
// score of Estimator keeps improving.
type FeatureSelection struct {
	Target string
	// ProblemType is inferred from the target column when empty: numeric
	// targets are regression problems.
	ProblemType string
	// Estimator defaults to the first estimator of the problem type.
	Estimator string
	// KFold defaults to 2.
	KFold int
	// Display defaults to DisplayCustom when Features is set, else DisplayAll.
	Display  string
	Features []string
}

func (f *FeatureSelection) Name() string { return "feature_selection" }

func (f *FeatureSelection) problemType(cols columns.Summary) string {
	if f.ProblemType != "" {
		return f.ProblemType
	}
	if cols.IsNumeric(f.Target) {
		return Regression
	}
	return Classification
}

func estimatorsFor(problemType string) []string {
	if problemType == Regression {
		return RegressionEstimators
	}
	return ClassificationEstimators
}

func (f *FeatureSelection) estimator(cols columns.Summary) string {
	if f.Estimator != "" {
		return f.Estimator
	}
	return estimatorsFor(f.problemType(cols))[0]
}

func (f *FeatureSelection) kfold() int {
	if f.KFold == 0 {
		return 2
	}
	return f.KFold
}

func (f *FeatureSelection) display() string {
	switch {
	case f.Display != "":
		return f.Display
	case len(f.Features) > 0:
		return DisplayCustom
	default:
		return DisplayAll
	}
}

func (f *FeatureSelection) Validate(cols columns.Summary) error {
	if err := requireColumn("target_var", f.Target, cols); err != nil {
		return err
	}
	problem := f.problemType(cols)
	switch problem {
	case Regression:
		if !cols.IsNumeric(f.Target) {
			return invalid("problem_type", "regression needs a numeric target, %q is not", f.Target)
		}
	case Classification:
	default:
		return invalid("problem_type", "must be %s or %s", Regression, Classification)
	}
	if !containsString(estimatorsFor(problem), f.estimator(cols)) {
		return invalid("estimator_name", "must be one of %s", strings.Join(estimatorsFor(problem), ", "))
	}
	if f.kfold() < 2 {
		return invalid("kfold", "must be at least 2")
	}
	switch f.display() {
	case DisplayAll, DisplayNone:
		if len(f.Features) > 0 {
			return invalid("features_to_display", "only used with %s display", DisplayCustom)
		}
	case DisplayCustom:
		if err := requireList("features_to_display", f.Features, cols); err != nil {
			return err
		}
	default:
		return invalid("display_opt", "must be %s, %s or %s", DisplayAll, DisplayCustom, DisplayNone)
	}
	return nil
}

func (f *FeatureSelection) Body(rows models.Rows, cols columns.Summary) any {
	var features []string
	if f.display() == DisplayCustom {
		features = f.Features
	}
	return struct {
		Dataset     models.Rows `json:"dataset"`
		Target      string      `json:"target_var"`
		ProblemType string      `json:"problem_type"`
		Estimator   string      `json:"estimator_name"`
		KFold       int         `json:"kfold"`
		Display     string      `json:"display_opt"`
		Features    []string    `json:"features_to_display,omitempty"`
	}{fileRows(rows), f.Target, f.problemType(cols), f.estimator(cols), f.kfold(), f.display(), features}
}

func (f *FeatureSelection) Submit(ctx context.Context, client Analyzer, body any) (Output, error) {
	result, err := client.SelectFeatures(ctx, body)
	if err != nil {
		return Output{}, err
	}
	return Output{Selection: result, Rows: result.Dataset}, nil
}
