package models

import (
	"encoding/json"
	"fmt"
)

// ModelNameColumn heads the model column of an optimization comparison.
const ModelNameColumn = "Model Name"

// OptimizationResult is the response of the inverse-design optimizer. The
// server sends comparison_table as {feature: {model: value}}; it is
// pivoted into one row per model, "Model Name" first and features in the
// order the server listed them.
type OptimizationResult struct {
	BestModel    string
	BestRuntime  float64
	BestFopt     float64
	BestSolution Rows
	Comparison   Rows
	// Graphs maps an image format (png, jpg, svg, pdf) to base64 data.
	Graphs map[string]string
}

// UnmarshalJSON pivots the comparison table.
func (o *OptimizationResult) UnmarshalJSON(data []byte) error {
	var wire struct {
		BestModel    string            `json:"best_model"`
		BestRuntime  float64           `json:"best_runtime"`
		BestFopt     float64           `json:"best_fopt"`
		BestSolution Rows              `json:"best_solution"`
		Comparison   json.RawMessage   `json:"comparison_table"`
		Graphs       map[string]string `json:"graphs"`
	}
	if firstByte(data) != '{' {
		return fmt.Errorf("%w: expected optimization object", ErrUnexpectedShape)
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}

	result := OptimizationResult{
		BestModel:    wire.BestModel,
		BestRuntime:  wire.BestRuntime,
		BestFopt:     wire.BestFopt,
		BestSolution: wire.BestSolution,
		Graphs:       wire.Graphs,
	}
	if c := firstByte(wire.Comparison); c != 0 && c != 'n' {
		rows, err := pivotComparison(wire.Comparison)
		if err != nil {
			return err
		}
		result.Comparison = rows
	}
	*o = result
	return nil
}

func pivotComparison(raw json.RawMessage) (Rows, error) {
	var order []string
	byModel := make(map[string]*Row)
	err := decodeObject(raw, func(feature string, perModel json.RawMessage) error {
		var values Row
		if err := values.UnmarshalJSON(perModel); err != nil {
			return fmt.Errorf("comparison_table %q: %w", feature, err)
		}
		for _, model := range values.Columns() {
			row, ok := byModel[model]
			if !ok {
				row = &Row{}
				row.Set(ModelNameColumn, model)
				byModel[model] = row
				order = append(order, model)
			}
			v, _ := values.Get(model)
			row.Set(feature, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	rows := make(Rows, 0, len(order))
	for _, m := range order {
		rows = append(rows, *byModel[m])
	}
	return rows, nil
}

// FeatureSelectionResult is the response of progressive feature selection.
// Figure holds the plotly figure, which the server sends JSON-encoded
// inside a string.
type FeatureSelectionResult struct {
	SelectedFeatures []string
	DroppedFeatures  []string
	SelectedScores   Rows
	DroppedScores    Rows
	Figure           json.RawMessage
	// Dataset is the input with the dropped features removed.
	Dataset Rows
}

// UnmarshalJSON unwraps plot_data.
func (f *FeatureSelectionResult) UnmarshalJSON(data []byte) error {
	var wire struct {
		SelectedFeatures []string        `json:"selected_features"`
		DroppedFeatures  []string        `json:"dropped_features"`
		SelectedScores   Rows            `json:"selected_feature_scores"`
		DroppedScores    Rows            `json:"dropped_feature_scores"`
		PlotData         json.RawMessage `json:"plot_data"`
		Dataset          Rows            `json:"modified_dataset_csv"`
	}
	if firstByte(data) != '{' {
		return fmt.Errorf("%w: expected feature selection object", ErrUnexpectedShape)
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}

	result := FeatureSelectionResult{
		SelectedFeatures: wire.SelectedFeatures,
		DroppedFeatures:  wire.DroppedFeatures,
		SelectedScores:   wire.SelectedScores,
		DroppedScores:    wire.DroppedScores,
		Dataset:          wire.Dataset,
	}
	switch firstByte(wire.PlotData) {
	case '"':
		var encoded string
		if err := json.Unmarshal(wire.PlotData, &encoded); err != nil {
			return fmt.Errorf("%w: plot_data: %v", ErrUnexpectedShape, err)
		}
		if !json.Valid([]byte(encoded)) {
			return fmt.Errorf("%w: plot_data is not a JSON figure", ErrUnexpectedShape)
		}
		result.Figure = json.RawMessage(encoded)
	case '{':
		result.Figure = wire.PlotData
	case 0, 'n':
	default:
		return fmt.Errorf("%w: plot_data must be a figure", ErrUnexpectedShape)
	}
	*f = result
	return nil
}
