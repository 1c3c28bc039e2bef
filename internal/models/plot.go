package models

import (
	"encoding/json"
	"fmt"
)

// PlotResult is the response of a plot endpoint. The server answers
// {"plotly": ...} where the value is either a list of figures or a single
// figure object; both are normalised into Figures. Rendered images come
// alongside in "png" (base64) and "svg" lists.
type PlotResult struct {
	Figures []json.RawMessage
	PNG     []string
	SVG     []string
}

// Empty reports whether the result carries nothing to show.
func (p PlotResult) Empty() bool {
	return len(p.Figures) == 0 && len(p.PNG) == 0 && len(p.SVG) == 0
}

// UnmarshalJSON normalises the plotly member.
func (p *PlotResult) UnmarshalJSON(data []byte) error {
	var wire struct {
		Plotly json.RawMessage `json:"plotly"`
		PNG    []string        `json:"png"`
		SVG    []string        `json:"svg"`
	}
	if firstByte(data) != '{' {
		return fmt.Errorf("%w: expected plot object", ErrUnexpectedShape)
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}

	result := PlotResult{PNG: wire.PNG, SVG: wire.SVG}
	switch firstByte(wire.Plotly) {
	case '[':
		if err := json.Unmarshal(wire.Plotly, &result.Figures); err != nil {
			return fmt.Errorf("%w: plotly list: %v", ErrUnexpectedShape, err)
		}
	case '{':
		result.Figures = []json.RawMessage{wire.Plotly}
	case 0, 'n':
	default:
		return fmt.Errorf("%w: plotly must be an object or a list", ErrUnexpectedShape)
	}
	*p = result
	return nil
}

// MarshalJSON always emits plotly as a list.
func (p PlotResult) MarshalJSON() ([]byte, error) {
	figures := p.Figures
	if figures == nil {
		figures = []json.RawMessage{}
	}
	wire := struct {
		Plotly []json.RawMessage `json:"plotly"`
		PNG    []string          `json:"png,omitempty"`
		SVG    []string          `json:"svg,omitempty"`
	}{figures, p.PNG, p.SVG}
	return json.Marshal(wire)
}

// FigureTitle extracts layout.title(.text) from a plotly figure, if any.
func FigureTitle(fig json.RawMessage) string {
	var f struct {
		Layout struct {
			Title json.RawMessage `json:"title"`
		} `json:"layout"`
	}
	if err := json.Unmarshal(fig, &f); err != nil || len(f.Layout.Title) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(f.Layout.Title, &s) == nil {
		return s
	}
	var t struct {
		Text string `json:"text"`
	}
	if json.Unmarshal(f.Layout.Title, &t) == nil {
		return t.Text
	}
	return ""
}
