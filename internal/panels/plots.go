package panels

import (
	"sort"
	"strings"

	"github.com/matflow/matflow-cli/internal/columns"
	"github.com/matflow/matflow-cli/internal/models"
)

// Plot is one plot builder: options that validate themselves and produce
// the request body for POST /api/eda/<Type>/.
type Plot interface {
	Type() string
	Validate(cols columns.Summary) error
	Body(rows models.Rows) any
}

// Wire defaults.
const (
	unset          = "-"    // unset variable
	customUnset    = "None" // unset hue of the custom plot
	DefaultPalette = "husl"
	Vertical       = "Vertical"
	Horizontal     = "Horizontal"
)

// HistogramAggregates are the aggregations the histogram endpoint maps.
var HistogramAggregates = []string{"count", "sum", "avg", "min", "max", "density", "probability", "percent"}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func listOrUnset(vs []string) any {
	if len(vs) == 0 {
		return unset
	}
	return vs
}

func fileRows(rows models.Rows) models.Rows {
	if rows == nil {
		return models.Rows{}
	}
	return rows
}

func checkOrient(orient string) error {
	switch orient {
	case "", Vertical, Horizontal:
		return nil
	default:
		return invalid("orient", "must be %s or %s", Vertical, Horizontal)
	}
}

func requireList(field string, vs []string, cols columns.Summary) error {
	if len(vs) == 0 {
		return invalid(field, "select at least one column")
	}
	for _, v := range vs {
		if err := checkColumn(field, v, cols); err != nil {
			return err
		}
	}
	return nil
}

func requireColumn(field, v string, cols columns.Summary) error {
	if v == "" {
		return invalid(field, "a column is required")
	}
	return checkColumn(field, v, cols)
}

// checkColumn accepts an empty optional column.
func checkColumn(field, v string, cols columns.Summary) error {
	if v == "" || cols.Has(v) {
		return nil
	}
	return invalid(field, "unknown column %q", v)
}

// BarPlot compares a numeric column across categories.
type BarPlot struct {
	Cat          []string
	Num          string
	Hue          string
	Orient       string
	Annotate     bool
	Title        string
	ColorPalette string
}

func (p *BarPlot) Type() string { return "barplot" }

func (p *BarPlot) Validate(cols columns.Summary) error {
	if err := requireList("cat", p.Cat, cols); err != nil {
		return err
	}
	if err := requireColumn("num", p.Num, cols); err != nil {
		return err
	}
	if err := checkColumn("hue", p.Hue, cols); err != nil {
		return err
	}
	return checkOrient(p.Orient)
}

func (p *BarPlot) Body(rows models.Rows) any {
	return struct {
		Cat          any         `json:"cat"`
		Num          string      `json:"num"`
		Hue          string      `json:"hue"`
		Orient       string      `json:"orient"`
		Annotate     bool        `json:"annotate"`
		Title        string      `json:"title"`
		ColorPalette string      `json:"color_palette"`
		File         models.Rows `json:"file"`
	}{listOrUnset(p.Cat), orDefault(p.Num, unset), orDefault(p.Hue, unset), orDefault(p.Orient, Vertical),
		p.Annotate, p.Title, orDefault(p.ColorPalette, DefaultPalette), fileRows(rows)}
}

// BoxPlot shows the distribution of a numeric column per category.
type BoxPlot struct {
	Cat          []string
	Num          string
	Hue          string
	Orient       string
	Dodge        bool
	Title        string
	ColorPalette string
}

func (p *BoxPlot) Type() string { return "boxplot" }

func (p *BoxPlot) Validate(cols columns.Summary) error {
	if err := requireList("cat", p.Cat, cols); err != nil {
		return err
	}
	if err := requireColumn("num", p.Num, cols); err != nil {
		return err
	}
	if err := checkColumn("hue", p.Hue, cols); err != nil {
		return err
	}
	return checkOrient(p.Orient)
}

func (p *BoxPlot) Body(rows models.Rows) any {
	return struct {
		Cat          any         `json:"cat"`
		Num          string      `json:"num"`
		Hue          string      `json:"hue"`
		Orient       string      `json:"orient"`
		Dodge        bool        `json:"dodge"`
		Title        string      `json:"title"`
		ColorPalette string      `json:"color_palette"`
		File         models.Rows `json:"file"`
	}{listOrUnset(p.Cat), orDefault(p.Num, unset), orDefault(p.Hue, unset), orDefault(p.Orient, Vertical),
		p.Dodge, p.Title, orDefault(p.ColorPalette, DefaultPalette), fileRows(rows)}
}

// CountPlot counts rows per category.
type CountPlot struct {
	Cat          []string
	Hue          string
	Orient       string
	Annotate     bool
	Title        string
	ColorPalette string
}

func (p *CountPlot) Type() string { return "countplot" }

func (p *CountPlot) Validate(cols columns.Summary) error {
	if err := requireList("cat", p.Cat, cols); err != nil {
		return err
	}
	if err := checkColumn("hue", p.Hue, cols); err != nil {
		return err
	}
	return checkOrient(p.Orient)
}

func (p *CountPlot) Body(rows models.Rows) any {
	return struct {
		Cat          any         `json:"cat"`
		Hue          string      `json:"hue"`
		Orient       string      `json:"orient"`
		Annotate     bool        `json:"annotate"`
		Title        string      `json:"title"`
		ColorPalette string      `json:"color_palette"`
		File         models.Rows `json:"file"`
	}{listOrUnset(p.Cat), orDefault(p.Hue, unset), orDefault(p.Orient, Vertical), p.Annotate, p.Title,
		orDefault(p.ColorPalette, DefaultPalette), fileRows(rows)}
}

// Histogram bins numeric columns. Bins 0 lets the server choose.
type Histogram struct {
	Var          []string
	Hue          string
	Orient       string
	Title        string
	Agg          string
	Bins         int
	KDE          bool
	Legend       bool
	ColorPalette string
}

func (p *Histogram) Type() string { return "histogram" }

func (p *Histogram) Validate(cols columns.Summary) error {
	if err := requireList("var", p.Var, cols); err != nil {
		return err
	}
	if err := checkColumn("hue", p.Hue, cols); err != nil {
		return err
	}
	if err := checkOrient(p.Orient); err != nil {
		return err
	}
	if p.Bins < 0 {
		return invalid("bins", "must not be negative")
	}
	if p.Agg != "" && !containsString(HistogramAggregates, p.Agg) {
		return invalid("agg", "must be one of %s", strings.Join(HistogramAggregates, ", "))
	}
	return nil
}

func (p *Histogram) Body(rows models.Rows) any {
	return struct {
		Var          any         `json:"var"`
		Hue          string      `json:"hue"`
		Orient       string      `json:"orient"`
		Title        string      `json:"title"`
		Agg          string      `json:"agg"`
		AutoBin      int         `json:"autoBin"`
		KDE          bool        `json:"kde"`
		Legend       bool        `json:"legend"`
		ColorPalette string      `json:"color_palette"`
		File         models.Rows `json:"file"`
	}{listOrUnset(p.Var), orDefault(p.Hue, unset), orDefault(p.Orient, Vertical), p.Title,
		orDefault(p.Agg, "count"), p.Bins, p.KDE, p.Legend, orDefault(p.ColorPalette, DefaultPalette), fileRows(rows)}
}

// LinePlot draws y against each x column.
type LinePlot struct {
	X            []string
	Y            string
	Hue          string
	Style        string
	Legend       bool
	Title        string
	ColorPalette string
}

func (p *LinePlot) Type() string { return "lineplot" }

func (p *LinePlot) Validate(cols columns.Summary) error {
	if err := requireList("x_var", p.X, cols); err != nil {
		return err
	}
	if err := requireColumn("y_var", p.Y, cols); err != nil {
		return err
	}
	if err := checkColumn("hue", p.Hue, cols); err != nil {
		return err
	}
	return checkColumn("style", p.Style, cols)
}

func (p *LinePlot) Body(rows models.Rows) any {
	return struct {
		X            []string    `json:"x_var"`
		Y            string      `json:"y_var"`
		Hue          string      `json:"hue"`
		Style        string      `json:"style"`
		Legend       bool        `json:"legend"`
		Title        string      `json:"title"`
		ColorPalette string      `json:"color_palette"`
		File         models.Rows `json:"file"`
	}{p.X, p.Y, orDefault(p.Hue, unset), orDefault(p.Style, unset), p.Legend, p.Title,
		orDefault(p.ColorPalette, DefaultPalette), fileRows(rows)}
}

// PiePlot shows category shares. Gap is the slice explode in [0, 1].
type PiePlot struct {
	Cat          []string
	Gap          float64
	Title        string
	Label        bool
	Percentage   bool
	ColorPalette string
}

func (p *PiePlot) Type() string { return "pieplot" }

func (p *PiePlot) Validate(cols columns.Summary) error {
	if p.Gap < 0 || p.Gap > 1 {
		return invalid("gap", "explode value should be between 0 and 1")
	}
	return requireList("cat", p.Cat, cols)
}

func (p *PiePlot) Body(rows models.Rows) any {
	return struct {
		Cat          any         `json:"cat"`
		Title        string      `json:"title"`
		Label        bool        `json:"label"`
		Percentage   bool        `json:"percentage"`
		Gap          float64     `json:"gap"`
		ColorPalette string      `json:"color_palette"`
		File         models.Rows `json:"file"`
	}{listOrUnset(p.Cat), p.Title, p.Label, p.Percentage, p.Gap, orDefault(p.ColorPalette, DefaultPalette), fileRows(rows)}
}

// RegPlot fits a regression line of y on each x column.
type RegPlot struct {
	X            []string
	Y            string
	Title        string
	Scatter      bool
	ColorPalette string
}

func (p *RegPlot) Type() string { return "regplot" }

func (p *RegPlot) Validate(cols columns.Summary) error {
	if err := requireList("x_var", p.X, cols); err != nil {
		return err
	}
	return requireColumn("y_var", p.Y, cols)
}

func (p *RegPlot) Body(rows models.Rows) any {
	return struct {
		X            []string    `json:"x_var"`
		Y            string      `json:"y_var"`
		Title        string      `json:"title"`
		Scatter      bool        `json:"scatter"`
		ColorPalette string      `json:"color_palette"`
		File         models.Rows `json:"file"`
	}{p.X, p.Y, p.Title, p.Scatter, orDefault(p.ColorPalette, DefaultPalette), fileRows(rows)}
}

// ScatterPlot plots y against each x column.
type ScatterPlot struct {
	X     []string
	Y     string
	Hue   string
	Title string
}

func (p *ScatterPlot) Type() string { return "scatterplot" }

func (p *ScatterPlot) Validate(cols columns.Summary) error {
	if err := requireList("x_var", p.X, cols); err != nil {
		return err
	}
	if err := requireColumn("y_var", p.Y, cols); err != nil {
		return err
	}
	return checkColumn("hue", p.Hue, cols)
}

func (p *ScatterPlot) Body(rows models.Rows) any {
	return struct {
		X     []string    `json:"x_var"`
		Y     string      `json:"y_var"`
		Hue   string      `json:"hue"`
		Title string      `json:"title"`
		File  models.Rows `json:"file"`
	}{p.X, p.Y, orDefault(p.Hue, unset), p.Title, fileRows(rows)}
}

// ViolinPlot shows numeric distributions per category.
type ViolinPlot struct {
	Cat          []string
	Num          string
	Hue          string
	Orient       string
	Dodge        bool
	Split        bool
	Title        string
	ColorPalette string
}

func (p *ViolinPlot) Type() string { return "violinplot" }

func (p *ViolinPlot) Validate(cols columns.Summary) error {
	if err := requireList("cat", p.Cat, cols); err != nil {
		return err
	}
	if err := requireColumn("num", p.Num, cols); err != nil {
		return err
	}
	if err := checkColumn("hue", p.Hue, cols); err != nil {
		return err
	}
	if p.Split && p.Hue == "" {
		return invalid("split", "requires a hue column")
	}
	return checkOrient(p.Orient)
}

func (p *ViolinPlot) Body(rows models.Rows) any {
	return struct {
		Cat          any         `json:"cat"`
		Num          string      `json:"num"`
		Hue          string      `json:"hue"`
		Orient       string      `json:"orient"`
		Dodge        bool        `json:"dodge"`
		Split        bool        `json:"split"`
		Title        string      `json:"title"`
		ColorPalette string      `json:"color_palette"`
		File         models.Rows `json:"file"`
	}{listOrUnset(p.Cat), orDefault(p.Num, unset), orDefault(p.Hue, unset), orDefault(p.Orient, Vertical),
		p.Dodge, p.Split, p.Title, orDefault(p.ColorPalette, DefaultPalette), fileRows(rows)}
}

// CustomPlot renders a line and a scatter view of y against each x.
type CustomPlot struct {
	X            []string
	Y            string
	Hue          string
	Title        string
	ColorPalette string
}

func (p *CustomPlot) Type() string { return "customplot" }

func (p *CustomPlot) Validate(cols columns.Summary) error {
	if err := requireList("x_var", p.X, cols); err != nil {
		return err
	}
	if err := requireColumn("y_var", p.Y, cols); err != nil {
		return err
	}
	return checkColumn("hue", p.Hue, cols)
}

func (p *CustomPlot) Body(rows models.Rows) any {
	return struct {
		X            []string    `json:"x_var"`
		Y            string      `json:"y_var"`
		Hue          string      `json:"hue"`
		Title        string      `json:"title,omitempty"`
		ColorPalette string      `json:"color_palette"`
		File         models.Rows `json:"file"`
	}{p.X, p.Y, orDefault(p.Hue, customUnset), p.Title, orDefault(p.ColorPalette, DefaultPalette), fileRows(rows)}
}

// Params is the union of every plot option, as collected by a form or
// command line flags.
type Params struct {
	Cat          []string
	Num          string
	Var          []string
	X            []string
	Y            string
	Hue          string
	Style        string
	Orient       string
	Title        string
	ColorPalette string
	Annotate     bool
	Dodge        bool
	Split        bool
	Legend       bool
	KDE          bool
	Scatter      bool
	Label        bool
	Percentage   bool
	Gap          float64
	Agg          string
	Bins         int
}

var plotBuilders = map[string]func(Params) Plot{
	"barplot": func(p Params) Plot {
		return &BarPlot{Cat: p.Cat, Num: p.Num, Hue: p.Hue, Orient: p.Orient, Annotate: p.Annotate, Title: p.Title, ColorPalette: p.ColorPalette}
	},
	"boxplot": func(p Params) Plot {
		return &BoxPlot{Cat: p.Cat, Num: p.Num, Hue: p.Hue, Orient: p.Orient, Dodge: p.Dodge, Title: p.Title, ColorPalette: p.ColorPalette}
	},
	"countplot": func(p Params) Plot {
		return &CountPlot{Cat: p.Cat, Hue: p.Hue, Orient: p.Orient, Annotate: p.Annotate, Title: p.Title, ColorPalette: p.ColorPalette}
	},
	"histogram": func(p Params) Plot {
		return &Histogram{Var: p.Var, Hue: p.Hue, Orient: p.Orient, Title: p.Title, Agg: p.Agg, Bins: p.Bins, KDE: p.KDE, Legend: p.Legend, ColorPalette: p.ColorPalette}
	},
	"lineplot": func(p Params) Plot {
		return &LinePlot{X: p.X, Y: p.Y, Hue: p.Hue, Style: p.Style, Legend: p.Legend, Title: p.Title, ColorPalette: p.ColorPalette}
	},
	"pieplot": func(p Params) Plot {
		return &PiePlot{Cat: p.Cat, Gap: p.Gap, Title: p.Title, Label: p.Label, Percentage: p.Percentage, ColorPalette: p.ColorPalette}
	},
	"regplot": func(p Params) Plot {
		return &RegPlot{X: p.X, Y: p.Y, Title: p.Title, Scatter: p.Scatter, ColorPalette: p.ColorPalette}
	},
	"scatterplot": func(p Params) Plot {
		return &ScatterPlot{X: p.X, Y: p.Y, Hue: p.Hue, Title: p.Title}
	},
	"violinplot": func(p Params) Plot {
		return &ViolinPlot{Cat: p.Cat, Num: p.Num, Hue: p.Hue, Orient: p.Orient, Dodge: p.Dodge, Split: p.Split, Title: p.Title, ColorPalette: p.ColorPalette}
	},
	"customplot": func(p Params) Plot {
		return &CustomPlot{X: p.X, Y: p.Y, Hue: p.Hue, Title: p.Title, ColorPalette: p.ColorPalette}
	},
}

// plotAliases maps short names to endpoint names.
var plotAliases = map[string]string{
	"bar": "barplot", "box": "boxplot", "count": "countplot", "hist": "histogram",
	"line": "lineplot", "pie": "pieplot", "reg": "regplot", "scatter": "scatterplot",
	"violin": "violinplot", "custom": "customplot",
}

// PlotTypes returns the endpoint names of every plot, sorted.
func PlotTypes() []string {
	types := make([]string, 0, len(plotBuilders))
	for t := range plotBuilders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// BuildPlot returns the plot called plotType (or one of its short names)
// configured from p.
func BuildPlot(plotType string, p Params) (Plot, error) {
	name := strings.ToLower(plotType)
	if full, ok := plotAliases[name]; ok {
		name = full
	}
	build, ok := plotBuilders[name]
	if !ok {
		return nil, invalid("type", "unknown plot type %q (one of %s)", plotType, strings.Join(PlotTypes(), ", "))
	}
	return build(p), nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
