// Package columns classifies dataset columns as categorical or numeric.
package columns

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/matflow/matflow-cli/internal/config"
	"github.com/matflow/matflow-cli/internal/models"
)

// Strategy selects which rows are inspected.
type Strategy int

const (
	// FirstRowOnly inspects only the first row. Later rows of a different
	// type are not seen.
	FirstRowOnly Strategy = iota
	// ScanAll inspects every row. A column whose rows disagree may appear
	// in both lists.
	ScanAll
)

func (s Strategy) String() string {
	if s == ScanAll {
		return config.ColumnStrategyScanAll
	}
	return config.ColumnStrategyFirstRow
}

// NumericRule decides whether one cell value is numeric.
type NumericRule int

const (
	// Strict treats a value as numeric iff it is a finite JSON number.
	Strict NumericRule = iota
	// Coercing treats strings as categorical and every other scalar as
	// numeric when it coerces to a finite number: null is 0, true and
	// false are 1 and 0. Objects and arrays are categorical.
	Coercing
)

func (r NumericRule) String() string {
	if r == Coercing {
		return config.NumericRuleCoercing
	}
	return config.NumericRuleStrict
}

// Options combines a strategy and a numeric rule.
type Options struct {
	Strategy Strategy
	Rule     NumericRule
}

// ParseStrategy parses a config value ("first_row" or "scan_all").
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case config.ColumnStrategyFirstRow, "":
		return FirstRowOnly, nil
	case config.ColumnStrategyScanAll:
		return ScanAll, nil
	default:
		return 0, fmt.Errorf("%w: %q", config.ErrInvalidStrategy, s)
	}
}

// ParseNumericRule parses a config value ("strict" or "coercing").
func ParseNumericRule(s string) (NumericRule, error) {
	switch s {
	case config.NumericRuleStrict, "":
		return Strict, nil
	case config.NumericRuleCoercing:
		return Coercing, nil
	default:
		return 0, fmt.Errorf("%w: %q", config.ErrInvalidNumericRule, s)
	}
}

// OptionsFromConfig converts the [matflow.columns] section.
func OptionsFromConfig(cfg config.ColumnsConfig) (Options, error) {
	strategy, err := ParseStrategy(cfg.Strategy)
	if err != nil {
		return Options{}, err
	}
	rule, err := ParseNumericRule(cfg.NumericRule)
	if err != nil {
		return Options{}, err
	}
	return Options{Strategy: strategy, Rule: rule}, nil
}

// Summary lists column names by type in first-seen order. A name appears
// at most once per list.
type Summary struct {
	Categorical []string
	Numeric     []string
}

// IsNumeric reports whether col is in the numeric list.
func (s Summary) IsNumeric(col string) bool {
	return contains(s.Numeric, col)
}

// IsCategorical reports whether col is in the categorical list.
func (s Summary) IsCategorical(col string) bool {
	return contains(s.Categorical, col)
}

// Has reports whether col is in either list.
func (s Summary) Has(col string) bool {
	return s.IsNumeric(col) || s.IsCategorical(col)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Infer classifies the columns of rows.
func Infer(rows models.Rows, opts Options) Summary {
	summary := Summary{Categorical: []string{}, Numeric: []string{}}
	if len(rows) == 0 {
		return summary
	}

	scan := rows[:1]
	if opts.Strategy == ScanAll {
		scan = rows
	}

	seenCat := make(map[string]bool)
	seenNum := make(map[string]bool)
	for _, row := range scan {
		for _, col := range row.Columns() {
			v, _ := row.Get(col)
			if IsNumeric(v, opts.Rule) {
				if !seenNum[col] {
					seenNum[col] = true
					summary.Numeric = append(summary.Numeric, col)
				}
			} else if !seenCat[col] {
				seenCat[col] = true
				summary.Categorical = append(summary.Categorical, col)
			}
		}
	}
	return summary
}

// IsNumeric classifies a single decoded cell value.
func IsNumeric(v any, rule NumericRule) bool {
	if f, ok := number(v); ok {
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	if rule != Coercing {
		return false
	}
	switch v.(type) {
	case nil, bool:
		return true
	default:
		return false
	}
}

// number extracts a float from the numeric types rows may hold.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
