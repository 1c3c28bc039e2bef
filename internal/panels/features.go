package panels

import (
	"strings"

	"github.com/matflow/matflow-cli/internal/columns"
	"github.com/matflow/matflow-cli/internal/config"
	"github.com/matflow/matflow-cli/internal/models"
)

// Transform is a feature-engineering step that returns a new dataset.
type Transform interface {
	Name() string
	Endpoint(cfg config.EndpointsConfig) string
	Validate(cols columns.Summary) error
	Body(rows models.Rows) any
}

// DropRowsWithNull is the only drop mode the server offers.
const DropRowsWithNull = "With Null"

// DropRows removes rows holding nulls in the selected columns.
type DropRows struct {
	Columns []string
	Mode    string
}

func (d *DropRows) Name() string { return "drop_rows" }

func (d *DropRows) Endpoint(cfg config.EndpointsConfig) string { return cfg.DropRows }

func (d *DropRows) Validate(cols columns.Summary) error {
	if d.Mode != "" && d.Mode != DropRowsWithNull {
		return invalid("default_value", "only %q is supported", DropRowsWithNull)
	}
	return requireList("select_columns", d.Columns, cols)
}

func (d *DropRows) Body(rows models.Rows) any {
	return struct {
		DefaultValue  string      `json:"default_value"`
		SelectColumns []string    `json:"select_columns"`
		File          models.Rows `json:"file"`
	}{orDefault(d.Mode, DropRowsWithNull), d.Columns, fileRows(rows)}
}

// Rename maps one column to a new name.
type Rename struct {
	Column  string `json:"column_name"`
	NewName string `json:"new_field_name"`
}

// ParseRename parses "old=new".
func ParseRename(s string) (Rename, error) {
	old, newName, ok := strings.Cut(s, "=")
	if !ok {
		return Rename{}, invalid("rename", "expected old=new, got %q", s)
	}
	return Rename{Column: strings.TrimSpace(old), NewName: strings.TrimSpace(newName)}, nil
}

// AlterFields renames columns.
type AlterFields struct {
	Renames []Rename
}

func (a *AlterFields) Name() string { return "alter_fields" }

func (a *AlterFields) Endpoint(cfg config.EndpointsConfig) string { return cfg.AlterFields }

func (a *AlterFields) Validate(cols columns.Summary) error {
	if len(a.Renames) == 0 {
		return invalid("data", "add at least one column to rename")
	}
	seen := make(map[string]bool)
	targets := make(map[string]bool)
	for _, r := range a.Renames {
		if err := requireColumn("column_name", r.Column, cols); err != nil {
			return err
		}
		if strings.TrimSpace(r.NewName) == "" {
			return invalid("new_field_name", "a new name is required for %q", r.Column)
		}
		if seen[r.Column] {
			return invalid("column_name", "%q is renamed twice", r.Column)
		}
		if targets[r.NewName] {
			return invalid("new_field_name", "%q is used twice", r.NewName)
		}
		seen[r.Column] = true
		targets[r.NewName] = true
	}
	for _, r := range a.Renames {
		// Renaming onto an existing column is only fine if that column is
		// itself renamed away.
		if r.NewName != r.Column && cols.Has(r.NewName) && !seen[r.NewName] {
			return invalid("new_field_name", "column %q already exists", r.NewName)
		}
	}
	return nil
}

func (a *AlterFields) Body(rows models.Rows) any {
	return struct {
		NumberOfColumns int         `json:"number_of_columns"`
		Data            []Rename    `json:"data"`
		File            models.Rows `json:"file"`
	}{len(a.Renames), a.Renames, fileRows(rows)}
}
