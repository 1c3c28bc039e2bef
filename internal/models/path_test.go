package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, "a.csv", JoinPath("", "a.csv"))
	assert.Equal(t, "x/y/a.csv", JoinPath("x/y", "a.csv"))

	assert.Equal(t, "", ParentPath("a.csv"))
	assert.Equal(t, "x/y", ParentPath("x/y/a.csv"))
	assert.Equal(t, "a.csv", BaseName("x/y/a.csv"))
	assert.Equal(t, "a.csv", BaseName("a.csv"))

	assert.Nil(t, SplitPath(""))
	assert.Equal(t, []string{"x", "y"}, SplitPath("x/y"))

	assert.Nil(t, Ancestors("a.csv"))
	assert.Equal(t, []string{"x", "x/y"}, Ancestors("x/y/a.csv"))

	assert.True(t, IsAncestor("x", "x/y/a.csv"))
	assert.True(t, IsAncestor("x/y", "x/y/a.csv"))
	assert.False(t, IsAncestor("x/y/a.csv", "x/y/a.csv"))
	assert.False(t, IsAncestor("x", "xy/a.csv"))
	assert.True(t, IsAncestor("", "a.csv"))
}

func TestCleanPath(t *testing.T) {
	tests := map[string]string{
		"":              "",
		"/":             "",
		".":             "",
		"/raw/a.csv":    "raw/a.csv",
		"raw//2024/":    "raw/2024",
		`raw\2024\a.csv`: "raw/2024/a.csv",
		" raw ":         "raw",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanPath(in), "CleanPath(%q)", in)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, FileKindCSV, KindOf("a.CSV"))
	assert.Equal(t, FileKindExcel, KindOf("x/b.xlsx"))
	assert.Equal(t, FileKindExcel, KindOf("b.xls"))
	assert.Equal(t, FileKindOther, KindOf("notes.txt"))
	assert.Equal(t, "excel", KindOf("b.xlsx").Label())
}
