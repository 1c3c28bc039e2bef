// Package browser renders the dataset tree, both as plain text and as an
// interactive terminal browser.
package browser

import (
	"fmt"
	"strings"

	"github.com/matflow/matflow-cli/internal/models"
	"github.com/matflow/matflow-cli/internal/state"
)

// Line is one visible row of the tree.
type Line struct {
	Path     string
	Name     string
	Depth    int
	IsFolder bool
	Expanded bool
	Active   bool // active file, or active folder for folders
	Kind     models.FileKind
}

// Flatten lists the visible rows of root: the children of a folder are
// shown only when the folder is expanded in snap, or always when all is set.
func Flatten(root *models.DirectoryNode, snap state.Snapshot, all bool) []Line {
	expanded := make(map[string]bool, len(snap.ExpandedFolders))
	for _, f := range snap.ExpandedFolders {
		expanded[f] = true
	}

	var lines []Line
	root.Walk(func(p string, depth int, isFile bool) bool {
		name := models.BaseName(p)
		if isFile {
			lines = append(lines, Line{
				Path:   p,
				Name:   name,
				Depth:  depth,
				Active: p == snap.ActiveFile,
				Kind:   models.KindOf(name),
			})
			return true
		}
		open := all || expanded[p]
		lines = append(lines, Line{
			Path:     p,
			Name:     name,
			Depth:    depth,
			IsFolder: true,
			Expanded: open,
			Active:   p == snap.ActiveFolder,
		})
		return open
	})
	return lines
}

// Marker returns the leading glyph of l.
func (l Line) Marker() string {
	switch {
	case l.IsFolder && l.Expanded:
		return "▾"
	case l.IsFolder:
		return "▸"
	default:
		return " "
	}
}

// Label renders l without styling.
func (l Line) Label() string {
	if l.IsFolder {
		return l.Name + "/"
	}
	return fmt.Sprintf("%s [%s]", l.Name, l.Kind.Label())
}

// RenderTree renders root as indented plain text. The active file and
// folder are prefixed with "*".
func RenderTree(root *models.DirectoryNode, snap state.Snapshot, all bool) string {
	lines := Flatten(root, snap, all)
	if len(lines) == 0 {
		return "(no datasets)\n"
	}
	var b strings.Builder
	for _, l := range lines {
		active := " "
		if l.Active {
			active = "*"
		}
		fmt.Fprintf(&b, "%s %s%s %s\n", active, strings.Repeat("  ", l.Depth), l.Marker(), l.Label())
	}
	return b.String()
}
