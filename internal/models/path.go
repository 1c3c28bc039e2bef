package models

import (
	"path"
	"strings"
)

// Dataset paths are "/"-separated and relative to the dataset root, which
// is the empty string. They carry no leading or trailing slash.

// JoinPath joins a parent folder path and a child name.
func JoinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// SplitPath splits a path into its segments. The root yields nil.
func SplitPath(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// ParentPath returns p without its last segment ("" for top-level entries).
func ParentPath(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}

// BaseName returns the last segment of p.
func BaseName(p string) string {
	return p[strings.LastIndex(p, "/")+1:]
}

// Ancestors returns every proper ancestor folder of p, outermost first,
// excluding the root.
func Ancestors(p string) []string {
	var out []string
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[:i])
		}
	}
	return out
}

// IsAncestor reports whether folder is a proper ancestor of p.
func IsAncestor(folder, p string) bool {
	if folder == "" {
		return p != ""
	}
	return strings.HasPrefix(p, folder+"/")
}

// CleanPath normalises user input into a dataset path: backslashes become
// slashes and leading, trailing or repeated separators are dropped. "/"
// and "." mean the root.
func CleanPath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// FileKind classifies dataset files by extension for display.
type FileKind int

const (
	FileKindOther FileKind = iota
	FileKindCSV
	FileKindExcel
)

// KindOf returns the FileKind of a file name.
func KindOf(name string) FileKind {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return FileKindCSV
	case ".xlsx", ".xls":
		return FileKindExcel
	default:
		return FileKindOther
	}
}

// Label returns a short display label.
func (k FileKind) Label() string {
	switch k {
	case FileKindCSV:
		return "csv"
	case FileKindExcel:
		return "excel"
	default:
		return "file"
	}
}
