package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// filesKey is the reserved key holding a folder's file list.
const filesKey = "files"

// ErrUnexpectedShape is returned when a payload is valid JSON but not the
// shape the dataset server documents.
var ErrUnexpectedShape = errors.New("unexpected payload shape")

// Folder is a named child of a DirectoryNode.
type Folder struct {
	Name string
	Node *DirectoryNode
}

// DirectoryNode is one folder of the remote dataset tree.
//
// On the wire a node is a JSON object whose "files" key holds the file names
// and whose every other key is a subfolder. Key order is significant and is
// preserved: Folders keeps encounter order and FilesAt records how many
// folders preceded the "files" key (0 when it came first or was absent).
type DirectoryNode struct {
	Files   []string
	Folders []Folder
	FilesAt int
}

// NewDirectoryNode returns an empty node.
func NewDirectoryNode() *DirectoryNode {
	return &DirectoryNode{}
}

// Folder returns the direct child folder called name.
func (n *DirectoryNode) Folder(name string) (*DirectoryNode, bool) {
	if n == nil {
		return nil, false
	}
	for _, f := range n.Folders {
		if f.Name == name {
			return f.Node, true
		}
	}
	return nil, false
}

// HasFile reports whether name is a direct file of n.
func (n *DirectoryNode) HasFile(name string) bool {
	if n == nil {
		return false
	}
	for _, f := range n.Files {
		if f == name {
			return true
		}
	}
	return false
}

// AddFolder appends a child folder, or returns the existing one.
func (n *DirectoryNode) AddFolder(name string) *DirectoryNode {
	if child, ok := n.Folder(name); ok {
		return child
	}
	child := NewDirectoryNode()
	n.Folders = append(n.Folders, Folder{Name: name, Node: child})
	return child
}

// AddFile appends a file name unless it is already listed.
func (n *DirectoryNode) AddFile(name string) {
	if !n.HasFile(name) {
		n.Files = append(n.Files, name)
	}
}

// Lookup resolves a folder path relative to n. The empty path is n itself.
func (n *DirectoryNode) Lookup(folderPath string) (*DirectoryNode, bool) {
	node := n
	if folderPath == "" {
		return node, node != nil
	}
	for _, part := range SplitPath(folderPath) {
		child, ok := node.Folder(part)
		if !ok {
			return nil, false
		}
		node = child
	}
	return node, true
}

// ContainsFile reports whether the full file path exists in the tree.
func (n *DirectoryNode) ContainsFile(filePath string) bool {
	folder, ok := n.Lookup(ParentPath(filePath))
	return ok && folder.HasFile(BaseName(filePath))
}

// ContainsFolder reports whether the folder path exists in the tree.
func (n *DirectoryNode) ContainsFolder(folderPath string) bool {
	_, ok := n.Lookup(folderPath)
	return ok
}

// EntryVisitor is called for every entry in wire order. isFile is false
// for folders. Returning false from a folder visit skips its children.
type EntryVisitor func(path string, depth int, isFile bool) bool

// Walk visits the tree pre-order, following each node's key order.
func (n *DirectoryNode) Walk(visit EntryVisitor) {
	n.walk("", 0, visit)
}

func (n *DirectoryNode) walk(prefix string, depth int, visit EntryVisitor) {
	if n == nil {
		return
	}
	emitFiles := func() {
		for _, f := range n.Files {
			visit(JoinPath(prefix, f), depth, true)
		}
	}
	filesDone := false
	for i, f := range n.Folders {
		if i == n.FilesAt {
			emitFiles()
			filesDone = true
		}
		p := JoinPath(prefix, f.Name)
		if visit(p, depth, false) {
			f.Node.walk(p, depth+1, visit)
		}
	}
	if !filesDone {
		emitFiles()
	}
}

// FilePaths flattens the tree into full file paths, pre-order.
func (n *DirectoryNode) FilePaths() []string {
	paths := []string{}
	n.Walk(func(p string, _ int, isFile bool) bool {
		if isFile {
			paths = append(paths, p)
		}
		return true
	})
	return paths
}

// FolderPaths lists every folder path, pre-order.
func (n *DirectoryNode) FolderPaths() []string {
	paths := []string{}
	n.Walk(func(p string, _ int, isFile bool) bool {
		if !isFile {
			paths = append(paths, p)
		}
		return true
	})
	return paths
}

// UnmarshalJSON decodes a node preserving key order.
func (n *DirectoryNode) UnmarshalJSON(data []byte) error {
	node, err := decodeDirectoryNode(data)
	if err != nil {
		return err
	}
	*n = *node
	return nil
}

func decodeDirectoryNode(data []byte) (*DirectoryNode, error) {
	node := NewDirectoryNode()
	filesSeen := false
	err := decodeObject(data, func(key string, raw json.RawMessage) error {
		// A "files" key holding an object is a folder that happens to be
		// called "files".
		if key == filesKey && firstByte(raw) == '[' {
			var files []string
			if err := json.Unmarshal(raw, &files); err != nil {
				return fmt.Errorf("%w: files list: %v", ErrUnexpectedShape, err)
			}
			if !filesSeen {
				node.FilesAt = len(node.Folders)
				filesSeen = true
			}
			for _, f := range files {
				node.AddFile(f)
			}
			return nil
		}

		child, err := decodeDirectoryNode(raw)
		if err != nil {
			return fmt.Errorf("folder %q: %w", key, err)
		}
		if existing, ok := node.Folder(key); ok {
			*existing = *child
			return nil
		}
		node.Folders = append(node.Folders, Folder{Name: key, Node: child})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// MarshalJSON encodes the node in its recorded key order.
func (n *DirectoryNode) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	writeKey := func(k string) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
	}
	writeFiles := func() error {
		writeKey(filesKey)
		files := n.Files
		if files == nil {
			files = []string{}
		}
		b, err := json.Marshal(files)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}

	filesDone := false
	for i, f := range n.Folders {
		if i == n.FilesAt {
			if err := writeFiles(); err != nil {
				return nil, err
			}
			filesDone = true
		}
		writeKey(f.Name)
		child := f.Node
		if child == nil {
			child = NewDirectoryNode()
		}
		b, err := child.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	if !filesDone {
		if err := writeFiles(); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
