package solution

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/xamarin/mirepoix/internal/guid"
	"github.com/xamarin/mirepoix/internal/pathutil"
	"github.com/xamarin/mirepoix/internal/slnfile"
)

// NodeKind distinguishes the three kinds of tree node.
type NodeKind int

const (
	KindRoot NodeKind = iota
	KindFolder
	KindProject
)

// UnsupportedProjectTypeError is returned when a project's extension has no
// known solution type GUID.
type UnsupportedProjectTypeError struct {
	Path      string
	Extension string
}

func (e *UnsupportedProjectTypeError) Error() string {
	return fmt.Sprintf("solution: %q extension is not supported (%s)", e.Extension, e.Path)
}

var projectTypes = map[string]string{
	".csproj": slnfile.TypeCSharp,
	".fsproj": slnfile.TypeFSharp,
	".vbproj": slnfile.TypeVisualBasic,
	".shproj": slnfile.TypeSharedProject,
}

// ProjectTypeGUID returns the solution type GUID for a project path.
func ProjectTypeGUID(path string) (string, error) {
	ext := pathutil.Ext(path)
	t, ok := projectTypes[ext]
	if !ok {
		return "", &UnsupportedProjectTypeError{Path: path, Extension: ext}
	}
	return t, nil
}

// Node is a solution tree node: the root, a solution folder, or a project.
type Node struct {
	Kind     NodeKind
	GUID     uuid.UUID
	TypeGUID string
	Name     string

	// RelativePath is the folder name for folders and the path relative to
	// the solution directory, with host separators, for projects.
	RelativePath string

	parent         *Node
	children       []*Node
	configurations []ConfigurationMap
}

func newRoot() *Node {
	return &Node{Kind: KindRoot, GUID: uuid.Nil}
}

// Parent returns the parent node, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the child nodes in insertion order.
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// Configurations returns the node's configuration rows in insertion order.
func (n *Node) Configurations() []ConfigurationMap {
	return append([]ConfigurationMap(nil), n.configurations...)
}

// AddFolder returns the child folder called name, creating it when absent.
// The folder GUID is derived from the parent GUID and the name.
func (n *Node) AddFolder(name string) (*Node, bool) {
	for _, c := range n.children {
		if c.Kind == KindFolder && c.Name == name {
			return c, false
		}
	}
	child := &Node{
		Kind:         KindFolder,
		GUID:         guid.V5(n.GUID, name),
		TypeGUID:     slnfile.TypeFolder,
		Name:         name,
		RelativePath: name,
		parent:       n,
	}
	n.children = append(n.children, child)
	return child, true
}

// AddProject returns the child project at relativePath, creating it with
// id when absent.
func (n *Node) AddProject(id uuid.UUID, relativePath string) (*Node, bool, error) {
	for _, c := range n.children {
		if c.Kind == KindProject && c.RelativePath == relativePath {
			return c, false, nil
		}
	}
	typeGUID, err := ProjectTypeGUID(relativePath)
	if err != nil {
		return nil, false, err
	}
	child := &Node{
		Kind:         KindProject,
		GUID:         id,
		TypeGUID:     typeGUID,
		Name:         pathutil.NameWithoutExt(relativePath),
		RelativePath: relativePath,
		parent:       n,
	}
	n.children = append(n.children, child)
	return child, true, nil
}

// AddConfigurationMap adds a row, or updates BuildEnabled on the existing
// row with the same (Solution, Project) pair.
func (n *Node) AddConfigurationMap(m ConfigurationMap) {
	for i := range n.configurations {
		if n.configurations[i].SameKey(m) {
			n.configurations[i].BuildEnabled = m.BuildEnabled
			return
		}
	}
	n.configurations = append(n.configurations, m)
}

// Walk visits n and its descendants depth first, children in insertion
// order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// FolderPath returns the slash separated folder path of n's ancestors.
func (n *Node) FolderPath() string {
	var parts []string
	for p := n.parent; p != nil && p.Kind == KindFolder; p = p.parent {
		parts = append([]string{p.Name}, parts...)
	}
	return strings.Join(parts, "/")
}
