// Package depgraph discovers project-to-project references and orders the
// resulting projects so that every project follows its dependencies.
//
// A Graph is built for exactly one set of global properties: different
// properties can select different references, so callers that need several
// configurations build several graphs.
package depgraph

import (
	"errors"
	"fmt"
	"maps"

	"github.com/xamarin/mirepoix/internal/msbuild"
	"github.com/xamarin/mirepoix/internal/pathutil"
)

var (
	// ErrNotFound is returned when a root project or solution does not exist.
	ErrNotFound = errors.New("depgraph: project not found")
)

// MissingReferenceError is attached to a node whose project references a
// file that does not exist.
type MissingReferenceError struct {
	Project   string
	Reference string
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("%s: <ProjectReference> does not exist: %s", e.Project, e.Reference)
}

// Spec describes a graph to load: the root project or solution paths and
// the global properties applied to every evaluation.
type Spec struct {
	Roots            []string
	GlobalProperties map[string]string
}

// Create returns a Spec. It does not touch the file system.
func Create(roots []string, globalProperties map[string]string) Spec {
	return Spec{
		Roots:            append([]string(nil), roots...),
		GlobalProperties: maps.Clone(globalProperties),
	}
}

// Node is one project in a graph. Nodes are only mutated while the graph
// is loading.
type Node struct {
	ProjectPath string
	ID          string
	Label       string

	// Project is nil when evaluation failed, in which case LoadErr is set.
	Project *msbuild.Project
	LoadErr error

	parents        []*Node
	referenceItems []msbuild.Item
	referenceKeys  map[string]bool
}

func newNode(path, id string) *Node {
	return &Node{
		ProjectPath:   path,
		ID:            id,
		Label:         pathutil.NameWithoutExt(path),
		referenceKeys: make(map[string]bool),
	}
}

// Parents returns the distinct nodes that reference n, in discovery order.
func (n *Node) Parents() []*Node {
	return append([]*Node(nil), n.parents...)
}

// ProjectReferenceItems returns the ProjectReference items, as written in
// the referencing projects, that resolved to n.
func (n *Node) ProjectReferenceItems() []msbuild.Item {
	return append([]msbuild.Item(nil), n.referenceItems...)
}

func (n *Node) String() string {
	return n.ID + ":" + n.Label
}

func (n *Node) addParent(parent *Node) {
	if parent == nil {
		return
	}
	for _, p := range n.parents {
		if p == parent {
			return
		}
	}
	n.parents = append(n.parents, parent)
}

func (n *Node) addProjectReferenceItem(from *Node, item msbuild.Item) {
	key := from.ProjectPath + "\x00" + item.Key()
	if n.referenceKeys[key] {
		return
	}
	n.referenceKeys[key] = true
	n.referenceItems = append(n.referenceItems, item)
}

func (n *Node) addLoadErr(err error) {
	n.LoadErr = errors.Join(n.LoadErr, err)
}

// Relationship is a reference edge: Dependent references Dependency.
type Relationship struct {
	Dependency *Node
	Dependent  *Node
}

// Graph is a loaded dependency graph.
type Graph struct {
	Spec Spec

	nodes         map[string]*Node
	roots         []*Node
	sorted        []*Node
	relationships []Relationship
}

// TopologicallySortedNodes returns every node, dependencies first.
func (g *Graph) TopologicallySortedNodes() []*Node {
	return append([]*Node(nil), g.sorted...)
}

// Roots returns the nodes loaded directly from the spec's roots, including
// the members of root solutions, in load order.
func (g *Graph) Roots() []*Node {
	return append([]*Node(nil), g.roots...)
}

// Node returns the node for path, or nil.
func (g *Graph) Node(path string) *Node {
	return g.nodes[pathutil.ResolveFull(path)]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.sorted)
}

// Relationships returns every distinct reference edge in discovery order.
func (g *Graph) Relationships() []Relationship {
	return append([]Relationship(nil), g.relationships...)
}

// LoadErrors joins the load errors of every node, in topological order. It
// returns nil when all nodes loaded.
func (g *Graph) LoadErrors() error {
	var errs []error
	for _, n := range g.sorted {
		if n.LoadErr != nil {
			errs = append(errs, n.LoadErr)
		}
	}
	return errors.Join(errs...)
}
