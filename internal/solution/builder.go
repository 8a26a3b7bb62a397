// Package solution builds a solution tree from a traversal project and
// writes it as a Visual Studio solution file.
//
// The tree is populated by evaluating the traversal project's dependency
// graph once per declared solution configuration. Identifiers are stable:
// projects without an explicit ProjectGuid get a name-based UUID derived
// from their path relative to the solution, and folders derive theirs from
// their parent.
package solution

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/xamarin/mirepoix/internal/guid"
	"github.com/xamarin/mirepoix/internal/logging"
	"github.com/xamarin/mirepoix/internal/pathutil"
)

// ProjectNamespace is the v5 UUID namespace for derived project GUIDs.
var ProjectNamespace = guid.MustParse("{17ad6350-380a-4d65-9b2c-aa44b5da8111}")

// Builder accumulates the solution tree and its configuration list.
type Builder struct {
	FileName string

	root           *Node
	configurations []ConfigurationPlatform
	projects       map[string]*Node
	policy         ConflictPolicy
	logger         *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBuilderLogger sets the builder's logger.
func WithBuilderLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// WithPlacementPolicy sets how a project already placed in a different
// folder is handled. Only ConflictError changes behaviour: the project
// keeps its first placement otherwise.
func WithPlacementPolicy(p ConflictPolicy) BuilderOption {
	return func(b *Builder) { b.policy = p }
}

// NewBuilder returns an empty builder for the solution at fileName. Project
// paths are made relative to fileName's directory.
func NewBuilder(fileName string, opts ...BuilderOption) *Builder {
	b := &Builder{
		FileName: fileName,
		root:     newRoot(),
		projects: make(map[string]*Node),
	}
	for _, o := range opts {
		o(b)
	}
	b.logger = logging.OrDiscard(b.logger)
	return b
}

// Root returns the tree root.
func (b *Builder) Root() *Node { return b.root }

// SolutionConfigurations returns the declared solution configurations in
// declaration order.
func (b *Builder) SolutionConfigurations() []ConfigurationPlatform {
	return append([]ConfigurationPlatform(nil), b.configurations...)
}

// AddSolutionConfiguration appends c unless an equal configuration exists.
func (b *Builder) AddSolutionConfiguration(c ConfigurationPlatform) {
	for _, existing := range b.configurations {
		if existing.Equal(c) {
			return
		}
	}
	b.configurations = append(b.configurations, c)
}

func (b *Builder) solutionDir() string {
	dir := filepath.Dir(b.FileName)
	if dir == "" {
		return "."
	}
	return dir
}

// DeriveProjectGUID returns the identifier used for a project without an
// explicit one: a v5 UUID of its forward-slash relative path.
func (b *Builder) DeriveProjectGUID(projectPath string) (uuid.UUID, error) {
	rel, err := pathutil.Rel(b.solutionDir(), projectPath)
	if err != nil {
		return uuid.Nil, fmt.Errorf("relative path of %s: %w", projectPath, err)
	}
	return guid.V5(ProjectNamespace, pathutil.ToSlash(rel)), nil
}

// AddProject places the project at projectPath under folder (a '/' or '\'
// separated path, possibly empty). id may be uuid.Nil to derive one. Adding
// the same project again returns the existing node.
func (b *Builder) AddProject(projectPath, folder string, id uuid.UUID) (*Node, error) {
	rel, err := pathutil.Rel(b.solutionDir(), projectPath)
	if err != nil {
		return nil, fmt.Errorf("relative path of %s: %w", projectPath, err)
	}
	if _, err := ProjectTypeGUID(rel); err != nil {
		return nil, err
	}
	key := pathutil.ToSlash(rel)
	folder = normalizeFolder(folder)

	if existing, ok := b.projects[key]; ok {
		// An empty folder expresses no placement.
		if placed := existing.FolderPath(); folder != "" && placed != folder {
			if b.policy == ConflictPolicyError {
				return nil, &ConflictError{Project: projectPath, Field: "SolutionFolder", Values: []string{placed, folder}}
			}
			b.logger.Warn("project already placed in another folder", "project", key, "folder", placed, "ignored", folder)
		}
		return existing, nil
	}

	if id == uuid.Nil {
		id = guid.V5(ProjectNamespace, key)
	}

	parent := b.root
	if folder != "" {
		for _, name := range strings.Split(folder, "/") {
			child, added := parent.AddFolder(name)
			if added {
				b.logger.Info("added solution folder", "folder", strings.TrimPrefix(child.FolderPath()+"/"+name, "/"))
			}
			parent = child
		}
	}

	node, added, err := parent.AddProject(id, rel)
	if err != nil {
		return nil, err
	}
	if added {
		b.logger.Info("added project", "project", rel, "guid", guid.Format(id))
		b.logger.Debug("project paths", "solutionDirectory", b.solutionDir(), "projectPath", projectPath)
	}
	b.projects[key] = node
	return node, nil
}

// normalizeFolder converts either separator to '/' and drops empty
// segments.
func normalizeFolder(folder string) string {
	var parts []string
	for _, p := range strings.Split(pathutil.ToSlash(folder), "/") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "/")
}
