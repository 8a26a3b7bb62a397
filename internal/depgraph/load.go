package depgraph

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/xamarin/mirepoix/internal/logging"
	"github.com/xamarin/mirepoix/internal/msbuild"
	"github.com/xamarin/mirepoix/internal/pathutil"
	"github.com/xamarin/mirepoix/internal/slnfile"
)

// SolutionReader lists the projects of a solution file.
type SolutionReader interface {
	ReadProjects(path string) ([]slnfile.ProjectRef, error)
}

// SolutionReaderFunc adapts a function to SolutionReader.
type SolutionReaderFunc func(path string) ([]slnfile.ProjectRef, error)

func (f SolutionReaderFunc) ReadProjects(path string) ([]slnfile.ProjectRef, error) {
	return f(path)
}

type options struct {
	evaluator msbuild.Evaluator
	solutions SolutionReader
	logger    *slog.Logger
	nodeID    func(path string, index int) string
}

// Option configures Load.
type Option func(*options)

// WithEvaluator sets the project evaluator. The default evaluates project
// XML directly.
func WithEvaluator(e msbuild.Evaluator) Option {
	return func(o *options) { o.evaluator = e }
}

// WithSolutionReader sets how .sln roots are expanded.
func WithSolutionReader(r SolutionReader) Option {
	return func(o *options) { o.solutions = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithNodeID sets how node IDs are assigned. index is the number of nodes
// created before this one. The default uses the index.
func WithNodeID(f func(path string, index int) string) Option {
	return func(o *options) { o.nodeID = f }
}

func buildOptions(opts []Option) options {
	o := options{
		solutions: SolutionReaderFunc(slnfile.ReadProjects),
		nodeID:    func(_ string, index int) string { return strconv.Itoa(index) },
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrDiscard(o.logger)
	if o.evaluator == nil {
		o.evaluator = msbuild.NewXMLEvaluator(msbuild.WithLogger(o.logger))
	}
	return o
}

// loader holds the state of a single Load call.
type loader struct {
	ctx   context.Context
	opts  options
	graph *Graph
	edges map[[2]*Node]bool
}

// Load evaluates every root and, recursively, every project it references.
// A root that does not exist fails with ErrNotFound. Evaluation failures and
// missing references are attached to the affected node instead of failing
// the load. On cancellation the partially loaded graph is returned together
// with the context's error.
func Load(ctx context.Context, spec Spec, opts ...Option) (*Graph, error) {
	l := &loader{
		ctx:  ctx,
		opts: buildOptions(opts),
		graph: &Graph{
			Spec:  spec,
			nodes: make(map[string]*Node),
		},
		edges: make(map[[2]*Node]bool),
	}
	for _, root := range spec.Roots {
		if err := ctx.Err(); err != nil {
			return l.graph, fmt.Errorf("load graph: %w", err)
		}
		if err := l.loadRoot(root); err != nil {
			return l.graph, err
		}
	}
	return l.graph, nil
}

// Result is delivered by LoadAsync.
type Result struct {
	Graph *Graph
	Err   error
}

// LoadAsync runs Load on a new goroutine. The returned channel receives
// exactly one Result and is then closed.
func LoadAsync(ctx context.Context, spec Spec, opts ...Option) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		g, err := Load(ctx, spec, opts...)
		ch <- Result{Graph: g, Err: err}
	}()
	return ch
}

func (l *loader) loadRoot(root string) error {
	path := pathutil.ResolveFull(root)
	if !pathutil.IsFile(path) {
		return fmt.Errorf("%w: %s", ErrNotFound, root)
	}
	if pathutil.Ext(path) != ".sln" {
		n, err := l.loadProject(path)
		if err != nil {
			return err
		}
		l.addRoot(n)
		return nil
	}

	refs, err := l.opts.solutions.ReadProjects(path)
	if err != nil {
		return fmt.Errorf("read solution %s: %w", path, err)
	}
	for _, ref := range refs {
		if err := l.ctx.Err(); err != nil {
			return fmt.Errorf("load graph: %w", err)
		}
		if !ref.Buildable {
			continue
		}
		n, err := l.loadProject(pathutil.ResolveFull(filepath.Dir(path), ref.RelativePath))
		if err != nil {
			return err
		}
		l.addRoot(n)
	}
	return nil
}

func (l *loader) addRoot(n *Node) {
	for _, r := range l.graph.roots {
		if r == n {
			return
		}
	}
	l.graph.roots = append(l.graph.roots, n)
}

// loadProject visits path once, recursing into its references before the
// node is appended to the sorted list.
func (l *loader) loadProject(path string) (*Node, error) {
	if err := l.ctx.Err(); err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	path = pathutil.ResolveFull(path)
	if n, ok := l.graph.nodes[path]; ok {
		return n, nil
	}

	n := newNode(path, l.opts.nodeID(path, len(l.graph.nodes)))
	l.graph.nodes[path] = n

	project, err := l.opts.evaluator.Evaluate(l.ctx, path, l.graph.Spec.GlobalProperties)
	if err != nil {
		if ctxErr := l.ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("load graph: %w", ctxErr)
		}
		l.opts.logger.Warn("project failed to evaluate", "project", path, "error", err)
		n.addLoadErr(fmt.Errorf("evaluate %s: %w", path, err))
		l.graph.sorted = append(l.graph.sorted, n)
		return n, nil
	}
	n.Project = project
	l.opts.logger.Debug("evaluated project", "project", path)

	for _, item := range project.ItemsOfType(msbuild.ItemProjectReference) {
		if err := l.ctx.Err(); err != nil {
			return nil, fmt.Errorf("load graph: %w", err)
		}
		refPath := pathutil.ResolveFull(project.Directory, item.Include)
		if !pathutil.IsFile(refPath) {
			n.addLoadErr(&MissingReferenceError{Project: path, Reference: refPath})
			continue
		}
		dep, err := l.loadProject(refPath)
		if err != nil {
			return nil, err
		}
		dep.addParent(n)
		dep.addProjectReferenceItem(n, item)
		l.addEdge(dep, n)
	}

	l.graph.sorted = append(l.graph.sorted, n)
	return n, nil
}

func (l *loader) addEdge(dependency, dependent *Node) {
	key := [2]*Node{dependency, dependent}
	if l.edges[key] {
		return
	}
	l.edges[key] = true
	l.graph.relationships = append(l.graph.relationships, Relationship{
		Dependency: dependency,
		Dependent:  dependent,
	})
}
