// Package consolidate gathers the items of a project's referenced projects
// so they can be compiled as part of that project.
package consolidate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/xamarin/mirepoix/internal/depgraph"
	"github.com/xamarin/mirepoix/internal/logging"
	"github.com/xamarin/mirepoix/internal/msbuild"
	"github.com/xamarin/mirepoix/internal/pathutil"
)

var (
	// ErrLoadFailures is returned when a project in the closure failed to
	// load.
	ErrLoadFailures = errors.New("consolidate: projects failed to load")
)

// Metadata names that hold paths relative to the defining project.
var embeddedResourcePathMetadata = []string{"DependentUpon", "LastGenOutput"}

var separatorRun = regexp.MustCompile(`[\\/]+`)

// RemoveRule drops items of ItemType whose include matches Pattern.
type RemoveRule struct {
	ItemType string `yaml:"itemType" json:"itemType"`
	Pattern  string `yaml:"pattern" json:"pattern"`
}

type compiledRule struct {
	itemType string
	re       *regexp.Regexp
}

// Options configures Prepare.
type Options struct {
	// ConditionMetadata, when set, restricts consolidation to projects
	// referenced at least once with this metadata set to true.
	ConditionMetadata string
	RemoveRules       []RemoveRule
	GlobalProperties  map[string]string
	Evaluator         msbuild.Evaluator
	Logger            *slog.Logger
}

// Item is one consolidated item.
type Item struct {
	Include  string            `yaml:"include" json:"include"`
	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Project  string            `yaml:"project" json:"project"`
}

// Result holds the consolidated items by type, in evaluation order.
type Result struct {
	Projects         []string `yaml:"projects" json:"projects"`
	Compile          []Item   `yaml:"compile,omitempty" json:"compile,omitempty"`
	ProjectReference []Item   `yaml:"projectReference,omitempty" json:"projectReference,omitempty"`
	Reference        []Item   `yaml:"reference,omitempty" json:"reference,omitempty"`
	EmbeddedResource []Item   `yaml:"embeddedResource,omitempty" json:"embeddedResource,omitempty"`
	PackageReference []Item   `yaml:"packageReference,omitempty" json:"packageReference,omitempty"`
}

// Prepare loads the reference graph of the project at projectPath and
// collects the items of every project it depends on. Item includes are
// made absolute where they name files and each include is kept once, the
// first occurrence winning. Package references are merged by id, keeping
// the highest version.
func Prepare(ctx context.Context, projectPath string, opts Options) (*Result, error) {
	logger := logging.OrDiscard(opts.Logger)
	rules, err := compileRules(opts.RemoveRules)
	if err != nil {
		return nil, err
	}

	loadOpts := []depgraph.Option{depgraph.WithLogger(logger)}
	if opts.Evaluator != nil {
		loadOpts = append(loadOpts, depgraph.WithEvaluator(opts.Evaluator))
	}
	g, err := depgraph.Load(ctx, depgraph.Create([]string{projectPath}, opts.GlobalProperties), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", projectPath, err)
	}
	if err := g.LoadErrors(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailures, err)
	}

	root := pathutil.ResolveFull(projectPath)
	var selected []*depgraph.Node
	consolidated := make(map[string]bool)
	for _, n := range g.TopologicallySortedNodes() {
		if n.ProjectPath == root || !wanted(n, opts.ConditionMetadata) {
			continue
		}
		selected = append(selected, n)
		consolidated[n.ProjectPath] = true
	}

	c := &collector{
		result:   &Result{},
		seen:     make(map[string]bool),
		packages: make(map[string]int),
		logger:   logger,
	}
	for _, n := range selected {
		c.result.Projects = append(c.result.Projects, n.ProjectPath)
		for _, it := range n.Project.Items() {
			if excluded(it, rules) {
				continue
			}
			c.add(n, it, consolidated)
		}
	}
	logger.Info("consolidated projects", "project", root, "projects", len(selected))
	return c.result, nil
}

func compileRules(rules []RemoveRule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("remove rule for %s: %w", r.ItemType, err)
		}
		out = append(out, compiledRule{itemType: r.ItemType, re: re})
	}
	return out, nil
}

func excluded(it msbuild.Item, rules []compiledRule) bool {
	for _, r := range rules {
		if strings.EqualFold(it.ItemType, r.itemType) && r.re.MatchString(it.Include) {
			return true
		}
	}
	return false
}

// wanted reports whether n is referenced with the condition metadata set
// to true. Every node is wanted when name is empty.
func wanted(n *depgraph.Node, name string) bool {
	if name == "" {
		return true
	}
	for _, ref := range n.ProjectReferenceItems() {
		if strings.EqualFold(strings.TrimSpace(ref.MetadataValue(name)), "true") {
			return true
		}
	}
	return false
}

type collector struct {
	result   *Result
	seen     map[string]bool
	packages map[string]int
	logger   *slog.Logger
}

func (c *collector) add(n *depgraph.Node, it msbuild.Item, consolidated map[string]bool) {
	dir := n.Project.Directory
	include := it.Include
	fullPath := pathutil.ResolveFull(dir, include)
	meta := metadataMap(it)

	var list *[]Item
	switch strings.ToLower(it.ItemType) {
	case "compile":
		list, include = &c.result.Compile, fullPath
	case "projectreference":
		if consolidated[fullPath] {
			return
		}
		list, include = &c.result.ProjectReference, fullPath
	case "reference":
		list = &c.result.Reference
	case "embeddedresource":
		for _, name := range embeddedResourcePathMetadata {
			if v, ok := it.LookupMetadata(name); ok {
				setMetadata(meta, name, pathutil.ResolveFull(dir, v))
			}
		}
		logical := logicalResourceName(n.Project, it)
		setMetadata(meta, "LogicalResource", logical)
		if strings.HasSuffix(strings.ToLower(logical), ".resx") {
			setMetadata(meta, "ManifestResourceName", strings.TrimSuffix(logical, filepath.Ext(logical)))
		}
		list, include = &c.result.EmbeddedResource, fullPath
	case "packagereference":
		c.addPackage(n, it, meta)
		return
	default:
		return
	}

	if c.seen[include] {
		return
	}
	c.seen[include] = true
	*list = append(*list, Item{Include: include, Metadata: meta, Project: n.ProjectPath})
}

// addPackage merges package references by id, keeping the highest
// version. Versions that are not semantic versions never replace one that
// is.
func (c *collector) addPackage(n *depgraph.Node, it msbuild.Item, meta map[string]string) {
	id := strings.ToLower(it.Include)
	i, ok := c.packages[id]
	if !ok {
		c.packages[id] = len(c.result.PackageReference)
		c.result.PackageReference = append(c.result.PackageReference, Item{Include: it.Include, Metadata: meta, Project: n.ProjectPath})
		return
	}

	existing := &c.result.PackageReference[i]
	current, currentErr := semver.NewVersion(existing.Metadata["Version"])
	candidate, err := semver.NewVersion(it.MetadataValue("Version"))
	if err != nil {
		c.logger.Debug("ignoring package version", "package", it.Include, "version", it.MetadataValue("Version"), "project", n.ProjectPath)
		return
	}
	if currentErr == nil && !candidate.GreaterThan(current) {
		return
	}
	c.logger.Debug("raising package version", "package", it.Include, "from", existing.Metadata["Version"], "to", candidate.Original())
	existing.Metadata = meta
	existing.Project = n.ProjectPath
}

// logicalResourceName returns the item's LogicalResource metadata, or the
// root namespace (falling back to the project name) joined with the
// include, separators turned into dots.
func logicalResourceName(p *msbuild.Project, it msbuild.Item) string {
	if v := it.MetadataValue("LogicalResource"); v != "" {
		return v
	}
	name := it.Include
	if rel, err := pathutil.Rel(p.Directory, pathutil.ResolveFull(p.Directory, it.Include)); err == nil {
		name = rel
	}
	name = separatorRun.ReplaceAllString(name, ".")

	prefix := p.Property("RootNamespace")
	if prefix == "" && p.FullPath != "" {
		prefix = pathutil.NameWithoutExt(p.FullPath)
	}
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// metadataMap copies the item's metadata. Version is always stored under
// that spelling so package merging can find it.
func metadataMap(it msbuild.Item) map[string]string {
	m := make(map[string]string, len(it.Metadata))
	for _, md := range it.Metadata {
		if strings.EqualFold(md.Name, "Version") {
			m["Version"] = md.Value
			continue
		}
		setMetadata(m, md.Name, md.Value)
	}
	return m
}

func setMetadata(m map[string]string, name, value string) {
	for k := range m {
		if strings.EqualFold(k, name) {
			delete(m, k)
		}
	}
	m[name] = value
}
