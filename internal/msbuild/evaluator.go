package msbuild

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"

	"github.com/xamarin/mirepoix/internal/logging"
	"github.com/xamarin/mirepoix/internal/pathutil"
)

// Evaluator turns a project file plus a set of global properties into an
// evaluated Project. Implementations must return an error wrapping
// ErrInvalidProject for input that is not a project file.
type Evaluator interface {
	Evaluate(ctx context.Context, path string, globalProperties map[string]string) (*Project, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, path string, globalProperties map[string]string) (*Project, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, path string, globalProperties map[string]string) (*Project, error) {
	return f(ctx, path, globalProperties)
}

// XMLEvaluator evaluates project files directly from their XML.
type XMLEvaluator struct {
	logger *slog.Logger
}

// XMLOption configures an XMLEvaluator.
type XMLOption func(*XMLEvaluator)

// WithLogger sets the logger used for evaluation diagnostics.
func WithLogger(l *slog.Logger) XMLOption {
	return func(e *XMLEvaluator) { e.logger = l }
}

// NewXMLEvaluator returns an evaluator that reads project XML from disk.
func NewXMLEvaluator(opts ...XMLOption) *XMLEvaluator {
	e := &XMLEvaluator{}
	for _, o := range opts {
		o(e)
	}
	e.logger = logging.OrDiscard(e.logger)
	return e
}

var reservedProperties = map[string]bool{
	"msbuildprojectdirectory":  true,
	"msbuildprojectfullpath":   true,
	"msbuildprojectname":       true,
	"msbuildprojectfile":       true,
	"msbuildprojectextension":  true,
	"msbuildthisfiledirectory": true,
	"msbuildthisfilefullpath":  true,
	"msbuildthisfile":          true,
	"msbuildthisfilename":      true,
	"msbuildthisfileextension": true,
}

// Evaluate implements Evaluator.
func (e *XMLEvaluator) Evaluate(ctx context.Context, path string, globalProperties map[string]string) (*Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full := pathutil.ResolveFull(path)
	root, err := readXMLFile(full)
	if err != nil {
		return nil, err
	}
	if !root.is("Project") {
		return nil, fmt.Errorf("%w: %s: root element is <%s>", ErrInvalidProject, full, root.Name)
	}

	globals := make(map[string]string, len(globalProperties))
	for k, v := range globalProperties {
		globals[k] = v
	}

	ev := &evaluation{
		ctx:       ctx,
		logger:    e.logger.With("project", full),
		project:   newProject(full, filepath.Dir(full), globals),
		imported:  map[string]bool{full: true},
		defaults:  make(map[string][]Metadatum),
		configSet: make(map[string]bool),
	}
	ev.setReserved(full)
	keys := make([]string, 0, len(globals))
	for k := range globals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.project.setProperty(k, globals[k])
	}

	if err := ev.evalFile(root, full); err != nil {
		return nil, err
	}
	for _, g := range ev.itemGroups {
		if err := ev.evalItemGroup(g); err != nil {
			return nil, err
		}
	}
	return ev.project, nil
}

type deferredGroup struct {
	el   *element
	file string
}

type evaluation struct {
	ctx        context.Context
	logger     *slog.Logger
	project    *Project
	imported   map[string]bool
	itemGroups []deferredGroup
	defaults   map[string][]Metadatum
	configSet  map[string]bool
}

func (ev *evaluation) setReserved(full string) {
	p := ev.project
	ext := filepath.Ext(full)
	p.setProperty("MSBuildProjectFullPath", full)
	p.setProperty("MSBuildProjectDirectory", filepath.Dir(full))
	p.setProperty("MSBuildProjectFile", filepath.Base(full))
	p.setProperty("MSBuildProjectName", strings.TrimSuffix(filepath.Base(full), ext))
	p.setProperty("MSBuildProjectExtension", ext)
	ev.setThisFile(full)
}

func (ev *evaluation) setThisFile(file string) {
	p := ev.project
	ext := filepath.Ext(file)
	p.setProperty("MSBuildThisFileFullPath", file)
	p.setProperty("MSBuildThisFileDirectory", filepath.Dir(file)+string(filepath.Separator))
	p.setProperty("MSBuildThisFile", filepath.Base(file))
	p.setProperty("MSBuildThisFileName", strings.TrimSuffix(filepath.Base(file), ext))
	p.setProperty("MSBuildThisFileExtension", ext)
}

func (ev *evaluation) expander() *expander {
	return &expander{
		property: ev.project.Property,
		items:    ev.project.ItemsOfType,
	}
}

func (ev *evaluation) condition(el *element, file string) (bool, error) {
	cond, ok := el.attr("Condition")
	if !ok {
		return true, nil
	}
	v, err := evalCondition(cond, ev.expander(), filepath.Dir(file))
	if err != nil {
		return false, fmt.Errorf("%s: <%s>: %w", file, el.Name, err)
	}
	return v, nil
}

// evalFile runs the property pass over the children of a <Project> element
// and queues item groups for the item pass.
func (ev *evaluation) evalFile(root *element, file string) error {
	for _, child := range root.Children {
		if err := ev.ctx.Err(); err != nil {
			return err
		}
		if err := ev.evalTopLevel(child, file); err != nil {
			return err
		}
	}
	return nil
}

func (ev *evaluation) evalTopLevel(el *element, file string) error {
	switch {
	case el.is("PropertyGroup"):
		return ev.evalPropertyGroup(el, file)
	case el.is("ItemGroup"):
		ev.itemGroups = append(ev.itemGroups, deferredGroup{el: el, file: file})
	case el.is("ItemDefinitionGroup"):
		return ev.evalItemDefinitionGroup(el, file)
	case el.is("Import"):
		return ev.evalImport(el, file)
	case el.is("ImportGroup"):
		ok, err := ev.condition(el, file)
		if err != nil || !ok {
			return err
		}
		for _, child := range el.Children {
			if child.is("Import") {
				if err := ev.evalImport(child, file); err != nil {
					return err
				}
			}
		}
	case el.is("Choose"):
		return ev.evalChoose(el, file)
	}
	return nil
}

func (ev *evaluation) evalPropertyGroup(el *element, file string) error {
	if cond, ok := el.attr("Condition"); ok {
		ev.recordConfiguration(cond)
	}
	ok, err := ev.condition(el, file)
	if err != nil || !ok {
		return err
	}
	for _, prop := range el.Children {
		ok, err := ev.condition(prop, file)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		name := prop.Name
		if ev.project.isGlobal(name) || reservedProperties[strings.ToLower(name)] {
			ev.logger.Debug("ignoring assignment to read-only property", "property", name)
			continue
		}
		ev.project.setProperty(name, ev.expander().expand(strings.TrimSpace(prop.Text)))
	}
	return nil
}

// recordConfiguration captures "Configuration|Platform" pairs from
// conditions such as '$(Configuration)|$(Platform)' == 'Release|AnyCPU'.
func (ev *evaluation) recordConfiguration(cond string) {
	left, right, ok := StringEqualOperands(cond)
	if !ok {
		return
	}
	left = strings.ReplaceAll(left, " ", "")
	if !strings.EqualFold(left, "$(Configuration)|$(Platform)") {
		return
	}
	right = strings.TrimSpace(right)
	if right == "" || ev.configSet[strings.ToLower(right)] {
		return
	}
	ev.configSet[strings.ToLower(right)] = true
	ev.project.configurations = append(ev.project.configurations, right)
}

func (ev *evaluation) evalItemDefinitionGroup(el *element, file string) error {
	ok, err := ev.condition(el, file)
	if err != nil || !ok {
		return err
	}
	for _, def := range el.Children {
		ok, err := ev.condition(def, file)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		key := strings.ToLower(def.Name)
		for _, m := range def.Children {
			ok, err := ev.condition(m, file)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			ev.defaults[key] = setMetadatum(ev.defaults[key], m.Name, ev.expander().expand(strings.TrimSpace(m.Text)))
		}
	}
	return nil
}

func setMetadatum(list []Metadatum, name, value string) []Metadatum {
	for i := range list {
		if strings.EqualFold(list[i].Name, name) {
			list[i].Value = value
			return list
		}
	}
	return append(list, Metadatum{Name: name, Value: value})
}

func (ev *evaluation) evalChoose(el *element, file string) error {
	for _, branch := range el.Children {
		var take bool
		switch {
		case branch.is("When"):
			ok, err := ev.condition(branch, file)
			if err != nil {
				return err
			}
			take = ok
		case branch.is("Otherwise"):
			take = true
		}
		if !take {
			continue
		}
		for _, child := range branch.Children {
			if err := ev.evalTopLevel(child, file); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

func (ev *evaluation) evalImport(el *element, file string) error {
	ok, err := ev.condition(el, file)
	if err != nil || !ok {
		return err
	}
	spec := strings.TrimSpace(ev.expander().expand(el.attrValue("Project")))
	if spec == "" {
		return fmt.Errorf("%s: <Import> without Project", file)
	}
	target := resolveIn(filepath.Dir(file), spec)

	var paths []string
	if strings.ContainsAny(target, "*?") {
		paths, err = doublestar.Glob(target)
		if err != nil {
			return fmt.Errorf("%s: import %s: %w", file, spec, err)
		}
		sort.Strings(paths)
	} else {
		if !pathutil.IsFile(target) {
			return fmt.Errorf("%w: %s (imported by %s)", ErrImportNotFound, target, file)
		}
		paths = []string{target}
	}

	for _, p := range paths {
		p = pathutil.ResolveFull(p)
		if ev.imported[p] {
			ev.logger.Debug("skipping duplicate import", "import", p)
			continue
		}
		ev.imported[p] = true
		root, err := readXMLFile(p)
		if err != nil {
			return err
		}
		if !root.is("Project") {
			return fmt.Errorf("%w: %s: root element is <%s>", ErrInvalidProject, p, root.Name)
		}
		ev.project.imports = append(ev.project.imports, p)
		ev.setThisFile(p)
		err = ev.evalFile(root, p)
		ev.setThisFile(file)
		if err != nil {
			return err
		}
	}
	return nil
}

func (ev *evaluation) evalItemGroup(g deferredGroup) error {
	ev.setThisFile(g.file)
	defer ev.setThisFile(ev.project.FullPath)

	ok, err := ev.condition(g.el, g.file)
	if err != nil || !ok {
		return err
	}
	for _, el := range g.el.Children {
		if err := ev.ctx.Err(); err != nil {
			return err
		}
		ok, err := ev.condition(el, g.file)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := ev.evalItem(el, g.file); err != nil {
			return err
		}
	}
	return nil
}

// isItemAttribute reports whether an item attribute is an operation rather
// than metadata.
func isItemAttribute(name string) bool {
	switch strings.ToLower(name) {
	case "include", "exclude", "remove", "update", "condition",
		"keepmetadata", "removemetadata", "keepduplicates",
		"matchonmetadata", "matchonmetadataoptions":
		return true
	}
	return false
}

func (ev *evaluation) evalItem(el *element, file string) error {
	dir := filepath.Dir(file)
	exp := ev.expander()

	if remove, ok := el.attr("Remove"); ok {
		patterns := splitList(exp.expand(remove))
		kept := ev.project.items[:0]
		for _, it := range ev.project.items {
			if strings.EqualFold(it.ItemType, el.Name) && matchesAny(it, patterns, dir) {
				continue
			}
			kept = append(kept, it)
		}
		ev.project.items = kept
		return nil
	}

	if update, ok := el.attr("Update"); ok {
		patterns := splitList(exp.expand(update))
		for i := range ev.project.items {
			it := &ev.project.items[i]
			if strings.EqualFold(it.ItemType, el.Name) && matchesAny(*it, patterns, dir) {
				if err := ev.applyMetadata(it, el, file); err != nil {
					return err
				}
			}
		}
		return nil
	}

	include, ok := el.attr("Include")
	if !ok {
		return fmt.Errorf("%w: %s: <%s> has no Include, Remove or Update", ErrInvalidProject, file, el.Name)
	}
	includes, err := expandIncludes(splitList(exp.expand(include)), dir)
	if err != nil {
		return fmt.Errorf("%s: <%s Include=%q>: %w", file, el.Name, include, err)
	}
	excludes := splitList(exp.expand(el.attrValue("Exclude")))

	for _, inc := range includes {
		it := Item{ItemType: el.Name, Include: inc, DefiningProject: file}
		if len(excludes) > 0 && matchesAny(it, excludes, dir) {
			continue
		}
		for _, m := range ev.defaults[strings.ToLower(el.Name)] {
			it.setMetadata(m.Name, m.Value)
		}
		if err := ev.applyMetadata(&it, el, file); err != nil {
			return err
		}
		ev.project.items = append(ev.project.items, it)
	}
	return nil
}

// applyMetadata sets metadata from non-reserved attributes and child
// elements, expanding %(...) against the item itself.
func (ev *evaluation) applyMetadata(it *Item, el *element, file string) error {
	set := func(name, raw string) {
		exp := &expander{
			property: ev.project.Property,
			items:    ev.project.ItemsOfType,
			metadata: itemMetadata(*it),
		}
		it.setMetadata(name, exp.expand(strings.TrimSpace(raw)))
	}
	for _, a := range el.Attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" || isItemAttribute(a.Name.Local) {
			continue
		}
		set(a.Name.Local, a.Value)
	}
	for _, m := range el.Children {
		if cond, ok := m.attr("Condition"); ok {
			exp := &expander{property: ev.project.Property, items: ev.project.ItemsOfType, metadata: itemMetadata(*it)}
			v, err := evalCondition(cond, exp, filepath.Dir(file))
			if err != nil {
				return fmt.Errorf("%s: <%s>: %w", file, m.Name, err)
			}
			if !v {
				continue
			}
		}
		set(m.Name, m.Text)
	}
	return nil
}

func hasWildcard(s string) bool {
	return strings.ContainsAny(s, "*?")
}

// expandIncludes expands wildcard entries against the file system relative
// to dir. Plain entries are kept verbatim.
func expandIncludes(specs []string, dir string) ([]string, error) {
	var out []string
	for _, spec := range specs {
		if !hasWildcard(spec) {
			out = append(out, spec)
			continue
		}
		pattern := pathutil.Normalize(spec)
		abs := filepath.IsAbs(pattern)
		if !abs {
			pattern = filepath.Join(dir, pattern)
		}
		matches, err := doublestar.Glob(pattern)
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		for _, m := range matches {
			if !pathutil.IsFile(m) {
				continue
			}
			if !abs {
				if rel, err := filepath.Rel(dir, m); err == nil {
					m = rel
				}
			}
			out = append(out, m)
		}
	}
	return out, nil
}

// matchesAny reports whether the item include matches one of patterns,
// comparing full paths without regard to case or separator style.
func matchesAny(it Item, patterns []string, dir string) bool {
	target := strings.ToLower(resolveIn(dir, it.Include))
	for _, p := range patterns {
		full := strings.ToLower(resolveIn(dir, p))
		if !hasWildcard(p) {
			if full == target || strings.EqualFold(p, it.Include) {
				return true
			}
			continue
		}
		if ok, err := doublestar.PathMatch(full, target); err == nil && ok {
			return true
		}
	}
	return false
}

var _ Evaluator = (*XMLEvaluator)(nil)
