// Package msbuild evaluates MSBuild-style XML project files into typed
// properties and item lists.
//
// The evaluator understands enough of the format to drive dependency graph
// resolution and solution generation: property groups, item groups,
// conditions, imports, Choose/When/Otherwise, wildcards and item metadata.
// It does not run targets or tasks.
package msbuild

import (
	"sort"
	"strings"
)

// Well-known item types.
const (
	ItemCompile               = "Compile"
	ItemProjectReference      = "ProjectReference"
	ItemReference             = "Reference"
	ItemPackageReference      = "PackageReference"
	ItemEmbeddedResource      = "EmbeddedResource"
	ItemSolutionConfiguration = "SolutionConfiguration"
)

// Property is an evaluated project property.
type Property struct {
	Name  string
	Value string
}

// Metadatum is a single evaluated item metadata value.
type Metadatum struct {
	Name  string
	Value string
}

// Item is an evaluated item. Include is the evaluated include as written in
// the project (relative paths stay relative to the defining project).
type Item struct {
	ItemType string
	Include  string
	Metadata []Metadatum

	// DefiningProject is the full path of the project that owns the item.
	DefiningProject string
}

// MetadataValue returns the value of the named metadata, matched without
// regard to case, or "" if absent.
func (i Item) MetadataValue(name string) string {
	v, _ := i.LookupMetadata(name)
	return v
}

// LookupMetadata is like MetadataValue but reports presence.
func (i Item) LookupMetadata(name string) (string, bool) {
	for _, m := range i.Metadata {
		if strings.EqualFold(m.Name, name) {
			return m.Value, true
		}
	}
	return "", false
}

// Key identifies an item within an evaluation: the defining project, the
// item type and the include.
func (i Item) Key() string {
	return strings.ToLower(i.DefiningProject) + "|" + strings.ToLower(i.ItemType) + "|" + i.Include
}

func (i *Item) setMetadata(name, value string) {
	for idx := range i.Metadata {
		if strings.EqualFold(i.Metadata[idx].Name, name) {
			i.Metadata[idx].Value = value
			return
		}
	}
	i.Metadata = append(i.Metadata, Metadatum{Name: name, Value: value})
}

// Project is the result of evaluating a project file. It is immutable once
// returned by an Evaluator and safe to share between goroutines.
type Project struct {
	FullPath         string
	Directory        string
	GlobalProperties map[string]string

	properties     map[string]Property
	propertyOrder  []string
	items          []Item
	configurations []string
	imports        []string
}

func newProject(fullPath, dir string, globals map[string]string) *Project {
	return &Project{
		FullPath:         fullPath,
		Directory:        dir,
		GlobalProperties: globals,
		properties:       make(map[string]Property),
	}
}

// Property returns the evaluated value of the named property (case
// insensitive), or "" when it is not defined.
func (p *Project) Property(name string) string {
	v, _ := p.LookupProperty(name)
	return v
}

// LookupProperty is like Property but reports whether the property exists.
func (p *Project) LookupProperty(name string) (string, bool) {
	if p == nil {
		return "", false
	}
	prop, ok := p.properties[strings.ToLower(name)]
	return prop.Value, ok
}

// Properties returns every property in first-definition order.
func (p *Project) Properties() []Property {
	out := make([]Property, 0, len(p.propertyOrder))
	for _, k := range p.propertyOrder {
		out = append(out, p.properties[k])
	}
	return out
}

// Items returns every evaluated item in evaluation order.
func (p *Project) Items() []Item {
	return append([]Item(nil), p.items...)
}

// ItemsOfType returns the items of the given type (case insensitive) in
// evaluation order.
func (p *Project) ItemsOfType(itemType string) []Item {
	if p == nil {
		return nil
	}
	var out []Item
	for _, it := range p.items {
		if strings.EqualFold(it.ItemType, itemType) {
			out = append(out, it)
		}
	}
	return out
}

// ItemTypes returns the distinct item types present, sorted.
func (p *Project) ItemTypes() []string {
	seen := make(map[string]string)
	for _, it := range p.items {
		k := strings.ToLower(it.ItemType)
		if _, ok := seen[k]; !ok {
			seen[k] = it.ItemType
		}
	}
	out := make([]string, 0, len(seen))
	for _, v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// DeclaredConfigurations returns the "Configuration|Platform" values found
// on property group conditions of the form
// '$(Configuration)|$(Platform)' == 'Debug|AnyCPU', in declaration order.
func (p *Project) DeclaredConfigurations() []string {
	return append([]string(nil), p.configurations...)
}

// Imports returns the full paths of every imported file, in import order.
func (p *Project) Imports() []string {
	return append([]string(nil), p.imports...)
}

func (p *Project) setProperty(name, value string) {
	k := strings.ToLower(name)
	if existing, ok := p.properties[k]; ok {
		existing.Value = value
		p.properties[k] = existing
		return
	}
	p.properties[k] = Property{Name: name, Value: value}
	p.propertyOrder = append(p.propertyOrder, k)
}

func (p *Project) isGlobal(name string) bool {
	for k := range p.GlobalProperties {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}
