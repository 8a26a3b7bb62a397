package solution

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/xamarin/mirepoix/internal/guid"
	"github.com/xamarin/mirepoix/internal/pathutil"
	"github.com/xamarin/mirepoix/internal/slnfile"
)

// sectionOrder is the canonical order of the sections written by the
// builder. Only SolutionProperties is left alone when updating.
var sectionOrder = []string{
	slnfile.SectionSolutionConfigurations,
	slnfile.SectionSolutionProperties,
	slnfile.SectionNestedProjects,
	slnfile.SectionProjectConfigurations,
}

// Document returns the solution document for the tree. When existing is
// non-nil it is updated in place: its header, trailer, line ending and
// foreign global sections are kept while the project list and the owned
// sections are regenerated.
func (b *Builder) Document(existing *slnfile.Document) *slnfile.Document {
	doc := existing
	if doc == nil {
		doc = slnfile.New()
		doc.Global = []slnfile.Section{{
			Name:     slnfile.SectionSolutionProperties,
			Position: slnfile.PreSolution,
			Entries:  []slnfile.Entry{{Key: "HideSolutionNode", Value: "FALSE"}},
		}}
	}

	doc.Projects = doc.Projects[:0]
	var nested, projectConfigs []slnfile.Entry
	b.root.Walk(func(n *Node) {
		if n.Kind == KindRoot {
			return
		}
		id := guid.Format(n.GUID)
		doc.Projects = append(doc.Projects, slnfile.Project{
			TypeGUID: n.TypeGUID,
			Name:     n.Name,
			Path:     pathutil.ToBackslash(n.RelativePath),
			GUID:     id,
		})
		if n.parent != nil && n.parent.Kind != KindRoot {
			nested = append(nested, slnfile.Entry{Key: id, Value: guid.Format(n.parent.GUID)})
		}
		for _, c := range n.configurations {
			prefix := id + "." + c.Solution.SolutionString()
			projectConfigs = append(projectConfigs, slnfile.Entry{Key: prefix + ".ActiveCfg", Value: c.Project.SolutionString()})
			if c.BuildEnabled {
				projectConfigs = append(projectConfigs, slnfile.Entry{Key: prefix + ".Build.0", Value: c.Project.SolutionString()})
			}
		}
	})

	var solutionConfigs []slnfile.Entry
	for _, c := range b.configurations {
		s := c.SolutionString()
		solutionConfigs = append(solutionConfigs, slnfile.Entry{Key: s, Value: s})
	}

	placeSection(doc, slnfile.Section{Name: slnfile.SectionSolutionConfigurations, Position: slnfile.PreSolution, Entries: solutionConfigs})
	placeSection(doc, slnfile.Section{Name: slnfile.SectionNestedProjects, Position: slnfile.PreSolution, Entries: nested})
	placeSection(doc, slnfile.Section{Name: slnfile.SectionProjectConfigurations, Position: slnfile.PostSolution, Entries: projectConfigs})
	return doc
}

// placeSection replaces s in doc, or inserts it after the closest preceding
// section in canonical order. Empty sections are removed.
func placeSection(doc *slnfile.Document, s slnfile.Section) {
	if doc.Section(s.Name) != nil || len(s.Entries) == 0 {
		doc.SetSection(s)
		return
	}

	rank := canonicalRank(s.Name)
	at := -1
	for i, existing := range doc.Global {
		if r := canonicalRank(existing.Name); r >= 0 && r < rank {
			at = i + 1
		}
	}
	if at < 0 {
		if s.Position == slnfile.PreSolution {
			at = 0
		} else {
			at = len(doc.Global)
		}
	}
	doc.Global = append(doc.Global[:at], append([]slnfile.Section{s}, doc.Global[at:]...)...)
}

func canonicalRank(name string) int {
	for i, n := range sectionOrder {
		if strings.EqualFold(n, name) {
			return i
		}
	}
	return -1
}

// Render writes a fresh solution to w without a byte order mark.
func (b *Builder) Render(w io.Writer) error {
	return slnfile.Render(w, b.Document(nil))
}

// Write saves the solution to path, or to FileName when path is empty. An
// existing solution at path is updated in place.
func (b *Builder) Write(path string) error {
	if path == "" {
		path = b.FileName
	}
	existing, err := slnfile.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		existing = nil
	case err != nil:
		return fmt.Errorf("update %s: %w", path, err)
	}
	return slnfile.WriteFile(path, b.Document(existing))
}
