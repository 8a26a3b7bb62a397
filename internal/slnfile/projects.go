package slnfile

import (
	"strings"

	"github.com/xamarin/mirepoix/internal/pathutil"
)

// ProjectRef is a project declared in a solution, in file order.
type ProjectRef struct {
	Name         string
	RelativePath string
	TypeGUID     string
	GUID         string

	// Buildable is false for solution folders, shared projects and entries
	// that do not point at an MSBuild project file.
	Buildable bool
}

// ProjectRefs lists the document's project declarations in file order.
func (d *Document) ProjectRefs() []ProjectRef {
	refs := make([]ProjectRef, 0, len(d.Projects))
	for _, p := range d.Projects {
		refs = append(refs, ProjectRef{
			Name:         p.Name,
			RelativePath: p.Path,
			TypeGUID:     p.TypeGUID,
			GUID:         p.GUID,
			Buildable:    isBuildable(p),
		})
	}
	return refs
}

func isBuildable(p Project) bool {
	if p.IsFolder() || strings.EqualFold(p.TypeGUID, TypeSharedProject) {
		return false
	}
	ext := pathutil.Ext(p.Path)
	return ext != ".shproj" && strings.HasSuffix(ext, "proj")
}

// ReadProjects parses the solution at path and returns its project
// declarations in file order.
func ReadProjects(path string) ([]ProjectRef, error) {
	doc, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return doc.ProjectRefs(), nil
}
