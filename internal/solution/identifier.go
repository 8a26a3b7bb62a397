package solution

import (
	"strings"

	"github.com/google/uuid"

	"github.com/xamarin/mirepoix/internal/depgraph"
	"github.com/xamarin/mirepoix/internal/guid"
	"github.com/xamarin/mirepoix/internal/msbuild"
)

// IdentifierSource looks up an explicit project GUID. ok is false when the
// source has no opinion; the next source is consulted.
type IdentifierSource interface {
	ProjectGUID(n *depgraph.Node) (id uuid.UUID, ok bool, err error)
}

// EvaluatedPropertyIdentifier reads the evaluated ProjectGuid property.
type EvaluatedPropertyIdentifier struct{}

func (EvaluatedPropertyIdentifier) ProjectGUID(n *depgraph.Node) (uuid.UUID, bool, error) {
	if n.Project == nil {
		return uuid.Nil, false, nil
	}
	return parseExplicit(n.Project.Property("ProjectGuid"))
}

// RawXMLIdentifier scans the project file for a ProjectGuid element. It
// serves projects that failed to evaluate.
type RawXMLIdentifier struct{}

func (RawXMLIdentifier) ProjectGUID(n *depgraph.Node) (uuid.UUID, bool, error) {
	s, err := msbuild.ReadExplicitProjectGUID(n.ProjectPath)
	if err != nil {
		return uuid.Nil, false, err
	}
	return parseExplicit(s)
}

// DefaultIdentifierSources is the chain used when none is configured.
func DefaultIdentifierSources() []IdentifierSource {
	return []IdentifierSource{EvaluatedPropertyIdentifier{}, RawXMLIdentifier{}}
}

func parseExplicit(s string) (uuid.UUID, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, false, nil
	}
	id, err := guid.Parse(s)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, id != uuid.Nil, nil
}
