// Package slnfile reads and writes Visual Studio solution files.
//
// A Document keeps enough structure to regenerate the parts mirepoix owns
// (projects and three global sections) while carrying everything else
// through unchanged, so an existing solution can be updated in place.
package slnfile

import (
	"errors"
	"strings"
)

// Project type GUIDs, braced and upper case as they appear in solutions.
const (
	TypeFolder        = "{2150E333-8FDC-42A3-9474-1A3956D46DE8}"
	TypeCSharp        = "{FAE04EC0-301F-11D3-BF4B-00C04F79EFBC}"
	TypeFSharp        = "{F2A71F9B-5D33-465A-A702-920D77279786}"
	TypeVisualBasic   = "{F184B08F-C81C-45F6-A57F-5ABD9991F28F}"
	TypeSharedProject = "{D954291E-2A0B-460D-934E-DC6B0785DB48}"
)

// Global section names written by mirepoix.
const (
	SectionSolutionConfigurations = "SolutionConfigurationPlatforms"
	SectionSolutionProperties     = "SolutionProperties"
	SectionNestedProjects         = "NestedProjects"
	SectionProjectConfigurations  = "ProjectConfigurationPlatforms"
)

// Section positions.
const (
	PreSolution  = "preSolution"
	PostSolution = "postSolution"
)

var (
	// ErrMalformed is returned when a solution file cannot be parsed.
	ErrMalformed = errors.New("slnfile: malformed solution")
)

// DefaultHeader is the header written for new solutions. The first line is
// intentionally blank.
var DefaultHeader = []string{
	"",
	"Microsoft Visual Studio Solution File, Format Version 12.00",
	"# Visual Studio 15",
	"VisualStudioVersion = 15.0.26124.0",
	"MinimumVisualStudioVersion = 15.0.26124.0",
}

// Document is a parsed solution file.
type Document struct {
	Header   []string
	Projects []Project
	// BeforeGlobal holds lines that followed the first project but preceded
	// Global. They are written back immediately before Global.
	BeforeGlobal []string
	Global       []Section
	Trailer      []string
	// LineEnding terminates every rendered line. Empty means CRLF.
	LineEnding string
}

// New returns an empty document with the default header.
func New() *Document {
	return &Document{Header: append([]string(nil), DefaultHeader...), LineEnding: CRLF}
}

// Project is a Project(...) ... EndProject block. Body holds the raw lines
// between the declaration and EndProject (project sections, dependencies).
type Project struct {
	TypeGUID string
	Name     string
	Path     string
	GUID     string
	Body     []string
}

// IsFolder reports whether the entry is a solution folder.
func (p Project) IsFolder() bool {
	return strings.EqualFold(p.TypeGUID, TypeFolder)
}

// Section is a GlobalSection(Name) = Position block.
type Section struct {
	Name     string
	Position string
	Entries  []Entry
}

// Entry is one "Key = Value" line of a global section. Lines without a
// separator have Bare set and only Key populated.
type Entry struct {
	Key   string
	Value string
	Bare  bool
}

// Section returns the named global section, or nil.
func (d *Document) Section(name string) *Section {
	for i := range d.Global {
		if strings.EqualFold(d.Global[i].Name, name) {
			return &d.Global[i]
		}
	}
	return nil
}

// SetSection replaces the named section's entries, keeping its position in
// the Global list, or appends it when absent. A section with no entries is
// removed instead.
func (d *Document) SetSection(s Section) {
	for i := range d.Global {
		if !strings.EqualFold(d.Global[i].Name, s.Name) {
			continue
		}
		if len(s.Entries) == 0 {
			d.Global = append(d.Global[:i], d.Global[i+1:]...)
			return
		}
		d.Global[i] = s
		return
	}
	if len(s.Entries) > 0 {
		d.Global = append(d.Global, s)
	}
}
