package slnfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

var (
	projectLine = regexp.MustCompile(`^Project\(\s*"([^"]*)"\s*\)\s*=\s*"([^"]*)"\s*,\s*"([^"]*)"\s*,\s*"([^"]*)"\s*$`)
	sectionLine = regexp.MustCompile(`^GlobalSection\(\s*([^)]*?)\s*\)\s*=\s*(\S+)$`)
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectLineEnding returns the line terminator used by the first line of
// data: "\r\n", "\n" or "\r". It returns "" when data has no line break.
func DetectLineEnding(data []byte) string {
	i := bytes.IndexAny(data, "\r\n")
	switch {
	case i < 0:
		return ""
	case data[i] == '\n':
		return "\n"
	case i+1 < len(data) && data[i+1] == '\n':
		return "\r\n"
	}
	return "\r"
}

func splitLines(data []byte) []string {
	data = bytes.TrimPrefix(data, utf8BOM)
	s := string(data)
	if bytes.IndexByte(data, '\r') >= 0 {
		s = strings.ReplaceAll(s, "\r\n", "\n")
		s = strings.ReplaceAll(s, "\r", "\n")
	}
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

type parseState int

const (
	stateHeader parseState = iota
	stateProject
	stateGlobal
	stateSection
	stateTrailer
)

// Parse reads a solution from r. Any line ending style is accepted and the
// one used by the first line is recorded in the document.
func Parse(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	doc := &Document{LineEnding: DetectLineEnding(bytes.TrimPrefix(data, utf8BOM))}
	state := stateHeader
	var (
		project *Project
		section *Section
	)
	malformed := func(n int, msg string) error {
		return fmt.Errorf("%w: line %d: %s", ErrMalformed, n, msg)
	}

	for i, line := range splitLines(data) {
		n := i + 1
		trimmed := strings.TrimSpace(line)
		switch state {
		case stateHeader:
			if strings.HasPrefix(trimmed, "Project(") {
				p, err := parseProjectLine(trimmed)
				if err != nil {
					return nil, malformed(n, err.Error())
				}
				project = p
				state = stateProject
				continue
			}
			if trimmed == "Global" {
				state = stateGlobal
				continue
			}
			if len(doc.Projects) > 0 {
				doc.BeforeGlobal = append(doc.BeforeGlobal, line)
				continue
			}
			doc.Header = append(doc.Header, line)

		case stateProject:
			if trimmed == "EndProject" {
				doc.Projects = append(doc.Projects, *project)
				project = nil
				state = stateHeader
				continue
			}
			if strings.HasPrefix(trimmed, "Project(") {
				return nil, malformed(n, "nested Project")
			}
			project.Body = append(project.Body, line)

		case stateGlobal:
			switch {
			case trimmed == "EndGlobal":
				state = stateTrailer
			case strings.HasPrefix(trimmed, "GlobalSection("):
				m := sectionLine.FindStringSubmatch(trimmed)
				if m == nil {
					return nil, malformed(n, "invalid GlobalSection")
				}
				section = &Section{Name: m[1], Position: m[2]}
				state = stateSection
			case trimmed == "":
			default:
				return nil, malformed(n, fmt.Sprintf("unexpected %q in Global", trimmed))
			}

		case stateSection:
			if trimmed == "EndGlobalSection" {
				doc.Global = append(doc.Global, *section)
				section = nil
				state = stateGlobal
				continue
			}
			if trimmed == "" {
				continue
			}
			if k, v, ok := strings.Cut(trimmed, "="); ok {
				section.Entries = append(section.Entries, Entry{
					Key:   strings.TrimSpace(k),
					Value: strings.TrimSpace(v),
				})
			} else {
				section.Entries = append(section.Entries, Entry{Key: trimmed, Bare: true})
			}

		case stateTrailer:
			doc.Trailer = append(doc.Trailer, line)
		}
	}

	switch state {
	case stateProject:
		return nil, fmt.Errorf("%w: missing EndProject for %q", ErrMalformed, project.Name)
	case stateSection:
		return nil, fmt.Errorf("%w: missing EndGlobalSection for %q", ErrMalformed, section.Name)
	case stateGlobal:
		return nil, fmt.Errorf("%w: missing EndGlobal", ErrMalformed)
	}
	return doc, nil
}

func parseProjectLine(line string) (*Project, error) {
	m := projectLine.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("invalid project declaration %q", line)
	}
	return &Project{
		TypeGUID: m[1],
		Name:     m[2],
		Path:     m[3],
		GUID:     m[4],
	}, nil
}

// ReadFile parses the solution at path.
func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()
	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}
