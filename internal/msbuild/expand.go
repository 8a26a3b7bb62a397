package msbuild

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xamarin/mirepoix/internal/pathutil"
)

// expander substitutes $(Property), @(Item) and %(Metadata) references.
type expander struct {
	property func(name string) string
	items    func(itemType string) []Item
	metadata func(name string) (string, bool)
}

func (e *expander) expand(s string) string {
	if !strings.ContainsAny(s, "$@%") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c == '$' || c == '@' || c == '%') && i+1 < len(s) && s[i+1] == '(' {
			end := matchParen(s, i+1)
			if end > 0 {
				inner := strings.TrimSpace(s[i+2 : end])
				switch c {
				case '$':
					b.WriteString(e.expandProperty(inner))
				case '@':
					b.WriteString(e.expandItems(inner))
				case '%':
					if v, ok := e.lookupMetadata(inner); ok {
						b.WriteString(v)
					} else {
						b.WriteString(s[i : end+1])
					}
				}
				i = end
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func (e *expander) expandProperty(name string) string {
	if e.property == nil || !isIdentifier(name) {
		return ""
	}
	return e.property(name)
}

func (e *expander) lookupMetadata(name string) (string, bool) {
	if e.metadata == nil || !isIdentifier(name) {
		return "", false
	}
	return e.metadata(name)
}

// expandItems handles Type, Type->'transform' and an optional ", 'sep'".
func (e *expander) expandItems(inner string) string {
	if e.items == nil {
		return ""
	}
	sep := ";"
	if i := strings.LastIndex(inner, ","); i >= 0 {
		if s, ok := unquote(strings.TrimSpace(inner[i+1:])); ok {
			sep = s
			inner = strings.TrimSpace(inner[:i])
		}
	}
	transform := ""
	if i := strings.Index(inner, "->"); i >= 0 {
		t, ok := unquote(strings.TrimSpace(inner[i+2:]))
		if !ok {
			return ""
		}
		transform = t
		inner = strings.TrimSpace(inner[:i])
	}
	if !isIdentifier(inner) {
		return ""
	}
	items := e.items(inner)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if transform == "" {
			out = append(out, it.Include)
			continue
		}
		ie := &expander{property: e.property, metadata: itemMetadata(it)}
		out = append(out, ie.expand(transform))
	}
	return strings.Join(out, sep)
}

// itemMetadata resolves custom metadata first, then the well-known
// file metadata derived from the include.
func itemMetadata(it Item) func(string) (string, bool) {
	return func(name string) (string, bool) {
		if v, ok := it.LookupMetadata(name); ok {
			return v, true
		}
		return wellKnownMetadata(it, name)
	}
}

func wellKnownMetadata(it Item, name string) (string, bool) {
	include := pathutil.Normalize(it.Include)
	dir := filepath.Dir(it.DefiningProject)
	switch strings.ToLower(name) {
	case "identity":
		return it.Include, true
	case "filename":
		return pathutil.NameWithoutExt(include), true
	case "extension":
		return filepath.Ext(include), true
	case "relativedir":
		d := filepath.Dir(include)
		if d == "." {
			return "", true
		}
		return d + string(filepath.Separator), true
	case "fullpath":
		return resolveIn(dir, include), true
	case "directory":
		return filepath.Dir(resolveIn(dir, include)), true
	case "definingprojectfullpath":
		return it.DefiningProject, true
	case "definingprojectdirectory":
		return dir, true
	case "definingprojectname":
		return pathutil.NameWithoutExt(it.DefiningProject), true
	}
	return "", false
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r == '-' || r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return true
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1], true
	}
	return "", false
}

// splitList splits a semicolon separated list, dropping empty entries and
// unescaping %XX sequences in each entry.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, unescape(part))
	}
	return out
}

// unescape decodes MSBuild %XX escapes. Malformed sequences are kept as is.
func unescape(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// resolveIn resolves p against dir unless it is already absolute.
func resolveIn(dir, p string) string {
	p = pathutil.Normalize(p)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}
