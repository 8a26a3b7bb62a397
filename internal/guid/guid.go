// Package guid derives name-based identifiers (RFC 4122 versions 3 and 5)
// and formats them the way solution files expect.
package guid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Predefined RFC 4122 namespaces.
var (
	NamespaceDNS = uuid.NameSpaceDNS
	NamespaceURL = uuid.NameSpaceURL
)

// V5 returns the SHA-1 name-based UUID for name within namespace.
func V5(namespace uuid.UUID, name string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(name))
}

// V3 returns the MD5 name-based UUID for name within namespace.
func V3(namespace uuid.UUID, name string) uuid.UUID {
	return uuid.NewMD5(namespace, []byte(name))
}

// Format renders id in braced upper-case form: {XXXXXXXX-XXXX-...}.
func Format(id uuid.UUID) string {
	return "{" + strings.ToUpper(id.String()) + "}"
}

// Parse accepts plain, braced or urn-prefixed forms in any case.
func Parse(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("guid: parse %q: %w", s, err)
	}
	return id, nil
}

// MustParse is like Parse but panics on error. Intended for constants.
func MustParse(s string) uuid.UUID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}
