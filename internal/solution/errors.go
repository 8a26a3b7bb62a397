package solution

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xamarin/mirepoix/internal/depgraph"
)

var (
	// ErrNotFound is returned when the traversal project does not exist.
	ErrNotFound = depgraph.ErrNotFound

	// ErrLoadFailures wraps node load errors that abort solution
	// generation.
	ErrLoadFailures = errors.New("solution: projects failed to load")
)

// ConflictPolicy decides which value wins when references to the same
// project disagree on a per-reference override.
type ConflictPolicy int

const (
	ConflictPolicyLastWins ConflictPolicy = iota
	ConflictPolicyFirstWins
	ConflictPolicyError
)

func (p ConflictPolicy) String() string {
	switch p {
	case ConflictPolicyFirstWins:
		return "first-wins"
	case ConflictPolicyError:
		return "error"
	}
	return "last-wins"
}

// ParseConflictPolicy parses "last-wins", "first-wins" or "error". An empty
// string selects last-wins.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last-wins", "lastwins", "last":
		return ConflictPolicyLastWins, nil
	case "first-wins", "firstwins", "first":
		return ConflictPolicyFirstWins, nil
	case "error", "fail":
		return ConflictPolicyError, nil
	}
	return ConflictPolicyLastWins, fmt.Errorf("unknown conflict policy %q", s)
}

// ConflictError reports references that disagree on an override under
// ConflictPolicyError.
type ConflictError struct {
	Project string
	Field   string
	Values  []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("solution: conflicting %s for %s: %s", e.Field, e.Project, strings.Join(e.Values, ", "))
}
