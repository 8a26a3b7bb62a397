package msbuild

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidProject is returned when a project file cannot be parsed.
	ErrInvalidProject = errors.New("msbuild: invalid project file")

	// ErrImportNotFound is returned when an unconditional import is missing.
	ErrImportNotFound = errors.New("msbuild: imported project not found")
)

// ConditionError reports a condition that could not be parsed or evaluated.
type ConditionError struct {
	Condition string
	Pos       int
	Msg       string
}

func (e *ConditionError) Error() string {
	if e.Pos < 0 {
		return fmt.Sprintf("msbuild: condition %q: %s", e.Condition, e.Msg)
	}
	return fmt.Sprintf("msbuild: condition %q at %d: %s", e.Condition, e.Pos, e.Msg)
}
