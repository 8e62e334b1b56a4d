package loader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
)

// Problem is a single defect found while loading definitions.
type Problem struct {
	// Source is the file (or "remote") the defect was found in.
	Source  string `json:"source"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	return p.Source + ": " + p.Message
}

// LoadError reports every defect of a state source at once.
type LoadError struct {
	Problems []Problem
}

func (e *LoadError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid definitions: " + e.Problems[0].String()
	}
	lines := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		lines = append(lines, "  "+p.String())
	}
	return fmt.Sprintf("invalid definitions (%d problems):\n%s", len(e.Problems), strings.Join(lines, "\n"))
}

func (e *LoadError) add(source, format string, args ...any) {
	e.Problems = append(e.Problems, Problem{Source: source, Message: fmt.Sprintf(format, args...)})
}

func (e *LoadError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// RemoteUnavailableError is returned when the current state could not be
// fetched completely.
type RemoteUnavailableError struct {
	Kind entity.Kind
	Err  error
}

func (e *RemoteUnavailableError) Error() string {
	return fmt.Sprintf("failed to fetch %ss from remote: %v", e.Kind, e.Err)
}

func (e *RemoteUnavailableError) Unwrap() error {
	return e.Err
}

// IsLoadError reports whether err is or wraps a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// IsRemoteUnavailable reports whether err is or wraps a *RemoteUnavailableError.
func IsRemoteUnavailable(err error) bool {
	var re *RemoteUnavailableError
	return errors.As(err, &re)
}
