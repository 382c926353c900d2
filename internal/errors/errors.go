// Package errors defines the error taxonomy shared by the core services and
// its mapping onto HTTP responses.
//
// Three categories propagate to callers: invalid input (checked before any
// collaborator call), not found (a distinct outcome, never conflated with a
// generic failure) and service unavailable (the collaborator as a whole is
// unreachable). Partial per-collection failures are absorbed where they
// happen and never surface through this package.
package errors

import (
	"errors"
	"fmt"

	"github.com/ory/herodot"
)

// Sentinel kinds, matched with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("service unavailable")
)

// InvalidInput reports a caller input error, e.g. a missing required field.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFound reports a missing resource by name.
func NotFound(resource, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, resource, id)
}

// Unavailable reports total collaborator unavailability.
func Unavailable(service string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, service, cause)
}

// IsInvalidInput reports whether err is a caller input error.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsNotFound reports whether err is a not-found outcome.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUnavailable reports whether err is a collaborator outage.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

// ToHTTP maps a core error onto a herodot error for the JSON writer.
// Unclassified errors become 500s with the reason withheld when detailed
// is false.
func ToHTTP(err error, detailed bool) *herodot.DefaultError {
	switch {
	case IsInvalidInput(err):
		return herodot.ErrBadRequest.WithReason(err.Error())
	case IsNotFound(err):
		return herodot.ErrNotFound.WithReason(err.Error())
	case IsUnavailable(err):
		if detailed {
			return herodot.ErrInternalServerError.WithReason(err.Error())
		}
		return herodot.ErrInternalServerError.WithReason("external service unavailable")
	default:
		if detailed {
			return herodot.ErrInternalServerError.WithReason(err.Error())
		}
		return herodot.ErrInternalServerError.WithReason("an internal error occurred")
	}
}
