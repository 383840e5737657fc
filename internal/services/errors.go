package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed input detected before any network call.
	ErrValidation = errors.New("validation error")
	// ErrAuth marks a rejected or expired session credential.
	ErrAuth = errors.New("authentication error")
	// ErrRejected marks an explicit business rejection from the check-in service.
	ErrRejected = errors.New("rejected")
	// ErrTransport marks network, timeout, and malformed-response failures.
	ErrTransport = errors.New("transport error")
	// ErrTimeout is a transport failure caused by a deadline.
	ErrTimeout = fmt.Errorf("%w: timeout", ErrTransport)
	// ErrNotFound marks a task reference that does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration marks missing or inconsistent settings.
	ErrConfiguration = errors.New("configuration error")
)

// Class is the coarse category of a failure.
type Class string

const (
	ClassNone          Class = ""
	ClassValidation    Class = "validation"
	ClassAuth          Class = "auth"
	ClassRejected      Class = "rejected"
	ClassTransport     Class = "transport"
	ClassResolution    Class = "resolution"
	ClassConfiguration Class = "configuration"
	ClassUnexpected    Class = "unexpected"
)

// Wrap builds an error message that includes component context while tagging
// it with marker for later classification. The marker should be one of the
// exported sentinel errors above; nil defaults to ErrTransport.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps err to its failure class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrValidation):
		return ClassValidation
	case errors.Is(err, ErrAuth):
		return ClassAuth
	case errors.Is(err, ErrRejected):
		return ClassRejected
	case errors.Is(err, ErrTransport):
		return ClassTransport
	case errors.Is(err, ErrNotFound):
		return ClassResolution
	case errors.Is(err, ErrConfiguration):
		return ClassConfiguration
	default:
		return ClassUnexpected
	}
}

// Retryable reports whether repeating the operation could change its outcome.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransport)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{component, operation, message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
