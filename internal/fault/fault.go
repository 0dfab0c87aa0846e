// Package fault classifies settlement errors so callers can branch on
// retryability instead of parsing error strings. The scheduler treats
// transient faults as retryable, terminal faults as requiring human action,
// and validation faults as caller mistakes that mutate nothing.
package fault

import "errors"

type Class string

const (
	ClassValidation Class = "validation"
	ClassTransient  Class = "transient"
	ClassTerminal   Class = "terminal"
	ClassUnknown    Class = "unknown"
)

type classified struct {
	class Class
	err   error
}

func (c *classified) Error() string { return c.err.Error() }
func (c *classified) Unwrap() error { return c.err }

// Validation marks err as a caller/input error. No state was mutated.
func Validation(err error) error {
	if err == nil {
		return nil
	}
	return &classified{class: ClassValidation, err: err}
}

// Transient marks err as infrastructure failure worth a later retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classified{class: ClassTransient, err: err}
}

// Terminal marks err as a business condition that will not self-resolve.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &classified{class: ClassTerminal, err: err}
}

// ClassOf walks the error chain for the first classification.
func ClassOf(err error) Class {
	for err != nil {
		if c, ok := err.(*classified); ok {
			return c.class
		}
		err = errors.Unwrap(err)
	}
	return ClassUnknown
}

// Retryable reports whether a later automatic retry can help. Unknown errors
// are treated as retryable; only validation and terminal faults are not.
func Retryable(err error) bool {
	switch ClassOf(err) {
	case ClassValidation, ClassTerminal:
		return false
	default:
		return true
	}
}
