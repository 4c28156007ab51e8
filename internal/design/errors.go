package design

import "fmt"

// ImplementationError reports a design document that cannot be implemented:
// unknown model keys, unknown action tags, attributes that map to nothing,
// or lookups that resolve to zero or multiple records.
type ImplementationError struct {
	Model string
	Msg   string
	Err   error
}

func (e *ImplementationError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s: %s", e.Model, e.Msg)
	}
	return e.Msg
}

func (e *ImplementationError) Unwrap() error {
	return e.Err
}

func implementationErrorf(model string, format string, args ...any) *ImplementationError {
	err := &ImplementationError{Model: model, Msg: fmt.Sprintf(format, args...)}
	for _, arg := range args {
		if wrapped, ok := arg.(error); ok {
			err.Err = wrapped
		}
	}
	return err
}

// ValidationError reports a record that resolved but failed model
// validation before save (bad CIDR, conflicting relationship definition).
type ValidationError struct {
	Model string
	Msg   string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s: %s", e.Model, e.Msg)
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
