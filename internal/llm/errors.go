package llm

import "errors"

// FatalError marks a failure that retrying cannot fix (bad key, bad request).
type FatalError struct {
	err error
}

func (e *FatalError) Error() string { return e.err.Error() }
func (e *FatalError) Unwrap() error { return e.err }

// NewFatalError wraps err as non-retryable.
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsFatal reports whether err should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// ErrEmptyResponse is returned when a provider produced no candidate text.
var ErrEmptyResponse = errors.New("llm: empty response from model")
