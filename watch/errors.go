package watch

import (
	"errors"
	"fmt"
)

// ErrNoItems is wrapped in the ConfigurationError returned for an empty
// watch list.
var ErrNoItems = errors.New("no items configured")

var (
	errMissingCredentials = errors.New("username and password are required")
	errCancelled          = errors.New("monitor cancelled")
)

// ConfigurationError is a settings problem. It is terminal and never
// retried.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// PriceParseError carries the text that could not be read as a price.
type PriceParseError struct {
	Text string
	Err  error
}

func (e *PriceParseError) Error() string {
	return fmt.Sprintf("parse price %q: %v", e.Text, e.Err)
}

func (e *PriceParseError) Unwrap() error { return e.Err }

// TransitionError reports an attempt to move a monitor backwards or out of
// a terminal state.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}
