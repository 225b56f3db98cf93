package slep

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrConfig matches every *ConfigError through errors.Is.
	ErrConfig = errors.New("invalid configuration")
	// ErrNumerical matches every *NumericalError through errors.Is.
	ErrNumerical = errors.New("numerical failure")
)

// ConfigError reports a malformed relation or parameter. It is raised before
// any iteration runs and is never retried.
type ConfigError struct {
	Field  string
	Reason string
	Cause  error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config: %s: %s (cause: %v)", e.Field, e.Reason, e.Cause)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrConfig) hold for any ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

func configErrorf(field string, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NumericalError aborts a training run. Weights computed up to that point are
// discarded.
type NumericalError struct {
	Op        string
	Reason    string
	Iteration int
}

func (e *NumericalError) Error() string {
	if e.Iteration > 0 {
		return fmt.Sprintf("numerical: %s at iteration %d: %s", e.Op, e.Iteration, e.Reason)
	}
	return fmt.Sprintf("numerical: %s: %s", e.Op, e.Reason)
}

// Is makes errors.Is(err, ErrNumerical) hold for any NumericalError.
func (e *NumericalError) Is(target error) bool {
	return target == ErrNumerical
}

func numericalErrorf(op string, format string, args ...any) *NumericalError {
	return &NumericalError{Op: op, Reason: fmt.Sprintf(format, args...)}
}
