package types

import "fmt"

// ValidationError signals a user-correctable precondition failure. The
// whole operation is aborted and nothing is committed.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ConfigurationError signals missing administrator setup, such as the
// currency exchange journal required to book rate differences. It is never
// retried automatically.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// NewConfigurationError builds a ConfigurationError from a format string.
func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}
