package common

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id '%s' not found", e.Resource, e.ID)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError indicates invalid input data.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// UnauthorizedError indicates missing or invalid authentication.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	if e.Message == "" {
		return "unauthorized"
	}
	return e.Message
}

// NewUnauthorizedError creates a new UnauthorizedError.
func NewUnauthorizedError(message string) *UnauthorizedError {
	return &UnauthorizedError{Message: message}
}

// ProviderError indicates that no provider delivered a message.
type ProviderError struct {
	Provider string
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Provider == "" {
		return "provider error: " + e.Message
	}
	return fmt.Sprintf("%s provider error: %s", e.Provider, e.Message)
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, message string) *ProviderError {
	return &ProviderError{Provider: provider, Message: message}
}

// ConfigurationError indicates a delivery provider cannot operate because its
// setup is missing or invalid. It is reported at validation time, never from
// a send attempt.
type ConfigurationError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ConfigurationError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Provider == "" {
		return "configuration error: " + msg
	}
	return fmt.Sprintf("%s configuration error: %s", e.Provider, msg)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(provider, message string) *ConfigurationError {
	return &ConfigurationError{Provider: provider, Message: message}
}

// WrapConfigurationError creates a ConfigurationError caused by err.
func WrapConfigurationError(provider, message string, err error) *ConfigurationError {
	return &ConfigurationError{Provider: provider, Message: message, Err: err}
}

// TemplateError indicates a message references a placeholder that has no
// value in its substitution data.
type TemplateError struct {
	Field string
	Key   string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %s references missing key %q", e.Field, e.Key)
}

// NewTemplateError creates a new TemplateError.
func NewTemplateError(field, key string) *TemplateError {
	return &TemplateError{Field: field, Key: key}
}
