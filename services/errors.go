package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a project or deployment does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller is not allowed to touch a project.
	ErrForbidden = errors.New("forbidden")
	// ErrClusterUnavailable is returned when no Kubernetes client is configured.
	ErrClusterUnavailable = errors.New("kubernetes cluster is not configured")
)

// ConfigurationError means the remote host cannot be reached because
// credentials are missing. No session is attempted.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "Missing SSH configuration: " + strings.Join(e.Missing, ", ")
}

// ValidationError is a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
