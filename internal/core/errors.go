// Package core provides the error taxonomy shared by the fixture, the
// configuration loader and the data-access layer.
package core

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	// ErrorTypeProvisioning indicates the database container could not be started
	// or did not become ready in time
	ErrorTypeProvisioning ErrorType = "provisioning_error"
	// ErrorTypeConfiguration indicates required datasource keys are missing or malformed
	ErrorTypeConfiguration ErrorType = "configuration_error"
	// ErrorTypeQuery indicates a statement failed against the datasource
	ErrorTypeQuery ErrorType = "query_error"
)

// FixtureError is the base error type for all fixture errors
type FixtureError struct {
	Type    ErrorType
	Message string
	// SQL is the statement that failed, set for query errors only
	SQL string
	// Original error for diagnostics
	Err error
}

// Error implements the error interface
func (e *FixtureError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.SQL != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.SQL)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap implements the error unwrapping interface
func (e *FixtureError) Unwrap() error {
	return e.Err
}

// NewProvisioningError creates a new provisioning error
func NewProvisioningError(message string, err error) *FixtureError {
	return &FixtureError{
		Type:    ErrorTypeProvisioning,
		Message: message,
		Err:     err,
	}
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string, err error) *FixtureError {
	return &FixtureError{
		Type:    ErrorTypeConfiguration,
		Message: message,
		Err:     err,
	}
}

// NewQueryError creates a new query error for the given statement
func NewQueryError(sql, message string, err error) *FixtureError {
	return &FixtureError{
		Type:    ErrorTypeQuery,
		Message: message,
		SQL:     sql,
		Err:     err,
	}
}

// IsProvisioningError reports whether err wraps a provisioning error.
func IsProvisioningError(err error) bool {
	return hasType(err, ErrorTypeProvisioning)
}

// IsConfigurationError reports whether err wraps a configuration error.
func IsConfigurationError(err error) bool {
	return hasType(err, ErrorTypeConfiguration)
}

// IsQueryError reports whether err wraps a query error.
func IsQueryError(err error) bool {
	return hasType(err, ErrorTypeQuery)
}

func hasType(err error, t ErrorType) bool {
	var fe *FixtureError
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Type == t
}
