// Package errors provides the error taxonomy of the monitoring engine.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Sentinels
// ==========================

var (
	// ErrDataSource marks a failed competitor fetch. Recorded per item, never aborts a batch.
	ErrDataSource = errors.New("DATA_SOURCE_ERROR")
	// ErrPersistence marks a failed store operation. Aborts the current subscription's cycle only.
	ErrPersistence = errors.New("PERSISTENCE_ERROR")
	// ErrValidation marks malformed input rejected before any write.
	ErrValidation = errors.New("VALIDATION_ERROR")
	// ErrConfiguration marks malformed startup configuration.
	ErrConfiguration = errors.New("CONFIGURATION_ERROR")
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("NOT_FOUND")
)

// ==========================
// 2. Structured error
// ==========================

// RadarError carries the failing operation and the taxonomy kind of an error.
type RadarError struct {
	Kind      error     `json:"-"`
	Op        string    `json:"op"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
	Err       error     `json:"-"`
}

func (e *RadarError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
	}
}

// Unwrap exposes the underlying cause
func (e *RadarError) Unwrap() error {
	return e.Err
}

// Is matches the taxonomy kind as well as the wrapped cause
func (e *RadarError) Is(target error) bool {
	return e.Kind == target
}

func newError(kind error, op, msg string, err error, retryable bool) *RadarError {
	return &RadarError{
		Kind:      kind,
		Op:        op,
		Message:   msg,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		Err:       err,
	}
}

// DataSource wraps a provider failure for one competitor
func DataSource(op string, err error) *RadarError {
	return newError(ErrDataSource, op, "", err, true)
}

// Persistence wraps a store failure
func Persistence(op string, err error) *RadarError {
	return newError(ErrPersistence, op, "", err, true)
}

// Validation reports malformed input
func Validation(op, msg string) *RadarError {
	return newError(ErrValidation, op, msg, nil, false)
}

// Configuration reports a malformed configuration field
func Configuration(field, msg string) *RadarError {
	return newError(ErrConfiguration, field, msg, nil, false)
}

// NotFound reports a missing record
func NotFound(op, what string) *RadarError {
	return newError(ErrNotFound, op, what+" not found", nil, false)
}

// ==========================
// 3. Classification helpers
// ==========================

func IsDataSource(err error) bool    { return errors.Is(err, ErrDataSource) }
func IsPersistence(err error) bool   { return errors.Is(err, ErrPersistence) }
func IsValidation(err error) bool    { return errors.Is(err, ErrValidation) }
func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }
func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }

// IsRetryable reports whether a RadarError in the chain is marked retryable
func IsRetryable(err error) bool {
	var re *RadarError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}
