package commons

import (
	"errors"
	"fmt"
)

// ConfigValidationError contains configuration validation error information
type ConfigValidationError struct {
	Field  string
	Reason string
}

// NewConfigValidationError creates ConfigValidationError struct
func NewConfigValidationError(field string, reason string) error {
	return &ConfigValidationError{
		Field:  field,
		Reason: reason,
	}
}

// Error returns error message
func (err *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid configuration for field '%s': %s", err.Field, err.Reason)
}

// Is tests type of error
func (err *ConfigValidationError) Is(other error) bool {
	_, ok := other.(*ConfigValidationError)
	return ok
}

// ToString stringifies the object
func (err *ConfigValidationError) ToString() string {
	return "<ConfigValidationError>"
}

// IsConfigValidationError evaluates if the given error is configuration validation error
func IsConfigValidationError(err error) bool {
	return errors.Is(err, &ConfigValidationError{})
}

// CircuitOpenError contains circuit open error information
type CircuitOpenError struct {
	Name string
}

// NewCircuitOpenError creates CircuitOpenError struct
func NewCircuitOpenError(name string) error {
	return &CircuitOpenError{
		Name: name,
	}
}

// Error returns error message
func (err *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open", err.Name)
}

// Is tests type of error
func (err *CircuitOpenError) Is(other error) bool {
	_, ok := other.(*CircuitOpenError)
	return ok
}

// ToString stringifies the object
func (err *CircuitOpenError) ToString() string {
	return "<CircuitOpenError>"
}

// IsCircuitOpenError evaluates if the given error is circuit open error
func IsCircuitOpenError(err error) bool {
	return errors.Is(err, &CircuitOpenError{})
}

// EntryNotFoundError contains cache entry not found error information
type EntryNotFoundError struct {
	Key string
}

// NewEntryNotFoundError creates EntryNotFoundError struct
func NewEntryNotFoundError(key string) error {
	return &EntryNotFoundError{
		Key: key,
	}
}

// Error returns error message
func (err *EntryNotFoundError) Error() string {
	return fmt.Sprintf("cache entry '%s' not found", err.Key)
}

// Is tests type of error
func (err *EntryNotFoundError) Is(other error) bool {
	_, ok := other.(*EntryNotFoundError)
	return ok
}

// ToString stringifies the object
func (err *EntryNotFoundError) ToString() string {
	return "<EntryNotFoundError>"
}

// IsEntryNotFoundError evaluates if the given error is cache entry not found error
func IsEntryNotFoundError(err error) bool {
	return errors.Is(err, &EntryNotFoundError{})
}

// EntryTooLargeError contains entry too large error information
type EntryTooLargeError struct {
	Key     string
	Size    int64
	MaxSize int64
}

// NewEntryTooLargeError creates EntryTooLargeError struct
func NewEntryTooLargeError(key string, size int64, maxSize int64) error {
	return &EntryTooLargeError{
		Key:     key,
		Size:    size,
		MaxSize: maxSize,
	}
}

// Error returns error message
func (err *EntryTooLargeError) Error() string {
	return fmt.Sprintf("cache entry '%s' size %d exceeds max cacheable size %d", err.Key, err.Size, err.MaxSize)
}

// Is tests type of error
func (err *EntryTooLargeError) Is(other error) bool {
	_, ok := other.(*EntryTooLargeError)
	return ok
}

// ToString stringifies the object
func (err *EntryTooLargeError) ToString() string {
	return "<EntryTooLargeError>"
}

// IsEntryTooLargeError evaluates if the given error is entry too large error
func IsEntryTooLargeError(err error) bool {
	return errors.Is(err, &EntryTooLargeError{})
}

// ChecksumMismatchError contains checksum mismatch error information
type ChecksumMismatchError struct {
	Key     string
	Reasons []string
}

// NewChecksumMismatchError creates ChecksumMismatchError struct
func NewChecksumMismatchError(key string, reasons []string) error {
	return &ChecksumMismatchError{
		Key:     key,
		Reasons: reasons,
	}
}

// Error returns error message
func (err *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for cache entry '%s': %v", err.Key, err.Reasons)
}

// Is tests type of error
func (err *ChecksumMismatchError) Is(other error) bool {
	_, ok := other.(*ChecksumMismatchError)
	return ok
}

// ToString stringifies the object
func (err *ChecksumMismatchError) ToString() string {
	return "<ChecksumMismatchError>"
}

// IsChecksumMismatchError evaluates if the given error is checksum mismatch error
func IsChecksumMismatchError(err error) bool {
	return errors.Is(err, &ChecksumMismatchError{})
}
