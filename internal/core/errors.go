package core

// errors.go defines the three fault classes the checker distinguishes:
//
//   - ConfigError: the column configuration or date layout is malformed.
//     Always fatal at load time, never reported per row.
//   - Data faults: missing, unparseable or out-of-range values. These are
//     not Go errors at all; they become Messages and raised flags.
//   - ContractError: a bug in configuration or compute logic detected while
//     assembling a row. The row is aborted and reported as an internal error.

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFlag is wrapped by a ContractError when code tries to raise a flag
	// on a column declared with RoleNone.
	ErrNoFlag = errors.New("column carries no flag")

	// ErrComputeFailed is wrapped by a ContractError when a computed column's
	// function returns an error or panics.
	ErrComputeFailed = errors.New("compute function failed")
)

// ConfigError reports a malformed column configuration or date layout.
type ConfigError struct {
	Column  string // Offending column, empty for dataset-wide problems
	Message string
	Err     error // Optional underlying cause
}

func (e *ConfigError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Column != "" {
		return fmt.Sprintf("column config: %s: %s", e.Column, msg)
	}
	return "column config: " + msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// configErrorf builds a ConfigError for a column.
func configErrorf(column, format string, args ...any) *ConfigError {
	return &ConfigError{Column: column, Message: fmt.Sprintf(format, args...)}
}

// ContractError reports a programming-contract violation detected while
// assembling one row.
type ContractError struct {
	Line   int
	Column string
	Err    error
}

func (e *ContractError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("internal error at line %d, column %q: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("internal error at line %d: %v", e.Line, e.Err)
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsContractError reports whether err is or wraps a ContractError.
func IsContractError(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}
