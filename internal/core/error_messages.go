package core

// error_messages.go is the code reference.
//
// This file defines the codes shown to reviewers and API clients. Two kinds
// of codes exist:
//
// Message codes are attached to per-row diagnostics produced by the
// assembler. They describe data quality, not failures of the service:
//
//	MISS001 - Required value missing
//	          Action: Fill in the value or confirm it was not measured
//	MISS002 - Every column of a required group is empty
//	          Action: Provide at least one of the grouped columns
//	RNG001  - Value outside the bad range
//	          Action: Check units and sign conventions for the column
//	RNG002  - Value outside the expected (questionable) range
//	          Action: Confirm the value is real before submitting
//	NUM001  - Value in a numeric column is not a number
//	          Action: Remove text, units or thousands separators from the cell
//	DATE001 - Date/time element missing
//	          Action: Fill in every date and time column for the row
//	DATE002 - Date/time could not be parsed or is out of bounds
//	          Action: Match the declared date format; dates must be 1900 or later and not in the future
//	INT001  - Internal error while assembling the row
//	          Action: Report the line to the maintainers; this is not a data problem
//
// Error codes are derived from Go errors by pattern matching in MapError
// and are returned by the API and CLI:
//
//	CFG001-CFG004   Column configuration and date layout faults
//	FILE001-FILE005 Unreadable or unsuitable input files
//	CHK001-CHK005   Check run failures (busy, cancelled, timed out, not found)
//	DB001-DB004     Result storage failures
//	VAL001          Malformed API requests
//	RATE001         Request throttling
//	ERR000          Fallback when nothing matches
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns are defined
// before general ones.

import (
	"fmt"
	"slices"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Code for support reference
}

// messageCodes describes the per-row diagnostic codes.
var messageCodes = map[string]UserMessage{
	CodeMissingValue: {
		Message: "Required value missing",
		Action:  "Fill in the value or confirm it was not measured",
		Code:    CodeMissingValue,
	},
	CodeMissingGroup: {
		Message: "Every column of a required group is empty",
		Action:  "Provide at least one of the grouped columns",
		Code:    CodeMissingGroup,
	},
	CodeOutOfRangeBad: {
		Message: "Value outside the bad range",
		Action:  "Check units and sign conventions for the column",
		Code:    CodeOutOfRangeBad,
	},
	CodeOutOfRangeQuestionable: {
		Message: "Value outside the expected range",
		Action:  "Confirm the value is real before submitting",
		Code:    CodeOutOfRangeQuestionable,
	},
	CodeNotNumeric: {
		Message: "Value in a numeric column is not a number",
		Action:  "Remove text, units or thousands separators from the cell",
		Code:    CodeNotNumeric,
	},
	CodeDateMissing: {
		Message: "Date/time element missing",
		Action:  "Fill in every date and time column for the row",
		Code:    CodeDateMissing,
	},
	CodeDateInvalid: {
		Message: "Date/time could not be parsed or is out of bounds",
		Action:  "Match the declared date format; dates must be 1900 or later and not in the future",
		Code:    CodeDateInvalid,
	},
	CodeInternal: {
		Message: "Internal error while assembling the row",
		Action:  "Report the line to the maintainers; this is not a data problem",
		Code:    CodeInternal,
	},
	CodeInvalidInput: {
		Message: "File is not a valid CSV",
		Action:  "Ensure the file is delimited text with one record per line",
		Code:    CodeInvalidInput,
	},
}

// DescribeCode returns the reviewer-facing description of a message code.
func DescribeCode(code string) (UserMessage, bool) {
	m, ok := messageCodes[code]
	return m, ok
}

// MessageCodes returns every per-row diagnostic code, sorted by code.
func MessageCodes() []UserMessage {
	codes := make([]UserMessage, 0, len(messageCodes))
	for _, m := range messageCodes {
		codes = append(codes, m)
	}
	slices.SortFunc(codes, func(a, b UserMessage) int { return strings.Compare(a.Code, b.Code) })
	return codes
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages. Order matters: the first match wins.
var errorPatterns = []errorPattern{
	// Configuration (CFG001-CFG004)
	{
		pattern: "unknown unit conversion",
		msg: UserMessage{
			Message: "A column binding names an unknown unit conversion",
			Action:  "Use one of the conversions listed by the columns command",
			Code:    "CFG004",
		},
	},
	{
		pattern: "date element",
		msg: UserMessage{
			Message: "Date/time columns are declared incorrectly",
			Action:  "Declare 1, 2, 4, 5 or 6 date elements matching one supported layout",
			Code:    "CFG003",
		},
	},
	{
		pattern: "date format",
		msg: UserMessage{
			Message: "The date format is invalid",
			Action:  "Use only y, m and d with '-', '/' or '.' separators, e.g. YYYY-MM-DD",
			Code:    "CFG002",
		},
	},
	{
		pattern: "column config",
		msg: UserMessage{
			Message: "The column configuration is invalid",
			Action:  "Fix the reported column definition and try again",
			Code:    "CFG001",
		},
	},

	// Files (FILE001-FILE005)
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller datasets",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is delimited text with one record per line",
			Code:    "FILE002",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save the file as UTF-8",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No data file was provided",
			Action:  "Attach the dataset as the 'data' form field",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The data file is empty",
			Action:  "Upload a file with at least one data row",
			Code:    "FILE005",
		},
	},

	// Check runs (CHK001-CHK005)
	{
		pattern: "internal error",
		msg: UserMessage{
			Message: "A row could not be assembled because of an internal error",
			Action:  "Report the line to the maintainers; this is not a data problem",
			Code:    "CHK001",
		},
	},
	{
		pattern: "too many concurrent checks",
		msg: UserMessage{
			Message: "The checker is busy with other datasets",
			Action:  "Please wait a moment and try again",
			Code:    "CHK002",
		},
	},
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "Check run not found",
			Action:  "Verify the run ID; results are only kept when storage is enabled",
			Code:    "CHK003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The check was cancelled",
			Action:  "Please try again",
			Code:    "CHK004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The check timed out",
			Action:  "Try a smaller dataset or raise the request timeout",
			Code:    "CHK005",
		},
	},

	// Storage (DB001-DB004)
	{
		pattern: "storage disabled",
		msg: UserMessage{
			Message: "Result storage is not configured",
			Action:  "Set DATABASE_URL to keep check results",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the results database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB004",
		},
	},

	// Requests
	{
		pattern: "invalid request",
		msg: UserMessage{
			Message: "The request could not be understood",
			Action:  "Check the request fields and their format",
			Code:    "VAL001",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first pattern match, or the ERR000 fallback.
//
// Example:
//
//	err := errors.New("column config: sal: duplicate column name")
//	msg := MapError(err)
//	// msg.Code == "CFG001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
// Error() returns the user message; Unwrap() returns the original.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
