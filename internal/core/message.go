package core

import (
	"errors"
	"fmt"
	"strings"
)

// Severity classifies a diagnostic message.
type Severity uint8

const (
	SeverityWarning Severity = iota + 1
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("Severity(%d)", uint8(s))
	}
}

// MarshalText encodes the severity as its name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// severityFor maps the flag a fault raises to the message severity:
// Bad faults are errors, everything else is a warning.
func severityFor(f Flag) Severity {
	if f == FlagBad {
		return SeverityError
	}
	return SeverityWarning
}

// Category separates data-quality findings from internal failures so a
// reviewer never mistakes a bug for bad input.
type Category uint8

const (
	CategoryData Category = iota
	CategoryInternal
)

func (c Category) String() string {
	if c == CategoryInternal {
		return "internal"
	}
	return "data"
}

// MarshalText encodes the category as its name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Message codes. See error_messages.go for the reviewer-facing catalogue.
const (
	CodeMissingValue           = "MISS001"
	CodeMissingGroup           = "MISS002"
	CodeOutOfRangeBad          = "RNG001"
	CodeOutOfRangeQuestionable = "RNG002"
	CodeNotNumeric             = "NUM001"
	CodeDateMissing            = "DATE001"
	CodeDateInvalid            = "DATE002"
	CodeInternal               = "INT001"
	CodeInvalidInput           = "FILE002"
)

// Message is one diagnostic attached to an input line.
type Message struct {
	Severity Severity `json:"severity"`
	Category Category `json:"category"`
	Code     string   `json:"code"`
	Line     int      `json:"line"`
	Columns  []string `json:"columns,omitempty"`
	Text     string   `json:"text"`
}

func (m Message) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "line %d: %s %s", m.Line, m.Severity, m.Code)
	if len(m.Columns) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(m.Columns, ", "))
	}
	b.WriteString(": ")
	b.WriteString(m.Text)
	return b.String()
}

// IsError reports whether the message has Error severity.
func (m Message) IsError() bool {
	return m.Severity == SeverityError
}

func dataMessage(sev Severity, code string, line int, text string, columns ...string) Message {
	return Message{
		Severity: sev,
		Category: CategoryData,
		Code:     code,
		Line:     line,
		Columns:  columns,
		Text:     text,
	}
}

// internalMessage reports a contract fault for a row.
func internalMessage(line int, err error) Message {
	msg := Message{
		Severity: SeverityError,
		Category: CategoryInternal,
		Code:     CodeInternal,
		Line:     line,
		Text:     err.Error(),
	}
	var ce *ContractError
	if errors.As(err, &ce) && ce.Column != "" {
		msg.Columns = []string{ce.Column}
	}
	return msg
}
