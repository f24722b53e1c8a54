package core

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Source declares where an output column's value comes from.
type Source uint8

const (
	SourceUnset Source = iota
	SourceRawData
	SourceMetadata
	SourceComputed
)

func (s Source) String() string {
	switch s {
	case SourceUnset:
		return "unset"
	case SourceRawData:
		return "data"
	case SourceMetadata:
		return "metadata"
	case SourceComputed:
		return "computed"
	default:
		return fmt.Sprintf("Source(%d)", uint8(s))
	}
}

// MarshalText encodes the source as its name.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseSource parses a source from its name or the single-letter file codes
// (D data, M metadata, C computed, N none).
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "n", "none", "unset":
		return SourceUnset, nil
	case "d", "data", "raw", "rawdata", "raw_data":
		return SourceRawData, nil
	case "m", "metadata":
		return SourceMetadata, nil
	case "c", "computed", "calculated":
		return SourceComputed, nil
	default:
		return SourceUnset, fmt.Errorf("invalid data source %q (use D, M, C or N)", s)
	}
}

// Range is an inclusive numeric interval.
type Range struct {
	Min float64 `json:"min" yaml:"min" toml:"min"`
	Max float64 `json:"max" yaml:"max" toml:"max"`
}

// Contains reports whether v lies within the range, bounds included.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("[%g, %g]", r.Min, r.Max)
}

// Metadata holds already-validated dataset metadata keyed by name.
type Metadata map[string]string

// Get returns the metadata value for key. An exact match wins; otherwise
// keys are compared case-insensitively and the lowest matching key in
// byte order wins.
func (m Metadata) Get(key string) (string, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if strings.EqualFold(k, key) {
			return m[k], true
		}
	}
	return "", false
}

// RecordView is the read-only view of a partially assembled record handed
// to compute functions.
type RecordView interface {
	// Value returns the column's current value. ok is false when the column
	// is unknown, still empty, or is the column currently being computed.
	Value(name string) (value string, ok bool)
}

// ComputeFunc derives a computed column's value from metadata and the
// record assembled so far. It must be pure. Returning an empty string
// leaves the column missing; returning an error aborts the row.
type ComputeFunc func(md Metadata, rec RecordView) (string, error)

// ColumnConfig declares one output column.
type ColumnConfig struct {
	Name   string
	Source Source

	// MetadataKey names the metadata entry copied into the column.
	// Used iff Source is SourceMetadata.
	MetadataKey string

	// Compute derives the value. Used iff Source is SourceComputed.
	// ComputeName is the calculator name the function was resolved from,
	// kept for listings and error messages.
	Compute     ComputeFunc
	ComputeName string

	// DependsOn lists the columns Compute reads. Computed dependencies must
	// be declared earlier than the column that reads them.
	DependsOn []string

	Required      bool
	RequiredGroup string // Required only jointly with the other group members

	Numeric           bool
	QuestionableRange *Range
	BadRange          *Range

	FlagRole    FlagRole
	MissingFlag Flag // Raised when a required value is missing
	RangeFlag   Flag // Raised when a value falls outside QuestionableRange
}

// HasFlag reports whether the column carries a flag.
func (c ColumnConfig) HasFlag() bool {
	return c.FlagRole.HasFlag()
}

// HeaderIndex maps normalized column names to their position in a CSV row.
type HeaderIndex map[string]int

// Output column names written by date resolution.
const (
	ColumnYear    = "yr"
	ColumnMonth   = "mon"
	ColumnDay     = "day"
	ColumnHour    = "hh"
	ColumnMinute  = "mm"
	ColumnSecond  = "ss"
	ColumnISODate = "iso_date"
)

// DateColumns lists the output columns populated by date resolution, in the
// order they are written.
var DateColumns = []string{
	ColumnYear, ColumnMonth, ColumnDay, ColumnHour, ColumnMinute, ColumnSecond, ColumnISODate,
}

// IsDateColumn reports whether name is one of the date output columns.
func IsDateColumn(name string) bool {
	for _, c := range DateColumns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// MissingNumeric is the string form of a missing numeric value.
const MissingNumeric = "NaN"
