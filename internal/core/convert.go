package core

// convert.go cleans raw cell text and converts it into the values the
// checker works with.
//
// These functions handle the messy reality of instrument and spreadsheet
// exports:
//   - Excel formula prefixes (="value") and stray quotes
//   - Unicode in headers that differs only by normalization form
//   - Several spellings of "no value" (blank, NA, NaN, -999, ...)
//   - Units that differ from the ones the column configuration expects

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// numericRegex validates that a string is a plain decimal number.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// CleanCell removes common CSV artifacts from a cell value:
// - Normalizes to Unicode NFC
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(norm.NFC.String(s))

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// NormalizeHeader returns the lookup key for a column header: cleaned,
// lowercased, with inner runs of whitespace collapsed to one underscore.
func NormalizeHeader(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(CleanCell(h)), "_"))
}

// MakeHeaderIndex creates a HeaderIndex from a CSV header row.
// Keys are normalized with NormalizeHeader; the first occurrence wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := NormalizeHeader(h)
		if _, exists := idx[key]; !exists {
			idx[key] = i
		}
	}
	return idx
}

// IsMissing reports whether a cleaned value denotes "no value":
// blank, "NA" or "NaN", case-insensitive.
func IsMissing(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "NA") || strings.EqualFold(s, "NaN")
}

// isMissingWith extends IsMissing with per-binding markers such as "-999".
// Numeric markers match numerically, so "-999.0" matches "-999".
func isMissingWith(s string, markers []string) bool {
	if IsMissing(s) {
		return true
	}
	for _, m := range markers {
		m = strings.TrimSpace(m)
		if strings.EqualFold(s, m) {
			return true
		}
		if a, err := ParseNumber(s); err == nil {
			if b, err := ParseNumber(m); err == nil && a == b {
				return true
			}
		}
	}
	return false
}

// ParseNumber parses a finite decimal number. Hex floats, infinities and
// NaN are rejected.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !numericRegex.MatchString(s) {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid number %q: not finite", s)
	}
	return f, nil
}

// FormatNumber renders f with the fewest digits that round-trip.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Conversion converts a raw value into the units the column expects.
type Conversion func(value string) (string, error)

// numeric wraps a float conversion as a Conversion.
func numeric(fn func(float64) float64) Conversion {
	return func(value string) (string, error) {
		f, err := ParseNumber(value)
		if err != nil {
			return value, err
		}
		return FormatNumber(fn(f)), nil
	}
}

// DefaultConversions returns the built-in unit conversions by name.
// The returned map is a fresh copy and may be extended by the caller.
func DefaultConversions() map[string]Conversion {
	return map[string]Conversion{
		"fahrenheit_to_celsius": numeric(func(f float64) float64 { return (f - 32) * 5 / 9 }),
		"kelvin_to_celsius":     numeric(func(k float64) float64 { return k - 273.15 }),
		"kpa_to_hpa":            numeric(func(p float64) float64 { return p * 10 }),
		"mmhg_to_hpa":           numeric(func(p float64) float64 { return p * 1.333224 }),
		"atm_to_hpa":            numeric(func(p float64) float64 { return p * 1013.25 }),
		"pa_to_hpa":             numeric(func(p float64) float64 { return p / 100 }),
		"degrees_minutes":       degreesMinutes,
	}
}

// degreesMinutes converts "DD MM.mmm" (optionally with a hemisphere letter,
// e.g. "45 30.5 S") into signed decimal degrees.
func degreesMinutes(value string) (string, error) {
	fields := strings.Fields(value)
	sign := 1.0
	if n := len(fields); n > 0 {
		switch strings.ToUpper(fields[n-1]) {
		case "S", "W":
			sign = -1
			fields = fields[:n-1]
		case "N", "E":
			fields = fields[:n-1]
		}
	}
	if len(fields) != 2 {
		return value, fmt.Errorf("invalid degrees-minutes value %q", value)
	}

	deg, err := ParseNumber(fields[0])
	if err != nil {
		return value, err
	}
	minutes, err := ParseNumber(fields[1])
	if err != nil {
		return value, err
	}
	if minutes < 0 || minutes >= 60 {
		return value, fmt.Errorf("invalid minutes in %q", value)
	}
	if deg < 0 || strings.HasPrefix(fields[0], "-") {
		sign = -sign
		deg = math.Abs(deg)
	}
	return FormatNumber(sign * (deg + minutes/60)), nil
}
