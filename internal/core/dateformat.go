package core

// dateformat.go compiles a dataset's date pattern (for example "YYYY-MM-DD"
// or "MM/DD/YY") into the Go layouts used to parse date and date-time cells.
//
// Each pattern yields the date part with every supported separator ("-",
// "/", "." and none) so datasets that mix separators still parse, combined
// with the time forms 15:04:05 (fractional seconds allowed), 15:04, 150405
// and 1504, joined by either a space or "T".

import (
	"fmt"
	"strings"
	"time"
)

// DefaultDatePattern is used when a dataset does not declare one.
const DefaultDatePattern = "YYYY-MM-DD"

// Two-digit years are placed in the century window starting here.
const twoDigitYearWindowStart = 1950

var (
	dateSeparators = []string{"-", "/", ".", ""}
	timeLayouts    = []string{"15:04:05", "15:04", "150405", "1504"}
	dateTimeJoins  = []string{" ", "T"}
)

// DateFormat is a compiled date pattern.
type DateFormat struct {
	pattern      string
	twoDigitYear bool
	dateLayouts  []string
	layouts      []string
}

// NewDateFormat compiles pattern. Only the letters y, m and d and the
// separators '-', '/' and '.' are allowed; year must appear as YY or YYYY,
// month and day as one or two letters, each exactly once.
func NewDateFormat(pattern string) (*DateFormat, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		pattern = DefaultDatePattern
	}

	type part struct {
		letter byte
		width  int
	}
	var parts []part
	seen := make(map[byte]bool, 3)

	for i := 0; i < len(pattern); {
		c := lowerASCII(pattern[i])
		switch c {
		case 'y', 'm', 'd':
			j := i
			for j < len(pattern) && lowerASCII(pattern[j]) == c {
				j++
			}
			if seen[c] {
				return nil, &ConfigError{Message: fmt.Sprintf("date format %q repeats %q", pattern, string(c))}
			}
			seen[c] = true
			parts = append(parts, part{letter: c, width: j - i})
			i = j
		case '-', '/', '.':
			i++
		default:
			return nil, &ConfigError{Message: fmt.Sprintf("date format %q contains unsupported character %q", pattern, string(pattern[i]))}
		}
	}

	if len(parts) != 3 {
		return nil, &ConfigError{Message: fmt.Sprintf("date format %q must contain year, month and day", pattern)}
	}

	f := &DateFormat{pattern: pattern}
	for _, sep := range dateSeparators {
		fixed := sep == ""
		elems := make([]string, 0, 3)
		for _, p := range parts {
			switch p.letter {
			case 'y':
				switch p.width {
				case 2:
					f.twoDigitYear = true
					elems = append(elems, "06")
				case 4:
					elems = append(elems, "2006")
				default:
					return nil, &ConfigError{Message: fmt.Sprintf("date format %q: year must be YY or YYYY", pattern)}
				}
			case 'm':
				if p.width > 2 {
					return nil, &ConfigError{Message: fmt.Sprintf("date format %q: month must be M or MM", pattern)}
				}
				if fixed {
					elems = append(elems, "01")
				} else {
					elems = append(elems, "1")
				}
			case 'd':
				if p.width > 2 {
					return nil, &ConfigError{Message: fmt.Sprintf("date format %q: day must be D or DD", pattern)}
				}
				if fixed {
					elems = append(elems, "02")
				} else {
					elems = append(elems, "2")
				}
			}
		}
		f.dateLayouts = append(f.dateLayouts, strings.Join(elems, sep))
	}

	for _, date := range f.dateLayouts {
		for _, join := range dateTimeJoins {
			for _, tl := range timeLayouts {
				f.layouts = append(f.layouts, date+join+tl)
			}
		}
	}

	return f, nil
}

// MustDateFormat is like NewDateFormat but panics on error. Intended for
// package-level defaults and tests.
func MustDateFormat(pattern string) *DateFormat {
	f, err := NewDateFormat(pattern)
	if err != nil {
		panic(err)
	}
	return f
}

// Pattern returns the source pattern.
func (f *DateFormat) Pattern() string {
	return f.pattern
}

// Layouts returns the compiled date-time layouts.
func (f *DateFormat) Layouts() []string {
	return append([]string(nil), f.layouts...)
}

// ParseDateTime parses a combined date and time value in UTC.
func (f *DateFormat) ParseDateTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimSuffix(strings.TrimSuffix(value, "Z"), "z")

	for _, layout := range f.layouts {
		t, err := time.ParseInLocation(layout, value, time.UTC)
		if err == nil {
			return f.pivot(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q does not match date format %s", value, f.pattern)
}

// ParseDate parses a date-only value in UTC.
func (f *DateFormat) ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range f.dateLayouts {
		t, err := time.ParseInLocation(layout, value, time.UTC)
		if err == nil {
			return f.pivot(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q does not match date format %s", value, f.pattern)
}

// pivot moves a two-digit year into the 1950-2049 window.
func (f *DateFormat) pivot(t time.Time) time.Time {
	if !f.twoDigitYear {
		return t
	}
	switch {
	case t.Year() >= twoDigitYearWindowStart+100:
		return t.AddDate(-100, 0, 0)
	case t.Year() < twoDigitYearWindowStart:
		return t.AddDate(100, 0, 0)
	}
	return t
}

func lowerASCII(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
