package core

// datetime.go resolves a row's date and time into one canonical UTC
// timestamp. A dataset declares exactly one of four layouts:
//
//   - SingleDateTime:   one column holds date and time
//   - DateAndTime:      separate date and time columns
//   - IndividualFields: year, month, day, hour, minute and optional second
//   - YearDaySecond:    year, day of year and second of day
//
// The layout is chosen once per dataset by NewDateSpec from the number of
// declared elements. Resolution never applies a local time zone.

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ISOLayout is the canonical timestamp format: UTC, milliseconds, no offset.
const ISOLayout = "2006-01-02T15:04:05.000"

// MinimumYear is the earliest year a resolved timestamp may fall in.
const MinimumYear = 1900

// NoColumn marks an optional element that is not bound to an input column.
const NoColumn = -1

// FormatISO renders t in the canonical timestamp format.
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// DateSpec is the closed set of date/time layouts. Only the four types in
// this file implement it.
type DateSpec interface {
	dateSpec()
	// Columns returns the input column indices the layout reads.
	Columns() []int
	// Shape returns a short name for listings and logs.
	Shape() string
}

// SingleDateTime reads date and time from one column.
type SingleDateTime struct {
	Column int
}

// DateAndTime reads a date column and a time column, joined by one space.
type DateAndTime struct {
	DateColumn int
	TimeColumn int
}

// IndividualFields reads each calendar field from its own column. Second
// may be NoColumn, in which case seconds are zero.
type IndividualFields struct {
	Year, Month, Day, Hour, Minute, Second int
}

// YearDaySecond reads a year, a day-of-year and a second-of-day column.
// FirstDayIndex is the day-of-year value that denotes January 1st (0 or 1).
type YearDaySecond struct {
	Year          int
	DayOfYear     int
	SecondOfDay   int
	FirstDayIndex int
}

func (SingleDateTime) dateSpec()   {}
func (DateAndTime) dateSpec()      {}
func (IndividualFields) dateSpec() {}
func (YearDaySecond) dateSpec()    {}

func (s SingleDateTime) Columns() []int { return []int{s.Column} }
func (s DateAndTime) Columns() []int    { return []int{s.DateColumn, s.TimeColumn} }
func (s IndividualFields) Columns() []int {
	cols := []int{s.Year, s.Month, s.Day, s.Hour, s.Minute}
	if s.Second != NoColumn {
		cols = append(cols, s.Second)
	}
	return cols
}
func (s YearDaySecond) Columns() []int { return []int{s.Year, s.DayOfYear, s.SecondOfDay} }

func (SingleDateTime) Shape() string   { return "single" }
func (DateAndTime) Shape() string      { return "date_time" }
func (IndividualFields) Shape() string { return "individual" }
func (YearDaySecond) Shape() string    { return "year_day_second" }

// DateElementKind identifies one declared date/time element.
type DateElementKind uint8

const (
	ElemDateTime DateElementKind = iota + 1
	ElemDate
	ElemTime
	ElemYear
	ElemMonth
	ElemDay
	ElemHour
	ElemMinute
	ElemSecond
	ElemDayOfYear
	ElemSecondOfDay
	ElemFirstDayIndex
)

var elementNames = map[DateElementKind]string{
	ElemDateTime:      "date_time",
	ElemDate:          "date",
	ElemTime:          "time",
	ElemYear:          "year",
	ElemMonth:         "month",
	ElemDay:           "day",
	ElemHour:          "hour",
	ElemMinute:        "minute",
	ElemSecond:        "second",
	ElemDayOfYear:     "day_of_year",
	ElemSecondOfDay:   "second_of_day",
	ElemFirstDayIndex: "first_day_index",
}

func (k DateElementKind) String() string {
	if name, ok := elementNames[k]; ok {
		return name
	}
	return fmt.Sprintf("DateElementKind(%d)", uint8(k))
}

// ParseDateElementKind parses an element kind from its name.
func ParseDateElementKind(s string) (DateElementKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range elementNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown date element %q", s)
}

// DateElement is one declared date/time element. Column is the 0-based input
// column; for ElemFirstDayIndex, Value carries the index instead.
type DateElement struct {
	Kind   DateElementKind
	Column int
	Value  int
}

// NewDateSpec selects the date layout from the declared elements. One
// element selects SingleDateTime, two DateAndTime, four YearDaySecond and
// five or six IndividualFields. Any other count, a repeated or mismatched
// element, or a negative column index is a *ConfigError.
func NewDateSpec(elements []DateElement) (DateSpec, error) {
	byKind := make(map[DateElementKind]DateElement, len(elements))
	for _, e := range elements {
		if _, dup := byKind[e.Kind]; dup {
			return nil, &ConfigError{Message: fmt.Sprintf("date element %s declared twice", e.Kind)}
		}
		if e.Kind != ElemFirstDayIndex && e.Column < 0 {
			return nil, &ConfigError{Message: fmt.Sprintf("date element %s has negative column %d", e.Kind, e.Column)}
		}
		byKind[e.Kind] = e
	}

	need := func(kinds ...DateElementKind) error {
		for _, k := range kinds {
			if _, ok := byKind[k]; !ok {
				return &ConfigError{Message: fmt.Sprintf("%d date elements declared but %s is missing", len(elements), k)}
			}
		}
		return nil
	}

	switch len(elements) {
	case 1:
		if err := need(ElemDateTime); err != nil {
			return nil, err
		}
		return SingleDateTime{Column: byKind[ElemDateTime].Column}, nil

	case 2:
		if err := need(ElemDate, ElemTime); err != nil {
			return nil, err
		}
		return DateAndTime{DateColumn: byKind[ElemDate].Column, TimeColumn: byKind[ElemTime].Column}, nil

	case 4:
		if err := need(ElemYear, ElemDayOfYear, ElemSecondOfDay, ElemFirstDayIndex); err != nil {
			return nil, err
		}
		first := byKind[ElemFirstDayIndex].Value
		if first != 0 && first != 1 {
			return nil, &ConfigError{Message: fmt.Sprintf("first day index must be 0 or 1, got %d", first)}
		}
		return YearDaySecond{
			Year:          byKind[ElemYear].Column,
			DayOfYear:     byKind[ElemDayOfYear].Column,
			SecondOfDay:   byKind[ElemSecondOfDay].Column,
			FirstDayIndex: first,
		}, nil

	case 5, 6:
		if err := need(ElemYear, ElemMonth, ElemDay, ElemHour, ElemMinute); err != nil {
			return nil, err
		}
		spec := IndividualFields{
			Year:   byKind[ElemYear].Column,
			Month:  byKind[ElemMonth].Column,
			Day:    byKind[ElemDay].Column,
			Hour:   byKind[ElemHour].Column,
			Minute: byKind[ElemMinute].Column,
			Second: NoColumn,
		}
		if len(elements) == 6 {
			if err := need(ElemSecond); err != nil {
				return nil, err
			}
			spec.Second = byKind[ElemSecond].Column
		}
		return spec, nil

	default:
		return nil, &ConfigError{Message: fmt.Sprintf("%d date elements declared; need 1, 2, 4, 5 or 6", len(elements))}
	}
}

// FaultKind distinguishes an absent date element from an unparseable one.
type FaultKind uint8

const (
	FaultMissingElement FaultKind = iota + 1
	FaultParseFailure
)

func (k FaultKind) String() string {
	switch k {
	case FaultMissingElement:
		return "missing"
	case FaultParseFailure:
		return "invalid"
	default:
		return fmt.Sprintf("FaultKind(%d)", uint8(k))
	}
}

// DateTimeFault reports why a row's timestamp could not be resolved.
type DateTimeFault struct {
	Kind    FaultKind
	Element string // Element name, e.g. "month" or "date_time"
	Value   string // Offending input, empty for missing elements
	Reason  string
}

func (f *DateTimeFault) Error() string {
	if f.Kind == FaultMissingElement {
		return fmt.Sprintf("date/time missing: no value for %s", f.Element)
	}
	if f.Value != "" {
		return fmt.Sprintf("date/time invalid: %s %q: %s", f.Element, f.Value, f.Reason)
	}
	return fmt.Sprintf("date/time invalid: %s: %s", f.Element, f.Reason)
}

func missingElement(element string) *DateTimeFault {
	return &DateTimeFault{Kind: FaultMissingElement, Element: element}
}

func parseFailure(element, value, reason string) *DateTimeFault {
	return &DateTimeFault{Kind: FaultParseFailure, Element: element, Value: value, Reason: reason}
}

// Resolver resolves rows against a date layout.
type Resolver struct {
	// Format parses SingleDateTime and DateAndTime values.
	Format *DateFormat
	// Now bounds resolved timestamps from above. Defaults to time.Now.
	Now func() time.Time
}

// NewResolver returns a resolver using format, or the default pattern when
// format is nil.
func NewResolver(format *DateFormat) *Resolver {
	if format == nil {
		format = MustDateFormat(DefaultDatePattern)
	}
	return &Resolver{Format: format}
}

// Resolve computes the row's UTC timestamp. Any failure is returned as a
// *DateTimeFault.
func (r *Resolver) Resolve(row []string, spec DateSpec) (time.Time, error) {
	var (
		t     time.Time
		fault *DateTimeFault
	)

	switch s := spec.(type) {
	case SingleDateTime:
		t, fault = r.resolveSingle(row, s)
	case DateAndTime:
		t, fault = r.resolveDateAndTime(row, s)
	case IndividualFields:
		t, fault = resolveIndividual(row, s)
	case YearDaySecond:
		t, fault = resolveYearDaySecond(row, s)
	case nil:
		return time.Time{}, missingElement("date")
	default:
		return time.Time{}, parseFailure("date", "", fmt.Sprintf("unsupported date layout %T", spec))
	}
	if fault != nil {
		return time.Time{}, fault
	}

	if t.Year() < MinimumYear {
		return time.Time{}, parseFailure("date", FormatISO(t), fmt.Sprintf("year before %d", MinimumYear))
	}
	if t.After(r.now()) {
		return time.Time{}, parseFailure("date", FormatISO(t), "date is in the future")
	}
	return t.UTC(), nil
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Resolver) format() *DateFormat {
	if r.Format != nil {
		return r.Format
	}
	return MustDateFormat(DefaultDatePattern)
}

func (r *Resolver) resolveSingle(row []string, s SingleDateTime) (time.Time, *DateTimeFault) {
	value, ok := cellAt(row, s.Column)
	if !ok {
		return time.Time{}, missingElement(ElemDateTime.String())
	}
	t, err := r.format().ParseDateTime(value)
	if err != nil {
		return time.Time{}, parseFailure(ElemDateTime.String(), value, "does not match date format "+r.format().Pattern())
	}
	return t, nil
}

func (r *Resolver) resolveDateAndTime(row []string, s DateAndTime) (time.Time, *DateTimeFault) {
	date, ok := cellAt(row, s.DateColumn)
	if !ok {
		return time.Time{}, missingElement(ElemDate.String())
	}
	clock, ok := cellAt(row, s.TimeColumn)
	if !ok {
		return time.Time{}, missingElement(ElemTime.String())
	}
	if _, err := r.format().ParseDate(date); err != nil {
		return time.Time{}, parseFailure(ElemDate.String(), date, "does not match date format "+r.format().Pattern())
	}
	value := date + " " + clock
	t, err := r.format().ParseDateTime(value)
	if err != nil {
		return time.Time{}, parseFailure("date and time", value, "does not match date format "+r.format().Pattern())
	}
	return t, nil
}

func resolveIndividual(row []string, s IndividualFields) (time.Time, *DateTimeFault) {
	fields := []struct {
		kind   DateElementKind
		column int
	}{
		{ElemYear, s.Year},
		{ElemMonth, s.Month},
		{ElemDay, s.Day},
		{ElemHour, s.Hour},
		{ElemMinute, s.Minute},
	}

	raw := make([]string, len(fields))
	for i, f := range fields {
		v, ok := cellAt(row, f.column)
		if !ok {
			return time.Time{}, missingElement(f.kind.String())
		}
		raw[i] = v
	}

	secondRaw := "0"
	if s.Second != NoColumn {
		v, ok := cellAt(row, s.Second)
		if !ok {
			return time.Time{}, missingElement(ElemSecond.String())
		}
		secondRaw = v
	}

	vals := make([]int, len(fields))
	for i, f := range fields {
		n, err := parseWhole(raw[i])
		if err != nil {
			return time.Time{}, parseFailure(f.kind.String(), raw[i], "not a whole number")
		}
		vals[i] = n
	}
	year, month, day, hour, minute := vals[0], vals[1], vals[2], vals[3], vals[4]

	sec, err := strconv.ParseFloat(strings.TrimSpace(secondRaw), 64)
	if err != nil || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return time.Time{}, parseFailure(ElemSecond.String(), secondRaw, "not a number")
	}

	switch {
	case month < 1 || month > 12:
		return time.Time{}, parseFailure(ElemMonth.String(), raw[1], "month out of range")
	case day < 1 || day > daysIn(year, time.Month(month)):
		return time.Time{}, parseFailure(ElemDay.String(), raw[2], "day out of range for month")
	case hour < 0 || hour > 23:
		return time.Time{}, parseFailure(ElemHour.String(), raw[3], "hour out of range")
	case minute < 0 || minute > 59:
		return time.Time{}, parseFailure(ElemMinute.String(), raw[4], "minute out of range")
	case sec < 0 || sec >= 60:
		return time.Time{}, parseFailure(ElemSecond.String(), secondRaw, "second out of range")
	}

	whole, millis := splitSeconds(sec)
	return time.Date(year, time.Month(month), day, hour, minute, whole, millis*int(time.Millisecond), time.UTC), nil
}

func resolveYearDaySecond(row []string, s YearDaySecond) (time.Time, *DateTimeFault) {
	yearRaw, ok := cellAt(row, s.Year)
	if !ok {
		return time.Time{}, missingElement(ElemYear.String())
	}
	dayRaw, ok := cellAt(row, s.DayOfYear)
	if !ok {
		return time.Time{}, missingElement(ElemDayOfYear.String())
	}
	secRaw, ok := cellAt(row, s.SecondOfDay)
	if !ok {
		return time.Time{}, missingElement(ElemSecondOfDay.String())
	}

	year, err := parseWhole(yearRaw)
	if err != nil {
		return time.Time{}, parseFailure(ElemYear.String(), yearRaw, "not a whole number")
	}
	day, err := parseWhole(dayRaw)
	if err != nil {
		return time.Time{}, parseFailure(ElemDayOfYear.String(), dayRaw, "not a whole number")
	}
	sec, err := parseWhole(secRaw)
	if err != nil {
		return time.Time{}, parseFailure(ElemSecondOfDay.String(), secRaw, "not a whole number")
	}

	offset := day - s.FirstDayIndex
	maxOffset := 365
	if isLeap(year) {
		maxOffset = 366
	}
	if offset < 0 || offset > maxOffset {
		return time.Time{}, parseFailure(ElemDayOfYear.String(), dayRaw, "day of year out of range")
	}
	if sec < 0 || sec > 86400 {
		return time.Time{}, parseFailure(ElemSecondOfDay.String(), secRaw, "second of day out of range")
	}

	t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, offset).
		Add(time.Duration(sec) * time.Second)
	return t, nil
}

// cellAt returns the cleaned cell at column, or ok=false when the row is too
// short or the value is missing.
func cellAt(row []string, column int) (string, bool) {
	if column < 0 || column >= len(row) {
		return "", false
	}
	v := CleanCell(row[column])
	if IsMissing(v) {
		return "", false
	}
	return v, true
}

// parseWhole parses an integer, also accepting integral decimals like "2006.0".
func parseWhole(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%q is not a whole number", s)
	}
	return int(f), nil
}

// splitSeconds splits a non-negative second value into whole seconds and
// truncated milliseconds.
func splitSeconds(sec float64) (whole, millis int) {
	w := math.Floor(sec)
	// The epsilon keeps values like 30.123 from truncating to 122 ms.
	ms := math.Floor((sec-w)*1000 + 1e-6)
	if ms >= 1000 {
		ms = 999
	}
	return int(w), int(ms)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
