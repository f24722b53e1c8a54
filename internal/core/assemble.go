package core

// assemble.go builds and validates one output record per input row.
//
// Assembly runs in a fixed order, and each phase may read everything the
// earlier phases wrote:
//
//  1. Raw:       bound input fields, missing markers, unit conversion
//  2. Date:      timestamp resolution and the calendar output columns
//  3. Metadata:  dataset metadata copied verbatim
//  4. Computed:  compute functions in registry order
//  5. Checks:    required values, numeric parsing, bad then questionable range
//  6. Cascade:   Bad date flag raised onto CascadeTarget columns
//
// Data problems never stop a row; they raise flags and produce Messages.
// A compute function failing or panicking aborts the row with a
// *ContractError.

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Binding ties an output column to an input field.
type Binding struct {
	Index         int      // 0-based input column
	Conversion    string   // Optional unit conversion name
	MissingValues []string // Extra markers meaning "no value", e.g. "-999"
}

// InputSpec describes one dataset's input layout.
type InputSpec struct {
	// Bindings maps RawData output column names to input fields.
	Bindings map[string]Binding
	// Date is the dataset's date/time layout.
	Date DateSpec
	// Format parses date and date-time cells. Defaults to DefaultDatePattern.
	Format *DateFormat
}

// BindByHeader binds every RawData column whose name appears in header.
func BindByHeader(reg *Registry, header HeaderIndex) map[string]Binding {
	bindings := make(map[string]Binding)
	for _, col := range reg.columns {
		if col.Source != SourceRawData {
			continue
		}
		if i, ok := header[NormalizeHeader(col.Name)]; ok {
			bindings[col.Name] = Binding{Index: i}
		}
	}
	return bindings
}

// resolvedBinding is a Binding with its conversion looked up.
type resolvedBinding struct {
	index   int
	missing []string
	convert Conversion
}

// Assembler assembles records for one dataset. It is safe for concurrent use.
type Assembler struct {
	registry *Registry
	date     DateSpec
	resolver *Resolver
	bindings []*resolvedBinding // by registry position, nil when unbound
	dateCols []int              // registry positions of DateColumns, -1 when absent
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*assemblerOptions)

type assemblerOptions struct {
	conversions map[string]Conversion
	now         func() time.Time
}

// WithConversions replaces the built-in unit conversions.
func WithConversions(conv map[string]Conversion) AssemblerOption {
	return func(o *assemblerOptions) { o.conversions = conv }
}

// WithClock sets the clock used to reject future timestamps.
func WithClock(now func() time.Time) AssemblerOption {
	return func(o *assemblerOptions) { o.now = now }
}

// NewAssembler validates input against reg and returns an Assembler.
// Bindings must name RawData columns, use non-negative indices and known
// conversions; any violation is a *ConfigError.
func NewAssembler(reg *Registry, input InputSpec, opts ...AssemblerOption) (*Assembler, error) {
	if reg == nil {
		return nil, &ConfigError{Message: "no column registry"}
	}
	if input.Date == nil {
		return nil, &ConfigError{Message: "no date/time layout declared"}
	}

	o := assemblerOptions{conversions: DefaultConversions()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &Assembler{
		registry: reg,
		date:     input.Date,
		resolver: NewResolver(input.Format),
		bindings: make([]*resolvedBinding, len(reg.columns)),
		dateCols: make([]int, len(DateColumns)),
	}
	a.resolver.Now = o.now

	var errs []error
	for name, b := range input.Bindings {
		i, ok := reg.position(name)
		if !ok {
			errs = append(errs, configErrorf(name, "binding names an unknown column"))
			continue
		}
		col := reg.columns[i]
		if col.Source != SourceRawData {
			errs = append(errs, configErrorf(col.Name, "binding names a %s column; only data columns can be bound", col.Source))
			continue
		}
		if b.Index < 0 {
			errs = append(errs, configErrorf(col.Name, "binding has negative input index %d", b.Index))
			continue
		}
		rb := &resolvedBinding{index: b.Index, missing: b.MissingValues}
		if conv := strings.TrimSpace(b.Conversion); conv != "" {
			fn, ok := o.conversions[conv]
			if !ok {
				errs = append(errs, configErrorf(col.Name, "unknown unit conversion %q", conv))
				continue
			}
			rb.convert = fn
		}
		a.bindings[i] = rb
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for k, name := range DateColumns {
		a.dateCols[k] = -1
		if i, ok := reg.position(name); ok {
			a.dateCols[k] = i
		}
	}

	return a, nil
}

// Registry returns the registry the assembler validates against.
func (a *Assembler) Registry() *Registry {
	return a.registry
}

// DateSpec returns the dataset's date/time layout.
func (a *Assembler) DateSpec() DateSpec {
	return a.date
}

// Assemble builds the record for one input row. line is the input line
// number used in messages. The error is non-nil only for contract faults,
// in which case no record is returned.
func (a *Assembler) Assemble(line int, row []string, md Metadata) (*Record, []Message, error) {
	rec := newRecord(line, a.registry)
	var msgs []Message

	a.rawPhase(rec, row)

	msgs = a.datePhase(rec, row, msgs)

	a.metadataPhase(rec, md)

	if err := a.computePhase(rec, md); err != nil {
		return nil, nil, err
	}

	msgs, err := a.checkPhase(rec, msgs)
	if err != nil {
		return nil, nil, err
	}

	if err := a.cascadePhase(rec); err != nil {
		return nil, nil, err
	}

	return rec, msgs, nil
}

func (a *Assembler) rawPhase(rec *Record, row []string) {
	for i, col := range a.registry.columns {
		if col.Source != SourceRawData {
			continue
		}
		b := a.bindings[i]
		if b == nil || b.index >= len(row) {
			continue
		}
		value := CleanCell(row[b.index])
		if isMissingWith(value, b.missing) {
			continue
		}
		if b.convert != nil {
			// A failed conversion keeps the raw text; numeric checks flag it.
			if converted, err := b.convert(value); err == nil {
				value = converted
			}
		}
		rec.set(i, value)
	}
}

func (a *Assembler) datePhase(rec *Record, row []string, msgs []Message) []Message {
	t, err := a.resolver.Resolve(row, a.date)
	if err != nil {
		rec.dateFlag = FlagBad

		code := CodeDateInvalid
		var fault *DateTimeFault
		if errors.As(err, &fault) && fault.Kind == FaultMissingElement {
			code = CodeDateMissing
		}
		msgs = append(msgs, dataMessage(SeverityError, code, rec.line, err.Error(), a.dateColumnNames()...))

		// The date columns are the failing element itself, not cascade
		// targets, so field-role date columns are raised too.
		for _, pos := range a.dateCols {
			if pos >= 0 && a.registry.columns[pos].HasFlag() {
				// Cannot fail: the role was checked above.
				_ = rec.raise(pos, FlagBad)
			}
		}
		return msgs
	}

	rec.dateFlag = FlagGood
	rec.timestamp = t
	rec.hasTime = true

	sec := float64(t.Second()) + float64(t.Nanosecond()/int(time.Millisecond))/1000
	values := []string{
		fmt.Sprintf("%d", t.Year()),
		fmt.Sprintf("%d", int(t.Month())),
		fmt.Sprintf("%d", t.Day()),
		fmt.Sprintf("%d", t.Hour()),
		fmt.Sprintf("%d", t.Minute()),
		FormatNumber(sec),
		FormatISO(t),
	}
	for k, pos := range a.dateCols {
		if pos >= 0 {
			rec.set(pos, values[k])
		}
	}
	return msgs
}

func (a *Assembler) dateColumnNames() []string {
	var names []string
	for _, pos := range a.dateCols {
		if pos >= 0 {
			names = append(names, a.registry.columns[pos].Name)
		}
	}
	return names
}

func (a *Assembler) metadataPhase(rec *Record, md Metadata) {
	for i, col := range a.registry.columns {
		if col.Source != SourceMetadata {
			continue
		}
		if v, ok := md.Get(col.MetadataKey); ok && strings.TrimSpace(v) != "" {
			rec.set(i, v)
		}
	}
}

func (a *Assembler) computePhase(rec *Record, md Metadata) error {
	for i, col := range a.registry.columns {
		if col.Source != SourceComputed {
			continue
		}
		value, err := runCompute(col.Compute, md, computeView{rec: rec, self: i})
		if err != nil {
			return &ContractError{Line: rec.line, Column: col.Name, Err: err}
		}
		if IsMissing(value) {
			rec.setMissing(i)
			continue
		}
		rec.set(i, value)
	}
	return nil
}

// runCompute invokes fn, converting a panic into an error.
func runCompute(fn ComputeFunc, md Metadata, view RecordView) (value string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrComputeFailed, r)
		}
	}()
	value, err = fn(md, view)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrComputeFailed, err)
	}
	return value, nil
}

func (a *Assembler) checkPhase(rec *Record, msgs []Message) ([]Message, error) {
	for i, col := range a.registry.columns {
		cell := rec.cells[i]

		if cell.Empty {
			if !col.Required {
				continue
			}
			code := CodeMissingValue
			text := fmt.Sprintf("missing required value for %s", col.Name)
			if col.RequiredGroup != "" {
				if !a.groupEmpty(rec, col.RequiredGroup) || !a.present(i) {
					continue
				}
				code = CodeMissingGroup
				text = fmt.Sprintf("missing value for %s: every column in required group %q is empty", col.Name, col.RequiredGroup)
			}
			if err := a.raise(rec, i, col.MissingFlag); err != nil {
				return nil, err
			}
			msgs = append(msgs, dataMessage(severityFor(col.MissingFlag), code, rec.line, text, col.Name))
			continue
		}

		if !col.Numeric {
			continue
		}

		v, err := ParseNumber(cell.Value)
		if err != nil {
			if err := a.raise(rec, i, FlagBad); err != nil {
				return nil, err
			}
			msgs = append(msgs, dataMessage(SeverityError, CodeNotNumeric, rec.line,
				fmt.Sprintf("%s value %q is not numeric", col.Name, cell.Value), col.Name))
			continue
		}

		if col.BadRange != nil && !col.BadRange.Contains(v) {
			if err := a.raise(rec, i, FlagBad); err != nil {
				return nil, err
			}
			msgs = append(msgs, dataMessage(SeverityError, CodeOutOfRangeBad, rec.line,
				fmt.Sprintf("%s value %s is out of range %s", col.Name, cell.Value, col.BadRange), col.Name))
			continue
		}

		if col.QuestionableRange != nil && !col.QuestionableRange.Contains(v) {
			if err := a.raise(rec, i, col.RangeFlag); err != nil {
				return nil, err
			}
			msgs = append(msgs, dataMessage(severityFor(col.RangeFlag), CodeOutOfRangeQuestionable, rec.line,
				fmt.Sprintf("%s value %s is out of the expected range %s", col.Name, cell.Value, col.QuestionableRange), col.Name))
		}
	}
	return msgs, nil
}

// raise raises a flag on flag-bearing columns. Columns declared with
// RoleNone still get their message but carry no flag.
func (a *Assembler) raise(rec *Record, i int, f Flag) error {
	if !a.registry.columns[i].HasFlag() {
		return nil
	}
	return rec.raise(i, f)
}

// groupEmpty reports whether every member of a required group is empty.
func (a *Assembler) groupEmpty(rec *Record, group string) bool {
	for _, name := range a.registry.groups[group] {
		if i, ok := a.registry.position(name); ok && !rec.cells[i].Empty {
			return false
		}
	}
	return true
}

// present reports whether a column is part of this dataset: data columns
// count only when bound to an input field.
func (a *Assembler) present(i int) bool {
	return a.registry.columns[i].Source != SourceRawData || a.bindings[i] != nil
}

func (a *Assembler) cascadePhase(rec *Record) error {
	if rec.dateFlag != FlagBad {
		return nil
	}
	for i, col := range a.registry.columns {
		if col.FlagRole != RoleCascadeTarget {
			continue
		}
		if err := rec.raise(i, FlagBad); err != nil {
			return err
		}
	}
	return nil
}
