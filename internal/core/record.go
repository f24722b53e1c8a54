package core

import (
	"time"

	"github.com/bytedance/sonic"
)

// Cell is one column's value in an output record.
type Cell struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Flag  Flag   `json:"flag"`
	Empty bool   `json:"empty"`
}

// Record is the validated output for one input row. It is built by an
// Assembler and never modified once returned.
type Record struct {
	line      int
	registry  *Registry
	cells     []Cell // registry order
	dateFlag  Flag
	timestamp time.Time
	hasTime   bool
}

func newRecord(line int, reg *Registry) *Record {
	rec := &Record{
		line:     line,
		registry: reg,
		cells:    make([]Cell, len(reg.columns)),
	}
	for i, col := range reg.columns {
		rec.cells[i] = Cell{Name: col.Name}
		rec.setMissing(i)
	}
	return rec
}

// Line returns the input line the record was built from.
func (r *Record) Line() int {
	return r.line
}

// Cell returns the named cell, matched case-insensitively.
func (r *Record) Cell(name string) (Cell, bool) {
	i, ok := r.registry.position(name)
	if !ok {
		return Cell{}, false
	}
	return r.cells[i], true
}

// Value implements RecordView. ok is false for unknown or empty columns.
func (r *Record) Value(name string) (string, bool) {
	c, ok := r.Cell(name)
	if !ok || c.Empty {
		return "", false
	}
	return c.Value, true
}

// Cells returns a copy of every cell in registry order.
func (r *Record) Cells() []Cell {
	return append([]Cell(nil), r.cells...)
}

// DateFlag returns Bad when date resolution failed and Good otherwise.
func (r *Record) DateFlag() Flag {
	return r.dateFlag
}

// Timestamp returns the resolved UTC timestamp. ok is false when date
// resolution failed.
func (r *Record) Timestamp() (time.Time, bool) {
	return r.timestamp, r.hasTime
}

// WorstFlag returns the most severe flag on the record, including the date flag.
func (r *Record) WorstFlag() Flag {
	worst := r.dateFlag
	for _, c := range r.cells {
		worst = Raise(worst, c.Flag)
	}
	return worst
}

type recordJSON struct {
	Line      int    `json:"line"`
	Timestamp string `json:"timestamp,omitempty"`
	DateFlag  Flag   `json:"date_flag"`
	Cells     []Cell `json:"cells"`
}

// MarshalJSON encodes the record with its cells in registry order.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{Line: r.line, DateFlag: r.dateFlag, Cells: r.cells}
	if r.hasTime {
		out.Timestamp = FormatISO(r.timestamp)
	}
	return sonic.Marshal(out)
}

// set stores a present value.
func (r *Record) set(i int, value string) {
	r.cells[i].Value = value
	r.cells[i].Empty = false
}

// setMissing stores the missing sentinel for the column's type.
func (r *Record) setMissing(i int) {
	if r.registry.columns[i].Numeric {
		r.cells[i].Value = MissingNumeric
	} else {
		r.cells[i].Value = ""
	}
	r.cells[i].Empty = true
}

// raise raises a cell's flag. Raising any flag on a column declared with
// RoleNone is a contract fault.
func (r *Record) raise(i int, f Flag) error {
	col := r.registry.columns[i]
	if !col.HasFlag() {
		return &ContractError{Line: r.line, Column: col.Name, Err: ErrNoFlag}
	}
	r.cells[i].Flag = Raise(r.cells[i].Flag, f)
	return nil
}

// computeView is the RecordView passed to a compute function. The column
// being computed always reads as missing.
type computeView struct {
	rec  *Record
	self int
}

func (v computeView) Value(name string) (string, bool) {
	if i, ok := v.rec.registry.position(name); ok && i == v.self {
		return "", false
	}
	return v.rec.Value(name)
}
