package colconfig

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/sanitycheck/internal/core"
)

// InputFile is the on-disk description of one dataset's layout. Column
// numbers are 1-based, matching how spreadsheets number them.
//
//	date_format: DD/MM/YYYY
//	header: true
//	date:
//	  - {kind: date, column: 1}
//	  - {kind: time, column: 2}
//	columns:
//	  - {name: temp, column: 5, conversion: fahrenheit_to_celsius, missing: ["-999"]}
//
// When columns is empty, data columns are bound by matching header names.
type InputFile struct {
	DateFormat string         `yaml:"date_format" toml:"date_format"`
	Header     bool           `yaml:"header" toml:"header"`
	Delimiter  string         `yaml:"delimiter" toml:"delimiter"`
	Comment    string         `yaml:"comment" toml:"comment"`
	Date       []DateEntry    `yaml:"date" toml:"date"`
	Columns    []BindingEntry `yaml:"columns" toml:"columns"`
}

// DateEntry declares one date/time element. For first_day_index, Value
// holds the index (0 or 1) and Column is unused.
type DateEntry struct {
	Kind   string `yaml:"kind" toml:"kind"`
	Column int    `yaml:"column" toml:"column"`
	Value  int    `yaml:"value" toml:"value"`
}

// BindingEntry binds an output column to an input column.
type BindingEntry struct {
	Name       string   `yaml:"name" toml:"name"`
	Column     int      `yaml:"column" toml:"column"`
	Conversion string   `yaml:"conversion" toml:"conversion"`
	Missing    []string `yaml:"missing" toml:"missing"`
}

// Input is a validated dataset layout.
type Input struct {
	Format   *core.DateFormat
	Date     core.DateSpec
	Bindings map[string]core.Binding // nil binds by header
	Read     core.ReadOptions

	formatDeclared bool
}

// LoadInput reads and validates an input layout file.
func LoadInput(path string) (*Input, error) {
	var f InputFile
	if err := decodeFile(path, &f); err != nil {
		return nil, &core.ConfigError{Message: fmt.Sprintf("read input layout %s", path), Err: err}
	}
	return f.Input()
}

// ParseInput decodes and validates an input layout held in memory.
func ParseInput(data []byte, format Format) (*Input, error) {
	var f InputFile
	if err := decode(data, format, &f); err != nil {
		return nil, &core.ConfigError{Message: "read input layout", Err: err}
	}
	return f.Input()
}

// Input validates the file contents.
func (f InputFile) Input() (*Input, error) {
	var errs []error

	format, err := core.NewDateFormat(f.DateFormat)
	if err != nil {
		errs = append(errs, err)
	}

	elements := make([]core.DateElement, 0, len(f.Date))
	for _, d := range f.Date {
		kind, err := core.ParseDateElementKind(d.Kind)
		if err != nil {
			errs = append(errs, &core.ConfigError{Message: err.Error()})
			continue
		}
		e := core.DateElement{Kind: kind, Value: d.Value}
		if kind != core.ElemFirstDayIndex {
			if d.Column < 1 {
				errs = append(errs, &core.ConfigError{Message: fmt.Sprintf("date element %s: column must be 1 or more, got %d", kind, d.Column)})
				continue
			}
			e.Column = d.Column - 1
		}
		elements = append(elements, e)
	}
	var date core.DateSpec
	if len(errs) == 0 {
		if date, err = core.NewDateSpec(elements); err != nil {
			errs = append(errs, err)
		}
	}

	var bindings map[string]core.Binding
	if len(f.Columns) > 0 {
		bindings = make(map[string]core.Binding, len(f.Columns))
		for _, b := range f.Columns {
			name := strings.TrimSpace(b.Name)
			switch {
			case name == "":
				errs = append(errs, &core.ConfigError{Message: "binding has no column name"})
				continue
			case b.Column < 1:
				errs = append(errs, &core.ConfigError{Column: name, Message: fmt.Sprintf("input column must be 1 or more, got %d", b.Column)})
				continue
			}
			if _, dup := bindings[name]; dup {
				errs = append(errs, &core.ConfigError{Column: name, Message: "bound twice"})
				continue
			}
			bindings[name] = core.Binding{
				Index:         b.Column - 1,
				Conversion:    strings.TrimSpace(b.Conversion),
				MissingValues: b.Missing,
			}
		}
	}

	read := core.ReadOptions{Header: f.Header}
	if read.Comma, err = singleRune("delimiter", f.Delimiter); err != nil {
		errs = append(errs, err)
	}
	if read.Comment, err = singleRune("comment", f.Comment); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Input{
		Format:         format,
		Date:           date,
		Bindings:       bindings,
		Read:           read,
		formatDeclared: strings.TrimSpace(f.DateFormat) != "",
	}, nil
}

// DefaultDateFormat sets the date format used when the layout declares none.
func (in *Input) DefaultDateFormat(format *core.DateFormat) {
	if !in.formatDeclared && format != nil {
		in.Format = format
	}
}

func singleRune(field, s string) (rune, error) {
	switch {
	case s == "":
		return 0, nil
	case s == `\t`:
		return '\t', nil
	case utf8.RuneCountInString(s) == 1:
		r, _ := utf8.DecodeRuneInString(s)
		return r, nil
	default:
		return 0, &core.ConfigError{Message: fmt.Sprintf("%s must be a single character, got %q", field, s)}
	}
}

// Spec returns the assembler input for a dataset. Without explicit
// bindings, data columns bind to header names.
func (in *Input) Spec(reg *core.Registry, header core.HeaderIndex) core.InputSpec {
	bindings := in.Bindings
	if bindings == nil {
		bindings = core.BindByHeader(reg, header)
	}
	return core.InputSpec{Bindings: bindings, Date: in.Date, Format: in.Format}
}
