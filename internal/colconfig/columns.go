package colconfig

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/sanitycheck/internal/core"
)

// ColumnsFile is the on-disk form of a column configuration.
//
//	columns:
//	  - name: temp
//	    source: D
//	    required: true
//	    numeric: true
//	    questionable: [-2, 35]
//	    bad: [-5, 50]
//	    role: F
//	    missing_flag: B
type ColumnsFile struct {
	Columns []ColumnEntry `json:"columns" yaml:"columns" toml:"columns"`
}

// ColumnEntry is one declared column. Source, Role and the flags accept
// either their names or the single-letter codes.
type ColumnEntry struct {
	Name         string    `json:"name" yaml:"name" toml:"name"`
	Source       string    `json:"source" yaml:"source" toml:"source"`
	MetadataKey  string    `json:"metadata_key,omitempty" yaml:"metadata_key,omitempty" toml:"metadata_key,omitempty"`
	Calculator   string    `json:"calculator,omitempty" yaml:"calculator,omitempty" toml:"calculator,omitempty"`
	DependsOn    []string  `json:"depends_on,omitempty" yaml:"depends_on,omitempty" toml:"depends_on,omitempty"`
	Required     bool      `json:"required,omitempty" yaml:"required,omitempty" toml:"required,omitempty"`
	Group        string    `json:"group,omitempty" yaml:"group,omitempty" toml:"group,omitempty"`
	Numeric      bool      `json:"numeric,omitempty" yaml:"numeric,omitempty" toml:"numeric,omitempty"`
	Questionable []float64 `json:"questionable,omitempty" yaml:"questionable,omitempty" toml:"questionable,omitempty"`
	Bad          []float64 `json:"bad,omitempty" yaml:"bad,omitempty" toml:"bad,omitempty"`
	Role         string    `json:"role,omitempty" yaml:"role,omitempty" toml:"role,omitempty"`
	MissingFlag  string    `json:"missing_flag,omitempty" yaml:"missing_flag,omitempty" toml:"missing_flag,omitempty"`
	RangeFlag    string    `json:"range_flag,omitempty" yaml:"range_flag,omitempty" toml:"range_flag,omitempty"`
}

// LoadColumns reads a column configuration file and builds a registry.
// Calculator names resolve through calculators.
func LoadColumns(path string, calculators map[string]core.ComputeFunc) (*core.Registry, error) {
	var f ColumnsFile
	if err := decodeFile(path, &f); err != nil {
		return nil, &core.ConfigError{Message: fmt.Sprintf("read %s", path), Err: err}
	}
	return f.Registry(calculators)
}

// Registry converts the file entries and validates them. Every fault found
// in the entries is reported before registry validation runs.
func (f ColumnsFile) Registry(calculators map[string]core.ComputeFunc) (*core.Registry, error) {
	cols := make([]core.ColumnConfig, 0, len(f.Columns))
	var errs []error
	for i, e := range f.Columns {
		col, err := e.toColumn(calculators)
		if err != nil {
			errs = append(errs, columnError(e.Name, i, err))
			continue
		}
		cols = append(cols, col)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return core.NewRegistry(cols)
}

func columnError(name string, i int, err error) error {
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("#%d", i+1)
	}
	return &core.ConfigError{Column: name, Message: err.Error()}
}

func (e ColumnEntry) toColumn(calculators map[string]core.ComputeFunc) (core.ColumnConfig, error) {
	col := core.ColumnConfig{
		Name:          e.Name,
		MetadataKey:   e.MetadataKey,
		DependsOn:     e.DependsOn,
		Required:      e.Required,
		RequiredGroup: e.Group,
		Numeric:       e.Numeric,
	}

	var err error
	if col.Source, err = core.ParseSource(e.Source); err != nil {
		return col, err
	}
	if col.FlagRole, err = core.ParseFlagRole(e.Role); err != nil {
		return col, err
	}
	if col.MissingFlag, err = parseOptionalFlag(e.MissingFlag); err != nil {
		return col, fmt.Errorf("missing_flag: %w", err)
	}
	if col.RangeFlag, err = parseOptionalFlag(e.RangeFlag); err != nil {
		return col, fmt.Errorf("range_flag: %w", err)
	}
	if col.QuestionableRange, err = parseRange(e.Questionable); err != nil {
		return col, fmt.Errorf("questionable: %w", err)
	}
	if col.BadRange, err = parseRange(e.Bad); err != nil {
		return col, fmt.Errorf("bad: %w", err)
	}

	name := strings.TrimSpace(e.Calculator)
	switch {
	case col.Source == core.SourceComputed && name == "":
		return col, errors.New("computed column has no calculator")
	case col.Source == core.SourceComputed:
		fn, ok := calculators[name]
		if !ok {
			return col, fmt.Errorf("unknown calculator %q", name)
		}
		col.Compute = fn
		col.ComputeName = name
	case name != "":
		return col, fmt.Errorf("calculator %q declared on a %s column", name, col.Source)
	}

	return col, nil
}

func parseOptionalFlag(s string) (core.Flag, error) {
	if strings.TrimSpace(s) == "" {
		return core.FlagGood, nil
	}
	return core.ParseFlag(s)
}

func parseRange(bounds []float64) (*core.Range, error) {
	switch len(bounds) {
	case 0:
		return nil, nil
	case 2:
		return &core.Range{Min: bounds[0], Max: bounds[1]}, nil
	default:
		return nil, fmt.Errorf("range needs exactly two bounds, got %d", len(bounds))
	}
}

// FromRegistry renders a registry back into its file form.
func FromRegistry(reg *core.Registry) ColumnsFile {
	cols := reg.Columns()
	f := ColumnsFile{Columns: make([]ColumnEntry, 0, len(cols))}
	for _, c := range cols {
		e := ColumnEntry{
			Name:        c.Name,
			Source:      sourceCode(c.Source),
			MetadataKey: c.MetadataKey,
			Calculator:  c.ComputeName,
			DependsOn:   c.DependsOn,
			Required:    c.Required,
			Group:       c.RequiredGroup,
			Numeric:     c.Numeric,
			Role:        roleCode(c.FlagRole),
		}
		if c.QuestionableRange != nil {
			e.Questionable = []float64{c.QuestionableRange.Min, c.QuestionableRange.Max}
		}
		if c.BadRange != nil {
			e.Bad = []float64{c.BadRange.Min, c.BadRange.Max}
		}
		if c.MissingFlag != core.FlagGood {
			e.MissingFlag = c.MissingFlag.Letter()
		}
		if c.RangeFlag != core.FlagGood {
			e.RangeFlag = c.RangeFlag.Letter()
		}
		f.Columns = append(f.Columns, e)
	}
	return f
}

func sourceCode(s core.Source) string {
	switch s {
	case core.SourceRawData:
		return "D"
	case core.SourceMetadata:
		return "M"
	case core.SourceComputed:
		return "C"
	default:
		return "N"
	}
}

func roleCode(r core.FlagRole) string {
	switch r {
	case core.RoleField:
		return "F"
	case core.RoleCascading:
		return "C"
	case core.RoleCascadeTarget:
		return "X"
	default:
		return "N"
	}
}
