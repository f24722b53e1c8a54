package core

// registry.go holds the column configuration registry.
//
// A Registry is built once from a list of ColumnConfig values, validated, and
// never modified afterwards. It is owned by the caller and passed to every
// Assembler explicitly, so concurrent row checks can share it without locks.

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Fixed bad ranges for position columns. These override any configured range.
var (
	LongitudeRange = Range{Min: -180, Max: 360}
	LatitudeRange  = Range{Min: -90, Max: 90}
)

var (
	longitudeNames = []string{"longitude", "lon"}
	latitudeNames  = []string{"latitude", "lat"}
)

// Registry is an immutable, validated set of column configurations.
type Registry struct {
	columns []ColumnConfig
	index   map[string]int // lowercase name -> position in columns
	groups  map[string][]string
}

// NewRegistry validates cols and builds a registry preserving their order.
//
// Every problem found is reported; the returned error joins one *ConfigError
// per fault and no registry is returned when any fault exists. After
// validation, longitude and latitude columns are forced to be required and
// numeric with fixed bad ranges and no questionable range.
func NewRegistry(cols []ColumnConfig) (*Registry, error) {
	if len(cols) == 0 {
		return nil, &ConfigError{Message: "no columns declared"}
	}

	var errs []error
	columns := make([]ColumnConfig, 0, len(cols))
	index := make(map[string]int, len(cols))

	for i, col := range cols {
		col.Name = strings.TrimSpace(col.Name)
		col.RequiredGroup = strings.TrimSpace(col.RequiredGroup)
		if col.Name == "" {
			errs = append(errs, configErrorf(fmt.Sprintf("#%d", i+1), "column name is empty"))
			continue
		}
		key := strings.ToLower(col.Name)
		if _, dup := index[key]; dup {
			errs = append(errs, configErrorf(col.Name, "duplicate column name"))
			continue
		}

		errs = append(errs, validateColumn(col)...)

		col = cloneColumn(col)
		normalizeColumn(&col)
		index[key] = len(columns)
		columns = append(columns, col)
	}

	errs = append(errs, validateDependencies(columns, index)...)

	groups := buildGroups(columns)
	for _, name := range sortedKeys(groups) {
		if members := groups[name]; len(members) < 2 {
			errs = append(errs, configErrorf(members[0],
				"required group %q has no other members", name))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for i := range columns {
		applyPositionOverride(&columns[i])
	}

	return &Registry{
		columns: columns,
		index:   index,
		groups:  buildGroups(columns),
	}, nil
}

// validateColumn checks a single column in isolation.
func validateColumn(col ColumnConfig) []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, configErrorf(col.Name, format, args...))
	}

	switch col.Source {
	case SourceUnset, SourceRawData:
	case SourceMetadata:
		if strings.TrimSpace(col.MetadataKey) == "" {
			fail("metadata column has no metadata key")
		}
	case SourceComputed:
		if col.Compute == nil {
			fail("computed column has no compute function")
		}
		if col.Required || col.RequiredGroup != "" {
			fail("computed column cannot be required")
		}
		if isPositionColumn(col.Name) {
			fail("position column cannot be computed")
		}
	default:
		fail("unknown data source %d", uint8(col.Source))
	}

	if col.Source != SourceComputed && len(col.DependsOn) > 0 {
		fail("only computed columns can declare dependencies")
	}

	if col.FlagRole > RoleCascadeTarget {
		fail("unknown flag role %d", uint8(col.FlagRole))
	}
	if col.MissingFlag > FlagBad || col.RangeFlag > FlagBad {
		fail("flag severity out of range")
	}

	for _, r := range []struct {
		label string
		rng   *Range
	}{
		{"questionable", col.QuestionableRange},
		{"bad", col.BadRange},
	} {
		if r.rng == nil {
			continue
		}
		if !col.Numeric {
			fail("%s range declared on a non-numeric column", r.label)
			continue
		}
		if math.IsNaN(r.rng.Min) || math.IsNaN(r.rng.Max) {
			fail("%s range has a NaN bound", r.label)
			continue
		}
		if r.rng.Min > r.rng.Max {
			fail("%s range minimum %g exceeds maximum %g", r.label, r.rng.Min, r.rng.Max)
		}
	}

	return errs
}

// validateDependencies checks that every DependsOn entry resolves and that
// computed dependencies are declared before the columns reading them.
func validateDependencies(columns []ColumnConfig, index map[string]int) []error {
	var errs []error
	for i, col := range columns {
		for _, dep := range col.DependsOn {
			j, ok := index[strings.ToLower(strings.TrimSpace(dep))]
			switch {
			case !ok:
				errs = append(errs, configErrorf(col.Name, "depends on unknown column %q", dep))
			case j == i:
				errs = append(errs, configErrorf(col.Name, "depends on itself"))
			case columns[j].Source == SourceComputed && j > i:
				errs = append(errs, configErrorf(col.Name,
					"depends on computed column %q declared after it", columns[j].Name))
			}
		}
	}
	return errs
}

// normalizeColumn applies the implicit rules every column follows.
func normalizeColumn(col *ColumnConfig) {
	if col.RequiredGroup != "" {
		col.Required = true
	}
	// Date sub-columns are filled by date resolution, which reports their
	// absence itself.
	if IsDateColumn(col.Name) {
		col.Required = false
		col.RequiredGroup = ""
	}
	if col.RangeFlag == FlagGood {
		col.RangeFlag = FlagQuestionable
	}
}

// applyPositionOverride forces the fixed longitude/latitude rules.
func applyPositionOverride(col *ColumnConfig) {
	var rng Range
	switch {
	case nameIn(col.Name, longitudeNames):
		rng = LongitudeRange
	case nameIn(col.Name, latitudeNames):
		rng = LatitudeRange
	default:
		return
	}
	col.Required = true
	col.RequiredGroup = ""
	col.Numeric = true
	col.QuestionableRange = nil
	col.BadRange = &rng
}

func isPositionColumn(name string) bool {
	return nameIn(name, longitudeNames) || nameIn(name, latitudeNames)
}

func nameIn(name string, set []string) bool {
	for _, s := range set {
		if strings.EqualFold(strings.TrimSpace(name), s) {
			return true
		}
	}
	return false
}

func buildGroups(columns []ColumnConfig) map[string][]string {
	groups := make(map[string][]string)
	for _, col := range columns {
		if col.RequiredGroup != "" {
			groups[col.RequiredGroup] = append(groups[col.RequiredGroup], col.Name)
		}
	}
	return groups
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// cloneColumn copies the reference-typed fields so callers cannot mutate a
// registry through a returned or supplied ColumnConfig.
func cloneColumn(col ColumnConfig) ColumnConfig {
	if col.DependsOn != nil {
		col.DependsOn = append([]string(nil), col.DependsOn...)
	}
	if col.QuestionableRange != nil {
		r := *col.QuestionableRange
		col.QuestionableRange = &r
	}
	if col.BadRange != nil {
		r := *col.BadRange
		col.BadRange = &r
	}
	return col
}

// Resolve returns the configuration for a column, matched case-insensitively.
func (r *Registry) Resolve(name string) (ColumnConfig, bool) {
	i, ok := r.position(name)
	if !ok {
		return ColumnConfig{}, false
	}
	return cloneColumn(r.columns[i]), true
}

// Columns returns every column in declaration order.
func (r *Registry) Columns() []ColumnConfig {
	out := make([]ColumnConfig, len(r.columns))
	for i, col := range r.columns {
		out[i] = cloneColumn(col)
	}
	return out
}

// Names returns every column name in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.columns))
	for i, col := range r.columns {
		out[i] = col.Name
	}
	return out
}

// RequiredGroups returns each required group with its member column names.
func (r *Registry) RequiredGroups() map[string][]string {
	out := make(map[string][]string, len(r.groups))
	for name, members := range r.groups {
		out[name] = append([]string(nil), members...)
	}
	return out
}

// Len returns the number of columns.
func (r *Registry) Len() int {
	return len(r.columns)
}

func (r *Registry) position(name string) (int, bool) {
	i, ok := r.index[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}
