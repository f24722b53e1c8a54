// Package columns declares the standard surface ocean CO2 column set and the
// calculators that derived columns are built from.
package columns

import (
	"github.com/JonMunkholm/sanitycheck/internal/core"
)

// Column names in the standard set.
const (
	ColExpocode  = "expocode"
	ColCruise    = "cruise_name"
	ColPlatform  = "platform_name"
	ColLongitude = "longitude"
	ColLatitude  = "latitude"
	ColDepth     = "sample_depth"
	ColSalinity  = "sal"
	ColTemp      = "temp"
	ColTempEqui  = "temp_equi"
	ColPressAtm  = "press_atm"
	ColPressEqui = "press_equi"
	ColXCO2Water = "xco2_water_equi_dry"
	ColFCO2Water = "fco2_water_sst_wet"
	ColDeltaTemp = "delta_temp"
	ColFCO2Calc  = "fco2_from_xco2"
	ColDayOfYear = "day_of_year"
)

// GroupCO2 is the required group of the CO2 measurement columns.
const GroupCO2 = "co2"

// Metadata keys read by the standard set.
const (
	MetaExpocode = "expocode"
	MetaCruise   = "cruise_name"
	MetaPlatform = "platform_name"
)

func rng(lo, hi float64) *core.Range {
	return &core.Range{Min: lo, Max: hi}
}

// Standard returns the standard column declarations in output order.
func Standard() []core.ColumnConfig {
	calc := Calculators()

	cols := []core.ColumnConfig{}
	cols = append(cols, metadataColumns(calc)...)
	cols = append(cols, dateColumns()...)
	cols = append(cols, positionColumns()...)
	cols = append(cols, measurementColumns()...)
	cols = append(cols, derivedColumns(calc)...)
	return cols
}

// StandardRegistry builds a registry from Standard.
func StandardRegistry() (*core.Registry, error) {
	return core.NewRegistry(Standard())
}

func metadataColumns(calc map[string]core.ComputeFunc) []core.ColumnConfig {
	return []core.ColumnConfig{
		{
			Name:        ColExpocode,
			Source:      core.SourceComputed,
			Compute:     calc[CalcExpocode],
			ComputeName: CalcExpocode,
		},
		{Name: ColCruise, Source: core.SourceMetadata, MetadataKey: MetaCruise},
		{Name: ColPlatform, Source: core.SourceMetadata, MetadataKey: MetaPlatform},
	}
}

// dateColumns are filled by date resolution. A date failure flags iso_date.
func dateColumns() []core.ColumnConfig {
	cols := make([]core.ColumnConfig, 0, len(core.DateColumns))
	for _, name := range core.DateColumns {
		col := core.ColumnConfig{Name: name}
		if name == core.ColumnISODate {
			col.FlagRole = core.RoleField
		} else {
			col.Numeric = true
		}
		cols = append(cols, col)
	}
	return cols
}

// positionColumns get fixed ranges from the registry regardless of what is
// declared here.
func positionColumns() []core.ColumnConfig {
	return []core.ColumnConfig{
		{Name: ColLongitude, Source: core.SourceRawData, FlagRole: core.RoleField, MissingFlag: core.FlagBad},
		{Name: ColLatitude, Source: core.SourceRawData, FlagRole: core.RoleField, MissingFlag: core.FlagBad},
	}
}

func measurementColumns() []core.ColumnConfig {
	return []core.ColumnConfig{
		{
			Name: ColDepth, Source: core.SourceRawData, Numeric: true,
			QuestionableRange: rng(0, 20), BadRange: rng(0, 10000),
		},
		{
			Name: ColSalinity, Source: core.SourceRawData, Numeric: true,
			QuestionableRange: rng(25, 42), BadRange: rng(0, 50),
			FlagRole: core.RoleCascading, MissingFlag: core.FlagQuestionable,
		},
		{
			Name: ColTemp, Source: core.SourceRawData, Numeric: true, Required: true,
			QuestionableRange: rng(-2, 35), BadRange: rng(-5, 50),
			FlagRole: core.RoleCascading, MissingFlag: core.FlagBad,
		},
		{
			Name: ColTempEqui, Source: core.SourceRawData, Numeric: true,
			QuestionableRange: rng(-2, 40), BadRange: rng(-5, 50),
			FlagRole: core.RoleField, MissingFlag: core.FlagQuestionable,
		},
		{
			Name: ColPressAtm, Source: core.SourceRawData, Numeric: true,
			QuestionableRange: rng(950, 1050), BadRange: rng(750, 1250),
			FlagRole: core.RoleField,
		},
		{
			Name: ColPressEqui, Source: core.SourceRawData, Numeric: true,
			QuestionableRange: rng(950, 1060), BadRange: rng(700, 1300),
			FlagRole: core.RoleField, MissingFlag: core.FlagQuestionable,
		},
		{
			Name: ColXCO2Water, Source: core.SourceRawData, Numeric: true, RequiredGroup: GroupCO2,
			QuestionableRange: rng(100, 1000), BadRange: rng(0, 5000),
			FlagRole: core.RoleCascadeTarget, MissingFlag: core.FlagBad,
		},
		{
			Name: ColFCO2Water, Source: core.SourceRawData, Numeric: true, RequiredGroup: GroupCO2,
			QuestionableRange: rng(100, 1000), BadRange: rng(0, 5000),
			FlagRole: core.RoleCascadeTarget, MissingFlag: core.FlagBad,
		},
	}
}

func derivedColumns(calc map[string]core.ComputeFunc) []core.ColumnConfig {
	return []core.ColumnConfig{
		{
			Name: ColDeltaTemp, Source: core.SourceComputed, Numeric: true,
			Compute: calc[CalcDeltaTemp], ComputeName: CalcDeltaTemp,
			DependsOn:         []string{ColTemp, ColTempEqui},
			QuestionableRange: rng(-1.5, 5), BadRange: rng(-5, 10),
			FlagRole:          core.RoleField,
		},
		{
			Name: ColFCO2Calc, Source: core.SourceComputed, Numeric: true,
			Compute: calc[CalcFCO2FromXCO2], ComputeName: CalcFCO2FromXCO2,
			DependsOn:         []string{ColXCO2Water, ColPressEqui},
			QuestionableRange: rng(100, 1000),
		},
		{
			Name: ColDayOfYear, Source: core.SourceComputed, Numeric: true,
			Compute: calc[CalcDayOfYear], ComputeName: CalcDayOfYear,
			DependsOn: []string{core.ColumnISODate},
			BadRange:  rng(1, 367),
		},
	}
}
