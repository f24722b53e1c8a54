package columns

import (
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/sanitycheck/internal/core"
)

// Calculator names accepted in column configuration files.
const (
	CalcExpocode     = "expocode"
	CalcDeltaTemp    = "delta_temp"
	CalcFCO2FromXCO2 = "fco2_from_xco2"
	CalcDayOfYear    = "day_of_year"
)

// standardPressure is one atmosphere in hPa.
const standardPressure = 1013.25

// Calculators returns the built-in compute functions by name. The returned
// map is a fresh copy and may be extended by the caller.
func Calculators() map[string]core.ComputeFunc {
	return map[string]core.ComputeFunc{
		CalcExpocode:     expocode,
		CalcDeltaTemp:    deltaTemp,
		CalcFCO2FromXCO2: fco2FromXCO2,
		CalcDayOfYear:    dayOfYear,
	}
}

// expocode normalizes the dataset's expedition code from metadata.
func expocode(md core.Metadata, _ core.RecordView) (string, error) {
	v, ok := md.Get(MetaExpocode)
	if !ok {
		return "", nil
	}
	return strings.ToUpper(strings.TrimSpace(v)), nil
}

// deltaTemp is the equilibrator temperature minus the sea surface temperature.
func deltaTemp(_ core.Metadata, rec core.RecordView) (string, error) {
	vals, ok := numbers(rec, ColTempEqui, ColTemp)
	if !ok {
		return "", nil
	}
	return formatRounded(vals[0]-vals[1], 3), nil
}

// fco2FromXCO2 approximates fCO2 from the dry mole fraction and the
// equilibrator pressure, ignoring water vapour and non-ideality.
func fco2FromXCO2(_ core.Metadata, rec core.RecordView) (string, error) {
	vals, ok := numbers(rec, ColXCO2Water, ColPressEqui)
	if !ok {
		return "", nil
	}
	if vals[1] <= 0 {
		return "", nil
	}
	return formatRounded(vals[0]*vals[1]/standardPressure, 3), nil
}

// dayOfYear is the fractional day of year of the resolved timestamp, with
// January 1st 00:00 as 1.0.
func dayOfYear(_ core.Metadata, rec core.RecordView) (string, error) {
	iso, ok := rec.Value(core.ColumnISODate)
	if !ok {
		return "", nil
	}
	// A raw-data binding can leave unresolved text in iso_date.
	t, err := time.Parse(core.ISOLayout, iso)
	if err != nil {
		return "", nil
	}
	secs := t.Hour()*3600 + t.Minute()*60 + t.Second()
	frac := (float64(secs) + float64(t.Nanosecond())/1e9) / 86400
	return formatRounded(float64(t.YearDay())+frac, 5), nil
}

// numbers reads the named columns as numbers. ok is false if any is
// missing or not numeric; the numeric check reports those separately.
func numbers(rec core.RecordView, names ...string) ([]float64, bool) {
	out := make([]float64, len(names))
	for i, name := range names {
		v, ok := rec.Value(name)
		if !ok {
			return nil, false
		}
		f, err := core.ParseNumber(v)
		if err != nil {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

func formatRounded(f float64, digits int) string {
	s := strconv.FormatFloat(f, 'f', digits, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}
