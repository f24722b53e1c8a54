package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"
)

// Input layout used throughout: yr mon day hh mm ss lon lat sst sal xco2 pco2 note
const (
	inLon = iota + 6
	inLat
	inSST
	inSal
	inXCO2
	inPCO2
	inNote
)

func testColumns() []ColumnConfig {
	return []ColumnConfig{
		{Name: "expocode", Source: SourceMetadata, MetadataKey: "expocode"},
		{Name: "yr"},
		{Name: "mon"},
		{Name: "day"},
		{Name: "hh"},
		{Name: "mm"},
		{Name: "ss"},
		{Name: "iso_date", FlagRole: RoleField},
		{Name: "lon", Source: SourceRawData, FlagRole: RoleField, MissingFlag: FlagBad},
		{Name: "lat", Source: SourceRawData, FlagRole: RoleField, MissingFlag: FlagBad},
		{
			Name: "sst", Source: SourceRawData, Numeric: true, Required: true,
			QuestionableRange: &Range{Min: -2, Max: 35}, BadRange: &Range{Min: -5, Max: 50},
			FlagRole: RoleField, MissingFlag: FlagBad,
		},
		{
			Name: "sal", Source: SourceRawData, Numeric: true,
			QuestionableRange: &Range{Min: 0, Max: 45}, FlagRole: RoleCascadeTarget,
		},
		{Name: "xco2", Source: SourceRawData, Numeric: true, RequiredGroup: "co2", FlagRole: RoleCascading, MissingFlag: FlagQuestionable},
		{Name: "pco2", Source: SourceRawData, Numeric: true, RequiredGroup: "co2", FlagRole: RoleCascading, MissingFlag: FlagQuestionable},
		{Name: "note", Source: SourceRawData, Required: true, MissingFlag: FlagBad},
		{
			Name: "sst_minus_one", Source: SourceComputed, Numeric: true, DependsOn: []string{"sst"},
			Compute: func(_ Metadata, rec RecordView) (string, error) {
				v, ok := rec.Value("sst")
				if !ok {
					return "", nil
				}
				f, err := ParseNumber(v)
				if err != nil {
					return "", nil
				}
				return FormatNumber(f - 1), nil
			},
		},
	}
}

func testBindings() map[string]Binding {
	return map[string]Binding{
		"lon":  {Index: inLon},
		"lat":  {Index: inLat},
		"sst":  {Index: inSST, MissingValues: []string{"-999"}},
		"sal":  {Index: inSal},
		"xco2": {Index: inXCO2},
		"pco2": {Index: inPCO2},
		"note": {Index: inNote},
	}
}

var testDateSpec = IndividualFields{Year: 0, Month: 1, Day: 2, Hour: 3, Minute: 4, Second: 5}

var testMetadata = Metadata{"expocode": "33RO20060610"}

func newTestAssembler(t *testing.T, cols []ColumnConfig, bindings map[string]Binding) *Assembler {
	t.Helper()
	reg, err := NewRegistry(cols)
	if err != nil {
		t.Fatalf("NewRegistry() unexpected error: %v", err)
	}
	asm, err := NewAssembler(reg, InputSpec{Bindings: bindings, Date: testDateSpec}, WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("NewAssembler() unexpected error: %v", err)
	}
	return asm
}

func goodRow() []string {
	return []string{"2006", "6", "10", "23", "48", "30.5", "-45.25", "12.5", "18.2", "35.1", "380.5", "370.1", "ok"}
}

func rowWith(changes map[int]string) []string {
	row := goodRow()
	for i, v := range changes {
		row[i] = v
	}
	return row
}

func mustCell(t *testing.T, rec *Record, name string) Cell {
	t.Helper()
	c, ok := rec.Cell(name)
	if !ok {
		t.Fatalf("record has no column %q", name)
	}
	return c
}

func codes(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Code + ":" + strings.Join(m.Columns, "+")
	}
	return out
}

// ----------------------------------------------------------------------------
// Clean Row Tests
// ----------------------------------------------------------------------------

func TestAssemble_CleanRow(t *testing.T) {
	asm := newTestAssembler(t, testColumns(), testBindings())

	rec, msgs, err := asm.Assemble(2, goodRow(), testMetadata)
	if err != nil {
		t.Fatalf("Assemble() unexpected error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("Assemble() messages = %v, want none", msgs)
	}

	wantValues := map[string]string{
		"expocode":      "33RO20060610",
		"yr":            "2006",
		"mon":           "6",
		"day":           "10",
		"hh":            "23",
		"mm":            "48",
		"ss":            "30.5",
		"iso_date":      "2006-06-10T23:48:30.500",
		"lon":           "-45.25",
		"sst":           "18.2",
		"sst_minus_one": "17.2",
		"note":          "ok",
	}
	for name, want := range wantValues {
		if got := mustCell(t, rec, name); got.Value != want || got.Empty {
			t.Errorf("%s = %+v, want value %q", name, got, want)
		}
	}

	if rec.WorstFlag() != FlagGood {
		t.Errorf("WorstFlag() = %s, want good", rec.WorstFlag())
	}
	if rec.Line() != 2 {
		t.Errorf("Line() = %d, want 2", rec.Line())
	}
	ts, ok := rec.Timestamp()
	if !ok || FormatISO(ts) != "2006-06-10T23:48:30.500" {
		t.Errorf("Timestamp() = %v, %v", ts, ok)
	}
	if got := len(rec.Cells()); got != asm.Registry().Len() {
		t.Errorf("len(Cells()) = %d, want one per registry column", got)
	}
}

// ----------------------------------------------------------------------------
// Check Phase Tests
// ----------------------------------------------------------------------------

func TestAssemble_Checks(t *testing.T) {
	tests := []struct {
		name      string
		changes   map[int]string
		wantCodes []string
		wantFlags map[string]Flag
		wantValue map[string]string
	}{
		{
			name:      "longitude out of fixed range",
			changes:   map[int]string{inLon: "400"},
			wantCodes: []string{"RNG001:lon"},
			wantFlags: map[string]Flag{"lon": FlagBad},
			wantValue: map[string]string{"lon": "400"},
		},
		{
			name:      "longitude missing",
			changes:   map[int]string{inLon: ""},
			wantCodes: []string{"MISS001:lon"},
			wantFlags: map[string]Flag{"lon": FlagBad},
			wantValue: map[string]string{"lon": MissingNumeric},
		},
		{
			name:      "latitude at boundary is good",
			changes:   map[int]string{inLat: "-90"},
			wantCodes: nil,
			wantFlags: map[string]Flag{"lat": FlagGood},
		},
		{
			name:      "questionable range",
			changes:   map[int]string{inSST: "40"},
			wantCodes: []string{"RNG002:sst"},
			wantFlags: map[string]Flag{"sst": FlagQuestionable},
		},
		{
			name:      "bad range takes precedence",
			changes:   map[int]string{inSST: "60"},
			wantCodes: []string{"RNG001:sst"},
			wantFlags: map[string]Flag{"sst": FlagBad},
		},
		{
			name:      "not numeric",
			changes:   map[int]string{inSST: "warm"},
			wantCodes: []string{"NUM001:sst"},
			wantFlags: map[string]Flag{"sst": FlagBad},
			wantValue: map[string]string{"sst": "warm", "sst_minus_one": MissingNumeric},
		},
		{
			name:      "binding missing marker",
			changes:   map[int]string{inSST: "-999.0"},
			wantCodes: []string{"MISS001:sst"},
			wantFlags: map[string]Flag{"sst": FlagBad},
			wantValue: map[string]string{"sst": MissingNumeric},
		},
		{
			name:      "optional column missing is silent",
			changes:   map[int]string{inSal: "NA"},
			wantCodes: nil,
			wantFlags: map[string]Flag{"sal": FlagGood},
			wantValue: map[string]string{"sal": MissingNumeric},
		},
		{
			name:      "one group member present",
			changes:   map[int]string{inXCO2: ""},
			wantCodes: nil,
			wantFlags: map[string]Flag{"xco2": FlagGood, "pco2": FlagGood},
		},
		{
			name:      "whole group missing",
			changes:   map[int]string{inXCO2: "", inPCO2: "NaN"},
			wantCodes: []string{"MISS002:xco2", "MISS002:pco2"},
			wantFlags: map[string]Flag{"xco2": FlagQuestionable, "pco2": FlagQuestionable},
		},
		{
			name:      "unflagged column still reported",
			changes:   map[int]string{inNote: ""},
			wantCodes: []string{"MISS001:note"},
			wantFlags: map[string]Flag{"note": FlagGood},
		},
		{
			name:      "several problems in registry order",
			changes:   map[int]string{inLat: "95", inSST: "40"},
			wantCodes: []string{"RNG001:lat", "RNG002:sst"},
			wantFlags: map[string]Flag{"lat": FlagBad, "sst": FlagQuestionable},
		},
	}

	asm := newTestAssembler(t, testColumns(), testBindings())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, msgs, err := asm.Assemble(5, rowWith(tt.changes), testMetadata)
			if err != nil {
				t.Fatalf("Assemble() unexpected error: %v", err)
			}
			if got := codes(msgs); !reflect.DeepEqual(got, append([]string{}, tt.wantCodes...)) {
				t.Errorf("messages = %v, want %v", got, tt.wantCodes)
			}
			for _, m := range msgs {
				if m.Line != 5 || m.Category != CategoryData {
					t.Errorf("message %v: want line 5, data category", m)
				}
			}
			for name, want := range tt.wantFlags {
				if got := mustCell(t, rec, name).Flag; got != want {
					t.Errorf("%s flag = %s, want %s", name, got, want)
				}
			}
			for name, want := range tt.wantValue {
				if got := mustCell(t, rec, name).Value; got != want {
					t.Errorf("%s value = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestAssemble_MessageSeverity(t *testing.T) {
	asm := newTestAssembler(t, testColumns(), testBindings())

	_, msgs, err := asm.Assemble(1, rowWith(map[int]string{inSST: "40", inLon: "400"}), testMetadata)
	if err != nil {
		t.Fatalf("Assemble() unexpected error: %v", err)
	}
	for _, m := range msgs {
		switch m.Code {
		case CodeOutOfRangeBad:
			if m.Severity != SeverityError {
				t.Errorf("%s severity = %s, want error", m.Code, m.Severity)
			}
		case CodeOutOfRangeQuestionable:
			if m.Severity != SeverityWarning {
				t.Errorf("%s severity = %s, want warning", m.Code, m.Severity)
			}
		}
	}
}

func TestAssemble_GroupOnlyReportsPresentMembers(t *testing.T) {
	bindings := testBindings()
	delete(bindings, "pco2")
	asm := newTestAssembler(t, testColumns(), bindings)

	rec, msgs, err := asm.Assemble(1, rowWith(map[int]string{inXCO2: ""}), testMetadata)
	if err != nil {
		t.Fatalf("Assemble() unexpected error: %v", err)
	}
	if got := codes(msgs); !reflect.DeepEqual(got, []string{"MISS002:xco2"}) {
		t.Errorf("messages = %v, want only the bound member", got)
	}
	if got := mustCell(t, rec, "pco2").Flag; got != FlagGood {
		t.Errorf("unbound pco2 flag = %s, want good", got)
	}
}

func TestAssemble_ShortRow(t *testing.T) {
	asm := newTestAssembler(t, testColumns(), testBindings())

	row := goodRow()[:inSal]
	rec, msgs, err := asm.Assemble(1, row, testMetadata)
	if err != nil {
		t.Fatalf("Assemble() unexpected error: %v", err)
	}
	if got := codes(msgs); !reflect.DeepEqual(got, []string{"MISS002:xco2", "MISS002:pco2", "MISS001:note"}) {
		t.Errorf("messages = %v", got)
	}
	if c := mustCell(t, rec, "sal"); !c.Empty {
		t.Errorf("sal = %+v, want empty", c)
	}
}

// ----------------------------------------------------------------------------
// Date Phase and Cascade Tests
// ----------------------------------------------------------------------------

func TestAssemble_DateFailure(t *testing.T) {
	tests := []struct {
		name     string
		changes  map[int]string
		wantCode string
	}{
		{name: "unparseable month", changes: map[int]string{1: "13"}, wantCode: CodeDateInvalid},
		{name: "missing hour", changes: map[int]string{3: ""}, wantCode: CodeDateMissing},
		{name: "future date", changes: map[int]string{0: "2030"}, wantCode: CodeDateInvalid},
	}

	asm := newTestAssembler(t, testColumns(), testBindings())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, msgs, err := asm.Assemble(3, rowWith(tt.changes), testMetadata)
			if err != nil {
				t.Fatalf("Assemble() unexpected error: %v", err)
			}
			if len(msgs) != 1 || msgs[0].Code != tt.wantCode || msgs[0].Severity != SeverityError {
				t.Fatalf("messages = %v, want one %s error", msgs, tt.wantCode)
			}
			if rec.DateFlag() != FlagBad {
				t.Errorf("DateFlag() = %s, want bad", rec.DateFlag())
			}
			if _, ok := rec.Timestamp(); ok {
				t.Error("Timestamp() ok after date failure")
			}

			// Every cascade target is Bad, whatever its own value.
			for _, col := range asm.Registry().Columns() {
				cell := mustCell(t, rec, col.Name)
				switch col.FlagRole {
				case RoleCascadeTarget:
					if cell.Flag != FlagBad {
						t.Errorf("cascade target %s flag = %s, want bad", col.Name, cell.Flag)
					}
				case RoleCascading:
					if cell.Flag != FlagGood {
						t.Errorf("cascading column %s flag = %s, want good", col.Name, cell.Flag)
					}
				}
			}

			if c := mustCell(t, rec, "iso_date"); c.Flag != FlagBad || !c.Empty {
				t.Errorf("iso_date = %+v, want empty and bad", c)
			}
			if c := mustCell(t, rec, "yr"); !c.Empty || c.Flag != FlagGood {
				t.Errorf("yr = %+v, want empty and unflagged", c)
			}
			if c := mustCell(t, rec, "sst"); c.Flag != FlagGood || c.Value != "18.2" {
				t.Errorf("sst = %+v, want untouched", c)
			}
		})
	}
}

func TestAssemble_DateFailureWithOtherFaults(t *testing.T) {
	asm := newTestAssembler(t, testColumns(), testBindings())

	_, msgs, err := asm.Assemble(1, rowWith(map[int]string{2: "31", 1: "6", inSST: "60"}), testMetadata)
	if err != nil {
		t.Fatalf("Assemble() unexpected error: %v", err)
	}
	if got := codes(msgs); len(got) != 2 || !strings.HasPrefix(got[0], CodeDateInvalid) || got[1] != "RNG001:sst" {
		t.Errorf("messages = %v, want date fault first then range fault", got)
	}
}

// ----------------------------------------------------------------------------
// Contract Fault Tests
// ----------------------------------------------------------------------------

func TestAssemble_ComputeFailures(t *testing.T) {
	tests := []struct {
		name    string
		compute ComputeFunc
	}{
		{
			name: "returns error",
			compute: func(Metadata, RecordView) (string, error) {
				return "", errors.New("division by zero")
			},
		},
		{
			name: "panics",
			compute: func(Metadata, RecordView) (string, error) {
				var m map[string]int
				m["boom"]++
				return "", nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols := testColumns()
			cols = append(cols, ColumnConfig{Name: "broken", Source: SourceComputed, Compute: tt.compute})
			asm := newTestAssembler(t, cols, testBindings())

			rec, msgs, err := asm.Assemble(9, goodRow(), testMetadata)
			if rec != nil || msgs != nil {
				t.Errorf("Assemble() returned record %v and messages %v with a contract fault", rec, msgs)
			}
			var ce *ContractError
			if !errors.As(err, &ce) {
				t.Fatalf("error = %v, want *ContractError", err)
			}
			if ce.Line != 9 || ce.Column != "broken" {
				t.Errorf("ContractError = %+v, want line 9, column broken", ce)
			}
			if !errors.Is(err, ErrComputeFailed) {
				t.Errorf("error %v does not wrap ErrComputeFailed", err)
			}
		})
	}
}

func TestRecord_RaiseOnUnflaggedColumn(t *testing.T) {
	reg, err := NewRegistry([]ColumnConfig{{Name: "note"}, {Name: "sst", FlagRole: RoleField}})
	if err != nil {
		t.Fatalf("NewRegistry() unexpected error: %v", err)
	}
	rec := newRecord(4, reg)

	err = rec.raise(0, FlagBad)
	if !errors.Is(err, ErrNoFlag) {
		t.Fatalf("raise on RoleNone = %v, want ErrNoFlag", err)
	}
	if !IsContractError(err) {
		t.Errorf("error %v is not a ContractError", err)
	}

	if err := rec.raise(1, FlagQuestionable); err != nil {
		t.Fatalf("raise on RoleField unexpected error: %v", err)
	}
	if err := rec.raise(1, FlagGood); err != nil {
		t.Fatalf("raise on RoleField unexpected error: %v", err)
	}
	if got := rec.cells[1].Flag; got != FlagQuestionable {
		t.Errorf("flag after lower raise = %s, want questionable", got)
	}
}

func TestAssemble_ComputeCannotReadItself(t *testing.T) {
	var sawSelf bool
	cols := testColumns()
	cols = append(cols, ColumnConfig{
		Name: "echo", Source: SourceComputed,
		Compute: func(_ Metadata, rec RecordView) (string, error) {
			_, sawSelf = rec.Value("echo")
			expo, _ := rec.Value("expocode")
			return expo, nil
		},
	})
	asm := newTestAssembler(t, cols, testBindings())

	rec, _, err := asm.Assemble(1, goodRow(), testMetadata)
	if err != nil {
		t.Fatalf("Assemble() unexpected error: %v", err)
	}
	if sawSelf {
		t.Error("compute function could read its own column")
	}
	if got := mustCell(t, rec, "echo").Value; got != "33RO20060610" {
		t.Errorf("echo = %q, want metadata value copied before compute phase", got)
	}
}

// ----------------------------------------------------------------------------
// Determinism Tests
// ----------------------------------------------------------------------------

func TestAssemble_Idempotent(t *testing.T) {
	asm := newTestAssembler(t, testColumns(), testBindings())
	rows := [][]string{
		goodRow(),
		rowWith(map[int]string{inLon: "400", inSST: "warm"}),
		rowWith(map[int]string{1: "13", inXCO2: "", inPCO2: ""}),
	}

	for i, row := range rows {
		t.Run(fmt.Sprintf("row %d", i), func(t *testing.T) {
			rec1, msgs1, err1 := asm.Assemble(i+1, row, testMetadata)
			rec2, msgs2, err2 := asm.Assemble(i+1, row, testMetadata)
			if err1 != nil || err2 != nil {
				t.Fatalf("Assemble() errors: %v, %v", err1, err2)
			}
			if !reflect.DeepEqual(rec1, rec2) {
				t.Error("records differ between identical runs")
			}
			if !reflect.DeepEqual(msgs1, msgs2) {
				t.Errorf("messages differ: %v vs %v", msgs1, msgs2)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// NewAssembler Tests
// ----------------------------------------------------------------------------

func TestNewAssembler_Errors(t *testing.T) {
	reg, err := NewRegistry(testColumns())
	if err != nil {
		t.Fatalf("NewRegistry() unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		input   InputSpec
		wantErr string
	}{
		{
			name:    "no date layout",
			input:   InputSpec{Bindings: testBindings()},
			wantErr: "no date/time layout declared",
		},
		{
			name:    "unknown column",
			input:   InputSpec{Date: testDateSpec, Bindings: map[string]Binding{"oxygen": {Index: 1}}},
			wantErr: "binding names an unknown column",
		},
		{
			name:    "computed column",
			input:   InputSpec{Date: testDateSpec, Bindings: map[string]Binding{"sst_minus_one": {Index: 1}}},
			wantErr: "only data columns can be bound",
		},
		{
			name:    "negative index",
			input:   InputSpec{Date: testDateSpec, Bindings: map[string]Binding{"sst": {Index: -1}}},
			wantErr: "negative input index",
		},
		{
			name:    "unknown conversion",
			input:   InputSpec{Date: testDateSpec, Bindings: map[string]Binding{"sst": {Index: 1, Conversion: "furlongs"}}},
			wantErr: `unknown unit conversion "furlongs"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asm, err := NewAssembler(reg, tt.input)
			if err == nil {
				t.Fatalf("NewAssembler() = %v, want error", asm)
			}
			if !IsConfigError(err) {
				t.Errorf("error %v is not a ConfigError", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestAssemble_Conversion(t *testing.T) {
	bindings := testBindings()
	bindings["sst"] = Binding{Index: inSST, Conversion: "fahrenheit_to_celsius"}
	asm := newTestAssembler(t, testColumns(), bindings)

	rec, msgs, err := asm.Assemble(1, rowWith(map[int]string{inSST: "68"}), testMetadata)
	if err != nil {
		t.Fatalf("Assemble() unexpected error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("messages = %v, want none", msgs)
	}
	if got := mustCell(t, rec, "sst").Value; got != "20" {
		t.Errorf("sst = %q, want 20", got)
	}

	// A failed conversion keeps the raw text, which the numeric check flags.
	rec, msgs, err = asm.Assemble(2, rowWith(map[int]string{inSST: "hot"}), testMetadata)
	if err != nil {
		t.Fatalf("Assemble() unexpected error: %v", err)
	}
	if got := codes(msgs); !reflect.DeepEqual(got, []string{"NUM001:sst"}) {
		t.Errorf("messages = %v", got)
	}
	if got := mustCell(t, rec, "sst").Value; got != "hot" {
		t.Errorf("sst = %q, want raw text kept", got)
	}
}

func TestBindByHeader(t *testing.T) {
	reg, err := NewRegistry(testColumns())
	if err != nil {
		t.Fatalf("NewRegistry() unexpected error: %v", err)
	}

	header := MakeHeaderIndex([]string{"YR", "Lon", "lat", "SST", "expocode", "other"})
	got := BindByHeader(reg, header)

	want := map[string]Binding{
		"lon": {Index: 1},
		"lat": {Index: 2},
		"sst": {Index: 3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BindByHeader() = %v, want %v", got, want)
	}
}
