// Package core provides the sanity checker for uploaded measurement datasets.
//
// This package is the heart of the checker, containing all domain logic
// independent of any transport or storage layer. It can be used by the CLI,
// the HTTP API, or tests without modification.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Registry: an immutable, validated set of [ColumnConfig] values that
//     declares every output column, where its value comes from and how it
//     is checked.
//   - Date resolution: a [DateSpec] chosen once per dataset turns each row's
//     date and time fields into one UTC timestamp.
//   - Assembler: builds one [Record] per input row and reports data problems
//     as [Message] values with raised quality flags.
//   - Checker: runs the assembler over a whole dataset in parallel and
//     summarizes the outcome as a [ResultCode] and [Verdict].
//
// # Column Registry
//
// The registry is built once and passed explicitly to every assembler:
//
//	reg, err := core.NewRegistry([]core.ColumnConfig{
//	    {Name: "lon", Source: core.SourceRawData, FlagRole: core.RoleField},
//	    {Name: "lat", Source: core.SourceRawData, FlagRole: core.RoleField},
//	    {Name: "sst", Source: core.SourceRawData, Numeric: true,
//	        BadRange: &core.Range{Min: -5, Max: 50}, FlagRole: core.RoleCascadeTarget},
//	})
//
// Longitude and latitude columns always get fixed bad ranges and are always
// required, whatever the configuration says.
//
// # Flags
//
// Flags only ever increase in severity (Good, Questionable, Bad). A failed
// date resolution raises every cascade-target column to Bad.
//
// # Error Handling
//
// Three fault classes are kept apart: [ConfigError] for malformed
// configuration (fatal at load time), data faults (messages, never Go
// errors), and [ContractError] for bugs detected while assembling a row.
// Technical errors are mapped to user-friendly messages using [MapError].
package core
