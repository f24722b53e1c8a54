package core

// flag.go defines the quality flag lattice and the roles a column can play
// in flag propagation.
//
// Flags form a total order Good < Questionable < Bad. The only way to change
// a flag is Raise, which returns the more severe of two flags, so a flag can
// never move back towards Good once it has been raised.

import (
	"fmt"
	"strings"
)

// Flag is a quality severity marker attached to a cell or a record.
type Flag uint8

const (
	FlagGood Flag = iota
	FlagQuestionable
	FlagBad
)

// Raise returns the more severe of current and candidate.
func Raise(current, candidate Flag) Flag {
	if candidate > current {
		return candidate
	}
	return current
}

// String returns the lowercase flag name.
func (f Flag) String() string {
	switch f {
	case FlagGood:
		return "good"
	case FlagQuestionable:
		return "questionable"
	case FlagBad:
		return "bad"
	default:
		return fmt.Sprintf("Flag(%d)", uint8(f))
	}
}

// Letter returns the single-letter code used in column configuration files.
func (f Flag) Letter() string {
	switch f {
	case FlagQuestionable:
		return "Q"
	case FlagBad:
		return "B"
	default:
		return "G"
	}
}

// MarshalText encodes the flag as its name so JSON output stays readable.
func (f Flag) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText accepts anything ParseFlag accepts.
func (f *Flag) UnmarshalText(b []byte) error {
	parsed, err := ParseFlag(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFlag parses a flag from its letter (G, Q, B) or name, case-insensitive.
func ParseFlag(s string) (Flag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "g", "good":
		return FlagGood, nil
	case "q", "questionable":
		return FlagQuestionable, nil
	case "b", "bad":
		return FlagBad, nil
	default:
		return FlagGood, fmt.Errorf("invalid flag value %q (use G, Q or B)", s)
	}
}

// FlagRole describes how a column takes part in flag propagation.
type FlagRole uint8

const (
	// RoleNone columns carry no flag at all. Raising one is a contract fault.
	RoleNone FlagRole = iota
	// RoleField columns carry their own flag and never cascade.
	RoleField
	// RoleCascading columns carry a flag that dataset-level consumers read;
	// they do not receive date cascades.
	RoleCascading
	// RoleCascadeTarget columns are raised to Bad whenever date resolution fails.
	RoleCascadeTarget
)

// HasFlag reports whether a column with this role carries a flag.
func (r FlagRole) HasFlag() bool {
	return r != RoleNone
}

func (r FlagRole) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleField:
		return "field"
	case RoleCascading:
		return "cascading"
	case RoleCascadeTarget:
		return "cascade_target"
	default:
		return fmt.Sprintf("FlagRole(%d)", uint8(r))
	}
}

// MarshalText encodes the role as its name.
func (r FlagRole) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ParseFlagRole parses a role from the single-letter file codes
// (N, F, C, X) or from its name.
func ParseFlagRole(s string) (FlagRole, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "n", "none":
		return RoleNone, nil
	case "f", "field":
		return RoleField, nil
	case "c", "cascading":
		return RoleCascading, nil
	case "x", "cascade_target", "cascadetarget", "target":
		return RoleCascadeTarget, nil
	default:
		return RoleNone, fmt.Errorf("invalid flag role %q (use N, F, C or X)", s)
	}
}
