package migration

import (
	"errors"
	"fmt"
	"strings"
)

// State is where a session stands with respect to its user's legacy data.
type State int

const (
	Unknown State = iota
	NoLegacyData
	LegacyDetected
	Migrating
	MigratedOK
	MigrationFailed
)

var (
	ErrInvalidTransition   = errors.New("invalid migration state transition")
	ErrMigrationInProgress = errors.New("migration already in progress")
	ErrNotMigrated         = errors.New("legacy data has not been migrated")
)

var stateNames = map[State]string{
	Unknown:         "unknown",
	NoLegacyData:    "no_legacy_data",
	LegacyDetected:  "legacy_detected",
	Migrating:       "migrating",
	MigratedOK:      "migrated",
	MigrationFailed: "failed",
}

var transitions = map[State][]State{
	Unknown:         {NoLegacyData, LegacyDetected},
	LegacyDetected:  {Migrating},
	MigrationFailed: {Migrating},
	Migrating:       {MigratedOK, MigrationFailed},
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	name := strings.TrimSpace(string(b))
	for st, n := range stateNames {
		if n == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown migration state %q", name)
}

// Terminal reports whether a session can no longer leave s.
func (s State) Terminal() bool {
	return s == NoLegacyData || s == MigratedOK
}

// HasLegacyData reports whether the user should be offered a migration.
func (s State) HasLegacyData() bool {
	return s == LegacyDetected || s == MigrationFailed
}

func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// transition returns to, or ErrInvalidTransition.
func (s State) transition(to State) (State, error) {
	if !s.CanTransition(to) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, to)
	}
	return to, nil
}

// Retention decides what happens to legacy data after a successful migration.
type Retention string

const (
	Retain Retention = "retain"
	Purge  Retention = "purge"
)

func ParseRetention(s string) (Retention, error) {
	switch Retention(strings.ToLower(strings.TrimSpace(s))) {
	case "", Retain:
		return Retain, nil
	case Purge:
		return Purge, nil
	default:
		return Retain, fmt.Errorf("unknown retention policy %q", s)
	}
}
