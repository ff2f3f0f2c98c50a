// Package scar implements the Scar Registry (C7): a permanent record of
// failures and the prevention rules derived from them. Scars live in the
// governance section as human-readable Markdown; the active-rules table
// at the top of the file is what the Context Packet Builder injects into
// every subsequent worker's constraints (§4.7).
package scar

import (
	"time"
)

// Category classifies what kind of failure produced a scar (§3).
type Category string

const (
	CategoryImplementation Category = "implementation"
	CategoryArchitecture   Category = "architecture"
	CategoryTesting        Category = "testing"
	CategoryTooling        Category = "tooling"
	CategoryExternal       Category = "external"
	CategoryProcess        Category = "process"
)

// Valid reports whether c is one of the six recognised categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryImplementation, CategoryArchitecture, CategoryTesting,
		CategoryTooling, CategoryExternal, CategoryProcess:
		return true
	}
	return false
}

// Scar is one permanent failure record (§3). Immutable once appended;
// the only later transition is provisional -> permanent at UNIFY.
type Scar struct {
	ID             string
	Timestamp      time.Time
	Category       Category
	Description    string
	RootCause      string
	Resolution     string
	PreventionRule string

	// Provisional scars are written by a verification rejection and
	// promoted to permanent by UNIFY (§4.5 output, §4.8).
	Provisional bool

	// RecoveryCheckpoint, when set, is the checkpoint id this scar
	// declares as its recovery point; that checkpoint is never evicted
	// while the scar is open (§3 Checkpoint, §4.6).
	RecoveryCheckpoint string
}
