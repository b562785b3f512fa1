package session

import (
	"context"
)

// Account identifies one managed account and the durable profile its
// sessions bind to.
type Account struct {
	ID         string
	ProfileDir string
}

// Behaviors is the set of enabled action types for an account.
type Behaviors []string

// Limits caps how many actions of each type one Perform call may execute.
type Limits map[string]int

// Outcome is one reported result of a performed action. Only successful
// outcomes consume quota.
type Outcome struct {
	ActionType string `json:"action_type"`
	OK         bool   `json:"ok"`
	Detail     string `json:"detail,omitempty"`
}

// Session is a live, reusable handle for one account. All page-specific
// and content-generation logic lives behind Perform; the scheduler only
// consumes the outcome list.
type Session interface {
	// Connected reports whether the underlying resource is still usable.
	// A disconnected session is discarded by the registry, never repaired.
	Connected() bool
	Perform(ctx context.Context, behaviors Behaviors, limits Limits) ([]Outcome, error)
	Close() error
}

// Driver opens sessions. Opening is expensive; the registry keeps handles
// warm across scheduling cycles instead of reopening every cycle.
type Driver interface {
	Open(ctx context.Context, account Account) (Session, error)
	// StaleArtifacts lists file names (relative to the profile directory)
	// a crashed session may leave behind; they are removed when a stale
	// lock is broken.
	StaleArtifacts() []string
}
