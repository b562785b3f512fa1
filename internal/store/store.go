package store

import (
	"context"
	"time"
)

// Record is one side-effecting action performed for an account.
// The log is append-only per (Account, ActionType); quota decisions are
// derived by counting records inside a trailing window, never by mutating
// past rows.

type Record struct {
	ID         int64
	Account    string
	ActionType string
	OccurredAt time.Time
}

// Store persists the rolling action log shared by all scheduler instances.
// Implementations must be safe for concurrent use; callers re-read before
// every decision instead of caching across suspension points.

type Store interface {
	EnsureSchema(ctx context.Context) error
	// Append records a completed action. OccurredAt should be in UTC.
	Append(ctx context.Context, rec Record) error
	// Since returns records for (account, actionType) with
	// OccurredAt > cutoff, ordered ascending by OccurredAt.
	Since(ctx context.Context, account, actionType string, cutoff time.Time) ([]Record, error)
	// PurgeOlderThan deletes records older than the given time and returns
	// the number of rows removed. Used for opportunistic GC of entries
	// that can no longer influence any quota window.
	PurgeOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
	Close() error
}
