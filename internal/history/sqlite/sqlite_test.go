package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/drover/internal/history"
)

func TestNewRejectsEmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestSendAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	sink, err := New("sqlite://" + path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	events := []history.Event{
		{Account: "acct-1", ActionType: "engage", OK: true, OccurredAt: time.Now().UTC()},
		{Account: "acct-1", ActionType: "engage", OK: false, Detail: "timed out", OccurredAt: time.Now().UTC()},
		{Account: "acct-2", ActionType: "curate", OK: true, OccurredAt: time.Now().UTC()},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	var count int
	row := sink.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM action_events WHERE account = ?", "acct-1")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 events for acct-1, got %d", count)
	}

	var detail string
	row = sink.db.QueryRowContext(ctx, "SELECT detail FROM action_events WHERE ok = 0")
	if err := row.Scan(&detail); err != nil {
		t.Fatalf("Scan detail: %v", err)
	}
	if detail != "timed out" {
		t.Fatalf("detail = %q, want %q", detail, "timed out")
	}
}

func TestInMemorySink(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = sink.Close() }()

	e := history.Event{Account: "a", ActionType: "engage", OK: true, OccurredAt: time.Now().UTC()}
	if err := sink.Send(context.Background(), e); err != nil {
		t.Fatalf("Send: %v", err)
	}
}
