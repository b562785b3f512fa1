package factory

import (
	"path/filepath"
	"testing"
)

func TestNewSinkFromDSN(t *testing.T) {
	if _, err := NewSinkFromDSN(""); err == nil {
		t.Error("expected error for empty DSN")
	}
	if _, err := NewSinkFromDSN("mysql://localhost/db"); err == nil {
		t.Error("expected error for unsupported scheme")
	}

	path := filepath.Join(t.TempDir(), "events.db")
	sink, err := NewSinkFromDSN(path)
	if err != nil {
		t.Fatalf("bare path should select SQLite: %v", err)
	}
	if c, ok := sink.(interface{ Close() error }); ok {
		_ = c.Close()
	}

	sink, err = NewSinkFromDSN("sqlite://:memory:")
	if err != nil {
		t.Fatalf("sqlite scheme: %v", err)
	}
	if c, ok := sink.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}
