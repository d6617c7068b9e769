package events

import (
	"database/sql"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestSQLiteSink_WritesEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := NewSQLiteSink(path, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSQLiteSink: %v", err)
	}

	ev := New(TypeViolation, "VIOLATION DETECTED: matched pattern")
	ev.SourceAgent = "coder"
	ev.TargetAgent = "reviewer"
	ev.GuardrailType = "RegexGuardrail"
	s.Send(ev)
	s.Send(New(TypeAction, "BLOCKED: credential sharing"))

	// Close drains the buffer before returning.
	s.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM safeguard_events`).Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 2 {
		t.Errorf("events in table = %d, want 2", count)
	}

	var source, gtype string
	err = db.QueryRow(
		`SELECT source_agent, guardrail_type FROM safeguard_events WHERE event_id = ?`, ev.ID,
	).Scan(&source, &gtype)
	if err != nil {
		t.Fatalf("row query: %v", err)
	}
	if source != "coder" || gtype != "RegexGuardrail" {
		t.Errorf("row = %q/%q", source, gtype)
	}
}

func TestSQLiteSink_DuplicateIDsIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := NewSQLiteSink(path, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSQLiteSink: %v", err)
	}

	ev := New(TypeCheck, "checking")
	s.Send(ev)
	s.Send(ev)
	s.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM safeguard_events WHERE event_id = ?`, ev.ID).Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 1 {
		t.Errorf("rows for id = %d, want 1", count)
	}
}
