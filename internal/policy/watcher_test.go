package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.json")
	if err := os.WriteFile(path, []byte(samplePolicyJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reloaded := make(chan *Document, 1)
	go func() {
		_ = w.Watch(ctx, func(doc *Document) {
			select {
			case reloaded <- doc:
			default:
			}
		})
	}()

	// Give the watch loop a moment to start before touching the file.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(samplePolicyJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case doc := <-reloaded:
		if len(doc.InterAgent.AgentTransitions) != 1 {
			t.Errorf("reloaded transitions = %d", len(doc.InterAgent.AgentTransitions))
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_BadReloadKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.json")
	if err := os.WriteFile(path, []byte(samplePolicyJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reloaded := make(chan *Document, 1)
	go func() {
		_ = w.Watch(ctx, func(doc *Document) {
			select {
			case reloaded <- doc:
			default:
			}
		})
	}()

	time.Sleep(100 * time.Millisecond)
	// Broken write first: must be skipped, not delivered.
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(400 * time.Millisecond)
	select {
	case <-reloaded:
		t.Fatal("broken policy must not be delivered")
	default:
	}

	if err := os.WriteFile(path, []byte(samplePolicyJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-reloaded:
	case <-ctx.Done():
		t.Fatal("timed out waiting for recovery reload")
	}
}
