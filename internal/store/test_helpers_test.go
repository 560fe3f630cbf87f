package store

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/fieldnet/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestPass creates a pass with minimal required fields.
func createTestPass(token string, startedSeq int64) ir.Pass {
	return ir.Pass{
		Token:      token,
		Scene:      "Adder",
		SceneHash:  "test-hash",
		StartedSeq: startedSeq,
	}
}

// createTestEvent creates a field event.
func createTestEvent(passToken string, seq int64, kind, field string) ir.Event {
	return ir.Event{
		PassToken: passToken,
		Seq:       seq,
		Kind:      kind,
		Field:     field,
	}
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
