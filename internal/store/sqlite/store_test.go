package sqlite

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openshelf/openshelf-server/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, err := Open(dbPath, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen(t *testing.T) {
	s := newTestStore(t)
	if s.db == nil {
		t.Fatal("expected non-nil db")
	}
}

func TestOpen_SchemaIdempotent(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	s1, err := Open(dbPath, logger)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s1.Close()

	// Re-opening over an existing file must not fail on schema statements.
	s2, err := Open(dbPath, logger)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	s2.Close()
}

// makeTestIdentifier creates a domain.Identifier with sensible defaults for
// testing.
func makeTestIdentifier(id string, typ domain.IdentifierType, value string) *domain.Identifier {
	now := time.Now()
	return &domain.Identifier{
		Record: domain.Record{
			ID:        id,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Type:  typ,
		Value: value,
	}
}

// insertTestIdentifier creates and persists an identifier, failing the test
// on error.
func insertTestIdentifier(t *testing.T, s *Store, id string, typ domain.IdentifierType, value string) *domain.Identifier {
	t.Helper()
	i := makeTestIdentifier(id, typ, value)
	if err := s.CreateIdentifier(context.Background(), i); err != nil {
		t.Fatalf("CreateIdentifier(%s): %v", id, err)
	}
	return i
}
