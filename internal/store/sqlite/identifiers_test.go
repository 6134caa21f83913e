package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/openshelf/openshelf-server/internal/domain"
	"github.com/openshelf/openshelf-server/internal/store"
)

func TestCreateAndGetIdentifier(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	i := makeTestIdentifier("idf-1", domain.IdentifierISBN, "9780141439518")
	if err := s.CreateIdentifier(ctx, i); err != nil {
		t.Fatalf("CreateIdentifier: %v", err)
	}

	got, err := s.GetIdentifier(ctx, "idf-1")
	if err != nil {
		t.Fatalf("GetIdentifier: %v", err)
	}

	if got.ID != i.ID {
		t.Errorf("ID: got %q, want %q", got.ID, i.ID)
	}
	if got.Type != domain.IdentifierISBN {
		t.Errorf("Type: got %q, want %q", got.Type, domain.IdentifierISBN)
	}
	if got.Value != "9780141439518" {
		t.Errorf("Value: got %q, want %q", got.Value, "9780141439518")
	}
	if got.CreatedAt.Unix() != i.CreatedAt.Unix() {
		t.Errorf("CreatedAt: got %v, want %v", got.CreatedAt, i.CreatedAt)
	}
}

func TestGetIdentifier_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetIdentifier(context.Background(), "nonexistent")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateIdentifier_DuplicateTypeValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestIdentifier(t, s, "idf-dup-1", domain.IdentifierGutenbergID, "84")

	// Different ID, same (type, value) should fail.
	dup := makeTestIdentifier("idf-dup-2", domain.IdentifierGutenbergID, "84")
	err := s.CreateIdentifier(ctx, dup)
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetIdentifierByTypeValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestIdentifier(t, s, "idf-tv-1", domain.IdentifierOverdriveID, "abc-123")

	got, err := s.GetIdentifierByTypeValue(ctx, domain.IdentifierOverdriveID, "abc-123")
	if err != nil {
		t.Fatalf("GetIdentifierByTypeValue: %v", err)
	}
	if got.ID != "idf-tv-1" {
		t.Errorf("ID: got %q, want %q", got.ID, "idf-tv-1")
	}

	// Same value under a different type is a different identifier.
	_, err = s.GetIdentifierByTypeValue(ctx, domain.IdentifierISBN, "abc-123")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong type, got %v", err)
	}
}

func TestGetOrCreateIdentifier(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.GetOrCreateIdentifier(ctx, domain.IdentifierURI, "https://example.org/book/1")
	if err != nil {
		t.Fatalf("GetOrCreateIdentifier (create): %v", err)
	}
	if created.ID == "" {
		t.Error("expected non-empty ID for created identifier")
	}
	if created.CreatedAt.IsZero() {
		t.Error("CreatedAt: expected non-zero")
	}

	// Second call must return the same row, not a new one.
	found, err := s.GetOrCreateIdentifier(ctx, domain.IdentifierURI, "https://example.org/book/1")
	if err != nil {
		t.Fatalf("GetOrCreateIdentifier (find): %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("expected same ID %q, got %q", created.ID, found.ID)
	}
}
