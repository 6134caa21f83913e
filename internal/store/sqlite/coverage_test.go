package sqlite

import (
	"context"
	"testing"

	"github.com/openshelf/openshelf-server/internal/domain"
	"github.com/openshelf/openshelf-server/internal/store"
)

func TestUpsertCoverageRecord_ReplacesOutcome(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	identifier, err := s.GetOrCreateIdentifier(ctx, domain.IdentifierURI, "https://gutenberg.org/ebooks/2701")
	if err != nil {
		t.Fatalf("create identifier: %v", err)
	}

	first, err := s.UpsertCoverageRecord(ctx, identifier.ID, domain.SourceGutenberg, domain.OperationImport,
		domain.CoverageTransientFailure, "connection reset")
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.Status != domain.CoverageTransientFailure {
		t.Errorf("status = %q, want transient failure", first.Status)
	}
	if first.Exception != "connection reset" {
		t.Errorf("exception = %q, want connection reset", first.Exception)
	}

	second, err := s.UpsertCoverageRecord(ctx, identifier.ID, domain.SourceGutenberg, domain.OperationImport,
		domain.CoverageSuccess, "")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.Status != domain.CoverageSuccess {
		t.Errorf("status = %q, want success", second.Status)
	}
	if second.Exception != "" {
		t.Errorf("exception = %q, want empty", second.Exception)
	}

	// The replacement kept the original row.
	if second.ID != first.ID {
		t.Errorf("upsert created a new row: %q != %q", second.ID, first.ID)
	}
}

func TestGetCoverageRecord_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetCoverageRecord(context.Background(), "idf-missing", domain.SourceGutenberg, domain.OperationImport)
	if err != store.ErrNotFound {
		t.Fatalf("err = %v, want store.ErrNotFound", err)
	}
}

func TestIdentifiersNeedingCoverage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fresh, err := s.GetOrCreateIdentifier(ctx, domain.IdentifierURI, "https://gutenberg.org/ebooks/11")
	if err != nil {
		t.Fatalf("create identifier: %v", err)
	}
	transient, err := s.GetOrCreateIdentifier(ctx, domain.IdentifierURI, "https://gutenberg.org/ebooks/12")
	if err != nil {
		t.Fatalf("create identifier: %v", err)
	}
	done, err := s.GetOrCreateIdentifier(ctx, domain.IdentifierURI, "https://gutenberg.org/ebooks/13")
	if err != nil {
		t.Fatalf("create identifier: %v", err)
	}
	hopeless, err := s.GetOrCreateIdentifier(ctx, domain.IdentifierURI, "https://gutenberg.org/ebooks/14")
	if err != nil {
		t.Fatalf("create identifier: %v", err)
	}

	if _, err := s.UpsertCoverageRecord(ctx, transient.ID, domain.SourceGutenberg, domain.OperationImport,
		domain.CoverageTransientFailure, "timeout"); err != nil {
		t.Fatalf("upsert transient: %v", err)
	}
	if _, err := s.UpsertCoverageRecord(ctx, done.ID, domain.SourceGutenberg, domain.OperationImport,
		domain.CoverageSuccess, ""); err != nil {
		t.Fatalf("upsert success: %v", err)
	}
	if _, err := s.UpsertCoverageRecord(ctx, hopeless.ID, domain.SourceGutenberg, domain.OperationImport,
		domain.CoveragePersistentFailure, "no title"); err != nil {
		t.Fatalf("upsert persistent: %v", err)
	}

	needing, err := s.IdentifiersNeedingCoverage(ctx, domain.SourceGutenberg, domain.OperationImport, 10)
	if err != nil {
		t.Fatalf("IdentifiersNeedingCoverage: %v", err)
	}

	got := make(map[string]bool, len(needing))
	for _, i := range needing {
		got[i.ID] = true
	}
	if !got[fresh.ID] {
		t.Error("expected never-attempted identifier to need coverage")
	}
	if !got[transient.ID] {
		t.Error("expected transient failure to be retried")
	}
	if got[done.ID] {
		t.Error("successful identifier must not be retried")
	}
	if got[hopeless.ID] {
		t.Error("persistent failure must not be retried")
	}

	// Coverage for another source does not satisfy this one.
	other, err := s.IdentifiersNeedingCoverage(ctx, domain.SourceStandardEbooks, domain.OperationImport, 10)
	if err != nil {
		t.Fatalf("IdentifiersNeedingCoverage other source: %v", err)
	}
	if len(other) != 4 {
		t.Errorf("other source needing = %d, want 4", len(other))
	}
}
