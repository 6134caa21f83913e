package store

import (
	"context"

	"github.com/openshelf/openshelf-server/internal/domain"
)

// WorkIndexer is the interface for keeping the work search index in sync.
// The store and the presentation pipeline use this to notify search without
// depending on the index implementation.
type WorkIndexer interface {
	IndexWork(ctx context.Context, work *domain.Work, genres []domain.WorkGenre) error
	DeleteWork(ctx context.Context, workID string) error
}

// NoopWorkIndexer is a no-op implementation for testing and for jobs that
// run without a search index.
type NoopWorkIndexer struct{}

// IndexWork is a no-op.
func (NoopWorkIndexer) IndexWork(context.Context, *domain.Work, []domain.WorkGenre) error {
	return nil
}

// DeleteWork is a no-op.
func (NoopWorkIndexer) DeleteWork(context.Context, string) error { return nil }

// NewNoopWorkIndexer creates a new no-op indexer.
func NewNoopWorkIndexer() WorkIndexer {
	return NoopWorkIndexer{}
}
