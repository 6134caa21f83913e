package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/openshelf/openshelf-server/internal/domain"
)

// mappingVersion is incremented whenever the index mapping changes,
// triggering an automatic rebuild on startup.
const mappingVersion = "1"

// WorkIndex wraps a Bleve index of works. It implements store.WorkIndexer,
// so the store keeps it in sync on every work write.
//
// All public methods are safe for concurrent use; the mutex protects the
// index handle across Rebuild.
type WorkIndex struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// Options configures the work index.
type Options struct {
	DataPath string // Directory for index storage
	Logger   *slog.Logger
}

// NewWorkIndex creates or opens the work index. An existing index with an
// outdated mapping version, or one that fails to open, is removed and
// recreated empty; callers are expected to reindex after a rebuild.
func NewWorkIndex(opts Options) (*WorkIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	indexPath := filepath.Join(opts.DataPath, "works.bleve")
	versionPath := filepath.Join(opts.DataPath, "works.version")

	var index bleve.Index
	var err error
	needsRebuild := false

	indexExists := false
	if _, statErr := os.Stat(indexPath); statErr == nil {
		indexExists = true
	}

	if indexExists {
		existingVersion, readErr := os.ReadFile(versionPath)
		if readErr != nil || string(existingVersion) != mappingVersion {
			logger.Info("work index mapping outdated, rebuilding",
				"old_version", string(existingVersion),
				"new_version", mappingVersion,
			)
			needsRebuild = true
		}
	}

	if !needsRebuild && indexExists {
		index, err = bleve.Open(indexPath)
		if err != nil {
			logger.Warn("failed to open existing work index, recreating",
				"path", indexPath,
				"error", err,
			)
			needsRebuild = true
		}
	}

	if needsRebuild {
		if removeErr := os.RemoveAll(indexPath); removeErr != nil {
			return nil, fmt.Errorf("remove old index: %w", removeErr)
		}
		index = nil
	}

	if index == nil {
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		if writeErr := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); writeErr != nil {
			logger.Warn("failed to write work index version file", "error", writeErr)
		}
		logger.Info("created work index", "path", indexPath, "mapping_version", mappingVersion)
	} else {
		logger.Info("opened work index", "path", indexPath)
	}

	return &WorkIndex{
		index:  index,
		path:   indexPath,
		logger: logger,
	}, nil
}

// Close closes the index and releases resources.
func (s *WorkIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexWork indexes one work. Works that are not presentation-ready are
// removed from the index instead, so patrons never see half-built entries.
func (s *WorkIndex) IndexWork(_ context.Context, work *domain.Work, genres []domain.WorkGenre) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !work.PresentationReady {
		return s.index.Delete(work.ID)
	}
	doc := WorkToDocument(work, genres)
	return s.index.Index(doc.ID, doc.ToMap())
}

// DeleteWork removes a work from the index.
func (s *WorkIndex) DeleteWork(_ context.Context, workID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(workID)
}

// IndexWorks indexes a batch of works, chunked so a full reindex of a large
// catalog does not hold everything in one Bleve batch.
func (s *WorkIndex) IndexWorks(docs []*WorkDocument) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const batchSize = 500

	for i := 0; i < len(docs); i += batchSize {
		end := min(i+batchSize, len(docs))

		batch := s.index.NewBatch()
		for _, doc := range docs[i:end] {
			if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// DocumentCount returns the number of indexed works.
func (s *WorkIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Rebuild drops the index and creates a fresh empty one. Acquires an
// exclusive lock; every other operation blocks until it finishes.
func (s *WorkIndex) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.RemoveAll(s.path); err != nil {
		return fmt.Errorf("remove index: %w", err)
	}

	index, err := bleve.New(s.path, buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	s.index = index
	s.logger.Info("rebuilt work index", "path", s.path)
	return nil
}
