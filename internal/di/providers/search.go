package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/openshelf/openshelf-server/internal/config"
	"github.com/openshelf/openshelf-server/internal/logger"
	"github.com/openshelf/openshelf-server/internal/search"
)

// SearchIndexHandle wraps the work search index with shutdown capability.
type SearchIndexHandle struct {
	*search.WorkIndex
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideWorkIndex provides the Bleve work index and wires it into the store
// so every work write keeps the index in sync.
func ProvideWorkIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	index, err := search.NewWorkIndex(search.Options{
		DataPath: filepath.Dir(cfg.SearchIndexPath()),
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	docCount, _ := index.DocumentCount()
	log.Info("Search index initialized", "documents", docCount)

	storeHandle.SetWorkIndexer(index)

	return &SearchIndexHandle{WorkIndex: index}, nil
}

// TriggerSearchReindexIfNeeded backfills an empty index from the store.
// Should be called after all services are wired; the sweep runs in the
// background so startup is not blocked.
func TriggerSearchReindexIfNeeded(i do.Injector) {
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	docCount, _ := indexHandle.DocumentCount()
	if docCount > 0 {
		return
	}

	ctx := context.Background()
	works, err := storeHandle.PresentationReadyWorks(ctx, "", 1)
	if err != nil || len(works) == 0 {
		return
	}

	log.Info("Search index is empty but works exist, triggering initial reindex")

	go func() {
		reindexCtx := context.Background()
		indexed := 0
		afterID := ""
		for {
			page, err := storeHandle.PresentationReadyWorks(reindexCtx, afterID, 500)
			if err != nil {
				log.Error("Initial search reindex failed", "error", err)
				return
			}
			if len(page) == 0 {
				break
			}
			for _, work := range page {
				genres, err := storeHandle.GetWorkGenres(reindexCtx, work.ID)
				if err != nil {
					log.Error("Initial search reindex failed", "work_id", work.ID, "error", err)
					return
				}
				if err := indexHandle.IndexWork(reindexCtx, work, genres); err != nil {
					log.Error("Initial search reindex failed", "work_id", work.ID, "error", err)
					return
				}
				indexed++
			}
			afterID = page[len(page)-1].ID
		}
		log.Info("Initial search reindex completed", "documents", indexed)
	}()
}
