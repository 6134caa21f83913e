package providers

import (
	"os"

	"github.com/samber/do/v2"

	"github.com/openshelf/openshelf-server/internal/config"
	"github.com/openshelf/openshelf-server/internal/graph"
	"github.com/openshelf/openshelf-server/internal/logger"
	"github.com/openshelf/openshelf-server/internal/store/sqlite"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the catalog database store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if err := os.MkdirAll(cfg.Catalog.BasePath, 0o750); err != nil {
		return nil, err
	}

	db, err := sqlite.Open(cfg.DatabasePath(), log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "path", cfg.DatabasePath())

	return &StoreHandle{Store: db}, nil
}

// ClosureCacheHandle wraps the closure query cache. Cache is nil when the
// cache is disabled; the graph treats a nil cache as a miss on every read.
type ClosureCacheHandle struct {
	Cache *graph.ClosureCache
}

// Shutdown implements do.Shutdownable.
func (h *ClosureCacheHandle) Shutdown() error {
	if h.Cache == nil {
		return nil
	}
	return h.Cache.Close()
}

// ProvideClosureCache provides the on-disk closure query cache.
func ProvideClosureCache(i do.Injector) (*ClosureCacheHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Graph.CacheEnabled {
		log.Info("Closure cache disabled")
		return &ClosureCacheHandle{}, nil
	}

	cache, err := graph.OpenClosureCache(cfg.ClosureCachePath(), log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Closure cache opened", "path", cfg.ClosureCachePath())

	return &ClosureCacheHandle{Cache: cache}, nil
}
