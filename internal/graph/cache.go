package graph

import (
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// closureCacheTTL bounds how long a cached closure can live even if no edge
// ever changes, so the cache never grows without end.
const closureCacheTTL = 30 * time.Minute

// ClosureCache persists closure query results keyed by the graph generation
// that produced them. A nil *ClosureCache is a valid no-op cache.
type ClosureCache struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenClosureCache opens (or creates) the cache at the given path. Any
// entries surviving from an earlier run are dropped: the generation counter
// restarts at zero with each process, so persisted keys from a previous run
// would otherwise alias fresh ones and serve closures that predate later
// edge writes.
func OpenClosureCache(path string, logger *slog.Logger) (*ClosureCache, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open closure cache: %w", err)
	}
	if err := db.DropAll(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reset closure cache: %w", err)
	}
	return &ClosureCache{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (c *ClosureCache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

func cacheKey(generation uint64, seed string, levels int, threshold float64) []byte {
	return []byte(fmt.Sprintf("closure:%d:%s:%d:%g", generation, seed, levels, threshold))
}

// Get returns the cached closure for (seed, levels, threshold) at the given
// generation, if present.
func (c *ClosureCache) Get(generation uint64, seed string, levels int, threshold float64) (map[string]bool, bool) {
	if c == nil {
		return nil, false
	}

	var ids []string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(generation, seed, levels, threshold))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ids)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn("closure cache read failed", "seed", seed, "error", err)
		}
		return nil, false
	}

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, true
}

// Put stores a closure result. Write failures are logged and swallowed; the
// cache is advisory.
func (c *ClosureCache) Put(generation uint64, seed string, levels int, threshold float64, closure map[string]bool) {
	if c == nil {
		return
	}

	ids := make([]string, 0, len(closure))
	for id := range closure {
		ids = append(ids, id)
	}
	data, err := json.Marshal(ids)
	if err != nil {
		c.logger.Warn("closure cache encode failed", "seed", seed, "error", err)
		return
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(cacheKey(generation, seed, levels, threshold), data).WithTTL(closureCacheTTL)
		return txn.SetEntry(entry)
	})
	if err != nil {
		c.logger.Warn("closure cache write failed", "seed", seed, "error", err)
	}
}
