// Package graph maintains the identity graph: directed, weighted
// equivalence assertions between identifiers, with breadth-limited closure
// queries over them.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/openshelf/openshelf-server/internal/domain"
)

// EdgeStore is the persistence surface the graph needs.
type EdgeStore interface {
	UpsertEquivalency(ctx context.Context, source domain.DataSource, inputID, outputID string, strength float64) (*domain.Equivalency, error)
	EquivalenciesTouching(ctx context.Context, identifierIDs []string) ([]*domain.Equivalency, error)
}

// Graph answers equivalence queries over the identifier graph. Closure
// results are cached per (seed, levels, threshold) and invalidated wholesale
// whenever any edge changes.
type Graph struct {
	store  EdgeStore
	cache  *ClosureCache
	logger *slog.Logger

	// generation increments on every write, keying cache entries so stale
	// closures are never served.
	generation atomic.Uint64
}

// New creates a Graph over the given edge store. cache may be nil to disable
// closure caching.
func New(store EdgeStore, cache *ClosureCache, logger *slog.Logger) *Graph {
	return &Graph{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// AssertEquivalent records that source claims a and b name the same book
// with the given strength. Repeated assertions of the same edge accumulate
// votes. Asserting an identifier equivalent to itself is a no-op.
func (g *Graph) AssertEquivalent(ctx context.Context, source domain.DataSource, a, b string, strength float64) error {
	if a == b {
		return nil
	}
	if strength < -1 || strength > 1 {
		return fmt.Errorf("equivalency strength %v out of range [-1, 1]", strength)
	}

	if _, err := g.store.UpsertEquivalency(ctx, source, a, b, strength); err != nil {
		return fmt.Errorf("assert equivalent: %w", err)
	}

	g.generation.Add(1)
	return nil
}

// EquivalentIDs returns, for each seed, the set of identifiers reachable
// within levels hops over edges of strength >= threshold. Edges are
// undirected for reachability. Each seed's set includes the seed itself.
//
// Per-hop thresholding is deliberate: every edge on a path must
// independently clear the threshold, and path strengths are not compounded
// across hops.
func (g *Graph) EquivalentIDs(ctx context.Context, seedIDs []string, levels int, threshold float64) (map[string]map[string]bool, error) {
	result := make(map[string]map[string]bool, len(seedIDs))

	gen := g.generation.Load()
	for _, seed := range seedIDs {
		if cached, ok := g.cache.Get(gen, seed, levels, threshold); ok {
			result[seed] = cached
			continue
		}

		closure, err := g.closure(ctx, seed, levels, threshold)
		if err != nil {
			return nil, err
		}
		result[seed] = closure
		g.cache.Put(gen, seed, levels, threshold, closure)
	}
	return result, nil
}

// EquivalentIDList is EquivalentIDs for a single seed, returned as a sorted
// slice for callers that feed the result into IN-clause queries.
func (g *Graph) EquivalentIDList(ctx context.Context, seedID string, levels int, threshold float64) ([]string, error) {
	sets, err := g.EquivalentIDs(ctx, []string{seedID}, levels, threshold)
	if err != nil {
		return nil, err
	}

	set := sets[seedID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// closure runs one bounded BFS from seed.
func (g *Graph) closure(ctx context.Context, seed string, levels int, threshold float64) (map[string]bool, error) {
	visited := map[string]bool{seed: true}
	frontier := []string{seed}

	for hop := 0; hop < levels && len(frontier) > 0; hop++ {
		edges, err := g.store.EquivalenciesTouching(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("expand closure frontier: %w", err)
		}

		var next []string
		for _, e := range edges {
			if e.Strength < threshold {
				continue
			}
			for _, candidate := range []string{e.InputID, e.OutputID} {
				if !visited[candidate] {
					visited[candidate] = true
					next = append(next, candidate)
				}
			}
		}
		frontier = next
	}
	return visited, nil
}
