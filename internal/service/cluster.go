// Package service provides the business logic layer for catalog clustering,
// presentation recompute, and record import.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/openshelf/openshelf-server/internal/champion"
	"github.com/openshelf/openshelf-server/internal/config"
	"github.com/openshelf/openshelf-server/internal/domain"
	"github.com/openshelf/openshelf-server/internal/errors"
	"github.com/openshelf/openshelf-server/internal/fingerprint"
	"github.com/openshelf/openshelf-server/internal/id"
	"github.com/openshelf/openshelf-server/internal/metrics"
	"github.com/openshelf/openshelf-server/internal/store"
	"github.com/openshelf/openshelf-server/internal/store/sqlite"
)

// conflictRetries is how many times a clustering operation is re-run after
// losing an optimistic-concurrency race before giving up.
const conflictRetries = 3

// Recomputer re-derives a work's displayable attributes. Implemented by
// PresentationService; injected after construction to break the dependency
// cycle between clustering and presentation.
type Recomputer interface {
	Recompute(ctx context.Context, workID string) (bool, error)
}

// ResolveOptions tunes one clustering resolution.
type ResolveOptions struct {
	// AllowAuthorless permits clustering a pool whose presentation edition
	// has a title but no resolvable author.
	AllowAuthorless bool
}

// ResolveResult reports where a pool landed.
type ResolveResult struct {
	// Work is nil when the pool could not be clustered and is left
	// unattached.
	Work *domain.Work
	// Created reports whether Work was newly created by this resolution.
	Created bool
	// Unclustered carries the reason a pool was left without a work.
	Unclustered error
}

// ClusterService groups license pools into works and keeps the clustering
// invariants intact as data changes.
type ClusterService struct {
	store      *sqlite.Store
	oaPolicy   champion.OpenAccessPolicy
	cfg        config.ClusterConfig
	logger     *slog.Logger
	recomputer Recomputer
}

// NewClusterService creates a new clustering service.
func NewClusterService(st *sqlite.Store, oaPolicy champion.OpenAccessPolicy, cfg config.ClusterConfig, logger *slog.Logger) *ClusterService {
	return &ClusterService{
		store:    st,
		oaPolicy: oaPolicy,
		cfg:      cfg,
		logger:   logger,
	}
}

// SetRecomputer wires the presentation pipeline in after construction.
func (s *ClusterService) SetRecomputer(r Recomputer) {
	s.recomputer = r
}

// ResolveWorkForPool finds or creates the work a pool belongs to, evicting
// any pool whose presence would violate the clustering invariants. A pool
// that cannot be resolved is detached and left unclustered; this is a
// queryable condition, not an error. Lost concurrency races are retried as
// whole operations.
func (s *ClusterService) ResolveWorkForPool(ctx context.Context, poolID string, opts ResolveOptions) (*ResolveResult, error) {
	var result *ResolveResult
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		result, err = s.resolveOnce(ctx, poolID, opts)
		if !errors.Is(err, store.ErrConflict) {
			return result, err
		}
		s.logger.Debug("clustering lost a race, retrying", "pool_id", poolID, "attempt", attempt+1)
	}
	return nil, errors.Wrapf(err, errors.CodeConflict, "pool %s kept losing clustering races", poolID)
}

// resolveOnce runs one full resolution pass: the target pool first, then
// every pool evicted along the way, via an explicit worklist so eviction
// chains terminate and never grow the stack.
func (s *ClusterService) resolveOnce(ctx context.Context, poolID string, opts ResolveOptions) (*ResolveResult, error) {
	result, evicted, err := s.placePool(ctx, poolID, opts)
	if err != nil {
		return nil, err
	}

	touched := make(map[string]bool)
	worklist := evicted
	for pass := 0; len(worklist) > 0; pass++ {
		if pass >= s.cfg.MaxEvictionPasses {
			return nil, errors.ClusterConsistencyf("eviction worklist did not drain after %d passes", pass)
		}

		next := worklist[0]
		worklist = worklist[1:]

		res, more, err := s.placePool(ctx, next, opts)
		if err != nil {
			return nil, err
		}
		if res.Work != nil {
			touched[res.Work.ID] = true
		}
		worklist = append(worklist, more...)
	}

	if result.Work != nil {
		metrics.PoolsClustered.Inc()
		delete(touched, result.Work.ID)
		if s.recomputer != nil {
			if _, err := s.recomputer.Recompute(ctx, result.Work.ID); err != nil {
				return nil, fmt.Errorf("recompute work %s: %w", result.Work.ID, err)
			}
			// Re-read: recompute updates derived fields.
			work, err := s.store.GetWork(ctx, result.Work.ID)
			if err != nil {
				return nil, err
			}
			result.Work = work
		}
	} else {
		metrics.PoolsUnclustered.Inc()
	}

	// Works that evicted pools landed in get the same recompute treatment
	// as the target pool's work.
	if s.recomputer != nil && len(touched) > 0 {
		workIDs := make([]string, 0, len(touched))
		for workID := range touched {
			workIDs = append(workIDs, workID)
		}
		sort.Strings(workIDs)
		for _, workID := range workIDs {
			if _, err := s.recomputer.Recompute(ctx, workID); err != nil {
				return nil, fmt.Errorf("recompute work %s: %w", workID, err)
			}
		}
	}
	return result, nil
}

// placePool attaches one pool to its correct work (or detaches it) and
// returns the IDs of any pools evicted from that work, for the caller's
// worklist.
func (s *ClusterService) placePool(ctx context.Context, poolID string, opts ResolveOptions) (*ResolveResult, []string, error) {
	pool, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, nil, fmt.Errorf("get pool: %w", err)
	}

	if pool.IdentifierID == "" {
		reason := errors.DataIncomplete("pool has no identifier")
		return s.detach(ctx, pool, reason)
	}

	edition, err := s.choosePoolEdition(ctx, pool)
	if err != nil {
		return nil, nil, err
	}
	if edition == nil || !edition.HasTitle() {
		reason := errors.DataIncompletef("pool %s has no titled edition", pool.ID)
		return s.detach(ctx, pool, reason)
	}
	if !edition.HasAuthor() && !opts.AllowAuthorless {
		reason := errors.DataIncompletef("pool %s has no resolvable author", pool.ID)
		return s.detach(ctx, pool, reason)
	}

	pwid, err := s.refreshFingerprint(ctx, edition)
	if err != nil {
		return nil, nil, err
	}

	if err := s.setPoolEdition(ctx, pool, edition.ID); err != nil {
		return nil, nil, err
	}

	var work *domain.Work
	var created bool
	var absorbed []string
	if pool.OpenAccess && pwid != "" {
		work, created, absorbed, err = s.canonicalWork(ctx, pwid, edition.Medium)
	} else {
		work, created, err = s.exclusiveWork(ctx, pool)
	}
	if err != nil {
		return nil, nil, err
	}

	evicted, err := s.enforceExclusivity(ctx, work, pool, pwid, edition.Medium)
	if err != nil {
		return nil, nil, err
	}
	evicted = append(evicted, absorbed...)

	if pool.WorkID != work.ID {
		if err := s.store.SetPoolWork(ctx, pool.ID, pool.WorkID, work.ID); err != nil {
			return nil, nil, err
		}
		pool.WorkID = work.ID
	}

	return &ResolveResult{Work: work, Created: created}, evicted, nil
}

// detach removes the pool from whatever work it is in and reports the
// unclustered condition.
func (s *ClusterService) detach(ctx context.Context, pool *domain.LicensePool, reason error) (*ResolveResult, []string, error) {
	if pool.WorkID != "" {
		if err := s.store.SetPoolWork(ctx, pool.ID, pool.WorkID, ""); err != nil {
			return nil, nil, err
		}
	}
	s.logger.Info("pool left unclustered",
		"pool_id", pool.ID,
		"reason", reason.Error(),
	)
	return &ResolveResult{Unclustered: reason}, nil, nil
}

// choosePoolEdition picks the pool's presentation edition among all
// editions written for its identifier.
func (s *ClusterService) choosePoolEdition(ctx context.Context, pool *domain.LicensePool) (*domain.Edition, error) {
	candidates, err := s.store.EditionsForIdentifiers(ctx, []string{pool.IdentifierID})
	if err != nil {
		return nil, fmt.Errorf("editions for pool %s: %w", pool.ID, err)
	}
	return champion.BestPresentationEdition(candidates, pool.Source), nil
}

// refreshFingerprint recomputes the edition's permanent work ID and
// persists it when the contributing fields changed it.
func (s *ClusterService) refreshFingerprint(ctx context.Context, edition *domain.Edition) (string, error) {
	pwid := fingerprint.ForEdition(edition)
	if pwid != edition.PermanentWorkID {
		edition.PermanentWorkID = pwid
		edition.Touch()
		if err := s.store.UpdateEdition(ctx, edition); err != nil {
			return "", fmt.Errorf("update edition fingerprint: %w", err)
		}
	}
	return pwid, nil
}

func (s *ClusterService) setPoolEdition(ctx context.Context, pool *domain.LicensePool, editionID string) error {
	if pool.PresentationEditionID == editionID {
		return nil
	}
	pool.PresentationEditionID = editionID
	pool.Touch()
	return s.store.UpdatePool(ctx, pool)
}

// canonicalWork finds or creates the single work owning (pwid, medium).
// When a data bug has left several works claiming the pair, the one with
// the most pools survives and absorbs the rest.
func (s *ClusterService) canonicalWork(ctx context.Context, pwid string, medium domain.Medium) (*domain.Work, bool, []string, error) {
	pools, err := s.store.OpenAccessPoolsByPWIDMedium(ctx, pwid, medium)
	if err != nil {
		return nil, false, nil, err
	}

	poolsByWork := make(map[string]int)
	for _, p := range pools {
		if p.WorkID != "" {
			poolsByWork[p.WorkID]++
		}
	}

	if len(poolsByWork) == 0 {
		work, err := s.newWork(ctx)
		if err != nil {
			return nil, false, nil, err
		}
		return work, true, nil, nil
	}

	survivorID := ""
	for workID, n := range poolsByWork {
		if survivorID == "" || n > poolsByWork[survivorID] || (n == poolsByWork[survivorID] && workID < survivorID) {
			survivorID = workID
		}
	}

	var evicted []string
	if len(poolsByWork) > 1 {
		s.logger.Warn("multiple works claim one fingerprint, merging",
			"pwid", pwid,
			"medium", medium,
			"works", len(poolsByWork),
			"survivor", survivorID,
		)
		evicted, err = s.absorbDuplicates(ctx, survivorID, poolsByWork, pwid, medium)
		if err != nil {
			return nil, false, nil, err
		}
	}

	work, err := s.store.GetWork(ctx, survivorID)
	if err != nil {
		return nil, false, nil, err
	}
	return work, false, evicted, nil
}

// absorbDuplicates merges every duplicate work into the survivor, first
// evicting any member whose fingerprint does not match so the merge
// precondition holds. The evicted pool IDs are returned so the caller can
// re-place them instead of leaving them for the next sweep.
func (s *ClusterService) absorbDuplicates(ctx context.Context, survivorID string, poolsByWork map[string]int, pwid string, medium domain.Medium) ([]string, error) {
	evicted, err := s.evictMismatched(ctx, survivorID, pwid, medium)
	if err != nil {
		return nil, err
	}

	for workID := range poolsByWork {
		if workID == survivorID {
			continue
		}
		more, err := s.evictMismatched(ctx, workID, pwid, medium)
		if err != nil {
			return nil, err
		}
		evicted = append(evicted, more...)
		if err := s.Merge(ctx, workID, survivorID); err != nil {
			return nil, err
		}
	}
	return evicted, nil
}

// evictMismatched detaches every pool in the work whose pwid or medium
// disagrees with the given pair, returning the evicted pool IDs.
func (s *ClusterService) evictMismatched(ctx context.Context, workID, pwid string, medium domain.Medium) ([]string, error) {
	pools, err := s.store.PoolsForWork(ctx, workID)
	if err != nil {
		return nil, err
	}

	var evicted []string
	for _, member := range pools {
		ok, err := s.poolMatches(ctx, member, pwid, medium)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		if err := s.store.SetPoolWork(ctx, member.ID, workID, ""); err != nil {
			return nil, err
		}
		evicted = append(evicted, member.ID)
	}
	return evicted, nil
}

func (s *ClusterService) poolMatches(ctx context.Context, pool *domain.LicensePool, pwid string, medium domain.Medium) (bool, error) {
	if !pool.OpenAccess || pool.PresentationEditionID == "" {
		return false, nil
	}
	edition, err := s.store.GetEdition(ctx, pool.PresentationEditionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return edition.PermanentWorkID == pwid && edition.Medium == medium, nil
}

// exclusiveWork gives a commercial (or fingerprint-less) pool a work of its
// own, reusing the current one when the pool is already alone in it.
func (s *ClusterService) exclusiveWork(ctx context.Context, pool *domain.LicensePool) (*domain.Work, bool, error) {
	if pool.WorkID != "" {
		members, err := s.store.PoolsForWork(ctx, pool.WorkID)
		if err != nil {
			return nil, false, err
		}
		if len(members) == 1 && members[0].ID == pool.ID {
			work, err := s.store.GetWork(ctx, pool.WorkID)
			return work, false, err
		}
	}
	work, err := s.newWork(ctx)
	if err != nil {
		return nil, false, err
	}
	return work, true, nil
}

func (s *ClusterService) newWork(ctx context.Context) (*domain.Work, error) {
	workID, err := id.Generate("work")
	if err != nil {
		return nil, fmt.Errorf("generate work ID: %w", err)
	}
	work := &domain.Work{Record: domain.Record{ID: workID}}
	work.InitTimestamps()
	if err := s.store.CreateWork(ctx, work); err != nil {
		return nil, err
	}
	metrics.WorksCreated.Inc()
	return work, nil
}

// enforceExclusivity evicts every member of the work that would break the
// open-access invariants once the incoming pool joins: commercial pools,
// pools with no presentation edition, and pools whose fingerprint or medium
// disagree with the incoming one.
func (s *ClusterService) enforceExclusivity(ctx context.Context, work *domain.Work, incoming *domain.LicensePool, pwid string, medium domain.Medium) ([]string, error) {
	members, err := s.store.PoolsForWork(ctx, work.ID)
	if err != nil {
		return nil, err
	}

	var evicted []string
	for _, member := range members {
		if member.ID == incoming.ID {
			continue
		}

		evict := false
		if incoming.OpenAccess && pwid != "" {
			ok, err := s.poolMatches(ctx, member, pwid, medium)
			if err != nil {
				return nil, err
			}
			evict = !ok
		} else {
			// An exclusive pool shares its work with nobody.
			evict = true
		}

		if evict {
			if err := s.store.SetPoolWork(ctx, member.ID, work.ID, ""); err != nil {
				return nil, err
			}
			metrics.PoolsEvicted.Inc()
			evicted = append(evicted, member.ID)
		}
	}
	return evicted, nil
}

// Merge moves every pool from source into destination and deletes source.
// Preconditions: both works hold only open-access pools and their
// fingerprint sets are identical. Violations are programming errors
// surfaced as cluster-consistency failures, never silently repaired.
func (s *ClusterService) Merge(ctx context.Context, sourceWorkID, destWorkID string) error {
	sourcePWIDs, err := s.workPWIDs(ctx, sourceWorkID)
	if err != nil {
		return err
	}
	destPWIDs, err := s.workPWIDs(ctx, destWorkID)
	if err != nil {
		return err
	}

	if !samePWIDSets(sourcePWIDs, destPWIDs) {
		return errors.ClusterConsistencyf("works %s and %s have different pwid sets", sourceWorkID, destWorkID)
	}

	if err := s.store.MergePoolsAndDeleteWork(ctx, sourceWorkID, destWorkID); err != nil {
		return fmt.Errorf("merge %s into %s: %w", sourceWorkID, destWorkID, err)
	}
	metrics.WorksMerged.Inc()

	s.logger.Info("works merged", "source", sourceWorkID, "destination", destWorkID)

	if s.recomputer != nil {
		if _, err := s.recomputer.Recompute(ctx, destWorkID); err != nil {
			return fmt.Errorf("recompute after merge: %w", err)
		}
	}
	return nil
}

// workPWIDs returns the set of fingerprints claimed by a work's pools,
// failing if any member is not open-access.
func (s *ClusterService) workPWIDs(ctx context.Context, workID string) (map[string]bool, error) {
	pools, err := s.store.PoolsForWork(ctx, workID)
	if err != nil {
		return nil, err
	}

	pwids := make(map[string]bool)
	for _, pool := range pools {
		if !pool.OpenAccess {
			return nil, errors.ClusterConsistencyf("work %s contains commercial pool %s, refusing to merge", workID, pool.ID)
		}
		if pool.PresentationEditionID == "" {
			continue
		}
		edition, err := s.store.GetEdition(ctx, pool.PresentationEditionID)
		if err != nil {
			return nil, err
		}
		if edition.PermanentWorkID != "" {
			pwids[edition.PermanentWorkID] = true
		}
	}
	return pwids, nil
}

func samePWIDSets(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for pwid := range a {
		if !b[pwid] {
			return false
		}
	}
	return true
}

// MarkSuperseded enforces the single-champion rule on a work: among its
// open-access pools exactly one champion stays non-superseded; commercial
// pools are never superseded.
func (s *ClusterService) MarkSuperseded(ctx context.Context, workID string) error {
	pools, err := s.store.PoolsForWork(ctx, workID)
	if err != nil {
		return err
	}

	winner := s.oaPolicy.BestOpenAccessPool(pools)

	for _, pool := range pools {
		superceded := false
		if pool.OpenAccess && winner != nil && pool.ID != winner.ID {
			superceded = true
		}
		if pool.Superceded == superceded {
			continue
		}
		pool.Superceded = superceded
		pool.Touch()
		if err := s.store.UpdatePool(ctx, pool); err != nil {
			return err
		}
	}
	return nil
}

// ReclusterUnattached re-runs clustering over every pool with no work, in
// batches so no single pass holds the database for long. A keyset cursor
// keeps the sweep to one resolution attempt per pool per call, so pools
// that stay unclusterable cost nothing extra until their metadata changes.
// Returns how many pools found a work.
func (s *ClusterService) ReclusterUnattached(ctx context.Context, opts ResolveOptions) (int, error) {
	clustered := 0
	afterID := ""
	for {
		pools, err := s.store.PoolsWithNoWork(ctx, afterID, s.cfg.BatchCommitSize)
		if err != nil {
			return clustered, err
		}
		if len(pools) == 0 {
			return clustered, nil
		}

		for _, pool := range pools {
			result, err := s.ResolveWorkForPool(ctx, pool.ID, opts)
			if err != nil {
				return clustered, err
			}
			if result.Work != nil {
				clustered++
			}
		}
		afterID = pools[len(pools)-1].ID

		s.logger.Info("recluster batch finished",
			"batch_size", len(pools),
			"clustered_so_far", clustered,
		)
	}
}

// OpenAccessDownload returns the pool's champion download link: the resource
// a patron is handed when borrowing the open-access book. Only supported
// media types are considered; a pool without a usable link is a not-found
// condition.
func (s *ClusterService) OpenAccessDownload(ctx context.Context, poolID string) (*domain.Resource, error) {
	pool, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if !pool.OpenAccess {
		return nil, errors.NotFoundf("pool %s carries no open-access content", poolID)
	}

	links, err := s.store.ResourcesForIdentifiers(ctx, []string{pool.IdentifierID}, domain.RelOpenAccessDownload)
	if err != nil {
		return nil, err
	}

	best := s.oaPolicy.BestOpenAccessLink(links)
	if best == nil {
		return nil, errors.NotFoundf("pool %s has no supported download link", poolID)
	}
	return best, nil
}
