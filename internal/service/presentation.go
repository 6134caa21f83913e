package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/openshelf/openshelf-server/internal/champion"
	"github.com/openshelf/openshelf-server/internal/classify"
	"github.com/openshelf/openshelf-server/internal/config"
	"github.com/openshelf/openshelf-server/internal/domain"
	"github.com/openshelf/openshelf-server/internal/errors"
	"github.com/openshelf/openshelf-server/internal/graph"
	"github.com/openshelf/openshelf-server/internal/metrics"
	"github.com/openshelf/openshelf-server/internal/quality"
	"github.com/openshelf/openshelf-server/internal/store"
	"github.com/openshelf/openshelf-server/internal/store/sqlite"
)

// RecomputePolicy selects which derived attributes a recompute pass
// re-derives. The zero value does nothing; DefaultRecomputePolicy re-derives
// everything without forcing regeneration.
type RecomputePolicy struct {
	ChooseEdition      bool
	SetEditionMetadata bool
	Classify           bool
	ChooseSummary      bool
	CalculateQuality   bool
	ChooseCover        bool

	// Regenerate and Reindex force the downstream artifacts to be rebuilt
	// even when no derived attribute changed.
	Regenerate bool
	Reindex    bool
}

// DefaultRecomputePolicy re-derives every attribute and lets the changed
// flag decide whether downstream artifacts are rebuilt.
func DefaultRecomputePolicy() RecomputePolicy {
	return RecomputePolicy{
		ChooseEdition:      true,
		SetEditionMetadata: true,
		Classify:           true,
		ChooseSummary:      true,
		CalculateQuality:   true,
		ChooseCover:        true,
	}
}

// sourceQualityBaseline is the quality a work falls back to when no usable
// measurement exists, keyed by the source of its pools. Curated commercial
// catalogs earn a higher benefit of the doubt than bulk open-access mirrors.
var sourceQualityBaseline = map[domain.DataSource]float64{
	domain.SourceGutenberg:      0.1,
	domain.SourceFeedbooks:      0.2,
	domain.SourcePlympton:       0.2,
	domain.SourceUnglueIt:       0.2,
	domain.SourceStandardEbooks: 0.4,
	domain.SourceOverdrive:      0.5,
	domain.SourceBibliotheca:    0.5,
	domain.SourceAxis360:        0.5,
}

// summaryPrivilegedSources short-circuits summary selection: when a curated
// source wrote any description, machine-harvested ones are not considered.
// Most preferred first.
var summaryPrivilegedSources = []domain.DataSource{
	domain.SourceLibraryStaff,
	domain.SourceMetadataWrangler,
}

// PresentationService re-derives a work's displayable attributes from its
// member pools' metadata: presentation edition, genres, summary, quality,
// and cover. It implements Recomputer for the clustering engine.
type PresentationService struct {
	store      *sqlite.Store
	graph      *graph.Graph
	classifier classify.Classifier
	evaluator  champion.Evaluator
	cluster    *ClusterService
	quality    *quality.Aggregator
	policy     RecomputePolicy
	graphCfg   config.GraphConfig
	rng        *rand.Rand
	logger     *slog.Logger
}

// NewPresentationService creates a presentation service and wires itself
// into the clustering engine as its recomputer.
func NewPresentationService(
	st *sqlite.Store,
	g *graph.Graph,
	classifier classify.Classifier,
	evaluator champion.Evaluator,
	cluster *ClusterService,
	graphCfg config.GraphConfig,
	logger *slog.Logger,
) *PresentationService {
	s := &PresentationService{
		store:      st,
		graph:      g,
		classifier: classifier,
		evaluator:  evaluator,
		cluster:    cluster,
		quality:    quality.NewAggregator(quality.DefaultConfig()),
		policy:     DefaultRecomputePolicy(),
		graphCfg:   graphCfg,
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		logger:     logger.With("service", "presentation"),
	}
	cluster.SetRecomputer(s)
	return s
}

// Recompute runs the full pipeline with the default policy.
func (s *PresentationService) Recompute(ctx context.Context, workID string) (bool, error) {
	return s.RecomputeWith(ctx, workID, s.policy)
}

// RecomputeWith re-derives the work's presentation attributes per the given
// policy and reports whether anything changed. Running it twice with no new
// facts yields changed=false and leaves the work's timestamp untouched.
func (s *PresentationService) RecomputeWith(ctx context.Context, workID string, policy RecomputePolicy) (bool, error) {
	if err := s.cluster.MarkSuperseded(ctx, workID); err != nil {
		return false, fmt.Errorf("mark superseded: %w", err)
	}

	work, err := s.store.GetWork(ctx, workID)
	if err != nil {
		return false, fmt.Errorf("get work: %w", err)
	}
	before := *work

	oldGenres, err := s.store.GetWorkGenres(ctx, workID)
	if err != nil {
		return false, fmt.Errorf("get work genres: %w", err)
	}

	pools, err := s.store.PoolsForWork(ctx, workID)
	if err != nil {
		return false, fmt.Errorf("pools for work: %w", err)
	}

	if policy.ChooseEdition {
		if err := s.refreshPoolEditions(ctx, pools); err != nil {
			return false, err
		}
	}

	members, err := s.memberEditions(ctx, pools)
	if err != nil {
		return false, err
	}

	if policy.SetEditionMetadata {
		s.applyEditionMetadata(work, members)
	}

	identifierIDs, err := s.equivalentIdentifiers(ctx, pools)
	if err != nil {
		return false, err
	}

	genres := oldGenres
	genresChanged := false
	if policy.Classify {
		genres, genresChanged, err = s.classifyWork(ctx, work, identifierIDs, oldGenres)
		if err != nil {
			return false, err
		}
	}

	if policy.ChooseSummary {
		if err := s.chooseSummary(ctx, work, identifierIDs); err != nil {
			return false, err
		}
	}

	if policy.CalculateQuality {
		if err := s.calculateQuality(ctx, work, identifierIDs, pools); err != nil {
			return false, err
		}
	}

	if policy.ChooseCover {
		if err := s.chooseCover(ctx, work, identifierIDs); err != nil {
			return false, err
		}
	}

	work.SetPresentationReadyBasedOnContent()

	changed := genresChanged || workAttributesChanged(&before, work)
	metrics.RecomputeRuns.WithLabelValues(strconv.FormatBool(changed)).Inc()

	if !changed && !policy.Regenerate && !policy.Reindex {
		return false, nil
	}

	if genresChanged {
		if err := s.store.SetWorkGenres(ctx, workID, genres); err != nil {
			return false, fmt.Errorf("set work genres: %w", err)
		}
	}
	if changed {
		work.Touch()
	}
	if err := s.store.UpdateWork(ctx, work); err != nil {
		return false, fmt.Errorf("update work: %w", err)
	}
	if err := s.store.SetWorkCoverage(ctx, workID, domain.OperationRecompute); err != nil {
		return false, fmt.Errorf("set work coverage: %w", err)
	}

	s.logger.Debug("presentation recomputed",
		"work_id", workID,
		"changed", changed,
		"presentation_ready", work.PresentationReady,
	)
	return changed, nil
}

// memberEdition pairs a member edition with the source of the pool it
// represents, which drives the composite priority ordering.
type memberEdition struct {
	edition    *domain.Edition
	poolSource domain.DataSource
	superceded bool
}

// refreshPoolEditions re-derives each pool's presentation edition from the
// editions written for its own identifier.
func (s *PresentationService) refreshPoolEditions(ctx context.Context, pools []*domain.LicensePool) error {
	for _, pool := range pools {
		candidates, err := s.store.EditionsForIdentifiers(ctx, []string{pool.IdentifierID})
		if err != nil {
			return fmt.Errorf("editions for pool %s: %w", pool.ID, err)
		}
		best := champion.BestPresentationEdition(candidates, pool.Source)
		if best == nil || pool.PresentationEditionID == best.ID {
			continue
		}
		pool.PresentationEditionID = best.ID
		pool.Touch()
		if err := s.store.UpdatePool(ctx, pool); err != nil {
			return fmt.Errorf("update pool %s: %w", pool.ID, err)
		}
	}
	return nil
}

func (s *PresentationService) memberEditions(ctx context.Context, pools []*domain.LicensePool) ([]memberEdition, error) {
	var members []memberEdition
	for _, pool := range pools {
		if pool.PresentationEditionID == "" {
			continue
		}
		edition, err := s.store.GetEdition(ctx, pool.PresentationEditionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get edition %s: %w", pool.PresentationEditionID, err)
		}
		members = append(members, memberEdition{
			edition:    edition,
			poolSource: pool.Source,
			superceded: pool.Superceded,
		})
	}
	return members, nil
}

// applyEditionMetadata picks the work-level presentation edition among
// non-superseded members (keeping the existing choice when still valid, to
// minimize downstream churn) and overlays the members' metadata into a
// composite: fields missing on the chosen edition are filled from the
// remaining members in descending priority order.
func (s *PresentationService) applyEditionMetadata(work *domain.Work, members []memberEdition) {
	var eligible []memberEdition
	for _, m := range members {
		if !m.superceded {
			eligible = append(eligible, m)
		}
	}
	if len(eligible) == 0 {
		eligible = members
	}
	if len(eligible) == 0 {
		return
	}

	// Descending priority, stable so repeated runs pick the same winner.
	sort.SliceStable(eligible, func(i, j int) bool {
		return champion.EditionPriority(eligible[i].edition.Source, eligible[i].poolSource) >
			champion.EditionPriority(eligible[j].edition.Source, eligible[j].poolSource)
	})

	chosen := eligible[0]
	for _, m := range eligible {
		if m.edition.ID == work.PresentationEditionID {
			chosen = m
			break
		}
	}

	work.PresentationEditionID = chosen.edition.ID
	work.Title = chosen.edition.Title
	work.Author = chosen.edition.Author()
	work.Language = chosen.edition.Language
	work.Medium = chosen.edition.Medium

	// Composite fill: any field the chosen edition leaves blank comes from
	// the next-best member that has it.
	for _, m := range eligible {
		if work.Title == "" {
			work.Title = m.edition.Title
		}
		if work.Author == "" {
			work.Author = m.edition.Author()
		}
		if work.Language == "" {
			work.Language = m.edition.Language
		}
	}
}

// equivalentIdentifiers expands the member pools' identifiers through the
// identity graph, returning the full sorted identifier set the derivation
// steps read facts for.
func (s *PresentationService) equivalentIdentifiers(ctx context.Context, pools []*domain.LicensePool) ([]string, error) {
	var seeds []string
	for _, pool := range pools {
		if pool.IdentifierID != "" {
			seeds = append(seeds, pool.IdentifierID)
		}
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	closure, err := s.graph.EquivalentIDs(ctx, seeds, s.graphCfg.Levels, s.graphCfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("equivalent identifiers: %w", err)
	}

	seen := make(map[string]bool)
	for _, ids := range closure {
		for id := range ids {
			seen[id] = true
		}
	}
	all := make([]string, 0, len(seen))
	for id := range seen {
		all = append(all, id)
	}
	sort.Strings(all)
	return all, nil
}

// classifyWork sends the cluster's subject facts to the external classifier
// and reconciles the returned genre distribution against the stored rows.
// An external-service failure skips the step; the previous classification
// stands until the next pass.
func (s *PresentationService) classifyWork(ctx context.Context, work *domain.Work, identifierIDs []string, oldGenres []domain.WorkGenre) ([]domain.WorkGenre, bool, error) {
	facts, err := s.store.ClassificationsForIdentifiers(ctx, identifierIDs)
	if err != nil {
		return nil, false, fmt.Errorf("classifications: %w", err)
	}
	if len(facts) == 0 {
		return oldGenres, false, nil
	}

	result, err := s.classifier.Classify(ctx, facts)
	if err != nil {
		if errors.Is(err, errors.ErrExternalService) {
			metrics.ExternalCallFailures.WithLabelValues("classifier").Inc()
			s.logger.Warn("classifier unavailable, keeping previous classification",
				"work_id", work.ID,
				"error", err,
			)
			return oldGenres, false, nil
		}
		return nil, false, fmt.Errorf("classify: %w", err)
	}

	work.Fiction = result.Fiction
	work.Audience = result.Audience
	work.TargetAgeMin = result.TargetAgeMin
	work.TargetAgeMax = result.TargetAgeMax

	newGenres := make([]domain.WorkGenre, 0, len(result.Genres))
	for genre, weight := range result.Genres {
		newGenres = append(newGenres, domain.WorkGenre{WorkID: work.ID, Genre: genre, Weight: weight})
	}
	sort.Slice(newGenres, func(i, j int) bool { return newGenres[i].Genre < newGenres[j].Genre })

	return newGenres, !sameGenres(oldGenres, newGenres), nil
}

// chooseSummary picks the champion descriptive resource across the identity
// cluster and stores a plain-text rendering of it.
func (s *PresentationService) chooseSummary(ctx context.Context, work *domain.Work, identifierIDs []string) error {
	candidates, err := s.store.ResourcesForIdentifiers(ctx, identifierIDs, domain.RelDescription)
	if err != nil {
		return fmt.Errorf("description resources: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	winner, err := champion.BestSummary(ctx, candidates, s.evaluator, summaryPrivilegedSources)
	if err != nil {
		if errors.Is(err, errors.ErrExternalService) {
			metrics.ExternalCallFailures.WithLabelValues("evaluator").Inc()
			s.logger.Warn("summary evaluator unavailable, keeping previous summary",
				"work_id", work.ID,
				"error", err,
			)
			return nil
		}
		return fmt.Errorf("best summary: %w", err)
	}
	if winner == nil {
		return nil
	}

	work.SummaryResourceID = winner.ID
	work.SummaryText = plainSummary(winner.Content)
	return nil
}

// calculateQuality aggregates the cluster's measurements into the work's
// quality score, falling back to the baseline of its best-regarded pool
// source when nothing usable was measured.
func (s *PresentationService) calculateQuality(ctx context.Context, work *domain.Work, identifierIDs []string, pools []*domain.LicensePool) error {
	measurements, err := s.store.MeasurementsForIdentifiers(ctx, identifierIDs)
	if err != nil {
		return fmt.Errorf("measurements: %w", err)
	}

	def := 0.0
	for _, pool := range pools {
		if baseline := sourceQualityBaseline[pool.Source]; baseline > def {
			def = baseline
		}
	}

	work.Quality = s.quality.OverallQuality(measurements, def)
	return nil
}

// chooseCover picks the champion cover image across the identity cluster.
func (s *PresentationService) chooseCover(ctx context.Context, work *domain.Work, identifierIDs []string) error {
	candidates, err := s.store.ResourcesForIdentifiers(ctx, identifierIDs, domain.RelImage)
	if err != nil {
		return fmt.Errorf("image resources: %w", err)
	}

	winner := champion.BestCover(candidates, champion.MinimumCoverQuality, work.CoverResourceID, s.rng)
	if winner == nil {
		return nil
	}

	work.CoverResourceID = winner.ID
	work.CoverBlurHash = winner.BlurHash
	return nil
}

// workAttributesChanged compares every derived attribute of the work
// against its pre-recompute snapshot.
func workAttributesChanged(before, after *domain.Work) bool {
	if before.PresentationEditionID != after.PresentationEditionID ||
		before.Title != after.Title ||
		before.Author != after.Author ||
		before.Language != after.Language ||
		before.Medium != after.Medium {
		return true
	}
	if !sameFiction(before.Fiction, after.Fiction) ||
		before.Audience != after.Audience ||
		before.TargetAgeMin != after.TargetAgeMin ||
		before.TargetAgeMax != after.TargetAgeMax {
		return true
	}
	return before.Quality != after.Quality ||
		before.SummaryResourceID != after.SummaryResourceID ||
		before.SummaryText != after.SummaryText ||
		before.CoverResourceID != after.CoverResourceID ||
		before.CoverBlurHash != after.CoverBlurHash ||
		before.PresentationReady != after.PresentationReady
}

func sameFiction(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sameGenres compares distributions as sets; the two sides come back from
// the store and the classifier in different orders.
func sameGenres(a, b []domain.WorkGenre) bool {
	if len(a) != len(b) {
		return false
	}
	weights := make(map[string]float64, len(a))
	for _, g := range a {
		weights[g.Genre] = g.Weight
	}
	for _, g := range b {
		w, ok := weights[g.Genre]
		if !ok || w != g.Weight {
			return false
		}
	}
	return true
}

// htmlTagPattern matches common HTML tags to detect markup in harvested
// descriptions.
var htmlTagPattern = regexp.MustCompile(`<(p|br|div|span|b|i|strong|em|a|ul|ol|li|h[1-6]|blockquote)[\s>/]`)

// plainSummary renders a harvested description as plain text. HTML is
// converted to Markdown; anything else passes through trimmed.
func plainSummary(content string) string {
	if content == "" || !htmlTagPattern.MatchString(strings.ToLower(content)) {
		return strings.TrimSpace(content)
	}
	markdown, err := htmltomarkdown.ConvertString(content)
	if err != nil {
		return strings.TrimSpace(content)
	}
	return strings.TrimSpace(markdown)
}
