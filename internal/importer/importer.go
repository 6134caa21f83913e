package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/openshelf/openshelf-server/internal/config"
	"github.com/openshelf/openshelf-server/internal/domain"
	"github.com/openshelf/openshelf-server/internal/errors"
	"github.com/openshelf/openshelf-server/internal/graph"
	"github.com/openshelf/openshelf-server/internal/id"
	"github.com/openshelf/openshelf-server/internal/media/covers"
	"github.com/openshelf/openshelf-server/internal/metrics"
	"github.com/openshelf/openshelf-server/internal/service"
	"github.com/openshelf/openshelf-server/internal/store"
	"github.com/openshelf/openshelf-server/internal/store/sqlite"
	"github.com/openshelf/openshelf-server/internal/validation"
)

// Importer turns record batches into catalog state. One bad record never
// aborts its batch; failures are written to coverage records and reported in
// the result.
type Importer struct {
	store     *sqlite.Store
	graph     *graph.Graph
	cluster   *service.ClusterService
	validator *validation.Validator
	cfg       config.ClusterConfig
	logger    *slog.Logger
}

// New creates an importer.
func New(st *sqlite.Store, g *graph.Graph, cluster *service.ClusterService, cfg config.ClusterConfig, logger *slog.Logger) *Importer {
	return &Importer{
		store:     st,
		graph:     g,
		cluster:   cluster,
		validator: validation.New(),
		cfg:       cfg,
		logger:    logger.With("service", "importer"),
	}
}

// Options tunes one batch import.
type Options struct {
	// AllowAuthorless clusters pools whose editions carry a title but no
	// resolvable author, as some open-access feeds legitimately do.
	AllowAuthorless bool
}

// Result reports what a batch produced.
type Result struct {
	Editions []*domain.Edition
	Pools    []*domain.LicensePool
	Works    []*domain.Work

	// Failures maps identifier values to what went wrong with them.
	Failures map[string]error
}

// ImportBatch applies every record in the batch on behalf of one source.
// Progress is logged every batch-commit-size records so long feeds remain
// observable.
func (imp *Importer) ImportBatch(ctx context.Context, source domain.DataSource, records []*Record, opts Options) (*Result, error) {
	result := &Result{Failures: make(map[string]error)}

	for i, record := range records {
		edition, pool, work, err := imp.importOne(ctx, source, record, opts)
		if err != nil {
			imp.recordFailure(ctx, source, record, err)
			result.Failures[record.IdentifierValue] = err
			continue
		}
		metrics.RecordsImported.WithLabelValues("success").Inc()

		if edition != nil {
			result.Editions = append(result.Editions, edition)
		}
		if pool != nil {
			result.Pools = append(result.Pools, pool)
		}
		if work != nil {
			result.Works = append(result.Works, work)
		}

		if (i+1)%imp.cfg.BatchCommitSize == 0 {
			imp.logger.Info("import progress",
				"source", source,
				"processed", i+1,
				"total", len(records),
				"failures", len(result.Failures),
			)
		}
	}

	imp.logger.Info("import batch finished",
		"source", source,
		"records", len(records),
		"editions", len(result.Editions),
		"pools", len(result.Pools),
		"works", len(result.Works),
		"failures", len(result.Failures),
	)
	return result, nil
}

func (imp *Importer) importOne(ctx context.Context, source domain.DataSource, record *Record, opts Options) (*domain.Edition, *domain.LicensePool, *domain.Work, error) {
	if err := imp.validator.Validate(record); err != nil {
		return nil, nil, nil, err
	}

	identifier, err := imp.store.GetOrCreateIdentifier(ctx, record.IdentifierType, record.IdentifierValue)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("identifier: %w", err)
	}

	edition, err := imp.applyEdition(ctx, source, identifier.ID, record)
	if err != nil {
		return nil, nil, nil, err
	}

	for _, eq := range record.Equivalencies {
		other, err := imp.store.GetOrCreateIdentifier(ctx, eq.Type, eq.Value)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("equivalent identifier: %w", err)
		}
		if err := imp.graph.AssertEquivalent(ctx, source, identifier.ID, other.ID, eq.Strength); err != nil {
			return nil, nil, nil, fmt.Errorf("assert equivalency: %w", err)
		}
	}

	if err := imp.applyMeasurements(ctx, source, identifier.ID, record.Measurements); err != nil {
		return nil, nil, nil, err
	}
	if err := imp.applyClassifications(ctx, source, identifier.ID, record.Classifications); err != nil {
		return nil, nil, nil, err
	}
	if err := imp.applyLinks(ctx, source, identifier.ID, record.Links); err != nil {
		return nil, nil, nil, err
	}

	pool, err := imp.applyCirculation(ctx, source, identifier.ID, record.Circulation)
	if err != nil {
		return nil, nil, nil, err
	}

	var work *domain.Work
	if pool != nil {
		resolved, err := imp.cluster.ResolveWorkForPool(ctx, pool.ID, service.ResolveOptions{
			AllowAuthorless: opts.AllowAuthorless,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("cluster pool: %w", err)
		}
		// An unclustered pool is not a failure; it is retried whenever its
		// metadata next changes.
		work = resolved.Work
	}

	if _, err := imp.store.UpsertCoverageRecord(ctx, identifier.ID, source, domain.OperationImport, domain.CoverageSuccess, ""); err != nil {
		return nil, nil, nil, fmt.Errorf("coverage record: %w", err)
	}

	return edition, pool, work, nil
}

// applyEdition finds or creates the (source, identifier) edition and merges
// the record's metadata into it: scalars overwrite when set, contributor
// lists are replaced when the record carries any.
func (imp *Importer) applyEdition(ctx context.Context, source domain.DataSource, identifierID string, record *Record) (*domain.Edition, error) {
	if !recordHasEditionData(record) {
		return nil, nil
	}

	edition, err := imp.store.GetEditionBySourceAndIdentifier(ctx, source, identifierID)
	created := false
	if errors.Is(err, store.ErrNotFound) {
		editionID, genErr := id.Generate("edition")
		if genErr != nil {
			return nil, fmt.Errorf("generate edition ID: %w", genErr)
		}
		edition = &domain.Edition{
			Record:              domain.Record{ID: editionID},
			Source:              source,
			PrimaryIdentifierID: identifierID,
			Medium:              domain.MediumBook,
		}
		edition.InitTimestamps()
		created = true
	} else if err != nil {
		return nil, fmt.Errorf("get edition: %w", err)
	}

	if record.Title != "" {
		edition.Title = record.Title
	}
	if record.Subtitle != "" {
		edition.Subtitle = record.Subtitle
	}
	if record.Language != "" {
		edition.Language = record.Language
	}
	if record.Medium != "" {
		edition.Medium = record.Medium
	}
	if record.Publisher != "" {
		edition.Publisher = record.Publisher
	}
	if record.PublishedYear != "" {
		edition.PublishedYear = record.PublishedYear
	}
	if len(record.Contributors) > 0 {
		edition.Contributors = record.Contributors
	}

	if created {
		if err := imp.store.CreateEdition(ctx, edition); err != nil {
			return nil, fmt.Errorf("create edition: %w", err)
		}
		return edition, nil
	}
	edition.Touch()
	if err := imp.store.UpdateEdition(ctx, edition); err != nil {
		return nil, fmt.Errorf("update edition: %w", err)
	}
	return edition, nil
}

func recordHasEditionData(record *Record) bool {
	return record.Title != "" || record.Subtitle != "" || record.Language != "" ||
		record.Medium != "" || record.Publisher != "" || record.PublishedYear != "" ||
		len(record.Contributors) > 0
}

func (imp *Importer) applyMeasurements(ctx context.Context, source domain.DataSource, identifierID string, inputs []MeasurementInput) error {
	for _, input := range inputs {
		measurementID, err := id.Generate("msr")
		if err != nil {
			return fmt.Errorf("generate measurement ID: %w", err)
		}
		takenAt := input.TakenAt
		if takenAt.IsZero() {
			takenAt = time.Now()
		}
		m := &domain.Measurement{
			Record:       domain.Record{ID: measurementID},
			IdentifierID: identifierID,
			Source:       source,
			Quantity:     input.Quantity,
			Value:        input.Value,
			Weight:       input.Weight,
			TakenAt:      takenAt,
		}
		m.InitTimestamps()
		if err := imp.store.AddMeasurement(ctx, m); err != nil {
			return fmt.Errorf("add measurement: %w", err)
		}
	}
	return nil
}

func (imp *Importer) applyClassifications(ctx context.Context, source domain.DataSource, identifierID string, inputs []ClassificationInput) error {
	for _, input := range inputs {
		weight := input.Weight
		if weight == 0 {
			weight = 1
		}
		c := &domain.Classification{
			IdentifierID:      identifierID,
			Source:            source,
			SubjectType:       input.SubjectType,
			SubjectIdentifier: input.SubjectIdentifier,
			SubjectName:       input.SubjectName,
			Weight:            weight,
		}
		if err := imp.store.AddClassification(ctx, c); err != nil {
			return fmt.Errorf("add classification: %w", err)
		}
	}
	return nil
}

// applyLinks upserts one resource per link, keyed by (source, rel, url) so
// re-imports update in place. An image link carrying a thumbnail URL gets
// the thumbnail created first and referenced from the full image.
func (imp *Importer) applyLinks(ctx context.Context, source domain.DataSource, identifierID string, links []LinkInput) error {
	for _, link := range links {
		thumbnailID := ""
		if link.Rel == domain.RelImage && link.ThumbnailURL != "" {
			thumbnail, err := imp.upsertResource(ctx, source, identifierID, &domain.Resource{
				IdentifierID: identifierID,
				Source:       source,
				Rel:          domain.RelThumbnail,
				URL:          link.ThumbnailURL,
				MediaType:    link.MediaType,
			})
			if err != nil {
				return err
			}
			thumbnailID = thumbnail.ID
		}

		_, err := imp.upsertResource(ctx, source, identifierID, &domain.Resource{
			IdentifierID: identifierID,
			Source:       source,
			Rel:          link.Rel,
			URL:          link.URL,
			MediaType:    link.MediaType,
			RightsStatus: link.RightsStatus,
			Content:      link.Content,
			ThumbnailID:  thumbnailID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (imp *Importer) upsertResource(ctx context.Context, source domain.DataSource, identifierID string, incoming *domain.Resource) (*domain.Resource, error) {
	existing, err := imp.store.GetResourceBySourceRelURL(ctx, identifierID, source, incoming.Rel, incoming.URL)
	if errors.Is(err, store.ErrNotFound) {
		resourceID, genErr := id.Generate("rsc")
		if genErr != nil {
			return nil, fmt.Errorf("generate resource ID: %w", genErr)
		}
		incoming.ID = resourceID
		incoming.InitTimestamps()
		if err := imp.store.CreateResource(ctx, incoming); err != nil {
			return nil, fmt.Errorf("create resource: %w", err)
		}
		return incoming, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get resource: %w", err)
	}

	changed := false
	if incoming.MediaType != "" && existing.MediaType != incoming.MediaType {
		existing.MediaType = incoming.MediaType
		changed = true
	}
	if incoming.RightsStatus != "" && existing.RightsStatus != incoming.RightsStatus {
		existing.RightsStatus = incoming.RightsStatus
		changed = true
	}
	if incoming.Content != "" && existing.Content != incoming.Content {
		existing.Content = incoming.Content
		changed = true
	}
	if incoming.ThumbnailID != "" && existing.ThumbnailID != incoming.ThumbnailID {
		existing.ThumbnailID = incoming.ThumbnailID
		changed = true
	}
	if !changed {
		return existing, nil
	}
	existing.Touch()
	if err := imp.store.UpdateResource(ctx, existing); err != nil {
		return nil, fmt.Errorf("update resource: %w", err)
	}
	return existing, nil
}

// applyCirculation finds or creates the identifier's pool when the record
// carries circulation data, keeping license counts and open-access status
// current.
func (imp *Importer) applyCirculation(ctx context.Context, source domain.DataSource, identifierID string, circ *CirculationInput) (*domain.LicensePool, error) {
	pool, err := imp.store.GetPoolByIdentifier(ctx, identifierID)
	if errors.Is(err, store.ErrNotFound) {
		if circ == nil {
			return nil, nil
		}
		poolID, genErr := id.Generate("pool")
		if genErr != nil {
			return nil, fmt.Errorf("generate pool ID: %w", genErr)
		}
		pool = &domain.LicensePool{
			Record:            domain.Record{ID: poolID},
			Source:            source,
			IdentifierID:      identifierID,
			RightsStatus:      circ.RightsStatus,
			OpenAccess:        circ.RightsStatus.OpenAccess(),
			LicensesOwned:     circ.LicensesOwned,
			LicensesAvailable: circ.LicensesAvailable,
		}
		pool.InitTimestamps()
		if err := imp.store.CreatePool(ctx, pool); err != nil {
			return nil, fmt.Errorf("create pool: %w", err)
		}
		return pool, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pool: %w", err)
	}
	if circ == nil {
		return pool, nil
	}

	changed := pool.RightsStatus != circ.RightsStatus ||
		pool.LicensesOwned != circ.LicensesOwned ||
		pool.LicensesAvailable != circ.LicensesAvailable
	if !changed {
		return pool, nil
	}

	pool.RightsStatus = circ.RightsStatus
	pool.OpenAccess = circ.RightsStatus.OpenAccess()
	pool.LicensesOwned = circ.LicensesOwned
	pool.LicensesAvailable = circ.LicensesAvailable
	pool.Touch()
	if err := imp.store.UpdatePool(ctx, pool); err != nil {
		return nil, fmt.Errorf("update pool: %w", err)
	}
	return pool, nil
}

// recordFailure writes the per-item coverage record for a failed import.
// Validation and consistency errors are persistent (waiting for upstream
// data to change); everything else is transient and retried next pass.
func (imp *Importer) recordFailure(ctx context.Context, source domain.DataSource, record *Record, cause error) {
	status := domain.CoverageTransientFailure
	if errors.Is(cause, errors.ErrValidation) || errors.Is(cause, errors.ErrClusterConsistency) {
		status = domain.CoveragePersistentFailure
	}
	metrics.RecordsImported.WithLabelValues(string(status)).Inc()

	imp.logger.Error("record import failed",
		"source", source,
		"identifier", record.IdentifierValue,
		"status", status,
		"error", cause,
	)

	if record.IdentifierType == "" || record.IdentifierValue == "" {
		return
	}
	identifier, err := imp.store.GetOrCreateIdentifier(ctx, record.IdentifierType, record.IdentifierValue)
	if err != nil {
		imp.logger.Error("failed to record import failure", "error", err)
		return
	}
	if _, err := imp.store.UpsertCoverageRecord(ctx, identifier.ID, source, domain.OperationImport, status, cause.Error()); err != nil {
		imp.logger.Error("failed to record import failure", "error", err)
	}
}

// AttachCoverImage records the decoded properties of a fetched cover image
// on its resource row: dimensions, blurhash and estimated quality. The
// mirror calls it with the bytes behind an image or thumbnail resource; the
// next recompute then sees the cover as a scored champion candidate.
func (imp *Importer) AttachCoverImage(ctx context.Context, resourceID string, r io.Reader) (*domain.Resource, error) {
	resource, err := imp.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if resource.Rel != domain.RelImage && resource.Rel != domain.RelThumbnail {
		return nil, errors.Validationf("resource %s is %s, not an image", resourceID, resource.Rel)
	}

	analysis, err := covers.Analyze(r, resource.Source)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidation, "analyze cover")
	}
	analysis.Apply(resource)

	if err := imp.store.UpdateResource(ctx, resource); err != nil {
		return nil, err
	}

	imp.logger.Debug("cover analyzed",
		"resource_id", resource.ID,
		"width", resource.Width,
		"height", resource.Height,
		"quality", resource.Quality,
	)

	return resource, nil
}
