package importer

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/openshelf-server/internal/champion"
	"github.com/openshelf/openshelf-server/internal/config"
	"github.com/openshelf/openshelf-server/internal/domain"
	"github.com/openshelf/openshelf-server/internal/errors"
	"github.com/openshelf/openshelf-server/internal/graph"
	"github.com/openshelf/openshelf-server/internal/service"
	"github.com/openshelf/openshelf-server/internal/store/sqlite"
)

func newTestImporter(t *testing.T) (*Importer, *sqlite.Store) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	st, err := sqlite.Open(dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.ClusterConfig{BatchCommitSize: 10, MaxEvictionPasses: 10}
	cluster := service.NewClusterService(st, champion.DefaultOpenAccessPolicy(), cfg, logger)
	g := graph.New(st, nil, logger)

	return New(st, g, cluster, cfg, logger), st
}

func fullRecord(uri string) *Record {
	return &Record{
		IdentifierType:  domain.IdentifierURI,
		IdentifierValue: uri,
		Title:           "Moby Dick",
		Language:        "eng",
		Medium:          domain.MediumBook,
		Contributors: []domain.Contributor{
			{Name: "Herman Melville", Role: domain.RoleAuthor},
		},
		Circulation: &CirculationInput{RightsStatus: domain.RightsPublicDomainUSA},
		Classifications: []ClassificationInput{
			{SubjectType: "LCSH", SubjectIdentifier: "Whaling -- Fiction", Weight: 10},
		},
		Measurements: []MeasurementInput{
			{Quantity: domain.QuantityDownloads, Value: 500, Weight: 1},
		},
		Links: []LinkInput{
			{
				Rel:          domain.RelOpenAccessDownload,
				URL:          "https://gutenberg.org/files/2701/2701.epub",
				MediaType:    "application/epub+zip",
				RightsStatus: domain.RightsPublicDomainUSA,
			},
			{
				Rel:          domain.RelImage,
				URL:          "https://gutenberg.org/cache/2701/cover.jpg",
				MediaType:    "image/jpeg",
				ThumbnailURL: "https://gutenberg.org/cache/2701/cover-small.jpg",
			},
			{
				Rel:     domain.RelDescription,
				Content: "The classic tale of obsession at sea.",
			},
		},
	}
}

func TestImportBatch_FullRecord(t *testing.T) {
	imp, st := newTestImporter(t)
	ctx := context.Background()

	result, err := imp.ImportBatch(ctx, domain.SourceGutenberg, []*Record{
		fullRecord("https://gutenberg.org/ebooks/2701"),
	}, Options{})
	require.NoError(t, err)

	assert.Empty(t, result.Failures)
	require.Len(t, result.Editions, 1)
	require.Len(t, result.Pools, 1)
	require.Len(t, result.Works, 1)

	edition := result.Editions[0]
	assert.Equal(t, "Moby Dick", edition.Title)
	assert.Equal(t, "Herman Melville", edition.Author())

	pool := result.Pools[0]
	assert.True(t, pool.OpenAccess)

	// The image resource references its adjacent thumbnail.
	images, err := st.ResourcesForIdentifiers(ctx, []string{pool.IdentifierID}, domain.RelImage)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.NotEmpty(t, images[0].ThumbnailID)

	thumbnail, err := st.GetResource(ctx, images[0].ThumbnailID)
	require.NoError(t, err)
	assert.Equal(t, domain.RelThumbnail, thumbnail.Rel)

	coverage, err := st.GetCoverageRecord(ctx, pool.IdentifierID, domain.SourceGutenberg, domain.OperationImport)
	require.NoError(t, err)
	assert.Equal(t, domain.CoverageSuccess, coverage.Status)
}

func TestImportBatch_ReimportUpdatesInPlace(t *testing.T) {
	imp, st := newTestImporter(t)
	ctx := context.Background()

	uri := "https://gutenberg.org/ebooks/2701"
	first, err := imp.ImportBatch(ctx, domain.SourceGutenberg, []*Record{fullRecord(uri)}, Options{})
	require.NoError(t, err)

	updated := fullRecord(uri)
	updated.Title = "Moby Dick; or, The Whale"

	second, err := imp.ImportBatch(ctx, domain.SourceGutenberg, []*Record{updated}, Options{})
	require.NoError(t, err)

	assert.Equal(t, first.Editions[0].ID, second.Editions[0].ID, "re-import must update the same edition")
	assert.Equal(t, first.Pools[0].ID, second.Pools[0].ID, "re-import must reuse the pool")
	assert.Equal(t, "Moby Dick; or, The Whale", second.Editions[0].Title)

	// Resources dedup by (source, rel, url): still one of each.
	images, err := st.ResourcesForIdentifiers(ctx, []string{first.Pools[0].IdentifierID}, domain.RelImage)
	require.NoError(t, err)
	assert.Len(t, images, 1)

	descriptions, err := st.ResourcesForIdentifiers(ctx, []string{first.Pools[0].IdentifierID}, domain.RelDescription)
	require.NoError(t, err)
	assert.Len(t, descriptions, 1)
}

func TestImportBatch_FailureIsolation(t *testing.T) {
	imp, st := newTestImporter(t)
	ctx := context.Background()

	bad := fullRecord("https://gutenberg.org/ebooks/11")
	bad.Links = append(bad.Links, LinkInput{URL: "https://example.org/orphan"}) // missing rel

	good := fullRecord("https://gutenberg.org/ebooks/2701")

	result, err := imp.ImportBatch(ctx, domain.SourceGutenberg, []*Record{bad, good}, Options{})
	require.NoError(t, err, "one bad record must not abort the batch")

	require.Len(t, result.Failures, 1)
	failure := result.Failures["https://gutenberg.org/ebooks/11"]
	require.Error(t, failure)
	assert.True(t, errors.Is(failure, errors.ErrValidation))

	require.Len(t, result.Works, 1)

	// The bad record got a persistent-failure coverage record.
	badIdentifier, err := st.GetIdentifierByTypeValue(ctx, domain.IdentifierURI, "https://gutenberg.org/ebooks/11")
	require.NoError(t, err)
	coverage, err := st.GetCoverageRecord(ctx, badIdentifier.ID, domain.SourceGutenberg, domain.OperationImport)
	require.NoError(t, err)
	assert.Equal(t, domain.CoveragePersistentFailure, coverage.Status)
}

func TestImportBatch_EquivalenciesFeedTheGraph(t *testing.T) {
	imp, st := newTestImporter(t)
	ctx := context.Background()

	record := fullRecord("https://gutenberg.org/ebooks/2701")
	record.Equivalencies = []EquivalencyInput{
		{Type: domain.IdentifierISBN, Value: "9781853260087", Strength: 1},
	}

	result, err := imp.ImportBatch(ctx, domain.SourceGutenberg, []*Record{record}, Options{})
	require.NoError(t, err)
	require.Empty(t, result.Failures)

	isbn, err := st.GetIdentifierByTypeValue(ctx, domain.IdentifierISBN, "9781853260087")
	require.NoError(t, err)

	edges, err := st.EquivalenciesTouching(ctx, []string{isbn.ID})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 1.0, edges[0].Strength)
}

func TestImportBatch_MeasurementOnlyRecord(t *testing.T) {
	imp, st := newTestImporter(t)
	ctx := context.Background()

	record := &Record{
		IdentifierType:  domain.IdentifierISBN,
		IdentifierValue: "9781853260087",
		Measurements: []MeasurementInput{
			{Quantity: domain.QuantityRating, Value: 4.5, Weight: 1},
		},
	}

	result, err := imp.ImportBatch(ctx, domain.SourceAmazon, []*Record{record}, Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Failures)
	assert.Empty(t, result.Editions)
	assert.Empty(t, result.Pools)

	identifier, err := st.GetIdentifierByTypeValue(ctx, domain.IdentifierISBN, "9781853260087")
	require.NoError(t, err)
	measurements, err := st.MeasurementsForIdentifiers(ctx, []string{identifier.ID})
	require.NoError(t, err)
	require.Len(t, measurements, 1)
	assert.Equal(t, 4.5, measurements[0].Value)
}

func TestCombine(t *testing.T) {
	base := &Record{
		IdentifierType:  domain.IdentifierURI,
		IdentifierValue: "urn:x",
		Title:           "Original Title",
		Language:        "eng",
		Contributors:    []domain.Contributor{{Name: "A", Role: domain.RoleAuthor}},
		Measurements:    []MeasurementInput{{Quantity: domain.QuantityRating, Value: 4}},
	}
	overlay := &Record{
		IdentifierType:  domain.IdentifierURI,
		IdentifierValue: "urn:x",
		Title:           "Corrected Title",
		Contributors:    []domain.Contributor{{Name: "B", Role: domain.RoleEditor}},
	}

	merged := Combine(base, overlay)

	assert.Equal(t, "Corrected Title", merged.Title, "set overlay scalars overwrite")
	assert.Equal(t, "eng", merged.Language, "unset overlay scalars keep the base value")
	assert.Len(t, merged.Contributors, 2, "lists extend")
	assert.Len(t, merged.Measurements, 1)

	assert.Nil(t, Combine(nil, nil))
	assert.Equal(t, base.Title, Combine(base, nil).Title)
	assert.Equal(t, overlay.Title, Combine(nil, overlay).Title)
}

func TestAttachCoverImage(t *testing.T) {
	imp, st := newTestImporter(t)
	ctx := context.Background()

	result, err := imp.ImportBatch(ctx, domain.SourceGutenberg, []*Record{
		fullRecord("https://gutenberg.org/ebooks/2701"),
	}, Options{})
	require.NoError(t, err)
	require.Empty(t, result.Failures)

	images, err := st.ResourcesForIdentifiers(ctx, []string{result.Pools[0].IdentifierID}, domain.RelImage)
	require.NoError(t, err)
	require.Len(t, images, 1)

	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 600, 900))
	require.NoError(t, png.Encode(&buf, img))

	updated, err := imp.AttachCoverImage(ctx, images[0].ID, &buf)
	require.NoError(t, err)
	assert.Equal(t, 600, updated.Width)
	assert.Equal(t, 900, updated.Height)
	assert.NotEmpty(t, updated.BlurHash)
	assert.Greater(t, updated.Quality, 0.0)
}

func TestAttachCoverImage_RejectsNonImage(t *testing.T) {
	imp, st := newTestImporter(t)
	ctx := context.Background()

	result, err := imp.ImportBatch(ctx, domain.SourceGutenberg, []*Record{
		fullRecord("https://gutenberg.org/ebooks/2701"),
	}, Options{})
	require.NoError(t, err)

	downloads, err := st.ResourcesForIdentifiers(ctx, []string{result.Pools[0].IdentifierID}, domain.RelOpenAccessDownload)
	require.NoError(t, err)
	require.Len(t, downloads, 1)

	_, err = imp.AttachCoverImage(ctx, downloads[0].ID, bytes.NewReader(nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}
