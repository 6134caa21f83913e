package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/openshelf-server/internal/classify"
	"github.com/openshelf/openshelf-server/internal/config"
	"github.com/openshelf/openshelf-server/internal/domain"
	"github.com/openshelf/openshelf-server/internal/errors"
	"github.com/openshelf/openshelf-server/internal/graph"
	"github.com/openshelf/openshelf-server/internal/id"
	"github.com/openshelf/openshelf-server/internal/store/sqlite"
)

type fakeClassifier struct {
	result *classify.Result
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(_ context.Context, _ []*domain.Classification) (*classify.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeEvaluator scores summaries by length, longest best.
type fakeEvaluator struct {
	err error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, texts []string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	scores := make([]float64, len(texts))
	for i, text := range texts {
		scores[i] = float64(len(text))
	}
	return scores, nil
}

func newTestPresentation(t *testing.T, classifier classify.Classifier) (*PresentationService, *ClusterService, *sqlite.Store) {
	t.Helper()

	cluster, st := newTestCluster(t)
	g := graph.New(st, nil, cluster.logger)
	graphCfg := config.GraphConfig{Levels: 5, Threshold: 0.5}

	svc := NewPresentationService(st, g, classifier, &fakeEvaluator{}, cluster, graphCfg, cluster.logger)
	return svc, cluster, st
}

func addDescription(t *testing.T, st *sqlite.Store, identifierID string, source domain.DataSource, content string) *domain.Resource {
	t.Helper()
	r := &domain.Resource{
		Record:       domain.Record{ID: id.MustGenerate("rsc")},
		IdentifierID: identifierID,
		Source:       source,
		Rel:          domain.RelDescription,
		Content:      content,
	}
	r.InitTimestamps()
	require.NoError(t, st.CreateResource(context.Background(), r))
	return r
}

func addCover(t *testing.T, st *sqlite.Store, identifierID string, quality float64, blurHash string) *domain.Resource {
	t.Helper()
	r := &domain.Resource{
		Record:       domain.Record{ID: id.MustGenerate("rsc")},
		IdentifierID: identifierID,
		Source:       domain.SourceStandardEbooks,
		Rel:          domain.RelImage,
		URL:          "https://covers.example.org/" + id.MustGenerate("img"),
		Width:        600,
		Height:       900,
		BlurHash:     blurHash,
		Quality:      quality,
	}
	r.InitTimestamps()
	require.NoError(t, st.CreateResource(context.Background(), r))
	return r
}

func TestRecompute_DerivesPresentation(t *testing.T) {
	fiction := true
	classifier := &fakeClassifier{result: &classify.Result{
		Genres:       map[string]float64{"adventure": 0.7, "classics": 0.3},
		Fiction:      &fiction,
		Audience:     domain.AudienceAdult,
		TargetAgeMin: 18,
	}}
	svc, cluster, st := newTestPresentation(t, classifier)
	ctx := context.Background()

	pool := addBook(t, st, domain.SourceStandardEbooks, "https://standardebooks.org/moby-dick", "Moby Dick", "Herman Melville", true)

	require.NoError(t, st.AddClassification(ctx, &domain.Classification{
		IdentifierID:      pool.IdentifierID,
		Source:            domain.SourceStandardEbooks,
		SubjectType:       "LCSH",
		SubjectIdentifier: "Whaling -- Fiction",
		Weight:            10,
	}))
	addDescription(t, st, pool.IdentifierID, domain.SourceMetadataWrangler,
		"<p>The <b>classic</b> tale of obsession at sea.</p>")
	cover := addCover(t, st, pool.IdentifierID, 0.8, "LEHV6nWB2yk8pyo0adR*.7kCMdnj")

	result, err := cluster.ResolveWorkForPool(ctx, pool.ID, ResolveOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Work)

	work := result.Work
	assert.Equal(t, "Moby Dick", work.Title)
	assert.Equal(t, "Herman Melville", work.Author)
	assert.True(t, work.PresentationReady)

	require.NotNil(t, work.Fiction)
	assert.True(t, *work.Fiction)
	assert.Equal(t, domain.AudienceAdult, work.Audience)

	genres, err := st.GetWorkGenres(ctx, work.ID)
	require.NoError(t, err)
	require.Len(t, genres, 2)
	assert.Equal(t, "adventure", genres[0].Genre)

	assert.NotEmpty(t, work.SummaryResourceID)
	assert.Contains(t, work.SummaryText, "classic")
	assert.NotContains(t, work.SummaryText, "<p>", "summary must be rendered to plain text")

	assert.Equal(t, cover.ID, work.CoverResourceID)
	assert.Equal(t, cover.BlurHash, work.CoverBlurHash)

	// No measurements: quality falls back to the source baseline.
	assert.InDelta(t, 0.4, work.Quality, 0.001)

	_ = svc
}

func TestRecompute_Idempotent(t *testing.T) {
	fiction := false
	classifier := &fakeClassifier{result: &classify.Result{
		Genres:  map[string]float64{"philosophy": 1},
		Fiction: &fiction,
	}}
	svc, cluster, st := newTestPresentation(t, classifier)
	ctx := context.Background()

	pool := addBook(t, st, domain.SourceGutenberg, "https://gutenberg.org/ebooks/1656", "Apology", "Plato", true)
	require.NoError(t, st.AddClassification(ctx, &domain.Classification{
		IdentifierID:      pool.IdentifierID,
		Source:            domain.SourceGutenberg,
		SubjectType:       "LCSH",
		SubjectIdentifier: "Philosophy, Ancient",
		Weight:            5,
	}))

	result, err := cluster.ResolveWorkForPool(ctx, pool.ID, ResolveOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Work)

	before, err := st.GetWork(ctx, result.Work.ID)
	require.NoError(t, err)

	// Second run with no new facts: nothing changes, timestamp untouched.
	changed, err := svc.Recompute(ctx, result.Work.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	after, err := st.GetWork(ctx, result.Work.ID)
	require.NoError(t, err)
	assert.True(t, after.UpdatedAt.Equal(before.UpdatedAt), "unchanged recompute must not touch the timestamp")
}

func TestRecompute_TiedCoversStayStable(t *testing.T) {
	classifier := &fakeClassifier{result: &classify.Result{}}
	svc, cluster, st := newTestPresentation(t, classifier)
	ctx := context.Background()

	pool := addBook(t, st, domain.SourceStandardEbooks, "https://standardebooks.org/moby-dick", "Moby Dick", "Herman Melville", true)
	addCover(t, st, pool.IdentifierID, 0.8, "LEHV6nWB2yk8pyo0adR*.7kCMdnj")
	addCover(t, st, pool.IdentifierID, 0.8, "L6PZfSi_.AyE_3t7t7R**0o#DgR4")

	result, err := cluster.ResolveWorkForPool(ctx, pool.ID, ResolveOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Work)
	chosen := result.Work.CoverResourceID
	require.NotEmpty(t, chosen)

	// With no new facts the incumbent keeps the tie, so repeated runs
	// never flip the cover and always report changed=false.
	for range 10 {
		changed, err := svc.Recompute(ctx, result.Work.ID)
		require.NoError(t, err)
		assert.False(t, changed)

		after, err := st.GetWork(ctx, result.Work.ID)
		require.NoError(t, err)
		assert.Equal(t, chosen, after.CoverResourceID)
	}
}

func TestRecompute_ClassifierFailureSkipsStep(t *testing.T) {
	classifier := &fakeClassifier{err: errors.ExternalService("classifier down")}
	svc, cluster, st := newTestPresentation(t, classifier)
	ctx := context.Background()

	pool := addBook(t, st, domain.SourceGutenberg, "https://gutenberg.org/ebooks/2701", "Moby Dick", "Herman Melville", true)
	require.NoError(t, st.AddClassification(ctx, &domain.Classification{
		IdentifierID:      pool.IdentifierID,
		Source:            domain.SourceGutenberg,
		SubjectType:       "LCSH",
		SubjectIdentifier: "Whaling -- Fiction",
		Weight:            10,
	}))

	result, err := cluster.ResolveWorkForPool(ctx, pool.ID, ResolveOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Work, "a dead classifier must not block clustering")

	// Every other step still ran.
	assert.Equal(t, "Moby Dick", result.Work.Title)
	assert.True(t, result.Work.PresentationReady)
	assert.Nil(t, result.Work.Fiction)
	assert.Greater(t, classifier.calls, 0)

	genres, err := st.GetWorkGenres(ctx, result.Work.ID)
	require.NoError(t, err)
	assert.Empty(t, genres)

	_ = svc
}

func TestRecompute_SummaryPrefersPrivilegedSource(t *testing.T) {
	classifier := &fakeClassifier{result: &classify.Result{}}
	svc, cluster, st := newTestPresentation(t, classifier)
	ctx := context.Background()

	pool := addBook(t, st, domain.SourceStandardEbooks, "https://standardebooks.org/moby-dick", "Moby Dick", "Herman Melville", true)

	// The longer harvested blurb would win on score alone; the staff note
	// wins because its source is privileged.
	addDescription(t, st, pool.IdentifierID, domain.SourceGutenberg,
		"A very long harvested description of the book that goes on and on about the sea.")
	staff := addDescription(t, st, pool.IdentifierID, domain.SourceLibraryStaff, "Staff pick.")

	result, err := cluster.ResolveWorkForPool(ctx, pool.ID, ResolveOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Work)

	assert.Equal(t, staff.ID, result.Work.SummaryResourceID)
	assert.Equal(t, "Staff pick.", result.Work.SummaryText)

	_ = svc
}

func TestRecompute_QualityFromMeasurements(t *testing.T) {
	classifier := &fakeClassifier{result: &classify.Result{}}
	svc, cluster, st := newTestPresentation(t, classifier)
	ctx := context.Background()

	pool := addBook(t, st, domain.SourceOverdrive, "urn:overdrive:moby-dick", "Moby Dick", "Herman Melville", false)

	m := &domain.Measurement{
		Record:       domain.Record{ID: id.MustGenerate("msr")},
		IdentifierID: pool.IdentifierID,
		Source:       domain.SourceOverdrive,
		Quantity:     domain.QuantityRating,
		Value:        5,
		Weight:       1,
		TakenAt:      time.Now(),
	}
	m.InitTimestamps()
	require.NoError(t, st.AddMeasurement(ctx, m))

	result, err := cluster.ResolveWorkForPool(ctx, pool.ID, ResolveOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Work)

	// A perfect rating alone determines the composite.
	assert.InDelta(t, 1.0, result.Work.Quality, 0.001)

	_ = svc
}
