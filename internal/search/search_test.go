package search

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/openshelf-server/internal/domain"
)

// setupTestIndex creates a temporary work index for testing.
func setupTestIndex(t *testing.T) (*WorkIndex, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "search-test-*")
	require.NoError(t, err)

	index, err := NewWorkIndex(Options{
		DataPath: tmpDir,
		Logger:   nil,
	})
	require.NoError(t, err)

	cleanup := func() {
		_ = index.Close()
		_ = os.RemoveAll(tmpDir)
	}

	return index, cleanup
}

func readyWork(id, title, author string) *domain.Work {
	fiction := true
	w := &domain.Work{
		Record: domain.Record{
			ID:        id,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
		Title:             title,
		Author:            author,
		Language:          "eng",
		Medium:            domain.MediumBook,
		Fiction:           &fiction,
		Quality:           0.5,
		PresentationReady: true,
	}
	return w
}

func TestNewWorkIndex(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestWorkIndex_IndexWork(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	work := readyWork("work-1", "Moby Dick", "Herman Melville")
	genres := []domain.WorkGenre{{WorkID: work.ID, Genre: "adventure", Weight: 1}}

	require.NoError(t, index.IndexWork(context.Background(), work, genres))

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestWorkIndex_IndexWork_NotReadyRemoves(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	work := readyWork("work-1", "Moby Dick", "Herman Melville")
	require.NoError(t, index.IndexWork(context.Background(), work, nil))

	// Losing its title makes the work ineligible; reindexing must drop it.
	work.Title = ""
	work.SetPresentationReadyBasedOnContent()
	require.NoError(t, index.IndexWork(context.Background(), work, nil))

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestWorkIndex_DeleteWork(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	work := readyWork("work-1", "Moby Dick", "Herman Melville")
	require.NoError(t, index.IndexWork(context.Background(), work, nil))
	require.NoError(t, index.DeleteWork(context.Background(), work.ID))

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestWorkIndex_Search_ByTitle(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, index.IndexWork(ctx, readyWork("work-1", "Moby Dick", "Herman Melville"), nil))
	require.NoError(t, index.IndexWork(ctx, readyWork("work-2", "Pride and Prejudice", "Jane Austen"), nil))

	params := DefaultSearchParams()
	params.Query = "moby"

	result, err := index.Search(ctx, params)
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "work-1", result.Hits[0].ID)
	assert.Equal(t, "Moby Dick", result.Hits[0].Title)
}

func TestWorkIndex_Search_ByAuthor(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, index.IndexWork(ctx, readyWork("work-1", "Moby Dick", "Herman Melville"), nil))
	require.NoError(t, index.IndexWork(ctx, readyWork("work-2", "Typee", "Herman Melville"), nil))
	require.NoError(t, index.IndexWork(ctx, readyWork("work-3", "Emma", "Jane Austen"), nil))

	params := DefaultSearchParams()
	params.Query = "melville"

	result, err := index.Search(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), result.Total)
}

func TestWorkIndex_Search_GenreFilter(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, index.IndexWork(ctx, readyWork("work-1", "Moby Dick", "Herman Melville"),
		[]domain.WorkGenre{{WorkID: "work-1", Genre: "adventure", Weight: 1}}))
	require.NoError(t, index.IndexWork(ctx, readyWork("work-2", "Emma", "Jane Austen"),
		[]domain.WorkGenre{{WorkID: "work-2", Genre: "romance", Weight: 1}}))

	params := DefaultSearchParams()
	params.Genres = []string{"romance"}

	result, err := index.Search(ctx, params)
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "work-2", result.Hits[0].ID)
}

func TestWorkIndex_Search_MinQuality(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	ctx := context.Background()
	low := readyWork("work-1", "Moby Dick", "Herman Melville")
	low.Quality = 0.2
	high := readyWork("work-2", "Typee", "Herman Melville")
	high.Quality = 0.9
	require.NoError(t, index.IndexWork(ctx, low, nil))
	require.NoError(t, index.IndexWork(ctx, high, nil))

	params := DefaultSearchParams()
	params.MinQuality = 0.5

	result, err := index.Search(ctx, params)
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "work-2", result.Hits[0].ID)
}

func TestWorkIndex_Rebuild(t *testing.T) {
	index, cleanup := setupTestIndex(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, index.IndexWork(ctx, readyWork("work-1", "Moby Dick", "Herman Melville"), nil))
	require.NoError(t, index.Rebuild())

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}
