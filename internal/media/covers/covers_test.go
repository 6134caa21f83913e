package covers

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/openshelf-server/internal/domain"
)

// encodeTestPNG renders a solid-color PNG of the given dimensions.
func encodeTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 40, B: 200, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestAnalyze(t *testing.T) {
	data := encodeTestPNG(t, 600, 900)

	analysis, err := Analyze(bytes.NewReader(data), domain.SourceStandardEbooks)
	require.NoError(t, err)

	assert.Equal(t, 600, analysis.Width)
	assert.Equal(t, 900, analysis.Height)
	assert.NotEmpty(t, analysis.BlurHash)
	// Ideal aspect ratio at full resolution from an undiscounted source.
	assert.InDelta(t, 1.0, analysis.EstimatedQuality, 0.001)
}

func TestAnalyze_RejectsGarbage(t *testing.T) {
	_, err := Analyze(bytes.NewReader([]byte("not an image")), domain.SourceGutenberg)
	assert.Error(t, err)
}

func TestEstimateQuality_AspectPenalty(t *testing.T) {
	ideal := estimateQuality(600, 900, domain.SourceStandardEbooks)
	square := estimateQuality(600, 600, domain.SourceStandardEbooks)
	landscape := estimateQuality(900, 600, domain.SourceStandardEbooks)

	assert.Greater(t, ideal, square)
	assert.Greater(t, square, landscape)
}

func TestEstimateQuality_ResolutionPenalty(t *testing.T) {
	full := estimateQuality(600, 900, domain.SourceStandardEbooks)
	half := estimateQuality(300, 450, domain.SourceStandardEbooks)

	assert.InDelta(t, full/2, half, 0.001)
}

func TestEstimateQuality_SourceMultiplier(t *testing.T) {
	trusted := estimateQuality(600, 900, domain.SourceStandardEbooks)
	gutenberg := estimateQuality(600, 900, domain.SourceGutenberg)

	assert.InDelta(t, trusted*0.5, gutenberg, 0.001)
}

func TestAnalysis_Apply(t *testing.T) {
	analysis := &Analysis{
		Width:            600,
		Height:           900,
		BlurHash:         "LEHV6nWB2yk8pyo0adR*.7kCMdnj",
		EstimatedQuality: 0.8,
	}

	r := &domain.Resource{Rel: domain.RelImage}
	analysis.Apply(r)

	assert.Equal(t, 600, r.Width)
	assert.Equal(t, 900, r.Height)
	assert.Equal(t, analysis.BlurHash, r.BlurHash)
	assert.Equal(t, 0.8, r.EstimatedQuality)
	// No votes yet, so the running mean equals the estimate.
	assert.InDelta(t, 0.8, r.Quality, 0.001)
}

func TestThumbnailFor_PreservesAspect(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 960))
	small := thumbnailFor(img)

	bounds := small.Bounds()
	assert.Equal(t, 64, bounds.Dy())
	assert.Equal(t, 42, bounds.Dx())
}
