// Package covers analyzes mirrored cover images: decoding, quality
// estimation, and BlurHash placeholders for clients that render before the
// image loads.
package covers

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"
	"math"

	"github.com/bbrks/go-blurhash"
	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/openshelf/openshelf-server/internal/domain"
	"github.com/openshelf/openshelf-server/internal/quality"
)

const (
	// idealAspectRatio is width/height of a typical trade paperback cover.
	idealAspectRatio = 2.0 / 3.0

	// fullQualityWidth is the pixel width at which resolution stops
	// penalizing the score.
	fullQualityWidth = 600

	// blurHashSize is the thumbnail size BlurHash is computed from. A small
	// thumbnail produces nearly identical hashes in a fraction of the time.
	blurHashSize = 64
)

// sourceCoverMultiplier discounts covers from sources known to ship
// low-grade scans. Unlisted sources count at full weight.
var sourceCoverMultiplier = map[domain.DataSource]float64{
	domain.SourceGutenberg: 0.5,
	domain.SourceUnglueIt:  0.7,
}

// Analysis is what decoding one cover yields.
type Analysis struct {
	Width    int
	Height   int
	BlurHash string

	// EstimatedQuality is in [0, 1]: aspect-ratio fit times resolution,
	// scaled by the source's multiplier.
	EstimatedQuality float64
}

// Analyze decodes an image and scores it as a cover for the given source.
func Analyze(r io.Reader, source domain.DataSource) (*Analysis, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("image has zero dimension (%dx%d)", width, height)
	}

	hash, err := blurhash.Encode(4, 3, thumbnailFor(img))
	if err != nil {
		return nil, fmt.Errorf("encode blurhash: %w", err)
	}

	return &Analysis{
		Width:            width,
		Height:           height,
		BlurHash:         hash,
		EstimatedQuality: estimateQuality(width, height, source),
	}, nil
}

// Apply writes the analysis onto an image resource and refreshes its
// running quality mean.
func (a *Analysis) Apply(r *domain.Resource) {
	r.Width = a.Width
	r.Height = a.Height
	r.BlurHash = a.BlurHash
	r.EstimatedQuality = a.EstimatedQuality
	quality.UpdateResourceQuality(r)
}

// estimateQuality scores cover suitability: full marks for a 2:3 cover at
// 600px wide or better, degrading smoothly with squashed proportions or
// thumbnail-grade resolution.
func estimateQuality(width, height int, source domain.DataSource) float64 {
	aspect := float64(width) / float64(height)

	// Relative deviation from the ideal ratio, symmetric in both
	// directions: a 3:2 landscape scan scores the same as a 4:9 sliver.
	deviation := math.Abs(math.Log(aspect / idealAspectRatio))
	aspectScore := math.Max(0, 1-deviation)

	resolutionScore := math.Min(1, float64(width)/fullQualityWidth)

	multiplier := 1.0
	if m, ok := sourceCoverMultiplier[source]; ok {
		multiplier = m
	}

	return aspectScore * resolutionScore * multiplier
}

// thumbnailFor shrinks the image for BlurHash computation, preserving
// aspect ratio. Nearest-neighbor is plenty for a placeholder hash.
func thumbnailFor(img image.Image) image.Image {
	bounds := img.Bounds()
	srcWidth := bounds.Dx()
	srcHeight := bounds.Dy()

	if srcWidth <= blurHashSize && srcHeight <= blurHashSize {
		return img
	}

	var dstWidth, dstHeight int
	if srcWidth > srcHeight {
		dstWidth = blurHashSize
		dstHeight = max(1, (srcHeight*blurHashSize)/srcWidth)
	} else {
		dstHeight = blurHashSize
		dstWidth = max(1, (srcWidth*blurHashSize)/srcHeight)
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstWidth, dstHeight))
	xRatio := float64(srcWidth) / float64(dstWidth)
	yRatio := float64(srcHeight) / float64(dstHeight)

	for y := 0; y < dstHeight; y++ {
		for x := 0; x < dstWidth; x++ {
			srcX := int(float64(x) * xRatio)
			srcY := int(float64(y) * yRatio)
			dst.Set(x, y, img.At(bounds.Min.X+srcX, bounds.Min.Y+srcY))
		}
	}
	return dst
}
