package champion

import (
	"math/rand/v2"

	"github.com/openshelf/openshelf-server/internal/domain"
)

// MinimumCoverQuality is the floor below which a cover is worse than no
// cover at all.
const MinimumCoverQuality = 0.2

// BestCover picks the highest-quality cover image from candidates,
// rejecting anything below minQuality. An incumbent that still sits in the
// tied set keeps its place, so repeated runs over unchanged data never flip
// the choice; only a fresh choice among exact quality ties is broken
// randomly, so no single source monopolizes equally-good covers.
func BestCover(candidates []*domain.Resource, minQuality float64, incumbentID string, rng *rand.Rand) *domain.Resource {
	var usable []*domain.Resource
	for _, c := range candidates {
		if !c.IsImage() {
			continue
		}
		if c.Quality < minQuality {
			continue
		}
		usable = append(usable, c)
	}

	tied := Best(usable, func(r *domain.Resource) float64 {
		return r.Quality
	})
	if len(tied) == 0 {
		return nil
	}
	if len(tied) == 1 {
		return tied[0]
	}
	for _, r := range tied {
		if incumbentID != "" && r.ID == incumbentID {
			return r
		}
	}
	return tied[rng.IntN(len(tied))]
}
