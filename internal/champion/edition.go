package champion

import "github.com/openshelf/openshelf-server/internal/domain"

// Edition-source tiers for presentation-edition selection. A pool's own
// source outranks arbitrary metadata sources; curation, staff, and manual
// overrides outrank everything.
const (
	tierOther = iota
	tierOwnSource
	tierCurated
	tierStaff
	tierManual
)

func editionTier(editionSource, poolSource domain.DataSource) int {
	switch editionSource {
	case domain.SourceManual:
		return tierManual
	case domain.SourceLibraryStaff:
		return tierStaff
	case domain.SourceMetadataWrangler:
		return tierCurated
	case poolSource:
		return tierOwnSource
	}
	return tierOther
}

// EditionPriority exposes the tier an edition source earns relative to one
// pool, for callers merging member editions across a whole work.
func EditionPriority(editionSource, poolSource domain.DataSource) int {
	return editionTier(editionSource, poolSource)
}

// BestPresentationEdition ranks candidate editions for a pool by source
// tier and returns the winner. On a tie the earliest candidate stands, so
// repeated selection over an unchanged candidate set is stable.
func BestPresentationEdition(candidates []*domain.Edition, poolSource domain.DataSource) *domain.Edition {
	tied := Best(candidates, func(e *domain.Edition) float64 {
		return float64(editionTier(e.Source, poolSource))
	})
	if len(tied) == 0 {
		return nil
	}
	return tied[0]
}
