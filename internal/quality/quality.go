// Package quality normalizes heterogeneous measurements onto a common
// [0, 1] scale and combines them into a single score per work or resource.
package quality

import (
	"sort"

	"github.com/openshelf/openshelf-server/internal/domain"
)

// Component weights for the popularity/rating composite.
const (
	popularityWeight = 0.3
	ratingWeight     = 0.7
)

// PercentileTable maps raw measurement values to percentiles. Values holds
// one boundary per percentile, sorted ascending. Inverted tables are for
// quantities where a smaller raw value means a better book, e.g. sales
// ranks.
type PercentileTable struct {
	Values   []float64
	Inverted bool
}

// Normalize returns the percentile position of v, scaled by 0.01.
func (t PercentileTable) Normalize(v float64) float64 {
	pos := sort.SearchFloat64s(t.Values, v)
	p := float64(pos) * 0.01
	if p > 1 {
		p = 1
	}
	if t.Inverted {
		p = 1 - p
	}
	return p
}

// RatingScale is one source's min/max rating range.
type RatingScale struct {
	Min float64
	Max float64
}

// Normalize maps a raw rating onto [0, 1], clamping out-of-range values.
func (s RatingScale) Normalize(v float64) float64 {
	if s.Max <= s.Min {
		return 0
	}
	n := (v - s.Min) / (s.Max - s.Min)
	if n < 0 {
		n = 0
	}
	if n > 1 {
		n = 1
	}
	return n
}

// Config holds the empirical lookup tables. It is immutable after
// construction; every Aggregator gets its own injected copy rather than
// reading process-wide state.
type Config struct {
	// Percentiles maps (source, quantity) to a percentile table for
	// popularity-like quantities.
	Percentiles map[domain.DataSource]map[domain.Quantity]PercentileTable

	// RatingScales maps a source to its rating range.
	RatingScales map[domain.DataSource]RatingScale

	// PreNormalized lists sources whose measurements already arrive in
	// [0, 1] and pass through unchanged.
	PreNormalized map[domain.DataSource]bool
}

// DefaultConfig returns the standard lookup tables.
func DefaultConfig() Config {
	return Config{
		Percentiles: map[domain.DataSource]map[domain.Quantity]PercentileTable{
			domain.SourceGutenberg: {
				domain.QuantityDownloads: {Values: gutenbergDownloadPercentiles},
			},
			domain.SourceAmazon: {
				// Amazon reports sales rank: rank 1 is the best seller.
				domain.QuantityPopularity: {Values: amazonSalesRankPercentiles, Inverted: true},
			},
			domain.SourceOverdrive: {
				domain.QuantityPopularity: {Values: overdrivePopularityPercentiles},
			},
		},
		RatingScales: map[domain.DataSource]RatingScale{
			domain.SourceAmazon:       {Min: 1, Max: 5},
			domain.SourceOverdrive:    {Min: 1, Max: 5},
			domain.SourceNoveList:     {Min: 0, Max: 100},
			domain.SourceLibraryStaff: {Min: 1, Max: 5},
		},
		PreNormalized: map[domain.DataSource]bool{
			domain.SourceMetadataWrangler: true,
		},
	}
}

// Aggregator normalizes and combines measurements.
type Aggregator struct {
	cfg Config
}

// NewAggregator creates an Aggregator over the given lookup tables.
func NewAggregator(cfg Config) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Normalize maps one measurement onto [0, 1]. The second return value
// reports whether the measurement was usable; measurements with no
// applicable table or scale are skipped by aggregation.
func (a *Aggregator) Normalize(m *domain.Measurement) (float64, bool) {
	if a.cfg.PreNormalized[m.Source] {
		v := m.Value
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		return v, true
	}

	switch m.Quantity {
	case domain.QuantityRating:
		scale, ok := a.cfg.RatingScales[m.Source]
		if !ok {
			return 0, false
		}
		return scale.Normalize(m.Value), true
	case domain.QuantityPopularity, domain.QuantityDownloads, domain.QuantityHoldings:
		tables, ok := a.cfg.Percentiles[m.Source]
		if !ok {
			return 0, false
		}
		table, ok := tables[m.Quantity]
		if !ok {
			return 0, false
		}
		return table.Normalize(m.Value), true
	case domain.QuantityQuality:
		v := m.Value
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		return v, true
	}
	return 0, false
}

// OverallQuality combines a set of measurements into one score. Normalized
// popularity/download values and normalized ratings enter a fixed-weight
// composite; when only one side is present it alone determines the
// composite. A separately tracked quality measurement, if present, folds in
// with equal weight against the composite. Returns def when no usable
// measurement exists.
func (a *Aggregator) OverallQuality(measurements []*domain.Measurement, def float64) float64 {
	var (
		popSum, popWeight     float64
		ratingSum, ratingWt   float64
		qualitySum, qualityWt float64
	)

	for _, m := range measurements {
		if !m.MostRecent {
			continue
		}
		n, ok := a.Normalize(m)
		if !ok {
			continue
		}

		w := m.Weight
		if w <= 0 {
			w = 1
		}

		switch m.Quantity {
		case domain.QuantityPopularity, domain.QuantityDownloads, domain.QuantityHoldings:
			popSum += n * w
			popWeight += w
		case domain.QuantityRating:
			ratingSum += n * w
			ratingWt += w
		case domain.QuantityQuality:
			qualitySum += n * w
			qualityWt += w
		}
	}

	var composite float64
	haveComposite := false
	switch {
	case popWeight > 0 && ratingWt > 0:
		composite = popularityWeight*(popSum/popWeight) + ratingWeight*(ratingSum/ratingWt)
		haveComposite = true
	case popWeight > 0:
		composite = popSum / popWeight
		haveComposite = true
	case ratingWt > 0:
		composite = ratingSum / ratingWt
		haveComposite = true
	}

	switch {
	case haveComposite && qualityWt > 0:
		return (composite + qualitySum/qualityWt) / 2
	case haveComposite:
		return composite
	case qualityWt > 0:
		return qualitySum / qualityWt
	}
	return def
}

// estimatedQualityWeight is how many human votes the algorithmic estimate
// counts for in a resource's running quality mean.
const estimatedQualityWeight = 5

// UpdateResourceQuality recomputes a resource's running quality from its
// estimated score and accumulated votes. The mean is online: adding a vote
// never requires revisiting earlier votes.
func UpdateResourceQuality(r *domain.Resource) {
	total := r.EstimatedQuality*estimatedQualityWeight + r.VoteSum
	weight := float64(estimatedQualityWeight + r.VoteCount)
	r.Quality = total / weight
}

// AddVote folds one human judgment into a resource's quality bookkeeping.
func AddVote(r *domain.Resource, value float64) {
	r.VoteCount++
	r.VoteSum += value
	UpdateResourceQuality(r)
}
