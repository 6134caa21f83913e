package quality

import (
	"math"
	"testing"

	"github.com/openshelf/openshelf-server/internal/domain"
)

// testConfig uses a linear percentile table (value n sits at percentile n)
// so expected scores are easy to read.
func testConfig() Config {
	table := make([]float64, 100)
	for i := range table {
		table[i] = float64(i)
	}
	return Config{
		Percentiles: map[domain.DataSource]map[domain.Quantity]PercentileTable{
			domain.SourceGutenberg: {
				domain.QuantityDownloads: {Values: table},
			},
			domain.SourceAmazon: {
				domain.QuantityPopularity: {Values: table, Inverted: true},
			},
		},
		RatingScales: map[domain.DataSource]RatingScale{
			domain.SourceAmazon: {Min: 1, Max: 5},
		},
		PreNormalized: map[domain.DataSource]bool{
			domain.SourceMetadataWrangler: true,
		},
	}
}

func measurement(source domain.DataSource, q domain.Quantity, v float64) *domain.Measurement {
	return &domain.Measurement{
		Source:     source,
		Quantity:   q,
		Value:      v,
		Weight:     1,
		MostRecent: true,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNormalize_Percentile(t *testing.T) {
	a := NewAggregator(testConfig())

	got, ok := a.Normalize(measurement(domain.SourceGutenberg, domain.QuantityDownloads, 40))
	if !ok {
		t.Fatal("expected usable measurement")
	}
	if !almostEqual(got, 0.40) {
		t.Errorf("Normalize(downloads=40) = %v, want 0.40", got)
	}

	// Values past the top of the table saturate at 1.
	got, ok = a.Normalize(measurement(domain.SourceGutenberg, domain.QuantityDownloads, 1e9))
	if !ok || !almostEqual(got, 1.0) {
		t.Errorf("Normalize(huge) = %v, %v, want 1.0, true", got, ok)
	}
}

func TestNormalize_InvertedPercentile(t *testing.T) {
	a := NewAggregator(testConfig())

	// Sales rank 10 is better than rank 90.
	low, _ := a.Normalize(measurement(domain.SourceAmazon, domain.QuantityPopularity, 10))
	high, _ := a.Normalize(measurement(domain.SourceAmazon, domain.QuantityPopularity, 90))
	if low <= high {
		t.Errorf("inverted table: rank 10 (%v) should outscore rank 90 (%v)", low, high)
	}
	if !almostEqual(low, 0.90) {
		t.Errorf("Normalize(rank=10) = %v, want 0.90", low)
	}
}

func TestNormalize_RatingScale(t *testing.T) {
	a := NewAggregator(testConfig())

	got, ok := a.Normalize(measurement(domain.SourceAmazon, domain.QuantityRating, 3))
	if !ok || !almostEqual(got, 0.5) {
		t.Errorf("Normalize(rating=3 on 1-5) = %v, %v, want 0.5, true", got, ok)
	}

	// Clamped at the ends.
	got, _ = a.Normalize(measurement(domain.SourceAmazon, domain.QuantityRating, 9))
	if !almostEqual(got, 1.0) {
		t.Errorf("Normalize(rating=9) = %v, want 1.0", got)
	}
}

func TestNormalize_PreNormalizedSource(t *testing.T) {
	a := NewAggregator(testConfig())

	got, ok := a.Normalize(measurement(domain.SourceMetadataWrangler, domain.QuantityQuality, 0.8))
	if !ok || !almostEqual(got, 0.8) {
		t.Errorf("Normalize(pre-normalized 0.8) = %v, %v, want 0.8, true", got, ok)
	}
}

func TestNormalize_UnknownSource(t *testing.T) {
	a := NewAggregator(testConfig())

	_, ok := a.Normalize(measurement(domain.SourceFeedbooks, domain.QuantityDownloads, 40))
	if ok {
		t.Error("expected measurement without a table to be unusable")
	}
	_, ok = a.Normalize(measurement(domain.SourceFeedbooks, domain.QuantityRating, 4))
	if ok {
		t.Error("expected rating without a scale to be unusable")
	}
}

func TestOverallQuality_PopularityOnly(t *testing.T) {
	a := NewAggregator(testConfig())

	// Only a popularity measurement at percentile 40: the score is 0.40
	// regardless of the composite weights.
	got := a.OverallQuality([]*domain.Measurement{
		measurement(domain.SourceGutenberg, domain.QuantityDownloads, 40),
	}, 0)
	if !almostEqual(got, 0.40) {
		t.Errorf("OverallQuality(popularity only) = %v, want 0.40", got)
	}
}

func TestOverallQuality_Composite(t *testing.T) {
	a := NewAggregator(testConfig())

	// popularity 0.40, rating 1.0: 0.3*0.4 + 0.7*1.0 = 0.82.
	got := a.OverallQuality([]*domain.Measurement{
		measurement(domain.SourceGutenberg, domain.QuantityDownloads, 40),
		measurement(domain.SourceAmazon, domain.QuantityRating, 5),
	}, 0)
	if !almostEqual(got, 0.82) {
		t.Errorf("OverallQuality(composite) = %v, want 0.82", got)
	}
}

func TestOverallQuality_QualityFoldsIn(t *testing.T) {
	a := NewAggregator(testConfig())

	// Composite 0.82, quality 0.5: final (0.82 + 0.5) / 2 = 0.66.
	got := a.OverallQuality([]*domain.Measurement{
		measurement(domain.SourceGutenberg, domain.QuantityDownloads, 40),
		measurement(domain.SourceAmazon, domain.QuantityRating, 5),
		measurement(domain.SourceMetadataWrangler, domain.QuantityQuality, 0.5),
	}, 0)
	if !almostEqual(got, 0.66) {
		t.Errorf("OverallQuality(with quality) = %v, want 0.66", got)
	}
}

func TestOverallQuality_Default(t *testing.T) {
	a := NewAggregator(testConfig())

	got := a.OverallQuality(nil, 0.25)
	if !almostEqual(got, 0.25) {
		t.Errorf("OverallQuality(no measurements) = %v, want default 0.25", got)
	}

	// Unusable measurements fall back to the default too.
	got = a.OverallQuality([]*domain.Measurement{
		measurement(domain.SourceFeedbooks, domain.QuantityDownloads, 40),
	}, 0.25)
	if !almostEqual(got, 0.25) {
		t.Errorf("OverallQuality(unusable only) = %v, want default 0.25", got)
	}
}

func TestOverallQuality_IgnoresStaleMeasurements(t *testing.T) {
	a := NewAggregator(testConfig())

	stale := measurement(domain.SourceGutenberg, domain.QuantityDownloads, 90)
	stale.MostRecent = false

	got := a.OverallQuality([]*domain.Measurement{
		stale,
		measurement(domain.SourceGutenberg, domain.QuantityDownloads, 40),
	}, 0)
	if !almostEqual(got, 0.40) {
		t.Errorf("OverallQuality with stale row = %v, want 0.40", got)
	}
}

func TestOverallQuality_WeightedWithinBucket(t *testing.T) {
	a := NewAggregator(testConfig())

	heavy := measurement(domain.SourceGutenberg, domain.QuantityDownloads, 80)
	heavy.Weight = 3
	light := measurement(domain.SourceGutenberg, domain.QuantityDownloads, 40)

	// (0.80*3 + 0.40*1) / 4 = 0.70.
	got := a.OverallQuality([]*domain.Measurement{heavy, light}, 0)
	if !almostEqual(got, 0.70) {
		t.Errorf("OverallQuality(weighted) = %v, want 0.70", got)
	}
}

func TestUpdateResourceQuality(t *testing.T) {
	r := &domain.Resource{EstimatedQuality: 0.6}

	UpdateResourceQuality(r)
	if !almostEqual(r.Quality, 0.6) {
		t.Errorf("quality with no votes = %v, want 0.6", r.Quality)
	}

	// Five unanimous downvotes pull the mean halfway to zero.
	for range 5 {
		AddVote(r, 0)
	}
	if !almostEqual(r.Quality, 0.3) {
		t.Errorf("quality after 5 zero votes = %v, want 0.3", r.Quality)
	}

	// Online property: incremental votes match a from-scratch computation.
	AddVote(r, 1)
	want := (0.6*5 + 0 + 1) / 11
	if !almostEqual(r.Quality, want) {
		t.Errorf("quality after mixed votes = %v, want %v", r.Quality, want)
	}
}
