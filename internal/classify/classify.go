// Package classify defines the boundaries to the external classification
// and text-evaluation services, and their HTTP implementations.
package classify

import (
	"context"

	"github.com/openshelf/openshelf-server/internal/domain"
)

// Result is the classifier's verdict over a cluster's subject facts.
type Result struct {
	// Genres is a weighted genre distribution; weights sum to roughly 1.
	Genres map[string]float64 `json:"genres"`

	// Fiction is nil when the classifier could not decide.
	Fiction *bool `json:"fiction"`

	Audience     domain.Audience `json:"audience"`
	TargetAgeMin int             `json:"target_age_min"`
	TargetAgeMax int             `json:"target_age_max"`
}

// Classifier turns raw subject assertions into a genre distribution and
// audience metadata for one work.
type Classifier interface {
	Classify(ctx context.Context, facts []*domain.Classification) (*Result, error)
}
