// Package importer applies parsed catalog record batches to the store:
// find-or-create of identifiers, editions, pools and resources, followed by
// clustering and presentation recompute for every touched pool.
package importer

import (
	"time"

	"github.com/openshelf/openshelf-server/internal/domain"
)

// Record is one parsed catalog entry keyed by its primary identifier.
// Everything but the identifier is optional; a record carrying only
// measurements is as valid as a full edition.
type Record struct {
	IdentifierType  domain.IdentifierType `json:"identifier_type" validate:"required"`
	IdentifierValue string                `json:"identifier_value" validate:"required"`

	// Edition metadata.
	Title         string               `json:"title,omitempty"`
	Subtitle      string               `json:"subtitle,omitempty"`
	Language      string               `json:"language,omitempty"`
	Medium        domain.Medium        `json:"medium,omitempty"`
	Publisher     string               `json:"publisher,omitempty"`
	PublishedYear string               `json:"published_year,omitempty"`
	Contributors  []domain.Contributor `json:"contributors,omitempty"`

	Circulation     *CirculationInput     `json:"circulation,omitempty"`
	Equivalencies   []EquivalencyInput    `json:"equivalencies,omitempty" validate:"dive"`
	Measurements    []MeasurementInput    `json:"measurements,omitempty" validate:"dive"`
	Classifications []ClassificationInput `json:"classifications,omitempty" validate:"dive"`
	Links           []LinkInput           `json:"links,omitempty" validate:"dive"`
}

// CirculationInput carries licensing facts; its presence makes the importer
// find or create a LicensePool for the identifier.
type CirculationInput struct {
	RightsStatus      domain.RightsStatus `json:"rights_status" validate:"required"`
	LicensesOwned     int                 `json:"licenses_owned"`
	LicensesAvailable int                 `json:"licenses_available"`
}

// EquivalencyInput asserts the record's identifier names the same book as
// another identifier.
type EquivalencyInput struct {
	Type     domain.IdentifierType `json:"type" validate:"required"`
	Value    string                `json:"value" validate:"required"`
	Strength float64               `json:"strength" validate:"gte=-1,lte=1"`
}

// MeasurementInput is one numeric claim about the identifier's book.
type MeasurementInput struct {
	Quantity domain.Quantity `json:"quantity" validate:"required"`
	Value    float64         `json:"value"`
	Weight   float64         `json:"weight"`
	TakenAt  time.Time       `json:"taken_at"`
}

// ClassificationInput is one subject assertion about the identifier's book.
type ClassificationInput struct {
	SubjectType       string `json:"subject_type" validate:"required"`
	SubjectIdentifier string `json:"subject_identifier" validate:"required"`
	SubjectName       string `json:"subject_name,omitempty"`
	Weight            int    `json:"weight"`
}

// LinkInput is a resource attached to the identifier: a download link, a
// cover image (optionally paired with its thumbnail), or an inline
// description.
type LinkInput struct {
	Rel          domain.Rel          `json:"rel" validate:"required"`
	URL          string              `json:"url,omitempty" validate:"omitempty,url"`
	MediaType    string              `json:"media_type,omitempty"`
	Content      string              `json:"content,omitempty"`
	RightsStatus domain.RightsStatus `json:"rights_status,omitempty"`

	// ThumbnailURL pairs an image link with the thumbnail that arrived
	// adjacent to it in the same entry.
	ThumbnailURL string `json:"thumbnail_url,omitempty" validate:"omitempty,url"`
}

// Combine merges two records describing the same identifier, the way split
// feed entries are reassembled: list fields extend, and scalar fields of the
// overlay overwrite the base only when set.
func Combine(base, overlay *Record) *Record {
	if base == nil && overlay == nil {
		return nil
	}
	if base == nil {
		c := *overlay
		return &c
	}
	if overlay == nil {
		c := *base
		return &c
	}

	merged := *base

	if overlay.Title != "" {
		merged.Title = overlay.Title
	}
	if overlay.Subtitle != "" {
		merged.Subtitle = overlay.Subtitle
	}
	if overlay.Language != "" {
		merged.Language = overlay.Language
	}
	if overlay.Medium != "" {
		merged.Medium = overlay.Medium
	}
	if overlay.Publisher != "" {
		merged.Publisher = overlay.Publisher
	}
	if overlay.PublishedYear != "" {
		merged.PublishedYear = overlay.PublishedYear
	}
	if overlay.Circulation != nil {
		merged.Circulation = overlay.Circulation
	}

	merged.Contributors = append(append([]domain.Contributor{}, base.Contributors...), overlay.Contributors...)
	merged.Equivalencies = append(append([]EquivalencyInput{}, base.Equivalencies...), overlay.Equivalencies...)
	merged.Measurements = append(append([]MeasurementInput{}, base.Measurements...), overlay.Measurements...)
	merged.Classifications = append(append([]ClassificationInput{}, base.Classifications...), overlay.Classifications...)
	merged.Links = append(append([]LinkInput{}, base.Links...), overlay.Links...)

	return &merged
}
