// Package search maintains a Bleve full-text index over presentation-ready
// works, kept in sync by the store whenever a work row changes.
package search

import (
	"github.com/openshelf/openshelf-server/internal/domain"
)

// WorkDocument is the indexed shape of one work. Genre slugs and the author
// string are denormalized in so a search never touches the database.
type WorkDocument struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Author   string `json:"author,omitempty"`
	Summary  string `json:"summary,omitempty"`
	Language string `json:"language,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Audience string `json:"audience,omitempty"`

	// Fiction is "fiction", "nonfiction", or empty when undecided, so it
	// can be faceted as a keyword alongside the genres.
	Fiction string   `json:"fiction,omitempty"`
	Genres  []string `json:"genres,omitempty"`

	Quality      float64 `json:"quality"`
	TargetAgeMin int     `json:"target_age_min,omitempty"`
	TargetAgeMax int     `json:"target_age_max,omitempty"`

	UpdatedAt int64 `json:"updated_at"` // Unix millis, for recency sorting
}

// ToMap converts the document to a map with lowercase field names matching
// the index mapping; Bleve would otherwise index Go field names.
func (d *WorkDocument) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"id":         d.ID,
		"title":      d.Title,
		"quality":    d.Quality,
		"updated_at": d.UpdatedAt,
	}
	if d.Author != "" {
		m["author"] = d.Author
	}
	if d.Summary != "" {
		m["summary"] = d.Summary
	}
	if d.Language != "" {
		m["language"] = d.Language
	}
	if d.Medium != "" {
		m["medium"] = d.Medium
	}
	if d.Audience != "" {
		m["audience"] = d.Audience
	}
	if d.Fiction != "" {
		m["fiction"] = d.Fiction
	}
	if len(d.Genres) > 0 {
		m["genres"] = d.Genres
	}
	if d.TargetAgeMin > 0 {
		m["target_age_min"] = d.TargetAgeMin
	}
	if d.TargetAgeMax > 0 {
		m["target_age_max"] = d.TargetAgeMax
	}
	return m
}

// WorkToDocument converts a work and its genre rows to the indexed shape.
func WorkToDocument(work *domain.Work, genres []domain.WorkGenre) *WorkDocument {
	doc := &WorkDocument{
		ID:           work.ID,
		Title:        work.Title,
		Author:       work.Author,
		Summary:      work.SummaryText,
		Language:     work.Language,
		Medium:       string(work.Medium),
		Audience:     string(work.Audience),
		Quality:      work.Quality,
		TargetAgeMin: work.TargetAgeMin,
		TargetAgeMax: work.TargetAgeMax,
		UpdatedAt:    work.UpdatedAt.UnixMilli(),
	}
	if work.Fiction != nil {
		if *work.Fiction {
			doc.Fiction = "fiction"
		} else {
			doc.Fiction = "nonfiction"
		}
	}
	for _, g := range genres {
		doc.Genres = append(doc.Genres, g.Genre)
	}
	return doc
}
