package domain

import "strings"

// Contributor is one person credited on an edition.
type Contributor struct {
	Name     string `json:"name"`
	SortName string `json:"sort_name,omitempty"`
	Role     Role   `json:"role"`
}

// Edition is a metadata record attributed to one source and one primary
// identifier. Many editions may describe equivalent identifiers; one is
// chosen per LicensePool as its presentation edition.
type Edition struct {
	Record
	Source              DataSource    `json:"source"`
	PrimaryIdentifierID string        `json:"primary_identifier_id"`
	Title               string        `json:"title"`
	Subtitle            string        `json:"subtitle,omitempty"`
	Language            string        `json:"language,omitempty"`
	Medium              Medium        `json:"medium"`
	Publisher           string        `json:"publisher,omitempty"`
	PublishedYear       string        `json:"published_year,omitempty"`
	Contributors        []Contributor `json:"contributors,omitempty"`

	// PermanentWorkID caches the fingerprint derived from this edition's
	// normalized title, primary author, and medium. Recomputed whenever the
	// contributing fields change.
	PermanentWorkID string `json:"permanent_work_id,omitempty"`
}

// Author returns the display names of the primary contributors, joined the
// way they appear in catalog displays.
func (e *Edition) Author() string {
	var names []string
	for _, c := range e.Contributors {
		if c.Role.Primary() && c.Name != "" {
			names = append(names, c.Name)
		}
	}
	return strings.Join(names, ", ")
}

// HasTitle reports whether the edition carries a usable title.
func (e *Edition) HasTitle() bool {
	return strings.TrimSpace(e.Title) != ""
}

// HasAuthor reports whether any primary contributor is present.
func (e *Edition) HasAuthor() bool {
	return e.Author() != ""
}
