package domain

// Audience is the intended readership of a work.
type Audience string

// Known audiences.
const (
	AudienceAdult         Audience = "adult"
	AudienceYoungAdult    Audience = "young-adult"
	AudienceChildren      Audience = "children"
	AudienceAdultsOnly    Audience = "adults-only"
	AudienceResearch      Audience = "research"
	AudienceUnknownTarget Audience = ""
)

// Work is a cluster of LicensePools considered to be "the same book" for
// display purposes. It carries the chosen presentation edition plus derived
// attributes recomputed by the presentation pipeline.
type Work struct {
	Record

	PresentationEditionID string `json:"presentation_edition_id,omitempty"`

	// Denormalized from the presentation edition for display and indexing.
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	Language string `json:"language,omitempty"`
	Medium   Medium `json:"medium,omitempty"`

	// Derived attributes.
	Fiction      *bool    `json:"fiction,omitempty"`
	Audience     Audience `json:"audience,omitempty"`
	TargetAgeMin int      `json:"target_age_min,omitempty"`
	TargetAgeMax int      `json:"target_age_max,omitempty"`
	Quality      float64  `json:"quality"`

	SummaryResourceID string `json:"summary_resource_id,omitempty"`
	SummaryText       string `json:"summary_text,omitempty"`
	CoverResourceID   string `json:"cover_resource_id,omitempty"`
	CoverBlurHash     string `json:"cover_blur_hash,omitempty"`

	// PresentationReady means the work has enough metadata (title and
	// language on its presentation edition) to be shown to patrons.
	PresentationReady bool `json:"presentation_ready"`
}

// WorkGenre is one row of a work's weighted genre distribution, reconciled
// against the classifier's output on every recompute.
type WorkGenre struct {
	WorkID string  `json:"work_id"`
	Genre  string  `json:"genre"`
	Weight float64 `json:"weight"`
}

// SetPresentationReadyBasedOnContent flips the presentation-ready flag
// according to whether the minimum display metadata is present.
func (w *Work) SetPresentationReadyBasedOnContent() {
	w.PresentationReady = w.Title != "" && w.Language != ""
}
