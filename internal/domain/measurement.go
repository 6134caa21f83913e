package domain

import "time"

// Quantity is the kind of numeric fact a measurement reports.
type Quantity string

// Known measured quantities.
const (
	QuantityPopularity Quantity = "popularity"
	QuantityRating     Quantity = "rating"
	QuantityDownloads  Quantity = "downloads"
	QuantityQuality    Quantity = "quality"
	QuantityPageCount  Quantity = "page-count"
	QuantityHoldings   Quantity = "holdings"
)

// Measurement is one source's numeric claim about an identifier's book,
// e.g. an Amazon sales rank or a Gutenberg download count.
type Measurement struct {
	Record
	IdentifierID string     `json:"identifier_id"`
	Source       DataSource `json:"source"`
	Quantity     Quantity   `json:"quantity"`
	Value        float64    `json:"value"`

	// Weight scales this measurement's influence when several sources report
	// the same quantity.
	Weight float64 `json:"weight"`

	// MostRecent marks the latest measurement of this quantity from this
	// source; older rows are kept for history but ignored by aggregation.
	MostRecent bool      `json:"most_recent"`
	TakenAt    time.Time `json:"taken_at"`
}

// Classification is a subject assertion about an identifier, fed to the
// external classifier when a work's genres are recomputed.
type Classification struct {
	Record
	IdentifierID      string     `json:"identifier_id"`
	Source            DataSource `json:"source"`
	SubjectType       string     `json:"subject_type"`
	SubjectIdentifier string     `json:"subject_identifier"`
	SubjectName       string     `json:"subject_name,omitempty"`
	Weight            int        `json:"weight"`
}
