package domain

import "fmt"

// IdentifierType is the naming scheme an identifier value belongs to.
type IdentifierType string

// Known identifier types.
const (
	IdentifierISBN        IdentifierType = "isbn"
	IdentifierURI         IdentifierType = "uri"
	IdentifierGutenbergID IdentifierType = "gutenberg-id"
	IdentifierOverdriveID IdentifierType = "overdrive-id"
	IdentifierASIN        IdentifierType = "asin"
	IdentifierProprietary IdentifierType = "proprietary"
)

// Identifier names a book according to one naming scheme. The (Type, Value)
// pair is unique. Identifiers are immutable once created and never deleted.
type Identifier struct {
	Record
	Type  IdentifierType `json:"type"`
	Value string         `json:"value"`
}

// URN returns the canonical string form of the identifier, used for logging
// and for keying import batches.
func (i *Identifier) URN() string {
	return fmt.Sprintf("urn:%s:%s", i.Type, i.Value)
}

// Equivalency is a directed assertion by a reporting source that two
// identifiers name the same book. Strength is in [-1, 1]; negative values
// assert non-equivalence. Votes accumulates corroborating reports of the
// same edge from the same source.
type Equivalency struct {
	Record
	Source   DataSource `json:"source"`
	InputID  string     `json:"input_id"`
	OutputID string     `json:"output_id"`
	Strength float64    `json:"strength"`
	Votes    int        `json:"votes"`
}
