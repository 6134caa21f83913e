package domain

// LicensePool is one source's claim to be able to provide access to one
// identifier's book. Exactly one pool exists per identifier (enforced by a
// unique constraint in the store).
type LicensePool struct {
	Record
	Source       DataSource   `json:"source"`
	IdentifierID string       `json:"identifier_id"`
	RightsStatus RightsStatus `json:"rights_status"`

	// WorkID is the cluster this pool belongs to, empty while unclustered.
	WorkID string `json:"work_id,omitempty"`

	// PresentationEditionID is the edition chosen to represent this pool,
	// picked by the per-pool source priority ordering.
	PresentationEditionID string `json:"presentation_edition_id,omitempty"`

	OpenAccess bool `json:"open_access"`

	// Superceded marks an open-access pool that lost the champion selection
	// within its work. Kept with the historical spelling used in stored
	// rows since the first schema.
	Superceded bool `json:"superceded"`

	// Suppressed pools are hidden from patrons by an operator but still
	// participate in clustering bookkeeping.
	Suppressed bool `json:"suppressed"`

	LicensesOwned     int `json:"licenses_owned"`
	LicensesAvailable int `json:"licenses_available"`
}

// Clustered reports whether the pool currently belongs to a work.
func (p *LicensePool) Clustered() bool {
	return p.WorkID != ""
}
