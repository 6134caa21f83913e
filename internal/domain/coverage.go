package domain

import "time"

// CoverageStatus is the outcome of an attempt to cover an identifier with
// some operation (import, classification, ...).
type CoverageStatus string

// Coverage outcomes.
const (
	CoverageSuccess           CoverageStatus = "success"
	CoverageTransientFailure  CoverageStatus = "transient-failure"
	CoveragePersistentFailure CoverageStatus = "persistent-failure"
)

// Coverage operations.
const (
	OperationImport    = "import"
	OperationClassify  = "classify"
	OperationRecompute = "recompute"
)

// CoverageRecord notes that an operation was attempted for an identifier by
// a source, and how it went. Transient failures are retried on the next
// pass; persistent failures wait for upstream data to change.
type CoverageRecord struct {
	Record
	IdentifierID string         `json:"identifier_id"`
	Source       DataSource     `json:"source"`
	Operation    string         `json:"operation"`
	Status       CoverageStatus `json:"status"`
	Exception    string         `json:"exception,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
