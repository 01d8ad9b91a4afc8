// backend/models/run.go
package models

import "time"

// Per-store processing states, in pipeline order.
const (
	StorePending     = "pending"
	StoreExtracting  = "extracting"
	StoreNormalizing = "normalizing"
	StoreStaging     = "staging"
	StoreSucceeded   = "succeeded"
	StoreFailed      = "failed"
)

// MergeResult is the outcome of one merge invocation.
type MergeResult struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Total     int `json:"total"`
}

// LoadResult is what the staging loader reports back for one batch.
type LoadResult struct {
	JobID       string `json:"job_id"`
	RowsWritten int    `json:"rows_written"`
}

// StoreRunResult is the per-store line of the run summary.
type StoreRunResult struct {
	StoreID        string `json:"store_id"`
	State          string `json:"state"`
	Error          string `json:"error,omitempty"`
	RowsNormalized int    `json:"rows_normalized"`
	RowsSkipped    int    `json:"rows_skipped"`
	RowsStaged     int    `json:"rows_staged"`
	ArtifactPath   string `json:"artifact_path,omitempty"`
	Window         string `json:"window,omitempty"`
}

// Run is one end-to-end execution. Immutable once finalized; a failed run is
// re-triggered externally under a new run id, never retried in place.
type Run struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Stores     []StoreRunResult `json:"stores"`

	StoresAttempted int         `json:"stores_attempted"`
	StoresSucceeded int         `json:"stores_succeeded"`
	StoresFailed    int         `json:"stores_failed"`
	RecordsStaged   int         `json:"records_staged"`
	Merge           MergeResult `json:"merge"`
	MergeRan        bool        `json:"merge_ran"`

	// PartialFailure is the external signal that at least one store failed
	// even though the run itself completed.
	PartialFailure bool `json:"partial_failure"`
}
