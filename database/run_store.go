// backend/database/run_store.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/shokudo/rbetl/backend/models"
)

// RunStore persists finalized run summaries. Insert-only: a run is immutable
// once finalized, and a failed run is re-triggered under a new run id rather
// than rewritten.
type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) SaveRun(ctx context.Context, run models.Run) error {
	storesJSON, err := json.Marshal(run.Stores)
	if err != nil {
		log.Printf("WARN: Could not marshal store results for run %s: %v. Storing empty list.", run.RunID, err)
		storesJSON = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO etl_runs (
			run_id, started_at, finished_at,
			stores_attempted, stores_succeeded, stores_failed, records_staged,
			merge_ran, merge_inserted, merge_updated, merge_unchanged,
			partial_failure, store_results_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID, run.StartedAt, run.FinishedAt,
		run.StoresAttempted, run.StoresSucceeded, run.StoresFailed, run.RecordsStaged,
		run.MergeRan, run.Merge.Inserted, run.Merge.Updated, run.Merge.Unchanged,
		run.PartialFailure, string(storesJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.RunID, err)
	}
	log.Printf("Saved run summary %s (%d/%d stores succeeded).\n", run.RunID, run.StoresSucceeded, run.StoresAttempted)
	return nil
}

// GetLatestRun returns the most recently finalized run, or nil when no run
// has completed yet.
func (s *RunStore) GetLatestRun(ctx context.Context) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at,
		       stores_attempted, stores_succeeded, stores_failed, records_staged,
		       merge_ran, merge_inserted, merge_updated, merge_unchanged,
		       partial_failure, store_results_json
		FROM etl_runs
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`)

	var run models.Run
	var storesJSON string
	err := row.Scan(
		&run.RunID, &run.StartedAt, &run.FinishedAt,
		&run.StoresAttempted, &run.StoresSucceeded, &run.StoresFailed, &run.RecordsStaged,
		&run.MergeRan, &run.Merge.Inserted, &run.Merge.Updated, &run.Merge.Unchanged,
		&run.PartialFailure, &storesJSON,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	run.Merge.Total = run.Merge.Inserted + run.Merge.Updated + run.Merge.Unchanged
	if storesJSON != "" {
		if err := json.Unmarshal([]byte(storesJSON), &run.Stores); err != nil {
			log.Printf("WARN: Could not unmarshal store results for run %s: %v", run.RunID, err)
		}
	}
	return &run, nil
}
