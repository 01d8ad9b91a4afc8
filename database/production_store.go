// backend/database/production_store.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/shokudo/rbetl/backend/models"
	"github.com/shokudo/rbetl/backend/reconcile"
)

// ProductionStore owns the durable reservations table and the run merge.
// The merge is the table's only writer.
type ProductionStore struct {
	db *sql.DB
}

func NewProductionStore(db *sql.DB) *ProductionStore {
	return &ProductionStore{db: db}
}

// MergeRun consolidates every staged row tagged with runID into the
// production table: dedup latest-wins per record key, then insert new keys,
// update keys whose content hash changed and leave identical keys untouched.
// The whole merge runs in a single transaction, so concurrent readers never
// observe a half-applied state, and re-running it with no new staged rows is
// a no-op. A session lock named after the run id keeps two merges of the
// same run from interleaving.
func (s *ProductionStore) MergeRun(ctx context.Context, runID string) (models.MergeResult, error) {
	var result models.MergeResult

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to acquire connection for merge of run %s: %w", runID, err)
	}
	defer conn.Close()

	lockName := "rb_merge_" + runID
	var locked sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 60)", lockName).Scan(&locked); err != nil {
		return result, fmt.Errorf("failed to acquire merge lock for run %s: %w", runID, err)
	}
	if !locked.Valid || locked.Int64 != 1 {
		return result, fmt.Errorf("merge lock for run %s is held elsewhere", runID)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "SELECT RELEASE_LOCK(?)", lockName); err != nil {
			log.Printf("WARN: Failed to release merge lock %s: %v", lockName, err)
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin merge transaction for run %s: %w", runID, err)
	}
	defer tx.Rollback()

	staged, err := fetchStagedForMerge(ctx, tx, runID)
	if err != nil {
		return result, err
	}
	deduped := reconcile.DedupLatest(staged)

	existing, err := fetchExistingHashes(ctx, tx, deduped)
	if err != nil {
		return result, err
	}
	plan := reconcile.Classify(deduped, existing)

	if err := applyPlan(ctx, tx, plan); err != nil {
		return result, err
	}
	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit merge for run %s: %w", runID, err)
	}

	result = plan.Result()
	log.Printf("Merge for run %s: %d inserted, %d updated, %d unchanged (%d staged rows, %d after dedup)\n",
		runID, result.Inserted, result.Updated, result.Unchanged, len(staged), len(deduped))
	return result, nil
}

// CountRows reports the production table size, for the status endpoint.
func (s *ProductionStore) CountRows(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reservations_rb").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count production rows: %w", err)
	}
	return count, nil
}

func fetchStagedForMerge(ctx context.Context, tx *sql.Tx, runID string) ([]models.StagedRecord, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, store_id, store_name, reserve_date, booking_date,
		       start_time, end_time, course_name, headcount, channel, status,
		       vendor, ingestion_ts, run_id, record_key, record_hash
		FROM stage_reservations_rb
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged rows for merge of run %s: %w", runID, err)
	}
	defer rows.Close()
	return scanStagedRows(rows)
}

func fetchExistingHashes(ctx context.Context, tx *sql.Tx, deduped []models.StagedRecord) (map[string]string, error) {
	if len(deduped) == 0 {
		return map[string]string{}, nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		SELECT record_hash FROM reservations_rb
		WHERE vendor = ? AND store_id = ? AND record_key = ?
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare production hash lookup: %w", err)
	}
	defer stmt.Close()

	existing := make(map[string]string, len(deduped))
	for _, row := range deduped {
		var hash string
		err := stmt.QueryRowContext(ctx, row.Vendor, row.StoreID, row.RecordKey).Scan(&hash)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up production hash for key %q: %w", row.RecordKey, err)
		}
		existing[row.RecordKey] = hash
	}
	return existing, nil
}

func applyPlan(ctx context.Context, tx *sql.Tx, plan reconcile.Plan) error {
	if len(plan.Inserts) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO reservations_rb (
				store_id, store_name, reserve_date, booking_date,
				start_time, end_time, course_name, headcount, channel, status,
				vendor, ingestion_ts, run_id, record_key, record_hash,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare production insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range plan.Inserts {
			_, err := stmt.ExecContext(ctx,
				r.StoreID, r.StoreName, r.ReserveDate, r.BookingDate,
				r.StartTime, r.EndTime, r.CourseName, r.Headcount, r.Channel, r.Status,
				r.Vendor, r.IngestionTS, r.RunID, r.RecordKey, r.RecordHash,
			)
			if err != nil {
				return fmt.Errorf("failed to insert production row key %q: %w", r.RecordKey, err)
			}
		}
	}

	if len(plan.Updates) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE reservations_rb SET
				store_name = ?, reserve_date = ?, booking_date = ?,
				start_time = ?, end_time = ?, course_name = ?, headcount = ?,
				channel = ?, status = ?, ingestion_ts = ?, run_id = ?,
				record_hash = ?, updated_at = NOW()
			WHERE vendor = ? AND store_id = ? AND record_key = ?
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare production update: %w", err)
		}
		defer stmt.Close()
		for _, r := range plan.Updates {
			_, err := stmt.ExecContext(ctx,
				r.StoreName, r.ReserveDate, r.BookingDate,
				r.StartTime, r.EndTime, r.CourseName, r.Headcount,
				r.Channel, r.Status, r.IngestionTS, r.RunID,
				r.RecordHash,
				r.Vendor, r.StoreID, r.RecordKey,
			)
			if err != nil {
				return fmt.Errorf("failed to update production row key %q: %w", r.RecordKey, err)
			}
		}
	}

	// Unchanged rows are left completely untouched, updated_at included.
	return nil
}
