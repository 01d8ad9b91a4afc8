// backend/database/staging_store.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/shokudo/rbetl/backend/models"
)

// StagingStore appends normalized records to the append-only staging table.
// Rows are never updated or deduplicated here: re-appending the same batch
// under the same run id simply produces duplicate rows, and the merge is the
// single place duplicates get resolved. Retention is a coarse TTL sweep,
// independent of merge correctness.
type StagingStore struct {
	db *sql.DB
}

func NewStagingStore(db *sql.DB) *StagingStore {
	return &StagingStore{db: db}
}

// Append writes one batch of records tagged with their run id and reports
// the rows written plus a batch id for traceability. Failure is fatal for
// the batch; the unit of retry is the whole per-store pipeline above.
func (s *StagingStore) Append(ctx context.Context, records []models.NormalizedRecord) (models.LoadResult, error) {
	result := models.LoadResult{JobID: uuid.NewString()}
	if len(records) == 0 {
		log.Println("No records provided to stage.")
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction for staging append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stage_reservations_rb (
			store_id, store_name, reserve_date, booking_date,
			start_time, end_time, course_name, headcount, channel, status,
			vendor, ingestion_ts, run_id, record_key, record_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return result, fmt.Errorf("failed to prepare staging insert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.StoreID, r.StoreName, r.ReserveDate, r.BookingDate,
			r.StartTime, r.EndTime, r.CourseName, r.Headcount, r.Channel, r.Status,
			r.Vendor, r.IngestionTS, r.RunID, r.RecordKey, r.RecordHash,
		)
		if err != nil {
			return result, fmt.Errorf("failed to stage record key %q run %s: %w", r.RecordKey, r.RunID, err)
		}
		result.RowsWritten++
	}

	if err := tx.Commit(); err != nil {
		return models.LoadResult{JobID: result.JobID}, fmt.Errorf("failed to commit staging append: %w", err)
	}

	log.Printf("Staged %d rows for run %s (job %s)\n", result.RowsWritten, records[0].RunID, result.JobID)
	return result, nil
}

// FetchByRun loads every staged row for a run, duplicates included.
func (s *StagingStore) FetchByRun(ctx context.Context, runID string) ([]models.StagedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, store_name, reserve_date, booking_date,
		       start_time, end_time, course_name, headcount, channel, status,
		       vendor, ingestion_ts, run_id, record_key, record_hash
		FROM stage_reservations_rb
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged rows for run %s: %w", runID, err)
	}
	defer rows.Close()

	staged, err := scanStagedRows(rows)
	if err != nil {
		return nil, err
	}
	log.Printf("Retrieved %d staged rows for run %s.\n", len(staged), runID)
	return staged, nil
}

// DeleteOlderThan sweeps expired staged rows. Retention policy only, not a
// correctness mechanism.
func (s *StagingStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM stage_reservations_rb WHERE ingestion_ts < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep staging rows before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept staging rows: %w", err)
	}
	if deleted > 0 {
		log.Printf("Swept %d expired staging rows (cutoff %s)\n", deleted, cutoff.Format("2006-01-02"))
	}
	return deleted, nil
}

func scanStagedRows(rows *sql.Rows) ([]models.StagedRecord, error) {
	var staged []models.StagedRecord
	for rows.Next() {
		var r models.StagedRecord
		var reserveDate time.Time
		var bookingDate sql.NullTime
		var storeName, startTime, endTime, courseName, channel, status sql.NullString
		var headcount sql.NullInt64

		err := rows.Scan(
			&r.StagingID, &r.StoreID, &storeName, &reserveDate, &bookingDate,
			&startTime, &endTime, &courseName, &headcount, &channel, &status,
			&r.Vendor, &r.IngestionTS, &r.RunID, &r.RecordKey, &r.RecordHash,
		)
		if err != nil {
			log.Printf("ERROR: Failed to scan staged row: %v", err)
			continue
		}
		r.ReserveDate = reserveDate.Format("2006-01-02")
		if bookingDate.Valid {
			d := bookingDate.Time.Format("2006-01-02")
			r.BookingDate = &d
		}
		r.StoreName = nullableString(storeName)
		r.StartTime = nullableString(startTime)
		r.EndTime = nullableString(endTime)
		r.CourseName = nullableString(courseName)
		r.Channel = nullableString(channel)
		r.Status = nullableString(status)
		if headcount.Valid {
			hc := int(headcount.Int64)
			r.Headcount = &hc
		}
		staged = append(staged, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating staged rows: %w", err)
	}
	return staged, nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid || v.String == "" {
		return nil
	}
	s := v.String
	return &s
}
