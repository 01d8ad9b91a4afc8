// backend/models/reservation.go
package models

import "time"

// NormalizedRecord is the canonical reservation row after normalization.
// CSV tags define the fixed landing/staging file layout; db tags match the
// staging and production tables.
//
// Content fields (store through status) feed the record hash; the metadata
// fields (vendor aside, which is constant content) never do, so re-ingesting
// identical content under a different run yields the same hash.
type NormalizedRecord struct {
	StoreID     string  `csv:"store_id" db:"store_id"`
	StoreName   *string `csv:"store_name" db:"store_name"`
	ReserveDate string  `csv:"reserve_date" db:"reserve_date"` // YYYY-MM-DD, required
	BookingDate *string `csv:"booking_date" db:"booking_date"` // YYYY-MM-DD
	StartTime   *string `csv:"start_time" db:"start_time"`     // HH:MM:SS
	EndTime     *string `csv:"end_time" db:"end_time"`         // HH:MM:SS
	CourseName  *string `csv:"course_name" db:"course_name"`
	Headcount   *int    `csv:"headcount" db:"headcount"`
	Channel     *string `csv:"channel" db:"channel"`
	Status      *string `csv:"status" db:"status"`

	Vendor      string    `csv:"vendor" db:"vendor"`
	IngestionTS time.Time `csv:"ingestion_ts" db:"ingestion_ts"`
	RunID       string    `csv:"run_id" db:"run_id"`
	RecordKey   string    `csv:"record_key" db:"record_key"`
	RecordHash  string    `csv:"record_hash" db:"record_hash"`
}

// StagedRecord is a NormalizedRecord as it sits in the append-only staging
// table. StagingID orders rows written in the same instant and breaks
// dedup ties deterministically.
type StagedRecord struct {
	StagingID int64 `db:"id"`
	NormalizedRecord
}

// ProductionRecord is one durable row per (vendor, store_id, record_key),
// holding the latest content plus bookkeeping timestamps.
type ProductionRecord struct {
	ID int64 `db:"id"`
	NormalizedRecord
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
