// backend/normalizer/normalizer.go
package normalizer

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shokudo/rbetl/backend/codec"
	"github.com/shokudo/rbetl/backend/models"
)

// KeyStrategy selects how record_key is derived. The portal's requirements
// leave open whether a durable reservation number is always exported, so both
// strategies live behind this switch.
type KeyStrategy string

const (
	// KeyAuto uses the reservation number when a row carries one and falls
	// back to the composite key otherwise.
	KeyAuto KeyStrategy = "auto"
	// KeyNatural requires the reservation number; rows without one fall
	// back to the composite key with a warning.
	KeyNatural KeyStrategy = "natural"
	// KeyComposite always uses the composite natural key. The composite key
	// is a heuristic identity proxy: it can collide, and it drifts when the
	// portal changes any component (time, course, headcount, channel) of a
	// reservation that is still the "same" reservation in the real world.
	KeyComposite KeyStrategy = "composite"
)

// Config for a Normalizer. Vendor tags every record with its source portal.
type Config struct {
	Vendor      string
	KeyStrategy KeyStrategy
}

// Normalizer turns raw portal exports into NormalizedRecords.
type Normalizer struct {
	cfg Config
}

func New(cfg Config) *Normalizer {
	if cfg.KeyStrategy == "" {
		cfg.KeyStrategy = KeyAuto
	}
	return &Normalizer{cfg: cfg}
}

// Normalize decodes and normalizes one store's raw extract. Row-level
// failures are skipped and counted, never propagated; the returned error
// covers only extract-level problems (an unreadable table).
//
// Every returned record has store_id, vendor, reserve_date, ingestion_ts,
// run_id, record_key and record_hash set.
func (n *Normalizer) Normalize(raw []byte, store models.StoreConfig, runID string, ingestionTS time.Time) ([]models.NormalizedRecord, int, error) {
	rows, err := codec.ParseRawTable(codec.DecodeJapanese(raw))
	if err != nil {
		return nil, 0, fmt.Errorf("store %s: %w", store.StoreID, err)
	}

	records := make([]models.NormalizedRecord, 0, len(rows))
	skipped := 0
	for i, row := range rows {
		record, ok := n.normalizeRow(row, store, runID, ingestionTS)
		if !ok {
			skipped++
			log.Printf("WARN Normalizer: store %s row %d skipped (no usable reserve_date)", store.StoreID, i+1)
			continue
		}
		records = append(records, record)
	}
	log.Printf("Normalizer: store %s produced %d records, skipped %d of %d rows", store.StoreID, len(records), skipped, len(rows))
	return records, skipped, nil
}

// mapColumns rewrites portal-native headers to schema field names, dropping
// columns with no mapping.
func mapColumns(row codec.FieldMap) map[string]string {
	mapped := make(map[string]string, len(row))
	for name, value := range row {
		if field, ok := columnMapping[strings.TrimSpace(name)]; ok {
			mapped[field] = value
		}
	}
	return mapped
}

func (n *Normalizer) normalizeRow(row codec.FieldMap, store models.StoreConfig, runID string, ingestionTS time.Time) (models.NormalizedRecord, bool) {
	mapped := mapColumns(row)

	// reserve_date is the one required content field: a row without a
	// parseable one cannot be keyed and is dropped.
	reserveDate := normalizeDate(mapped["reserve_date"], ingestionTS.Year())
	if reserveDate == "" {
		return models.NormalizedRecord{}, false
	}

	record := models.NormalizedRecord{
		StoreID:     store.StoreID,
		ReserveDate: reserveDate,
		Vendor:      n.cfg.Vendor,
		IngestionTS: ingestionTS,
		RunID:       runID,
	}

	storeName := store.StoreName
	if storeName == "" {
		storeName = normalizeString(mapped["store_name"])
	}
	record.StoreName = optional(storeName)
	record.BookingDate = optional(normalizeDate(mapped["booking_date"], ingestionTS.Year()))
	record.StartTime = optional(normalizeTime(mapped["start_time"]))
	record.EndTime = optional(normalizeTime(mapped["end_time"]))
	record.CourseName = optional(normalizeString(mapped["course_name"]))
	if hc := normalizeHeadcount(mapped["headcount"]); hc >= 0 {
		record.Headcount = &hc
	}
	record.Channel = optional(canonicalize(mapped["channel"], channelVocabulary))
	record.Status = optional(canonicalize(mapped["status"], statusVocabulary))

	record.RecordKey = n.recordKey(record, normalizeString(mapped["reservation_id"]))
	record.RecordHash = RecordHash(record)
	return record, true
}

// recordKey derives the stable identity of the reservation per the
// configured strategy.
func (n *Normalizer) recordKey(r models.NormalizedRecord, reservationID string) string {
	useNatural := reservationID != "" && n.cfg.KeyStrategy != KeyComposite
	if n.cfg.KeyStrategy == KeyNatural && reservationID == "" {
		log.Printf("WARN Normalizer: store %s has no reservation number, falling back to composite key", r.StoreID)
	}
	if useNatural {
		return r.StoreID + "|" + reservationID
	}
	return CompositeKey(r)
}

// CompositeKey builds the composite natural key from the ordered identity
// components, skipping absent ones.
func CompositeKey(r models.NormalizedRecord) string {
	parts := []string{r.StoreID, r.ReserveDate}
	for _, p := range []*string{r.StartTime, r.CourseName} {
		if p != nil {
			parts = append(parts, *p)
		}
	}
	if r.Headcount != nil {
		parts = append(parts, strconv.Itoa(*r.Headcount))
	}
	if r.Channel != nil {
		parts = append(parts, *r.Channel)
	}
	return strings.Join(parts, "|")
}

// RecordHash fingerprints the content fields only. Metadata (run_id,
// ingestion_ts, record_key) never feeds the hash, so re-ingesting identical
// content under another run produces the same value.
func RecordHash(r models.NormalizedRecord) string {
	fields := []string{
		r.StoreID,
		deref(r.StoreName),
		r.ReserveDate,
		deref(r.BookingDate),
		deref(r.StartTime),
		deref(r.EndTime),
		deref(r.CourseName),
		"",
		deref(r.Channel),
		deref(r.Status),
	}
	if r.Headcount != nil {
		fields[7] = strconv.Itoa(*r.Headcount)
	}
	sum := md5.Sum([]byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
