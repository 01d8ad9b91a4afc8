// backend/reconcile/reconcile.go

// Package reconcile holds the pure half of the merge: deduplicating staged
// rows and classifying them against the production table. Keeping these free
// of SQL lets the merge semantics be tested without a database; the database
// package applies the resulting plan inside one transaction.
package reconcile

import (
	"sort"

	"github.com/shokudo/rbetl/backend/models"
)

// DedupLatest collapses staged rows to one per record_key, keeping the row
// with the maximum ingestion_ts. Ties are broken by the larger staging row id
// (the most recently written row), which makes the choice deterministic.
// This is the only deduplication point in the pipeline: staging itself is
// append-only and duplicates freely within a run.
func DedupLatest(staged []models.StagedRecord) []models.StagedRecord {
	latest := make(map[string]models.StagedRecord, len(staged))
	for _, row := range staged {
		current, ok := latest[row.RecordKey]
		if !ok {
			latest[row.RecordKey] = row
			continue
		}
		if row.IngestionTS.After(current.IngestionTS) ||
			(row.IngestionTS.Equal(current.IngestionTS) && row.StagingID > current.StagingID) {
			latest[row.RecordKey] = row
		}
	}

	out := make([]models.StagedRecord, 0, len(latest))
	for _, row := range latest {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordKey < out[j].RecordKey })
	return out
}

// Plan is the classified outcome of comparing deduplicated staged rows
// against existing production rows.
type Plan struct {
	Inserts   []models.NormalizedRecord
	Updates   []models.NormalizedRecord
	Unchanged []models.NormalizedRecord
}

// Result summarizes a plan as merge counts.
func (p Plan) Result() models.MergeResult {
	return models.MergeResult{
		Inserted:  len(p.Inserts),
		Updated:   len(p.Updates),
		Unchanged: len(p.Unchanged),
		Total:     len(p.Inserts) + len(p.Updates) + len(p.Unchanged),
	}
}

// Classify performs the three-way comparison. existingHashes maps record_key
// to the production row's record_hash for this (vendor, store) scope:
//   - key absent            -> insert
//   - key present, hash !=  -> update
//   - key present, hash ==  -> unchanged
//
// There is no delete class: reservations that vanish from the source are
// left in place.
func Classify(deduped []models.StagedRecord, existingHashes map[string]string) Plan {
	var plan Plan
	for _, row := range deduped {
		hash, exists := existingHashes[row.RecordKey]
		switch {
		case !exists:
			plan.Inserts = append(plan.Inserts, row.NormalizedRecord)
		case hash != row.RecordHash:
			plan.Updates = append(plan.Updates, row.NormalizedRecord)
		default:
			plan.Unchanged = append(plan.Unchanged, row.NormalizedRecord)
		}
	}
	return plan
}
