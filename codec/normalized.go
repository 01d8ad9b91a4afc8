// backend/codec/normalized.go
package codec

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jszwec/csvutil"

	"github.com/shokudo/rbetl/backend/models"
)

// newLenientCSVReader builds a csv.Reader that tolerates ragged rows and
// stray quotes, which both occur in real portal exports.
func newLenientCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

// EncodeNormalized renders normalized records to the fixed landing/staging
// CSV layout. Header order follows the struct's csv tags, which match the
// staging table column order.
func EncodeNormalized(records []models.NormalizedRecord) ([]byte, error) {
	out, err := csvutil.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode normalized CSV: %w", err)
	}
	return out, nil
}

// DecodeNormalized parses a normalized CSV produced by EncodeNormalized (or
// an operator backfill saved in the same layout).
func DecodeNormalized(b []byte) ([]models.NormalizedRecord, error) {
	var records []models.NormalizedRecord
	if err := csvutil.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("failed to decode normalized CSV: %w", err)
	}
	return records, nil
}
