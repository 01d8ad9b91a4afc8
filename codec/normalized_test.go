// backend/codec/normalized_test.go
package codec

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shokudo/rbetl/backend/models"
)

func TestNormalizedRoundTrip(t *testing.T) {
	name := "とり平"
	start := "18:30:00"
	hc := 4
	in := []models.NormalizedRecord{
		{
			StoreID:     "S001",
			StoreName:   &name,
			ReserveDate: "2026-08-25",
			StartTime:   &start,
			Headcount:   &hc,
			Vendor:      "restaurant_board",
			IngestionTS: time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC),
			RunID:       "run-1",
			RecordKey:   "S001|R-1",
			RecordHash:  "abc123",
		},
		{
			// Sparse row: every optional field absent.
			StoreID:     "S002",
			ReserveDate: "2026-08-26",
			Vendor:      "restaurant_board",
			IngestionTS: time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC),
			RunID:       "run-1",
			RecordKey:   "S002|2026-08-26",
			RecordHash:  "def456",
		},
	}

	encoded, err := EncodeNormalized(in)
	require.NoError(t, err)
	header := strings.SplitN(string(encoded), "\n", 2)[0]
	assert.Contains(t, header, "record_key")
	assert.Contains(t, header, "record_hash")

	out, err := DecodeNormalized(encoded)
	require.NoError(t, err)
	require.Len(t, out, 2)

	require.NotNil(t, out[0].StoreName)
	assert.Equal(t, "とり平", *out[0].StoreName)
	require.NotNil(t, out[0].Headcount)
	assert.Equal(t, 4, *out[0].Headcount)
	assert.True(t, out[0].IngestionTS.Equal(in[0].IngestionTS))

	assert.Nil(t, out[1].StoreName, "empty CSV fields must decode back to nil")
	assert.Nil(t, out[1].Headcount)
	assert.Equal(t, "S002|2026-08-26", out[1].RecordKey)
}

func TestDecodeNormalizedRejectsGarbage(t *testing.T) {
	_, err := DecodeNormalized([]byte("not,a\nnormalized\"csv"))
	assert.Error(t, err)
}
