// backend/services/backfill_service_test.go
package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shokudo/rbetl/backend/codec"
	"github.com/shokudo/rbetl/backend/models"
	"github.com/shokudo/rbetl/backend/objectstore"
)

func backfillFixture(t *testing.T) (*BackfillService, *objectstore.Local, *fakeStaging, *fakeMerger) {
	t.Helper()
	objects, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	staging := &fakeStaging{}
	merger := newFakeMerger(staging)
	return NewBackfillService("restaurant_board", objects, staging, merger), objects, staging, merger
}

func backfillCSV(t *testing.T) []byte {
	t.Helper()
	hc := 4
	data, err := codec.EncodeNormalized([]models.NormalizedRecord{{
		StoreID:     "S001",
		ReserveDate: "2026-08-25",
		Headcount:   &hc,
		Vendor:      "restaurant_board",
		IngestionTS: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		RunID:       "run-old",
		RecordKey:   "S001|R-1",
		RecordHash:  "stale-hash-from-the-file",
	}})
	require.NoError(t, err)
	return data
}

func TestBackfillInlineUpload(t *testing.T) {
	svc, objects, staging, _ := backfillFixture(t)

	result, err := svc.Run(context.Background(), BackfillRequest{
		Filename: "fix.csv",
		Data:     backfillCSV(t),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.RunID, "manual_"))
	assert.Equal(t, 1, result.RowsStaged)
	assert.Equal(t, models.MergeResult{Inserted: 1, Total: 1}, result.Merge)

	// The upload is archived under the manual prefix before anything runs.
	require.NotEmpty(t, result.ArchivePath)
	assert.True(t, strings.HasPrefix(result.ArchivePath, "manual/restaurant_board/"))
	archived, err := objects.Get(context.Background(), result.ArchivePath)
	require.NoError(t, err)
	assert.NotEmpty(t, archived)

	// Rows are rebound to the manual run with a recomputed hash.
	require.Len(t, staging.rows, 1)
	row := staging.rows[0]
	assert.Equal(t, result.RunID, row.RunID)
	assert.NotEqual(t, "stale-hash-from-the-file", row.RecordHash,
		"hashes from the file are never trusted")
	assert.Equal(t, "S001|R-1", row.RecordKey, "keys from the file are the row's identity and survive")
}

func TestBackfillFromObjectPath(t *testing.T) {
	svc, objects, _, _ := backfillFixture(t)
	_, err := objects.Put(context.Background(), "manual/restaurant_board/2026/08/01/fix.csv", backfillCSV(t), nil)
	require.NoError(t, err)

	result, err := svc.Run(context.Background(), BackfillRequest{
		ObjectPath: "manual/restaurant_board/2026/08/01/fix.csv",
	})
	require.NoError(t, err)
	assert.Equal(t, "manual/restaurant_board/2026/08/01/fix.csv", result.ArchivePath)
	assert.Equal(t, 1, result.Merge.Inserted)
}

func TestBackfillReplayIsIdempotent(t *testing.T) {
	svc, _, _, _ := backfillFixture(t)
	data := backfillCSV(t)

	first, err := svc.Run(context.Background(), BackfillRequest{Filename: "fix.csv", Data: data})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Merge.Inserted)

	second, err := svc.Run(context.Background(), BackfillRequest{Filename: "fix.csv", Data: data})
	require.NoError(t, err)
	assert.Equal(t, models.MergeResult{Unchanged: 1, Total: 1}, second.Merge)
}

func TestBackfillRequestValidation(t *testing.T) {
	svc, _, _, _ := backfillFixture(t)

	t.Run("Empty Request", func(t *testing.T) {
		_, err := svc.Run(context.Background(), BackfillRequest{})
		assert.Error(t, err)
	})

	t.Run("Both Sources Set", func(t *testing.T) {
		_, err := svc.Run(context.Background(), BackfillRequest{ObjectPath: "a.csv", Data: []byte("x")})
		assert.Error(t, err)
	})

	t.Run("Missing Object", func(t *testing.T) {
		_, err := svc.Run(context.Background(), BackfillRequest{ObjectPath: "manual/missing.csv"})
		assert.ErrorIs(t, err, objectstore.ErrNotFound)
	})

	t.Run("Rows Without Identity Are Rejected", func(t *testing.T) {
		data, err := codec.EncodeNormalized([]models.NormalizedRecord{{
			StoreID: "S001", // no reserve_date
			Vendor:  "restaurant_board",
		}})
		require.NoError(t, err)
		_, err = svc.Run(context.Background(), BackfillRequest{Filename: "bad.csv", Data: data})
		assert.ErrorContains(t, err, "no usable rows")
	})
}
