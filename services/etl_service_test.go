// backend/services/etl_service_test.go
package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shokudo/rbetl/backend/models"
	"github.com/shokudo/rbetl/backend/normalizer"
	"github.com/shokudo/rbetl/backend/objectstore"
	"github.com/shokudo/rbetl/backend/reconcile"
	"github.com/shokudo/rbetl/backend/scraper"
)

// --- in-memory fakes ---

type fakeDirectory struct {
	stores []models.StoreConfig
	err    error
}

func (f *fakeDirectory) ListActiveStores(context.Context) ([]models.StoreConfig, error) {
	return f.stores, f.err
}

type fakeExtractor struct {
	data  map[string][]byte // per store id
	errs  map[string]error  // per store id, returned on every attempt
	calls map[string]int
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{data: map[string][]byte{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeExtractor) ExtractStore(_ context.Context, store models.StoreConfig, _ models.DateWindow) ([]byte, error) {
	f.calls[store.StoreID]++
	if err := f.errs[store.StoreID]; err != nil {
		return nil, err
	}
	return f.data[store.StoreID], nil
}

// fakeStaging mimics the append-only staging table with auto-increment ids.
type fakeStaging struct {
	rows      []models.StagedRecord
	nextID    int64
	appendErr error
}

func (f *fakeStaging) Append(_ context.Context, records []models.NormalizedRecord) (models.LoadResult, error) {
	if f.appendErr != nil {
		return models.LoadResult{}, f.appendErr
	}
	result := models.LoadResult{JobID: fmt.Sprintf("job-%d", f.nextID)}
	for _, r := range records {
		f.nextID++
		f.rows = append(f.rows, models.StagedRecord{StagingID: f.nextID, NormalizedRecord: r})
		result.RowsWritten++
	}
	return result, nil
}

func (f *fakeStaging) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	kept := f.rows[:0]
	var deleted int64
	for _, r := range f.rows {
		if r.IngestionTS.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	return deleted, nil
}

// fakeMerger replays the real dedup and classification logic against an
// in-memory production map, so the end-to-end scenarios exercise the same
// merge semantics as the SQL implementation.
type fakeMerger struct {
	staging    *fakeStaging
	production map[string]string // record_key -> record_hash
	err        error
}

func newFakeMerger(staging *fakeStaging) *fakeMerger {
	return &fakeMerger{staging: staging, production: map[string]string{}}
}

func (f *fakeMerger) MergeRun(_ context.Context, runID string) (models.MergeResult, error) {
	if f.err != nil {
		return models.MergeResult{}, f.err
	}
	var staged []models.StagedRecord
	for _, r := range f.staging.rows {
		if r.RunID == runID {
			staged = append(staged, r)
		}
	}
	deduped := reconcile.DedupLatest(staged)
	existing := map[string]string{}
	for _, r := range deduped {
		if hash, ok := f.production[r.RecordKey]; ok {
			existing[r.RecordKey] = hash
		}
	}
	plan := reconcile.Classify(deduped, existing)
	for _, r := range append(plan.Inserts, plan.Updates...) {
		f.production[r.RecordKey] = r.RecordHash
	}
	return plan.Result(), nil
}

type fakeRuns struct {
	saved []models.Run
}

func (f *fakeRuns) SaveRun(_ context.Context, run models.Run) error {
	f.saved = append(f.saved, run)
	return nil
}

// --- fixture wiring ---

type etlFixture struct {
	service   *ETLService
	directory *fakeDirectory
	extractor *fakeExtractor
	objects   *objectstore.Local
	staging   *fakeStaging
	merger    *fakeMerger
	runs      *fakeRuns
}

func newETLFixture(t *testing.T, stores ...models.StoreConfig) *etlFixture {
	t.Helper()
	objects, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	f := &etlFixture{
		directory: &fakeDirectory{stores: stores},
		extractor: newFakeExtractor(),
		objects:   objects,
		staging:   &fakeStaging{},
		runs:      &fakeRuns{},
	}
	f.merger = newFakeMerger(f.staging)
	f.service = NewETLService(ETLConfig{
		Vendor:   "restaurant_board",
		DaysBack: 7,
		Retry:    scraper.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond},
	}, f.directory, f.extractor, normalizer.New(normalizer.Config{Vendor: "restaurant_board"}),
		objects, f.staging, f.merger, f.runs)
	return f
}

func testStore(id string) models.StoreConfig {
	return models.StoreConfig{StoreID: id, Username: "u", Password: "p", Active: true}
}

const storeExport = `予約番号,予約日,予約時間,人数,経路,予約ステータス
R-1,2026/08/25,18:30,4名,ホットペッパー,確定
R-2,2026/08/26,19:00,2,電話,キャンセル
,,,,,
`

func TestRunHappyPath(t *testing.T) {
	f := newETLFixture(t, testStore("S001"))
	f.extractor.data["S001"] = []byte(storeExport)

	run, err := f.service.Run(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 1, run.StoresAttempted)
	assert.Equal(t, 1, run.StoresSucceeded)
	assert.Zero(t, run.StoresFailed)
	assert.False(t, run.PartialFailure)
	assert.Equal(t, 2, run.RecordsStaged, "the row without a reserve_date is skipped, not staged")

	require.Len(t, run.Stores, 1)
	sr := run.Stores[0]
	assert.Equal(t, models.StoreSucceeded, sr.State)
	assert.Equal(t, 2, sr.RowsNormalized)
	assert.Equal(t, 1, sr.RowsSkipped)
	assert.Equal(t, 2, sr.RowsStaged)
	assert.NotEmpty(t, sr.Window)

	// Landing artifact exists and holds the normalized layout.
	require.NotEmpty(t, sr.ArtifactPath)
	artifact, err := f.objects.Get(context.Background(), sr.ArtifactPath)
	require.NoError(t, err)
	assert.Contains(t, string(artifact), "record_key")
	assert.Contains(t, string(artifact), "S001|R-1")

	assert.True(t, run.MergeRan)
	assert.Equal(t, models.MergeResult{Inserted: 2, Total: 2}, run.Merge)

	require.Len(t, f.runs.saved, 1)
	assert.Equal(t, run.RunID, f.runs.saved[0].RunID)
}

func TestRunIsIdempotentAcrossReRuns(t *testing.T) {
	f := newETLFixture(t, testStore("S001"))
	f.extractor.data["S001"] = []byte(storeExport)

	first, err := f.service.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, models.MergeResult{Inserted: 2, Total: 2}, first.Merge)

	second, err := f.service.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, models.MergeResult{Unchanged: 2, Total: 2}, second.Merge,
		"unchanged content re-extracted under a new run must not rewrite production")
}

func TestRunPicksUpContentChanges(t *testing.T) {
	f := newETLFixture(t, testStore("S001"))
	f.extractor.data["S001"] = []byte("予約番号,予約日,人数\nR-1,2026-08-25,4\n")

	_, err := f.service.Run(context.Background(), "")
	require.NoError(t, err)

	// Same reservation, headcount changed.
	f.extractor.data["S001"] = []byte("予約番号,予約日,人数\nR-1,2026-08-25,6\n")
	run, err := f.service.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, models.MergeResult{Updated: 1, Total: 1}, run.Merge)
}

func TestRunIsolatesStoreFailures(t *testing.T) {
	f := newETLFixture(t, testStore("S001"), testStore("S002"))
	f.extractor.data["S001"] = []byte(storeExport)
	f.extractor.errs["S002"] = &scraper.NavigationTimeoutError{Step: "login", Timeout: time.Second}

	run, err := f.service.Run(context.Background(), "")
	require.NoError(t, err, "a store failure must not fail the run")

	assert.Equal(t, 2, run.StoresAttempted)
	assert.Equal(t, 1, run.StoresSucceeded)
	assert.Equal(t, 1, run.StoresFailed)
	assert.True(t, run.PartialFailure)
	assert.Equal(t, 3, f.extractor.calls["S002"], "retriable failures burn the full attempt budget")

	assert.True(t, run.MergeRan, "the merge still covers the stores that reached staging")
	assert.Equal(t, 2, run.Merge.Inserted)

	require.Len(t, run.Stores, 2)
	assert.Equal(t, models.StoreFailed, run.Stores[1].State)
	assert.Contains(t, run.Stores[1].Error, "navigation timeout")
}

func TestRunAuthWallIsNotRetried(t *testing.T) {
	f := newETLFixture(t, testStore("S001"))
	f.extractor.errs["S001"] = scraper.Permanent(scraper.ErrAuthStepRequired)

	run, err := f.service.Run(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 1, f.extractor.calls["S001"], "the second-factor wall must fail the store immediately")
	assert.Equal(t, 1, run.StoresFailed)
	assert.True(t, run.PartialFailure)
}

func TestRunSkipsMergeWhenNothingStaged(t *testing.T) {
	f := newETLFixture(t, testStore("S001"))
	f.extractor.errs["S001"] = &scraper.DownloadNotFoundError{Dir: "/tmp/x", Timeout: time.Second}

	run, err := f.service.Run(context.Background(), "")
	require.NoError(t, err)

	assert.False(t, run.MergeRan)
	assert.Zero(t, run.Merge.Total)
	require.Len(t, f.runs.saved, 1, "the failed run is still recorded")
}

func TestRunNoActiveStores(t *testing.T) {
	f := newETLFixture(t)

	run, err := f.service.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, run.StoresAttempted)
	assert.False(t, run.MergeRan)
	assert.False(t, run.PartialFailure)
	require.Len(t, f.runs.saved, 1)
}

func TestRunStoreMasterUnavailable(t *testing.T) {
	f := newETLFixture(t)
	f.directory.err = errors.New("sheet unreachable")

	_, err := f.service.Run(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store master unavailable")
	assert.Empty(t, f.runs.saved)
}

func TestRunMergeFailureIsFatal(t *testing.T) {
	f := newETLFixture(t, testStore("S001"))
	f.extractor.data["S001"] = []byte(storeExport)
	f.merger.err = errors.New("lock held elsewhere")

	run, err := f.service.Run(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge failed")
	assert.False(t, run.MergeRan)
	require.Len(t, f.runs.saved, 1, "the summary is saved even when the merge fails")
}

func TestRunUsesProvidedRunID(t *testing.T) {
	f := newETLFixture(t, testStore("S001"))
	f.extractor.data["S001"] = []byte(storeExport)

	run, err := f.service.Run(context.Background(), "run-fixed")
	require.NoError(t, err)
	assert.Equal(t, "run-fixed", run.RunID)
	for _, r := range f.staging.rows {
		assert.Equal(t, "run-fixed", r.RunID)
	}
}

func TestRunStagingFailureFailsStore(t *testing.T) {
	f := newETLFixture(t, testStore("S001"))
	f.extractor.data["S001"] = []byte(storeExport)
	f.staging.appendErr = errors.New("staging table gone")

	run, err := f.service.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, run.StoresFailed)
	assert.Contains(t, run.Stores[0].Error, "stage:")
	assert.False(t, run.MergeRan)
}
