// backend/services/etl_service.go

// Package services wires the pipeline stages together: store master lookup,
// per-store extraction, normalization, landing, staging and the run merge.
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/shokudo/rbetl/backend/codec"
	"github.com/shokudo/rbetl/backend/models"
	"github.com/shokudo/rbetl/backend/normalizer"
	"github.com/shokudo/rbetl/backend/objectstore"
	"github.com/shokudo/rbetl/backend/scraper"
)

// Extractor produces one store's raw portal export for a window.
type Extractor interface {
	ExtractStore(ctx context.Context, store models.StoreConfig, window models.DateWindow) ([]byte, error)
}

// StagingLoader is the append-only staging table surface the orchestrator
// needs.
type StagingLoader interface {
	Append(ctx context.Context, records []models.NormalizedRecord) (models.LoadResult, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// MergeReconciler consolidates one run's staged rows into production.
type MergeReconciler interface {
	MergeRun(ctx context.Context, runID string) (models.MergeResult, error)
}

// RunRecorder persists finalized run summaries.
type RunRecorder interface {
	SaveRun(ctx context.Context, run models.Run) error
}

// browserExtractor is the production Extractor: a fresh headless-browser
// session per call.
type browserExtractor struct {
	cfg scraper.Config
}

func NewBrowserExtractor(cfg scraper.Config) Extractor {
	return &browserExtractor{cfg: cfg}
}

func (b *browserExtractor) ExtractStore(ctx context.Context, store models.StoreConfig, window models.DateWindow) ([]byte, error) {
	return scraper.ExtractOnce(ctx, b.cfg, store, window)
}

// ETLConfig holds the orchestrator's policy knobs.
type ETLConfig struct {
	Vendor      string
	DaysBack    int
	Retry       scraper.RetryConfig
	StageTTL    time.Duration // staged-row retention
	LandingTTL  time.Duration // landing artifact retention
	LandingRoot string        // object prefix swept by the landing TTL
}

// ErrRunInProgress is returned when a run is requested while another is
// still executing. At most one run is in flight per process.
var ErrRunInProgress = errors.New("an etl run is already in progress")

// ETLService runs the end-to-end pipeline. Stores are processed one at a
// time; a store failure is recorded and the run moves on, and the merge runs
// once at the end over everything that reached staging.
type ETLService struct {
	cfg       ETLConfig
	directory StoreDirectory
	extractor Extractor
	norm      *normalizer.Normalizer
	objects   objectstore.Store
	staging   StagingLoader
	merger    MergeReconciler
	runs      RunRecorder

	running atomic.Bool
}

func NewETLService(
	cfg ETLConfig,
	directory StoreDirectory,
	extractor Extractor,
	norm *normalizer.Normalizer,
	objects objectstore.Store,
	staging StagingLoader,
	merger MergeReconciler,
	runs RunRecorder,
) *ETLService {
	return &ETLService{
		cfg:       cfg,
		directory: directory,
		extractor: extractor,
		norm:      norm,
		objects:   objects,
		staging:   staging,
		merger:    merger,
		runs:      runs,
	}
}

// storeOutcome is what one successful per-store pipeline pass produces.
type storeOutcome struct {
	normalized   int
	skipped      int
	staged       int
	artifactPath string
}

// NewRunID mints the identifier a run will execute under, so callers that
// launch runs asynchronously can report it up front.
func NewRunID() string {
	return uuid.NewString()
}

// Run executes one complete pipeline pass under runID (minted via NewRunID
// when empty) and returns the finalized run summary. The returned error is
// non-nil only for run-level failures (store master unavailable, merge
// failed); per-store failures are folded into the summary instead.
func (s *ETLService) Run(ctx context.Context, runID string) (models.Run, error) {
	if runID == "" {
		runID = NewRunID()
	}
	run := models.Run{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
	}
	if !s.running.CompareAndSwap(false, true) {
		return run, ErrRunInProgress
	}
	defer s.running.Store(false)
	log.Printf("ETL: run %s started", run.RunID)

	stores, err := s.directory.ListActiveStores(ctx)
	if err != nil {
		return run, fmt.Errorf("run %s: store master unavailable: %w", run.RunID, err)
	}
	if len(stores) == 0 {
		log.Printf("WARN ETL: run %s has no active stores, nothing to do", run.RunID)
		return s.finalize(ctx, run)
	}

	for _, store := range stores {
		window := store.Window(run.StartedAt, s.cfg.DaysBack)
		result := models.StoreRunResult{
			StoreID: store.StoreID,
			State:   models.StorePending,
			Window:  window.String(),
		}
		run.StoresAttempted++

		outcome, err := scraper.Retry(ctx, s.cfg.Retry, "store "+store.StoreID,
			func(ctx context.Context) (storeOutcome, error) {
				return s.processStore(ctx, store, window, run.RunID)
			})
		if err != nil {
			result.State = models.StoreFailed
			result.Error = err.Error()
			run.StoresFailed++
			log.Printf("ERROR ETL: run %s store %s failed: %v", run.RunID, store.StoreID, err)
		} else {
			result.State = models.StoreSucceeded
			result.RowsNormalized = outcome.normalized
			result.RowsSkipped = outcome.skipped
			result.RowsStaged = outcome.staged
			result.ArtifactPath = outcome.artifactPath
			run.StoresSucceeded++
			run.RecordsStaged += outcome.staged
		}
		run.Stores = append(run.Stores, result)

		if err := ctx.Err(); err != nil {
			return run, fmt.Errorf("run %s cancelled: %w", run.RunID, err)
		}
	}

	// Merge barrier: runs once, only if anything reached staging. A merge
	// failure is run-level fatal, unlike store failures.
	if run.StoresSucceeded > 0 {
		merge, err := s.merger.MergeRun(ctx, run.RunID)
		if err != nil {
			run.FinishedAt = time.Now().UTC()
			run.PartialFailure = true
			if saveErr := s.runs.SaveRun(ctx, run); saveErr != nil {
				log.Printf("ERROR ETL: run %s summary not saved: %v", run.RunID, saveErr)
			}
			return run, fmt.Errorf("run %s: merge failed: %w", run.RunID, err)
		}
		run.Merge = merge
		run.MergeRan = true
	} else if run.StoresAttempted > 0 {
		log.Printf("WARN ETL: run %s staged nothing, skipping merge", run.RunID)
	}

	s.sweep(ctx)
	return s.finalize(ctx, run)
}

// processStore is the retried per-store unit: extract, normalize, land the
// artifact, stage. Any failure aborts the attempt; the retry wrapper decides
// whether another attempt happens.
func (s *ETLService) processStore(ctx context.Context, store models.StoreConfig, window models.DateWindow, runID string) (storeOutcome, error) {
	var out storeOutcome

	raw, err := s.extractor.ExtractStore(ctx, store, window)
	if err != nil {
		return out, fmt.Errorf("extract: %w", err)
	}

	records, skipped, err := s.norm.Normalize(raw, store, runID, time.Now().UTC())
	if err != nil {
		return out, fmt.Errorf("normalize: %w", err)
	}
	out.normalized = len(records)
	out.skipped = skipped

	artifact, err := codec.EncodeNormalized(records)
	if err != nil {
		return out, fmt.Errorf("encode artifact: %w", err)
	}
	path := objectstore.LandingPath(s.cfg.Vendor, time.Now().UTC(), runID, store.StoreID, window.String())
	if _, err := s.objects.Put(ctx, path, artifact, map[string]string{
		"store_id": store.StoreID,
		"run_id":   runID,
		"window":   window.String(),
	}); err != nil {
		return out, fmt.Errorf("land artifact: %w", err)
	}
	out.artifactPath = path

	load, err := s.staging.Append(ctx, records)
	if err != nil {
		return out, fmt.Errorf("stage: %w", err)
	}
	out.staged = load.RowsWritten
	return out, nil
}

// sweep applies the retention policies. Best effort: a sweep failure is
// logged and never fails the run.
func (s *ETLService) sweep(ctx context.Context) {
	now := time.Now().UTC()
	if s.cfg.StageTTL > 0 {
		if _, err := s.staging.DeleteOlderThan(ctx, now.Add(-s.cfg.StageTTL)); err != nil {
			log.Printf("WARN ETL: staging sweep failed: %v", err)
		}
	}
	if s.cfg.LandingTTL > 0 && s.cfg.LandingRoot != "" {
		deleted, err := objectstore.SweepBefore(ctx, s.objects, s.cfg.LandingRoot, now.Add(-s.cfg.LandingTTL))
		if err != nil {
			log.Printf("WARN ETL: landing sweep failed: %v", err)
		} else if deleted > 0 {
			log.Printf("ETL: swept %d expired landing artifacts", deleted)
		}
	}
}

func (s *ETLService) finalize(ctx context.Context, run models.Run) (models.Run, error) {
	run.FinishedAt = time.Now().UTC()
	run.PartialFailure = run.StoresFailed > 0
	if err := s.runs.SaveRun(ctx, run); err != nil {
		log.Printf("ERROR ETL: run %s summary not saved: %v", run.RunID, err)
	}
	log.Printf("ETL: run %s finished: %d/%d stores succeeded, %d records staged, merge ran=%t",
		run.RunID, run.StoresSucceeded, run.StoresAttempted, run.RecordsStaged, run.MergeRan)
	return run, nil
}
