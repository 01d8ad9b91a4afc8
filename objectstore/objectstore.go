// backend/objectstore/objectstore.go

// Package objectstore is the durable, path-addressed byte storage the
// pipeline lands its normalized CSV artifacts in. Two backends: GCS for
// deployments, a local directory for development and tests.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get for a path that does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes one stored object, enough for listings and sweeps.
type ObjectInfo struct {
	Path    string
	Size    int64
	Created time.Time
}

// Store is write-once, path-addressed storage.
type Store interface {
	Put(ctx context.Context, path string, data []byte, metadata map[string]string) (string, error)
	Get(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, path string) error
}

// LandingPath builds the object path for an automated run's artifact:
// landing/<vendor>/<yyyy>/<mm>/<dd>/run_<run_id>/<store_id>_<window>.csv
func LandingPath(vendor string, now time.Time, runID, storeID, window string) string {
	return fmt.Sprintf("landing/%s/%s/run_%s/%s_%s.csv",
		vendor, now.Format("2006/01/02"), runID, storeID, window)
}

// ManualPath builds the object path for an operator-initiated backfill:
// manual/<vendor>/<yyyy>/<mm>/<dd>/<filename>
func ManualPath(vendor string, now time.Time, filename string) string {
	return fmt.Sprintf("manual/%s/%s/%s", vendor, now.Format("2006/01/02"), filename)
}

// SweepBefore deletes objects under prefix created before cutoff and returns
// how many were removed. Best-effort retention, mirroring the staging TTL.
func SweepBefore(ctx context.Context, store Store, prefix string, cutoff time.Time) (int, error) {
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list %q for sweep: %w", prefix, err)
	}
	deleted := 0
	for _, obj := range objects {
		if !obj.Created.Before(cutoff) {
			continue
		}
		if err := store.Delete(ctx, obj.Path); err != nil {
			return deleted, fmt.Errorf("failed to delete expired object %s: %w", obj.Path, err)
		}
		deleted++
	}
	return deleted, nil
}
