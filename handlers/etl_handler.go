// backend/handlers/etl_handler.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/shokudo/rbetl/backend/models"
	"github.com/shokudo/rbetl/backend/services"
)

// RunCounter reports the production table size for the status endpoint.
type RunCounter interface {
	CountRows(ctx context.Context) (int64, error)
}

// RunHistory exposes the latest finalized run.
type RunHistory interface {
	GetLatestRun(ctx context.Context) (*models.Run, error)
}

// ETLHandler serves the run-trigger, backfill and status endpoints.
type ETLHandler struct {
	etl      *services.ETLService
	backfill *services.BackfillService
	counter  RunCounter
	history  RunHistory
}

func NewETLHandler(etl *services.ETLService, backfill *services.BackfillService, counter RunCounter, history RunHistory) *ETLHandler {
	return &ETLHandler{etl: etl, backfill: backfill, counter: counter, history: history}
}

// TriggerRun handles POST /api/etl/run. The run executes in the background;
// the response carries the run id the caller can poll the status endpoint
// with. A second trigger while a run is in flight gets a 409.
func (h *ETLHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondWithError(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
		return
	}

	runID := services.NewRunID()
	go func() {
		// The run must outlive the HTTP request that triggered it.
		if _, err := h.etl.Run(context.Background(), runID); err != nil {
			if errors.Is(err, services.ErrRunInProgress) {
				log.Printf("WARN: Run %s not started, another run is in progress", runID)
				return
			}
			log.Printf("ERROR: Background run %s failed: %v", runID, err)
		}
	}()

	respondWithJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": "accepted",
	})
}

type backfillPayload struct {
	ObjectPath string `json:"object_path,omitempty"`
	Filename   string `json:"filename,omitempty"`
	CSV        string `json:"csv,omitempty"`
}

// TriggerBackfill handles POST /api/admin/backfill. The body names either an
// existing object path or inline CSV content; the backfill runs synchronously
// because the operator is waiting on the merge counts.
func (h *ETLHandler) TriggerBackfill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondWithError(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
		return
	}

	var payload backfillPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	req := services.BackfillRequest{
		ObjectPath: payload.ObjectPath,
		Filename:   payload.Filename,
	}
	if payload.CSV != "" {
		req.Data = []byte(payload.CSV)
	}

	result, err := h.backfill.Run(r.Context(), req)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Backfill failed: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// Status handles GET /api/status: production row count plus the latest
// finalized run summary.
func (h *ETLHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}

	count, err := h.counter.CountRows(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to count production rows: "+err.Error())
		return
	}
	latest, err := h.history.GetLatestRun(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load latest run: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"production_rows": count,
		"latest_run":      latest,
	})
}
