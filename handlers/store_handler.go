// backend/handlers/store_handler.go
package handlers

import (
	"net/http"

	"github.com/shokudo/rbetl/backend/models"
	"github.com/shokudo/rbetl/backend/services"
)

// StoreHandler exposes the store master, with credentials masked.
type StoreHandler struct {
	directory services.StoreDirectory
}

func NewStoreHandler(directory services.StoreDirectory) *StoreHandler {
	return &StoreHandler{directory: directory}
}

// ListStores handles GET /api/stores.
func (h *StoreHandler) ListStores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}

	stores, err := h.directory.ListActiveStores(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load store master: "+err.Error())
		return
	}

	masked := make([]models.StoreConfig, 0, len(stores))
	for _, s := range stores {
		masked = append(masked, s.Masked())
	}
	respondWithJSON(w, http.StatusOK, masked)
}
