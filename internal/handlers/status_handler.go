package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/landreg/housesync/internal/store"
)

// StatusHandler exposes the control settings so operators can see
// where the sync stands without querying the database.
type StatusHandler struct {
	store store.Store
}

func NewStatusHandler(st store.Store) *StatusHandler {
	return &StatusHandler{store: st}
}

func (h *StatusHandler) RegisterRoutes(router *mux.Router, logger *zap.Logger) {
	router.HandleFunc("/status", h.handleStatus).Methods("GET")
}

func (h *StatusHandler) handleStatus(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	keys := []string{
		store.KeyUpdateHash,
		store.KeyLastUpdated,
		store.KeyLastAggregated,
		store.KeyAggregatingCounties,
		store.KeyRunLease,
	}

	settings := make(map[string]string, len(keys))
	for _, key := range keys {
		value, ok, err := h.store.Setting(req.Context(), key)
		if err != nil {
			http.Error(w, "failed to read settings", http.StatusInternalServerError)
			return
		}
		if ok {
			settings[key] = value
		}
	}

	_ = json.NewEncoder(w).Encode(map[string]interface{}{"settings": settings})
}
