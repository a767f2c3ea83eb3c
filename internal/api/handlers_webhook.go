package api

import (
	"io"
	"net/http"
)

// maxWebhookBytes bounds vendor push payload size
const maxWebhookBytes = 4 << 20

// handleWebhook handles POST /api/garmin/webhook - vendor push delivery.
// Garmin delivers backfilled and live data the same way; both land here.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "User ID required", nil)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Failed to read payload", nil)
		return
	}

	stored, err := s.ingester.Ingest(r.Context(), uid, payload)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"stored": stored,
	})
}
