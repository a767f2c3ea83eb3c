package api

import (
	"net/http"
	"time"

	"github.com/biopeak-sync/internal/service"
	"github.com/biopeak-sync/internal/types"
)

// handleRequestBackfill handles POST /api/backfill - request historical data
func (s *Server) handleRequestBackfill(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "User ID required", nil)
		return
	}

	var req struct {
		PeriodStart  time.Time           `json:"periodStart"`
		PeriodEnd    time.Time           `json:"periodEnd"`
		SummaryTypes []types.SummaryType `json:"summaryTypes"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	results, err := s.intake.RequestBackfill(r.Context(), &service.IntakeRequest{
		UserID:       uid,
		PeriodStart:  req.PeriodStart,
		PeriodEnd:    req.PeriodEnd,
		SummaryTypes: req.SummaryTypes,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"results": results,
	})
}

// handleListJobs handles GET /api/backfill/jobs - the user's job records,
// newest request first
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "User ID required", nil)
		return
	}

	jobs, err := s.jobs.ListByUser(r.Context(), uid)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": jobs,
	})
}

// handleBackfillStatus handles GET /api/backfill/status - aggregated counts
func (s *Server) handleBackfillStatus(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "User ID required", nil)
		return
	}

	jobs, err := s.jobs.ListByUser(r.Context(), uid)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, service.Summarize(jobs))
}

// handleProcess handles POST /api/backfill/process - the processor trigger.
// The external scheduler calls this; it is not user-facing.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"userId"`
		BatchSize int    `json:"batchSize"`
	}
	if r.ContentLength > 0 {
		if err := parseJSONBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
			return
		}
	}

	result, err := s.processor.ProcessPending(r.Context(), req.UserID, req.BatchSize)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleReconcile handles POST /api/backfill/reconcile - runs the completion
// heuristic over stale in_progress jobs
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	reconciled, err := s.reconciler.Run(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"reconciled": reconciled,
	})
}

// handleDisconnect handles DELETE /api/garmin/connection - removes the user's
// stored Garmin credentials
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "User ID required", nil)
		return
	}

	if err := s.connections.Disconnect(r.Context(), uid); err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleHealth handles GET /health - dependency pings
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.pingers))
	for name, pinger := range s.pingers {
		if err := pinger.Ping(r.Context()); err != nil {
			checks[name] = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			checks[name] = "ok"
		}
	}

	respondJSON(w, status, map[string]interface{}{
		"status": http.StatusText(status),
		"checks": checks,
	})
}
