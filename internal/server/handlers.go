package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ecomstack/shelfsort/internal/common"
	"github.com/ecomstack/shelfsort/internal/model"
	"github.com/ecomstack/shelfsort/internal/service"
)

const defaultListLimit = 50

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	byStatus, err := s.store.CountEntriesByStatus(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	byLevel, err := s.store.CountNodesByLevel(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	suggestions, err := s.store.ListSuggestions(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	ready, err := s.store.GetReadySuggestions(ctx, s.cfg.MinReadyCount)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	stats := service.QueueStats{
		ByStatus:         byStatus,
		HierarchyByLevel: byLevel,
		Suggestions:      len(suggestions),
		ReadySuggestions: len(ready),
	}
	for _, n := range byStatus {
		stats.TotalQueued += n
	}
	for _, n := range byLevel {
		stats.TotalCollections += n
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"queue": map[string]any{
			"total":     stats.TotalQueued,
			"by_status": byStatus,
		},
		"hierarchy": map[string]any{
			"total":    stats.TotalCollections,
			"by_level": byLevel,
		},
		"suggestions": map[string]any{
			"total": stats.Suggestions,
			"ready": stats.ReadySuggestions,
		},
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	status := model.QueueStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.StatusProcessed
	}
	switch status {
	case model.StatusPending, model.StatusProcessed, model.StatusError:
	default:
		s.respondError(w, http.StatusBadRequest, errors.New("status must be pending, processed, or error"))
		return
	}

	limit := queryInt(r, "limit", defaultListLimit)
	entries, err := s.store.GetRecentEntries(r.Context(), status, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	items := make([]queueItemJSON, len(entries))
	for i, e := range entries {
		items[i] = newQueueItemJSON(e)
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"count":   len(items),
		"entries": items,
	})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		records []model.SuggestionRecord
		err     error
	)
	if r.URL.Query().Get("ready") == "true" {
		records, err = s.store.GetReadySuggestions(ctx, s.cfg.MinReadyCount)
	} else {
		records, err = s.store.ListSuggestions(ctx)
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	items := make([]suggestionJSON, len(records))
	for i, rec := range records {
		items[i] = newSuggestionJSON(rec)
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"count":       len(items),
		"suggestions": items,
	})
}

// handleSuggestionReview returns a handler that moves a suggestion into
// its approved or rejected terminal state.
func (s *Server) handleSuggestionReview(approve bool) http.HandlerFunc {
	status := model.SuggestionRejected
	if approve {
		status = model.SuggestionApproved
	}

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, errors.New("suggestion id must be an integer"))
			return
		}

		if err := s.store.UpdateSuggestionStatus(r.Context(), id, status); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				s.respondError(w, http.StatusNotFound, err)
				return
			}
			s.respondError(w, http.StatusInternalServerError, err)
			return
		}

		s.logger.Info("suggestion reviewed", "id", id, "status", status)
		s.respondJSON(w, http.StatusOK, map[string]any{
			"id":     id,
			"status": status,
		})
	}
}

func (s *Server) handleResetErrors(w http.ResponseWriter, r *http.Request) {
	reset, err := s.store.ResetErrorsToPending(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	s.logger.Info("errored entries reset", "count", reset)
	s.respondJSON(w, http.StatusOK, map[string]any{"reset": reset})
}

func (s *Server) handleJobSync(w http.ResponseWriter, r *http.Request) {
	count, err := s.pipeline.SyncHierarchy(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"collections": count})
}

func (s *Server) handleJobScan(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-s.cfg.ScanWindow)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, errors.New("since must be RFC 3339"))
			return
		}
		since = parsed
	}

	queued, err := s.pipeline.ScanNewProducts(r.Context(), since)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"queued": queued})
}

func (s *Server) handleJobDrain(w http.ResponseWriter, r *http.Request) {
	processed, err := s.pipeline.DrainQueue(r.Context(), queryInt(r, "batch", 0))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"processed": processed})
}

func (s *Server) handleJobApply(w http.ResponseWriter, r *http.Request) {
	applied, err := s.pipeline.ApplyAssignments(r.Context(), queryInt(r, "limit", defaultListLimit))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"applied": applied})
}

type queueItemJSON struct {
	ProductID    string                   `json:"product_id"`
	Title        string                   `json:"title"`
	Status       model.QueueStatus        `json:"status"`
	RetryCount   int                      `json:"retry_count"`
	Applied      bool                     `json:"applied"`
	ErrorMessage string                   `json:"error_message,omitempty"`
	Assigned     []model.AssignedCategory `json:"assigned,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	ProcessedAt  *time.Time               `json:"processed_at,omitempty"`
}

func newQueueItemJSON(e model.QueueEntry) queueItemJSON {
	return queueItemJSON{
		ProductID:    e.ProductID,
		Title:        e.Title,
		Status:       e.Status,
		RetryCount:   e.RetryCount,
		Applied:      e.Applied,
		ErrorMessage: e.ErrorMessage,
		Assigned:     e.Assigned,
		CreatedAt:    e.CreatedAt,
		ProcessedAt:  e.ProcessedAt,
	}
}

type suggestionJSON struct {
	ID               int64                  `json:"id"`
	SuggestedName    string                 `json:"suggested_name"`
	ParentCollection string                 `json:"parent_collection"`
	Status           model.SuggestionStatus `json:"status"`
	ProductCount     int                    `json:"product_count"`
	ProductIDs       []string               `json:"product_ids"`
	CreatedAt        time.Time              `json:"created_at"`
}

func newSuggestionJSON(rec model.SuggestionRecord) suggestionJSON {
	return suggestionJSON{
		ID:               rec.ID,
		SuggestedName:    rec.SuggestedName,
		ParentCollection: rec.ParentCollection,
		Status:           rec.Status,
		ProductCount:     rec.ProductCount,
		ProductIDs:       rec.ProductIDs,
		CreatedAt:        rec.CreatedAt,
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	s.respondJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
