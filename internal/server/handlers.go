package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-dash/internal/model"
	"github.com/sells-group/prospect-dash/internal/queue"
	"github.com/sells-group/prospect-dash/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// enhanceRequest is the shared body shape for single and bulk enqueues.
type enhanceRequest struct {
	ProspectID  string   `json:"prospect_id"`
	ProspectIDs []string `json:"prospect_ids"`
	FieldGroups []string `json:"field_groups"`
	ForceRedo   bool     `json:"force_redo"`
	UserID      string   `json:"user_id"`
}

// parseFieldGroups validates the requested groups; an empty request means
// all four.
func parseFieldGroups(names []string) ([]model.FieldGroup, error) {
	groups := make([]model.FieldGroup, 0, len(names))
	for _, name := range names {
		g := model.FieldGroup(name)
		if !model.IsValidFieldGroup(g) {
			return nil, eris.Errorf("unknown field group %q", name)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func (s *Server) handleEnhanceSingle(w http.ResponseWriter, r *http.Request) {
	var req enhanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProspectID == "" {
		writeError(w, http.StatusBadRequest, "prospect_id is required")
		return
	}
	groups, err := parseFieldGroups(req.FieldGroups)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.store.GetProspect(r.Context(), req.ProspectID); err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "prospect not found")
			return
		}
		s.log.Error("prospect lookup failed", zap.String("prospect_id", req.ProspectID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "prospect lookup failed")
		return
	}

	job := model.NewIndividualJob(req.ProspectID, groups, req.ForceRedo, req.UserID)
	position, err := s.queue.Enqueue(job)
	if err != nil {
		switch {
		case eris.Is(err, queue.ErrDuplicateJob):
			writeError(w, http.StatusConflict, "enhancement already queued for this prospect")
		case eris.Is(err, queue.ErrQueueFull):
			writeError(w, http.StatusServiceUnavailable, "enhancement queue is full")
		default:
			s.log.Error("enqueue failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "enqueue failed")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"queue_item_id": job.ID,
		"position":      position,
	})
}

func (s *Server) handleEnhanceBulk(w http.ResponseWriter, r *http.Request) {
	var req enhanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	groups, err := parseFieldGroups(req.FieldGroups)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ids := req.ProspectIDs
	if len(ids) == 0 {
		// No explicit set: sweep the backlog of unenhanced prospects.
		ids, err = s.store.UnenhancedProspectIDs(r.Context(), s.bulkLimit)
		if err != nil {
			s.log.Error("unenhanced lookup failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "prospect lookup failed")
			return
		}
		if len(ids) == 0 {
			writeError(w, http.StatusUnprocessableEntity, "no unenhanced prospects to queue")
			return
		}
	}
	if len(ids) > s.bulkLimit {
		writeError(w, http.StatusBadRequest,
			"bulk batch exceeds limit of "+strconv.Itoa(s.bulkLimit)+" prospects")
		return
	}

	job := model.NewBulkJob(ids, groups, req.ForceRedo, req.UserID)
	position, err := s.queue.Enqueue(job)
	if err != nil {
		switch {
		case eris.Is(err, queue.ErrDuplicateJob):
			writeError(w, http.StatusConflict, "a queued job already covers one of these prospects")
		case eris.Is(err, queue.ErrQueueFull):
			writeError(w, http.StatusServiceUnavailable, "enhancement queue is full")
		default:
			s.log.Error("bulk enqueue failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "enqueue failed")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"queue_item_id":  job.ID,
		"position":       position,
		"prospect_count": len(ids),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "queueItemID")

	job := s.queue.GetJob(id)
	if job == nil {
		writeError(w, http.StatusNotFound, "queue item not found")
		return
	}
	if !s.queue.Cancel(id) {
		// Known job that is processing or already terminal.
		writeError(w, http.StatusConflict, "queue item is no longer cancellable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true, "queue_item_id": id})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.Snapshot())
}

func (s *Server) handleStartWorker(w http.ResponseWriter, _ *http.Request) {
	s.worker.Start()
	writeJSON(w, http.StatusOK, map[string]any{"worker_running": true})
}

func (s *Server) handleStopWorker(w http.ResponseWriter, _ *http.Request) {
	s.worker.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"worker_running": false})
}

func (s *Server) handleListProspects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ProspectFilter{
		SourceCode:     q.Get("source"),
		Agency:         q.Get("agency"),
		NAICSCode:      q.Get("naics"),
		Keyword:        q.Get("q"),
		EnhancedOnly:   q.Get("enhanced") == "true",
		UnenhancedOnly: q.Get("enhanced") == "false",
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}

	prospects, err := s.store.ListProspects(r.Context(), filter)
	if err != nil {
		s.log.Error("list prospects failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list prospects failed")
		return
	}
	if prospects == nil {
		prospects = []model.Prospect{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"prospects": prospects,
		"count":     len(prospects),
	})
}

func (s *Server) handleGetProspect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "prospectID")
	p, err := s.store.GetProspect(r.Context(), id)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "prospect not found")
			return
		}
		s.log.Error("get prospect failed", zap.String("prospect_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get prospect failed")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusNotFound, "no source registry configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": s.registry.All()})
}

// response helpers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
