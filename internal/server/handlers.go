package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/findify/internal/models"
	"github.com/hyperjump/findify/internal/session"
	"github.com/hyperjump/findify/internal/storage"
	"go.uber.org/zap"
)

const (
	defaultArchiveLimit = 20
	maxArchiveLimit     = 100
)

type searchRequest struct {
	Query string `json:"query"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type loadMoreResponse struct {
	Applied bool                `json:"applied"`
	State   models.SessionState `json:"state"`
}

type archiveListResponse struct {
	Transcripts []*models.Transcript `json:"transcripts"`
	Total       int64                `json:"total"`
	Offset      int                  `json:"offset"`
	Limit       int                  `json:"limit"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	c := s.sessions.Create()
	s.logger.Debug("create session request", zap.String("session_id", c.ID()))
	s.respondJSON(w, http.StatusCreated, c.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("close session request", zap.String("session_id", id))
	err := s.sessions.Close(r.Context(), id)
	if errors.Is(err, session.ErrSessionNotFound) {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	resp := map[string]string{"id": id, "status": "closed"}
	if err != nil {
		// The session is gone either way; only the archive write failed.
		resp["archive_error"] = err.Error()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("session_id", c.ID()), zap.String("query", req.Query))
	complete, err := c.StartSearch(req.Query)
	if err != nil {
		s.respondOperationError(w, err)
		return
	}
	s.finish(w, r, c, "search", complete)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("chat request", zap.String("session_id", c.ID()), zap.String("message", req.Message))
	complete, err := c.StartChatMessage(req.Message)
	if err != nil {
		s.respondOperationError(w, err)
		return
	}
	s.finish(w, r, c, "chat", complete)
}

func (s *Server) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	complete, applied, err := c.StartLoadMore()
	if err != nil {
		s.respondOperationError(w, err)
		return
	}
	if !applied {
		s.respondJSON(w, http.StatusOK, loadMoreResponse{Applied: false, State: c.Snapshot()})
		return
	}
	if isAsync(r) {
		s.detach(c.ID(), "load_more", complete)
		s.respondJSON(w, http.StatusAccepted, loadMoreResponse{Applied: true, State: c.Snapshot()})
		return
	}
	if err := complete(r.Context()); err != nil {
		s.respondOperationError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, loadMoreResponse{Applied: true, State: c.Snapshot()})
}

// finish completes a started operation in the request or, with ?async=true,
// detached from it, answering with the loading snapshot.
func (s *Server) finish(w http.ResponseWriter, r *http.Request, c *session.Controller, op string, complete session.Completion) {
	if isAsync(r) {
		s.detach(c.ID(), op, complete)
		s.respondJSON(w, http.StatusAccepted, c.Snapshot())
		return
	}
	if err := complete(r.Context()); err != nil {
		s.respondOperationError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.respondError(w, http.StatusNotImplemented, "archive not enabled")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", defaultArchiveLimit)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit > maxArchiveLimit {
		limit = maxArchiveLimit
	}
	ctx := r.Context()
	transcripts, err := s.archive.ListTranscripts(ctx, offset, limit)
	if err != nil {
		s.logger.Error("list transcripts failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.archive.CountTranscripts(ctx)
	if err != nil {
		s.logger.Error("count transcripts failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if transcripts == nil {
		transcripts = []*models.Transcript{}
	}
	s.respondJSON(w, http.StatusOK, archiveListResponse{
		Transcripts: transcripts,
		Total:       total,
		Offset:      offset,
		Limit:       limit,
	})
}

func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.respondError(w, http.StatusNotImplemented, "archive not enabled")
		return
	}
	id := chi.URLParam(r, "id")
	t, err := s.archive.GetTranscript(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "transcript not found")
		return
	}
	if err != nil {
		s.logger.Error("get transcript failed", zap.String("session_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"sessions": s.sessions.Len(),
	}
	if s.archive != nil {
		count, err := s.archive.CountTranscripts(r.Context())
		if err != nil {
			s.logger.Error("status: count transcripts failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["archived"] = count
	}

	// Add configuration info
	cfg := s.config
	configInfo := map[string]interface{}{
		"page_size":    cfg.Session.PageSize,
		"max_pages":    cfg.Session.MaxPages,
		"latency":      cfg.Session.LatencyOrDefault().String(),
		"max_sessions": cfg.Session.MaxSessions,
		"content_path": cfg.Content.Path,
		"archive":      s.archive != nil,
	}
	if s.archive != nil {
		configInfo["database_path"] = cfg.Storage.DatabasePath
		diskBytes, err := storage.DiskUsageBytes(storage.DatabaseFiles(cfg.Storage.DatabasePath)...)
		if err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

// lookup resolves the {id} session or answers 404.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	id := chi.URLParam(r, "id")
	c, ok := s.sessions.Get(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, session.ErrSessionNotFound.Error())
		return nil, false
	}
	return c, true
}

func (s *Server) respondOperationError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("session operation failed", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrEmptyQuery), errors.Is(err, session.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionClosed):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func isAsync(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("async"))
	return err == nil && v
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
