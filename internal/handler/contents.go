package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/quantopian/pgcontents/internal/httputil"
	"github.com/quantopian/pgcontents/internal/service"
)

// ContentsHandler serves the notebook contents API. Checkpoint routes live
// under the same wildcard ("/api/contents/{path...}" ending in a reserved
// "checkpoints" segment), so one handler owns both services.
type ContentsHandler struct {
	contents    *service.ContentsService
	checkpoints *service.CheckpointsService
	logger      *slog.Logger
}

// NewContentsHandler creates a new contents handler
func NewContentsHandler(
	contents *service.ContentsService,
	checkpoints *service.CheckpointsService,
	logger *slog.Logger,
) *ContentsHandler {
	return &ContentsHandler{
		contents:    contents,
		checkpoints: checkpoints,
		logger:      logger,
	}
}

// HealthCheck reports liveness
// GET /health
func (h *ContentsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now(),
	})
}

// GetContent retrieves a file, notebook or directory listing
// GET /api/contents/{path...}  (query: content=0|1, type, format)
func (h *ContentsHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)
	wild := r.PathValue("path")

	if route, ok := splitCheckpointRoute(wild); ok {
		if route.id != "" {
			httputil.RespondError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.listCheckpoints(w, r, userID, route.path)
		return
	}

	query := r.URL.Query()
	includeContent := query.Get("content") != "0"

	model, err := h.contents.Get(r.Context(), userID, wild, includeContent, query.Get("type"), query.Get("format"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, model)
}

// SaveContent writes a file, notebook or directory at the path
// PUT /api/contents/{path...}  (body: content model)
func (h *ContentsHandler) SaveContent(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)
	wild := r.PathValue("path")

	if _, ok := splitCheckpointRoute(wild); ok {
		httputil.RespondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req service.SaveRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// 201 on first write, 200 on overwrite. Checked outside the save
	// transaction, so only the status code is best-effort.
	status := http.StatusCreated
	if exists, err := h.contents.FileExists(r.Context(), userID, wild); err == nil && exists {
		status = http.StatusOK
	} else if exists, err := h.contents.DirExists(r.Context(), userID, wild); err == nil && exists {
		status = http.StatusOK
	}

	model, err := h.contents.Save(r.Context(), userID, wild, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, status, model)
}

type renameRequest struct {
	Path string `json:"path"`
}

// RenameContent moves a file or directory to a new path
// PATCH /api/contents/{path...}  (body: {"path": newPath})
func (h *ContentsHandler) RenameContent(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)
	wild := r.PathValue("path")

	if _, ok := splitCheckpointRoute(wild); ok {
		httputil.RespondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req renameRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Path == "" {
		httputil.RespondError(w, http.StatusBadRequest, "new path is required")
		return
	}

	model, err := h.contents.Rename(r.Context(), userID, wild, req.Path)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, model)
}

// DeleteContent removes a file or empty directory, or one checkpoint
// DELETE /api/contents/{path...}
// DELETE /api/contents/{path...}/checkpoints/{id}
func (h *ContentsHandler) DeleteContent(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)
	wild := r.PathValue("path")

	if route, ok := splitCheckpointRoute(wild); ok {
		if route.id == "" {
			httputil.RespondError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.deleteCheckpoint(w, r, userID, route)
		return
	}

	if err := h.contents.Delete(r.Context(), userID, wild); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
