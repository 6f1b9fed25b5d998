package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/quantopian/pgcontents/internal/httputil"
)

// checkpointRoute describes a URL under the reserved checkpoints suffix.
type checkpointRoute struct {
	path string // content path the checkpoints belong to
	id   string // checkpoint id, empty for the collection
}

// splitCheckpointRoute recognizes ".../checkpoints" and
// ".../checkpoints/{id}" tails in the contents wildcard. The segment is
// reserved by the notebook API, so a file literally named "checkpoints" is
// not reachable through these URLs, matching the reference server's routing.
func splitCheckpointRoute(wild string) (checkpointRoute, bool) {
	if wild == "checkpoints" {
		return checkpointRoute{}, true
	}
	if path, ok := strings.CutSuffix(wild, "/checkpoints"); ok {
		return checkpointRoute{path: path}, true
	}
	if idx := strings.LastIndex(wild, "/checkpoints/"); idx >= 0 {
		id := wild[idx+len("/checkpoints/"):]
		if id != "" && !strings.Contains(id, "/") {
			return checkpointRoute{path: wild[:idx], id: id}, true
		}
		return checkpointRoute{}, false
	}
	if id, ok := strings.CutPrefix(wild, "checkpoints/"); ok {
		if id != "" && !strings.Contains(id, "/") {
			return checkpointRoute{id: id}, true
		}
	}
	return checkpointRoute{}, false
}

// PostCheckpoints creates or restores a checkpoint
// POST /api/contents/{path...}/checkpoints        create
// POST /api/contents/{path...}/checkpoints/{id}   restore
func (h *ContentsHandler) PostCheckpoints(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	route, ok := splitCheckpointRoute(r.PathValue("path"))
	if !ok {
		httputil.RespondError(w, http.StatusNotFound, "not found")
		return
	}

	if route.id == "" {
		checkpoint, err := h.checkpoints.Create(r.Context(), userID, route.path)
		if err != nil {
			handleError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusCreated, checkpoint)
		return
	}

	id, err := parseCheckpointID(route.id)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.checkpoints.Restore(r.Context(), userID, route.path, id); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ContentsHandler) listCheckpoints(w http.ResponseWriter, r *http.Request, userID, apiPath string) {
	checkpoints, err := h.checkpoints.List(r.Context(), userID, apiPath)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, checkpoints)
}

func (h *ContentsHandler) deleteCheckpoint(w http.ResponseWriter, r *http.Request, userID string, route checkpointRoute) {
	id, err := parseCheckpointID(route.id)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.checkpoints.Delete(r.Context(), userID, route.path, id); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseCheckpointID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid checkpoint id %q", raw)
	}
	return id, nil
}
