package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/quantopian/pgcontents/internal/domain"
	"github.com/quantopian/pgcontents/internal/httputil"
)

// handleError converts domain errors to HTTP responses
func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNoSuchFile),
		errors.Is(err, domain.ErrNoSuchDirectory),
		errors.Is(err, domain.ErrNoSuchCheckpoint),
		errors.Is(err, domain.ErrPathOutsideRoot):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrFileExists),
		errors.Is(err, domain.ErrDirectoryExists):
		httputil.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrDirectoryNotEmpty),
		errors.Is(err, domain.ErrRenameRoot),
		errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrFileTooLarge):
		httputil.RespondError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, domain.ErrCorruptedFile):
		httputil.RespondError(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, "unauthorized")
	default:
		slog.Error("unhandled error", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}
