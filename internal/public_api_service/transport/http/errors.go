package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	digestdomain "github.com/famline/notifications/internal/digest_service/domain"
	notifdomain "github.com/famline/notifications/internal/notification_service/domain"
)

type errorResponseDTO struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponseDTO{Error: message})
}

// mapDomainErrorToHTTPStatus translates pipeline errors into HTTP
// responses. Unknown errors stay opaque 500s.
func mapDomainErrorToHTTPStatus(w http.ResponseWriter, logger *slog.Logger, err error, operation string, resourceID string) {
	if err == nil {
		return
	}
	logEntry := logger.With("operation", operation, "resource_id", resourceID, "error", err)

	switch {
	case errors.Is(err, notifdomain.ErrNotFound) || errors.Is(err, digestdomain.ErrNotFound):
		logEntry.Warn("Resource not found")
		writeError(w, http.StatusNotFound, "Resource not found")
	case errors.Is(err, notifdomain.ErrInvalidTransition) || errors.Is(err, digestdomain.ErrInvalidTransition):
		logEntry.Warn("Conflicting state for operation")
		writeError(w, http.StatusConflict, "Resource is not in a state that allows this operation")
	case errors.Is(err, digestdomain.ErrDuplicateSchedule):
		logEntry.Warn("Duplicate digest schedule")
		writeError(w, http.StatusConflict, "A digest schedule already exists for this recipient and group")
	case errors.Is(err, digestdomain.ErrNoEligibleItems):
		logEntry.Warn("No eligible content for digest")
		writeError(w, http.StatusUnprocessableEntity, "No eligible content items for digest")
	default:
		logEntry.Error("Unhandled internal error")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
