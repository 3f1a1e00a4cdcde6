// Package handlers contains the HTTP endpoints. Handlers translate between
// the wire format and the service layer; all business rules live below.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/service"
)

type App struct {
	Generations *service.GenerationService
	Logger      infra.Logger
}

func NewApp(generations *service.GenerationService, logger infra.Logger) *App {
	return &App{Generations: generations, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{"error": errCode, "message": message})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// domainError maps service errors onto the wire. Unrecognized errors become
// an opaque 500; details go to the log, not the client.
func (a *App) domainError(w http.ResponseWriter, r *http.Request, err error) {
	var quotaErr *domain.QuotaError
	switch {
	case errors.As(err, &quotaErr):
		a.json(w, http.StatusForbidden, map[string]any{
			"error":   "quota_exceeded",
			"message": "generation limit reached for the current period",
			"usage":   quotaErr.Snapshot,
		})
	case errors.Is(err, domain.ErrInvalidParams):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "generation not found")
	case errors.Is(err, domain.ErrForbidden):
		a.error(w, http.StatusForbidden, "forbidden", "generation belongs to another user")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("handler error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
