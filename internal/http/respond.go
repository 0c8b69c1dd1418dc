package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/fjod/storefront-gateway/internal/backend"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ErrorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Details  any    `json:"details,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondRaw(w http.ResponseWriter, status int, body json.RawMessage) {
	if len(body) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func respondErrorDetails(w http.ResponseWriter, status int, code, message string, details any) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

func respondSessionExpired(w http.ResponseWriter) {
	respondJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:    "session expired, please log in again",
		Code:     "session_expired",
		Redirect: "/login",
	})
}

// handleBackendError maps a failed upstream call onto the gateway's answer.
func handleBackendError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *backend.APIError

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		respondError(w, http.StatusGatewayTimeout, "timeout", "backend did not answer in time")
	case errors.Is(err, backend.ErrUnavailable):
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("backend unavailable")
		respondError(w, http.StatusBadGateway, "backend_unavailable", "backend is unavailable, try again later")
	case errors.As(err, &apiErr):
		switch apiErr.Status {
		case http.StatusBadRequest:
			var details any
			if len(apiErr.Fields) > 0 {
				details = apiErr.Fields
			}
			respondErrorDetails(w, http.StatusBadRequest, "validation_failed", apiErr.Message, details)
		case http.StatusUnauthorized:
			respondError(w, http.StatusUnauthorized, "unauthenticated", apiErr.Message)
		case http.StatusForbidden:
			respondError(w, http.StatusForbidden, "permission_denied", apiErr.Message)
		case http.StatusNotFound:
			respondError(w, http.StatusNotFound, "not_found", apiErr.Message)
		case http.StatusConflict:
			respondError(w, http.StatusConflict, "conflict", apiErr.Message)
		default:
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("unexpected backend rejection")
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// pathID reads a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
