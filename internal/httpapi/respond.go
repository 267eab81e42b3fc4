package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"biovault.org/internal/auth"
	"biovault.org/internal/authz"
	"biovault.org/internal/donors"
	"biovault.org/internal/obs"
	"biovault.org/internal/recruiting"
	"biovault.org/internal/sponsors"
	"biovault.org/internal/trials"
	"biovault.org/internal/webstore"
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, kind, msg string) {
	writeJSON(w, code, map[string]any{"error": errorBody{
		Code:      kind,
		Message:   msg,
		RequestID: requestIDFrom(r.Context()),
	}})
}

var (
	notFoundErrs = []error{
		auth.ErrNotFound, trials.ErrNotFound, donors.ErrNotFound,
		recruiting.ErrNotFound, sponsors.ErrNotFound, webstore.ErrNotFound,
	}
	invalidErrs = []error{
		auth.ErrInvalidInput, trials.ErrInvalidInput, donors.ErrInvalidInput,
		recruiting.ErrInvalidInput, sponsors.ErrInvalidInput, webstore.ErrInvalidInput,
		webstore.ErrEmptyCart,
	}
	conflictErrs = []error{
		auth.ErrConflict, trials.ErrConflict, donors.ErrConflict,
		recruiting.ErrConflict, sponsors.ErrConflict, webstore.ErrConflict,
		webstore.ErrOutOfStock,
	}
)

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// respondError maps domain errors onto the error taxonomy: 401 for
// missing or bad identity, 403 for denied operations, 404, 400 with the
// offending field in the message, 409 for retryable conflicts.
func (a *API) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var pe *authz.PermissionError
	switch {
	case errors.Is(err, authz.ErrUnauthenticated),
		errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
	case errors.As(err, &pe):
		obs.ObserveDenial(string(pe.Entity), string(pe.Op))
		writeError(w, r, http.StatusForbidden, "permission_denied", pe.Error())
	case isAny(err, notFoundErrs):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case isAny(err, invalidErrs):
		writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
	case isAny(err, conflictErrs):
		writeError(w, r, http.StatusConflict, "conflict", err.Error())
	default:
		a.log.Error("internal error", "path", r.URL.Path, "request_id", requestIDFrom(r.Context()), "err", err)
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

// decodeJSON rejects unknown fields so typos surface as 400s instead of
// silently ignored settings.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeJSON(r, v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
		return false
	}
	return true
}

// actor returns the authenticated actor, or nil for anonymous requests.
func (a *API) actor(r *http.Request) *auth.Actor {
	actor, _ := auth.ActorFromContext(r.Context())
	return actor
}
