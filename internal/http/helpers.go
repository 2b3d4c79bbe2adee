package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clubledger/internal/core"
)

// apiResponse is the envelope every JSON endpoint uses.
type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data}); err != nil {
		slog.Error("encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"url", r.URL.Path,
			"error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{Success: false, Error: err.Error()})
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict),
		errors.Is(err, core.ErrConflictingPayments),
		errors.Is(err, core.ErrAlreadyClosed):
		return http.StatusConflict
	case errors.Is(err, core.ErrDisabled):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// actorFrom builds the caller context from the trusted identity
// headers set by the auth proxy.
func actorFrom(r *http.Request) (core.Actor, error) {
	actor := core.Actor{
		ClubID: strings.TrimSpace(r.Header.Get("X-Club-ID")),
		UserID: strings.TrimSpace(r.Header.Get("X-User-ID")),
		Role:   strings.TrimSpace(r.Header.Get("X-User-Role")),
	}
	if actor.Role == "" {
		actor.Role = core.RoleMember
	}
	if err := actor.Validate(); err != nil {
		return core.Actor{}, err
	}
	return actor, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Join(core.ErrValidation, fmt.Errorf("invalid %s %q", name, raw))
	}
	return id, nil
}

func pathInt(r *http.Request, name string) (int, error) {
	raw := r.PathValue(name)
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.Join(core.ErrValidation, fmt.Errorf("invalid %s %q", name, raw))
	}
	return n, nil
}

func decodeBody(r *http.Request, into any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return errors.Join(core.ErrValidation, fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

// parseDate parses a date in YYYY-MM-DD form.
func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, errors.Join(core.ErrValidation, fmt.Errorf("invalid date %q", raw))
	}
	return t, nil
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// sanitizeInput trims whitespace and strips control characters.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
