// Package httpapi exposes the HTTP surface: authentication, booking
// operations, and administrative endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"reserv.org/internal/auth"
	"reserv.org/internal/obs"
	"reserv.org/internal/schedule"
)

// API owns the mux and its dependencies.
type API struct {
	mux        *http.ServeMux
	readyProbe func(ctx context.Context) error
	version    string

	auth     *auth.Service
	schedule *schedule.Service

	tokenTTL   time.Duration
	rateBurst  int
	ratePerSec int
	maxBody    int64
}

// Option customizes an API.
type Option func(*API)

// WithReadyProbe wires the readiness check used by /readyz.
func WithReadyProbe(probe func(ctx context.Context) error) Option {
	return func(a *API) { a.readyProbe = probe }
}

// WithVersion sets the version reported by /v1/info.
func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(a *API) { a.tokenTTL = ttl }
}

// WithRateLimit sets the per-client limiter parameters.
func WithRateLimit(burst, perSec int) Option {
	return func(a *API) {
		a.rateBurst = burst
		a.ratePerSec = perSec
	}
}

// WithMaxBodyBytes caps the request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) { a.maxBody = n }
}

// New assembles the API routes.
func New(authSvc *auth.Service, scheduleSvc *schedule.Service, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		version:    "dev",
		auth:       authSvc,
		schedule:   scheduleSvc,
		tokenTTL:   12 * time.Hour,
		rateBurst:  20,
		ratePerSec: 10,
		maxBody:    1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/auth/permission", a.handlePermission)

	a.mux.HandleFunc("/v1/schedule/booker", a.handleBooker)
	a.mux.HandleFunc("/v1/schedule/bookers", a.handleBookers)
	a.mux.HandleFunc("/v1/schedule/book", a.handleBook)
	a.mux.HandleFunc("/v1/schedule/cancel", a.handleCancel)

	a.mux.HandleFunc("/v1/users", a.handleCreateUser)
	a.mux.HandleFunc("/v1/users/", a.handleUserSubresource)

	a.mux.HandleFunc("/v1/account/name", a.handleAccountName)
	a.mux.HandleFunc("/v1/account/password", a.handleAccountPassword)

	return a
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	if a.readyProbe != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.readyProbe(ctx); err != nil {
			writeError(w, r, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "reserv",
		"version": a.version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error":      msg,
		"request_id": RequestIDFromContext(r.Context()),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// writeServiceError maps auth service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "already exists")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid input")
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, "not authorized")
	default:
		obs.Error("internal error", map[string]any{
			"path":       r.URL.Path,
			"error":      err.Error(),
			"request_id": RequestIDFromContext(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func trimPathPrefix(path, prefix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	return strings.Trim(strings.TrimPrefix(path, prefix), "/"), true
}
