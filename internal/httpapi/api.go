// Package httpapi is the thin HTTP surface over the security core: login,
// logout, session check, health and metrics, plus a small JWT-guarded ops
// area.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"medguard.org/internal/auth"
	"medguard.org/internal/health"
	"medguard.org/internal/obs"
)

const (
	maxBodyBytes    = 64 << 10
	loginRateBurst  = 10
	loginRatePerSec = 5
)

// ReadyProbe is the readiness check, a database ping when one is
// configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	evaluator  *health.Evaluator
	metrics    *obs.Registry
	readyProbe ReadyProbe
	version    string
}

// New wires routes. The login endpoint carries its own per-IP rate limit.
func New(svc *auth.Service, evaluator *health.Evaluator, metrics *obs.Registry, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		evaluator:  evaluator,
		metrics:    metrics,
		readyProbe: rp,
		version:    version,
	}

	a.mux.Handle("/v1/auth/login", RateLimit(http.HandlerFunc(a.handleLogin), loginRateBurst, loginRatePerSec))
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/session", a.handleSession)

	a.mux.HandleFunc("/v1/admin/token", a.handleAdminToken)
	a.mux.HandleFunc("/v1/admin/audit-stats", a.handleAuditStats)

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", metrics.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, maxBodyBytes)
	h = SecurityHeaders(h)
	h = Logging(a.metrics)(h)
	h = RequestID(h)
	return h
}

// Healthz serves the full evaluator snapshot, 503 when overall DOWN.
func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	st := a.evaluator.Check(r.Context())
	code := http.StatusOK
	if st.Overall != health.StateUp {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

// Ready is the cheap readiness probe.
func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ready",
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
