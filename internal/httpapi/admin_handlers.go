package httpapi

import (
	"net/http"
	"strings"
	"time"

	"medguard.org/internal/auth"
	"medguard.org/internal/obs"
)

type adminTokenRequest struct {
	User  string   `json:"user"`
	Roles []string `json:"roles"`
}

type adminTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

const adminTokenTTL = 15 * time.Minute

func (a *API) handleAdminToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !auth.AdminTokensEnabled() {
		writeError(w, http.StatusServiceUnavailable, "admin tokens are not configured")
		return
	}

	var req adminTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user := strings.TrimSpace(req.User)
	if user == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	token, err := auth.GenerateAdminToken(user, req.Roles, adminTokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, adminTokenResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(adminTokenTTL),
	})
}

func (a *API) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if _, err := auth.ParseAdminToken(token); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid admin token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{
		"audit_errors":          a.metrics.CounterValue("errors", obs.T("component", "audit")),
		"security_errors":       a.metrics.CounterValue("errors", obs.T("component", "security")),
		"authentication_errors": a.metrics.CounterValue("errors", obs.T("component", "authentication")),
		"logins_succeeded":      a.metrics.CounterValue("logins", obs.T("status", "success")),
		"logins_failed":         a.metrics.CounterValue("logins", obs.T("status", "failure")),
	})
}
