package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"medguard.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := a.svc.Authenticate(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, loginResponse{Token: token})
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid credentials format")
	case errors.Is(err, auth.ErrLocked):
		// No unlock time is disclosed beyond the fixed window.
		writeError(w, http.StatusLocked, "too many attempts")
	case errors.Is(err, auth.ErrAuthentication):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		writeError(w, http.StatusInternalServerError, "authentication error")
	}
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	a.svc.Logout(r.Context(), token)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if !a.svc.ValidSession(token) {
		writeError(w, http.StatusUnauthorized, "session expired or unknown")
		return
	}
	a.svc.TouchSession(token)
	w.WriteHeader(http.StatusNoContent)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
