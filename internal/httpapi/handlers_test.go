package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"medguard.org/internal/auth"
	"medguard.org/internal/fieldcipher"
	"medguard.org/internal/health"
	"medguard.org/internal/obs"
)

type staticDirectory struct {
	users map[string]*auth.UserRecord
}

func (d *staticDirectory) Lookup(_ context.Context, username string) (*auth.UserRecord, error) {
	if rec, ok := d.users[username]; ok {
		return rec, nil
	}
	return nil, auth.ErrNotFound
}

func newTestAPI(t *testing.T, memUsage func() (uint64, uint64)) *API {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	reg := obs.NewRegistry()
	dir := &staticDirectory{users: map[string]*auth.UserRecord{
		"drhouse": {ID: "42", Username: "drhouse", PasswordHash: string(hash), Role: auth.RoleDoctor},
	}}
	svc := auth.NewService(
		dir,
		auth.NewAttemptTracker(reg, nil),
		auth.NewSessionRegistry(reg, nil),
		fieldcipher.New(reg),
		reg,
	)
	if memUsage == nil {
		memUsage = func() (uint64, uint64) { return 1 << 20, 1 << 30 }
	}
	ev := health.NewEvaluator(nil, reg, health.WithMemoryUsage(memUsage))
	return New(svc, ev, reg, ReadyProbe{}, "test")
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestLoginLogoutFlow(t *testing.T) {
	api := newTestAPI(t, nil)
	h := api.Handler()

	w := doJSON(t, h, http.MethodPost, "/v1/auth/login", `{"username":"drhouse","password":"s3cret"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}
	var res loginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Token) != 43 {
		t.Fatalf("token length = %d", len(res.Token))
	}

	hdr := http.Header{authHeader: []string{bearer + res.Token}}
	if w := doJSON(t, h, http.MethodGet, "/v1/auth/session", "", hdr); w.Code != http.StatusNoContent {
		t.Fatalf("session check status = %d", w.Code)
	}
	if w := doJSON(t, h, http.MethodPost, "/v1/auth/logout", "", hdr); w.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", w.Code)
	}
	if w := doJSON(t, h, http.MethodGet, "/v1/auth/session", "", hdr); w.Code != http.StatusUnauthorized {
		t.Fatalf("session after logout status = %d", w.Code)
	}
}

func TestLoginRejections(t *testing.T) {
	api := newTestAPI(t, nil)
	h := api.Handler()

	if w := doJSON(t, h, http.MethodPost, "/v1/auth/login", `{"username":"drhouse","password":"wrong"}`, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", w.Code)
	}
	if w := doJSON(t, h, http.MethodPost, "/v1/auth/login", `{"username":"x","password":"y"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad username status = %d", w.Code)
	}
	if w := doJSON(t, h, http.MethodGet, "/v1/auth/login", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET login status = %d", w.Code)
	}

	for i := 0; i < 4; i++ {
		doJSON(t, h, http.MethodPost, "/v1/auth/login", `{"username":"drhouse","password":"wrong"}`, nil)
	}
	if w := doJSON(t, h, http.MethodPost, "/v1/auth/login", `{"username":"drhouse","password":"s3cret"}`, nil); w.Code != http.StatusLocked {
		t.Fatalf("locked account status = %d, want 423", w.Code)
	}
}

func TestHealthzReflectsEvaluator(t *testing.T) {
	api := newTestAPI(t, nil)
	h := api.Handler()
	if w := doJSON(t, h, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Fatalf("healthy status = %d", w.Code)
	}

	degraded := newTestAPI(t, func() (uint64, uint64) { return 95, 100 })
	w := doJSON(t, degraded.Handler(), http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d, want 503", w.Code)
	}
	var st health.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Components["memory"] != health.StateDown {
		t.Fatalf("memory component = %v", st.Components["memory"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, nil)
	h := api.Handler()
	doJSON(t, h, http.MethodPost, "/v1/auth/login", `{"username":"drhouse","password":"s3cret"}`, nil)

	w := doJSON(t, h, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "medguard_logins_total") {
		t.Fatal("metrics output missing login counter")
	}
}

func TestAdminSurface(t *testing.T) {
	t.Setenv("MEDGUARD_ADMIN_SECRET", "httpapi-test-secret")
	auth.ResetSecretForTests()
	defer auth.ResetSecretForTests()

	api := newTestAPI(t, nil)
	h := api.Handler()

	w := doJSON(t, h, http.MethodPost, "/v1/admin/token", `{"user":"ops-1","roles":["admin"]}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("token issue status = %d, body %s", w.Code, w.Body.String())
	}
	var res adminTokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if w := doJSON(t, h, http.MethodGet, "/v1/admin/audit-stats", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated stats status = %d", w.Code)
	}
	hdr := http.Header{authHeader: []string{bearer + res.Token}}
	w = doJSON(t, h, http.MethodGet, "/v1/admin/audit-stats", "", hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
	var stats map[string]int64
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if _, ok := stats["logins_failed"]; !ok {
		t.Fatalf("stats missing keys: %v", stats)
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	api := newTestAPI(t, nil)
	w := doJSON(t, api.Handler(), http.MethodGet, "/readyz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("readyz status = %d", w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatal("request id missing")
	}
}
