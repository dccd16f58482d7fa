package adminhttp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/redlite/redlite/internal/engine"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	root, err := engine.Open(engine.Options{Path: ":memory:", Log: zap.NewNop()})
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { root.Close() })
	return New(root, Options{Dev: true})
}

func doRequest(s *Server, method, path string, body any, cookies []*http.Cookie, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/healthz", nil, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/metrics", nil, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := body["disk_bytes"]; !ok {
		t.Fatalf("expected disk_bytes field, got %v", body)
	}
}

func TestConfigAccessWithoutPasswordIsOpen(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/admin/config", nil, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected open config access with no password set, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestConfigRequiresAuthWhenPasswordSet(t *testing.T) {
	s := newTestServer(t)
	if err := s.root.Config.Set("requirepass", "secret"); err != nil {
		t.Fatalf("set requirepass: %v", err)
	}
	rec := doRequest(s, http.MethodGet, "/admin/config", nil, nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLoginThenConfigSetWithCSRF(t *testing.T) {
	s := newTestServer(t)
	if err := s.root.Config.Set("requirepass", "secret"); err != nil {
		t.Fatalf("set requirepass: %v", err)
	}

	loginRec := doRequest(s, http.MethodPost, "/admin/login", map[string]string{"password": "secret"}, nil, nil)
	if loginRec.Code != http.StatusOK {
		t.Fatalf("expected login to succeed, got %d: %s", loginRec.Code, loginRec.Body.String())
	}
	var loginBody struct {
		CSRF string `json:"csrf"`
	}
	if err := json.Unmarshal(loginRec.Body.Bytes(), &loginBody); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	if loginBody.CSRF == "" {
		t.Fatal("expected a csrf token from login")
	}
	cookies := loginRec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected a session cookie from login")
	}

	getRec := doRequest(s, http.MethodGet, "/admin/config", nil, cookies, nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected config GET to succeed with session cookie, got %d: %s", getRec.Code, getRec.Body.String())
	}

	putRec := doRequest(s, http.MethodPut, "/admin/config", map[string]string{"maxmemory": "1024"}, cookies,
		map[string]string{"X-CSRF-Token": loginBody.CSRF})
	if putRec.Code != http.StatusNoContent {
		t.Fatalf("expected config PUT to succeed with valid CSRF token, got %d: %s", putRec.Code, putRec.Body.String())
	}
	if s.root.Config.MaxMemoryBytes() != 1024 {
		t.Fatalf("expected maxmemory updated via admin API, got %d", s.root.Config.MaxMemoryBytes())
	}
}

func TestConfigSetRejectsMissingCSRF(t *testing.T) {
	s := newTestServer(t)
	if err := s.root.Config.Set("requirepass", "secret"); err != nil {
		t.Fatalf("set requirepass: %v", err)
	}
	loginRec := doRequest(s, http.MethodPost, "/admin/login", map[string]string{"password": "secret"}, nil, nil)
	cookies := loginRec.Result().Cookies()

	putRec := doRequest(s, http.MethodPut, "/admin/config", map[string]string{"maxmemory": "1024"}, cookies, nil)
	if putRec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a CSRF token, got %d: %s", putRec.Code, putRec.Body.String())
	}
}
