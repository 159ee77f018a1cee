package server

import (
	"bytes"
	"dumbo/pkg/config"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(cfg, WithLogger(zerolog.Nop())).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body, token string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %s", err)
	}
	defer resp.Body.Close()
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(content)
}

func TestRenderEndpoint(t *testing.T) {
	srv := newTestServer(t, config.Default())

	tests := []struct {
		input    string
		status   int
		expected string
	}{
		{"Hello {{ print 'x'; }}", http.StatusOK, "Hello x\n"},
		{"{{ for i in (1, 2) do print i . 'x'; endfor; }}", http.StatusOK, "1 x\n2 x\n"},
		{"{{ print missing; }}", http.StatusUnprocessableEntity, "undefined name"},
		{"{{ print 1 }}", http.StatusUnprocessableEntity, "syntax error"},
	}

	for _, tt := range tests {
		resp, body := post(t, srv.URL+"/render", tt.input, "")
		if resp.StatusCode != tt.status {
			t.Errorf("%q: wrong status. want=%d, got=%d (%s)", tt.input, tt.status, resp.StatusCode, body)
			continue
		}
		if tt.status == http.StatusOK && body != tt.expected {
			t.Errorf("%q: wrong body. want=%q, got=%q", tt.input, tt.expected, body)
		}
		if tt.status != http.StatusOK && !strings.Contains(body, tt.expected) {
			t.Errorf("%q: error body should mention %q. got=%q", tt.input, tt.expected, body)
		}
	}
}

func TestRequestsGetAnID(t *testing.T) {
	srv := newTestServer(t, config.Default())

	resp, _ := post(t, srv.URL+"/render", "x", "")
	if _, err := uuid.Parse(resp.Header.Get("X-Request-Id")); err != nil {
		t.Fatalf("missing request id. got=%q", resp.Header.Get("X-Request-Id"))
	}

	id := uuid.NewString()
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/render", strings.NewReader("x"))
	req.Header.Set("X-Request-Id", id)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-Id") != id {
		t.Fatalf("request id not kept. want=%s, got=%s", id, resp.Header.Get("X-Request-Id"))
	}
}

func TestRequestLog(t *testing.T) {
	var buf bytes.Buffer
	handler := New(config.Default(), WithLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/render", strings.NewReader("{{ print 1; }}")))

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("request log is not a single json line: %q", buf.String())
	}
	if entry["message"] != "request" || entry["path"] != "/render" || entry["status"] != float64(200) {
		t.Fatalf("wrong request log. got=%v", entry)
	}
	if entry["request_id"] != rec.Header().Get("X-Request-Id") {
		t.Fatalf("request log has the wrong request id. got=%v", entry["request_id"])
	}
}

func TestServerSeedsEveryRender(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Data = filepath.Join(dir, "data.dumbo")
	cfg.Vars = filepath.Join(dir, "vars.yaml")
	if err := os.WriteFile(cfg.Data, []byte("{{ greeting := 'hi'; }}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.Vars, []byte("name: dumbo\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		_, body := post(t, srv.URL+"/render", "{{ print greeting . name; greeting := 'bye'; }}", "")
		if body != "hi dumbo\n" {
			t.Fatalf("render %d: wrong body. want=%q, got=%q", i, "hi dumbo\n", body)
		}
	}
}

func TestTokenAuth(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Server.JWTSecret = "signing-key"
	cfg.Server.PasswordHash = hash
	srv := newTestServer(t, cfg)

	resp, _ := post(t, srv.URL+"/render", "x", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("render without token allowed. got=%d", resp.StatusCode)
	}
	resp, _ = post(t, srv.URL+"/render", "x", "garbage")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("render with a bad token allowed. got=%d", resp.StatusCode)
	}

	resp, _ = post(t, srv.URL+"/token", `{"password":"wrong"}`, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password accepted. got=%d", resp.StatusCode)
	}
	resp, _ = post(t, srv.URL+"/token", `not json`, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("broken body accepted. got=%d", resp.StatusCode)
	}

	resp, body := post(t, srv.URL+"/token", `{"password":"s3cret"}`, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token request failed. got=%d (%s)", resp.StatusCode, body)
	}
	var issued tokenResponse
	if err := json.Unmarshal([]byte(body), &issued); err != nil {
		t.Fatalf("token response is not json: %q", body)
	}
	left := time.Until(time.Unix(issued.ExpiresAt, 0))
	if left <= 0 || left > time.Hour+time.Minute {
		t.Fatalf("wrong expiry. got=%d", issued.ExpiresAt)
	}

	resp, body = post(t, srv.URL+"/render", "{{ print 'ok'; }}", issued.Token)
	if resp.StatusCode != http.StatusOK || body != "ok\n" {
		t.Fatalf("authorized render failed. got=%d %q", resp.StatusCode, body)
	}
}

func TestTokenDisabledWithoutSecret(t *testing.T) {
	srv := newTestServer(t, config.Default())
	resp, _ := post(t, srv.URL+"/token", `{"password":"x"}`, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404, got=%d", resp.StatusCode)
	}
}

func TestWebSocketRendersEachMessage(t *testing.T) {
	srv := newTestServer(t, config.Default())

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %s", err)
	}
	defer conn.Close()

	tests := []struct {
		input    string
		expected string
	}{
		{"{{ print 1 + 2; }}", "3\n"},
		{"a {{ x := 'b'; print x; }}", "a b\n"},
		{"{{ print x; }}", "error: "},
	}

	for _, tt := range tests {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.input)); err != nil {
			t.Fatalf("write failed: %s", err)
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %s", err)
		}
		if !strings.HasPrefix(string(msg), tt.expected) {
			t.Errorf("%q: wrong reply. want=%q, got=%q", tt.input, tt.expected, msg)
		}
	}
}

func TestWebSocketTokenInQuery(t *testing.T) {
	cfg := config.Default()
	cfg.Server.JWTSecret = "signing-key"
	srv := newTestServer(t, cfg)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated handshake allowed. err=%v", err)
	}

	token, _, err := SignToken(nil, cfg.Server.JWTSecret, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial with token failed: %s", err)
	}
	conn.Close()
}

func TestPasswordHelpers(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyPassword(hash, "hunter2") {
		t.Errorf("correct password rejected")
	}
	if VerifyPassword(hash, "hunter3") {
		t.Errorf("wrong password accepted")
	}
}

func TestTokenHelpers(t *testing.T) {
	token, _, err := SignToken(map[string]interface{}{"sub": "tester"}, "key", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := VerifyToken(token, "key")
	if err != nil {
		t.Fatalf("verify failed: %s", err)
	}
	if claims["sub"] != "tester" {
		t.Fatalf("wrong subject. got=%v", claims["sub"])
	}

	if _, err := VerifyToken(token, "other key"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("token with a wrong key accepted. got=%v", err)
	}

	expired, _, err := SignToken(nil, "key", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := VerifyToken(expired, "key"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expired token accepted. got=%v", err)
	}
}
