package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/navikt/appsec-orgbot/internal/ignorable"
)

const testSecret = "secret"

func sign(body []byte, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func sign256(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestVerify(t *testing.T) {
	body := []byte(`{"action":"opened"}`)

	testCases := []struct {
		name      string
		secret    string
		signature string
		want      bool
	}{
		{"valid sha1", testSecret, sign(body, testSecret), true},
		{"valid sha256", testSecret, sign256(body, testSecret), true},
		{"wrong secret", testSecret, sign(body, "other"), false},
		{"garbage hex", testSecret, "sha1=wrong", false},
		{"missing prefix", testSecret, strings.TrimPrefix(sign(body, testSecret), "sha1="), false},
		{"empty signature", testSecret, "", false},
		{"no secret configured", "", "sha1=wrong", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Verify([]byte(tc.secret), body, tc.signature); got != tc.want {
				t.Errorf("Verify() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVerifyUsesRawBytes(t *testing.T) {
	raw := []byte("{\"action\":  \"opened\"}\n")
	reserialized := []byte(`{"action":"opened"}`)

	if !Verify([]byte(testSecret), raw, sign(raw, testSecret)) {
		t.Fatal("expected raw body to verify")
	}
	if Verify([]byte(testSecret), reserialized, sign(raw, testSecret)) {
		t.Error("re-serialized body must not verify against the raw signature")
	}
}

func TestParseEvent(t *testing.T) {
	testCases := []struct {
		name      string
		eventType string
		body      string
		wantName  Name
		wantOrg   string
		wantRepo  string
	}{
		{
			name:      "event without action",
			eventType: "push",
			body:      `{"ref":"refs/heads/main","repository":{"name":"moderation","owner":{"login":"acme"}}}`,
			wantName:  Push,
			wantOrg:   "acme",
			wantRepo:  "moderation",
		},
		{
			name:      "event with action",
			eventType: "pull_request",
			body:      `{"action":"opened","repository":{"name":"site","owner":{"login":"acme"}}}`,
			wantName:  PullRequestOpened,
			wantOrg:   "acme",
			wantRepo:  "site",
		},
		{
			name:      "organization fallback",
			eventType: "organization",
			body:      `{"action":"member_added","organization":{"login":"acme"}}`,
			wantName:  Name("organization.member_added"),
			wantOrg:   "acme",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := ParseEvent(tc.eventType, []byte(tc.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if event.Name != tc.wantName {
				t.Errorf("Name = %q, want %q", event.Name, tc.wantName)
			}
			if event.Org != tc.wantOrg {
				t.Errorf("Org = %q, want %q", event.Org, tc.wantOrg)
			}
			if event.Repo != tc.wantRepo {
				t.Errorf("Repo = %q, want %q", event.Repo, tc.wantRepo)
			}
		})
	}

	if _, err := ParseEvent("push", []byte(`{invalid json}`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestRouterRejectsUnknownNames(t *testing.T) {
	router := NewRouter(discardLogger())
	noop := func(ctx context.Context, event *Event) error { return nil }

	if err := router.On(Push, "test", noop); err != nil {
		t.Errorf("unexpected error for known name: %v", err)
	}
	if err := router.On(Name("psuh"), "test", noop); err == nil {
		t.Error("expected error for unknown name")
	}
}

func TestRouterDispatchesExactNameOnly(t *testing.T) {
	router := NewRouter(discardLogger())
	var pushes, opened, synced atomic.Int32
	router.On(Push, "a", func(ctx context.Context, event *Event) error { pushes.Add(1); return nil })
	router.On(Push, "b", func(ctx context.Context, event *Event) error { pushes.Add(1); return nil })
	router.On(PullRequestOpened, "c", func(ctx context.Context, event *Event) error { opened.Add(1); return nil })
	router.On(PullRequestSynchronize, "d", func(ctx context.Context, event *Event) error { synced.Add(1); return nil })

	if n := router.Dispatch(context.Background(), &Event{Name: Push}); n != 2 {
		t.Errorf("dispatched to %d listeners, want 2", n)
	}
	if n := router.Dispatch(context.Background(), &Event{Name: Name("pull_request")}); n != 0 {
		t.Errorf("bare pull_request dispatched to %d listeners, want 0", n)
	}
	router.Dispatch(context.Background(), &Event{Name: PullRequestOpened})
	router.Wait()

	if pushes.Load() != 2 || opened.Load() != 1 || synced.Load() != 0 {
		t.Errorf("pushes=%d opened=%d synced=%d", pushes.Load(), opened.Load(), synced.Load())
	}
}

func TestRouterIsolatesListenerFailures(t *testing.T) {
	var logs bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &logs, mu: &mu}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	router := NewRouter(logger)

	var survivor atomic.Bool
	router.On(Push, "panics", func(ctx context.Context, event *Event) error { panic("boom") })
	router.On(Push, "fails", func(ctx context.Context, event *Event) error { return errors.New("network down") })
	router.On(Push, "skips", func(ctx context.Context, event *Event) error {
		return fmt.Errorf("block-users: %w", ignorable.ErrWrongRepo)
	})
	router.On(Push, "survives", func(ctx context.Context, event *Event) error { survivor.Store(true); return nil })

	router.Dispatch(context.Background(), &Event{Name: Push})
	router.Wait()

	if !survivor.Load() {
		t.Error("expected the healthy listener to run")
	}

	mu.Lock()
	output := logs.String()
	mu.Unlock()
	if !strings.Contains(output, "level=ERROR msg=\"Listener panicked\"") {
		t.Errorf("expected panic to be logged at error level:\n%s", output)
	}
	if !strings.Contains(output, "level=ERROR msg=\"Listener failed\"") {
		t.Errorf("expected failure to be logged at error level:\n%s", output)
	}
	if !strings.Contains(output, "level=DEBUG msg=\"Listener skipped event\"") {
		t.Errorf("expected ignorable condition at debug level:\n%s", output)
	}
}

type lockedWriter struct {
	w  io.Writer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func newTestServer(secret string) (http.Handler, *Router, *atomic.Int32) {
	router := NewRouter(discardLogger())
	var calls atomic.Int32
	router.On(Push, "test", func(ctx context.Context, event *Event) error {
		calls.Add(1)
		return errors.New("listener errors never reach the response")
	})
	handler := NewHandler(HandlerConfig{
		Path:   "/webhook",
		Secret: []byte(secret),
		Router: router,
		Logger: discardLogger(),
	})
	return handler, router, &calls
}

func TestHandler(t *testing.T) {
	validBody := []byte(`{"ref":"refs/heads/main","repository":{"name":"r","owner":{"login":"o"}}}`)
	invalidBody := []byte(`{invalid json}`)

	testCases := []struct {
		name       string
		method     string
		path       string
		headers    map[string]string
		body       []byte
		wantStatus int
		wantReason string
		wantCalls  int32
	}{
		{
			name:       "wrong path",
			method:     http.MethodPost,
			path:       "/other",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "wrong method",
			method:     http.MethodGet,
			path:       "/webhook",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "missing event header",
			method:     http.MethodPost,
			path:       "/webhook",
			headers:    map[string]string{"X-Hub-Signature": sign(validBody, testSecret)},
			body:       validBody,
			wantStatus: http.StatusBadRequest,
			wantReason: "Missing x-github-event Header",
		},
		{
			name:       "missing signature header",
			method:     http.MethodPost,
			path:       "/webhook",
			headers:    map[string]string{"X-GitHub-Event": "push"},
			body:       validBody,
			wantStatus: http.StatusBadRequest,
			wantReason: "Missing x-hub-signature Header",
		},
		{
			name:   "signature mismatch",
			method: http.MethodPost,
			path:   "/webhook",
			headers: map[string]string{
				"X-GitHub-Event":  "push",
				"X-Hub-Signature": "sha1=0000000000000000000000000000000000000000",
			},
			body:       validBody,
			wantStatus: http.StatusBadRequest,
			wantReason: "Signature mismatch",
		},
		{
			name:   "invalid JSON",
			method: http.MethodPost,
			path:   "/webhook",
			headers: map[string]string{
				"X-GitHub-Event":  "push",
				"X-Hub-Signature": sign(invalidBody, testSecret),
			},
			body:       invalidBody,
			wantStatus: http.StatusBadRequest,
			wantReason: "Invalid JSON",
		},
		{
			name:   "valid sha1 delivery",
			method: http.MethodPost,
			path:   "/webhook",
			headers: map[string]string{
				"X-GitHub-Event":  "push",
				"X-Hub-Signature": sign(validBody, testSecret),
			},
			body:       validBody,
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
		{
			name:   "valid sha256 delivery",
			method: http.MethodPost,
			path:   "/webhook",
			headers: map[string]string{
				"X-GitHub-Event":      "push",
				"X-Hub-Signature-256": sign256(validBody, testSecret),
			},
			body:       validBody,
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
		{
			name:   "unrouted event still succeeds",
			method: http.MethodPost,
			path:   "/webhook",
			headers: map[string]string{
				"X-GitHub-Event":  "ping",
				"X-Hub-Signature": sign(validBody, testSecret),
			},
			body:       validBody,
			wantStatus: http.StatusOK,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler, router, calls := newTestServer(testSecret)

			req := httptest.NewRequest(tc.method, tc.path, bytes.NewReader(tc.body))
			for key, value := range tc.headers {
				req.Header.Set(key, value)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)
			router.Wait()

			if rr.Code != tc.wantStatus {
				t.Errorf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			if tc.wantReason != "" && strings.TrimSpace(rr.Body.String()) != tc.wantReason {
				t.Errorf("expected reason %q, got %q", tc.wantReason, rr.Body.String())
			}
			if calls.Load() != tc.wantCalls {
				t.Errorf("expected %d listener calls, got %d", tc.wantCalls, calls.Load())
			}
		})
	}
}

func TestHandlerWithoutSecretAcceptsAnySignature(t *testing.T) {
	handler, router, calls := newTestServer("")
	body := []byte(`{"repository":{"name":"r","owner":{"login":"o"}}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature", "sha1=anything")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	router.Wait()

	if rr.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if calls.Load() != 1 {
		t.Errorf("expected listener to run once, got %d", calls.Load())
	}
}

func TestHandlerLogsAcceptedRequests(t *testing.T) {
	var logs bytes.Buffer
	router := NewRouter(discardLogger())
	handler := NewHandler(HandlerConfig{
		Path:   "/webhook",
		Secret: []byte(testSecret),
		Router: router,
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
	})
	body := []byte(`{"zen":"Keep it logically awesome."}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "ping")
	req.Header.Set("X-Hub-Signature", sign(body, testSecret))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	router.Wait()

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	for _, want := range []string{"method=POST", "path=/webhook", "status=200", "event=ping"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("log %q does not contain %q", logs.String(), want)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	handler, _, _ := newTestServer(testSecret)

	for _, path := range []string{"/isalive", "/isready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusOK, rr.Code)
		}
	}
}

func TestRouterWildcard(t *testing.T) {
	router := NewRouter(discardLogger())
	var seen sync.Map
	router.On(Any, "audit", func(ctx context.Context, event *Event) error {
		seen.Store(event.Name, true)
		return nil
	})

	router.Dispatch(context.Background(), &Event{Name: Push})
	router.Dispatch(context.Background(), &Event{Name: Name("member.added")})
	router.Wait()

	for _, name := range []Name{Push, Name("member.added")} {
		if _, ok := seen.Load(name); !ok {
			t.Errorf("wildcard listener did not see %s", name)
		}
	}
}
