package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mihaimyh/goadmit/pkg/admit"
	"github.com/mihaimyh/goadmit/store/memory"
)

func newTestEngine(t *testing.T) *admit.Engine {
	t.Helper()
	engine, err := admit.NewEngine(memory.New(), nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareAdmits(t *testing.T) {
	mw := Middleware(Config{
		Engine:    newTestEngine(t),
		GetUserID: HeaderUserID("X-User-ID"),
	})

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.Header.Set("X-User-ID", "user1")
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMiddlewareUnauthorized(t *testing.T) {
	mw := Middleware(Config{
		Engine:    newTestEngine(t),
		GetUserID: HeaderUserID("X-User-ID"),
	})

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareRateLimited(t *testing.T) {
	engine := newTestEngine(t)
	mw := Middleware(Config{
		Engine:    engine,
		GetUserID: HeaderUserID("X-User-ID"),
	})
	handler := mw(okHandler())

	for i := 0; i < admit.DefaultUserMaxRequests; i++ {
		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		req.Header.Set("X-User-ID", "user1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.Header.Set("X-User-ID", "user1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestMiddlewareInsufficientCredits(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	engine.InitializeCredits(ctx, "user1")
	engine.DebitCredits(ctx, "user1", admit.DefaultInitialCredits)

	mw := Middleware(Config{
		Engine:    engine,
		GetUserID: HeaderUserID("X-User-ID"),
	})

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.Header.Set("X-User-ID", "user1")
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", rec.Code)
	}
}

func TestMiddlewareCustomHandlers(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	for i := 0; i < admit.DefaultUserMaxRequests; i++ {
		engine.ExecuteAction(ctx, "user1", "", admit.ActionConversation)
	}

	called := false
	mw := Middleware(Config{
		Engine:    engine,
		GetUserID: HeaderUserID("X-User-ID"),
		OnRateLimitExceeded: func(w http.ResponseWriter, r *http.Request, result *admit.ActionResult) {
			called = true
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.Header.Set("X-User-ID", "user1")
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	if !called {
		t.Error("expected custom rate limit handler to be called")
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestPathAction(t *testing.T) {
	extract := PathAction(map[string]string{"/images": "image_generation"})

	req := httptest.NewRequest(http.MethodPost, "/images", nil)
	if got := extract(req); got != "image_generation" {
		t.Errorf("action = %q, want image_generation", got)
	}
	req = httptest.NewRequest(http.MethodPost, "/chat", nil)
	if got := extract(req); got != admit.ActionConversation {
		t.Errorf("action = %q, want %q", got, admit.ActionConversation)
	}
}
