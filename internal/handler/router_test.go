package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
)

// newFullRouter はルーター全体をモック依存で組み立てる。
// identがnilでなければセッションCookie "session-abc" で解決される。
func newFullRouter(t *testing.T, ident *model.Identity) http.Handler {
	t.Helper()

	rl := middleware.NewRateLimiter(120, 10)
	t.Cleanup(rl.Stop)

	authService := &mockAuthService{
		currentFn: func(ctx context.Context, sessionID string) (*model.Identity, error) {
			if ident == nil || sessionID != "session-abc" {
				return nil, errors.New("session not found")
			}
			return ident, nil
		},
	}

	todoService := &mockTodoService{
		listByOwnerFn: func(ctx context.Context, ownerID string) ([]*model.Todo, error) {
			return []*model.Todo{}, nil
		},
	}

	return NewRouter(&RouterDeps{
		IdentityResolver:  authService,
		SessionCodec:      testSessionCodec(),
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		AuthService:       authService,
		AuthConfig:        testAuthConfig(),
		TodoService:       todoService,
		CatalogClient:     &mockCatalogClient{},
		RepoSearchClient:  &mockRepoSearchClient{},
		Gatherer:          prometheus.NewRegistry(),
	})
}

func TestRouter_Health(t *testing.T) {
	router := newFullRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("GET /health ステータス = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("GET /health ボディ = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestRouter_Metrics(t *testing.T) {
	router := newFullRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("GET /metrics ステータス = %d, want 200", rec.Code)
	}
}

// TestRouter_SecurityHeaders は全レスポンスにセキュリティヘッダーが
// 付与されることを検証する。
func TestRouter_SecurityHeaders(t *testing.T) {
	router := newFullRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

func TestRouter_TodosRequireSession(t *testing.T) {
	router := newFullRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("セッションなしの/api/todos ステータス = %d, want 401", rec.Code)
	}
}

func TestRouter_TodosWithSession(t *testing.T) {
	router := newFullRouter(t, &model.Identity{ID: "u1"})

	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	req.AddCookie(signedSessionCookie(t, "session-abc"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("セッション付きの/api/todos ステータス = %d, want 200", rec.Code)
	}
}

// TestRouter_GuestBlockedFromRepoSearch はゲストセッションがミドルウェア
// スタックを通過した上で検索ハンドラーに拒否されることを検証する。
func TestRouter_GuestBlockedFromRepoSearch(t *testing.T) {
	router := newFullRouter(t, &model.Identity{ID: "guest-1", IsGuest: true})

	req := httptest.NewRequest(http.MethodGet, "/api/repos/search?q=golang", nil)
	req.AddCookie(signedSessionCookie(t, "session-abc"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("ゲストの検索 ステータス = %d, want 403", rec.Code)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := newFullRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("未知のルート ステータス = %d, want 404", rec.Code)
	}
}
