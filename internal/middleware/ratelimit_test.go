package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/todoman/internal/model"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_AuthMiddleware_ExceedsLimit(t *testing.T) {
	rl := NewRateLimiter(120, 3)
	defer rl.Stop()

	handler := rl.AuthMiddleware()(okHandler())

	// バースト上限まではすべて許可される
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
		req.RemoteAddr = "203.0.113.1:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%d回目のリクエストが拒否された: %d", i+1, rec.Code)
		}
	}

	// 上限超過で429
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
	req.RemoteAddr = "203.0.113.1:5000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("ステータス = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-Afterヘッダーが設定されるべき")
	}

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if resp.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("エラーコード = %q", resp.Error.Code)
	}
}

// TestRateLimiter_AuthMiddleware_SeparateIPs はIPごとに独立して
// カウントされることを検証する。
func TestRateLimiter_AuthMiddleware_SeparateIPs(t *testing.T) {
	rl := NewRateLimiter(120, 1)
	defer rl.Stop()

	handler := rl.AuthMiddleware()(okHandler())

	// 1つ目のIPが上限に達する
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
	req.RemoteAddr = "203.0.113.1:5000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("最初のリクエストが拒否された: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("同一IPの2回目は429のはず: %d", rec.Code)
	}

	// 別のIPは影響を受けない
	req2 := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
	req2.RemoteAddr = "203.0.113.2:5000"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req2)
	if rec.Code != http.StatusOK {
		t.Errorf("別IPのリクエストが巻き添えで拒否された: %d", rec.Code)
	}
}

// TestRateLimiter_GeneralMiddleware_KeyedByIdentity は一般APIが
// ユーザーID単位でカウントされることを検証する。
func TestRateLimiter_GeneralMiddleware_KeyedByIdentity(t *testing.T) {
	rl := NewRateLimiter(1, 10)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	serveAs := func(userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
		req.RemoteAddr = "203.0.113.1:5000"
		req = req.WithContext(ContextWithIdentity(req.Context(), &model.Identity{ID: userID}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := serveAs("u1"); code != http.StatusOK {
		t.Fatalf("u1の最初のリクエストが拒否された: %d", code)
	}
	if code := serveAs("u1"); code != http.StatusTooManyRequests {
		t.Fatalf("u1の2回目は429のはず: %d", code)
	}
	// 同一IPでもユーザーが違えば独立
	if code := serveAs("u2"); code != http.StatusOK {
		t.Errorf("u2のリクエストが巻き添えで拒否された: %d", code)
	}
}

func TestRateLimiter_GeneralMiddleware_FallbackToIP(t *testing.T) {
	rl := NewRateLimiter(1, 10)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	// Identityなしのリクエストはクライアントキーにフォールバック
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.9:5000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("ステータス = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("ステータス = %d, want 429", rec.Code)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	defer rl.Stop()

	rl.getOrCreate(rl.general, "u1", rl.generalLimit, rl.generalBurst)
	rl.getOrCreate(rl.auth, "203.0.113.1", rl.authLimit, rl.authBurst)

	// アイドル時間0でクリーンアップするとすべて削除される
	rl.cleanup(0)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.general) != 0 || len(rl.auth) != 0 {
		t.Errorf("エントリが削除されていない: general=%d auth=%d", len(rl.general), len(rl.auth))
	}
}
