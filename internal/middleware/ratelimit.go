package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/todoman/internal/model"
)

// limiterEntry はキーごとのリミッターと最終アクセス時刻を保持する。
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter はユーザー単位・IP単位のレートリミッターを管理する。
// 一般APIはセッションで解決したユーザーID、認証エンドポイントは
// セッション確立前のためクライアントIPをキーにする。
type RateLimiter struct {
	mu      sync.Mutex
	general map[string]*limiterEntry
	auth    map[string]*limiterEntry

	generalLimit rate.Limit
	generalBurst int
	authLimit    rate.Limit
	authBurst    int

	stopCh chan struct{}
}

// NewRateLimiter はレートリミッターを生成する。
// generalPerMinは一般API、authPerMinは認証エンドポイントの
// 1分あたりの許可リクエスト数。
func NewRateLimiter(generalPerMin, authPerMin int) *RateLimiter {
	rl := &RateLimiter{
		general:      make(map[string]*limiterEntry),
		auth:         make(map[string]*limiterEntry),
		generalLimit: rate.Limit(float64(generalPerMin) / 60.0),
		generalBurst: generalPerMin,
		authLimit:    rate.Limit(float64(authPerMin) / 60.0),
		authBurst:    authPerMin,
		stopCh:       make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop はクリーンアップゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// cleanupLoop は一定期間アクセスのないエントリを定期的に削除する。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(30 * time.Minute)
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for key, entry := range rl.general {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.general, key)
		}
	}
	for key, entry := range rl.auth {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.auth, key)
		}
	}
}

func (rl *RateLimiter) getOrCreate(m map[string]*limiterEntry, key string, limit rate.Limit, burst int) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := m[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(limit, burst)}
		m[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// GeneralMiddleware は認証済みAPI向けのレートリミット。
// セッションミドルウェアの後段に配置すること。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, err := IdentityFromContext(r.Context())
			if err != nil {
				// セッション未解決のリクエストはIPでフォールバック
				rl.serveWithKey(next, w, r, rl.general, clientIP(r), rl.generalLimit, rl.generalBurst)
				return
			}
			rl.serveWithKey(next, w, r, rl.general, ident.ID, rl.generalLimit, rl.generalBurst)
		})
	}
}

// AuthMiddleware はサインイン・サインアップなど認証エンドポイント向けの
// 厳しめのレートリミット。クライアントIPをキーにする。
func (rl *RateLimiter) AuthMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rl.serveWithKey(next, w, r, rl.auth, clientIP(r), rl.authLimit, rl.authBurst)
		})
	}
}

func (rl *RateLimiter) serveWithKey(next http.Handler, w http.ResponseWriter, r *http.Request, m map[string]*limiterEntry, key string, limit rate.Limit, burst int) {
	limiter := rl.getOrCreate(m, key, limit, burst)
	if !limiter.Allow() {
		slog.Warn("rate limit exceeded",
			slog.String("key", key),
			slog.String("path", r.URL.Path),
		)
		writeRateLimitResponse(w)
		return
	}
	next.ServeHTTP(w, r)
}

// clientIP はリクエストからクライアントIPを取り出す。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeRateLimitResponse(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "60")
	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "リクエストが多すぎます。しばらく待ってから再度お試しください。",
		Category: "system",
		Action:   "時間をおいてから再度お試しください。",
	})
}
