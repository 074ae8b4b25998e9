package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/security"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	IdentityResolver  middleware.IdentityResolver
	SessionCodec      *security.SessionCookieCodec
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// Todo
	TodoService TodoServiceInterface

	// 外部API
	CatalogClient    CatalogClientInterface
	RepoSearchClient RepoSearchClientInterface

	// メトリクス
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → RateLimit(General)
//
// 認証ルート（/auth/*）はセッションミドルウェアの外に配置し、
// 認証エンドポイント専用のレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.SessionCodec, deps.AuthConfig)
	todoHandler := NewTodoHandler(deps.TodoService)
	remoteHandler := NewRemoteHandler(deps.CatalogClient, deps.RepoSearchClient)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// 認証ルート（専用レート制限付き）
	r.Route("/auth", func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		r.Post("/signup", authHandler.SignUp)
		r.Post("/signin", authHandler.SignIn)
		r.Post("/guest", authHandler.Guest)

		// OAuthフロー（Google / GitHub）
		r.Get("/{provider}/login", authHandler.OAuthLogin)
		r.Get("/{provider}/callback", authHandler.OAuthCallback)

		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.IdentityResolver, deps.SessionCodec))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// Todo管理
		r.Route("/api/todos", func(r chi.Router) {
			r.Get("/", todoHandler.ListTodos)
			r.Post("/", todoHandler.CreateTodo)

			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", todoHandler.PatchTodo)
				r.Delete("/", todoHandler.DeleteTodo)
			})
		})

		// 外部API読み取り
		r.Get("/api/products", remoteHandler.ListProducts)
		r.Get("/api/repos/search", remoteHandler.SearchRepos)
	})

	return r
}
