// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/todoman/internal/auth"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/security"
)

const (
	sessionCookieName = "session_id"
	oauthStateCookie  = "oauth_state"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
// prevSessionIDはリクエスト元クライアントが提示した既存セッションIDで、
// ゲストTodo引き継ぎの系譜を特定するために使う。未提示なら空文字。
type AuthServiceInterface interface {
	GetLoginURL(provider, state string) (string, error)
	SignUpWithEmail(ctx context.Context, prevSessionID, email, password string) (*auth.SignInResult, error)
	SignInWithEmail(ctx context.Context, prevSessionID, email, password string) (*auth.SignInResult, error)
	HandleOAuthCallback(ctx context.Context, prevSessionID, provider, code string) (*auth.SignInResult, error)
	SignInAsGuest(ctx context.Context, prevSessionID string) (*auth.SignInResult, error)
	SignOut(ctx context.Context, sessionID string) error
	GetCurrentIdentity(ctx context.Context, sessionID string) (*model.Identity, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler は認証関連のHTTPハンドラー。
// メール+パスワード、OAuth（Google/GitHub）、匿名ゲストの3系統を扱う。
type AuthHandler struct {
	service AuthServiceInterface
	codec   *security.SessionCookieCodec
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, codec *security.SessionCookieCodec, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		codec:   codec,
		config:  config,
	}
}

// --- リクエスト・レスポンス型 ---

// emailAuthRequest はメール+パスワード認証のリクエストボディ。
type emailAuthRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// identityResponse は認証済みIdentityのレスポンス。
type identityResponse struct {
	ID       string `json:"id"`
	IsGuest  bool   `json:"is_guest"`
	Email    string `json:"email,omitempty"`
	PhotoURL string `json:"photo_url,omitempty"`
	Provider string `json:"provider"`
}

// signInResponse はサインイン成立のレスポンス。
// migration_warningはゲストTodo引き継ぎが途中失敗した場合のみ含まれる。
type signInResponse struct {
	User             identityResponse  `json:"user"`
	MigrationWarning *apiErrorResponse `json:"migration_warning,omitempty"`
}

func toIdentityResponse(ident *model.Identity) identityResponse {
	return identityResponse{
		ID:       ident.ID,
		IsGuest:  ident.IsGuest,
		Email:    ident.Email,
		PhotoURL: ident.PhotoURL,
		Provider: ident.Provider,
	}
}

// SignUp はメール+パスワードで新規登録する。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req emailAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	result, err := h.service.SignUpWithEmail(r.Context(), h.sessionIDFromRequest(r), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.writeSignInResult(w, result, http.StatusCreated)
}

// SignIn はメール+パスワードでサインインする。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req emailAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	result, err := h.service.SignInWithEmail(r.Context(), h.sessionIDFromRequest(r), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.writeSignInResult(w, result, http.StatusOK)
}

// Guest は匿名ゲストセッションを開始する。
// POST /auth/guest
func (h *AuthHandler) Guest(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.SignInAsGuest(r.Context(), h.sessionIDFromRequest(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.writeSignInResult(w, result, http.StatusCreated)
}

// OAuthLogin はOAuthフローを開始する。
// GET /auth/{provider}/login
func (h *AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	url, err := h.service.GetLoginURL(provider, state)
	if err != nil {
		slog.Warn("oauth login requested for unknown provider",
			slog.String("provider", provider),
		)
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// OAuthCallback はOAuthコールバックを処理する。
// GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("provider", provider),
			slog.String("query_state", state),
		)
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	// 3. 認証処理
	// コールバックリクエストはブラウザ経由で届くため、リダイレクト前の
	// セッションCookie（ゲストの系譜）がここまで運ばれてくる
	result, err := h.service.HandleOAuthCallback(r.Context(), h.sessionIDFromRequest(r), provider, code)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			// 別プロバイダー登録済みなどのドメインエラーはクエリで伝える
			http.Redirect(w, r, h.config.BaseURL+"?auth_error="+apiErr.Code, http.StatusTemporaryRedirect)
			return
		}
		slog.Error("oauth callback failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// 4. セッションCookieを設定（HTTP Only）
	h.setSessionCookie(w, result.Session.ID, h.config.SessionMaxAge)

	// 5. フロントエンドにリダイレクト
	// 移行の途中失敗はログ済み。クライアントは/auth/meで最新状態を取得する
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := h.sessionIDFromRequest(r); sessionID != "" {
		if logoutErr := h.service.SignOut(r.Context(), sessionID); logoutErr != nil {
			slog.Error("failed to sign out", slog.String("error", logoutErr.Error()))
			// サインアウト失敗してもCookieはクリアする
		}
	}

	h.setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のIdentityスナップショットを返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sessionID := h.sessionIDFromRequest(r)
	if sessionID == "" {
		writeUnauthorized(w)
		return
	}

	ident, err := h.service.GetCurrentIdentity(r.Context(), sessionID)
	if err != nil {
		slog.Debug("failed to resolve current identity", slog.String("error", err.Error()))
		writeUnauthorized(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toIdentityResponse(ident))
}

// writeSignInResult はセッションCookieを設定し、サインイン結果をJSONで返す。
func (h *AuthHandler) writeSignInResult(w http.ResponseWriter, result *auth.SignInResult, statusCode int) {
	h.setSessionCookie(w, result.Session.ID, h.config.SessionMaxAge)

	resp := signInResponse{User: toIdentityResponse(result.Identity)}
	if result.MigrationWarning != nil {
		resp.MigrationWarning = &apiErrorResponse{
			Code:     result.MigrationWarning.Code,
			Message:  result.MigrationWarning.Message,
			Category: result.MigrationWarning.Category,
			Action:   result.MigrationWarning.Action,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// setSessionCookie は署名付きセッションCookieを設定する。
// sessionIDが空の場合は削除用の空Cookieを設定する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string, maxAge int) {
	value := ""
	if sessionID != "" {
		encoded, err := h.codec.Encode(sessionID)
		if err != nil {
			slog.Error("failed to encode session cookie", slog.String("error", err.Error()))
			return
		}
		value = encoded
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionIDFromRequest はCookieから署名検証済みのセッションIDを取り出す。
// Cookieが無い・値が空・署名が不正な場合は空文字を返す。
func (h *AuthHandler) sessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	sessionID, err := h.codec.Decode(cookie.Value)
	if err != nil {
		slog.Debug("rejected session cookie", slog.String("error", err.Error()))
		return ""
	}
	return sessionID
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
