// Package auth は認証フロー（メール+パスワード、OAuth、ゲスト）と
// セッション管理を提供する。
// サインイン・サインアウトの成立は必ずIdentity Observerへの通知を
// 経由し、ゲスト引き継ぎの移行が確定した後にセッションを発行する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// minPasswordLength はパスワードの最小文字数。
const minPasswordLength = 6

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	PhotoURL       string
	Provider       string // "google", "github"
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// GoogleとGitHubの両方をこの抽象で扱う。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// IdentityNotifier は認証状態変更の通知先インターフェース。
// identity.Observerの部分集合として定義する。
// prevは通知を発生させたクライアント自身の直前のIdentity（系譜が
// 無ければnil）。返されるエラーは移行の途中失敗を表し、サインイン
// 自体は成立している。
type IdentityNotifier interface {
	OnIdentityChange(ctx context.Context, prev, newIdentity *model.Identity) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge   int           // 登録ユーザーのセッション有効期間（秒）
	GuestSessionTTL time.Duration // ゲストセッションの有効期間
}

// SignInResult はサインイン成立の結果を表す。
// MigrationWarningはゲスト引き継ぎ移行が途中失敗した場合のみ非nil。
// 移行失敗はサインインをブロックしない（残りは自動再試行される）。
type SignInResult struct {
	Session          *model.Session
	Identity         *model.Identity
	MigrationWarning *model.APIError
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	providers   map[string]OAuthProvider
	userRepo    repository.UserRepository
	credRepo    repository.CredentialRepository
	sessionRepo repository.SessionRepository
	notifier    IdentityNotifier
	config      ServiceConfig
}

// NewService はServiceを生成する。
// providersのキーはプロバイダータグ（"google", "github"）。
func NewService(
	providers map[string]OAuthProvider,
	userRepo repository.UserRepository,
	credRepo repository.CredentialRepository,
	sessionRepo repository.SessionRepository,
	notifier IdentityNotifier,
	config ServiceConfig,
) *Service {
	return &Service{
		providers:   providers,
		userRepo:    userRepo,
		credRepo:    credRepo,
		sessionRepo: sessionRepo,
		notifier:    notifier,
		config:      config,
	}
}

// GetLoginURL は指定プロバイダーのOAuth認証URLを生成する。
func (s *Service) GetLoginURL(provider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", fmt.Errorf("unknown oauth provider: %s", provider)
	}
	return p.GetLoginURL(state), nil
}

// SignUpWithEmail はメールアドレスとパスワードで新規ユーザーを登録し、
// サインインを成立させる。
// prevSessionIDはリクエストが持っていた既存セッション（無ければ空文字）。
// そのセッションがゲストのものであれば、このクライアント系譜のゲスト
// Todoが新しいユーザーへ引き継がれる。
// メール形式不正はINVALID_EMAIL、6文字未満のパスワードはWEAK_PASSWORD、
// 登録済みメールはEMAIL_IN_USEを返す。
func (s *Service) SignUpWithEmail(ctx context.Context, prevSessionID, email, password string) (*SignInResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, model.NewInvalidEmailError()
	}
	if len(password) < minPasswordLength {
		return nil, model.NewWeakPasswordError()
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing email: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailInUseError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	cred := &model.Credential{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       model.ProviderPassword,
		ProviderUserID: email,
		PasswordHash:   string(hash),
		CreatedAt:      now,
	}

	if err := s.userRepo.CreateWithCredential(ctx, user, cred); err != nil {
		return nil, fmt.Errorf("failed to create user and credential: %w", err)
	}

	slog.Info("new user signed up",
		slog.String("user_id", user.ID),
		slog.String("provider", model.ProviderPassword),
	)

	return s.finishSignIn(ctx, prevSessionID, user, model.ProviderPassword)
}

// SignInWithEmail はメールアドレスとパスワードでサインインする。
// 未登録メールとパスワード不一致はどちらもINVALID_CREDENTIALを返す。
func (s *Service) SignInWithEmail(ctx context.Context, prevSessionID, email, password string) (*SignInResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	cred, err := s.credRepo.FindByProviderAndProviderUserID(ctx, model.ProviderPassword, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	if cred == nil {
		return nil, model.NewInvalidCredentialError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialError()
	}

	user, err := s.userRepo.FindByID(ctx, cred.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialError()
	}

	slog.Info("user signed in",
		slog.String("user_id", user.ID),
		slog.String("provider", model.ProviderPassword),
	)

	return s.finishSignIn(ctx, prevSessionID, user, model.ProviderPassword)
}

// HandleOAuthCallback はOAuthコールバックを処理し、サインインを成立させる。
// prevSessionIDはOAuthフローを開始したブラウザの既存セッション。
// 未登録ユーザーの場合はusersレコードとcredentialsレコードを同時に自動作成する。
// 同じメールアドレスが別のログイン方法で登録済みの場合は
// ACCOUNT_EXISTS_WITH_DIFFERENT_CREDENTIALを返す。
func (s *Service) HandleOAuthCallback(ctx context.Context, prevSessionID, provider, code string) (*SignInResult, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown oauth provider: %s", provider)
	}

	userInfo, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	cred, err := s.credRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}

	var user *model.User

	if cred != nil {
		// 既存ユーザー: credentialからユーザーを取得
		user, err = s.userRepo.FindByID(ctx, cred.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("credential references missing user: %s", cred.UserID)
		}
		slog.Info("existing user logged in",
			slog.String("user_id", user.ID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		// 同じメールアドレスが別のログイン方法で登録されていないか確認
		if userInfo.Email != "" {
			existing, err := s.userRepo.FindByEmail(ctx, userInfo.Email)
			if err != nil {
				return nil, fmt.Errorf("failed to check existing email: %w", err)
			}
			if existing != nil {
				return nil, model.NewAccountExistsError(userInfo.Email)
			}
		}

		// 新規ユーザー: usersレコードとcredentialsレコードを同時に作成
		now := time.Now()
		user = &model.User{
			ID:        uuid.New().String(),
			Email:     userInfo.Email,
			Name:      userInfo.Name,
			PhotoURL:  userInfo.PhotoURL,
			CreatedAt: now,
			UpdatedAt: now,
		}
		newCred := &model.Credential{
			ID:             uuid.New().String(),
			UserID:         user.ID,
			Provider:       userInfo.Provider,
			ProviderUserID: userInfo.ProviderUserID,
			CreatedAt:      now,
		}

		if err := s.userRepo.CreateWithCredential(ctx, user, newCred); err != nil {
			return nil, fmt.Errorf("failed to create user and credential: %w", err)
		}

		slog.Info("new user created",
			slog.String("user_id", user.ID),
			slog.String("provider", userInfo.Provider),
		)
	}

	return s.finishSignIn(ctx, prevSessionID, user, userInfo.Provider)
}

// SignInAsGuest は匿名ゲストセッションを開始する。
// ゲストはcredentialを持たないusersレコードとして作成される。
func (s *Service) SignInAsGuest(ctx context.Context, prevSessionID string) (*SignInResult, error) {
	now := time.Now()
	user := &model.User{
		ID:        uuid.New().String(),
		IsGuest:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create guest user: %w", err)
	}

	slog.Info("guest session started", slog.String("user_id", user.ID))

	return s.finishSignIn(ctx, prevSessionID, user, model.ProviderGuest)
}

// SignOut はセッションを破棄し、サインアウトをObserverへ通知する。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	// 破棄前のIdentityを解決しておく。通知は(直前, nil)の形で届く
	prev := s.resolveLineageIdentity(ctx, sessionID)

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user signed out", slog.String("session_id", sessionID))

	// サインアウトもObserverが観測する状態遷移の1つ
	return s.notifier.OnIdentityChange(ctx, prev, nil)
}

// GetCurrentIdentity はセッションから現在のIdentityスナップショットを取得する。
func (s *Service) GetCurrentIdentity(ctx context.Context, sessionID string) (*model.Identity, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}

	return user.Snapshot(session.Provider), nil
}

// finishSignIn はObserverへ通知してからセッションを発行する。
// 直前のIdentityは呼び出し元クライアント自身のセッション(prevSessionID)
// から解決する。別クライアントのサインインが混ざっても、各通知は
// その系譜の(直前, 新規)ペアだけを運ぶ。
// 通知はゲスト引き継ぎ移行の完了まで返らないため、発行された
// セッションで読み取るどの利用者も移行前の状態を観測しない。
func (s *Service) finishSignIn(ctx context.Context, prevSessionID string, user *model.User, provider string) (*SignInResult, error) {
	ident := user.Snapshot(provider)
	prev := s.resolveLineageIdentity(ctx, prevSessionID)

	var warning *model.APIError
	if err := s.notifier.OnIdentityChange(ctx, prev, ident); err != nil {
		// 移行の途中失敗。サインインは成立させ、警告として表面化する
		if apiErr, ok := err.(*model.APIError); ok {
			warning = apiErr
		} else {
			warning = model.NewMigrationFailedError(0, -1)
		}
		slog.Warn("guest todo migration did not fully complete",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	// ゲストから登録ユーザーへの昇格時、旧ゲストセッションは用済みになる。
	// 失効は移行の成否に影響しないためベストエフォートでよい
	if prev != nil && prev.IsGuest && !user.IsGuest {
		if err := s.sessionRepo.DeleteByID(ctx, prevSessionID); err != nil {
			slog.Warn("failed to revoke superseded guest session",
				slog.String("session_id", prevSessionID),
				slog.String("error", err.Error()),
			)
		}
	}

	session, err := s.createSession(ctx, user, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &SignInResult{
		Session:          session,
		Identity:         ident,
		MigrationWarning: warning,
	}, nil
}

// resolveLineageIdentity はクライアントが提示した既存セッションIDから
// 直前のIdentityを解決する。セッションが無い・期限切れ・不正な場合は
// 「直前の認証なし」としてnilを返す。
func (s *Service) resolveLineageIdentity(ctx context.Context, sessionID string) *model.Identity {
	if sessionID == "" {
		return nil
	}
	ident, err := s.GetCurrentIdentity(ctx, sessionID)
	if err != nil {
		return nil
	}
	return ident
}

// createSession はセッションを作成し永続化する。
// ゲストセッションは登録ユーザーより短いTTLを持つ。
func (s *Service) createSession(ctx context.Context, user *model.User, provider string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	ttl := time.Duration(s.config.SessionMaxAge) * time.Second
	if user.IsGuest {
		ttl = s.config.GuestSessionTTL
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    user.ID,
		Provider:  provider,
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
