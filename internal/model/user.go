// Package model はドメインモデルを定義する。
package model

import "time"

// 認証プロバイダーのタグ。Identity.Providerに設定される。
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
	ProviderGitHub   = "github"
	ProviderGuest    = "guest"
)

// User はサービス利用ユーザーを表す。
// ゲスト（匿名）ユーザーもusersテーブル上の1レコードとして扱う。
type User struct {
	ID        string
	Email     string
	Name      string
	PhotoURL  string
	IsGuest   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Credential は認証手段とユーザーの紐付けを表す。
// 外部IdP（Google, GitHub）とメール+パスワードの両方をこの1テーブルで扱い、
// パスワード認証の場合のみPasswordHashを持つ。ゲストはCredentialを持たない。
type Credential struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string // IdPのsub。パスワード認証ではメールアドレス
	PasswordHash   string // bcryptハッシュ。パスワード認証以外は空
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// Providerは今回のサインインに使われた認証方法を記録する。
type Session struct {
	ID        string
	UserID    string
	Provider  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Identity は認証状態変更の通知で配送される主体のスナップショットを表す。
// 外部の認証層が生成するイミュータブルな値であり、このシステムは
// 連続するスナップショット間の遷移を観測するだけで、変更は行わない。
type Identity struct {
	ID       string // プロバイダー発行の識別子。セッション存続中は不変
	IsGuest  bool
	Email    string
	PhotoURL string
	Provider string // "google", "github", "password", "guest"
}

// Snapshot はユーザーからIdentityスナップショットを生成する。
// providerには今回のサインインに使われた認証方法を渡す。
func (u *User) Snapshot(provider string) *Identity {
	return &Identity{
		ID:       u.ID,
		IsGuest:  u.IsGuest,
		Email:    u.Email,
		PhotoURL: u.PhotoURL,
		Provider: provider,
	}
}
