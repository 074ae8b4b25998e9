// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/todoman/internal/model"
)

// TodoRepository はTodoデータの永続化インターフェース。
// ストア自体は所有者を意識せず、所有者によるフィルタは利用側で行う
// （ストアのスキーマを単純に保つための意図的な設計。Todo一覧の規模では
// 読み取りごとのO(n)フィルタで十分）。
type TodoRepository interface {
	// Create は新規Todoを作成する。IDとSeqはストアが採番し、再利用しない。
	Create(ctx context.Context, todo *model.Todo) error

	// List は全Todoを挿入順で返す。
	// 書き込み途中のレコードが観測されないスナップショットを保証する。
	List(ctx context.Context) ([]*model.Todo, error)

	// Update は指定IDのTodoにpatchをマージする。nilフィールドは変更しない。
	// 対象が存在しない場合は*model.APIError（TODO_NOT_FOUND）を返す。
	Update(ctx context.Context, id string, patch model.TodoPatch) error

	// Delete は指定IDのTodoを削除する。
	// 対象が存在しない場合は*model.APIError（TODO_NOT_FOUND）を返す。
	// 存在しないIDの削除をエラーとするのは意図的な設計（黙殺しない）。
	Delete(ctx context.Context, id string) error
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。ゲストユーザーはcredentialなしで作成される。
	Create(ctx context.Context, user *model.User) error

	// CreateWithCredential はユーザーとcredentialを同一トランザクションで作成する。
	CreateWithCredential(ctx context.Context, user *model.User, cred *model.Credential) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するcredentials、sessionsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// CredentialRepository は認証手段紐付けの永続化インターフェース。
type CredentialRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでcredentialを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Credential, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
