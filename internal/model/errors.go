// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, todo, network, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeEmptyTodoText      = "EMPTY_TODO_TEXT"
	ErrCodeTodoNotFound       = "TODO_NOT_FOUND"
	ErrCodeGuestQuotaExceeded = "GUEST_QUOTA_EXCEEDED"
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodeWeakPassword       = "WEAK_PASSWORD"
	ErrCodeEmailInUse         = "EMAIL_IN_USE"
	ErrCodeInvalidCredential  = "INVALID_CREDENTIAL"
	ErrCodeAccountExists      = "ACCOUNT_EXISTS_WITH_DIFFERENT_CREDENTIAL"
	ErrCodeGuestNotAllowed    = "GUEST_NOT_ALLOWED"
	ErrCodeOffline            = "OFFLINE"
	ErrCodeRemoteAPIError     = "REMOTE_API_ERROR"
	ErrCodeEmptySearchQuery   = "EMPTY_SEARCH_QUERY"
	ErrCodeMigrationFailed    = "MIGRATION_FAILED"
)

// NewEmptyTodoTextError は空のTodo本文エラーを生成する。
func NewEmptyTodoTextError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyTodoText,
		Message:  "Todoの本文が空です。",
		Category: "validation",
		Action:   "本文を入力してから追加してください。",
	}
}

// NewTodoNotFoundError はTodo未検出エラーを生成する。
func NewTodoNotFoundError(todoID string) *APIError {
	return &APIError{
		Code:     ErrCodeTodoNotFound,
		Message:  fmt.Sprintf("指定されたTodoが見つかりません: %s", todoID),
		Category: "todo",
		Action:   "一覧を再読み込みしてからやり直してください。",
	}
}

// NewGuestQuotaExceededError はゲストの作成上限エラーを生成する。
func NewGuestQuotaExceededError(limit int) *APIError {
	return &APIError{
		Code:     ErrCodeGuestQuotaExceeded,
		Message:  fmt.Sprintf("ゲストユーザーが作成できるTodoは%d件までです。", limit),
		Category: "todo",
		Action:   "ログインまたはサインアップすると上限なしで作成できます。",
	}
}

// NewInvalidEmailError は無効なメールアドレスエラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "メールアドレスの形式が正しくありません。",
		Category: "auth",
		Action:   "正しいメールアドレスを入力してください。",
	}
}

// NewWeakPasswordError は弱いパスワードエラーを生成する。
func NewWeakPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  "パスワードは6文字以上で設定してください。",
		Category: "auth",
		Action:   "より長いパスワードを入力してください。",
	}
}

// NewEmailInUseError はメールアドレス重複エラーを生成する。
func NewEmailInUseError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailInUse,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "サインインするか、別のメールアドレスを使用してください。",
	}
}

// NewInvalidCredentialError は認証情報不一致エラーを生成する。
// ユーザー未登録とパスワード不一致は意図的に区別しない。
func NewInvalidCredentialError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredential,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認してください。未登録の場合はサインアップしてください。",
	}
}

// NewAccountExistsError は別プロバイダー登録済みエラーを生成する。
func NewAccountExistsError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountExists,
		Message:  fmt.Sprintf("このメールアドレスは別のログイン方法で登録されています: %s", email),
		Category: "auth",
		Action:   "最初に登録したログイン方法でサインインしてください。",
	}
}

// NewGuestNotAllowedError はゲスト利用不可エラーを生成する。
func NewGuestNotAllowedError() *APIError {
	return &APIError{
		Code:     ErrCodeGuestNotAllowed,
		Message:  "この機能はゲストユーザーでは利用できません。",
		Category: "auth",
		Action:   "ログインまたはサインアップしてください。",
	}
}

// NewOfflineError はオフライン検出エラーを生成する。
func NewOfflineError() *APIError {
	return &APIError{
		Code:     ErrCodeOffline,
		Message:  "外部APIに接続できません。ネットワーク接続を確認してください。",
		Category: "network",
		Action:   "接続状態を確認してから再度お試しください。",
	}
}

// NewRemoteAPIError は外部APIエラーを生成する。
func NewRemoteAPIError(api string, status int) *APIError {
	return &APIError{
		Code:     ErrCodeRemoteAPIError,
		Message:  fmt.Sprintf("%s がステータス %d を返しました。", api, status),
		Category: "network",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewEmptySearchQueryError は空の検索クエリエラーを生成する。
func NewEmptySearchQueryError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptySearchQuery,
		Message:  "検索クエリが空です。",
		Category: "validation",
		Action:   "検索キーワードを入力してください。",
	}
}

// NewMigrationFailedError はTodo所有権移行の失敗エラーを生成する。
// 移行はレコード単位で冪等のため、再実行で残りが完了する。
func NewMigrationFailedError(migrated, remaining int) *APIError {
	return &APIError{
		Code:     ErrCodeMigrationFailed,
		Message:  fmt.Sprintf("ゲストTodoの引き継ぎが途中で失敗しました（完了: %d件、未完了: %d件）。", migrated, remaining),
		Category: "system",
		Action:   "サインインは完了しています。残りのTodoは自動的に再試行されます。",
	}
}
