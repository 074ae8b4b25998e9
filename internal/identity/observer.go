// Package identity は認証状態遷移の観測とゲスト引き継ぎの起動を提供する。
// 認証層からの状態変更通知を直列化し、ゲスト→登録の遷移を検出した場合は
// 移行の完了を待ってから新しいIdentityを購読者へ公開する。
package identity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/todoman/internal/model"
)

// Migrator はTodo所有権移行のインターフェース。
// migration.Coordinatorの部分集合として定義する。
type Migrator interface {
	Migrate(ctx context.Context, oldOwnerID, newOwnerID string) error
}

// Subscriber は公開されたIdentityスナップショットを受け取るコールバック。
// サインアウト時はnilが配送される。
type Subscriber func(*model.Identity)

// Observer は認証状態変更通知を観測するコンポーネント。
//
// 「直前のIdentity」はプロセス全体の変数ではなく通知ごとの入力である。
// 複数のクライアントが同時に認証するサーバーでは「プロセス全体で最後に
// 認証した誰か」を直前の状態として扱うと、無関係なクライアント間で
// ゲストのTodoが誤って引き継がれてしまう。そのため呼び出し元（認証層）が
// リクエスト自身のセッション系譜から解決した直前のIdentityを通知に
// 含め、Observerはその系譜内の遷移だけを判定する。
//
// 正しさの核心: 購読者がゲストの旧owner_idを持つレコードが残ったまま
// 登録Identityを現在の状態として観測することはない。そのため
// OnIdentityChangeはミューテックスで直列化され（通知元の単一配送は
// 信用しない）、移行の完了後に初めて公開を行う。
type Observer struct {
	mu          sync.Mutex
	pending     map[string]string // 途中失敗した移行: oldOwnerID → newOwnerID
	migrator    Migrator
	logger      *slog.Logger
	subscribers map[int]Subscriber
	nextSubID   int
}

// NewObserver はObserverを生成する。
func NewObserver(migrator Migrator, logger *slog.Logger) *Observer {
	return &Observer{
		pending:     make(map[string]string),
		migrator:    migrator,
		logger:      logger,
		subscribers: make(map[int]Subscriber),
	}
}

// OnIdentityChange は認証層からの状態変更通知を処理する。
// prevは通知を発生させたクライアント自身の直前のIdentity
// （セッション系譜から解決されたもの。系譜が無ければnil）。
// newIdentityはサインアウトの場合nil。
//
// アルゴリズム:
//  1. prevがゲスト、newIdentityが別IDの登録ユーザーであれば
//     移行を起動し、完了を待つ。
//  2. 新しいIdentityを全購読者へ公開する。
//
// 同一IDの再配送（トークンリフレッシュ等）は移行を伴わない遷移として
// 扱う。移行が途中失敗した場合でも公開はブロックせず、失敗した移行の
// 組を保持して次回の通知処理の先頭で再試行する（レコード単位の冪等性に
// より再試行は安全）。その場合のエラーは呼び出し元へ返して表面化させる。
func (o *Observer) OnIdentityChange(ctx context.Context, prev, newIdentity *model.Identity) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	// 前回までの通知で積み残した移行があれば先に完了させる
	o.retryPending(ctx)

	var migrationErr error
	if isGuestUpgrade(prev, newIdentity) {
		o.logger.Info("ゲストから登録ユーザーへの遷移を検出しました",
			slog.String("guest_id", prev.ID),
			slog.String("registered_id", newIdentity.ID),
		)

		if err := o.migrator.Migrate(ctx, prev.ID, newIdentity.ID); err != nil {
			// 公開はブロックしない。失敗した組を保持して次回再試行する
			o.pending[prev.ID] = newIdentity.ID
			migrationErr = err
		}
	}

	// 公開は同一クリティカルセクション内で行う。移行が確定する前に
	// 購読者が新しいIdentityを観測することはない
	for _, sub := range o.subscribers {
		sub(newIdentity)
	}

	return migrationErr
}

// retryPending は積み残した移行を再試行する。成功した組はクリアする。
// 系譜ごとに独立しているため、別系譜の失敗が他の再試行を妨げない。
func (o *Observer) retryPending(ctx context.Context) {
	for oldID, newID := range o.pending {
		if err := o.migrator.Migrate(ctx, oldID, newID); err != nil {
			o.logger.Warn("積み残した移行の再試行に失敗しました",
				slog.String("old_owner_id", oldID),
				slog.String("new_owner_id", newID),
				slog.String("error", err.Error()),
			)
			continue
		}

		o.logger.Info("積み残した移行の再試行が完了しました",
			slog.String("old_owner_id", oldID),
			slog.String("new_owner_id", newID),
		)
		delete(o.pending, oldID)
	}
}

// Subscribe は購読者を登録し、購読解除関数を返す。
// 登録済みの購読者には次回の公開から配送される。
func (o *Observer) Subscribe(fn Subscriber) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextSubID
	o.nextSubID++
	o.subscribers[id] = fn

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subscribers, id)
	}
}

// isGuestUpgrade は直前がゲスト、新しいIdentityが別IDの登録ユーザーで
// ある遷移（移行の起動条件）かを判定する。
func isGuestUpgrade(prev, newIdentity *model.Identity) bool {
	return prev != nil &&
		prev.IsGuest &&
		newIdentity != nil &&
		!newIdentity.IsGuest &&
		newIdentity.ID != prev.ID
}
