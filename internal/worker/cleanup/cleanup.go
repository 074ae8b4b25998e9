// Package cleanup は期限切れセッションと放置ゲストの自動削除ジョブを提供する。
// 有効期限を過ぎたセッションと、保持期間（デフォルト30日）を超過した
// ゲストユーザーおよびそのTodoを日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れセッションと放置ゲストの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db                 Executor
	logger             *slog.Logger
	GuestRetentionDays int // ゲストユーザーの保持日数（デフォルト: 30）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は30日。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:                 db,
		logger:             logger,
		GuestRetentionDays: 30,
	}
}

// Run は期限切れセッションと放置ゲストを削除する。
// 放置ゲストはセッションが全て失効し、作成からGuestRetentionDays日を
// 超過したゲストユーザー。所有していたTodoも合わせて削除する。
// Todoのowner_idは外部キーを持たないため明示的にDELETEする。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	expiredSessions, err := j.deleteExpiredSessions(ctx)
	if err != nil {
		return err
	}

	staleGuests, orphanedTodos, err := j.deleteStaleGuests(ctx)
	if err != nil {
		return err
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("expired_sessions", expiredSessions),
		slog.Int64("stale_guests", staleGuests),
		slog.Int64("orphaned_todos", orphanedTodos),
		slog.Int("guest_retention_days", j.GuestRetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

func (j *CleanupJob) deleteExpiredSessions(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < now()`
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}
	return result.RowsAffected()
}

func (j *CleanupJob) deleteStaleGuests(ctx context.Context) (guests, todos int64, err error) {
	interval := fmt.Sprintf("%d days", j.GuestRetentionDays)

	// 先にTodoを削除してからゲスト本体を削除する。
	// 途中で失敗しても次回実行で残りが削除される
	todoQuery := `
		DELETE FROM todos
		WHERE owner_id IN (
			SELECT id FROM users
			WHERE is_guest = true
			  AND created_at < now() - $1::interval
			  AND NOT EXISTS (
				SELECT 1 FROM sessions
				WHERE sessions.user_id = users.id AND sessions.expires_at > now()
			  )
		)`
	todoResult, err := j.db.ExecContext(ctx, todoQuery, interval)
	if err != nil {
		j.logger.Error("放置ゲストのTodo削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, 0, fmt.Errorf("放置ゲストのTodo削除に失敗: %w", err)
	}
	todos, _ = todoResult.RowsAffected()

	guestQuery := `
		DELETE FROM users
		WHERE is_guest = true
		  AND created_at < now() - $1::interval
		  AND NOT EXISTS (
			SELECT 1 FROM sessions
			WHERE sessions.user_id = users.id AND sessions.expires_at > now()
		  )`
	guestResult, err := j.db.ExecContext(ctx, guestQuery, interval)
	if err != nil {
		j.logger.Error("放置ゲストの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, todos, fmt.Errorf("放置ゲストの削除に失敗: %w", err)
	}
	guests, _ = guestResult.RowsAffected()

	return guests, todos, nil
}
