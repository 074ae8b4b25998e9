// Package migration はゲストから登録ユーザーへのTodo所有権移行を提供する。
// 認証状態の遷移（ゲスト→登録）を契機に、ゲストIDが所有する全Todoの
// owner_idを新しい登録ユーザーIDへ書き換える。
package migration

import (
	"context"
	"log/slog"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
)

// Recorder は移行処理が必要とするメトリクス記録のインターフェース。
// metrics.Collectorの部分集合として定義する。
type Recorder interface {
	RecordMigrationCompleted(migratedCount int)
	RecordMigrationFailed()
}

// Coordinator はTodo所有権移行のビジネスロジックを提供する。
//
// 移行はレコード単位で冪等である: 1回目の成功後は旧所有者のレコードが
// 残らないため、同じ引数での再実行は何もしない。途中失敗した場合も
// 移行済みレコードは旧所有者フィルタに一致しなくなるため、再実行で
// 残りだけが処理される。ロールバックは行わない。
type Coordinator struct {
	todos    repository.TodoRepository
	recorder Recorder
	logger   *slog.Logger
}

// NewCoordinator はCoordinatorを生成する。
func NewCoordinator(todos repository.TodoRepository, recorder Recorder, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		todos:    todos,
		recorder: recorder,
		logger:   logger,
	}
}

// Migrate はoldOwnerIDが所有する全Todoの所有者をnewOwnerIDへ書き換える。
// 対象が0件の場合は何もせず成功する。
// 途中でストア更新に失敗した場合はロールバックせず、移行済み件数と
// 未完了件数を含む*model.APIError（MIGRATION_FAILED）を返す。
func (c *Coordinator) Migrate(ctx context.Context, oldOwnerID, newOwnerID string) error {
	all, err := c.todos.List(ctx)
	if err != nil {
		c.logger.Error("移行対象Todoの読み取りに失敗しました",
			slog.String("old_owner_id", oldOwnerID),
			slog.String("error", err.Error()),
		)
		c.recorder.RecordMigrationFailed()
		return model.NewMigrationFailedError(0, -1)
	}

	var targets []*model.Todo
	for _, todo := range all {
		if todo.OwnerID == oldOwnerID {
			targets = append(targets, todo)
		}
	}

	if len(targets) == 0 {
		c.logger.Info("移行対象のTodoはありません",
			slog.String("old_owner_id", oldOwnerID),
			slog.String("new_owner_id", newOwnerID),
		)
		c.recorder.RecordMigrationCompleted(0)
		return nil
	}

	migrated := 0
	for _, todo := range targets {
		patch := model.TodoPatch{OwnerID: &newOwnerID}
		if err := c.todos.Update(ctx, todo.ID, patch); err != nil {
			remaining := len(targets) - migrated
			c.logger.Error("Todo所有権の書き換えに失敗しました",
				slog.String("todo_id", todo.ID),
				slog.String("old_owner_id", oldOwnerID),
				slog.String("new_owner_id", newOwnerID),
				slog.Int("migrated", migrated),
				slog.Int("remaining", remaining),
				slog.String("error", err.Error()),
			)
			c.recorder.RecordMigrationFailed()
			return model.NewMigrationFailedError(migrated, remaining)
		}
		migrated++
	}

	c.logger.Info("ゲストTodoの所有権移行が完了しました",
		slog.String("old_owner_id", oldOwnerID),
		slog.String("new_owner_id", newOwnerID),
		slog.Int("migrated", migrated),
	)
	c.recorder.RecordMigrationCompleted(migrated)
	return nil
}
