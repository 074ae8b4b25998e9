package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/todoman/internal/model"
)

// PostgresTodoRepo はPostgreSQLを使用したTodoリポジトリ。
type PostgresTodoRepo struct {
	db *sql.DB
}

// NewPostgresTodoRepo はPostgresTodoRepoを生成する。
func NewPostgresTodoRepo(db *sql.DB) *PostgresTodoRepo {
	return &PostgresTodoRepo{db: db}
}

// Create は新規Todoを作成する。Seqはシーケンスで採番される。
func (r *PostgresTodoRepo) Create(ctx context.Context, todo *model.Todo) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO todos (id, owner_id, text, completed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING seq`,
		todo.ID, todo.OwnerID, todo.Text, todo.Completed, todo.CreatedAt, todo.UpdatedAt,
	).Scan(&todo.Seq)
	if err != nil {
		return fmt.Errorf("Todoの作成に失敗しました: %w", err)
	}
	return nil
}

// List は全Todoを挿入順（seq昇順）で返す。
// 単一SELECTのためMVCCにより書き込み途中のレコードは観測されない。
func (r *PostgresTodoRepo) List(ctx context.Context) ([]*model.Todo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, seq, owner_id, text, completed, created_at, updated_at
		 FROM todos ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("Todo一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var todos []*model.Todo
	for rows.Next() {
		todo := &model.Todo{}
		if err := rows.Scan(
			&todo.ID, &todo.Seq, &todo.OwnerID, &todo.Text,
			&todo.Completed, &todo.CreatedAt, &todo.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("Todoレコードの読み取りに失敗しました: %w", err)
		}
		todos = append(todos, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Todo一覧の走査に失敗しました: %w", err)
	}

	return todos, nil
}

// Update は指定IDのTodoにpatchをマージする。
// COALESCEによる単一UPDATE文のため、読み手が部分的な書き込みを
// 観測することはない。
func (r *PostgresTodoRepo) Update(ctx context.Context, id string, patch model.TodoPatch) error {
	var completed sql.NullBool
	if patch.Completed != nil {
		completed = sql.NullBool{Bool: *patch.Completed, Valid: true}
	}
	var ownerID sql.NullString
	if patch.OwnerID != nil {
		ownerID = sql.NullString{String: *patch.OwnerID, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE todos SET
		    completed = COALESCE($2, completed),
		    owner_id  = COALESCE($3, owner_id),
		    updated_at = now()
		 WHERE id = $1`,
		id, completed, ownerID,
	)
	if err != nil {
		return fmt.Errorf("Todoの更新に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewTodoNotFoundError(id)
	}

	return nil
}

// Delete は指定IDのTodoを削除する。存在しない場合はTODO_NOT_FOUNDを返す。
func (r *PostgresTodoRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM todos WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("Todoの削除に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewTodoNotFoundError(id)
	}

	return nil
}

// compile-time interface check
var _ TodoRepository = (*PostgresTodoRepo)(nil)
