// Package todo はTodoのCRUDとゲスト上限ポリシーを提供する。
package todo

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
	"github.com/hitoshi/todoman/internal/security"
)

// Recorder はTodoサービスが必要とするメトリクス記録のインターフェース。
// metrics.Collectorの部分集合として定義する。
type Recorder interface {
	RecordTodoCreated(isGuest bool)
	RecordGuestQuotaRejected()
}

// Service はTodoに関するビジネスロジックを提供する。
// ストアは所有者を意識しないため、所有者によるフィルタはこの層で行う。
type Service struct {
	todos     repository.TodoRepository
	sanitizer security.TextSanitizerService
	recorder  Recorder
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	todos repository.TodoRepository,
	sanitizer security.TextSanitizerService,
	recorder Recorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		todos:     todos,
		sanitizer: sanitizer,
		recorder:  recorder,
		logger:    logger,
	}
}

// Create は現在のIdentityを所有者として新規Todoを作成する。
// 本文が空または空白のみの場合はEMPTY_TODO_TEXTを返す。
// ゲストユーザーが上限に達している場合はGUEST_QUOTA_EXCEEDEDを返す。
// 本文はHTML除去のサニタイズを通してから保存される。
func (s *Service) Create(ctx context.Context, ident *model.Identity, text string) (*model.Todo, error) {
	if strings.TrimSpace(text) == "" {
		return nil, model.NewEmptyTodoTextError()
	}

	sanitized := s.sanitizer.Sanitize(text)
	if sanitized == "" {
		// タグのみで構成された入力はサニタイズ後に空になる
		return nil, model.NewEmptyTodoTextError()
	}

	count, err := s.countByOwner(ctx, ident.ID)
	if err != nil {
		return nil, err
	}

	if !CanCreate(ident, count) {
		s.recorder.RecordGuestQuotaRejected()
		return nil, model.NewGuestQuotaExceededError(GuestTodoLimit)
	}

	now := time.Now()
	todo := &model.Todo{
		ID:        uuid.New().String(),
		OwnerID:   ident.ID,
		Text:      sanitized,
		Completed: false,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.todos.Create(ctx, todo); err != nil {
		return nil, err
	}

	s.recorder.RecordTodoCreated(ident.IsGuest)
	s.logger.Info("todo created",
		slog.String("todo_id", todo.ID),
		slog.String("owner_id", todo.OwnerID),
		slog.Bool("is_guest", ident.IsGuest),
	)

	return todo, nil
}

// ListByOwner は指定所有者のTodoを挿入順で返す。
// ストア全体を読み取り、この層でフィルタする。
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]*model.Todo, error) {
	all, err := s.todos.List(ctx)
	if err != nil {
		return nil, err
	}

	owned := make([]*model.Todo, 0, len(all))
	for _, todo := range all {
		if todo.OwnerID == ownerID {
			owned = append(owned, todo)
		}
	}
	return owned, nil
}

// SetCompleted は指定Todoの完了状態を更新する。
// 対象が存在しない、または所有者が一致しない場合はTODO_NOT_FOUNDを返す
// （他人のTodoの存在は漏らさない）。
func (s *Service) SetCompleted(ctx context.Context, ownerID, todoID string, completed bool) error {
	if err := s.checkOwnership(ctx, ownerID, todoID); err != nil {
		return err
	}
	return s.todos.Update(ctx, todoID, model.TodoPatch{Completed: &completed})
}

// Delete は指定Todoを削除する。
// 対象が存在しない、または所有者が一致しない場合はTODO_NOT_FOUNDを返す。
func (s *Service) Delete(ctx context.Context, ownerID, todoID string) error {
	if err := s.checkOwnership(ctx, ownerID, todoID); err != nil {
		return err
	}
	return s.todos.Delete(ctx, todoID)
}

// countByOwner は指定所有者のTodo件数を返す。
func (s *Service) countByOwner(ctx context.Context, ownerID string) (int, error) {
	owned, err := s.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	return len(owned), nil
}

// checkOwnership は指定Todoが指定所有者のものであることを検証する。
func (s *Service) checkOwnership(ctx context.Context, ownerID, todoID string) error {
	all, err := s.todos.List(ctx)
	if err != nil {
		return err
	}
	for _, todo := range all {
		if todo.ID == todoID {
			if todo.OwnerID != ownerID {
				return model.NewTodoNotFoundError(todoID)
			}
			return nil
		}
	}
	return model.NewTodoNotFoundError(todoID)
}
