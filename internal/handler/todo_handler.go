package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
)

// TodoServiceInterface はTodoハンドラーが必要とするサービスインターフェース。
type TodoServiceInterface interface {
	Create(ctx context.Context, ident *model.Identity, text string) (*model.Todo, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Todo, error)
	SetCompleted(ctx context.Context, ownerID, todoID string, completed bool) error
	Delete(ctx context.Context, ownerID, todoID string) error
}

// TodoHandler はTodo管理のHTTPハンドラー。
type TodoHandler struct {
	service TodoServiceInterface
}

// NewTodoHandler はTodoHandlerを生成する。
func NewTodoHandler(service TodoServiceInterface) *TodoHandler {
	return &TodoHandler{service: service}
}

// --- リクエスト・レスポンス型 ---

// todoCreateRequest はTodo作成リクエストのボディ。
type todoCreateRequest struct {
	Text string `json:"text"`
}

// todoPatchRequest はTodo部分更新リクエストのボディ。
type todoPatchRequest struct {
	Completed *bool `json:"completed,omitempty"`
}

// todoResponse はTodoのレスポンス。
type todoResponse struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// todoListResponse はTodo一覧のレスポンス。
type todoListResponse struct {
	Todos []todoResponse `json:"todos"`
}

func toTodoResponse(todo *model.Todo) todoResponse {
	return todoResponse{
		ID:        todo.ID,
		Text:      todo.Text,
		Completed: todo.Completed,
		CreatedAt: todo.CreatedAt,
		UpdatedAt: todo.UpdatedAt,
	}
}

// ListTodos は現在のIdentityが所有するTodoを挿入順で返す。
// GET /api/todos
func (h *TodoHandler) ListTodos(w http.ResponseWriter, r *http.Request) {
	ident, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	todos, err := h.service.ListByOwner(r.Context(), ident.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := todoListResponse{Todos: make([]todoResponse, 0, len(todos))}
	for _, todo := range todos {
		resp.Todos = append(resp.Todos, toTodoResponse(todo))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// CreateTodo は新規Todoを作成する。
// POST /api/todos
func (h *TodoHandler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	ident, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req todoCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	todo, err := h.service.Create(r.Context(), ident, req.Text)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toTodoResponse(todo))
}

// PatchTodo はTodoの完了状態を更新する。
// PATCH /api/todos/{id}
func (h *TodoHandler) PatchTodo(w http.ResponseWriter, r *http.Request) {
	ident, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	todoID := chi.URLParam(r, "id")

	var req todoPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.Completed == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "completedを指定してください。",
			Category: "validation",
			Action:   "更新するフィールドを指定してください。",
		})
		return
	}

	if err := h.service.SetCompleted(r.Context(), ident.ID, todoID, *req.Completed); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteTodo はTodoを削除する。
// DELETE /api/todos/{id}
func (h *TodoHandler) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	ident, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	todoID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), ident.ID, todoID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
