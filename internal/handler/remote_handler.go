package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/todoman/internal/catalog"
	"github.com/hitoshi/todoman/internal/ghsearch"
	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
)

// CatalogClientInterface は商品カタログクライアントのインターフェース。
type CatalogClientInterface interface {
	ListProducts(ctx context.Context) ([]catalog.Product, error)
}

// RepoSearchClientInterface はGitHubリポジトリ検索クライアントのインターフェース。
type RepoSearchClientInterface interface {
	Search(ctx context.Context, query string) ([]ghsearch.Repository, error)
}

// RemoteHandler は外部API読み取りのHTTPハンドラー。
type RemoteHandler struct {
	catalog  CatalogClientInterface
	ghsearch RepoSearchClientInterface
}

// NewRemoteHandler はRemoteHandlerを生成する。
func NewRemoteHandler(catalogClient CatalogClientInterface, searchClient RepoSearchClientInterface) *RemoteHandler {
	return &RemoteHandler{
		catalog:  catalogClient,
		ghsearch: searchClient,
	}
}

// ListProducts は商品カタログを取得する。
// GET /api/products
func (h *RemoteHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"products": products})
}

// SearchRepos はGitHubリポジトリを検索する。登録ユーザー専用。
// GET /api/repos/search?q=xxx
func (h *RemoteHandler) SearchRepos(w http.ResponseWriter, r *http.Request) {
	ident, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if ident.IsGuest {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewGuestNotAllowedError())
		return
	}

	query := r.URL.Query().Get("q")

	repos, err := h.ghsearch.Search(r.Context(), query)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"repositories": repos})
}
