// Package ghsearch はGitHubリポジトリ検索API連携機能を提供する。
// 読み取り専用の検索のみを行い、結果はこちら側で先頭10件に制限する。
package ghsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/todoman/internal/model"
)

const (
	// apiName はメトリクスのラベルに使用するAPI識別子。
	apiName = "github_search"
	// maxResults は呼び出し元へ返す検索結果の最大件数。
	// リモート側ではなくこのシステム側で制限する。
	maxResults = 10
)

// Repository は検索結果のリポジトリサマリー1件を表す。
type Repository struct {
	FullName string `json:"full_name"`
	Stars    int    `json:"stargazers_count"`
	HTMLURL  string `json:"html_url"`
}

// searchResponse はGitHub検索APIのレスポンス。
type searchResponse struct {
	Items []Repository `json:"items"`
}

// Recorder は検索クライアントが必要とするメトリクス記録のインターフェース。
type Recorder interface {
	RecordRemoteFetch(api string, statusCode int)
	RecordRemoteFetchLatency(api string, duration time.Duration)
}

// Client はGitHubリポジトリ検索APIのクライアント。
type Client struct {
	httpClient *http.Client
	recorder   Recorder
	logger     *slog.Logger
	baseURL    string
	maxRetries int
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientにはSSRF防止機能付きのクライアントを渡すこと。
// maxRetriesは一時的な失敗（接続エラー、5xx）の再試行回数。
func NewClient(httpClient *http.Client, recorder Recorder, logger *slog.Logger, baseURL string, maxRetries int) *Client {
	return &Client{
		httpClient: httpClient,
		recorder:   recorder,
		logger:     logger,
		baseURL:    baseURL,
		maxRetries: maxRetries,
	}
}

// Search はクエリ文字列でリポジトリを検索し、先頭10件までを返す。
// 空または空白のみのクエリはEMPTY_SEARCH_QUERYを返す。
// 接続レベルの失敗はOFFLINE、2xx以外のレスポンスはREMOTE_API_ERRORとして
// 分類する。
func (c *Client) Search(ctx context.Context, query string) ([]Repository, error) {
	if strings.TrimSpace(query) == "" {
		return nil, model.NewEmptySearchQueryError()
	}

	reqURL := c.baseURL + "/search/repositories?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	start := time.Now()
	resp, err := c.doWithRetry(req)
	c.recorder.RecordRemoteFetchLatency(apiName, time.Since(start))
	if err != nil {
		c.logger.Warn("GitHub検索APIに接続できませんでした",
			slog.String("error", err.Error()),
		)
		c.recorder.RecordRemoteFetch(apiName, 0)
		return nil, model.NewOfflineError()
	}
	defer resp.Body.Close()

	c.recorder.RecordRemoteFetch(apiName, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("GitHub検索APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewRemoteAPIError("GitHub検索API", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Error("GitHub検索APIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if len(result.Items) > maxResults {
		result.Items = result.Items[:maxResults]
	}

	return result.Items, nil
}

// doWithRetry は接続エラーと5xxレスポンスをmaxRetries回まで再試行する。
// ボディを持たないGETリクエストのみを前提とする。
func (c *Client) doWithRetry(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.httpClient.Do(req)
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
		if attempt >= c.maxRetries {
			return resp, err
		}

		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		c.logger.Warn("GitHub検索APIの呼び出しを再試行します",
			slog.Int("attempt", attempt+1),
		)

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		}
	}
}
