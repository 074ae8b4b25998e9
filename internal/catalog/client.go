// Package catalog は商品カタログAPI連携機能を提供する。
// 読み取り専用のカタログ取得のみを行い、キャッシュや書き込みは行わない。
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/todoman/internal/model"
)

// apiName はメトリクスのラベルに使用するAPI識別子。
const apiName = "catalog"

// Product はカタログAPIから取得した商品1件を表す。
type Product struct {
	ID    int64   `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

// Recorder はカタログクライアントが必要とするメトリクス記録のインターフェース。
type Recorder interface {
	RecordRemoteFetch(api string, statusCode int)
	RecordRemoteFetchLatency(api string, duration time.Duration)
}

// Client は商品カタログAPIのクライアント。
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

// ListProducts は商品一覧を取得する。
// 接続レベルの失敗（オフライン、タイムアウト、DNS失敗）はOFFLINE、
// 2xx以外のレスポンスはREMOTE_API_ERRORとして分類する。
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/products", nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.doWithRetry(req)
	c.recorder.RecordRemoteFetchLatency(apiName, time.Since(start))
	if err != nil {
		// ネットワーク到達不能はオフライン扱い
		c.logger.Warn("カタログAPIに接続できませんでした",
			slog.String("error", err.Error()),
		)
		c.recorder.RecordRemoteFetch(apiName, 0)
		return nil, model.NewOfflineError()
	}
	defer resp.Body.Close()

	c.recorder.RecordRemoteFetch(apiName, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("カタログAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewRemoteAPIError("カタログAPI", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var products []Product
	if err := json.Unmarshal(body, &products); err != nil {
		c.logger.Error("カタログAPIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return products, nil
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

		c.logger.Warn("カタログAPIの呼び出しを再試行します",
			slog.Int("attempt", attempt+1),
		)

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		}
	}
}
