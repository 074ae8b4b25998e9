package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/todoman/internal/model"
)

// --- モック ---

type mockRecorder struct {
	statusCodes []int
	latencies   int
}

func (m *mockRecorder) RecordRemoteFetch(api string, statusCode int) {
	m.statusCodes = append(m.statusCodes, statusCode)
}

func (m *mockRecorder) RecordRemoteFetchLatency(api string, duration time.Duration) {
	m.latencies++
}

func newTestClient(baseURL string) (*Client, *mockRecorder) {
	var buf bytes.Buffer
	recorder := &mockRecorder{}
	c := NewClient(&http.Client{Timeout: 5 * time.Second}, recorder,
		slog.New(slog.NewJSONHandler(&buf, nil)), baseURL, 0)
	return c, recorder
}

// --- テスト ---

func TestClient_ListProducts_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products" {
			t.Errorf("リクエストパス = %q, want /products", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": 1, "title": "Fjallraven Backpack", "price": 109.95, "image": "https://example.com/1.jpg"},
			{"id": 2, "title": "Mens Casual T-Shirt", "price": 22.3, "image": "https://example.com/2.jpg"},
		})
	}))
	defer server.Close()

	client, recorder := newTestClient(server.URL)

	products, err := client.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("ListProducts() がエラーを返した: %v", err)
	}

	if len(products) != 2 {
		t.Fatalf("件数 = %d, want 2", len(products))
	}
	if products[0].Title != "Fjallraven Backpack" || products[0].Price != 109.95 {
		t.Errorf("商品1 = %+v", products[0])
	}
	if len(recorder.statusCodes) != 1 || recorder.statusCodes[0] != http.StatusOK {
		t.Errorf("記録されたステータス = %v, want [200]", recorder.statusCodes)
	}
	if recorder.latencies != 1 {
		t.Errorf("レイテンシ記録回数 = %d, want 1", recorder.latencies)
	}
}

// TestClient_ListProducts_Offline は接続不能がOFFLINEに分類されることを検証する。
func TestClient_ListProducts_Offline(t *testing.T) {
	// 閉じたサーバーへの接続は必ず失敗する
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client, recorder := newTestClient(server.URL)

	_, err := client.ListProducts(context.Background())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeOffline {
		t.Errorf("接続不能はOFFLINEに分類されるべき: %v", err)
	}
	if len(recorder.statusCodes) != 1 || recorder.statusCodes[0] != 0 {
		t.Errorf("接続失敗はステータス0で記録されるべき: %v", recorder.statusCodes)
	}
}

// TestClient_ListProducts_RemoteError は非200レスポンスがREMOTE_API_ERRORに
// 分類されることを検証する。
func TestClient_ListProducts_RemoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL)

	_, err := client.ListProducts(context.Background())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeRemoteAPIError {
		t.Errorf("非200レスポンスはREMOTE_API_ERRORに分類されるべき: %v", err)
	}
}

func TestClient_ListProducts_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL)

	if _, err := client.ListProducts(context.Background()); err == nil {
		t.Error("不正なJSONはエラーになるべき")
	}
}

// TestClient_ListProducts_RetriesTransientFailure は5xxが再試行され、
// 回復後のレスポンスが返ることを検証する。
func TestClient_ListProducts_RetriesTransientFailure(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": 1, "title": "Fjallraven Backpack", "price": 109.95, "image": "https://example.com/1.jpg"},
		})
	}))
	defer server.Close()

	var buf bytes.Buffer
	recorder := &mockRecorder{}
	client := NewClient(&http.Client{Timeout: 5 * time.Second}, recorder,
		slog.New(slog.NewJSONHandler(&buf, nil)), server.URL, 2)

	products, err := client.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("一時的な5xxは再試行で回復するべき: %v", err)
	}
	if len(products) != 1 {
		t.Errorf("商品数 = %d, want 1", len(products))
	}
	if attempts != 2 {
		t.Errorf("リクエスト回数 = %d, want 2", attempts)
	}
}

// TestClient_ListProducts_RetriesExhausted は再試行を使い切った後に
// REMOTE_API_ERRORが返ることを検証する。
func TestClient_ListProducts_RetriesExhausted(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var buf bytes.Buffer
	recorder := &mockRecorder{}
	client := NewClient(&http.Client{Timeout: 5 * time.Second}, recorder,
		slog.New(slog.NewJSONHandler(&buf, nil)), server.URL, 2)

	_, err := client.ListProducts(context.Background())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeRemoteAPIError {
		t.Errorf("REMOTE_API_ERRORが返るべき: %v", err)
	}
	// 初回 + 再試行2回
	if attempts != 3 {
		t.Errorf("リクエスト回数 = %d, want 3", attempts)
	}
}
