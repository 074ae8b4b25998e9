package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/todoman/internal/model"
)

func TestGoogleOAuthProvider_GetLoginURL(t *testing.T) {
	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:    "google-client-id",
		RedirectURL: "http://localhost:8080/auth/google/callback",
	})

	loginURL := provider.GetLoginURL("state-xyz")

	parsed, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("URLのパースに失敗: %v", err)
	}
	query := parsed.Query()

	if query.Get("client_id") != "google-client-id" {
		t.Errorf("client_id = %q", query.Get("client_id"))
	}
	if query.Get("state") != "state-xyz" {
		t.Errorf("state = %q", query.Get("state"))
	}
	if query.Get("response_type") != "code" {
		t.Errorf("response_type = %q", query.Get("response_type"))
	}
	if scope := query.Get("scope"); !strings.Contains(scope, "email") || !strings.Contains(scope, "profile") {
		t.Errorf("scope = %q, emailとprofileを含むべき", scope)
	}
}

func TestGoogleOAuthProvider_ExchangeCode(t *testing.T) {
	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-access-token" {
			t.Errorf("Authorizationヘッダー = %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sub":"google-sub-123","email":"alice@gmail.com","name":"Alice","picture":"https://example.com/photo.jpg"}`))
	}))
	defer userInfoServer.Close()

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("フォームのパースに失敗: %v", err)
		}
		if r.PostForm.Get("code") != "auth-code" {
			t.Errorf("code = %q", r.PostForm.Get("code"))
		}
		if r.PostForm.Get("grant_type") != "authorization_code" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"test-access-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:     "google-client-id",
		ClientSecret: "google-secret",
		RedirectURL:  "http://localhost:8080/auth/google/callback",
		TokenURL:     tokenServer.URL,
		UserInfoURL:  userInfoServer.URL,
	})

	info, err := provider.ExchangeCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCodeに失敗: %v", err)
	}

	if info.ProviderUserID != "google-sub-123" {
		t.Errorf("ProviderUserID = %q", info.ProviderUserID)
	}
	if info.Email != "alice@gmail.com" {
		t.Errorf("Email = %q", info.Email)
	}
	if info.PhotoURL != "https://example.com/photo.jpg" {
		t.Errorf("PhotoURL = %q", info.PhotoURL)
	}
	if info.Provider != model.ProviderGoogle {
		t.Errorf("Provider = %q", info.Provider)
	}
}

func TestGoogleOAuthProvider_ExchangeCode_TokenError(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer tokenServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID: "google-client-id",
		TokenURL: tokenServer.URL,
	})

	if _, err := provider.ExchangeCode(context.Background(), "bad-code"); err == nil {
		t.Error("無効な認可コードはエラーになるべき")
	}
}

func TestGoogleOAuthProvider_ExchangeCode_EmptyAccessToken(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer tokenServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID: "google-client-id",
		TokenURL: tokenServer.URL,
	})

	if _, err := provider.ExchangeCode(context.Background(), "auth-code"); err == nil {
		t.Error("access_tokenが空のレスポンスはエラーになるべき")
	}
}
