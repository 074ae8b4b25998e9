package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestNewSafeClient はSSRF防止付きHTTPクライアントの生成をテストする。
func TestNewSafeClient(t *testing.T) {
	guard := NewOutboundGuard()
	client := guard.NewSafeClient(10 * time.Second)
	if client == nil {
		t.Fatal("NewSafeClient() returned nil")
	}
}

// TestNewSafeClientTimeout はタイムアウト設定が反映されることをテストする。
func TestNewSafeClientTimeout(t *testing.T) {
	guard := NewOutboundGuard()
	timeout := 5 * time.Second
	client := guard.NewSafeClient(timeout)
	if client.Timeout != timeout {
		t.Errorf("expected timeout %v, got %v", timeout, client.Timeout)
	}
}

// TestNewSafeClientHasTransport はSafeClientにカスタムTransportが設定されていることをテストする。
// safeurlはnet.DialerのControlフックでIPアドレス検証を行うため、
// Transportが標準のhttp.DefaultTransportではないことを確認する。
func TestNewSafeClientHasTransport(t *testing.T) {
	guard := NewOutboundGuard()
	client := guard.NewSafeClient(5 * time.Second)

	if client.Transport == nil {
		t.Fatal("expected custom Transport to be set, got nil")
	}
	if client.Transport == http.DefaultTransport {
		t.Fatal("expected custom Transport, got http.DefaultTransport")
	}
}

// TestNewSafeClientBlocksLoopback はSafeClientがループバックへのリクエストをブロックすることをテストする。
// httptestサーバーは127.0.0.1で起動されるため、safeurlがブロックする。
func TestNewSafeClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	guard := NewOutboundGuard()
	client := guard.NewSafeClient(5 * time.Second)

	_, err := client.Get(ts.URL)
	if err == nil {
		t.Fatal("expected error for loopback address request, got nil")
	}
}

// TestValidateBaseURL_PublicURL は公開URLの検証が成功することをテストする。
func TestValidateBaseURL_PublicURL(t *testing.T) {
	guard := NewOutboundGuard()

	publicURLs := []string{
		"https://fakestoreapi.com",
		"https://api.github.com",
		"http://products.example.org",
	}

	for _, u := range publicURLs {
		t.Run(u, func(t *testing.T) {
			if err := guard.ValidateBaseURL(u); err != nil {
				t.Errorf("ValidateBaseURL(%q) returned error: %v", u, err)
			}
		})
	}
}

// TestValidateBaseURL_PrivateIP はプライベートIPアドレスの拒否をテストする。
func TestValidateBaseURL_PrivateIP(t *testing.T) {
	guard := NewOutboundGuard()

	privateURLs := []string{
		"http://10.0.0.1/api",
		"http://10.255.255.255/api",
		"http://172.16.0.1/api",
		"http://172.31.255.255/api",
		"http://192.168.0.1/api",
		"http://192.168.1.100/api",
	}

	for _, u := range privateURLs {
		t.Run(u, func(t *testing.T) {
			if err := guard.ValidateBaseURL(u); err == nil {
				t.Errorf("ValidateBaseURL(%q) should have returned error for private IP", u)
			}
		})
	}
}

// TestValidateBaseURL_LoopbackAddress はループバックアドレスの拒否をテストする。
func TestValidateBaseURL_LoopbackAddress(t *testing.T) {
	guard := NewOutboundGuard()

	loopbackURLs := []string{
		"http://127.0.0.1/api",
		"http://127.0.0.2/api",
		"http://localhost/api",
	}

	for _, u := range loopbackURLs {
		t.Run(u, func(t *testing.T) {
			if err := guard.ValidateBaseURL(u); err == nil {
				t.Errorf("ValidateBaseURL(%q) should have returned error for loopback address", u)
			}
		})
	}
}

// TestValidateBaseURL_MetadataIP はクラウドメタデータIPアドレスの拒否をテストする。
func TestValidateBaseURL_MetadataIP(t *testing.T) {
	guard := NewOutboundGuard()

	metadataURLs := []string{
		"http://169.254.169.254/latest/meta-data/",
		"http://169.254.0.1/api",
	}

	for _, u := range metadataURLs {
		t.Run(u, func(t *testing.T) {
			if err := guard.ValidateBaseURL(u); err == nil {
				t.Errorf("ValidateBaseURL(%q) should have returned error for metadata IP", u)
			}
		})
	}
}

// TestValidateBaseURL_InvalidURL は無効なURLの検証が失敗することをテストする。
func TestValidateBaseURL_InvalidURL(t *testing.T) {
	guard := NewOutboundGuard()

	invalidURLs := []string{
		"",
		"not-a-url",
		"ftp://example.com/api",
		"file:///etc/passwd",
		"gopher://example.com",
	}

	for _, u := range invalidURLs {
		t.Run(u, func(t *testing.T) {
			if err := guard.ValidateBaseURL(u); err == nil {
				t.Errorf("ValidateBaseURL(%q) should have returned error for invalid URL", u)
			}
		})
	}
}

// TestValidateBaseURL_IPv6Loopback はIPv6ループバックアドレスの拒否をテストする。
func TestValidateBaseURL_IPv6Loopback(t *testing.T) {
	guard := NewOutboundGuard()

	if err := guard.ValidateBaseURL("http://[::1]/api"); err == nil {
		t.Error("ValidateBaseURL(\"http://[::1]/api\") should have returned error for IPv6 loopback")
	}
}

// TestValidateBaseURL_ZeroAddress は0.0.0.0の拒否をテストする。
func TestValidateBaseURL_ZeroAddress(t *testing.T) {
	guard := NewOutboundGuard()

	if err := guard.ValidateBaseURL("http://0.0.0.0/api"); err == nil {
		t.Error("ValidateBaseURL(\"http://0.0.0.0/api\") should have returned error for zero address")
	}
}

// TestOutboundGuardInterface はインターフェースを正しく実装していることをテストする。
func TestOutboundGuardInterface(t *testing.T) {
	var _ OutboundGuard = NewOutboundGuard()
}
