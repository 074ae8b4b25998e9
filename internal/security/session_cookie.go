package security

import (
	"fmt"

	"github.com/gorilla/securecookie"
)

// SessionCookieCodec はセッションCookieの署名付きエンコード/デコードを行う。
// Cookie値はHMAC-SHA256で署名されるため、クライアント側で改竄された
// セッションIDはデコード時に検出され拒否される。
type SessionCookieCodec struct {
	sc   *securecookie.SecureCookie
	name string
}

// NewSessionCookieCodec はSESSION_SECRETを鍵としてCodecを生成する。
// nameはCookie名で、securecookieの署名対象に含まれる。
func NewSessionCookieCodec(name, secret string) *SessionCookieCodec {
	return &SessionCookieCodec{
		sc:   securecookie.New([]byte(secret), nil),
		name: name,
	}
}

// Encode はセッションIDを署名付きCookie値へ変換する。
func (c *SessionCookieCodec) Encode(sessionID string) (string, error) {
	encoded, err := c.sc.Encode(c.name, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to encode session cookie: %w", err)
	}
	return encoded, nil
}

// Decode は署名を検証してセッションIDを取り出す。
// 署名不一致や形式不正はエラーになる。
func (c *SessionCookieCodec) Decode(value string) (string, error) {
	var sessionID string
	if err := c.sc.Decode(c.name, value, &sessionID); err != nil {
		return "", fmt.Errorf("failed to decode session cookie: %w", err)
	}
	return sessionID, nil
}
