package middleware

import (
	"net/http"
	"strings"
)

// 信頼ヘッダーのキー。Gatewayが検証済みの本人情報をバックエンドへ伝える。
const (
	HeaderUserID       = "X-User-ID"
	HeaderUserUsername = "X-User-Username"
	HeaderUserRole     = "X-User-Role"
)

// trustedHeaderKeys は信頼ヘッダーのキー一覧。
var trustedHeaderKeys = []string{HeaderUserID, HeaderUserUsername, HeaderUserRole}

// Identity は検証済みの本人情報。リクエストの間だけ有効で、生成後は変更しない。
type Identity struct {
	// ID はユーザーID。
	ID string `json:"id"`
	// Username はユーザー名。
	Username string `json:"username,omitempty"`
	// Role はユーザーのロール。
	Role string `json:"role,omitempty"`
}

// TrustedHeaders は伝播する信頼ヘッダー。値が空のキーは含まない。
type TrustedHeaders map[string]string

// Propagate はIdentityから信頼ヘッダーを生成する。
// 空のフィールドは空文字列のヘッダーにせず、キーごと省略する。
func Propagate(identity Identity) TrustedHeaders {
	h := make(TrustedHeaders, len(trustedHeaderKeys))
	if identity.ID != "" {
		h[HeaderUserID] = identity.ID
	}
	if identity.Username != "" {
		h[HeaderUserUsername] = identity.Username
	}
	if identity.Role != "" {
		h[HeaderUserRole] = identity.Role
	}
	return h
}

// Apply は信頼ヘッダーをHTTPヘッダーに設定する。既存の値は置き換える。
func (t TrustedHeaders) Apply(h http.Header) {
	for key, value := range t {
		h.Set(key, value)
	}
}

// StripTrustedHeaders はクライアントが付与した信頼ヘッダーを取り除く。
// Gatewayは転送前に必ずこれを呼び、バックエンドが受け取る信頼ヘッダーは
// Gatewayが設定したものだけにする。
func StripTrustedHeaders(h http.Header) {
	for _, key := range trustedHeaderKeys {
		h.Del(key)
	}
}

// IdentityFromHeaders は信頼ヘッダーからIdentityを復元する。
// X-User-ID が無い場合は ok=false を返す。
func IdentityFromHeaders(h http.Header) (Identity, bool) {
	id := h.Get(HeaderUserID)
	if id == "" {
		return Identity{}, false
	}
	return Identity{
		ID:       id,
		Username: h.Get(HeaderUserUsername),
		Role:     h.Get(HeaderUserRole),
	}, true
}

// ExtractBearerToken はAuthorizationヘッダーの値からトークンを取り出す。
// スキーム名の大文字小文字は区別しない。
func ExtractBearerToken(authorization string) (string, bool) {
	const prefix = "bearer "
	if len(authorization) < len(prefix) || !strings.EqualFold(authorization[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(authorization[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}
