package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nao1215/shopgate/pkg/apperror"
	"github.com/nao1215/shopgate/pkg/httpclient"
)

// TokenVerifier はベアラートークンを検証して本人情報を返す。
type TokenVerifier interface {
	// Verify はトークンを検証する。失敗時は *apperror.Error を返す。
	Verify(ctx context.Context, token string) (Identity, error)
}

// LocalVerifier は共有の署名鍵でトークンをプロセス内検証する。
type LocalVerifier struct {
	secret string
}

// NewLocalVerifier はLocalVerifierを生成する。
func NewLocalVerifier(secret string) *LocalVerifier {
	return &LocalVerifier{secret: secret}
}

// Verify はトークンを検証する。
func (v *LocalVerifier) Verify(_ context.Context, token string) (Identity, error) {
	claims, err := ParseJWT(v.secret, token)
	if err != nil {
		return Identity{}, err
	}
	return claims.Identity(), nil
}

// VerifiedUser はAuthサービスの /verify が返す検証済みユーザー。
type VerifiedUser struct {
	// ID はユーザーID。sub と同じ値。
	ID string `json:"id"`
	// Subject はトークンの sub クレーム。
	Subject string `json:"sub"`
	// Username はユーザー名。
	Username string `json:"username"`
	// Role はユーザーのロール。
	Role string `json:"role,omitempty"`
	// IssuedAt は発行時刻（UNIX秒）。
	IssuedAt int64 `json:"iat,omitempty"`
	// ExpiresAt は有効期限（UNIX秒）。
	ExpiresAt int64 `json:"exp,omitempty"`
}

// Identity は検証済みユーザーから本人情報を取り出す。
func (u VerifiedUser) Identity() Identity {
	id := u.ID
	if id == "" {
		id = u.Subject
	}
	return Identity{ID: id, Username: u.Username, Role: u.Role}
}

// VerifyResponse はAuthサービスの /verify のレスポンスボディ。
type VerifyResponse struct {
	// Valid はトークンが有効かどうか。
	Valid bool `json:"valid"`
	// User は検証済みユーザー。無効な場合はnil。
	User *VerifiedUser `json:"user,omitempty"`
	// Message は失敗理由。
	Message string `json:"message,omitempty"`
	// Error は検証失敗の診断メッセージ。
	Error string `json:"error,omitempty"`
}

// RemoteVerifier はAuthサービスの /verify に検証を委譲する。
// 1回の Verify につき1回だけリクエストを送信し、リトライしない。
type RemoteVerifier struct {
	client *httpclient.Client
}

// NewRemoteVerifier はAuthサービス向けのクライアントからRemoteVerifierを生成する。
func NewRemoteVerifier(client *httpclient.Client) *RemoteVerifier {
	return &RemoteVerifier{client: client}
}

// Verify はAuthサービスにトークンの検証を依頼する。
// 2xx以外のレスポンスや通信失敗は Unauthorized になる。
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(ctx, http.MethodGet, "/verify", header, nil)
	if err != nil {
		return Identity{}, apperror.Wrap(err, apperror.KindUnauthorized, "トークンを検証できません（Authサービスに到達できません）")
	}

	if !resp.OK() {
		e := apperror.New(apperror.KindUnauthorized, "トークンが無効または期限切れです")
		if json.Valid(resp.Body) {
			e = e.WithDetail("detail", json.RawMessage(resp.Body))
		}
		return Identity{}, e
	}

	var body VerifyResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return Identity{}, apperror.Wrap(err, apperror.KindUnauthorized, "Authサービスのレスポンスが不正です")
	}
	if body.User == nil {
		return Identity{}, apperror.New(apperror.KindUnauthorized, "Authサービスのレスポンスにユーザー情報がありません")
	}

	identity := body.User.Identity()
	if identity.ID == "" {
		return Identity{}, apperror.New(apperror.KindUnauthorized, "Authサービスのレスポンスにユーザー情報がありません")
	}
	return identity, nil
}
