package auth

import (
	"time"

	"github.com/nao1215/shopgate/pkg/apperror"
	"github.com/nao1215/shopgate/pkg/middleware"
)

// Credentials はログイン時に送られる資格情報。
type Credentials struct {
	// Username はログイン名。
	Username string `json:"username"`
	// Password は平文のパスワード。
	Password string `json:"password"`
}

// IssuedToken は発行したトークン。
type IssuedToken struct {
	// Token は署名済みのJWT。
	Token string
	// ExpiresIn は設定された有効期間の表記（例: "1h"）。
	ExpiresIn string
	// ExpiresAt は有効期限。
	ExpiresAt time.Time
}

// Issuer は資格情報を検証してトークンを発行する。
type Issuer struct {
	registry  *Registry
	secret    string
	ttl       time.Duration
	expiresIn string
}

// NewIssuer はIssuerを生成する。expiresInはレスポンスにそのまま返す表記。
func NewIssuer(registry *Registry, secret string, ttl time.Duration, expiresIn string) *Issuer {
	return &Issuer{registry: registry, secret: secret, ttl: ttl, expiresIn: expiresIn}
}

// IssueToken は資格情報を検証し、成功した場合にトークンを発行する。
// 判定順: 必須項目の欠落（MissingFields）→ 照合失敗（InvalidCredentials）→
// 署名鍵の未設定（MissingConfiguration）。
func (i *Issuer) IssueToken(creds Credentials) (IssuedToken, error) {
	if creds.Username == "" || creds.Password == "" {
		return IssuedToken{}, apperror.New(apperror.KindMissingFields, "username と password は必須です")
	}

	user, err := i.registry.Authenticate(creds.Username, creds.Password)
	if err != nil {
		return IssuedToken{}, apperror.Wrap(err, apperror.KindInvalidCredentials, "ログインに失敗しました。ユーザー名またはパスワードが違います")
	}

	identity := middleware.Identity{ID: user.ID, Username: user.Username, Role: user.Role}
	token, expiresAt, err := middleware.GenerateJWT(i.secret, identity, i.ttl)
	if err != nil {
		if apperror.Is(err, apperror.KindMissingConfiguration) {
			return IssuedToken{}, err
		}
		return IssuedToken{}, apperror.Wrap(err, apperror.KindInternal, "トークンの生成に失敗しました")
	}

	return IssuedToken{Token: token, ExpiresIn: i.expiresIn, ExpiresAt: expiresAt}, nil
}
