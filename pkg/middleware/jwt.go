package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nao1215/shopgate/pkg/apperror"
)

// tokenIssuer はトークンの発行者（iss）。
const tokenIssuer = "shopgate-auth"

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
// sub にユーザーIDを格納する。
type JWTClaims struct {
	jwt.RegisteredClaims
	// Username はユーザー名。
	Username string `json:"username"`
	// Role はユーザーのロール。
	Role string `json:"role,omitempty"`
}

// Identity はクレームから本人情報を取り出す。
func (c *JWTClaims) Identity() Identity {
	return Identity{ID: c.Subject, Username: c.Username, Role: c.Role}
}

// GenerateJWT は本人情報からHS256で署名したJWTトークンを生成する。
// 署名鍵が空の場合は MissingConfiguration を返す。
func GenerateJWT(secret string, identity Identity, ttl time.Duration) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, apperror.New(apperror.KindMissingConfiguration, "JWT_SECRETが設定されていません")
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
		Username: identity.Username,
		Role:     identity.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseJWT はトークンの署名・アルゴリズム・有効期限を検証し、クレームを返す。
// 形式不正・署名不一致・期限切れはすべて TokenInvalid になる。
// 原因のエラーは保持されるため errors.Is(err, jwt.ErrTokenExpired) で判別できる。
func ParseJWT(secret, tokenString string) (*JWTClaims, error) {
	if secret == "" {
		return nil, apperror.New(apperror.KindMissingConfiguration, "JWT_SECRETが設定されていません")
	}

	claims := &JWTClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.KindTokenInvalid, "トークンが無効または期限切れです")
	}
	if claims.Subject == "" {
		return nil, apperror.New(apperror.KindTokenInvalid, "トークンにユーザーIDが含まれていません")
	}
	return claims, nil
}

// JWTAuth はJWTトークンをプロセス内で検証するGinミドルウェアを返す。
// Gatewayを経由しない単体サービス（Dataサービス）で使用する。
// 検証に成功した場合、コンテキストにIdentityと検証経路 "local" を設定する。
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := ExtractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			apperror.Abort(c, apperror.New(apperror.KindUnauthorized, "Authorization: Bearer <token> が必要です"))
			return
		}

		claims, err := ParseJWT(secret, tokenString)
		if err != nil {
			apperror.Abort(c, err)
			return
		}

		SetIdentity(c, claims.Identity(), ViaLocal)
		c.Next()
	}
}
