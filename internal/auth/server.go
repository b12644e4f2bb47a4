package auth

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/pkg/apperror"
	"github.com/nao1215/shopgate/pkg/config"
	"github.com/nao1215/shopgate/pkg/middleware"
	"go.uber.org/zap"
)

// Server は認証サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// log は構造化ロガー。
	log *zap.Logger
	// issuer はトークン発行を担当する。
	issuer *Issuer
	// jwtSecret はトークン検証用の秘密鍵。空の場合もサーバーは起動する。
	jwtSecret string
}

// NewServer は新しい認証サーバーを生成する。
// JWT_SECRET が未設定でも起動し、ログイン時に500を返す。
func NewServer(cfg *config.Config, log *zap.Logger) (*Server, error) {
	registry, err := NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("ユーザー台帳の初期化に失敗: %w", err)
	}
	ttl, err := config.ParseTTL(cfg.JWTExpiresIn)
	if err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET is not set; /login will fail with MISSING_CONFIGURATION")
	}

	return newServer(cfg.Port, log, NewIssuer(registry, cfg.JWTSecret, ttl, cfg.JWTExpiresIn), cfg.JWTSecret, cfg.FrontendURL), nil
}

func newServer(port string, log *zap.Logger, issuer *Issuer, secret, frontendURL string) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router:    router,
		port:      port,
		log:       log,
		issuer:    issuer,
		jwtSecret: secret,
	}
	s.setupRoutes()
	return s
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	s.log.Info("auth service listening", zap.String("port", s.port))
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Auth Service OK")
	})
	s.router.POST("/login", s.handleLogin())
	s.router.GET("/verify", s.handleVerify())
}

// loginResponse は /login のレスポンスボディ。
type loginResponse struct {
	Message   string `json:"message"`
	Token     string `json:"token"`
	ExpiresIn string `json:"expiresIn"`
}

// handleLogin は資格情報を検証してトークンを発行するハンドラ。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			apperror.Abort(c, apperror.Wrap(err, apperror.KindMissingFields, "username と password は必須です"))
			return
		}

		issued, err := s.issuer.IssueToken(creds)
		if err != nil {
			if apperror.Is(err, apperror.KindMissingConfiguration) {
				s.log.Error("token issuance failed", zap.Error(err))
			}
			apperror.Abort(c, err)
			return
		}

		c.JSON(http.StatusOK, loginResponse{
			Message:   "ログインに成功しました",
			Token:     issued.Token,
			ExpiresIn: issued.ExpiresIn,
		})
	}
}

// handleVerify はベアラートークンを検証し、本人情報を返すハンドラ。
// 失敗時は {valid:false} を含む401を返す。
func (s *Server) handleVerify() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := middleware.ExtractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"valid":   false,
				"message": "トークンがありません",
				"code":    string(apperror.KindUnauthorized),
			})
			return
		}

		claims, err := middleware.ParseJWT(s.jwtSecret, token)
		if err != nil {
			body := apperror.Body(err)
			body["valid"] = false
			c.JSON(http.StatusUnauthorized, body)
			return
		}

		user := middleware.VerifiedUser{
			ID:       claims.Subject,
			Subject:  claims.Subject,
			Username: claims.Username,
			Role:     claims.Role,
		}
		if claims.IssuedAt != nil {
			user.IssuedAt = claims.IssuedAt.Unix()
		}
		if claims.ExpiresAt != nil {
			user.ExpiresAt = claims.ExpiresAt.Unix()
		}
		c.JSON(http.StatusOK, middleware.VerifyResponse{Valid: true, User: &user})
	}
}
