package gateway

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/pkg/apperror"
	"github.com/nao1215/shopgate/pkg/config"
	"github.com/nao1215/shopgate/pkg/metrics"
	"github.com/nao1215/shopgate/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server はAPI GatewayのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// log は構造化ロガー。
	log *zap.Logger
	// routes は固定のルーティング表。
	routes *Router
	// forwarder は上流サービスへの転送処理。
	forwarder *Forwarder
	// verifier は保護されたルールでトークンを検証する。
	verifier middleware.TokenVerifier
	// via は verifier の検証経路。
	via string
}

// NewServer は新しいGatewayサーバーを生成する。
func NewServer(cfg *config.Config, log *zap.Logger) (*Server, error) {
	upstreams := UpstreamsFromConfig(cfg)
	rules := withTimeouts(defaultRoutes(), upstreams, cfg.Timeouts.Proxy)

	forwarder, err := NewForwarder(upstreams, rules, log)
	if err != nil {
		return nil, fmt.Errorf("転送処理の初期化に失敗: %w", err)
	}

	var (
		verifier middleware.TokenVerifier
		via      string
	)
	switch cfg.Gateway.VerifyMode {
	case config.VerifyModeLocal:
		if cfg.JWTSecret == "" {
			log.Warn("JWT_SECRET is not set; every protected route will be rejected")
		}
		verifier, via = middleware.NewLocalVerifier(cfg.JWTSecret), middleware.ViaLocal
	default:
		authClient, _ := forwarder.Client(UpstreamAuth)
		verifier, via = middleware.NewRemoteVerifier(authClient), middleware.ViaAuthVerify
	}

	return newServer(cfg, log, NewRouter(rules), forwarder, verifier, via), nil
}

func newServer(cfg *config.Config, log *zap.Logger, routes *Router, forwarder *Forwarder, verifier middleware.TokenVerifier, via string) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.CORS([]string{cfg.FrontendURL}))
	router.Use(middleware.RateLimit(cfg.Gateway.RateLimitRPS, cfg.Gateway.RateLimitBurst))
	router.Use(stripTrustedHeaders())

	s := &Server{
		router:    router,
		port:      cfg.Port,
		log:       log,
		routes:    routes,
		forwarder: forwarder,
		verifier:  verifier,
		via:       via,
	}
	s.setupRoutes()
	return s
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	s.log.Info("gateway listening", zap.String("port", s.port), zap.String("verified_by", s.via))
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
// /auth と /api 以下はルーティング表で転送先を決める。
func (s *Server) setupRoutes() {
	s.router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "API Gateway OK")
	})
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.Any("/auth/*path", s.handleDispatch())
	s.router.Any("/api/*path", s.handleDispatch())

	s.router.NoRoute(func(c *gin.Context) {
		apperror.Abort(c, apperror.Newf(apperror.KindRouteNotFound, "ルートが見つかりません: %s %s", c.Request.Method, c.Request.URL.Path).
			WithDetail("path", c.Request.URL.Path))
	})
}

// stripTrustedHeaders はクライアントが送った信頼ヘッダーを取り除くミドルウェア。
// バックエンドに届く信頼ヘッダーはGatewayが検証後に設定したものだけになる。
func stripTrustedHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.StripTrustedHeaders(c.Request.Header)
		c.Next()
	}
}

// handleDispatch はルールを選び、必要ならトークンを検証してから転送するハンドラ。
func (s *Server) handleDispatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		rule, err := s.routes.Match(c.Request.Method, c.Request.URL.Path)
		if err != nil {
			apperror.Abort(c, err)
			return
		}

		if rule.RequiresAuth {
			identity, err := s.authenticate(c)
			if err != nil {
				metrics.AuthRejectionsTotal.WithLabelValues(rule.Name).Inc()
				apperror.Abort(c, err)
				return
			}
			middleware.SetIdentity(c, identity, s.via)
			middleware.Propagate(identity).Apply(c.Request.Header)
		}

		s.forwarder.Forward(c, rule)
	}
}

// authenticate は Authorization: Bearer のトークンを検証する。
// 検証できない場合は理由に関わらず 401 になるエラーを返す。
func (s *Server) authenticate(c *gin.Context) (middleware.Identity, error) {
	token, ok := middleware.ExtractBearerToken(c.GetHeader("Authorization"))
	if !ok {
		return middleware.Identity{}, apperror.New(apperror.KindUnauthorized, "Authorization: Bearer <token> が必要です")
	}

	identity, err := s.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		if apperror.KindOf(err).HTTPStatus() != http.StatusUnauthorized {
			err = apperror.Wrap(err, apperror.KindUnauthorized, "トークンを検証できません")
		}
		return middleware.Identity{}, err
	}
	return identity, nil
}
