package order

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/pkg/apperror"
	"github.com/nao1215/shopgate/pkg/config"
	"github.com/nao1215/shopgate/pkg/httpclient"
	"github.com/nao1215/shopgate/pkg/middleware"
	"go.uber.org/zap"
)

// Server は注文サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// log は構造化ロガー。
	log *zap.Logger
	// book は注文コレクション。
	book *Book
	// products は商品価格の取得先。
	products PriceLookup
	// verifier は信頼ヘッダーが無い場合のトークン検証先。
	verifier middleware.TokenVerifier
}

// NewServer は新しい注文サーバーを生成する。
// トークン検証はAuthサービス、価格の取得は商品サービスに委譲する。
func NewServer(cfg *config.Config, log *zap.Logger) *Server {
	authClient := httpclient.New(cfg.Services.Auth, httpclient.WithTimeout(cfg.Timeouts.Auth))
	productHTTP := httpclient.New(cfg.Services.Product, httpclient.WithTimeout(cfg.Timeouts.Product))

	return newServer(cfg.Port, cfg.FrontendURL, log,
		middleware.NewRemoteVerifier(authClient),
		&productClient{client: productHTTP, log: log},
	)
}

func newServer(port, frontendURL string, log *zap.Logger, verifier middleware.TokenVerifier, products PriceLookup) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router:   router,
		port:     port,
		log:      log,
		book:     NewBook(),
		products: products,
		verifier: verifier,
	}
	s.setupRoutes()
	return s
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	s.log.Info("order service listening", zap.String("port", s.port))
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": "order-service", "ok": true})
	})

	orders := s.router.Group("/orders")
	orders.Use(middleware.DelegatedAuth(s.verifier))
	{
		orders.POST("", s.handleCreate())
		orders.GET("", s.handleList())
		orders.GET("/:id", s.handleGet())
		orders.PATCH("/:id/cancel", s.handleCancel())
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"message": "order-service にルートがありません",
			"code":    string(apperror.KindRouteNotFound),
			"path":    c.Request.URL.RequestURI(),
		})
	})
}

// lookupHeader は商品サービスへ転送するヘッダーを組み立てる。
func lookupHeader(c *gin.Context) http.Header {
	h := http.Header{}
	if auth := c.GetHeader("Authorization"); auth != "" {
		h.Set("Authorization", auth)
	}
	if identity, ok := middleware.GetIdentity(c); ok {
		middleware.Propagate(identity).Apply(h)
	}
	if id := middleware.GetRequestID(c); id != "" {
		h.Set(middleware.HeaderRequestID, id)
	}
	return h
}

// handleCreate は注文を作成するハンドラ。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in createInput
		if err := c.ShouldBindJSON(&in); err != nil {
			apperror.Abort(c, apperror.Wrap(err, apperror.KindMissingFields, "productId は必須です"))
			return
		}
		productID, qty, err := in.validate()
		if err != nil {
			apperror.Abort(c, err)
			return
		}

		identity, _ := middleware.GetIdentity(c)
		ctx := httpclient.WithHeaders(c.Request.Context(), lookupHeader(c))
		price := s.products.Price(ctx, productID)

		o, err := s.book.Create(identity, middleware.GetVia(c), productID, qty, in.Notes, price)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		s.log.Info("order created",
			zap.String("order_id", o.ID),
			zap.String("user_id", o.UserID),
			zap.String("verified_by", o.VerifiedBy),
			zap.Bool("priced", o.Price != nil),
		)
		c.JSON(http.StatusCreated, o)
	}
}

// handleList は自分の注文一覧を返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": s.book.ListByUser(middleware.GetUserID(c))})
	}
}

// handleGet は注文詳細を返すハンドラ。
func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := s.book.Get(c.Param("id"), middleware.GetUserID(c))
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

// handleCancel は注文をキャンセルするハンドラ。
func (s *Server) handleCancel() gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := s.book.Cancel(c.Param("id"), middleware.GetUserID(c))
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}
