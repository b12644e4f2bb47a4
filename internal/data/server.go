package data

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/pkg/apperror"
	"github.com/nao1215/shopgate/pkg/config"
	"github.com/nao1215/shopgate/pkg/middleware"
	"go.uber.org/zap"
)

// Server はデータサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// log は構造化ロガー。
	log *zap.Logger
	// items は所有者付きデータ項目のコレクション。
	items *Items
}

// NewServer は新しいデータサーバーを生成する。
func NewServer(cfg *config.Config, log *zap.Logger) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.CORS([]string{cfg.FrontendURL}))

	s := &Server{
		router: router,
		port:   cfg.Port,
		log:    log,
		items:  NewItems(),
	}
	s.setupRoutes(cfg.JWTSecret)
	return s
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	s.log.Info("data service listening", zap.String("port", s.port))
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

func (s *Server) setupRoutes(secret string) {
	s.router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Data Service OK (protected routes: /data)")
	})

	protected := s.router.Group("/data")
	protected.Use(middleware.JWTAuth(secret))
	{
		protected.GET("", s.handleList())
		protected.POST("", s.handleCreate())
	}
}

// ownerOf はトークンのユーザー名を返す。
func ownerOf(c *gin.Context) string {
	identity, _ := middleware.GetIdentity(c)
	return identity.Username
}

// handleList はトークンのユーザーが所有する項目を返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := ownerOf(c)
		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("%s さんがアクセスできるデータです", owner),
			"data":    s.items.ListByOwner(owner),
		})
	}
}

// createRequest は POST /data のリクエストボディ。
type createRequest struct {
	Name string `json:"name"`
}

// handleCreate はトークンのユーザーが所有する項目を追加するハンドラ。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperror.Abort(c, apperror.Wrap(err, apperror.KindMissingFields, `"name" は必須です`))
			return
		}
		it, err := s.items.Create(ownerOf(c), req.Name)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		s.log.Info("item created", zap.Int("item_id", it.ID), zap.String("owner", it.Owner))
		c.JSON(http.StatusCreated, gin.H{"message": "項目を作成しました", "item": it})
	}
}
