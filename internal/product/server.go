package product

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/pkg/apperror"
	"github.com/nao1215/shopgate/pkg/config"
	"github.com/nao1215/shopgate/pkg/middleware"
	"go.uber.org/zap"
)

// Server は商品サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// log は構造化ロガー。
	log *zap.Logger
	// catalog は商品コレクション。
	catalog *Catalog
}

// NewServer は新しい商品サーバーを生成する。
func NewServer(cfg *config.Config, log *zap.Logger) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.CORS([]string{cfg.FrontendURL}))

	s := &Server{
		router:  router,
		port:    cfg.Port,
		log:     log,
		catalog: NewCatalog(),
	}
	s.setupRoutes()
	return s
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	s.log.Info("product service listening", zap.String("port", s.port))
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Product Service OK")
	})

	products := s.router.Group("/products")
	{
		products.GET("", s.handleList())
		products.GET("/:id", s.handleGet())
		products.POST("", s.handleCreate())
		products.PUT("/:id", s.handleReplace())
		products.DELETE("/:id", s.handleDelete())
	}
}

// productID はパスパラメータの商品IDを解釈する。数値でない場合は存在しない商品として扱う。
func productID(c *gin.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return 0, apperror.Newf(apperror.KindNotFound, "商品が見つかりません: id=%s", c.Param("id"))
	}
	return id, nil
}

// handleList は商品一覧を返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.catalog.List())
	}
}

// handleGet は商品詳細を返すハンドラ。
func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := productID(c)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		p, err := s.catalog.Get(id)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// handleCreate は商品を作成するハンドラ。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in productInput
		if err := c.ShouldBindJSON(&in); err != nil {
			apperror.Abort(c, apperror.Wrap(err, apperror.KindMissingFields, "name と price（数値）は必須です"))
			return
		}
		name, price, err := in.validate()
		if err != nil {
			apperror.Abort(c, err)
			return
		}

		p, err := s.catalog.Create(name, price)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		s.log.Info("product created", zap.Int("product_id", p.ID), zap.String("user_id", c.GetHeader(middleware.HeaderUserID)))
		c.JSON(http.StatusCreated, gin.H{"message": "商品を作成しました", "product": p})
	}
}

// handleReplace は商品の名前と価格を置き換えるハンドラ。
func (s *Server) handleReplace() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := productID(c)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		var in productInput
		if err := c.ShouldBindJSON(&in); err != nil {
			apperror.Abort(c, apperror.Wrap(err, apperror.KindMissingFields, "name と price（数値）は必須です"))
			return
		}
		name, price, err := in.validate()
		if err != nil {
			apperror.Abort(c, err)
			return
		}

		p, err := s.catalog.Replace(id, name, price)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "商品を更新しました", "product": p})
	}
}

// handleDelete は商品を削除するハンドラ。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := productID(c)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		p, err := s.catalog.Delete(id)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "商品を削除しました", "product": p})
	}
}
