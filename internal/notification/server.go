package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/pkg/apperror"
	"github.com/nao1215/shopgate/pkg/config"
	"github.com/nao1215/shopgate/pkg/middleware"
	"go.uber.org/zap"
)

// defaultTitle はタイトル未指定時の通知タイトル。
const defaultTitle = "New Notification"

// unknownRecipient は通知先を判定できない場合の値。
const unknownRecipient = "unknown"

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// log は構造化ロガー。
	log *zap.Logger
	// repo は通知の保存先。
	repo *Repository
	// now は現在時刻を返す。
	now func() time.Time
}

// NewServer は新しい通知サーバーを生成する。
// インメモリSQLiteの初期化とマイグレーションを行う。
func NewServer(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Server, error) {
	repo, err := OpenRepository(ctx, log)
	if err != nil {
		return nil, err
	}
	return newServer(cfg.Port, cfg.FrontendURL, log, repo), nil
}

func newServer(port, frontendURL string, log *zap.Logger, repo *Repository) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router: router,
		port:   port,
		log:    log,
		repo:   repo,
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.setupRoutes()
	return s
}

// Run はHTTPサーバーを起動する。終了時にデータベースを閉じる。
func (s *Server) Run() error {
	defer func() { _ = s.repo.Close() }()
	s.log.Info("notification service listening", zap.String("port", s.port))
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Notification Service OK")
	})
	s.router.POST("/notify", s.handleNotify())

	notifications := s.router.Group("/notifications")
	{
		notifications.GET("", s.handleList())
		notifications.GET("/my", s.handleListMine())
		notifications.PUT("/:id/read", s.handleMarkAsRead())
	}
}

// recipientOf はリクエストの通知先を返す。
// X-User-Username、X-User-ID の順に参照し、どちらも無ければ "unknown"。
func recipientOf(c *gin.Context) string {
	if u := c.GetHeader(middleware.HeaderUserUsername); u != "" {
		return u
	}
	if id := c.GetHeader(middleware.HeaderUserID); id != "" {
		return id
	}
	return unknownRecipient
}

// notifyRequest は /notify のリクエストボディ。
type notifyRequest struct {
	To      json.RawMessage `json:"to"`
	Type    string          `json:"type"`
	Title   string          `json:"title"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload"`
}

// parseRecipient は通知先を文字列として返す。
// 数値のユーザーID（例: 7）は X-User-ID と照合できるよう "7" に変換する。空文字と0は未指定として扱う。
func parseRecipient(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, strings.TrimSpace(s) != ""
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || f == 0 {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

// handleNotify は通知を作成するハンドラ。
func (s *Server) handleNotify() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req notifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperror.Abort(c, apperror.Wrap(err, apperror.KindMissingFields, "to と type は必須です"))
			return
		}
		to, ok := parseRecipient(req.To)
		if !ok || strings.TrimSpace(req.Type) == "" {
			apperror.Abort(c, apperror.New(apperror.KindMissingFields, "to と type は必須です"))
			return
		}

		n := Notification{
			To:      to,
			Type:    req.Type,
			Title:   req.Title,
			Message: req.Message,
			Payload: req.Payload,
			TS:      s.now(),
		}
		if n.Title == "" {
			n.Title = defaultTitle
		}
		if p := bytes.TrimSpace(n.Payload); len(p) == 0 || bytes.Equal(p, []byte("null")) {
			n.Payload = json.RawMessage(`{}`)
		}

		saved, err := s.repo.Insert(c.Request.Context(), n)
		if err != nil {
			s.log.Error("failed to save notification", zap.Error(err))
			apperror.Abort(c, apperror.Wrap(err, apperror.KindInternal, "通知の作成に失敗しました"))
			return
		}

		s.log.Info("notification created", zap.Int64("id", saved.ID), zap.String("to", saved.To), zap.String("title", saved.Title))
		c.JSON(http.StatusCreated, gin.H{"message": "通知を作成しました", "notification": saved})
	}
}

// handleList は全通知を返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := s.repo.List(c.Request.Context())
		if err != nil {
			apperror.Abort(c, apperror.Wrap(err, apperror.KindInternal, "通知一覧の取得に失敗しました"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": list, "total": len(list)})
	}
}

// handleListMine は呼び出したユーザー宛ての通知を返すハンドラ。
func (s *Server) handleListMine() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := s.repo.ListByRecipient(c.Request.Context(), recipientOf(c))
		if err != nil {
			apperror.Abort(c, apperror.Wrap(err, apperror.KindInternal, "通知一覧の取得に失敗しました"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": list, "total": len(list)})
	}
}

// handleMarkAsRead は呼び出したユーザー宛ての通知を既読にするハンドラ。
func (s *Server) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			apperror.Abort(c, apperror.Newf(apperror.KindNotFound, "通知が見つかりません: id=%s", c.Param("id")))
			return
		}

		n, err := s.repo.MarkAsRead(c.Request.Context(), id, recipientOf(c))
		if err != nil {
			if !apperror.Is(err, apperror.KindNotFound) && !apperror.Is(err, apperror.KindForbidden) {
				s.log.Error("failed to mark notification as read", zap.Int64("id", id), zap.Error(err))
			}
			apperror.Abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "通知を既読にしました", "notification": n})
	}
}
