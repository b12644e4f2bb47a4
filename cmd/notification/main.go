// 通知サービスのエントリポイント。
package main

import (
	"context"
	"log"

	"github.com/nao1215/shopgate/internal/notification"
	"github.com/nao1215/shopgate/pkg/config"
	"github.com/nao1215/shopgate/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("notification-service", "5003")
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	zl, err := logger.ForService(cfg.Service, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	server, err := notification.NewServer(context.Background(), cfg, zl)
	if err != nil {
		zl.Fatal("failed to initialize notification service", zap.Error(err))
	}

	if err := server.Run(); err != nil {
		zl.Fatal("failed to run server", zap.Error(err))
	}
}
