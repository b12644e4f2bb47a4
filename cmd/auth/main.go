// Authサービスのエントリポイント。ログインとトークン検証を担当する。
package main

import (
	"log"

	"github.com/nao1215/shopgate/internal/auth"
	"github.com/nao1215/shopgate/pkg/config"
	"github.com/nao1215/shopgate/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("auth-service", "4001")
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	zl, err := logger.ForService(cfg.Service, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	server, err := auth.NewServer(cfg, zl)
	if err != nil {
		zl.Fatal("failed to initialize auth service", zap.Error(err))
	}

	if err := server.Run(); err != nil {
		zl.Fatal("failed to run server", zap.Error(err))
	}
}
