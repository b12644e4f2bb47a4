// API Gatewayのエントリポイント。
// トークンを1回だけ検証し、本人情報を信頼ヘッダーとして内部サービスへ転送する。
package main

import (
	"log"

	"github.com/nao1215/shopgate/internal/gateway"
	"github.com/nao1215/shopgate/pkg/config"
	"github.com/nao1215/shopgate/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("gateway", "3001")
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	zl, err := logger.ForService(cfg.Service, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	server, err := gateway.NewServer(cfg, zl)
	if err != nil {
		zl.Fatal("failed to initialize gateway", zap.Error(err))
	}

	if err := server.Run(); err != nil {
		zl.Fatal("failed to run server", zap.Error(err))
	}
}
