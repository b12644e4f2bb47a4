// 注文サービスのエントリポイント。
// Gatewayの信頼ヘッダー、またはAuthサービスでの検証により本人を確認する。
package main

import (
	"log"

	"github.com/nao1215/shopgate/internal/order"
	"github.com/nao1215/shopgate/pkg/config"
	"github.com/nao1215/shopgate/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("order-service", "5002")
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	zl, err := logger.ForService(cfg.Service, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	server := order.NewServer(cfg, zl)

	if err := server.Run(); err != nil {
		zl.Fatal("failed to run server", zap.Error(err))
	}
}
