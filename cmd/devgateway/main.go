// 開発用Gatewayのエントリポイント。
// 本番Gatewayと同じ契約で利用者と投稿をSQLiteに保存する。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nao1215/teacherhub/internal/config"
	"github.com/nao1215/teacherhub/internal/devgateway"
	"github.com/nao1215/teacherhub/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Production())
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := devgateway.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("開発用Gatewayの初期化に失敗", zap.Error(err))
	}
	defer func() { _ = server.Close() }()

	logger.Info("開発用Gatewayを起動します",
		zap.String("port", cfg.DevGateway.Port),
		zap.String("db", cfg.DevGateway.DatabasePath),
	)
	if err := server.Run(ctx); err != nil {
		logger.Error("開発用Gatewayの起動に失敗", zap.Error(err))
	}
}
