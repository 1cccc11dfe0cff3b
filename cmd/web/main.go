// ローカルAPI（プロキシ）のエントリポイント。
// 投稿の取得・作成・更新・削除と認証をGatewayへ転送し、
// GatewayのトークンをHTTP-onlyのセッションCookieで保持する。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nao1215/teacherhub/internal/config"
	"github.com/nao1215/teacherhub/internal/logging"
	"github.com/nao1215/teacherhub/internal/proxy"
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

	server := proxy.NewServer(cfg, logger)
	logger.Info("Webサービスを起動します", zap.String("port", cfg.Web.Port))
	if err := server.Run(ctx); err != nil {
		logger.Fatal("Webサービスの起動に失敗", zap.Error(err))
	}
}
