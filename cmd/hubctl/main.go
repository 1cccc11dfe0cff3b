// hubctlはローカルAPIを操作する端末向けクライアント。
// 投稿の一覧・検索・作成・更新・削除とサインイン状態の管理を行う。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "エラー:", err)
		os.Exit(1)
	}
}
