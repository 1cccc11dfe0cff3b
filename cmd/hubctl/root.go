package main

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nao1215/teacherhub/internal/config"
	"github.com/nao1215/teacherhub/internal/logging"
	"github.com/nao1215/teacherhub/internal/store"
)

// app はコマンド間で共有する状態。PersistentPreRunEで初期化する。
type app struct {
	out         io.Writer
	apiURL      string
	sessionPath string
	logger      *zap.Logger
	session     *store.SessionDB
	store       *store.Store
}

// run はargsでhubctlを実行し、終了時にセッションDBを閉じる。
func run(ctx context.Context, args []string, out io.Writer) error {
	a := &app{out: out}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(out)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.close())
}

// newRootCmd はhubctlのルートコマンドを生成する。
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "hubctl",
		Short: "教師ブログのローカルAPIクライアント",
		Long: `hubctlはローカルAPI（cmd/web）を通して投稿を操作する。

サインインで受け取ったセッションCookieとサインイン状態は
HUB_SESSION_DB のSQLiteファイルに保存され、次回以降の実行で使われる。`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.open,
	}
	root.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "ローカルAPIのURL（既定: HUB_API_URL）")
	root.PersistentFlags().StringVar(&a.sessionPath, "session-db", "", "セッションDBのパス（既定: HUB_SESSION_DB）")

	root.AddCommand(
		newListCmd(a),
		newShowCmd(a),
		newCreateCmd(a),
		newEditCmd(a),
		newDeleteCmd(a),
		newSignInCmd(a),
		newSignUpCmd(a),
		newSignOutCmd(a),
		newStatusCmd(a),
	)
	return root
}

// open は設定を読み込み、セッションDBとStoreを準備する。
func (a *app) open(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.apiURL == "" {
		a.apiURL = cfg.Client.APIURL
	}
	if a.sessionPath == "" {
		a.sessionPath = cfg.Client.SessionDBPath
	}

	// 端末出力を汚さないよう、ログは警告以上だけ出す
	level := cfg.LogLevel
	if level == "info" || level == "debug" {
		level = "warn"
	}
	a.logger, err = logging.New(level, false)
	if err != nil {
		return err
	}

	a.session, err = store.OpenSession(cmd.Context(), a.sessionPath, a.logger)
	if err != nil {
		return err
	}
	a.store = store.New(a.apiURL, a.session, a.logger)
	return nil
}

// close はセッションDBを閉じる。openされていなければ何もしない。
func (a *app) close() error {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.session == nil {
		return nil
	}
	err := a.session.Close()
	a.session = nil
	return err
}
