package devgateway

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"go.uber.org/zap"

	"github.com/nao1215/teacherhub/pkg/migration"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// initSchema はSQLiteデータベースにマイグレーションを適用し、適用済みのバージョンを記録する。
func initSchema(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := migration.Run(ctx, db, migrations, "migrations", logger); err != nil {
		return err
	}
	versions, err := migration.Applied(ctx, db)
	if err != nil {
		return fmt.Errorf("スキーマのバージョン取得に失敗: %w", err)
	}
	logger.Info("スキーマを初期化しました", zap.Ints("versions", versions))
	return nil
}
