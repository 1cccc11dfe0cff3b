package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nao1215/teacherhub/pkg/migration"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// memoryPath はインメモリDBを表すパス。
const memoryPath = ":memory:"

// Marker はローカルに保存するサインイン状態。
type Marker struct {
	// Authenticated はサインイン済みかどうか。
	Authenticated bool
	// Professor は教師ロールかどうか。
	Professor bool
}

// SessionDB はマーカーとCookieを保存するSQLiteデータベース。
type SessionDB struct {
	db     *sql.DB
	jar    *Jar
	now    func() time.Time
	logger *zap.Logger
}

// OpenSession はpathのSQLiteファイルを開き、マイグレーションを適用する。
// 親ディレクトリが無ければ作成する。":memory:" はテスト用のインメモリDBになる。
func OpenSession(ctx context.Context, path string, logger *zap.Logger) (*SessionDB, error) {
	return openSession(ctx, path, logger, time.Now)
}

// openSession はnowを現在時刻としてSessionDBを開き、保存済みのCookieを読み戻す。
func openSession(ctx context.Context, path string, logger *zap.Logger, now func() time.Time) (*SessionDB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := memoryPath
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("セッションディレクトリの作成に失敗: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("セッションDBの接続に失敗: %w", err)
	}
	if path == memoryPath {
		db.SetMaxOpenConns(1)
	}

	if err := migration.Run(ctx, db, migrations, "migrations", logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("セッションDBの初期化に失敗: %w", err)
	}

	s := &SessionDB{db: db, now: now, logger: logger}
	if s.jar, err = newJar(s); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.jar.load(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("セッションDBの初期化に失敗: %w", err)
	}
	return s, nil
}

// Close はデータベース接続を閉じる。
func (s *SessionDB) Close() error {
	return s.db.Close()
}

// Marker は保存済みのマーカーを返す。未保存なら未サインインのマーカーを返す。
func (s *SessionDB) Marker(ctx context.Context) (Marker, error) {
	var m Marker
	err := s.db.QueryRowContext(ctx,
		`SELECT authenticated, professor FROM session_marker WHERE id = 1`,
	).Scan(&m.Authenticated, &m.Professor)
	if errors.Is(err, sql.ErrNoRows) {
		return Marker{}, nil
	}
	if err != nil {
		return Marker{}, fmt.Errorf("マーカーの読み込みに失敗: %w", err)
	}
	return m, nil
}

// SaveMarker はマーカーを保存する。
func (s *SessionDB) SaveMarker(ctx context.Context, m Marker) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_marker (id, authenticated, professor, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			authenticated = excluded.authenticated,
			professor = excluded.professor,
			updated_at = excluded.updated_at
	`, m.Authenticated, m.Professor, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("マーカーの保存に失敗: %w", err)
	}
	return nil
}

// ClearMarker はマーカーを削除する。
func (s *SessionDB) ClearMarker(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_marker`); err != nil {
		return fmt.Errorf("マーカーの削除に失敗: %w", err)
	}
	return nil
}

// Jar はこのデータベースに保存するCookieJarを返す。
func (s *SessionDB) Jar() *Jar {
	return s.jar
}
