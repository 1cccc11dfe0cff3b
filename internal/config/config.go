// Package config は環境変数から各コマンドの設定を組み立てる。
//
// .envファイルがあれば先に読み込み（既存の環境変数は上書きしない）、
// その後に環境変数を既定値付きで読み取る。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// EnvProduction は本番環境を表すAPP_ENVの値。
const EnvProduction = "production"

// DefaultGatewayURL はGatewayの既定のベースURL。
const DefaultGatewayURL = "https://blog-dinamico-app.onrender.com"

// Config は全コマンド共通の設定。
type Config struct {
	// Environment はAPP_ENVの値。"production"のときSecure Cookieと本番ログ設定になる。
	Environment string
	// LogLevel はzapのログレベル（debug, info, warn, error）。
	LogLevel string
	// Web はプロキシサーバーの設定。
	Web WebConfig
	// DevGateway は開発用Gatewayの設定。
	DevGateway DevGatewayConfig
	// Client はhubctlの設定。
	Client ClientConfig
}

// WebConfig はプロキシサーバー（cmd/web）の設定。
type WebConfig struct {
	// Port はリッスンポート。
	Port string
	// GatewayURL はGatewayのベースURL。
	GatewayURL string
	// GatewayTimeout はGatewayへのリクエストのタイムアウト。0はタイムアウトなし。
	GatewayTimeout time.Duration
	// FrontendURL はCORSで許可するオリジン。
	FrontendURL string
	// DisplayDateLayout はdisplayDateの書式（time.Formatのレイアウト）。
	DisplayDateLayout string
}

// DevGatewayConfig は開発用Gateway（cmd/devgateway）の設定。
type DevGatewayConfig struct {
	// Port はリッスンポート。
	Port string
	// DatabasePath はSQLiteファイルのパス。
	DatabasePath string
	// JWTSecret はトークン署名用の秘密鍵。
	JWTSecret string
	// TokenTTL は発行するトークンの有効期間。
	TokenTTL time.Duration
}

// ClientConfig はhubctlの設定。
type ClientConfig struct {
	// APIURL はプロキシサーバーのベースURL。
	APIURL string
	// SessionDBPath はマーカーとCookieを保存するSQLiteファイルのパス。
	SessionDBPath string
}

// Production は本番環境かどうかを返す。
func (c *Config) Production() bool {
	return c.Environment == EnvProduction
}

// Load は.envファイルと環境変数から設定を読み込む。
// filesを省略した場合はカレントディレクトリの.envを試す。存在しないファイルは無視する。
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%sの読み込みに失敗: %w", f, err)
		}
	}

	gatewayTimeout, err := getDurationOr("GATEWAY_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}
	tokenTTL, err := getDurationOr("JWT_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		Environment: getEnvOr("APP_ENV", "development"),
		LogLevel:    getEnvOr("LOG_LEVEL", "info"),
		Web: WebConfig{
			Port:              getEnvOr("PORT", "3000"),
			GatewayURL:        getEnvOr("GATEWAY_URL", DefaultGatewayURL),
			GatewayTimeout:    gatewayTimeout,
			FrontendURL:       getEnvOr("FRONTEND_URL", "http://localhost:3000"),
			DisplayDateLayout: getEnvOr("DISPLAY_DATE_LAYOUT", "2006/01/02"),
		},
		DevGateway: DevGatewayConfig{
			Port:         getEnvOr("DEVGATEWAY_PORT", "8080"),
			DatabasePath: getEnvOr("DEVGATEWAY_DB", "devgateway.db"),
			JWTSecret:    getEnvOr("JWT_SECRET", "dev-secret-key"),
			TokenTTL:     tokenTTL,
		},
		Client: ClientConfig{
			APIURL:        getEnvOr("HUB_API_URL", "http://localhost:3000"),
			SessionDBPath: getEnvOr("HUB_SESSION_DB", defaultSessionDBPath()),
		},
	}, nil
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// getDurationOr は環境変数をtime.Durationとして取得する。
func getDurationOr(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%sの値が不正です (%q): %w", key, v, err)
	}
	return d, nil
}

// defaultSessionDBPath はホームディレクトリ配下のセッションDBパスを返す。
func defaultSessionDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "session.db"
	}
	return filepath.Join(home, ".teacherhub", "session.db")
}
