package devgateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/nao1215/teacherhub/internal/config"
	gatewaydb "github.com/nao1215/teacherhub/internal/devgateway/db"
	"github.com/nao1215/teacherhub/pkg/httpserver"
	"github.com/nao1215/teacherhub/pkg/middleware"
)

// Server は投稿とユーザーを管理する開発用GatewayのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はクエリ実行オブジェクト。
	queries *gatewaydb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// jwtSecret はJWT署名用の秘密鍵。
	jwtSecret string
	// tokenTTL は発行するトークンの有効期間。
	tokenTTL time.Duration
	// bcryptCost はパスワードハッシュのコスト。
	bcryptCost int
	// now は現在時刻を返す。
	now func() time.Time
	// logger はロガー。
	logger *zap.Logger
}

// NewServer は設定から新しい開発用Gatewayを生成する。
// SQLiteデータベースを開き、マイグレーションを適用する。
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	dsn := cfg.DevGateway.DatabasePath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(ctx, sqlDB, logger); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	return newServer(cfg.DevGateway.Port, sqlDB, cfg.DevGateway.JWTSecret, cfg.DevGateway.TokenTTL, logger), nil
}

func newServer(port string, sqlDB *sql.DB, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))

	s := &Server{
		router:     router,
		port:       port,
		queries:    gatewaydb.New(sqlDB),
		db:         sqlDB,
		jwtSecret:  jwtSecret,
		tokenTTL:   tokenTTL,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
		logger:     logger,
	}
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxが終了するとシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	return httpserver.Serve(ctx, net.JoinHostPort("", s.port), s.router, s.logger)
}

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	user := s.router.Group("/user")
	{
		user.POST("/signup", s.handleSignUp())
		user.POST("/signin", s.handleSignIn())
	}

	posts := s.router.Group("/posts")
	{
		posts.GET("", s.handleListPosts())
		posts.GET("/search", s.handleSearchPosts())
		posts.GET("/:id", s.handleGetPost())
	}

	// 変更系は教師ロールのトークンが必要
	write := s.router.Group("/posts")
	write.Use(middleware.JWTAuth(s.jwtSecret), middleware.RequireProfessor())
	{
		write.POST("", s.handleCreatePost())
		write.PUT("/:id", s.handleUpdatePost())
		write.DELETE("/:id", s.handleDeletePost())
	}

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "devgateway"})
	})
}

// credentialsRequest はサインアップ・サインインのリクエストボディ。
// パスワードは password と senha のどちらでも受け付ける。
type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Senha       string `json:"senha"`
	IsProfessor *bool  `json:"isProfessor"`
}

func (r credentialsRequest) password() string {
	if r.Password != "" {
		return r.Password
	}
	return r.Senha
}

// userResponse はレスポンスに含める利用者情報。パスワードハッシュは含めない。
type userResponse struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	IsProfessor bool   `json:"isProfessor"`
}

func toUserResponse(u gatewaydb.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, IsProfessor: u.IsProfessor}
}

// handleSignUp は利用者を登録するハンドラを返す。
func (s *Server) handleSignUp() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です"})
			return
		}
		email := strings.TrimSpace(req.Email)
		if email == "" || req.password() == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "emailとpasswordは必須です"})
			return
		}

		ctx := c.Request.Context()
		n, err := s.queries.CountUsersByEmail(ctx, email)
		if err != nil {
			s.logger.Error("利用者の検索に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "利用者の登録に失敗しました"})
			return
		}
		if n > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "このメールアドレスは登録済みです"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.password()), s.bcryptCost)
		if err != nil {
			s.logger.Error("パスワードのハッシュ化に失敗", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "パスワードが不正です"})
			return
		}

		professor := true
		if req.IsProfessor != nil {
			professor = *req.IsProfessor
		}

		user, err := s.queries.CreateUser(ctx, gatewaydb.CreateUserParams{
			Email:        email,
			PasswordHash: string(hash),
			IsProfessor:  professor,
			CreatedAt:    s.timestamp(),
		})
		if err != nil {
			s.logger.Error("利用者の登録に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "利用者の登録に失敗しました"})
			return
		}

		s.logger.Info("利用者を登録しました", zap.Int64("user_id", user.ID))
		c.JSON(http.StatusCreated, gin.H{"user": toUserResponse(user)})
	}
}

// handleSignIn は認証してトークンを発行するハンドラを返す。
func (s *Server) handleSignIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です"})
			return
		}

		user, err := s.queries.GetUserByEmail(c.Request.Context(), strings.TrimSpace(req.Email))
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "メールアドレスまたはパスワードが違います"})
			return
		}
		if err != nil {
			s.logger.Error("利用者の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "サインインに失敗しました"})
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.password())); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "メールアドレスまたはパスワードが違います"})
			return
		}

		token, err := middleware.GenerateJWT(s.jwtSecret, middleware.Identity{
			UserID:    user.ID,
			Email:     user.Email,
			Professor: user.IsProfessor,
		}, s.tokenTTL)
		if err != nil {
			s.logger.Error("トークンの生成に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "サインインに失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token": token,
			"user":  toUserResponse(user),
		})
	}
}

// timestampLayout は保存する日時の書式。桁を固定して文字列比較で並べ替えられるようにする。
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// timestamp は現在時刻をRFC 3339のUTC文字列で返す。
func (s *Server) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}

// newPostID は投稿IDを採番する。
func newPostID() string {
	return uuid.NewString()
}
