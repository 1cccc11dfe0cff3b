package proxy

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/teacherhub/internal/config"
	"github.com/nao1215/teacherhub/internal/gateway"
	"github.com/nao1215/teacherhub/internal/post"
	"github.com/nao1215/teacherhub/pkg/httpclient"
	"github.com/nao1215/teacherhub/pkg/httpserver"
	"github.com/nao1215/teacherhub/pkg/middleware"
)

// SessionCookieName はGatewayのトークンを保持するセッションCookieの名前。
const SessionCookieName = "auth-token"

// sessionMaxAge はセッションCookieの有効期間（秒）。7日。
const sessionMaxAge = 60 * 60 * 24 * 7

// 書き込み系が失敗したときに返す固定のエラーメッセージ。
const (
	errSignin       = "Failed to signin"
	errSignup       = "Failed to signup"
	errCreatePost   = "Failed to create post"
	errFetchPost    = "Failed to fetch post"
	errUpdatePost   = "Failed to update post"
	errDeletePost   = "Failed to delete post"
	errNotFound     = "Post not found"
	errUnauthorized = "Unauthorized"
)

// Server はローカルAPIを公開し、Gatewayへ転送するプロキシサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// gateway はGatewayクライアント。
	gateway *gateway.Client
	// normalizer はGatewayのレスポンスを投稿に変換する。
	normalizer *post.Normalizer
	// secureCookie はセッションCookieにSecure属性を付けるかどうか。
	secureCookie bool
	// logger はロガー。
	logger *zap.Logger
}

// NewServer は設定から新しいプロキシサーバーを生成する。
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	gw := gateway.New(cfg.Web.GatewayURL, httpclient.WithTimeout(cfg.Web.GatewayTimeout))
	normalizer := post.NewNormalizer(cfg.Web.DisplayDateLayout)
	return newServer(cfg.Web.Port, gw, normalizer, cfg.Production(), []string{cfg.Web.FrontendURL}, logger)
}

func newServer(port string, gw *gateway.Client, normalizer *post.Normalizer, secureCookie bool, origins []string, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(origins))

	s := &Server{
		router:       router,
		port:         port,
		gateway:      gw,
		normalizer:   normalizer,
		secureCookie: secureCookie,
		logger:       logger,
	}
	s.setupRoutes()
	logger.Info("Gatewayへの転送を設定しました", zap.String("gateway", gw.BaseURL()))
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

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	auth := s.router.Group("/api/auth")
	{
		auth.POST("/signin", s.handleSignIn())
		auth.POST("/signup", s.handleSignUp())
		auth.POST("/signout", s.handleSignOut())
	}

	posts := s.router.Group("/api/posts")
	{
		posts.GET("", s.handleListPosts())
		posts.POST("", s.handleCreatePost())
		posts.GET("/:id", s.handleGetPost())
		posts.PUT("/:id", s.handleUpdatePost())
		posts.DELETE("/:id", s.handleDeletePost())
	}

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "web"})
	})
}

// handleListPosts は投稿一覧を返すハンドラを返す。
// queryがあれば検索する。Gatewayの失敗はすべて空配列と200に畳み込む。
func (s *Server) handleListPosts() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		term := c.Query("query")

		var (
			resp *httpclient.Response
			err  error
		)
		if term != "" {
			resp, err = s.gateway.SearchPosts(ctx, term)
		} else {
			resp, err = s.gateway.ListPosts(ctx)
		}

		switch {
		case err != nil:
			s.logger.Warn("投稿一覧の取得に失敗", zap.Error(err))
			c.JSON(http.StatusOK, []post.Post{})
		case !resp.OK():
			s.logger.Warn("投稿一覧の取得でGatewayがエラーを返しました", zap.Int("status", resp.StatusCode))
			c.JSON(http.StatusOK, []post.Post{})
		default:
			payload := post.Classify(resp.Body)
			s.logger.Debug("投稿一覧を正規化します",
				zap.Stringer("shape", payload.Shape),
				zap.Int("records", len(payload.Records)),
			)
			c.JSON(http.StatusOK, s.normalizer.Posts(payload))
		}
	}
}

// handleGetPost は投稿を1件返すハンドラを返す。
// Gatewayが2xx以外か空ボディを返した場合は404。
func (s *Server) handleGetPost() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		resp, err := s.gateway.GetPost(c.Request.Context(), id)
		if err != nil {
			s.logger.Error("投稿の取得に失敗", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": errFetchPost})
			return
		}
		if !resp.OK() || resp.Blank() {
			c.JSON(http.StatusNotFound, gin.H{"error": errNotFound})
			return
		}

		p, err := s.normalizer.Record(resp.Body, id)
		if err != nil {
			s.logger.Error("投稿のデコードに失敗", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": errFetchPost})
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// handleCreatePost は投稿を作成するハンドラを返す。
// セッションCookieが無くてもGatewayへ転送し、認可の判断はGatewayに任せる。
func (s *Server) handleCreatePost() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in post.Input
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title, summary, bodyは必須です"})
			return
		}

		token, ok := s.sessionToken(c)
		if !ok {
			token = gateway.UndefinedToken
		}

		resp, err := s.gateway.CreatePost(c.Request.Context(), token, in.Gateway())
		if err != nil {
			s.logger.Error("投稿の作成に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": errCreatePost})
			return
		}
		if !json.Valid(resp.Body) {
			s.logger.Error("投稿作成のレスポンスがJSONではありません", zap.Int("status", resp.StatusCode))
			c.JSON(http.StatusInternalServerError, gin.H{"error": errCreatePost})
			return
		}
		if !resp.OK() {
			c.Data(resp.StatusCode, gin.MIMEJSON, resp.Body)
			return
		}

		p, err := s.normalizer.Record(resp.Body, "")
		if err != nil {
			s.logger.Error("作成した投稿のデコードに失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": errCreatePost})
			return
		}
		c.JSON(resp.StatusCode, p)
	}
}

// handleUpdatePost は投稿を全置換で更新するハンドラを返す。
// セッションCookieが無ければGatewayを呼ばずに401を返す。
// Gatewayのステータスとボディはそのまま返す。
func (s *Server) handleUpdatePost() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessionToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		var in post.Input
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title, summary, bodyは必須です"})
			return
		}

		id := c.Param("id")
		resp, err := s.gateway.UpdatePost(c.Request.Context(), token, id, in.Gateway())
		if err != nil {
			s.logger.Error("投稿の更新に失敗", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": errUpdatePost})
			return
		}
		if resp.Blank() || !json.Valid(resp.Body) {
			s.logger.Error("投稿更新のレスポンスが空かJSONではありません",
				zap.String("id", id), zap.Int("status", resp.StatusCode))
			c.JSON(http.StatusInternalServerError, gin.H{"error": errUpdatePost})
			return
		}
		c.Data(resp.StatusCode, gin.MIMEJSON, resp.Body)
	}
}

// handleDeletePost は投稿を削除するハンドラを返す。
// Gatewayに届いた時点で成功とみなし、Gatewayのステータスは返さない。
func (s *Server) handleDeletePost() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessionToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		id := c.Param("id")
		resp, err := s.gateway.DeletePost(c.Request.Context(), token, id)
		if err != nil {
			s.logger.Error("投稿の削除に失敗", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": errDeletePost})
			return
		}
		if !resp.OK() {
			s.logger.Warn("投稿の削除でGatewayがエラーを返しました",
				zap.String("id", id), zap.Int("status", resp.StatusCode))
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
