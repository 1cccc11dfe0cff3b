package devgateway

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	gatewaydb "github.com/nao1215/teacherhub/internal/devgateway/db"
	"github.com/nao1215/teacherhub/pkg/middleware"
)

// postRecord はGatewayが返す投稿のJSON表現。
type postRecord struct {
	ID          string `json:"id"`
	Titulo      string `json:"titulo"`
	Resumo      string `json:"resumo"`
	Conteudo    string `json:"conteudo"`
	ProfessorID int64  `json:"professor_id"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toPostRecord(p gatewaydb.Post) postRecord {
	return postRecord{
		ID:          p.ID,
		Titulo:      p.Titulo,
		Resumo:      p.Resumo,
		Conteudo:    p.Conteudo,
		ProfessorID: p.ProfessorID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toPostRecords(posts []gatewaydb.Post) []postRecord {
	records := make([]postRecord, 0, len(posts))
	for _, p := range posts {
		records = append(records, toPostRecord(p))
	}
	return records
}

// postRequest は投稿の作成・更新リクエストのボディ。
type postRequest struct {
	Titulo   string `json:"titulo" binding:"required"`
	Resumo   string `json:"resumo" binding:"required"`
	Conteudo string `json:"conteudo" binding:"required"`
}

// handleListPosts は投稿一覧を新しい順に返すハンドラを返す。
func (s *Server) handleListPosts() gin.HandlerFunc {
	return func(c *gin.Context) {
		posts, err := s.queries.ListPosts(c.Request.Context())
		if err != nil {
			s.logger.Error("投稿一覧の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "投稿一覧の取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"posts": toPostRecords(posts)})
	}
}

// handleSearchPosts はタイトル・要約・本文の部分一致で投稿を検索するハンドラを返す。
// queryが空なら一覧と同じ結果を返す。
func (s *Server) handleSearchPosts() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		term := c.Query("query")

		var (
			posts []gatewaydb.Post
			err   error
		)
		if term == "" {
			posts, err = s.queries.ListPosts(ctx)
		} else {
			posts, err = s.queries.SearchPosts(ctx, likePattern(term))
		}
		if err != nil {
			s.logger.Error("投稿の検索に失敗", zap.String("query", term), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "投稿の検索に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"posts": toPostRecords(posts)})
	}
}

// handleGetPost は投稿を1件返すハンドラを返す。
func (s *Server) handleGetPost() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		p, err := s.queries.GetPostByID(c.Request.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "投稿が見つかりません"})
			return
		}
		if err != nil {
			s.logger.Error("投稿の取得に失敗", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "投稿の取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"post": toPostRecord(p)})
	}
}

// handleCreatePost は投稿を作成するハンドラを返す。
// 投稿者はトークンの利用者になる。
func (s *Server) handleCreatePost() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req postRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "titulo, resumo, conteudoは必須です"})
			return
		}

		ctx := c.Request.Context()
		id := newPostID()
		if err := s.queries.CreatePost(ctx, gatewaydb.CreatePostParams{
			ID:          id,
			Titulo:      req.Titulo,
			Resumo:      req.Resumo,
			Conteudo:    req.Conteudo,
			ProfessorID: middleware.GetUserID(c),
			CreatedAt:   s.timestamp(),
		}); err != nil {
			s.logger.Error("投稿の作成に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "投稿の作成に失敗しました"})
			return
		}

		p, err := s.queries.GetPostByID(ctx, id)
		if err != nil {
			s.logger.Error("作成した投稿の取得に失敗", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "投稿の作成に失敗しました"})
			return
		}

		s.logger.Info("投稿を作成しました", zap.String("id", id), zap.Int64("professor_id", p.ProfessorID))
		c.JSON(http.StatusCreated, toPostRecord(p))
	}
}

// handleUpdatePost は投稿を全置換で更新するハンドラを返す。
func (s *Server) handleUpdatePost() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req postRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "titulo, resumo, conteudoは必須です"})
			return
		}

		ctx := c.Request.Context()
		id := c.Param("id")
		n, err := s.queries.UpdatePost(ctx, gatewaydb.UpdatePostParams{
			ID:        id,
			Titulo:    req.Titulo,
			Resumo:    req.Resumo,
			Conteudo:  req.Conteudo,
			UpdatedAt: s.timestamp(),
		})
		if err != nil {
			s.logger.Error("投稿の更新に失敗", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "投稿の更新に失敗しました"})
			return
		}
		if n == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "投稿が見つかりません"})
			return
		}

		p, err := s.queries.GetPostByID(ctx, id)
		if err != nil {
			s.logger.Error("更新した投稿の取得に失敗", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "投稿の更新に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, toPostRecord(p))
	}
}

// handleDeletePost は投稿を削除するハンドラを返す。
func (s *Server) handleDeletePost() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		n, err := s.queries.DeletePost(c.Request.Context(), id)
		if err != nil {
			s.logger.Error("投稿の削除に失敗", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "投稿の削除に失敗しました"})
			return
		}
		if n == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "投稿が見つかりません"})
			return
		}

		s.logger.Info("投稿を削除しました", zap.String("id", id))
		c.JSON(http.StatusOK, gin.H{"message": "投稿を削除しました"})
	}
}

// likeEscaper はLIKEのメタ文字をエスケープする。
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern は部分一致検索のLIKEパターンを返す。
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
