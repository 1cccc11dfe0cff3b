package db

import (
	"context"
)

const postColumns = `id, titulo, resumo, conteudo, professor_id, created_at, updated_at`

const createPost = `
INSERT INTO posts (id, titulo, resumo, conteudo, professor_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

// CreatePostParams はCreatePostの引数。
type CreatePostParams struct {
	ID          string
	Titulo      string
	Resumo      string
	Conteudo    string
	ProfessorID int64
	CreatedAt   string
}

// CreatePost は投稿を作成する。updated_atはcreated_atと同じ値にする。
func (q *Queries) CreatePost(ctx context.Context, arg CreatePostParams) error {
	_, err := q.db.ExecContext(ctx, createPost,
		arg.ID, arg.Titulo, arg.Resumo, arg.Conteudo, arg.ProfessorID, arg.CreatedAt, arg.CreatedAt)
	return err
}

const getPostByID = `SELECT ` + postColumns + ` FROM posts WHERE id = ?`

// GetPostByID はIDで投稿を取得する。
func (q *Queries) GetPostByID(ctx context.Context, id string) (Post, error) {
	return scanPost(q.db.QueryRowContext(ctx, getPostByID, id))
}

const listPosts = `SELECT ` + postColumns + ` FROM posts ORDER BY created_at DESC, rowid DESC`

// ListPosts は投稿を新しい順に返す。
func (q *Queries) ListPosts(ctx context.Context) ([]Post, error) {
	return q.queryPosts(ctx, listPosts)
}

const searchPosts = `
SELECT ` + postColumns + `
FROM posts
WHERE titulo LIKE ?1 ESCAPE '\' OR resumo LIKE ?1 ESCAPE '\' OR conteudo LIKE ?1 ESCAPE '\'
ORDER BY created_at DESC, rowid DESC
`

// SearchPosts はタイトル・要約・本文のいずれかにpatternが一致する投稿を新しい順に返す。
// patternはLIKEのパターンで、呼び出し側がエスケープする。
func (q *Queries) SearchPosts(ctx context.Context, pattern string) ([]Post, error) {
	return q.queryPosts(ctx, searchPosts, pattern)
}

const updatePost = `
UPDATE posts SET titulo = ?, resumo = ?, conteudo = ?, updated_at = ?
WHERE id = ?
`

// UpdatePostParams はUpdatePostの引数。
type UpdatePostParams struct {
	ID        string
	Titulo    string
	Resumo    string
	Conteudo  string
	UpdatedAt string
}

// UpdatePost は投稿を全置換で更新し、更新した行数を返す。
func (q *Queries) UpdatePost(ctx context.Context, arg UpdatePostParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updatePost, arg.Titulo, arg.Resumo, arg.Conteudo, arg.UpdatedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deletePost = `DELETE FROM posts WHERE id = ?`

// DeletePost は投稿を削除し、削除した行数を返す。
func (q *Queries) DeletePost(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deletePost, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) queryPosts(ctx context.Context, query string, args ...any) ([]Post, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	posts := []Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// scanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type scanner interface {
	Scan(dest ...any) error
}

func scanPost(s scanner) (Post, error) {
	var p Post
	err := s.Scan(&p.ID, &p.Titulo, &p.Resumo, &p.Conteudo, &p.ProfessorID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
