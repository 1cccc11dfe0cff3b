package db

import (
	"context"
)

const createUser = `
INSERT INTO users (email, password_hash, is_professor, created_at)
VALUES (?, ?, ?, ?)
RETURNING id, email, password_hash, is_professor, created_at
`

// CreateUserParams はCreateUserの引数。
type CreateUserParams struct {
	Email        string
	PasswordHash string
	IsProfessor  bool
	CreatedAt    string
}

// CreateUser は利用者を登録する。
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, createUser, arg.Email, arg.PasswordHash, arg.IsProfessor, arg.CreatedAt)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsProfessor, &u.CreatedAt)
	return u, err
}

const getUserByEmail = `
SELECT id, email, password_hash, is_professor, created_at
FROM users
WHERE email = ?
`

// GetUserByEmail はメールアドレスで利用者を取得する。
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByEmail, email)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsProfessor, &u.CreatedAt)
	return u, err
}

const countUsersByEmail = `SELECT COUNT(*) FROM users WHERE email = ?`

// CountUsersByEmail はメールアドレスが一致する利用者数を返す。
func (q *Queries) CountUsersByEmail(ctx context.Context, email string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countUsersByEmail, email).Scan(&n)
	return n, err
}
