package db

// User は登録済みの利用者。
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsProfessor  bool
	CreatedAt    string
}

// Post は投稿。日時はRFC 3339のUTC文字列で保持する。
type Post struct {
	ID          string
	Titulo      string
	Resumo      string
	Conteudo    string
	ProfessorID int64
	CreatedAt   string
	UpdatedAt   string
}
