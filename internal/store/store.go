package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/nao1215/teacherhub/internal/post"
	"github.com/nao1215/teacherhub/pkg/httpclient"
)

var (
	// ErrNotFound は投稿が見つからないことを表す。
	ErrNotFound = errors.New("投稿が見つかりません")
	// ErrUnauthorized は認証に失敗したことを表す。
	ErrUnauthorized = errors.New("認証に失敗しました")
)

// Store はローカルAPIから取得した投稿一覧とサインイン状態を保持する。
// 状態の更新はミューテックスで直列化するが、重なった変更操作は調停しない。
// 最後に完了した一覧の取得結果が残る。
type Store struct {
	mu sync.Mutex
	// api はローカルAPIのクライアント。
	api *httpclient.Client
	// session はマーカーとCookieの保存先。
	session *SessionDB
	// logger はロガー。
	logger *zap.Logger

	posts      []post.Post
	searchTerm string
	loggedIn   bool
	professor  bool
}

// New はapiURLのローカルAPIを使う新しいStoreを生成する。
// HTTPクライアントはsessionのCookieJarを使う。
func New(apiURL string, session *SessionDB, logger *zap.Logger, opts ...httpclient.Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]httpclient.Option{
		httpclient.WithHTTPClient(&http.Client{Jar: session.Jar()}),
	}, opts...)

	return &Store{
		api:     httpclient.New(apiURL, opts...),
		session: session,
		logger:  logger,
		posts:   []post.Post{},
	}
}

// Load は保存済みのマーカーからサインイン状態を読み込み、投稿一覧を取得する。
func (s *Store) Load(ctx context.Context) error {
	m, err := s.session.Marker(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.loggedIn = m.Authenticated
	s.professor = m.Professor
	s.mu.Unlock()

	return s.Refresh(ctx)
}

// Refresh は現在の検索語で投稿一覧を取り直す。
// 取得に失敗した場合は一覧を変更しない。
func (s *Store) Refresh(ctx context.Context) error {
	path := "/api/posts"
	if term := s.SearchTerm(); term != "" {
		path += "?query=" + url.QueryEscape(term)
	}

	var posts []post.Post
	if err := s.api.GetJSON(ctx, path, &posts); err != nil {
		return fmt.Errorf("投稿一覧の取得に失敗: %w", err)
	}
	if posts == nil {
		posts = []post.Post{}
	}

	s.mu.Lock()
	s.posts = posts
	s.mu.Unlock()
	return nil
}

// Search は検索語を設定して投稿一覧を取り直す。空文字で検索を解除する。
func (s *Store) Search(ctx context.Context, term string) error {
	s.mu.Lock()
	s.searchTerm = term
	s.mu.Unlock()

	return s.Refresh(ctx)
}

// Get は投稿を1件取得する。一覧は変更しない。
func (s *Store) Get(ctx context.Context, id string) (post.Post, error) {
	var p post.Post
	if err := s.api.GetJSON(ctx, "/api/posts/"+url.PathEscape(id), &p); err != nil {
		if statusIs(err, http.StatusNotFound) {
			return post.Post{}, ErrNotFound
		}
		return post.Post{}, fmt.Errorf("投稿の取得に失敗: %w", err)
	}
	return p, nil
}

// Create は投稿を作成し、結果に関わらず一覧を取り直す。
func (s *Store) Create(ctx context.Context, in post.Input) (post.Post, error) {
	var created post.Post
	err := s.api.PostJSON(ctx, "/api/posts", in, &created)
	if err != nil {
		err = fmt.Errorf("投稿の作成に失敗: %w", err)
	}
	return created, s.afterMutation(ctx, err)
}

// Update は投稿を全置換で更新し、結果に関わらず一覧を取り直す。
func (s *Store) Update(ctx context.Context, id string, in post.Input) error {
	err := s.api.PutJSON(ctx, "/api/posts/"+url.PathEscape(id), in, nil)
	if err != nil {
		err = fmt.Errorf("投稿の更新に失敗: %w", err)
	}
	return s.afterMutation(ctx, err)
}

// Delete は投稿を削除し、結果に関わらず一覧を取り直す。
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.api.DeleteJSON(ctx, "/api/posts/"+url.PathEscape(id), nil)
	if err != nil {
		err = fmt.Errorf("投稿の削除に失敗: %w", err)
	}
	return s.afterMutation(ctx, err)
}

// afterMutation は一覧を取り直す。変更操作のエラーがあればそちらを優先して返す。
func (s *Store) afterMutation(ctx context.Context, mutationErr error) error {
	refreshErr := s.Refresh(ctx)
	if mutationErr != nil {
		if refreshErr != nil {
			s.logger.Warn("変更後の一覧の取得に失敗", zap.Error(refreshErr))
		}
		return mutationErr
	}
	return refreshErr
}

// credentials はサインイン・サインアップのリクエストボディ。
type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// signInResponse はサインインのレスポンスのうちStoreが使う部分。
type signInResponse struct {
	Token string `json:"token"`
	User  struct {
		IsProfessor bool `json:"isProfessor"`
	} `json:"user"`
}

// SignIn はサインインし、成功したらマーカーを保存する。
// 認証に失敗した場合はErrUnauthorizedを返す。
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	var resp signInResponse
	if err := s.api.PostJSON(ctx, "/api/auth/signin", credentials{Email: email, Password: password}, &resp); err != nil {
		if statusIs(err, http.StatusUnauthorized) {
			return ErrUnauthorized
		}
		return fmt.Errorf("サインインに失敗: %w", err)
	}

	m := Marker{Authenticated: true, Professor: resp.User.IsProfessor}
	if err := s.session.SaveMarker(ctx, m); err != nil {
		return err
	}

	s.mu.Lock()
	s.loggedIn = m.Authenticated
	s.professor = m.Professor
	s.mu.Unlock()
	return nil
}

// SignUp は利用者を登録する。サインイン状態は変更しない。
func (s *Store) SignUp(ctx context.Context, email, password string) error {
	if err := s.api.PostJSON(ctx, "/api/auth/signup", credentials{Email: email, Password: password}, nil); err != nil {
		return fmt.Errorf("サインアップに失敗: %w", err)
	}
	return nil
}

// SignOut はマーカーを削除し、セッションCookieを破棄させる。
func (s *Store) SignOut(ctx context.Context) error {
	if err := s.session.ClearMarker(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.loggedIn = false
	s.professor = false
	s.mu.Unlock()

	if err := s.api.PostJSON(ctx, "/api/auth/signout", nil, nil); err != nil {
		return fmt.Errorf("サインアウトに失敗: %w", err)
	}
	return nil
}

// Posts は投稿一覧のコピーを返す。
func (s *Store) Posts() []post.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.posts)
}

// SearchTerm は現在の検索語を返す。
func (s *Store) SearchTerm() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchTerm
}

// LoggedIn はマーカー上サインイン済みかどうかを返す。
func (s *Store) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// Professor はマーカー上教師ロールかどうかを返す。
func (s *Store) Professor() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.professor
}

// statusIs はerrが指定ステータスの*httpclient.StatusErrorかどうかを返す。
func statusIs(err error, status int) bool {
	var se *httpclient.StatusError
	return errors.As(err, &se) && se.StatusCode == status
}
