package devgateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/nao1215/teacherhub/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSecret はテスト用のJWTシークレット。
const testSecret = "devgateway-test-secret"

// tickingClock は呼ばれるたびに1秒進む時計。
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// setupTestServer はインメモリSQLiteで開発用Gatewayを構築する。
func setupTestServer(t *testing.T) *Server {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	// :memory: は接続ごとに別のDBになる
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := initSchema(context.Background(), sqlDB, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}

	s := newServer("0", sqlDB, testSecret, time.Hour, zaptest.NewLogger(t))
	s.bcryptCost = bcrypt.MinCost
	clock := &tickingClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	s.now = clock.Now
	return s
}

func TestInitSchema(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	// 2回目は適用済みのまま同じバージョンを記録する
	for i := range 2 {
		core, logs := observer.New(zap.InfoLevel)
		if err := initSchema(ctx, sqlDB, zap.New(core)); err != nil {
			t.Fatalf("%d回目のinitSchema()でエラーが発生: %v", i+1, err)
		}

		entries := logs.FilterMessage("スキーマを初期化しました").All()
		if len(entries) != 1 {
			t.Fatalf("初期化のログ数 = %d, want 1", len(entries))
		}
		if diff := cmp.Diff([]any{1}, entries[0].ContextMap()["versions"]); diff != "" {
			t.Errorf("versions mismatch (-want +got):\n%s", diff)
		}
	}
}

func do(s *Server, method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗: %v (body=%s)", err, w.Body.String())
	}
	return v
}

// signUpAndIn は利用者を登録してトークンを返す。
func signUpAndIn(t *testing.T, s *Server, email string, professor bool) string {
	t.Helper()

	body := `{"email":"` + email + `","password":"pw","isProfessor":` + strconv.FormatBool(professor) + `}`
	if w := do(s, http.MethodPost, "/user/signup", body, ""); w.Code != http.StatusCreated {
		t.Fatalf("signup: ステータスコード = %d, body = %s", w.Code, w.Body.String())
	}
	w := do(s, http.MethodPost, "/user/signin", `{"email":"`+email+`","password":"pw"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("signin: ステータスコード = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[struct {
		Token string `json:"token"`
	}](t, w).Token
}

// createPost は投稿を作成してそのレコードを返す。
func createPost(t *testing.T, s *Server, token, titulo, resumo, conteudo string) postRecord {
	t.Helper()

	body, err := json.Marshal(postRequest{Titulo: titulo, Resumo: resumo, Conteudo: conteudo})
	if err != nil {
		t.Fatal(err)
	}
	w := do(s, http.MethodPost, "/posts", string(body), token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: ステータスコード = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[postRecord](t, w)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	w := do(s, http.MethodGet, "/health", "", "")

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
	want := map[string]string{"status": "ok", "service": "devgateway"}
	if diff := cmp.Diff(want, decode[map[string]string](t, w)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestSignUp(t *testing.T) {
	t.Parallel()

	t.Run("既定で教師ロールの利用者を登録すること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		w := do(s, http.MethodPost, "/user/signup", `{"email":"prof@example.com","password":"pw"}`, "")

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusCreated)
		}
		got := decode[struct {
			User userResponse `json:"user"`
		}](t, w).User
		want := userResponse{ID: 1, Email: "prof@example.com", IsProfessor: true}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("user mismatch (-want +got):\n%s", diff)
		}
		if strings.Contains(w.Body.String(), "password") {
			t.Errorf("レスポンスにパスワード情報が含まれる: %s", w.Body.String())
		}
	})

	t.Run("senhaをパスワードとして受け付けること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		w := do(s, http.MethodPost, "/user/signup", `{"email":"a@example.com","senha":"pw"}`, "")
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusCreated)
		}
		w = do(s, http.MethodPost, "/user/signin", `{"email":"a@example.com","senha":"pw"}`, "")
		if w.Code != http.StatusOK {
			t.Errorf("signin: ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("同じメールアドレスは409を返すこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		body := `{"email":"dup@example.com","password":"pw"}`
		do(s, http.MethodPost, "/user/signup", body, "")
		w := do(s, http.MethodPost, "/user/signup", body, "")

		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("必須項目が無ければ400を返すこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		for _, body := range []string{`{"email":"a@example.com"}`, `{"password":"pw"}`, `not json`} {
			w := do(s, http.MethodPost, "/user/signup", body, "")
			if w.Code != http.StatusBadRequest {
				t.Errorf("body=%s: ステータスコード = %d, want %d", body, w.Code, http.StatusBadRequest)
			}
		}
	})
}

func TestSignIn(t *testing.T) {
	t.Parallel()

	t.Run("トークンと利用者情報を返すこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		token := signUpAndIn(t, s, "prof@example.com", true)

		claims, err := middleware.ParseJWT(testSecret, token)
		if err != nil {
			t.Fatalf("ParseJWT()でエラーが発生: %v", err)
		}
		want := middleware.Identity{UserID: 1, Email: "prof@example.com", Professor: true}
		got := middleware.Identity{UserID: claims.UserID, Email: claims.Email, Professor: claims.Professor}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("identity mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("パスワードが違えば401を返すこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		do(s, http.MethodPost, "/user/signup", `{"email":"prof@example.com","password":"pw"}`, "")
		w := do(s, http.MethodPost, "/user/signin", `{"email":"prof@example.com","password":"wrong"}`, "")

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if strings.Contains(w.Body.String(), "token") {
			t.Errorf("失敗時にトークンが含まれる: %s", w.Body.String())
		}
	})

	t.Run("未登録の利用者は401を返すこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		w := do(s, http.MethodPost, "/user/signin", `{"email":"nobody@example.com","password":"pw"}`, "")

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

func TestPostLifecycle(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	token := signUpAndIn(t, s, "prof@example.com", true)

	created := createPost(t, s, token, "T", "S", "B")
	if created.ID == "" {
		t.Fatal("IDが採番されていない")
	}
	want := postRecord{
		ID:          created.ID,
		Titulo:      "T",
		Resumo:      "S",
		Conteudo:    "B",
		ProfessorID: 1,
		CreatedAt:   created.CreatedAt,
		UpdatedAt:   created.CreatedAt,
	}
	if diff := cmp.Diff(want, created); diff != "" {
		t.Errorf("created mismatch (-want +got):\n%s", diff)
	}
	if _, err := time.Parse(time.RFC3339Nano, created.CreatedAt); err != nil {
		t.Errorf("created_atがRFC 3339ではない: %q", created.CreatedAt)
	}

	t.Run("一覧はpostsフィールドで返すこと", func(t *testing.T) {
		w := do(s, http.MethodGet, "/posts", "", "")
		got := decode[struct {
			Posts []postRecord `json:"posts"`
		}](t, w).Posts
		if diff := cmp.Diff([]postRecord{created}, got); diff != "" {
			t.Errorf("posts mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("1件取得はpostフィールドで返すこと", func(t *testing.T) {
		w := do(s, http.MethodGet, "/posts/"+created.ID, "", "")
		got := decode[struct {
			Post postRecord `json:"post"`
		}](t, w).Post
		if diff := cmp.Diff(created, got); diff != "" {
			t.Errorf("post mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("更新は全置換でupdated_atを進めること", func(t *testing.T) {
		w := do(s, http.MethodPut, "/posts/"+created.ID, `{"titulo":"T2","resumo":"S2","conteudo":"B2"}`, token)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, body = %s", w.Code, w.Body.String())
		}
		got := decode[postRecord](t, w)
		if got.Titulo != "T2" || got.Resumo != "S2" || got.Conteudo != "B2" {
			t.Errorf("更新内容が反映されていない: %+v", got)
		}
		if got.CreatedAt != created.CreatedAt {
			t.Errorf("created_at = %q, want %q", got.CreatedAt, created.CreatedAt)
		}
		if got.UpdatedAt <= created.UpdatedAt {
			t.Errorf("updated_at = %q, want after %q", got.UpdatedAt, created.UpdatedAt)
		}
	})

	t.Run("削除後は404になること", func(t *testing.T) {
		w := do(s, http.MethodDelete, "/posts/"+created.ID, "", token)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, body = %s", w.Code, w.Body.String())
		}
		if w := do(s, http.MethodGet, "/posts/"+created.ID, "", ""); w.Code != http.StatusNotFound {
			t.Errorf("GET: ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
		if w := do(s, http.MethodDelete, "/posts/"+created.ID, "", token); w.Code != http.StatusNotFound {
			t.Errorf("再DELETE: ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestListPosts_Order(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	token := signUpAndIn(t, s, "prof@example.com", true)
	first := createPost(t, s, token, "first", "s", "b")
	second := createPost(t, s, token, "second", "s", "b")

	w := do(s, http.MethodGet, "/posts", "", "")
	got := decode[struct {
		Posts []postRecord `json:"posts"`
	}](t, w).Posts
	if diff := cmp.Diff([]string{second.ID, first.ID}, idsOf(got)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchPosts(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	token := signUpAndIn(t, s, "prof@example.com", true)
	golang := createPost(t, s, token, "Go入門", "基礎", "goroutineの話")
	percent := createPost(t, s, token, "100%の理解", "割合", "本文")
	summary := createPost(t, s, token, "タイトル", "Goの要約", "本文")
	createPost(t, s, token, "Rust", "所有権", "借用")

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "タイトル・要約・本文を大文字小文字を区別せず検索すること", query: "go", want: []string{summary.ID, golang.ID}},
		{name: "%はリテラルとして扱うこと", query: "%", want: []string{percent.ID}},
		{name: "一致が無ければ空配列を返すこと", query: "python", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := do(s, http.MethodGet, "/posts/search?query="+url.QueryEscape(tt.query), "", "")
			if w.Code != http.StatusOK {
				t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
			}
			got := decode[struct {
				Posts []postRecord `json:"posts"`
			}](t, w).Posts
			if diff := cmp.Diff(tt.want, idsOf(got), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWriteAuthorization(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	professor := signUpAndIn(t, s, "prof@example.com", true)
	student := signUpAndIn(t, s, "student@example.com", false)
	existing := createPost(t, s, professor, "T", "S", "B")

	body := `{"titulo":"T","resumo":"S","conteudo":"B"}`
	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{name: "トークンが無ければ作成は401", method: http.MethodPost, path: "/posts", want: http.StatusUnauthorized},
		{name: "undefinedトークンでの作成は401", method: http.MethodPost, path: "/posts", token: "undefined", want: http.StatusUnauthorized},
		{name: "学生の作成は403", method: http.MethodPost, path: "/posts", token: student, want: http.StatusForbidden},
		{name: "学生の更新は403", method: http.MethodPut, path: "/posts/" + existing.ID, token: student, want: http.StatusForbidden},
		{name: "学生の削除は403", method: http.MethodDelete, path: "/posts/" + existing.ID, token: student, want: http.StatusForbidden},
		{name: "存在しない投稿の更新は404", method: http.MethodPut, path: "/posts/missing", token: professor, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reqBody := ""
			if tt.method != http.MethodDelete {
				reqBody = body
			}
			w := do(s, tt.method, tt.path, reqBody, tt.token)
			if w.Code != tt.want {
				t.Errorf("ステータスコード = %d, want %d (body=%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestCreatePost_Validation(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	token := signUpAndIn(t, s, "prof@example.com", true)

	w := do(s, http.MethodPost, "/posts", `{"titulo":"T"}`, token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestLikePattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		term string
		want string
	}{
		{term: "go", want: "%go%"},
		{term: "100%", want: `%100\%%`},
		{term: "a_b", want: `%a\_b%`},
		{term: `c:\dir`, want: `%c:\\dir%`},
	}
	for _, tt := range tests {
		if got := likePattern(tt.term); got != tt.want {
			t.Errorf("likePattern(%q) = %q, want %q", tt.term, got, tt.want)
		}
	}
}

func idsOf(posts []postRecord) []string {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	return ids
}
