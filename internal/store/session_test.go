package store

import (
	"context"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// アイドル接続の後始末は非同期に終わる
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)
}

// openTestSession はインメモリのSessionDBを開く。
func openTestSession(t *testing.T) *SessionDB {
	t.Helper()

	s, err := OpenSession(context.Background(), memoryPath, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("OpenSession()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

// cookieValues はCookieの名前と値の組を返す。
func cookieValues(cookies []*http.Cookie) map[string]string {
	m := map[string]string{}
	for _, c := range cookies {
		m[c.Name] = c.Value
	}
	return m
}

func TestSessionDB_Marker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestSession(t)

	got, err := s.Marker(ctx)
	if err != nil {
		t.Fatalf("Marker()でエラーが発生: %v", err)
	}
	if diff := cmp.Diff(Marker{}, got); diff != "" {
		t.Errorf("初期マーカー mismatch (-want +got):\n%s", diff)
	}

	want := Marker{Authenticated: true, Professor: true}
	if err := s.SaveMarker(ctx, want); err != nil {
		t.Fatalf("SaveMarker()でエラーが発生: %v", err)
	}
	if err := s.SaveMarker(ctx, want); err != nil {
		t.Fatalf("2回目のSaveMarker()でエラーが発生: %v", err)
	}
	got, err = s.Marker(ctx)
	if err != nil {
		t.Fatalf("Marker()でエラーが発生: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("保存後のマーカー mismatch (-want +got):\n%s", diff)
	}

	if err := s.ClearMarker(ctx); err != nil {
		t.Fatalf("ClearMarker()でエラーが発生: %v", err)
	}
	got, err = s.Marker(ctx)
	if err != nil {
		t.Fatalf("Marker()でエラーが発生: %v", err)
	}
	if diff := cmp.Diff(Marker{}, got); diff != "" {
		t.Errorf("削除後のマーカー mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionDB_Persistence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.db")
	u := mustURL(t, "http://localhost:3000/api/posts")

	first, err := OpenSession(ctx, path, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("OpenSession()でエラーが発生: %v", err)
	}
	if err := first.SaveMarker(ctx, Marker{Authenticated: true}); err != nil {
		t.Fatalf("SaveMarker()でエラーが発生: %v", err)
	}
	first.Jar().SetCookies(u, []*http.Cookie{{Name: "auth-token", Value: "jwt", Path: "/", MaxAge: 3600, HttpOnly: true}})
	if err := first.Close(); err != nil {
		t.Fatalf("Close()でエラーが発生: %v", err)
	}

	second, err := OpenSession(ctx, path, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("再オープンでエラーが発生: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	m, err := second.Marker(ctx)
	if err != nil {
		t.Fatalf("Marker()でエラーが発生: %v", err)
	}
	if !m.Authenticated {
		t.Error("再オープン後にマーカーが失われた")
	}
	if diff := cmp.Diff(map[string]string{"auth-token": "jwt"}, cookieValues(second.Jar().Cookies(u))); diff != "" {
		t.Errorf("cookies mismatch (-want +got):\n%s", diff)
	}
}

func TestJar(t *testing.T) {
	t.Parallel()

	u := mustURL(t, "http://localhost:3000/api/posts")

	t.Run("同じホストにだけCookieを返すこと", func(t *testing.T) {
		t.Parallel()

		s := openTestSession(t)
		jar := s.Jar()
		jar.SetCookies(u, []*http.Cookie{{Name: "auth-token", Value: "jwt", Path: "/", MaxAge: 60}})

		if diff := cmp.Diff(map[string]string{"auth-token": "jwt"}, cookieValues(jar.Cookies(mustURL(t, "http://localhost:3000/api/auth/signin")))); diff != "" {
			t.Errorf("cookies mismatch (-want +got):\n%s", diff)
		}
		if got := jar.Cookies(mustURL(t, "http://example.com/api/posts")); len(got) != 0 {
			t.Errorf("別ホストにCookieが送られる: %v", got)
		}
	})

	t.Run("同名のCookieは上書きすること", func(t *testing.T) {
		t.Parallel()

		s := openTestSession(t)
		jar := s.Jar()
		jar.SetCookies(u, []*http.Cookie{{Name: "auth-token", Value: "old", Path: "/", MaxAge: 60}})
		jar.SetCookies(u, []*http.Cookie{{Name: "auth-token", Value: "new", Path: "/", MaxAge: 60}})

		if diff := cmp.Diff(map[string]string{"auth-token": "new"}, cookieValues(jar.Cookies(u))); diff != "" {
			t.Errorf("cookies mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Max-Ageが負のCookieは削除すること", func(t *testing.T) {
		t.Parallel()

		s := openTestSession(t)
		jar := s.Jar()
		jar.SetCookies(u, []*http.Cookie{{Name: "auth-token", Value: "jwt", Path: "/", MaxAge: 60}})
		jar.SetCookies(u, []*http.Cookie{{Name: "auth-token", Value: "", Path: "/", MaxAge: -1}})

		if got := jar.Cookies(u); len(got) != 0 {
			t.Errorf("削除したCookieが返る: %v", got)
		}
	})

	t.Run("期限切れのCookieは返さないこと", func(t *testing.T) {
		t.Parallel()

		s := openTestSession(t)
		jar := s.Jar()
		jar.SetCookies(u, []*http.Cookie{{Name: "auth-token", Value: "jwt", Path: "/", MaxAge: 60}})
		jar.SetCookies(u, []*http.Cookie{{Name: "auth-token", Value: "jwt", Path: "/", Expires: time.Now().Add(-time.Hour)}})

		if got := jar.Cookies(u); len(got) != 0 {
			t.Errorf("期限切れのCookieが返る: %v", got)
		}
		if n := countCookieRows(t, s); n != 0 {
			t.Errorf("期限切れのCookieの行数 = %d, want 0", n)
		}
	})

	t.Run("Domain属性のCookieはサブドメインにも返すこと", func(t *testing.T) {
		t.Parallel()

		s := openTestSession(t)
		jar := s.Jar()
		jar.SetCookies(mustURL(t, "http://api.example.com/api/auth/signin"), []*http.Cookie{{Name: "auth-token", Value: "jwt", Path: "/", Domain: "example.com", MaxAge: 60}})

		if diff := cmp.Diff(map[string]string{"auth-token": "jwt"}, cookieValues(jar.Cookies(mustURL(t, "http://www.example.com/")))); diff != "" {
			t.Errorf("cookies mismatch (-want +got):\n%s", diff)
		}
		if got := jar.Cookies(mustURL(t, "http://example.org/")); len(got) != 0 {
			t.Errorf("別ドメインにCookieが送られる: %v", got)
		}
	})

	t.Run("公開サフィックスをDomainに持つCookieは保存しないこと", func(t *testing.T) {
		t.Parallel()

		s := openTestSession(t)
		jar := s.Jar()
		jar.SetCookies(mustURL(t, "http://api.example.com/"), []*http.Cookie{{Name: "wide", Value: "v", Path: "/", Domain: "com", MaxAge: 60}})

		if got := jar.Cookies(mustURL(t, "http://api.example.com/")); len(got) != 0 {
			t.Errorf("公開サフィックスのCookieが返る: %v", got)
		}
		if n := countCookieRows(t, s); n != 0 {
			t.Errorf("公開サフィックスのCookieの行数 = %d, want 0", n)
		}
	})

	t.Run("Secure属性のCookieはhttpsにだけ返すこと", func(t *testing.T) {
		t.Parallel()

		s := openTestSession(t)
		jar := s.Jar()
		secure := mustURL(t, "https://localhost/api/posts")
		jar.SetCookies(secure, []*http.Cookie{{Name: "auth-token", Value: "jwt", Path: "/", MaxAge: 60, Secure: true}})

		if got := jar.Cookies(mustURL(t, "http://localhost/api/posts")); len(got) != 0 {
			t.Errorf("httpにSecure Cookieが送られる: %v", got)
		}
		if got := jar.Cookies(secure); len(got) != 1 {
			t.Errorf("httpsでのCookie数 = %d, want 1", len(got))
		}
	})

	t.Run("パスが一致するCookieだけを返すこと", func(t *testing.T) {
		t.Parallel()

		s := openTestSession(t)
		jar := s.Jar()
		jar.SetCookies(u, []*http.Cookie{{Name: "scoped", Value: "v", Path: "/api/posts", MaxAge: 60}})

		if got := jar.Cookies(mustURL(t, "http://localhost:3000/api/posts/1")); len(got) != 1 {
			t.Errorf("配下のパスでのCookie数 = %d, want 1", len(got))
		}
		if got := jar.Cookies(mustURL(t, "http://localhost:3000/api/postsx")); len(got) != 0 {
			t.Errorf("前方一致だけのパスにCookieが送られる: %v", got)
		}
		if got := jar.Cookies(mustURL(t, "http://localhost:3000/api/auth/signin")); len(got) != 0 {
			t.Errorf("別パスにCookieが送られる: %v", got)
		}
	})
}

func TestJar_Reload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := time.Now().Add(time.Hour)
	api := mustURL(t, "http://api.example.com/api/auth/signin")
	www := mustURL(t, "http://www.example.com/")

	reopen := func(t *testing.T, path string, now time.Time) *SessionDB {
		t.Helper()

		s, err := openSession(ctx, path, zaptest.NewLogger(t), func() time.Time { return now })
		if err != nil {
			t.Fatalf("openSession()でエラーが発生: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	path := filepath.Join(t.TempDir(), "session.db")
	first := reopen(t, path, base)
	first.Jar().SetCookies(api, []*http.Cookie{
		{Name: "auth-token", Value: "jwt", Path: "/", Domain: "example.com", MaxAge: 60},
		{Name: "pref", Value: "dark", Path: "/", Domain: ".example.com"},
	})
	if err := first.Close(); err != nil {
		t.Fatalf("Close()でエラーが発生: %v", err)
	}

	t.Run("期限内ならDomain属性のCookieを読み戻すこと", func(t *testing.T) {
		s := reopen(t, path, base.Add(59*time.Second))

		want := map[string]string{"auth-token": "jwt", "pref": "dark"}
		if diff := cmp.Diff(want, cookieValues(s.Jar().Cookies(www))); diff != "" {
			t.Errorf("cookies mismatch (-want +got):\n%s", diff)
		}
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("期限切れの行は読み戻さず削除すること", func(t *testing.T) {
		s := reopen(t, path, base.Add(61*time.Second))

		want := map[string]string{"pref": "dark"}
		if diff := cmp.Diff(want, cookieValues(s.Jar().Cookies(www))); diff != "" {
			t.Errorf("cookies mismatch (-want +got):\n%s", diff)
		}
		if n := countCookieRows(t, s); n != 1 {
			t.Errorf("残った行数 = %d, want 1", n)
		}
	})
}

func TestCookieDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host   string
		attr   string
		want   string
		wantOK bool
	}{
		{host: "localhost", attr: "", want: "localhost", wantOK: true},
		{host: "api.example.com", attr: "example.com", want: "example.com", wantOK: true},
		{host: "api.example.com", attr: ".Example.com", want: "example.com", wantOK: true},
		{host: "example.com", attr: "example.com", want: "example.com", wantOK: true},
		{host: "api.example.com", attr: "other.com", wantOK: false},
		{host: "api.example.com", attr: "com", wantOK: false},
		{host: "example.com", attr: "ample.com", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := cookieDomain(tt.host, tt.attr)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("cookieDomain(%q, %q) = (%q, %v), want (%q, %v)", tt.host, tt.attr, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                 "/",
		"/":                "/",
		"/signin":          "/",
		"/api/auth/signin": "/api/auth",
		"/api/posts/":      "/api/posts",
		"relative/path":    "/",
	}
	for in, want := range tests {
		if got := defaultPath(in); got != want {
			t.Errorf("defaultPath(%q) = %q, want %q", in, got, want)
		}
	}
}

// countCookieRows は保存されているCookieの行数を返す。
func countCookieRows(t *testing.T, s *SessionDB) int {
	t.Helper()

	var n int
	if err := s.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM cookies`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}
