package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCORS(t *testing.T) {
	t.Parallel()

	newRouter := func(origins []string, called *bool) *gin.Engine {
		router := gin.New()
		router.Use(CORS(origins))
		handler := func(c *gin.Context) {
			*called = true
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		}
		router.GET("/api/posts", handler)
		router.OPTIONS("/api/posts", handler)
		return router
	}

	t.Run("許可されたオリジンには資格情報付きのCORSヘッダーを返すこと", func(t *testing.T) {
		t.Parallel()

		var called bool
		req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		newRouter([]string{"http://localhost:3000", "https://example.com"}, &called).ServeHTTP(w, req)

		if !called {
			t.Error("GETリクエストでハンドラーが呼ばれるべき")
		}
		want := map[string]string{
			"Access-Control-Allow-Origin":      "http://localhost:3000",
			"Access-Control-Allow-Credentials": "true",
			"Access-Control-Allow-Methods":     "GET, POST, PUT, DELETE, OPTIONS",
			"Access-Control-Allow-Headers":     "Authorization, Content-Type, X-Request-ID",
			"Access-Control-Max-Age":           "86400",
			"Vary":                             "Origin",
		}
		for k, v := range want {
			if got := w.Header().Get(k); got != v {
				t.Errorf("%s = %q, want %q", k, got, v)
			}
		}
	})

	t.Run("許可されていないオリジンにはCORSヘッダーを付けないこと", func(t *testing.T) {
		t.Parallel()

		for _, origin := range []string{"https://evil.com", ""} {
			var called bool
			req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
			if origin != "" {
				req.Header.Set("Origin", origin)
			}
			w := httptest.NewRecorder()
			newRouter([]string{"http://localhost:3000", ""}, &called).ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("origin=%q: ステータスコード = %d, want %d", origin, w.Code, http.StatusOK)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
				t.Errorf("origin=%q: Access-Control-Allow-Origin = %q, want empty", origin, got)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
				t.Errorf("origin=%q: Access-Control-Allow-Credentials = %q, want empty", origin, got)
			}
		}
	})

	t.Run("OPTIONSリクエストは204で中断されること", func(t *testing.T) {
		t.Parallel()

		var called bool
		req := httptest.NewRequest(http.MethodOptions, "/api/posts", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		newRouter([]string{"http://localhost:3000"}, &called).ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNoContent)
		}
		if called {
			t.Error("OPTIONSリクエストでハンドラーが呼ばれるべきではない")
		}
	})
}
