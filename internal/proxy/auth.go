package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/teacherhub/pkg/httpclient"
)

// forwardFunc は認証情報をGatewayへ転送する関数。
type forwardFunc func(ctx context.Context, credentials []byte) (*httpclient.Response, error)

// credentialRoute はサインイン・サインアップの転送方法。
type credentialRoute struct {
	// op はログに出す操作名。
	op string
	// forward はGatewayへの転送関数。
	forward forwardFunc
	// failure は転送できなかったときのエラーメッセージ。
	failure string
	// mirrorStatus がtrueならGatewayのステータスをそのまま返す。
	// falseならトークンがあれば200、無ければ401を返す。
	mirrorStatus bool
}

// handleSignIn はサインインを転送するハンドラを返す。
// Gatewayがトークンを返せばセッションCookieを設定してペイロードをそのまま返し、
// トークンが無ければペイロードを401で返す。
func (s *Server) handleSignIn() gin.HandlerFunc {
	return s.handleCredentials(credentialRoute{
		op:      "サインイン",
		forward: s.gateway.SignIn,
		failure: errSignin,
	})
}

// handleSignUp はサインアップを転送するハンドラを返す。
// Gatewayのステータスとペイロードをそのまま返し、トークンがあればサインインと同じくCookieを設定する。
func (s *Server) handleSignUp() gin.HandlerFunc {
	return s.handleCredentials(credentialRoute{
		op:           "サインアップ",
		forward:      s.gateway.SignUp,
		failure:      errSignup,
		mirrorStatus: true,
	})
}

// handleCredentials はサインイン・サインアップ共通の転送処理。
// パスワードを含むボディやトークンはログに出さない。
func (s *Server) handleCredentials(route credentialRoute) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil || !json.Valid(body) {
			s.logger.Warn(route.op+"のリクエストボディが不正です", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": route.failure})
			return
		}

		resp, err := route.forward(c.Request.Context(), body)
		if err != nil {
			s.logger.Error(route.op+"の転送に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": route.failure})
			return
		}

		token, err := tokenOf(resp.Body)
		if err != nil {
			s.logger.Error(route.op+"のレスポンスがJSONではありません",
				zap.Int("status", resp.StatusCode), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": route.failure})
			return
		}

		status := resp.StatusCode
		if token != "" {
			s.setSessionCookie(c, token, sessionMaxAge)
			if !route.mirrorStatus {
				status = http.StatusOK
			}
		} else if !route.mirrorStatus {
			status = http.StatusUnauthorized
		}
		c.Data(status, gin.MIMEJSON, resp.Body)
	}
}

// handleSignOut はセッションCookieを削除するハンドラを返す。Gatewayは呼ばない。
func (s *Server) handleSignOut() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.setSessionCookie(c, "", -1)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// sessionToken はセッションCookieのトークンを返す。空の値は無いものとして扱う。
func (s *Server) sessionToken(c *gin.Context) (string, bool) {
	token, err := c.Cookie(SessionCookieName)
	if err != nil || token == "" {
		return "", false
	}
	return token, true
}

// setSessionCookie はセッションCookieを設定する。maxAgeが負ならCookieを削除する。
func (s *Server) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(SessionCookieName, token, maxAge, "/", "", s.secureCookie, true)
}

// tokenOf はGatewayの認証レスポンスからトークンを取り出す。
// 空でない文字列・0以外の数値・trueをトークンとみなし、数値と真偽値は文字列にする。
// それ以外の値やtokenが無い場合は空文字を返す。ボディがJSONでなければエラー。
func tokenOf(body []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload struct {
		Token any `json:"token"`
	}
	if err := dec.Decode(&payload); err != nil {
		return "", err
	}

	switch t := payload.Token.(type) {
	case string:
		return t, nil
	case json.Number:
		if f, err := t.Float64(); err != nil || f == 0 {
			return "", nil
		}
		return t.String(), nil
	case bool:
		if t {
			return "true", nil
		}
	}
	return "", nil
}
