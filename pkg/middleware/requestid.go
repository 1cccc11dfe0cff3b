package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID はリクエストIDを運ぶヘッダー。
const HeaderRequestID = "X-Request-ID"

const contextKeyRequestID = "request_id"

// maxRequestIDLength は受け入れるリクエストIDの最大長。これを超えるものは採番し直す。
const maxRequestIDLength = 128

// RequestID はリクエストIDを付与するGinミドルウェアを返す。
// 受信ヘッダーに値があればそれを使い、無ければUUIDを採番してレスポンスヘッダーにも返す。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(contextKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// GetRequestID はRequestIDが設定したリクエストIDを返す。
func GetRequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}
