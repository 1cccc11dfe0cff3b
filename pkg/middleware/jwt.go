package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer はGenerateJWTが発行するトークンのiss。
const tokenIssuer = "teacherhub-devgateway"

// contextKeyIdentity は検証済みの利用者情報を格納するGinコンテキストのキー。
const contextKeyIdentity = "identity"

// Identity はトークンが表す利用者。
type Identity struct {
	// UserID は利用者の数値ID。
	UserID int64
	// Email はメールアドレス。
	Email string
	// Professor は教師ロールかどうか。投稿の変更には教師ロールが必要。
	Professor bool
}

// JWTClaims はJWTトークンのクレーム。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は利用者の数値ID。
	UserID int64 `json:"id"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// Professor は教師ロールかどうか。
	Professor bool `json:"isProfessor"`
}

// GenerateJWT は利用者情報からHS256署名のトークンを生成する。ttlは有効期間。
func GenerateJWT(secret string, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   fmt.Sprintf("%d", id.UserID),
		},
		UserID:    id.UserID,
		Email:     id.Email,
		Professor: id.Professor,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// ParseJWT はトークンを検証してクレームを返す。HS256以外の署名は受け付けない。
func ParseJWT(secret, tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("トークンの検証に失敗: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("トークンが無効です")
	}
	return claims, nil
}

// JWTAuth はAuthorizationヘッダーのBearerトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストにIdentityを設定する。
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorizationヘッダーが必要です",
			})
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer トークン形式が不正です",
			})
			return
		}

		claims, err := ParseJWT(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効です",
			})
			return
		}

		c.Set(contextKeyIdentity, Identity{
			UserID:    claims.UserID,
			Email:     claims.Email,
			Professor: claims.Professor,
		})
		c.Next()
	}
}

// RequireProfessor は教師ロール以外を403で拒否するGinミドルウェアを返す。
// JWTAuthの後に適用する。
func RequireProfessor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "認証されていません",
			})
			return
		}
		if !id.Professor {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "教師のみが投稿を変更できます",
			})
			return
		}
		c.Next()
	}
}

// GetIdentity はJWTAuthが設定した利用者情報を取得する。
func GetIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(contextKeyIdentity)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// GetUserID はJWTAuthが設定した利用者IDを取得する。未認証なら0を返す。
func GetUserID(c *gin.Context) int64 {
	id, _ := GetIdentity(c)
	return id.UserID
}
