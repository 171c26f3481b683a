package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/vibeup/pkg/response"
)

const sessionKey = "vibeup.session"

// Session 当前请求的已验证身份；由外部身份服务签发的 token 推导
type Session struct {
	UserID string
}

// Auth 校验 Authorization: Bearer <HS256 JWT>，sub 即用户 ID
func Auth(secret []byte, issuer string) gin.HandlerFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)
	keyFunc := func(*jwt.Token) (interface{}, error) { return secret, nil }

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			response.Unauthorized(c, "missing bearer token")
			return
		}
		claims := &jwt.RegisteredClaims{}
		if _, err := parser.ParseWithClaims(strings.TrimSpace(raw), claims, keyFunc); err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		sub := strings.TrimSpace(claims.Subject)
		if sub == "" {
			response.Unauthorized(c, "token has no subject")
			return
		}
		c.Set(sessionKey, Session{UserID: sub})
		c.Next()
	}
}

// SessionFrom 取出 Auth 写入的会话
func SessionFrom(c *gin.Context) (Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return Session{}, false
	}
	s, ok := v.(Session)
	return s, ok
}
