// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"om-intel-chat/pkg/log"
	"om-intel-chat/pkg/token"
)

const (
	claimsKey    = "claims"
	userIDKey    = "userID"
	bearerPrefix = "Bearer "
)

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它会从请求头中提取 token，验证其有效性，并将 claims 和用户 ID 存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		claims, err := jwtManager.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			log.Warnf("[Auth] token 校验失败, path=%s, err=%v", c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalAuth 在携带有效 token 时写入身份，缺失或无效时直接放行，由处理函数决定如何处理匿名请求。
func OptionalAuth(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, bearerPrefix) {
			claims, err := jwtManager.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
			if err == nil {
				setIdentity(c, claims)
			} else {
				log.Infof("[Auth] 忽略无效 token, path=%s, err=%v", c.Request.URL.Path, err)
			}
		}
		c.Next()
	}
}

func setIdentity(c *gin.Context, claims *token.CustomClaims) {
	c.Set(claimsKey, claims)
	c.Set(userIDKey, claims.UserID)
}

// Claims 返回当前请求的 token claims，未认证时返回 nil。
func Claims(c *gin.Context) *token.CustomClaims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*token.CustomClaims)
	return claims
}

// UserID 返回当前请求的用户 ID，未认证时返回空字符串。
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
