package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"om-intel-chat/pkg/log"
)

// CronSecretHeader 是定时触发方和内部调用方携带共享密钥的请求头。
const CronSecretHeader = "X-Cron-Secret"

// CronAuthMiddleware 校验定时任务触发请求的共享密钥，secret 为空时不做校验。
func CronAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		if !validCronSecret(c, secret) {
			log.Warnf("[CronAuth] 拒绝未授权的任务触发, clientIP=%s", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid cron secret"})
			return
		}
		c.Next()
	}
}

// IdentityOrCronSecret 要求请求已由 OptionalAuth 识别出用户，或携带内部调用的共享密钥。
// secret 为空时只放行已认证的请求。
func IdentityOrCronSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) != "" || (secret != "" && validCronSecret(c, secret)) {
			c.Next()
			return
		}
		log.Warnf("[CronAuth] 拒绝既无 token 也无共享密钥的请求, path=%s, clientIP=%s", c.FullPath(), c.ClientIP())
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
}

func validCronSecret(c *gin.Context, secret string) bool {
	provided := c.GetHeader(CronSecretHeader)
	return subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) == 1
}
