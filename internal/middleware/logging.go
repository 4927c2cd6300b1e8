package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"om-intel-chat/pkg/log"
)

// maxLoggedBody 是日志中记录的请求体/响应体的最大字节数。
const maxLoggedBody = 4096

// bodyLogWriter 用于捕获响应体，流式响应不缓存。
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer
func (w *bodyLogWriter) Write(b []byte) (int, error) {
	if !isStreaming(w.Header().Get("Content-Type")) && w.body.Len() < maxLoggedBody {
		w.body.Write(b[:min(len(b), maxLoggedBody-w.body.Len())])
	}
	return w.ResponseWriter.Write(b)
}

func isStreaming(contentType string) bool {
	return strings.HasPrefix(contentType, "text/event-stream")
}

// loggedPath 优先记录路由模板，路径参数（如 websocket 的 :token）不会写入日志。
func loggedPath(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return c.Request.URL.Path
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。
// multipart 上传和 SSE 响应只记录元信息。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		var requestBody []byte
		contentType := c.GetHeader("Content-Type")
		if c.Request.Body != nil && !strings.HasPrefix(contentType, "multipart/") {
			requestBody, _ = io.ReadAll(c.Request.Body)
			// 将读取的请求体重新设置回 c.Request.Body，以便后续处理函数可以正常读取
			c.Request.Body = io.NopCloser(bytes.NewReader(requestBody))
		}

		blw := &bodyLogWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		loggedRequest := requestBody
		if len(loggedRequest) > maxLoggedBody {
			loggedRequest = loggedRequest[:maxLoggedBody]
		}
		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", loggedPath(c),
			"requestBody", string(loggedRequest),
			"responseBody", blw.body.String(),
		)
	}
}
