// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"om-intel-chat/internal/service"
	"om-intel-chat/pkg/log"
)

// sseDone 是传输层的流结束标记。
const sseDone = "[DONE]"

// statusFor 把错误分类映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrQuota):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError 以 {"error": "..."} 返回错误，5xx 时记录完整原因。
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("[Handler] %s %s 失败: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": service.PublicMessage(err)})
}

// sseWriter 在第一次写事件时才发送 SSE 响应头，之前发生的错误仍可以用普通 JSON 返回。
type sseWriter struct {
	c       *gin.Context
	started bool
}

func newSSEWriter(c *gin.Context) *sseWriter {
	return &sseWriter{c: c}
}

func (w *sseWriter) start() {
	if w.started {
		return
	}
	h := w.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.c.Status(http.StatusOK)
	w.started = true
}

// Send 把事件编码为一行 data 并立即刷新，实现 service.EventSink。
func (w *sseWriter) Send(event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return w.writeData(string(payload))
}

// Done 写入传输层结束标记。
func (w *sseWriter) Done() error {
	return w.writeData(sseDone)
}

// Started 表示响应头是否已经发送。
func (w *sseWriter) Started() bool {
	return w.started
}

func (w *sseWriter) writeData(data string) error {
	if err := w.c.Request.Context().Err(); err != nil {
		return err
	}
	w.start()
	if _, err := fmt.Fprintf(w.c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

// ok 返回 CRUD 接口统一的成功响应。
func ok(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}

// badRequest 返回 400 和给定的消息。
func badRequest(c *gin.Context, message string) {
	writeError(c, &service.Error{Kind: service.ErrValidation, Message: message})
}
