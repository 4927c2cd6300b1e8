package handler

import (
	"github.com/gin-gonic/gin"
	"om-intel-chat/internal/middleware"
	"om-intel-chat/internal/service"
)

// ThreadHandler 处理会话线程相关的 API 请求。
type ThreadHandler struct {
	service service.ThreadService
}

// NewThreadHandler 创建一个新的 ThreadHandler。
func NewThreadHandler(service service.ThreadService) *ThreadHandler {
	return &ThreadHandler{service: service}
}

// ListThreads 获取当前用户的会话列表。
func (h *ThreadHandler) ListThreads(c *gin.Context) {
	threads, err := h.service.ListThreads(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, "获取会话列表成功", threads)
}

// ListMessages 获取会话的消息历史。
func (h *ThreadHandler) ListMessages(c *gin.Context) {
	msgs, err := h.service.ListMessages(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, "获取对话历史成功", msgs)
}
