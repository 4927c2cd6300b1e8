package handler

import (
	"github.com/gin-gonic/gin"
	"om-intel-chat/internal/config"
	"om-intel-chat/internal/middleware"
	"om-intel-chat/internal/service"
	"om-intel-chat/pkg/log"
)

// ChatHandler 负责 /chat-stream 的 SSE 聊天。
type ChatHandler struct {
	chatService service.ChatService
	cfg         config.ChatConfig
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, cfg config.ChatConfig) *ChatHandler {
	return &ChatHandler{chatService: chatService, cfg: cfg}
}

// ChatStream 处理一轮聊天。落库前的错误以 JSON 返回，流开始后的错误以 error 事件结束。
func (h *ChatHandler) ChatStream(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	userID := middleware.UserID(c)
	if userID == "" {
		if !h.cfg.AllowAnonymous {
			writeError(c, &service.Error{Kind: service.ErrAuth, Message: "authentication required"})
			return
		}
		userID = h.cfg.AnonymousUserID
		log.Infof("[ChatHandler] 未认证请求以匿名用户身份聊天, clientIP=%s", c.ClientIP())
	}

	ctx := c.Request.Context()
	turn, err := h.chatService.Prepare(ctx, userID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	sse := newSSEWriter(c)
	if err := h.chatService.Stream(ctx, turn, sse); err != nil {
		log.Warnf("[ChatHandler] 流式回复未正常结束, thread=%s, err=%v", turn.Thread.ID, err)
		return
	}
	if err := sse.Done(); err != nil {
		log.Warnf("[ChatHandler] 写入结束标记失败, thread=%s, err=%v", turn.Thread.ID, err)
	}
}
