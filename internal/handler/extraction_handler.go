package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"om-intel-chat/internal/extractor"
	"om-intel-chat/internal/middleware"
	"om-intel-chat/internal/service"
	"om-intel-chat/pkg/log"
)

// documentRequest 是只携带文档 ID 的请求体。
type documentRequest struct {
	DocumentID string `json:"documentId"`
}

// ExtractionHandler 负责同步和流式的文本提取接口。
type ExtractionHandler struct {
	extractionService service.ExtractionService
}

// NewExtractionHandler 创建一个新的 ExtractionHandler。
func NewExtractionHandler(extractionService service.ExtractionService) *ExtractionHandler {
	return &ExtractionHandler{extractionService: extractionService}
}

// ExtractText 提取文档文本并返回汇总。
func (h *ExtractionHandler) ExtractText(c *gin.Context) {
	var req documentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DocumentID == "" {
		badRequest(c, "documentId is required")
		return
	}

	out, err := h.extractionService.ExtractDocument(c.Request.Context(), req.DocumentID, middleware.UserID(c), nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Text extracted successfully",
		"textLength": out.TextLength,
		"chunks":     out.Chunks,
	})
}

// ExtractStream 逐页推送提取进度。
func (h *ExtractionHandler) ExtractStream(c *gin.Context) {
	var req documentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DocumentID == "" {
		badRequest(c, "documentId is required")
		return
	}

	sse := newSSEWriter(c)
	clientGone := false
	emit := func(e extractor.Event) {
		if clientGone {
			return
		}
		if err := sse.Send(e); err != nil {
			// 客户端断开后继续完成提取，结果写回文档状态
			clientGone = true
			log.Warnf("[ExtractionHandler] 客户端已断开, document=%s, err=%v", req.DocumentID, err)
		}
	}

	_, err := h.extractionService.ExtractDocument(c.Request.Context(), req.DocumentID, middleware.UserID(c), emit)
	if err != nil {
		// 请求本身的问题（参数、鉴权、不存在）以 JSON 返回，下载和解析失败一律以流内 error 事件结束
		if !sse.Started() && statusFor(err) < http.StatusInternalServerError {
			writeError(c, err)
			return
		}
		log.Errorf("[ExtractionHandler] 流式提取失败, document=%s, err=%v", req.DocumentID, err)
		if clientGone {
			return
		}
		msg := service.PublicMessage(err)
		_ = sse.Send(extractor.Event{Type: extractor.EventError, Error: msg, Message: msg})
		return
	}
	if !clientGone {
		_ = sse.Done()
	}
}
