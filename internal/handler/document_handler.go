package handler

import (
	"github.com/gin-gonic/gin"
	"om-intel-chat/internal/middleware"
	"om-intel-chat/internal/service"
)

// DocumentHandler 负责处理文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// ListDocuments 获取当前用户的文档列表。
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	docs, err := h.docService.ListDocuments(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, "获取文档列表成功", docs)
}

// GetDocument 获取单个文档的状态和元信息。
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	doc, err := h.docService.GetDocument(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, "获取文档成功", doc)
}

// DeleteDocument 删除文档及其文件。
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	if err := h.docService.DeleteDocument(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	ok(c, "文档删除成功", nil)
}

// GenerateDownloadURL 生成文档的下载链接。
func (h *DocumentHandler) GenerateDownloadURL(c *gin.Context) {
	info, err := h.docService.GenerateDownloadURL(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, "文件下载链接生成成功", info)
}

// PreviewDocument 返回提取文本的开头部分。
func (h *DocumentHandler) PreviewDocument(c *gin.Context) {
	preview, err := h.docService.GetPreview(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, "获取文档预览成功", preview)
}
