package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"om-intel-chat/internal/middleware"
	"om-intel-chat/internal/service"
)

// SnapshotHandler 负责生成结构化摘要。
type SnapshotHandler struct {
	snapshotService service.SnapshotService
}

// NewSnapshotHandler 创建一个新的 SnapshotHandler。
func NewSnapshotHandler(snapshotService service.SnapshotService) *SnapshotHandler {
	return &SnapshotHandler{snapshotService: snapshotService}
}

// GenerateSnapshot 为调用者自己的已就绪文档生成摘要。
func (h *SnapshotHandler) GenerateSnapshot(c *gin.Context) {
	var req documentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DocumentID == "" {
		badRequest(c, "documentId is required")
		return
	}

	res, err := h.snapshotService.Generate(c.Request.Context(), middleware.UserID(c), req.DocumentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"documentName": res.DocumentName,
		"snapshot":     res.Snapshot,
	})
}
