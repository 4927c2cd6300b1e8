package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"om-intel-chat/internal/middleware"
	"om-intel-chat/internal/service"
	"om-intel-chat/pkg/log"
)

// multipartOverhead 是 multipart 边界和表单字段的额外字节。
const multipartOverhead = 1 << 20

// UploadHandler 负责处理 PDF 上传。
type UploadHandler struct {
	uploadService service.UploadService
	maxBytes      int64
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(uploadService service.UploadService, maxBytes int64) *UploadHandler {
	if maxBytes <= 0 {
		maxBytes = service.DefaultMaxUploadBytes
	}
	return &UploadHandler{uploadService: uploadService, maxBytes: maxBytes}
}

// UploadPDF 处理 multipart 上传，file 字段为 PDF 文件。
func (h *UploadHandler) UploadPDF(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		writeError(c, &service.Error{Kind: service.ErrAuth, Message: "authentication required"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			badRequest(c, fmt.Sprintf("file exceeds the %dMB size limit", h.maxBytes>>20))
			return
		}
		badRequest(c, "file is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Errorf("[UploadHandler] 打开上传文件失败, file=%s, err=%v", fileHeader.Filename, err)
		badRequest(c, "failed to read file")
		return
	}
	defer file.Close()

	res, err := h.uploadService.Upload(c.Request.Context(),
		service.Uploader{UserID: claims.UserID, Pro: claims.IsPro()},
		service.UploadRequest{
			FileName:    fileHeader.Filename,
			ContentType: fileHeader.Header.Get("Content-Type"),
			Size:        fileHeader.Size,
			Body:        file,
		})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"document": res.Document,
		"message":  "File uploaded successfully. Text extraction has started.",
	})
}
