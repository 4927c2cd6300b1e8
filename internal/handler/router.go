package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"om-intel-chat/internal/middleware"
	"om-intel-chat/pkg/token"
)

// RouterDeps 汇总注册路由所需的处理器和中间件依赖。
type RouterDeps struct {
	Chat       *ChatHandler
	Extraction *ExtractionHandler
	Upload     *UploadHandler
	Snapshot   *SnapshotHandler
	Jobs       *JobHandler
	Documents  *DocumentHandler
	Threads    *ThreadHandler
	Realtime   *RealtimeHandler
	JWTManager *token.JWTManager
	CronSecret string
}

// RegisterRoutes 注册全部接口。CORS 中间件需要在此之前挂到引擎上，预检请求才能覆盖未注册 OPTIONS 的路径。
func RegisterRoutes(r *gin.Engine, deps RouterDeps) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	optional := r.Group("")
	optional.Use(middleware.OptionalAuth(deps.JWTManager))
	{
		optional.POST("/chat-stream", deps.Chat.ChatStream)
	}

	// 提取接口：携带 token 时校验文档归属，没有 token 的内部调用方需要携带共享密钥
	extraction := r.Group("")
	extraction.Use(middleware.OptionalAuth(deps.JWTManager), middleware.IdentityOrCronSecret(deps.CronSecret))
	{
		extraction.POST("/extract-pdf-text", deps.Extraction.ExtractText)
		extraction.POST("/extract-pdf-stream", deps.Extraction.ExtractStream)
	}

	authed := r.Group("")
	authed.Use(middleware.AuthMiddleware(deps.JWTManager))
	{
		authed.POST("/upload-pdf", deps.Upload.UploadPDF)
		authed.POST("/generate-snapshot", deps.Snapshot.GenerateSnapshot)

		authed.GET("/documents", deps.Documents.ListDocuments)
		authed.GET("/documents/:id", deps.Documents.GetDocument)
		authed.DELETE("/documents/:id", deps.Documents.DeleteDocument)
		authed.GET("/documents/:id/download", deps.Documents.GenerateDownloadURL)
		authed.GET("/documents/:id/preview", deps.Documents.PreviewDocument)

		authed.GET("/threads", deps.Threads.ListThreads)
		authed.GET("/threads/:id/messages", deps.Threads.ListMessages)
	}

	cron := r.Group("")
	cron.Use(middleware.CronAuthMiddleware(deps.CronSecret))
	{
		cron.POST("/process-extraction-jobs", deps.Jobs.ProcessJobs)
	}

	if deps.Realtime != nil {
		r.GET("/realtime/documents/:token", deps.Realtime.DocumentChanges)
	}
}
