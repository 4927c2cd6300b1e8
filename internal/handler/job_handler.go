package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"om-intel-chat/internal/service"
)

// JobHandler 负责定时触发的提取任务清扫。
type JobHandler struct {
	jobService service.JobService
}

// NewJobHandler 创建一个新的 JobHandler。
func NewJobHandler(jobService service.JobService) *JobHandler {
	return &JobHandler{jobService: jobService}
}

// ProcessJobs 处理一批待处理任务并返回每个任务的结果。
func (h *JobHandler) ProcessJobs(c *gin.Context) {
	results, err := h.jobService.Sweep(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"processed": len(results),
		"results":   results,
	})
}
