package model

import "time"

// JobStatus 提取任务状态
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// ExtractionJob 是排队中的一次文档文本提取。
type ExtractionJob struct {
	ID           string     `gorm:"type:char(36);primaryKey" json:"id"`
	DocumentID   string     `gorm:"type:char(36);index;not null" json:"documentId"`
	Status       JobStatus  `gorm:"type:varchar(20);index:idx_job_queue,priority:1;not null" json:"status"`
	Priority     int        `gorm:"not null;default:0;index:idx_job_queue,priority:2" json:"priority"`
	Attempts     int        `gorm:"not null;default:0" json:"attempts"`
	ErrorMessage *string    `gorm:"type:text" json:"errorMessage,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index:idx_job_queue,priority:3" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (ExtractionJob) TableName() string {
	return "extraction_jobs"
}
