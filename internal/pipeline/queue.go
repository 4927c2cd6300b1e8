package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"om-intel-chat/internal/model"
	"om-intel-chat/internal/repository"
	"om-intel-chat/pkg/log"
	"om-intel-chat/pkg/tasks"
)

// TaskProducer 把提取任务投递到消息队列。
type TaskProducer interface {
	ProduceExtractionTask(ctx context.Context, task tasks.ExtractionTask) error
}

// TaskHandle 标识一次已提交的后台提取。任务的进度通过任务表和文档状态观察。
type TaskHandle struct {
	JobID      string `json:"jobId"`
	DocumentID string `json:"documentId"`
}

// TaskQueue 提交后台提取任务：先写入 pending 任务行，再投递 Kafka 消息。
type TaskQueue struct {
	jobs     repository.JobRepository
	producer TaskProducer
}

// NewTaskQueue 创建一个新的 TaskQueue 实例。producer 为 nil 时只写任务行，由定时清扫处理。
func NewTaskQueue(jobs repository.JobRepository, producer TaskProducer) *TaskQueue {
	return &TaskQueue{jobs: jobs, producer: producer}
}

// Submit 提交一个提取任务，不等待其执行。
// 任务行写入成功即视为提交成功，消息投递失败时任务保持 pending，由清扫器兜底。
func (q *TaskQueue) Submit(ctx context.Context, documentID, ownerID string) (*TaskHandle, error) {
	job := &model.ExtractionJob{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Status:     model.JobPending,
	}
	if err := q.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("创建提取任务失败: %w", err)
	}

	handle := &TaskHandle{JobID: job.ID, DocumentID: documentID}
	if q.producer == nil {
		return handle, nil
	}
	task := tasks.ExtractionTask{JobID: job.ID, DocumentID: documentID, OwnerID: ownerID}
	if err := q.producer.ProduceExtractionTask(ctx, task); err != nil {
		log.Warnf("[TaskQueue] 投递 Kafka 消息失败, 任务保持 pending, JobID: %s, Error: %v", job.ID, err)
		return handle, nil
	}
	log.Infof("[TaskQueue] 提取任务已提交, JobID: %s, DocumentID: %s", job.ID, documentID)
	return handle, nil
}
