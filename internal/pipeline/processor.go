// Package pipeline 定义了文档提取任务的提交和消费流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"om-intel-chat/pkg/log"
	"om-intel-chat/pkg/tasks"
)

// JobRunner 执行一个已入库的提取任务。
type JobRunner interface {
	RunJob(ctx context.Context, jobID string) error
}

// Processor 把 Kafka 收到的提取任务交给 JobRunner，实现 kafka.TaskProcessor。
type Processor struct {
	runner JobRunner
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(runner JobRunner) *Processor {
	return &Processor{runner: runner}
}

// Process 处理一条提取任务消息。任务的最终状态记录在任务表和文档表中。
func (p *Processor) Process(ctx context.Context, task tasks.ExtractionTask) error {
	if task.JobID == "" {
		log.Warnf("[Processor] 消息缺少 JobID, 跳过, DocumentID: %s", task.DocumentID)
		return errors.New("任务消息缺少 job_id")
	}
	log.Infof("[Processor] 开始处理提取任务, JobID: %s, DocumentID: %s, OwnerID: %s", task.JobID, task.DocumentID, task.OwnerID)
	if err := p.runner.RunJob(ctx, task.JobID); err != nil {
		log.Errorf("[Processor] 提取任务失败, JobID: %s, Error: %v", task.JobID, err)
		return fmt.Errorf("执行提取任务 %s 失败: %w", task.JobID, err)
	}
	log.Infof("[Processor] 提取任务处理成功, JobID: %s", task.JobID)
	return nil
}
