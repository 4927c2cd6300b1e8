package schedule

import (
	"context"

	"om-intel-chat/internal/service"
	"om-intel-chat/pkg/log"
)

// Sweeper 执行一批待处理提取任务。
type Sweeper interface {
	Sweep(ctx context.Context) ([]service.JobResult, error)
}

// SweepJob 周期性清扫 pending 状态的提取任务，补偿消息丢失或消费者宕机的情况。
type SweepJob struct {
	sweeper Sweeper
}

func NewSweepJob(sweeper Sweeper) *SweepJob {
	return &SweepJob{sweeper: sweeper}
}

func (j *SweepJob) Name() string {
	return "extraction_sweep"
}

func (j *SweepJob) Run(ctx context.Context) error {
	results, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	if len(results) > 0 {
		log.Infof("[SweepJob] 本轮处理任务数: %d", len(results))
	}
	return nil
}
