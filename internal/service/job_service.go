package service

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"om-intel-chat/internal/config"
	"om-intel-chat/internal/model"
	"om-intel-chat/internal/repository"
	"om-intel-chat/pkg/log"
)

// JobResult 是一次任务执行的结果，用于 /process-extraction-jobs 响应。
type JobResult struct {
	JobID      string          `json:"jobId"`
	DocumentID string          `json:"documentId"`
	Status     model.JobStatus `json:"status"`
	Error      string          `json:"error,omitempty"`
}

// JobService 执行排队中的提取任务。
type JobService interface {
	// RunJob 抢占并执行单个任务，已被其他 worker 抢占的任务直接跳过。
	RunJob(ctx context.Context, jobID string) error
	// Sweep 拉取一批 pending 任务并以有限并发执行。
	Sweep(ctx context.Context) ([]JobResult, error)
}

type jobService struct {
	jobs       repository.JobRepository
	extraction ExtractionService
	cfg        config.JobsConfig
	errorLimit int
}

// NewJobService 创建一个新的 JobService 实例。
func NewJobService(jobs repository.JobRepository, extraction ExtractionService, cfg config.JobsConfig, errorLimit int) JobService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if errorLimit <= 0 {
		errorLimit = 500
	}
	return &jobService{jobs: jobs, extraction: extraction, cfg: cfg, errorLimit: errorLimit}
}

func (s *jobService) RunJob(ctx context.Context, jobID string) error {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newError(ErrNotFound, "job not found")
		}
		return wrapError(ErrPersistence, err, "failed to load job")
	}
	res := s.run(ctx, *job)
	if res.Status == model.JobFailed {
		return newError(ErrUpstream, "job %s failed: %s", res.JobID, res.Error)
	}
	return nil
}

func (s *jobService) Sweep(ctx context.Context) ([]JobResult, error) {
	pending, err := s.jobs.ListPending(ctx, s.cfg.BatchSize)
	if err != nil {
		return nil, wrapError(ErrPersistence, err, "failed to list pending jobs")
	}
	if len(pending) == 0 {
		return []JobResult{}, nil
	}
	log.Infof("[JobSweeper] 开始处理 %d 个待处理任务, 并发=%d", len(pending), s.cfg.Concurrency)

	results := make([]JobResult, len(pending))
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for i, job := range pending {
		i, job := i, job
		g.Go(func() error {
			results[i] = s.run(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for _, r := range results {
		if r.Status == model.JobFailed {
			failed++
		}
	}
	log.Infof("[JobSweeper] 本批处理结束: 总数=%d, 失败=%d", len(results), failed)
	return results, nil
}

// run 抢占并执行任务，失败记录在任务行上，不自动重试。
func (s *jobService) run(ctx context.Context, job model.ExtractionJob) JobResult {
	res := JobResult{JobID: job.ID, DocumentID: job.DocumentID}
	persistCtx := context.WithoutCancel(ctx)

	claimed, err := s.jobs.Claim(ctx, job.ID)
	if err != nil {
		log.Errorf("[JobSweeper] 抢占任务失败, job=%s, err=%v", job.ID, err)
		res.Status = model.JobFailed
		res.Error = "failed to claim job"
		return res
	}
	if !claimed {
		// 其他 worker 已经在处理
		log.Infof("[JobSweeper] 任务已被抢占, 跳过: job=%s", job.ID)
		res.Status = model.JobProcessing
		return res
	}

	if _, err := s.extraction.ExtractDocument(ctx, job.DocumentID, "", nil); err != nil {
		msg := truncateRunes(err.Error(), s.errorLimit)
		if markErr := s.jobs.MarkFailed(persistCtx, job.ID, msg); markErr != nil {
			log.Errorf("[JobSweeper] 更新任务失败状态失败, job=%s, err=%v", job.ID, markErr)
		}
		res.Status = model.JobFailed
		res.Error = msg
		return res
	}

	if err := s.jobs.MarkCompleted(persistCtx, job.ID); err != nil {
		log.Errorf("[JobSweeper] 更新任务完成状态失败, job=%s, err=%v", job.ID, err)
	}
	res.Status = model.JobCompleted
	return res
}
