// Package schedule 按 cron 表达式周期性执行后台任务。
package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"om-intel-chat/pkg/log"
)

// Job 是一个可被周期调度的任务。
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler 管理任务的注册与启停。
type Scheduler interface {
	AddJob(job Job, spec string) error
	Start(ctx context.Context)
	Stop()
}

// CronScheduler 基于 robfig/cron，同一任务上一轮未结束时跳过本轮。
type CronScheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID
	ctx     context.Context
}

// NewCronScheduler 创建一个使用五段式表达式的调度器。
func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
	}
}

// AddJob 注册任务，表达式非法时返回错误。
func (s *CronScheduler) AddJob(job Job, spec string) error {
	entryID, err := s.cron.AddFunc(spec, s.wrap(job, spec))
	if err != nil {
		log.Errorf("[Scheduler] 注册任务失败, job=%s, spec=%s, err=%v", job.Name(), spec, err)
		return err
	}
	s.mu.Lock()
	s.entries[job.Name()] = entryID
	s.mu.Unlock()
	log.Infof("[Scheduler] 任务已注册, job=%s, spec=%s", job.Name(), spec)
	return nil
}

// Start 启动调度，ctx 会传给每次任务执行。
func (s *CronScheduler) Start(ctx context.Context) {
	if ctx != nil {
		s.mu.Lock()
		s.ctx = ctx
		s.mu.Unlock()
	}
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的任务结束。
func (s *CronScheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *CronScheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *CronScheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			log.Infof("[Scheduler] 上一轮仍在执行，跳过, job=%s, spec=%s", job.Name(), spec)
			return
		}
		defer running.Store(false)

		start := time.Now()
		if err := job.Run(s.runContext()); err != nil {
			log.Errorf("[Scheduler] 任务执行失败, job=%s, duration=%s, err=%v", job.Name(), time.Since(start), err)
			return
		}
		log.Infof("[Scheduler] 任务执行完成, job=%s, duration=%s", job.Name(), time.Since(start))
	}
}
