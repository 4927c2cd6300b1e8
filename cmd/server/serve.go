package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"om-intel-chat/internal/handler"
	"om-intel-chat/internal/middleware"
	"om-intel-chat/internal/schedule"
	"om-intel-chat/pkg/kafka"
	"om-intel-chat/pkg/log"
)

const shutdownTimeout = 5 * time.Second

func runServe(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// 周期清扫兜底，补偿丢失的消息
	scheduler := schedule.NewCronScheduler()
	if cfg.Jobs.CronSpec != "" {
		if err := scheduler.AddJob(schedule.NewSweepJob(a.jobs), cfg.Jobs.CronSpec); err != nil {
			return fmt.Errorf("schedule sweep: %w", err)
		}
	}

	// 后台 Kafka 消费者，随 ctx 取消退出
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		kafka.StartConsumer(ctx, cfg.Kafka, a.processor)
	}()
	scheduler.Start(ctx)
	defer scheduler.Stop()

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins), middleware.RequestLogger(), gin.Recovery())
	handler.RegisterRoutes(r, handler.RouterDeps{
		Chat:       handler.NewChatHandler(a.chat, cfg.Chat),
		Extraction: handler.NewExtractionHandler(a.extraction),
		Upload:     handler.NewUploadHandler(a.upload, cfg.Upload.MaxBytes),
		Snapshot:   handler.NewSnapshotHandler(a.snapshot),
		Jobs:       handler.NewJobHandler(a.jobs),
		Documents:  handler.NewDocumentHandler(a.documents),
		Threads:    handler.NewThreadHandler(a.threads),
		Realtime:   handler.NewRealtimeHandler(a.hub, a.jwtManager),
		JWTManager: a.jwtManager,
		CronSecret: cfg.Server.CronSecret,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}
	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("HTTP 服务监听失败: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("接收到停机信号，正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	<-consumerDone
	log.Info("服务已优雅关闭")
	return nil
}

// runSweep 执行一轮任务清扫后退出，供外部 cron 直接调用。
func runSweep(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.jobs.Sweep(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		log.Infof("[Sweep] job=%s document=%s status=%s error=%s", r.JobID, r.DocumentID, r.Status, r.Error)
	}
	log.Infof("[Sweep] 本轮处理任务数: %d", len(results))
	return nil
}
