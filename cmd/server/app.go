package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"om-intel-chat/internal/config"
	"om-intel-chat/internal/pipeline"
	"om-intel-chat/internal/repository"
	"om-intel-chat/internal/service"
	"om-intel-chat/pkg/database"
	"om-intel-chat/pkg/kafka"
	"om-intel-chat/pkg/llm"
	"om-intel-chat/pkg/log"
	"om-intel-chat/pkg/realtime"
	"om-intel-chat/pkg/storage"
	"om-intel-chat/pkg/token"
)

// app 持有进程内所有显式构造的组件，不使用包级全局变量。
type app struct {
	cfg        *config.Config
	db         *gorm.DB
	rdb        *redis.Client
	producer   *kafka.Producer
	hub        *realtime.Hub
	jwtManager *token.JWTManager

	chat       service.ChatService
	extraction service.ExtractionService
	upload     service.UploadService
	snapshot   service.SnapshotService
	jobs       service.JobService
	documents  service.DocumentService
	threads    service.ThreadService
	processor  *pipeline.Processor
}

// loadConfig 读取配置并初始化日志。
func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	log.Infof("配置加载成功, config=%s", configPath)
	return cfg, nil
}

// newApp 依次建立存储连接，再按依赖顺序构造 repository、service 与处理管道。
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret is not configured")
	}

	db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		return nil, err
	}
	if err := repository.AutoMigrate(db); err != nil {
		database.CloseMySQL(db)
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	rdb, err := database.NewRedis(ctx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		database.CloseMySQL(db)
		return nil, err
	}

	blobs, err := storage.NewMinIO(ctx, cfg.MinIO)
	if err != nil {
		_ = rdb.Close()
		database.CloseMySQL(db)
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		db:         db,
		rdb:        rdb,
		producer:   kafka.NewProducer(cfg.Kafka),
		hub:        realtime.NewHub(rdb),
		jwtManager: token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours),
	}

	documentRepo := repository.NewDocumentRepository(db)
	threadRepo := repository.NewThreadRepository(db)
	jobRepo := repository.NewJobRepository(db)
	usageRepo := repository.NewUsageRepository(db)

	llmClient := llm.NewClient(cfg.LLM, nil)
	cache := service.NewContextCache(cfg.Chat.ContextCacheSize, time.Duration(cfg.Chat.ContextCacheTTLMinutes)*time.Minute)
	queue := pipeline.NewTaskQueue(jobRepo, a.producer)

	a.extraction = service.NewExtractionService(documentRepo, blobs, cache, a.hub, cfg.Extraction)
	a.jobs = service.NewJobService(jobRepo, a.extraction, cfg.Jobs, cfg.Extraction.ErrorMessageLimit)
	a.chat = service.NewChatService(threadRepo, documentRepo, usageRepo, llmClient, cache, cfg.Chat, cfg.LLM.Prompt)
	a.upload = service.NewUploadService(documentRepo, usageRepo, blobs, queue, a.hub, cfg.Upload)
	a.snapshot = service.NewSnapshotService(documentRepo, usageRepo, llmClient, a.hub, cfg.Snapshot)
	a.documents = service.NewDocumentService(documentRepo, blobs, cache, a.hub)
	a.threads = service.NewThreadService(threadRepo)
	a.processor = pipeline.NewProcessor(a.jobs)
	return a, nil
}

// Close 按构造的逆序释放连接。
func (a *app) Close() {
	if err := a.producer.Close(); err != nil {
		log.Errorf("关闭 Kafka 生产者失败: %v", err)
	}
	if err := a.rdb.Close(); err != nil {
		log.Errorf("关闭 Redis 连接失败: %v", err)
	}
	database.CloseMySQL(a.db)
	log.Sync()
}
