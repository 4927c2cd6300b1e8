package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"om-intel-chat/internal/model"
)

// JobRepository 定义了提取任务的持久化操作。
type JobRepository interface {
	Create(ctx context.Context, job *model.ExtractionJob) error
	FindByID(ctx context.Context, id string) (*model.ExtractionJob, error)
	// ListPending 按优先级降序、创建时间升序返回至多 limit 个待处理任务。
	ListPending(ctx context.Context, limit int) ([]model.ExtractionJob, error)
	// Claim 以条件更新把任务从 pending 置为 processing，返回是否抢占成功。
	Claim(ctx context.Context, id string) (bool, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, message string) error
}

type jobRepository struct {
	db *gorm.DB
}

// NewJobRepository 创建一个新的 JobRepository 实例。
func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Create(ctx context.Context, job *model.ExtractionJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *jobRepository) FindByID(ctx context.Context, id string) (*model.ExtractionJob, error) {
	var job model.ExtractionJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepository) ListPending(ctx context.Context, limit int) ([]model.ExtractionJob, error) {
	var jobs []model.ExtractionJob
	err := r.db.WithContext(ctx).
		Where("status = ?", model.JobPending).
		Order("priority desc").
		Order("created_at asc").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (r *jobRepository) Claim(ctx context.Context, id string) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&model.ExtractionJob{}).
		Where("id = ? AND status = ?", id, model.JobPending).
		Updates(map[string]interface{}{
			"status":     model.JobProcessing,
			"started_at": now,
			"attempts":   gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *jobRepository) MarkCompleted(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&model.ExtractionJob{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        model.JobCompleted,
		"error_message": nil,
		"finished_at":   time.Now(),
	}).Error
}

func (r *jobRepository) MarkFailed(ctx context.Context, id, message string) error {
	return r.db.WithContext(ctx).Model(&model.ExtractionJob{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        model.JobFailed,
		"error_message": message,
		"finished_at":   time.Now(),
	}).Error
}
