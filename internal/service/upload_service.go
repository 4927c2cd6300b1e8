package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"om-intel-chat/internal/config"
	"om-intel-chat/internal/model"
	"om-intel-chat/internal/pipeline"
	"om-intel-chat/internal/repository"
	"om-intel-chat/pkg/log"
	"om-intel-chat/pkg/realtime"
	"om-intel-chat/pkg/storage"
)

const (
	pdfMimeType = "application/pdf"
	// DefaultMaxUploadBytes 是单个文件的默认大小上限 (10MB)。
	DefaultMaxUploadBytes = 10 * 1024 * 1024
)

var pdfMagic = []byte("%PDF-")

// UploadRequest 描述一次上传的文件。
type UploadRequest struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploader 是上传调用者的身份。
type Uploader struct {
	UserID string
	Pro    bool
}

// UploadResult 是上传成功后的文档及后台任务句柄。
type UploadResult struct {
	Document *model.Document
	Task     *pipeline.TaskHandle
}

// TaskSubmitter 提交后台提取任务，立即返回句柄。
type TaskSubmitter interface {
	Submit(ctx context.Context, documentID, ownerID string) (*pipeline.TaskHandle, error)
}

// UploadService 接口定义了文件上传相关的业务操作。
type UploadService interface {
	Upload(ctx context.Context, uploader Uploader, req UploadRequest) (*UploadResult, error)
}

type uploadService struct {
	documents repository.DocumentRepository
	usage     repository.UsageRepository
	blobs     storage.BlobStore
	queue     TaskSubmitter
	publisher ChangePublisher
	cfg       config.UploadConfig
	now       func() time.Time
}

// NewUploadService 创建一个新的 UploadService 实例。
func NewUploadService(
	documents repository.DocumentRepository,
	usage repository.UsageRepository,
	blobs storage.BlobStore,
	queue TaskSubmitter,
	publisher ChangePublisher,
	cfg config.UploadConfig,
) UploadService {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxUploadBytes
	}
	if cfg.FreeMonthlyQuota <= 0 {
		cfg.FreeMonthlyQuota = 5
	}
	return &uploadService{
		documents: documents,
		usage:     usage,
		blobs:     blobs,
		queue:     queue,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Upload 校验并保存 PDF，写入文档记录后提交后台提取，不等待提取完成。
func (s *uploadService) Upload(ctx context.Context, uploader Uploader, req UploadRequest) (*UploadResult, error) {
	if uploader.UserID == "" {
		return nil, newError(ErrAuth, "authentication required")
	}
	log.Infof("[UploadService] 开始上传, user=%s, file=%s, size=%d, type=%s", uploader.UserID, req.FileName, req.Size, req.ContentType)

	data, err := s.validate(req)
	if err != nil {
		log.Warnf("[UploadService] 文件校验失败, user=%s, file=%s, err=%v", uploader.UserID, req.FileName, err)
		return nil, err
	}

	// 额度检查必须在任何存储写入之前
	if !uploader.Pro {
		count, err := s.usage.CountSince(ctx, uploader.UserID, model.UsageUpload, monthStart(s.now()))
		if err != nil {
			return nil, wrapError(ErrPersistence, err, "failed to check upload quota")
		}
		if count >= int64(s.cfg.FreeMonthlyQuota) {
			log.Infof("[UploadService] 免费额度已用完, user=%s, count=%d", uploader.UserID, count)
			return nil, newError(ErrQuota, "monthly upload limit of %d reached, upgrade to upload more", s.cfg.FreeMonthlyQuota)
		}
	}

	docID := uuid.NewString()
	key := fmt.Sprintf("%s/%s.pdf", uploader.UserID, uuid.NewString())
	if err := s.blobs.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), pdfMimeType); err != nil {
		log.Errorf("[UploadService] 上传到对象存储失败, key=%s, err=%v", key, err)
		return nil, wrapError(ErrUpstream, err, "failed to store file")
	}

	url, err := s.blobs.PublicURL(ctx, key)
	if err != nil {
		log.Warnf("[UploadService] 生成文件地址失败, key=%s, err=%v", key, err)
	}

	doc := &model.Document{
		ID:         docID,
		OwnerID:    uploader.UserID,
		Name:       displayName(req.FileName),
		Size:       int64(len(data)),
		MimeType:   pdfMimeType,
		StorageKey: key,
		StorageURL: url,
		Status:     model.DocumentProcessing,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		log.Errorf("[UploadService] 写入文档记录失败, 删除已上传文件, key=%s, err=%v", key, err)
		// 补偿：同步删除孤立的文件后再返回
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			log.Errorf("[UploadService] 删除孤立文件失败, key=%s, err=%v", key, delErr)
		}
		return nil, wrapError(ErrPersistence, err, "failed to save document")
	}
	publishChange(ctx, s.publisher, doc.OwnerID, documentsTable, realtime.Insert, doc)
	recordUsage(ctx, s.usage, uploader.UserID, model.UsageUpload, doc.ID)

	// HTTP 响应与后台提取是两个独立失败的操作：提交失败时文档直接进入 error 状态
	handle, err := s.queue.Submit(ctx, doc.ID, doc.OwnerID)
	if err != nil {
		log.Errorf("[UploadService] 提交提取任务失败, document=%s, err=%v", doc.ID, err)
		msg := "failed to schedule text extraction"
		if markErr := s.documents.MarkFailed(context.WithoutCancel(ctx), doc.ID, msg); markErr != nil {
			log.Errorf("[UploadService] 更新文档错误状态失败, document=%s, err=%v", doc.ID, markErr)
		} else {
			doc.Status = model.DocumentError
			doc.ErrorMessage = &msg
			publishChange(ctx, s.publisher, doc.OwnerID, documentsTable, realtime.Update, doc)
		}
	}

	log.Infof("[UploadService] 上传完成, document=%s, key=%s", doc.ID, key)
	return &UploadResult{Document: doc, Task: handle}, nil
}

// validate 读取文件内容并校验大小和类型，0 字节和非 PDF 文件在任何写入之前被拒绝。
func (s *uploadService) validate(req UploadRequest) ([]byte, error) {
	if req.Body == nil || req.Size == 0 {
		return nil, newError(ErrValidation, "file is empty")
	}
	if req.Size > s.cfg.MaxBytes {
		return nil, newError(ErrValidation, "file exceeds the %dMB size limit", s.cfg.MaxBytes/(1024*1024))
	}
	contentType := strings.ToLower(strings.TrimSpace(strings.Split(req.ContentType, ";")[0]))
	if contentType != pdfMimeType {
		return nil, newError(ErrValidation, "only PDF files are supported")
	}

	// 多读一个字节用来判断实际大小是否超限
	data, err := io.ReadAll(io.LimitReader(req.Body, s.cfg.MaxBytes+1))
	if err != nil {
		return nil, wrapError(ErrValidation, err, "failed to read file")
	}
	if len(data) == 0 {
		return nil, newError(ErrValidation, "file is empty")
	}
	if int64(len(data)) > s.cfg.MaxBytes {
		return nil, newError(ErrValidation, "file exceeds the %dMB size limit", s.cfg.MaxBytes/(1024*1024))
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, newError(ErrValidation, "only PDF files are supported")
	}
	return data, nil
}

func displayName(fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "document.pdf"
	}
	return name
}
