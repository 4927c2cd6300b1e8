package service

import (
	"context"
	"errors"
	"unicode/utf8"

	"gorm.io/gorm"
	"om-intel-chat/internal/config"
	"om-intel-chat/internal/extractor"
	"om-intel-chat/internal/model"
	"om-intel-chat/internal/repository"
	"om-intel-chat/pkg/log"
	"om-intel-chat/pkg/realtime"
	"om-intel-chat/pkg/storage"
)

// ExtractionOutcome 是一次文档提取的汇总。
type ExtractionOutcome struct {
	TextLength int
	Chunks     int
	Result     *extractor.Result
}

// ExtractionService 负责把已上传文档的文本提取出来并写回文档状态。
type ExtractionService interface {
	// ExtractDocument 下载文档、逐页提取并写入 ready 或 error 状态。
	// ownerID 非空时校验文档归属。emit 可以为 nil。
	ExtractDocument(ctx context.Context, documentID, ownerID string, emit extractor.EmitFunc) (*ExtractionOutcome, error)
}

type extractionService struct {
	documents repository.DocumentRepository
	blobs     storage.BlobStore
	extractor *extractor.Extractor
	cache     *ContextCache
	publisher ChangePublisher
	cfg       config.ExtractionConfig
	open      func(data []byte) (extractor.PageSource, error)
}

// NewExtractionService 创建一个新的 ExtractionService 实例。
func NewExtractionService(
	documents repository.DocumentRepository,
	blobs storage.BlobStore,
	cache *ContextCache,
	publisher ChangePublisher,
	cfg config.ExtractionConfig,
) ExtractionService {
	if cfg.ErrorMessageLimit <= 0 {
		cfg.ErrorMessageLimit = 500
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize, cfg.ChunkOverlap = 1000, 100
	}
	return &extractionService{
		documents: documents,
		blobs:     blobs,
		extractor: extractor.New(extractor.Config{
			MaxPages:       cfg.MaxPages,
			MaxChars:       cfg.MaxChars,
			EarlyExitRatio: cfg.EarlyExitRatio,
		}),
		cache:     cache,
		publisher: publisher,
		cfg:       cfg,
		open:      extractor.Open,
	}
}

func (s *extractionService) ExtractDocument(ctx context.Context, documentID, ownerID string, emit extractor.EmitFunc) (*ExtractionOutcome, error) {
	if documentID == "" {
		return nil, newError(ErrValidation, "documentId is required")
	}
	doc, err := s.documents.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(ErrNotFound, "document not found")
		}
		return nil, wrapError(ErrPersistence, err, "failed to load document")
	}
	if ownerID != "" && doc.OwnerID != ownerID {
		return nil, newError(ErrNotFound, "document not found")
	}

	log.Infof("[ExtractionService] 开始提取文档: id=%s, name=%s, key=%s", doc.ID, doc.Name, doc.StorageKey)
	// 调用方断开只影响事件推送，下载、逐页提取和状态写入都继续执行，结果落到文档状态上
	persistCtx := context.WithoutCancel(ctx)

	if err := s.documents.MarkProcessing(ctx, doc.ID); err != nil {
		return nil, wrapError(ErrPersistence, err, "failed to update document status")
	}
	s.cache.Invalidate(doc.ID)
	doc.Status = model.DocumentProcessing
	doc.ExtractedText = nil
	doc.ErrorMessage = nil
	publishChange(persistCtx, s.publisher, doc.OwnerID, documentsTable, realtime.Update, documentRecord(doc))

	data, err := s.blobs.Download(persistCtx, doc.StorageKey)
	if err != nil {
		log.Errorf("[ExtractionService] 下载文档失败, key=%s, err=%v", doc.StorageKey, err)
		s.markFailed(persistCtx, doc, "failed to download document: "+err.Error())
		return nil, wrapError(ErrUpstream, err, "failed to download document")
	}

	res, err := s.extract(persistCtx, data, emit)
	if err != nil {
		log.Errorf("[ExtractionService] 文本提取失败, id=%s, err=%v", doc.ID, err)
		s.markFailed(persistCtx, doc, err.Error())
		return nil, wrapError(ErrUpstream, err, "PDF extraction failed")
	}

	if err := s.documents.MarkReady(persistCtx, doc.ID, res.Text, res.PagesProcessed); err != nil {
		log.Errorf("[ExtractionService] 保存提取文本失败, id=%s, err=%v", doc.ID, err)
		s.markFailed(persistCtx, doc, "failed to save extracted text")
		return nil, wrapError(ErrPersistence, err, "failed to save extracted text")
	}
	doc.Status = model.DocumentReady
	doc.PageCount = res.PagesProcessed
	publishChange(persistCtx, s.publisher, doc.OwnerID, documentsTable, realtime.Update, documentRecord(doc))

	out := &ExtractionOutcome{
		TextLength: utf8.RuneCountInString(res.Text),
		Chunks:     len(extractor.SplitText(res.Text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)),
		Result:     res,
	}
	if emit != nil {
		emit(extractor.Event{
			Type:       extractor.EventComplete,
			TotalPages: res.TotalPages,
			Page:       res.PagesProcessed,
			CharCount:  out.TextLength,
			TextLength: out.TextLength,
			Keywords:   res.MatchedKeywords,
			Truncated:  res.Truncated,
			Message:    "extraction complete",
		})
	}
	log.Infof("[ExtractionService] 文档提取完成: id=%s, 页数=%d, 长度=%d, 分块=%d, 结束原因=%s",
		doc.ID, res.PagesProcessed, out.TextLength, out.Chunks, res.StopReason)
	return out, nil
}

func (s *extractionService) extract(ctx context.Context, data []byte, emit extractor.EmitFunc) (*extractor.Result, error) {
	src, err := s.open(data)
	if err != nil {
		return nil, err
	}
	return s.extractor.ExtractPages(ctx, src, emit)
}

// markFailed 把文档置为 error，写入失败时只记录日志。
func (s *extractionService) markFailed(ctx context.Context, doc *model.Document, message string) {
	message = truncateRunes(message, s.cfg.ErrorMessageLimit)
	if err := s.documents.MarkFailed(ctx, doc.ID, message); err != nil {
		log.Errorf("[ExtractionService] 更新文档错误状态失败, id=%s, err=%v", doc.ID, err)
		return
	}
	doc.Status = model.DocumentError
	doc.ExtractedText = nil
	doc.ErrorMessage = &message
	publishChange(ctx, s.publisher, doc.OwnerID, documentsTable, realtime.Update, documentRecord(doc))
}

// documentRecord 返回用于变更通知的文档副本，不携带提取文本。
func documentRecord(doc *model.Document) model.Document {
	record := *doc
	record.ExtractedText = nil
	return record
}
