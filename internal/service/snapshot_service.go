package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/datatypes"
	"om-intel-chat/internal/config"
	"om-intel-chat/internal/model"
	"om-intel-chat/internal/repository"
	"om-intel-chat/pkg/llm"
	"om-intel-chat/pkg/log"
	"om-intel-chat/pkg/realtime"
)

const snapshotSystemPrompt = `You are a commercial real estate analyst. Read the offering memorandum text and return a single JSON object with exactly these keys:
"propertyName", "propertyType", "address", "askingPrice", "pricePerUnit", "capRate", "noi", "units", "squareFeet", "occupancy", "yearBuilt" (all strings),
"highlights" (array of up to 5 short strings) and "risks" (array of up to 5 short strings).
Use an empty string or an empty array when the document does not state a value. Do not add any other keys or commentary.`

// SnapshotResult 是生成的摘要及文档名称。
type SnapshotResult struct {
	DocumentName string
	Snapshot     *model.Snapshot
}

// SnapshotService 从已提取的文本中生成结构化的物业摘要。
type SnapshotService interface {
	Generate(ctx context.Context, ownerID, documentID string) (*SnapshotResult, error)
}

type snapshotService struct {
	documents repository.DocumentRepository
	usage     repository.UsageRepository
	llmClient llm.Client
	publisher ChangePublisher
	cfg       config.SnapshotConfig
}

// NewSnapshotService 创建一个新的 SnapshotService 实例。
func NewSnapshotService(
	documents repository.DocumentRepository,
	usage repository.UsageRepository,
	llmClient llm.Client,
	publisher ChangePublisher,
	cfg config.SnapshotConfig,
) SnapshotService {
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 12000
	}
	return &snapshotService{
		documents: documents,
		usage:     usage,
		llmClient: llmClient,
		publisher: publisher,
		cfg:       cfg,
	}
}

func (s *snapshotService) Generate(ctx context.Context, ownerID, documentID string) (*SnapshotResult, error) {
	if ownerID == "" {
		return nil, newError(ErrAuth, "authentication required")
	}
	if strings.TrimSpace(documentID) == "" {
		return nil, newError(ErrValidation, "documentId is required")
	}
	doc, err := s.documents.FindByID(ctx, documentID)
	if err != nil || doc.OwnerID != ownerID {
		if err != nil && !isNotFound(err) {
			return nil, wrapError(ErrPersistence, err, "failed to load document")
		}
		return nil, newError(ErrNotFound, "document not found")
	}
	if !doc.HasText() {
		return nil, newError(ErrValidation, "document text has not been extracted yet")
	}

	log.Infof("[SnapshotService] 开始生成摘要, document=%s", doc.ID)
	messages := []llm.Message{
		{Role: "system", Content: snapshotSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Document: %s\n\n%s", doc.Name, truncateRunes(*doc.ExtractedText, s.cfg.MaxContextChars))},
	}
	raw, err := s.llmClient.Complete(ctx, messages, true)
	if err != nil {
		log.Errorf("[SnapshotService] 调用上游失败, document=%s, err=%v", doc.ID, err)
		return nil, wrapError(ErrUpstream, err, "failed to generate snapshot")
	}

	snapshot, err := parseSnapshot(raw)
	if err != nil {
		log.Errorf("[SnapshotService] 解析摘要失败, document=%s, err=%v", doc.ID, err)
		return nil, wrapError(ErrUpstream, err, "failed to parse snapshot")
	}

	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return nil, wrapError(ErrPersistence, err, "failed to encode snapshot")
	}
	if err := s.documents.UpdateSnapshot(ctx, doc.ID, datatypes.JSON(encoded)); err != nil {
		return nil, wrapError(ErrPersistence, err, "failed to save snapshot")
	}
	doc.Snapshot = datatypes.JSON(encoded)
	publishChange(ctx, s.publisher, doc.OwnerID, documentsTable, realtime.Update, documentRecord(doc))
	recordUsage(ctx, s.usage, ownerID, model.UsageSnapshot, doc.ID)

	log.Infof("[SnapshotService] 摘要生成完成, document=%s", doc.ID)
	return &SnapshotResult{DocumentName: doc.Name, Snapshot: snapshot}, nil
}

// parseSnapshot 宽松地解析模型输出：去掉代码块包裹，数字等标量统一转为字符串。
func parseSnapshot(raw string) (*model.Snapshot, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("invalid snapshot json: %w", err)
	}

	return &model.Snapshot{
		PropertyName: scalarString(fields["propertyName"]),
		PropertyType: scalarString(fields["propertyType"]),
		Address:      scalarString(fields["address"]),
		AskingPrice:  scalarString(fields["askingPrice"]),
		PricePerUnit: scalarString(fields["pricePerUnit"]),
		CapRate:      scalarString(fields["capRate"]),
		NOI:          scalarString(fields["noi"]),
		Units:        scalarString(fields["units"]),
		SquareFeet:   scalarString(fields["squareFeet"]),
		Occupancy:    scalarString(fields["occupancy"]),
		YearBuilt:    scalarString(fields["yearBuilt"]),
		Highlights:   stringList(fields["highlights"]),
		Risks:        stringList(fields["risks"]),
	}, nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func stringList(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s := scalarString(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	}
	return out
}
