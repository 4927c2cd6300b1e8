package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"om-intel-chat/internal/config"
	"om-intel-chat/internal/model"
	"om-intel-chat/internal/repository"
	"om-intel-chat/pkg/llm"
	"om-intel-chat/pkg/log"
)

const (
	titleMaxChars = 100
	titleEllipsis = "..."
)

// ChatRequest 是 /chat-stream 的请求体。
type ChatRequest struct {
	Message    string `json:"message"`
	ThreadID   string `json:"threadId"`
	DocumentID string `json:"documentId"`
}

// StreamEventType 是聊天 SSE 事件的类型。
type StreamEventType string

const (
	StreamThread  StreamEventType = "thread"
	StreamContent StreamEventType = "content"
	StreamDone    StreamEventType = "done"
	StreamError   StreamEventType = "error"
)

// StreamEvent 是写入 SSE data 行的 JSON 负载，事件类型放在 type 字段中。
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	ThreadID  string          `json:"threadId,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	Content   string          `json:"content,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// EventSink 接收流式事件，写入失败说明客户端已断开。
type EventSink interface {
	Send(event any) error
}

// ChatTurn 是一轮已经落库、等待流式生成的对话。
type ChatTurn struct {
	Thread      *model.Thread
	UserMessage *model.Message
	Placeholder *model.Message
	// DocumentID 是本轮实际注入上下文的文档，没有时为空
	DocumentID string
	messages   []llm.Message
}

// ChatService 定义了聊天中继的操作。
type ChatService interface {
	// Prepare 解析线程、写入用户消息和助手占位消息，并组装发给上游的消息。
	Prepare(ctx context.Context, userID string, req ChatRequest) (*ChatTurn, error)
	// Stream 调用上游并把增量文本转发给 sink，结束时一次性写入完整回复。
	Stream(ctx context.Context, turn *ChatTurn, sink EventSink) error
}

type chatService struct {
	threads   repository.ThreadRepository
	documents repository.DocumentRepository
	usage     repository.UsageRepository
	llmClient llm.Client
	cache     *ContextCache
	cfg       config.ChatConfig
	prompt    config.LLMPromptConfig
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	threads repository.ThreadRepository,
	documents repository.DocumentRepository,
	usage repository.UsageRepository,
	llmClient llm.Client,
	cache *ContextCache,
	cfg config.ChatConfig,
	prompt config.LLMPromptConfig,
) ChatService {
	if cfg.DocumentContextChars <= 0 {
		cfg.DocumentContextChars = 6000
	}
	if cfg.HistoryMessages < 0 {
		cfg.HistoryMessages = 0
	}
	return &chatService{
		threads:   threads,
		documents: documents,
		usage:     usage,
		llmClient: llmClient,
		cache:     cache,
		cfg:       cfg,
		prompt:    prompt,
	}
}

func (s *chatService) Prepare(ctx context.Context, userID string, req ChatRequest) (*ChatTurn, error) {
	prompt := strings.TrimSpace(req.Message)
	if prompt == "" {
		return nil, newError(ErrValidation, "message is required")
	}
	if userID == "" {
		return nil, newError(ErrAuth, "authentication required")
	}

	thread, isNew, err := s.resolveThread(ctx, userID, req, prompt)
	if err != nil {
		return nil, err
	}

	// 线程绑定的文档优先，保证同一线程内每轮对话使用同一份上下文
	documentID := strings.TrimSpace(req.DocumentID)
	if thread.DocumentID != nil && *thread.DocumentID != "" {
		documentID = *thread.DocumentID
	}

	var history []model.Message
	if !isNew && s.cfg.HistoryMessages > 0 {
		history, err = s.threads.RecentMessages(ctx, thread.ID, s.cfg.HistoryMessages)
		if err != nil {
			log.Errorf("[ChatService] 加载历史消息失败, thread=%s, err=%v", thread.ID, err)
			history = nil
		}
	}

	docCtx, found := s.documentContext(ctx, userID, documentID)
	turn := &ChatTurn{Thread: thread}
	if found {
		turn.DocumentID = documentID
	}
	turn.messages = s.composeMessages(s.buildSystemMessage(docCtx, found), history, prompt)

	now := time.Now()
	turn.UserMessage = &model.Message{
		ID:        uuid.NewString(),
		ThreadID:  thread.ID,
		Role:      model.RoleUser,
		Content:   prompt,
		Status:    model.MessageComplete,
		CreatedAt: now,
	}
	turn.Placeholder = &model.Message{
		ID:        uuid.NewString(),
		ThreadID:  thread.ID,
		Role:      model.RoleAssistant,
		Content:   "",
		Status:    model.MessageStreaming,
		CreatedAt: now.Add(time.Millisecond),
	}
	if err := s.threads.CreateTurn(ctx, turn.UserMessage, turn.Placeholder); err != nil {
		return nil, wrapError(ErrPersistence, err, "failed to save message")
	}

	recordUsage(ctx, s.usage, userID, model.UsageChat, turn.DocumentID)
	log.Infof("[ChatService] 对话已落库: thread=%s, userMessage=%s, placeholder=%s, document=%q, history=%d",
		thread.ID, turn.UserMessage.ID, turn.Placeholder.ID, turn.DocumentID, len(history))
	return turn, nil
}

// resolveThread 返回要写入的线程，未指定时新建，指定时校验归属。
func (s *chatService) resolveThread(ctx context.Context, userID string, req ChatRequest, prompt string) (*model.Thread, bool, error) {
	threadID := strings.TrimSpace(req.ThreadID)
	if threadID != "" {
		thread, err := s.threads.FindThread(ctx, threadID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, false, newError(ErrNotFound, "thread not found")
			}
			return nil, false, wrapError(ErrPersistence, err, "failed to load thread")
		}
		// 不属于调用者的线程按不存在处理
		if thread.OwnerID != userID {
			log.Warnf("[ChatService] 拒绝访问他人线程: thread=%s, user=%s", threadID, userID)
			return nil, false, newError(ErrNotFound, "thread not found")
		}
		return thread, false, nil
	}

	thread := &model.Thread{
		ID:      uuid.NewString(),
		OwnerID: userID,
		Title:   threadTitle(prompt),
	}
	if docID := strings.TrimSpace(req.DocumentID); docID != "" {
		thread.DocumentID = &docID
	}
	if err := s.threads.CreateThread(ctx, thread); err != nil {
		return nil, false, wrapError(ErrPersistence, err, "failed to create thread")
	}
	return thread, true, nil
}

// documentContext 读取文档的前若干字符作为上下文。文档不存在、不属于调用者或尚未就绪时
// 返回 false，调用方使用通用提示词继续。
func (s *chatService) documentContext(ctx context.Context, userID, documentID string) (documentContext, bool) {
	if documentID == "" {
		return documentContext{}, false
	}
	if cached, ok := s.cache.get(documentID); ok {
		return cached, cached.OwnerID == userID
	}

	doc, err := s.documents.FindByID(ctx, documentID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("[ChatService] 读取文档失败, document=%s, err=%v", documentID, err)
		}
		return documentContext{}, false
	}
	if !doc.HasText() {
		log.Infof("[ChatService] 文档尚无提取文本，使用通用提示词: document=%s, status=%s", documentID, doc.Status)
		return documentContext{}, false
	}

	v := documentContext{
		OwnerID: doc.OwnerID,
		Name:    doc.Name,
		Text:    truncateRunes(*doc.ExtractedText, s.cfg.DocumentContextChars),
	}
	s.cache.add(documentID, v)
	return v, v.OwnerID == userID
}

func (s *chatService) buildSystemMessage(doc documentContext, found bool) string {
	var sys strings.Builder
	if s.prompt.Rules != "" {
		sys.WriteString(s.prompt.Rules)
		sys.WriteString("\n\n")
	}
	if !found {
		sys.WriteString(s.prompt.NoResultText)
		return strings.TrimSpace(sys.String())
	}

	refStart := s.prompt.RefStart
	if refStart == "" {
		refStart = "<<DOCUMENT>>"
	}
	refEnd := s.prompt.RefEnd
	if refEnd == "" {
		refEnd = "<<END DOCUMENT>>"
	}
	sys.WriteString(fmt.Sprintf("The user is asking about the offering memorandum %q.\n", doc.Name))
	sys.WriteString(refStart)
	sys.WriteString("\n")
	sys.WriteString(doc.Text)
	sys.WriteString("\n")
	sys.WriteString(refEnd)
	return sys.String()
}

func (s *chatService) composeMessages(systemMsg string, history []model.Message, userInput string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: systemMsg})
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: string(model.RoleUser), Content: userInput})
	return msgs
}

func (s *chatService) Stream(ctx context.Context, turn *ChatTurn, sink EventSink) error {
	// 客户端断开后仍需要写回消息状态
	persistCtx := context.WithoutCancel(ctx)
	messageID := turn.Placeholder.ID

	stream, openErr := s.llmClient.OpenStream(ctx, turn.messages, nil)
	if stream != nil {
		defer stream.Close()
	}

	if err := sink.Send(StreamEvent{Type: StreamThread, ThreadID: turn.Thread.ID, MessageID: messageID}); err != nil {
		s.abandon(persistCtx, messageID)
		return fmt.Errorf("client disconnected: %w", err)
	}
	if openErr != nil {
		log.Errorf("[ChatService] 调用上游失败, thread=%s, err=%v", turn.Thread.ID, openErr)
		s.fail(persistCtx, sink, messageID, "")
		return wrapError(ErrUpstream, openErr, "completion request failed")
	}

	var answer strings.Builder
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				s.abandon(persistCtx, messageID)
				return fmt.Errorf("client disconnected: %w", ctx.Err())
			}
			log.Errorf("[ChatService] 读取上游流失败, thread=%s, err=%v", turn.Thread.ID, err)
			s.fail(persistCtx, sink, messageID, answer.String())
			return wrapError(ErrUpstream, err, "completion stream failed")
		}

		answer.WriteString(delta)
		if err := sink.Send(StreamEvent{Type: StreamContent, Content: delta}); err != nil {
			s.abandon(persistCtx, messageID)
			return fmt.Errorf("client disconnected: %w", err)
		}
	}

	full := answer.String()
	if err := s.threads.UpdateMessage(persistCtx, messageID, full, model.MessageComplete); err != nil {
		log.Errorf("[ChatService] 保存助手消息失败, message=%s, err=%v", messageID, err)
		_ = sink.Send(StreamEvent{Type: StreamError, Error: "failed to save assistant message"})
		return wrapError(ErrPersistence, err, "failed to save assistant message")
	}
	log.Infof("[ChatService] 回复完成: thread=%s, message=%s, 长度=%d", turn.Thread.ID, messageID, utf8.RuneCountInString(full))

	if err := sink.Send(StreamEvent{Type: StreamDone, ThreadID: turn.Thread.ID, MessageID: messageID}); err != nil {
		return fmt.Errorf("client disconnected: %w", err)
	}
	return nil
}

// fail 保留已生成的部分内容并发送唯一的 error 事件。
func (s *chatService) fail(ctx context.Context, sink EventSink, messageID, partial string) {
	if err := s.threads.UpdateMessage(ctx, messageID, partial, model.MessageError); err != nil {
		log.Errorf("[ChatService] 更新失败消息状态失败, message=%s, err=%v", messageID, err)
	}
	if err := sink.Send(StreamEvent{Type: StreamError, Error: "AI service is temporarily unavailable, please try again"}); err != nil {
		log.Warnf("[ChatService] 发送 error 事件失败, message=%s, err=%v", messageID, err)
	}
}

// abandon 处理客户端中途断开：停止读取上游，丢弃累积内容，只标记消息失败。
func (s *chatService) abandon(ctx context.Context, messageID string) {
	log.Warnf("[ChatService] 客户端已断开, message=%s", messageID)
	if err := s.threads.UpdateMessage(ctx, messageID, "", model.MessageError); err != nil {
		log.Errorf("[ChatService] 更新断开消息状态失败, message=%s, err=%v", messageID, err)
	}
}

// threadTitle 取提示词前 100 个字符作为标题，截断时追加省略号。
func threadTitle(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= titleMaxChars {
		return prompt
	}
	return string(runes[:titleMaxChars]) + titleEllipsis
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
