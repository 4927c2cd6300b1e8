package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"om-intel-chat/internal/config"
	"om-intel-chat/internal/model"
	"om-intel-chat/pkg/llm"
)

var testPrompt = config.LLMPromptConfig{
	Rules:        "You are an analyst.",
	RefStart:     "<<DOC>>",
	RefEnd:       "<<END>>",
	NoResultText: "No document is attached to this conversation.",
}

type chatFixture struct {
	threads *fakeThreads
	docs    *fakeDocuments
	usage   *fakeUsage
	llm     *fakeLLM
	svc     ChatService
}

func newChatFixture(llmClient *fakeLLM, docs ...*model.Document) *chatFixture {
	f := &chatFixture{
		threads: newFakeThreads(),
		docs:    newFakeDocuments(docs...),
		usage:   &fakeUsage{},
		llm:     llmClient,
	}
	f.svc = NewChatService(f.threads, f.docs, f.usage, f.llm, NewContextCache(16, time.Minute),
		config.ChatConfig{DocumentContextChars: 6000, HistoryMessages: 20}, testPrompt)
	return f
}

func readyDoc(id, owner, text string) *model.Document {
	return &model.Document{ID: id, OwnerID: owner, Name: id + ".pdf", Status: model.DocumentReady, ExtractedText: strPtr(text)}
}

func TestChatStreamOrderingAndPersistence(t *testing.T) {
	f := newChatFixture(&fakeLLM{deltas: []string{"The cap ", "rate is ", "6.5%."}})
	ctx := context.Background()

	turn, err := f.svc.Prepare(ctx, "user-1", ChatRequest{Message: "What is the cap rate?"})
	require.NoError(t, err)
	require.Equal(t, "What is the cap rate?", turn.Thread.Title)

	sink := &recordingSink{}
	require.NoError(t, f.svc.Stream(ctx, turn, sink))

	require.Equal(t, []StreamEventType{StreamThread, StreamContent, StreamContent, StreamContent, StreamDone}, sink.types())
	require.Equal(t, turn.Thread.ID, sink.events[0].ThreadID)
	require.Equal(t, turn.Placeholder.ID, sink.events[0].MessageID)

	var concatenated strings.Builder
	for _, e := range sink.events {
		if e.Type == StreamContent {
			concatenated.WriteString(e.Content)
		}
	}
	saved := f.threads.message(turn.Placeholder.ID)
	require.Equal(t, concatenated.String(), saved.Content)
	require.Equal(t, model.MessageComplete, saved.Status)

	require.Equal(t, []string{"create_thread", "user_message", "placeholder", "update:complete"}, f.threads.ops)
	require.Equal(t, 1, f.usage.count(model.UsageChat))
}

func TestChatPrepareRejectsEmptyMessage(t *testing.T) {
	f := newChatFixture(&fakeLLM{})
	_, err := f.svc.Prepare(context.Background(), "user-1", ChatRequest{Message: "   "})
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, f.threads.ops)
}

func TestChatPrepareRequiresCaller(t *testing.T) {
	f := newChatFixture(&fakeLLM{})
	_, err := f.svc.Prepare(context.Background(), "", ChatRequest{Message: "hello"})
	require.ErrorIs(t, err, ErrAuth)
}

func TestChatThreadTitleTruncated(t *testing.T) {
	f := newChatFixture(&fakeLLM{})
	prompt := strings.Repeat("é", 150)
	turn, err := f.svc.Prepare(context.Background(), "user-1", ChatRequest{Message: prompt})
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("é", 100)+"...", turn.Thread.Title)
}

func TestChatForeignThreadIsNotFound(t *testing.T) {
	f := newChatFixture(&fakeLLM{})
	ctx := context.Background()
	require.NoError(t, f.threads.CreateThread(ctx, &model.Thread{ID: "t-1", OwnerID: "owner", Title: "x"}))

	_, err := f.svc.Prepare(ctx, "intruder", ChatRequest{Message: "hi", ThreadID: "t-1"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Prepare(ctx, "owner", ChatRequest{Message: "hi", ThreadID: "missing"})
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, f.threads.messages)
}

func TestChatUsesDocumentContext(t *testing.T) {
	doc := readyDoc("doc-1", "user-1", "Net operating income of $1.2M "+strings.Repeat("x", 7000))
	f := newChatFixture(&fakeLLM{deltas: []string{"ok"}}, doc)

	turn, err := f.svc.Prepare(context.Background(), "user-1", ChatRequest{Message: "Summarize", DocumentID: "doc-1"})
	require.NoError(t, err)
	require.Equal(t, "doc-1", turn.DocumentID)
	require.Equal(t, "doc-1", *turn.Thread.DocumentID)

	system := turn.messages[0]
	require.Equal(t, "system", system.Role)
	require.Contains(t, system.Content, "<<DOC>>")
	require.Contains(t, system.Content, "Net operating income")
	require.Contains(t, system.Content, "doc-1.pdf")
	// 上下文最多 6000 个字符
	require.Less(t, len(system.Content), 6000+500)
}

// 文档未就绪时使用通用提示词，不报错。
func TestChatDocumentNotReadyFallsBackToGenericPrompt(t *testing.T) {
	doc := &model.Document{ID: "doc-2", OwnerID: "user-1", Name: "pending.pdf", Status: model.DocumentProcessing}
	f := newChatFixture(&fakeLLM{deltas: []string{"Hello"}}, doc)
	ctx := context.Background()

	turn, err := f.svc.Prepare(ctx, "user-1", ChatRequest{Message: "hi", DocumentID: "doc-2"})
	require.NoError(t, err)
	require.Empty(t, turn.DocumentID)
	require.Contains(t, turn.messages[0].Content, testPrompt.NoResultText)
	require.NotContains(t, turn.messages[0].Content, "<<DOC>>")

	sink := &recordingSink{}
	require.NoError(t, f.svc.Stream(ctx, turn, sink))
	require.Equal(t, StreamDone, sink.events[len(sink.events)-1].Type)
}

func TestChatForeignDocumentIsIgnored(t *testing.T) {
	doc := readyDoc("doc-3", "someone-else", "secret rent roll")
	f := newChatFixture(&fakeLLM{}, doc)

	turn, err := f.svc.Prepare(context.Background(), "user-1", ChatRequest{Message: "hi", DocumentID: "doc-3"})
	require.NoError(t, err)
	require.Empty(t, turn.DocumentID)
	require.NotContains(t, turn.messages[0].Content, "secret rent roll")
}

func TestChatThreadDocumentWins(t *testing.T) {
	f := newChatFixture(&fakeLLM{}, readyDoc("doc-a", "user-1", "alpha text"), readyDoc("doc-b", "user-1", "beta text"))
	ctx := context.Background()
	require.NoError(t, f.threads.CreateThread(ctx, &model.Thread{ID: "t-1", OwnerID: "user-1", DocumentID: strPtr("doc-a")}))

	turn, err := f.svc.Prepare(ctx, "user-1", ChatRequest{Message: "hi", ThreadID: "t-1", DocumentID: "doc-b"})
	require.NoError(t, err)
	require.Equal(t, "doc-a", turn.DocumentID)
	require.Contains(t, turn.messages[0].Content, "alpha text")
}

func TestChatIncludesHistory(t *testing.T) {
	f := newChatFixture(&fakeLLM{deltas: []string{"first answer"}})
	ctx := context.Background()

	turn, err := f.svc.Prepare(ctx, "user-1", ChatRequest{Message: "first question"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Stream(ctx, turn, &recordingSink{}))

	f.llm.deltas = []string{"second answer"}
	next, err := f.svc.Prepare(ctx, "user-1", ChatRequest{Message: "second question", ThreadID: turn.Thread.ID})
	require.NoError(t, err)

	roles := make([]string, 0, len(next.messages))
	for _, m := range next.messages {
		roles = append(roles, m.Role)
	}
	require.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
	require.Equal(t, "first answer", next.messages[2].Content)
	require.Equal(t, "second question", next.messages[3].Content)
}

// 上游返回非 2xx：只发送一个 error 事件，占位消息保持空内容。
func TestChatUpstreamFailure(t *testing.T) {
	f := newChatFixture(&fakeLLM{openErr: &llm.StatusError{StatusCode: 503, Body: "overloaded"}})
	ctx := context.Background()

	turn, err := f.svc.Prepare(ctx, "user-1", ChatRequest{Message: "hello"})
	require.NoError(t, err)

	sink := &recordingSink{}
	err = f.svc.Stream(ctx, turn, sink)
	require.ErrorIs(t, err, ErrUpstream)

	require.Equal(t, []StreamEventType{StreamThread, StreamError}, sink.types())
	saved := f.threads.message(turn.Placeholder.ID)
	require.Empty(t, saved.Content)
	require.Equal(t, model.MessageError, saved.Status)
}

func TestChatMidStreamFailureKeepsPartialContent(t *testing.T) {
	f := newChatFixture(&fakeLLM{deltas: []string{"partial ", "answer"}, recvErr: errors.New("connection reset")})
	ctx := context.Background()

	turn, err := f.svc.Prepare(ctx, "user-1", ChatRequest{Message: "hello"})
	require.NoError(t, err)

	sink := &recordingSink{}
	require.ErrorIs(t, f.svc.Stream(ctx, turn, sink), ErrUpstream)
	require.Equal(t, []StreamEventType{StreamThread, StreamContent, StreamContent, StreamError}, sink.types())

	saved := f.threads.message(turn.Placeholder.ID)
	require.Equal(t, "partial answer", saved.Content)
	require.Equal(t, model.MessageError, saved.Status)
}

func TestChatClientDisconnectDiscardsAccumulator(t *testing.T) {
	f := newChatFixture(&fakeLLM{deltas: []string{"one ", "two ", "three"}})
	ctx := context.Background()

	turn, err := f.svc.Prepare(ctx, "user-1", ChatRequest{Message: "hello"})
	require.NoError(t, err)

	sink := &recordingSink{failAfter: 2}
	require.Error(t, f.svc.Stream(ctx, turn, sink))
	require.Len(t, sink.events, 2)

	saved := f.threads.message(turn.Placeholder.ID)
	require.Empty(t, saved.Content)
	require.Equal(t, model.MessageError, saved.Status)
}

func TestChatCancelledContextStillPersists(t *testing.T) {
	f := newChatFixture(&fakeLLM{deltas: []string{"x"}, recvErr: context.Canceled})
	ctx, cancel := context.WithCancel(context.Background())

	turn, err := f.svc.Prepare(ctx, "user-1", ChatRequest{Message: "hello"})
	require.NoError(t, err)
	cancel()

	sink := &recordingSink{}
	require.Error(t, f.svc.Stream(ctx, turn, sink))
	require.Equal(t, model.MessageError, f.threads.message(turn.Placeholder.ID).Status)
	for _, e := range sink.events {
		require.NotEqual(t, StreamDone, e.Type)
	}
}

func TestChatFinalPersistFailureEmitsError(t *testing.T) {
	f := newChatFixture(&fakeLLM{deltas: []string{"answer"}})
	ctx := context.Background()

	turn, err := f.svc.Prepare(ctx, "user-1", ChatRequest{Message: "hello"})
	require.NoError(t, err)
	f.threads.updateErr = errors.New("deadlock")

	sink := &recordingSink{}
	require.ErrorIs(t, f.svc.Stream(ctx, turn, sink), ErrPersistence)
	require.Equal(t, []StreamEventType{StreamThread, StreamContent, StreamError}, sink.types())
}
