package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"om-intel-chat/internal/config"
	"om-intel-chat/internal/extractor"
	"om-intel-chat/internal/model"
	"om-intel-chat/pkg/realtime"
)

type extractionFixture struct {
	docs  *fakeDocuments
	blobs *fakeBlobs
	pub   *fakePublisher
	cache *ContextCache
	svc   *extractionService
}

func newExtractionFixture(pages []string, docs ...*model.Document) *extractionFixture {
	f := &extractionFixture{
		docs:  newFakeDocuments(docs...),
		blobs: newFakeBlobs(),
		pub:   &fakePublisher{},
		cache: NewContextCache(8, time.Minute),
	}
	for _, d := range docs {
		f.blobs.objects[d.StorageKey] = samplePDF
	}
	f.svc = NewExtractionService(f.docs, f.blobs, f.cache, f.pub, config.ExtractionConfig{
		MaxPages:          10,
		MaxChars:          100000,
		EarlyExitRatio:    0.8,
		ErrorMessageLimit: 500,
		ChunkSize:         1000,
		ChunkOverlap:      100,
	}).(*extractionService)
	f.svc.open = func([]byte) (extractor.PageSource, error) {
		return &fakePages{pages: pages}, nil
	}
	return f
}

func uploadedDoc(id, owner string) *model.Document {
	return &model.Document{ID: id, OwnerID: owner, Name: id + ".pdf", StorageKey: owner + "/" + id + ".pdf", Status: model.DocumentProcessing}
}

func TestExtractDocumentMarksReady(t *testing.T) {
	f := newExtractionFixture([]string{"Executive summary", "Property description", "Location overview"}, uploadedDoc("doc-1", "user-1"))

	var events []extractor.EventType
	out, err := f.svc.ExtractDocument(context.Background(), "doc-1", "user-1", func(e extractor.Event) {
		events = append(events, e.Type)
	})
	require.NoError(t, err)
	require.Equal(t, extractor.StopPagesExhausted, out.Result.StopReason)
	require.Equal(t, 3, out.Result.PagesProcessed)
	require.Equal(t, 1, out.Chunks)
	require.Equal(t, len("Executive summary\n\nProperty description\n\nLocation overview"), out.TextLength)

	require.Equal(t, []extractor.EventType{
		extractor.EventStart, extractor.EventProgress, extractor.EventProgress, extractor.EventProgress, extractor.EventComplete,
	}, events)

	doc := f.docs.get("doc-1")
	require.Equal(t, model.DocumentReady, doc.Status)
	require.Equal(t, 3, doc.PageCount)
	require.Nil(t, doc.ErrorMessage)
	require.Equal(t, []model.DocumentStatus{model.DocumentProcessing, model.DocumentReady}, f.docs.statuses)
	require.Len(t, f.pub.changes, 2)
	require.Equal(t, realtime.Update, f.pub.changes[1].Type)
}

func TestExtractDocumentFailureClipsMessage(t *testing.T) {
	f := newExtractionFixture(nil, uploadedDoc("doc-1", "user-1"))
	f.svc.open = func([]byte) (extractor.PageSource, error) {
		return nil, &extractor.ExtractionError{Msg: strings.Repeat("bad xref ", 200)}
	}

	_, err := f.svc.ExtractDocument(context.Background(), "doc-1", "", nil)
	require.ErrorIs(t, err, ErrUpstream)

	doc := f.docs.get("doc-1")
	require.Equal(t, model.DocumentError, doc.Status)
	require.Nil(t, doc.ExtractedText)
	require.NotNil(t, doc.ErrorMessage)
	require.Len(t, []rune(*doc.ErrorMessage), 500)
}

func TestExtractDocumentDownloadFailure(t *testing.T) {
	f := newExtractionFixture([]string{"text"}, uploadedDoc("doc-1", "user-1"))
	delete(f.blobs.objects, "user-1/doc-1.pdf")

	_, err := f.svc.ExtractDocument(context.Background(), "doc-1", "user-1", nil)
	require.ErrorIs(t, err, ErrUpstream)
	require.Equal(t, model.DocumentError, f.docs.get("doc-1").Status)
}

func TestExtractDocumentNotFound(t *testing.T) {
	f := newExtractionFixture(nil, uploadedDoc("doc-1", "user-1"))

	_, err := f.svc.ExtractDocument(context.Background(), "missing", "", nil)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.ExtractDocument(context.Background(), "doc-1", "intruder", nil)
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, f.docs.statuses)

	_, err = f.svc.ExtractDocument(context.Background(), "", "", nil)
	require.ErrorIs(t, err, ErrValidation)
}

// 保存文本失败时尝试把文档置为 error；置 error 也失败时只记录日志。
func TestExtractDocumentPersistFailure(t *testing.T) {
	f := newExtractionFixture([]string{"text"}, uploadedDoc("doc-1", "user-1"))
	f.docs.readyErr = errors.New("lost connection")

	_, err := f.svc.ExtractDocument(context.Background(), "doc-1", "", nil)
	require.ErrorIs(t, err, ErrPersistence)
	require.Equal(t, model.DocumentError, f.docs.get("doc-1").Status)

	f.docs.failedErr = errors.New("still down")
	_, err = f.svc.ExtractDocument(context.Background(), "doc-1", "", nil)
	require.ErrorIs(t, err, ErrPersistence)
	require.Equal(t, model.DocumentProcessing, f.docs.get("doc-1").Status)
}

func TestExtractDocumentIsIdempotent(t *testing.T) {
	pages := []string{"NOI and cap rate", strings.Repeat("rent roll ", 50)}
	f := newExtractionFixture(pages, uploadedDoc("doc-1", "user-1"))
	ctx := context.Background()

	_, err := f.svc.ExtractDocument(ctx, "doc-1", "", nil)
	require.NoError(t, err)
	first := *f.docs.get("doc-1").ExtractedText

	_, err = f.svc.ExtractDocument(ctx, "doc-1", "", nil)
	require.NoError(t, err)
	require.Equal(t, first, *f.docs.get("doc-1").ExtractedText)
}

func TestExtractDocumentInvalidatesContextCache(t *testing.T) {
	f := newExtractionFixture([]string{"fresh"}, uploadedDoc("doc-1", "user-1"))
	f.cache.add("doc-1", documentContext{OwnerID: "user-1", Text: "stale"})

	_, err := f.svc.ExtractDocument(context.Background(), "doc-1", "", nil)
	require.NoError(t, err)
	_, ok := f.cache.get("doc-1")
	require.False(t, ok)
}

func TestExtractDocumentSurvivesCallerDisconnect(t *testing.T) {
	f := newExtractionFixture([]string{"Executive summary", "Rent roll", "Location overview"}, uploadedDoc("doc-1", "user-1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var progress int
	out, err := f.svc.ExtractDocument(ctx, "doc-1", "user-1", func(e extractor.Event) {
		if e.Type == extractor.EventProgress {
			progress++
			// 流式调用方在第一页之后断开
			cancel()
		}
	})
	require.NoError(t, err)
	require.Equal(t, 3, out.Result.PagesProcessed)
	require.Equal(t, extractor.StopPagesExhausted, out.Result.StopReason)
	require.Equal(t, 3, progress)

	doc := f.docs.get("doc-1")
	require.Equal(t, model.DocumentReady, doc.Status)
	require.Nil(t, doc.ErrorMessage)
	require.Equal(t, "Executive summary\n\nRent roll\n\nLocation overview", *doc.ExtractedText)
}
