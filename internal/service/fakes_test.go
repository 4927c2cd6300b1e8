package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"om-intel-chat/internal/model"
	"om-intel-chat/internal/pipeline"
	"om-intel-chat/pkg/llm"
	"om-intel-chat/pkg/realtime"
)

type fakeDocuments struct {
	mu        sync.Mutex
	docs      map[string]*model.Document
	createErr error
	readyErr  error
	failedErr error
	statuses  []model.DocumentStatus
}

func newFakeDocuments(docs ...*model.Document) *fakeDocuments {
	f := &fakeDocuments{docs: map[string]*model.Document{}}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f
}

func (f *fakeDocuments) Create(_ context.Context, doc *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDocuments) FindByID(_ context.Context, id string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocuments) ListByOwner(_ context.Context, ownerID string) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Document
	for _, d := range f.docs {
		if d.OwnerID == ownerID {
			cp := *d
			cp.ExtractedText = nil
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeDocuments) set(id string, fn func(d *model.Document)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	fn(d)
	f.statuses = append(f.statuses, d.Status)
	return nil
}

func (f *fakeDocuments) MarkProcessing(_ context.Context, id string) error {
	return f.set(id, func(d *model.Document) {
		d.Status = model.DocumentProcessing
		d.ExtractedText = nil
		d.ErrorMessage = nil
	})
}

func (f *fakeDocuments) MarkReady(_ context.Context, id, text string, pageCount int) error {
	if f.readyErr != nil {
		return f.readyErr
	}
	return f.set(id, func(d *model.Document) {
		d.Status = model.DocumentReady
		d.ExtractedText = &text
		d.ErrorMessage = nil
		d.PageCount = pageCount
	})
}

func (f *fakeDocuments) MarkFailed(_ context.Context, id, message string) error {
	if f.failedErr != nil {
		return f.failedErr
	}
	return f.set(id, func(d *model.Document) {
		d.Status = model.DocumentError
		d.ExtractedText = nil
		d.ErrorMessage = &message
	})
}

func (f *fakeDocuments) UpdateSnapshot(_ context.Context, id string, snapshot datatypes.JSON) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	d.Snapshot = snapshot
	return nil
}

func (f *fakeDocuments) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	return nil
}

func (f *fakeDocuments) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

func (f *fakeDocuments) get(id string) *model.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id]
}

// fakeThreads 记录所有写操作的顺序，用于校验写入次序。
type fakeThreads struct {
	mu        sync.Mutex
	threads   map[string]*model.Thread
	messages  []*model.Message
	ops       []string
	updateErr error
}

func newFakeThreads() *fakeThreads {
	return &fakeThreads{threads: map[string]*model.Thread{}}
}

func (f *fakeThreads) CreateThread(_ context.Context, thread *model.Thread) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *thread
	f.threads[thread.ID] = &cp
	f.ops = append(f.ops, "create_thread")
	return nil
}

func (f *fakeThreads) FindThread(_ context.Context, id string) (*model.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeThreads) ListThreads(_ context.Context, ownerID string) ([]model.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Thread
	for _, t := range f.threads {
		if t.OwnerID == ownerID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeThreads) CreateTurn(_ context.Context, userMsg, placeholder *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, p := *userMsg, *placeholder
	f.messages = append(f.messages, &u, &p)
	f.ops = append(f.ops, "user_message", "placeholder")
	return nil
}

func (f *fakeThreads) UpdateMessage(_ context.Context, id, content string, status model.MessageStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "update:"+string(status))
	if f.updateErr != nil {
		return f.updateErr
	}
	for _, m := range f.messages {
		if m.ID == id {
			m.Content = content
			m.Status = status
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeThreads) RecentMessages(_ context.Context, threadID string, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.messages {
		if m.ThreadID == threadID && m.Status == model.MessageComplete {
			out = append(out, *m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeThreads) ListMessages(_ context.Context, threadID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.messages {
		if m.ThreadID == threadID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeThreads) message(id string) *model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			cp := *m
			return &cp
		}
	}
	return nil
}

type fakeUsage struct {
	mu      sync.Mutex
	entries []model.UsageLog
}

func (f *fakeUsage) Record(_ context.Context, entry *model.UsageLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := *entry
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeUsage) CountSince(_ context.Context, userID string, action model.UsageAction, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, e := range f.entries {
		if e.UserID == userID && e.Action == action && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeUsage) count(action model.UsageAction) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

type fakeJobs struct {
	mu      sync.Mutex
	jobs    map[string]*model.ExtractionJob
	claimed map[string]bool
}

func newFakeJobs(jobs ...*model.ExtractionJob) *fakeJobs {
	f := &fakeJobs{jobs: map[string]*model.ExtractionJob{}, claimed: map[string]bool{}}
	for _, j := range jobs {
		f.jobs[j.ID] = j
	}
	return f
}

func (f *fakeJobs) Create(_ context.Context, job *model.ExtractionJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeJobs) FindByID(_ context.Context, id string) (*model.ExtractionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobs) ListPending(_ context.Context, limit int) ([]model.ExtractionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ExtractionJob
	for _, j := range f.jobs {
		if j.Status == model.JobPending {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Priority != out[b].Priority {
			return out[a].Priority > out[b].Priority
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeJobs) Claim(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || j.Status != model.JobPending {
		return false, nil
	}
	j.Status = model.JobProcessing
	j.Attempts++
	return true, nil
}

func (f *fakeJobs) MarkCompleted(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Status = model.JobCompleted
	return nil
}

func (f *fakeJobs) MarkFailed(_ context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Status = model.JobFailed
	f.jobs[id].ErrorMessage = &message
	return nil
}

func (f *fakeJobs) status(id string) model.JobStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id].Status
}

type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	writes    int
	deleted   []string
	uploadErr error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}}
}

func (f *fakeBlobs) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.uploadErr != nil {
		return f.uploadErr
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return err
	}
	f.objects[key] = buf.Bytes()
	return nil
}

func (f *fakeBlobs) Download(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return b, nil
}

func (f *fakeBlobs) PublicURL(_ context.Context, key string) (string, error) {
	return "http://blobs.local/" + key, nil
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type publishedChange struct {
	OwnerID string
	Table   string
	Type    realtime.ChangeType
}

type fakePublisher struct {
	mu      sync.Mutex
	changes []publishedChange
}

func (f *fakePublisher) Publish(_ context.Context, ownerID, table string, typ realtime.ChangeType, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, publishedChange{OwnerID: ownerID, Table: table, Type: typ})
	return nil
}

type fakeQueue struct {
	mu        sync.Mutex
	submitted []string
	err       error
}

func (f *fakeQueue) Submit(_ context.Context, documentID, _ string) (*pipeline.TaskHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.submitted = append(f.submitted, documentID)
	return &pipeline.TaskHandle{JobID: "job-" + documentID, DocumentID: documentID}, nil
}

// fakeLLM 按预设的增量返回流，或在打开/读取时返回错误。
type fakeLLM struct {
	deltas    []string
	openErr   error
	recvErr   error
	complete  string
	completeE error
	lastMsgs  []llm.Message
}

func (f *fakeLLM) OpenStream(_ context.Context, messages []llm.Message, _ *llm.GenerationParams) (llm.Stream, error) {
	f.lastMsgs = messages
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeStream{deltas: f.deltas, err: f.recvErr}, nil
}

func (f *fakeLLM) Complete(_ context.Context, messages []llm.Message, _ bool) (string, error) {
	f.lastMsgs = messages
	return f.complete, f.completeE
}

type fakeStream struct {
	deltas []string
	err    error
	closed bool
}

func (s *fakeStream) Recv() (string, error) {
	if len(s.deltas) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	d := s.deltas[0]
	s.deltas = s.deltas[1:]
	return d, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// recordingSink 记录事件，failAfter 大于 0 时第 failAfter 次之后的写入失败。
type recordingSink struct {
	events    []StreamEvent
	failAfter int
}

func (s *recordingSink) Send(event any) error {
	if s.failAfter > 0 && len(s.events) >= s.failAfter {
		return errors.New("broken pipe")
	}
	s.events = append(s.events, event.(StreamEvent))
	return nil
}

func (s *recordingSink) types() []StreamEventType {
	out := make([]StreamEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type fakePages struct {
	pages []string
}

func (p *fakePages) NumPage() int { return len(p.pages) }

func (p *fakePages) PageText(page int) (string, error) {
	return p.pages[page-1], nil
}

func strPtr(s string) *string { return &s }
