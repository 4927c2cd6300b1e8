package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"om-intel-chat/internal/model"
	"om-intel-chat/pkg/tasks"
)

type memJobs struct {
	created []*model.ExtractionJob
	err     error
}

func (m *memJobs) Create(_ context.Context, job *model.ExtractionJob) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, job)
	return nil
}

func (m *memJobs) FindByID(context.Context, string) (*model.ExtractionJob, error) {
	return nil, errors.New("not implemented")
}

func (m *memJobs) ListPending(context.Context, int) ([]model.ExtractionJob, error) { return nil, nil }

func (m *memJobs) Claim(context.Context, string) (bool, error) { return false, nil }

func (m *memJobs) MarkCompleted(context.Context, string) error { return nil }

func (m *memJobs) MarkFailed(context.Context, string, string) error { return nil }

type memProducer struct {
	sent []tasks.ExtractionTask
	err  error
}

func (p *memProducer) ProduceExtractionTask(_ context.Context, task tasks.ExtractionTask) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, task)
	return nil
}

func TestSubmitCreatesJobAndPublishes(t *testing.T) {
	jobs, producer := &memJobs{}, &memProducer{}
	q := NewTaskQueue(jobs, producer)

	handle, err := q.Submit(context.Background(), "doc-1", "user-1")
	require.NoError(t, err)
	require.Len(t, jobs.created, 1)
	require.Equal(t, model.JobPending, jobs.created[0].Status)
	require.Equal(t, jobs.created[0].ID, handle.JobID)
	require.Equal(t, "doc-1", handle.DocumentID)
	require.Equal(t, []tasks.ExtractionTask{{JobID: handle.JobID, DocumentID: "doc-1", OwnerID: "user-1"}}, producer.sent)
}

// 消息投递失败时任务行保留为 pending，提交仍然成功。
func TestSubmitToleratesProducerFailure(t *testing.T) {
	jobs := &memJobs{}
	q := NewTaskQueue(jobs, &memProducer{err: errors.New("broker unavailable")})

	handle, err := q.Submit(context.Background(), "doc-1", "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, handle.JobID)
	require.Len(t, jobs.created, 1)
}

func TestSubmitFailsWhenJobRowFails(t *testing.T) {
	q := NewTaskQueue(&memJobs{err: errors.New("db down")}, &memProducer{})
	_, err := q.Submit(context.Background(), "doc-1", "user-1")
	require.Error(t, err)
}

type recordingRunner struct {
	ran []string
	err error
}

func (r *recordingRunner) RunJob(_ context.Context, jobID string) error {
	r.ran = append(r.ran, jobID)
	return r.err
}

func TestProcessorRunsJob(t *testing.T) {
	runner := &recordingRunner{}
	p := NewProcessor(runner)

	require.NoError(t, p.Process(context.Background(), tasks.ExtractionTask{JobID: "job-1", DocumentID: "doc-1"}))
	require.Equal(t, []string{"job-1"}, runner.ran)

	require.Error(t, p.Process(context.Background(), tasks.ExtractionTask{DocumentID: "doc-1"}))

	runner.err = errors.New("extraction failed")
	require.ErrorIs(t, p.Process(context.Background(), tasks.ExtractionTask{JobID: "job-2"}), runner.err)
}
