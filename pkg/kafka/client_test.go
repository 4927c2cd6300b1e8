package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"om-intel-chat/pkg/tasks"
)

type recordingProcessor struct {
	got []tasks.ExtractionTask
	err error
}

func (p *recordingProcessor) Process(_ context.Context, task tasks.ExtractionTask) error {
	p.got = append(p.got, task)
	return p.err
}

func TestHandleMessageDecodesTask(t *testing.T) {
	p := &recordingProcessor{}
	err := handleMessage(context.Background(), p, []byte(`{"job_id":"j1","document_id":"d1","owner_id":"u1"}`))
	require.NoError(t, err)
	require.Equal(t, []tasks.ExtractionTask{{JobID: "j1", DocumentID: "d1", OwnerID: "u1"}}, p.got)
}

func TestHandleMessageRejectsMalformed(t *testing.T) {
	p := &recordingProcessor{}
	err := handleMessage(context.Background(), p, []byte(`not json`))
	require.Error(t, err)
	require.Empty(t, p.got)
}

func TestHandleMessagePropagatesProcessorError(t *testing.T) {
	p := &recordingProcessor{err: errors.New("boom")}
	err := handleMessage(context.Background(), p, []byte(`{"job_id":"j1","document_id":"d1"}`))
	require.EqualError(t, err, "boom")
}
