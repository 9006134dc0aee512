package logpipeline

import (
	"context"
	"testing"
	"time"

	"github.com/arcrelay/geminiproxy/internal/dispatch"
	"github.com/arcrelay/geminiproxy/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	created []*model.RequestLog
	updates []fakeUpdate
	nextID  int64
}

type fakeUpdate struct {
	id     int64
	fields map[string]any
}

func (f *fakeRepo) Create(ctx context.Context, entry *model.RequestLog) error {
	f.nextID++
	entry.ID = f.nextID
	f.created = append(f.created, entry)
	return nil
}

func (f *fakeRepo) Update(ctx context.Context, id int64, fields map[string]any) error {
	f.updates = append(f.updates, fakeUpdate{id: id, fields: fields})
	return nil
}

func TestCreateThenUpdateRetryResolvesRealID(t *testing.T) {
	repo := &fakeRepo{}
	p := NewProducer()
	c := NewConsumer(p, repo)

	p.CreateLog(context.Background(), &model.RequestLog{RequestID: "req-1", Model: "gemini-pro"})
	p.UpdateRetry(context.Background(), "req-1", 1, 42)

	c.flush(context.Background())

	require.Len(t, repo.created, 1)
	require.Len(t, repo.updates, 1)
	assert.Equal(t, repo.created[0].ID, repo.updates[0].id)
	assert.Equal(t, int64(42), repo.updates[0].fields["account_id"])
}

func TestRecordSuccessMarksTerminalAndClearsMapping(t *testing.T) {
	repo := &fakeRepo{}
	p := NewProducer()
	c := NewConsumer(p, repo)

	p.CreateLog(context.Background(), &model.RequestLog{RequestID: "req-2"})
	c.flush(context.Background())

	p.RecordSuccess(context.Background(), dispatch.SuccessResult{
		RequestID: "req-2", AccountID: 7, StatusCode: 200, TotalAttempts: 1,
	})
	c.flush(context.Background())

	require.Len(t, repo.updates, 1)
	assert.Equal(t, true, repo.updates[0].fields["is_success"])

	_, stillTracked := p.requestIDToTemp.Load("req-2")
	assert.False(t, stillTracked)
	_, stillMapped := c.tempToReal[1]
	assert.False(t, stillMapped)
}

func TestRecordFailureCarriesErrorMessage(t *testing.T) {
	repo := &fakeRepo{}
	p := NewProducer()
	c := NewConsumer(p, repo)

	p.CreateLog(context.Background(), &model.RequestLog{RequestID: "req-5"})
	c.flush(context.Background())

	p.RecordFailure(context.Background(), dispatch.FailureResult{
		RequestID: "req-5", StatusCode: 503, ErrorMessage: "upstream exhausted", TotalAttempts: 15,
	})
	c.flush(context.Background())

	require.Len(t, repo.updates, 1)
	assert.Equal(t, "upstream exhausted", repo.updates[0].fields["error_message"])
	assert.Equal(t, false, repo.updates[0].fields["is_success"])
}

func TestUpdateWithoutCreateIsRequeuedThenDroppedAfterLimit(t *testing.T) {
	repo := &fakeRepo{}
	p := NewProducer()
	c := NewConsumer(p, repo)

	p.enqueue(queueItem{op: opUpdate, tempLogID: 999, fields: map[string]any{"x": 1}})

	for i := 0; i <= maxUpdateRequeues; i++ {
		c.flush(context.Background())
	}

	assert.Empty(t, repo.updates)
	assert.Equal(t, 0, p.pending())
}

func TestUpdateRetryWithUnknownRequestIDIsDropped(t *testing.T) {
	p := NewProducer()
	p.UpdateRetry(context.Background(), "unknown-request", 1, 5)
	assert.Equal(t, 0, p.pending())
}

func TestRunFlushesOnContextCancellation(t *testing.T) {
	repo := &fakeRepo{}
	p := NewProducer()
	c := NewConsumer(p, repo)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	p.CreateLog(context.Background(), &model.RequestLog{RequestID: "req-3"})
	cancel()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not finish draining after cancellation")
	}

	assert.Len(t, repo.created, 1)
}
