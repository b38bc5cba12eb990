package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
	"github.com/jwalitptl/lifeblood-api/pkg/messaging"
	"github.com/jwalitptl/lifeblood-api/pkg/metrics"
)

type fakeOutbox struct {
	mu       sync.Mutex
	events   []*model.OutboxEvent
	statuses map[uuid.UUID]model.OutboxStatus
	retryAt  map[uuid.UUID]*time.Time
	deleted  time.Time
}

func newFakeOutbox(events ...*model.OutboxEvent) *fakeOutbox {
	return &fakeOutbox{
		events:   events,
		statuses: make(map[uuid.UUID]model.OutboxStatus),
		retryAt:  make(map[uuid.UUID]*time.Time),
	}
}

func (f *fakeOutbox) GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.OutboxEvent
	for _, e := range f.events {
		if st := f.statuses[e.ID]; st == model.OutboxStatusProcessed || st == model.OutboxStatusDead {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeOutbox) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	f.retryAt[id] = retryAt
	return nil
}

func (f *fakeOutbox) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = before
	return 0, nil
}

func (f *fakeOutbox) CountPending(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if st := f.statuses[e.ID]; st != model.OutboxStatusProcessed && st != model.OutboxStatusDead {
			n++
		}
	}
	return n, nil
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	p.calls++
	return errors.New("broker down")
}

func testConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{BatchSize: 10, PollInterval: time.Second, RetryAttempts: 2, RetryDelay: time.Millisecond, MaxFailures: 3}
}

func TestOutboxProcessorPublishesChangeEvents(t *testing.T) {
	ev, err := model.NewChangeOutboxEvent(model.ChangeEvent{
		Collection: model.CollectionOffers,
		DocumentID: uuid.NewString(),
		Op:         model.ChangeUpdate,
		At:         time.Now().UTC(),
	})
	require.NoError(t, err)
	repo := newFakeOutbox(ev)

	broker := messaging.NewLocalBroker(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := broker.Subscribe(ctx, model.ChangeChannel(model.CollectionOffers))
	require.NoError(t, err)

	p, err := NewOutboxProcessor(repo, broker, testConfig(), logger.Nop(), metrics.NewNop())
	require.NoError(t, err)

	n, err := p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.OutboxStatusProcessed, repo.statuses[ev.ID])

	select {
	case msg := <-sub:
		var got model.ChangeEvent
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, model.CollectionOffers, got.Collection)
		assert.Equal(t, model.ChangeUpdate, got.Op)
	case <-time.After(time.Second):
		t.Fatal("change event not relayed")
	}

	n, err = p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOutboxProcessorMarksFailures(t *testing.T) {
	ev, err := model.NewChangeOutboxEvent(model.ChangeEvent{Collection: model.CollectionBookings, DocumentID: "x", Op: model.ChangeCreate, At: time.Now()})
	require.NoError(t, err)
	repo := newFakeOutbox(ev)
	pub := &failingPublisher{}

	p, err := NewOutboxProcessor(repo, pub, testConfig(), logger.Nop(), metrics.NewNop())
	require.NoError(t, err)

	n, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, pub.calls)
	assert.Equal(t, model.OutboxStatusFailed, repo.statuses[ev.ID])
	require.NotNil(t, repo.retryAt[ev.ID])
	assert.True(t, repo.retryAt[ev.ID].After(time.Now().Add(-time.Second)))
}

func TestOutboxProcessorDeadLettersAfterMaxFailures(t *testing.T) {
	ev, err := model.NewChangeOutboxEvent(model.ChangeEvent{Collection: model.CollectionOffers, DocumentID: "y", Op: model.ChangeUpdate, At: time.Now()})
	require.NoError(t, err)
	ev.RetryCount = 1
	repo := newFakeOutbox(ev)
	pub := &failingPublisher{}

	p, err := NewOutboxProcessor(repo, pub, testConfig(), logger.Nop(), metrics.NewNop())
	require.NoError(t, err)

	_, err = p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.OutboxStatusFailed, repo.statuses[ev.ID])

	// the third failed round exhausts the budget
	ev.RetryCount = 2
	_, err = p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.OutboxStatusDead, repo.statuses[ev.ID])
	assert.Nil(t, repo.retryAt[ev.ID])

	calls := pub.calls
	n, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, calls, pub.calls)

	pending, err := repo.CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestOutboxProcessorRejectsBadConfig(t *testing.T) {
	_, err := NewOutboxProcessor(newFakeOutbox(), &failingPublisher{}, OutboxProcessorConfig{}, logger.Nop(), metrics.NewNop())
	assert.Error(t, err)
}

func TestOutboxCleanup(t *testing.T) {
	repo := newFakeOutbox()
	w := NewOutboxCleanupWorker(repo, time.Hour, time.Minute, logger.Nop())
	require.NoError(t, w.cleanup(context.Background()))
	assert.WithinDuration(t, time.Now().Add(-time.Hour), repo.deleted, time.Second)
}
