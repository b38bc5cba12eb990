// Package realtime turns the store's change feed into restartable snapshot
// streams: each Next call yields the current query result, blocking until a
// change arrives after the first one.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/pkg/messaging"
	"github.com/jwalitptl/lifeblood-api/pkg/metrics"
)

var ErrClosed = errors.New("subscription closed")

// Query names the collection to watch and how to load a snapshot of it.
type Query struct {
	Collection string
	Load       func(ctx context.Context) (interface{}, error)
}

type Snapshot struct {
	Seq   uint64      `json:"seq"`
	Items interface{} `json:"items"`
	At    time.Time   `json:"at"`
}

// Subscription is a lazy, infinite sequence of snapshots. Next must not be
// called concurrently; Close may be called from any goroutine.
type Subscription struct {
	query   Query
	events  <-chan []byte
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	seq     uint64
	metrics *metrics.Metrics
}

// Subscribe starts listening for changes before the first snapshot is loaded,
// so no change between the two is missed.
func Subscribe(ctx context.Context, broker messaging.Broker, q Query, m *metrics.Metrics) (*Subscription, error) {
	if q.Load == nil {
		return nil, fmt.Errorf("query for %s has no loader", q.Collection)
	}
	subCtx, cancel := context.WithCancel(ctx)
	events, err := broker.Subscribe(subCtx, model.ChangeChannel(q.Collection))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", q.Collection, err)
	}
	m.ActiveSubscriptions.Inc()
	return &Subscription{
		query:   q,
		events:  events,
		cancel:  cancel,
		done:    make(chan struct{}),
		metrics: m,
	}, nil
}

// Next returns the initial snapshot on the first call. Later calls wait for
// at least one change event, fold any burst that is already queued, and
// reload.
func (s *Subscription) Next(ctx context.Context) (*Snapshot, error) {
	select {
	case <-s.done:
		return nil, ErrClosed
	default:
	}

	if s.seq > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, ErrClosed
		case _, ok := <-s.events:
			if !ok {
				s.Close()
				return nil, ErrClosed
			}
		}
	drain:
		for {
			select {
			case _, ok := <-s.events:
				if !ok {
					break drain
				}
			default:
				break drain
			}
		}
	}

	items, err := s.query.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.seq++
	return &Snapshot{Seq: s.seq, Items: items, At: time.Now().UTC()}, nil
}

// Close releases the broker subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
		s.metrics.ActiveSubscriptions.Dec()
	})
	return nil
}
