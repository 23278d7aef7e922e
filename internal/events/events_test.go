package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingPublisher struct {
	release chan struct{}
	mu      sync.Mutex
	got     []LedgerEvent
}

func (p *blockingPublisher) Publish(ctx context.Context, event LedgerEvent) error {
	<-p.release
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, event)
	return nil
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, LedgerEvent) error {
	return errors.New("broker unavailable")
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	rec := &Recorder{}
	d := NewDispatcher(rec, 16, time.Second)

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, d.Publish(context.Background(), LedgerEvent{Type: ExpenseCreated, TripID: "t", TripVersion: i}))
	}
	d.Close()

	got := rec.Events()
	require.Len(t, got, 5)
	for i, e := range got {
		assert.Equal(t, int64(i+1), e.TripVersion)
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	p := &blockingPublisher{release: make(chan struct{})}
	d := NewDispatcher(p, 1, time.Second)

	// The first event is taken by the sender and blocks; the second fills
	// the queue; the rest are dropped without blocking the caller.
	for i := int64(1); i <= 10; i++ {
		require.NoError(t, d.Publish(context.Background(), LedgerEvent{TripVersion: i}))
		if i == 1 {
			time.Sleep(50 * time.Millisecond)
		}
	}
	close(p.release)
	d.Close()

	assert.Len(t, p.got, 2)
}

func TestDispatcher_PublisherErrorsDoNotStopDelivery(t *testing.T) {
	d := NewDispatcher(failingPublisher{}, 4, time.Second)
	require.NoError(t, d.Publish(context.Background(), LedgerEvent{Type: ExpenseDeleted}))
	require.NoError(t, d.Publish(context.Background(), LedgerEvent{Type: ExpenseDeleted}))
	d.Close()
	d.Close()
}

func TestDispatcher_PublishAfterClose(t *testing.T) {
	rec := &Recorder{}
	d := NewDispatcher(rec, 4, time.Second)
	require.NoError(t, d.Publish(context.Background(), LedgerEvent{Type: ExpenseCreated, TripVersion: 1}))
	d.Close()

	assert.NotPanics(t, func() {
		require.NoError(t, d.Publish(context.Background(), LedgerEvent{Type: ExpenseCreated, TripVersion: 2}))
	})
	assert.Len(t, rec.Events(), 1)
}

func TestDispatcher_ConcurrentPublishAndClose(t *testing.T) {
	d := NewDispatcher(&Recorder{}, 8, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = d.Publish(context.Background(), LedgerEvent{TripVersion: v})
			}
		}(int64(i))
	}
	d.Close()
	wg.Wait()
}
