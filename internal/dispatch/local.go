package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/dose-reminder/internal/clock"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("queue closed")

// LocalQueue fires jobs from in-process timers.  Pending jobs are lost
// when the process exits.
type LocalQueue struct {
	handle func(ctx context.Context, body []byte) error
	clock  clock.Clock
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
	wg      sync.WaitGroup
}

// NewLocalQueue returns a queue that passes each due body to handle.
func NewLocalQueue(handle func(ctx context.Context, body []byte) error, clk clock.Clock, log *zap.Logger) *LocalQueue {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalQueue{
		handle:  handle,
		clock:   clk,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		pending: map[string]*time.Timer{},
	}
}

var _ Queue = (*LocalQueue)(nil)

func (q *LocalQueue) Enqueue(_ context.Context, id string, body []byte, notBefore time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.pending[id]; ok {
		return nil
	}
	delay := max(notBefore.Sub(q.clock.Now()), 0)
	q.wg.Add(1)
	q.pending[id] = time.AfterFunc(delay, func() { q.fire(id, body) })
	return nil
}

func (q *LocalQueue) fire(id string, body []byte) {
	defer q.wg.Done()
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()

	if err := q.handle(q.ctx, body); err != nil {
		q.log.Warn("local dispatch failed", zap.String("job_id", id), zap.Error(err))
	}
}

// Len returns the number of jobs waiting for their fire time.
func (q *LocalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close drops pending jobs and waits for running handlers.
func (q *LocalQueue) Close() {
	q.mu.Lock()
	q.closed = true
	for id, t := range q.pending {
		if t.Stop() {
			q.wg.Done()
		}
		delete(q.pending, id)
	}
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
}
