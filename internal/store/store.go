package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/models"
)

// Adapter is the durable-store boundary. Each operation is independently
// retryable by the implementation; none is awaited by the session core.
type Adapter interface {
	AppendMessage(ctx context.Context, msg models.Message) error
	UpsertTask(ctx context.Context, groupID string, task models.Task) error
	DeleteTask(ctx context.Context, groupID, taskID string) error
	SnapshotTimer(ctx context.Context, groupID string, snap models.TimerSnapshot) error
}

const (
	queueSize  = 1024
	jobTimeout = 5 * time.Second
)

// Queue decouples the broadcast path from persistence: the session core
// enqueues and moves on, a single worker drains. A persistence failure is
// logged and dropped, never rolled back into the in-memory state
// (eventual-consistency contract with the store).
type Queue struct {
	adapter Adapter
	jobs    chan job
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

type job struct {
	kind string
	run  func(ctx context.Context) error
}

func NewQueue(adapter Adapter) *Queue {
	q := &Queue{
		adapter: adapter,
		jobs:    make(chan job, queueSize),
		done:    make(chan struct{}),
	}
	go q.work()
	return q
}

func (q *Queue) work() {
	for j := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		if err := j.run(ctx); err != nil {
			log.Error().Err(err).Str("job", j.kind).Msg("durable store write failed")
		}
		cancel()
	}
	close(q.done)
}

// Close stops accepting jobs and waits for the backlog to drain.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) submit(j job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.jobs <- j:
	default:
		log.Warn().Str("job", j.kind).Msg("persistence queue full, dropping write")
	}
}

func (q *Queue) AppendMessage(msg models.Message) {
	q.submit(job{kind: "append-message", run: func(ctx context.Context) error {
		return q.adapter.AppendMessage(ctx, msg)
	}})
}

func (q *Queue) UpsertTask(groupID string, task models.Task) {
	q.submit(job{kind: "upsert-task", run: func(ctx context.Context) error {
		return q.adapter.UpsertTask(ctx, groupID, task)
	}})
}

func (q *Queue) DeleteTask(groupID, taskID string) {
	q.submit(job{kind: "delete-task", run: func(ctx context.Context) error {
		return q.adapter.DeleteTask(ctx, groupID, taskID)
	}})
}

func (q *Queue) SnapshotTimer(groupID string, snap models.TimerSnapshot) {
	q.submit(job{kind: "snapshot-timer", run: func(ctx context.Context) error {
		return q.adapter.SnapshotTimer(ctx, groupID, snap)
	}})
}
