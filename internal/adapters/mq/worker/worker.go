// Package worker applies queued account-purge notifications.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
	"github.com/anthill-platform/anthill-leaderboard/pkg/logger"
	"github.com/anthill-platform/anthill-leaderboard/pkg/metrics"
)

const defaultWorkerCount = 2

// Purger removes every entry and placement of the given accounts.
type Purger interface {
	AccountsPurged(ctx context.Context, gamespace string, accounts []string, gamespaceOnly bool) error
}

// Source is where workers read events from.
type Source interface {
	Dequeue() <-chan model.PurgeEvent
}

// FailureHook is called with every event the purger rejected.
type FailureHook func(ctx context.Context, e model.PurgeEvent, err error)

// Worker drains a Source into a Purger.
type Worker struct {
	source    Source
	purger    Purger
	name      string
	onFailure FailureHook
	logger    logger.Logger
	done      chan struct{}
}

// NewWorker creates a worker; call Run to start it.
func NewWorker(source Source, purger Purger, opts ...Option) *Worker {
	w := &Worker{
		source: source,
		purger: purger,
		name:   "purge-worker",
		logger: logger.Discard(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run processes events until the source is closed and drained or ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.source.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			_ = w.process(ctx, e)
		}
	}
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) process(ctx context.Context, e model.PurgeEvent) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	err := w.purger.AccountsPurged(ctx, e.Gamespace, e.Accounts, e.GamespaceOnly)
	if err != nil {
		metrics.RecordWorkerError()
		w.logger.Error(ctx, "purge failed",
			logger.String("event_id", e.EventID),
			logger.String("gamespace", e.Gamespace),
			logger.Int("accounts", len(e.Accounts)),
			logger.Error(err))
		if w.onFailure != nil {
			w.onFailure(ctx, e, err)
		}
		return fmt.Errorf("purge event %s: %w", e.EventID, err)
	}
	w.logger.Debug(ctx, "purge applied",
		logger.String("event_id", e.EventID),
		logger.Int("accounts", len(e.Accounts)))
	return nil
}

// Pool manages multiple workers over one source.
type Pool struct {
	workers []*Worker
	source  Source
	logger  logger.Logger
	once    sync.Once
}

// NewPool creates count workers sharing opts. A count below one means the
// default.
func NewPool(count int, source Source, purger Purger, opts ...Option) *Pool {
	if count < 1 {
		count = defaultWorkerCount
	}
	p := &Pool{
		workers: make([]*Worker, count),
		source:  source,
		logger:  logger.Discard(),
	}
	for i := range p.workers {
		wopts := append(append([]Option{}, opts...), WithName("purge-worker-"+strconv.Itoa(i)))
		p.workers[i] = NewWorker(source, purger, wopts...)
	}
	if len(p.workers) > 0 {
		p.logger = p.workers[0].logger
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start runs every worker in its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the source when it can be closed and waits for the
// workers to drain it, or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		if closer, ok := p.source.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				p.logger.Error(ctx, "closing purge source", logger.Error(err))
			}
		}
	})

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("shutdown timed out: %w", ctx.Err())
		}
	}
	return nil
}
