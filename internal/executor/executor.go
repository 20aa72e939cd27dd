package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/contentpress/bakerd/internal/domain"
)

// State is the lifecycle of one submitted task.
type State string

const (
	StatePending State = "pending"
	StateStarted State = "started"
	StateRetry   State = "retry" // reserved: no task retries itself today
	StateFailure State = "failure"
	StateSuccess State = "success"
)

// TaskFunc is the unit of work handed to Submit. The context is the pool's
// run context; a cancelled pool lets in-flight tasks observe shutdown.
type TaskFunc func(ctx context.Context) error

// TaskHandle identifies a submitted task for later correlation.
type TaskHandle struct {
	ID string
}

// Status is the queryable result record for a task. Error holds the full
// failure detail; persistence layers excerpt it as they see fit.
type Status struct {
	State       State
	Error       string
	SubmittedAt time.Time
	FinishedAt  time.Time
}

// MetricHooks carries the metric callbacks injected by main.
type MetricHooks struct {
	OnQueued   func(depth int)
	OnFinished func(state State, d time.Duration)
}

type submission struct {
	id string
	fn TaskFunc
}

// defaultResultHistory caps tracked finished tasks when no explicit bound
// is configured.
const defaultResultHistory = 10000

// Pool is a fixed-size worker pool executing fire-and-forget tasks from a
// bounded queue, with an in-memory result store for status lookups.
// Submit never blocks: a full queue is an error the caller must surface.
//
// The result store retains at most history finished entries, oldest
// evicted first, so a long-running daemon does not grow without bound.
// Pending and started tasks are never evicted.
type Pool struct {
	tasks   chan submission
	workers int
	history int
	logger  *zap.Logger
	hooks   MetricHooks
	wg      sync.WaitGroup

	mu       sync.RWMutex
	results  map[string]*Status
	finished []string
}

func NewPool(workers, capacity, history int, logger *zap.Logger, hooks MetricHooks) *Pool {
	if history <= 0 {
		history = defaultResultHistory
	}
	if hooks.OnQueued == nil {
		hooks.OnQueued = func(int) {}
	}
	if hooks.OnFinished == nil {
		hooks.OnFinished = func(State, time.Duration) {}
	}
	return &Pool{
		tasks:   make(chan submission, capacity),
		workers: workers,
		history: history,
		logger:  logger,
		hooks:   hooks,
		results: make(map[string]*Status),
	}
}

// Start launches all workers. The provided ctx is forwarded to every
// worker; cancelling it triggers a graceful shutdown of the entire pool.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
}

// Wait blocks until every worker has returned after ctx is cancelled.
// Tasks still queued at that point stay pending; the modules they belonged
// to sit in processing until external reconciliation re-drives them.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Submit enqueues fn and returns its handle. Fails with domain.ErrQueueFull
// when the queue is at capacity rather than blocking the caller, which is
// the listener's dispatch path.
func (p *Pool) Submit(fn TaskFunc) (TaskHandle, error) {
	id := uuid.New().String()

	p.mu.Lock()
	p.results[id] = &Status{State: StatePending, SubmittedAt: time.Now().UTC()}
	p.mu.Unlock()

	select {
	case p.tasks <- submission{id: id, fn: fn}:
	default:
		p.mu.Lock()
		delete(p.results, id)
		p.mu.Unlock()
		return TaskHandle{}, domain.ErrQueueFull
	}

	p.hooks.OnQueued(len(p.tasks))
	return TaskHandle{ID: id}, nil
}

// Lookup returns the current status of a task.
func (p *Pool) Lookup(id string) (Status, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.results[id]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	return *s, nil
}

// Depth returns the number of tasks waiting for a worker.
func (p *Pool) Depth() int {
	return len(p.tasks)
}

// StateCounts returns how many tracked tasks are in each state.
// Used by the executor snapshot endpoint.
func (p *Pool) StateCounts() map[State]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	counts := make(map[State]int)
	for _, s := range p.results {
		counts[s.State]++
	}
	return counts
}

func (p *Pool) run(ctx context.Context, id int) {
	log := p.logger.With(zap.Int("worker_id", id))
	log.Info("executor worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info("executor worker stopping")
			return
		case s := <-p.tasks:
			p.execute(ctx, s)
			p.hooks.OnQueued(len(p.tasks))
		}
	}
}

func (p *Pool) execute(ctx context.Context, s submission) {
	start := time.Now()
	p.setState(s.id, StateStarted, "")

	err := p.runTask(ctx, s.fn)
	elapsed := time.Since(start)

	if err != nil {
		p.setState(s.id, StateFailure, err.Error())
		p.hooks.OnFinished(StateFailure, elapsed)
		p.logger.Warn("task failed",
			zap.String("task_id", s.id),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return
	}

	p.setState(s.id, StateSuccess, "")
	p.hooks.OnFinished(StateSuccess, elapsed)
	p.logger.Debug("task finished",
		zap.String("task_id", s.id),
		zap.Duration("elapsed", elapsed),
	)
}

// runTask isolates a panicking task so it cannot take down its worker.
func (p *Pool) runTask(ctx context.Context, fn TaskFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panic: %v", rec)
		}
	}()
	return fn(ctx)
}

func (p *Pool) setState(id string, state State, errMsg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.results[id]
	if !ok {
		return
	}
	s.State = state
	s.Error = errMsg
	if state == StateFailure || state == StateSuccess {
		s.FinishedAt = time.Now().UTC()
		p.finished = append(p.finished, id)
		for len(p.finished) > p.history {
			delete(p.results, p.finished[0])
			p.finished = p.finished[1:]
		}
	}
}
