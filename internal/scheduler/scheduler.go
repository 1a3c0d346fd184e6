// Package scheduler admits classification requests to a single shared model,
// bounding how many run at once and cancelling them by session.
//
// All bookkeeping (queue, occupancy, session index) is guarded by one mutex.
// Submit, SetConcurrency and CancelSession never wait on the model; the model
// call runs in its own goroutine and re-enters the lock only to report
// completion.
package scheduler

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"imgfilter/internal/domain"
)

var (
	ErrNotReady           = errors.New("model not ready")
	ErrCancelled          = errors.New(domain.CancelledMessage)
	ErrClosed             = errors.New("scheduler closed")
	ErrTimeout            = errors.New("classification timed out")
	ErrInvalidConcurrency = errors.New("concurrency must be a positive integer")
)

const DefaultEndedSessionMemory = 1024

// Adapter classifies one request. It must not panic and must be safe for
// concurrent use.
type Adapter interface {
	Classify(ctx context.Context, req domain.Request) domain.Verdict
}

// Observer is told about every verdict the scheduler delivers. It is called
// outside the scheduler lock.
type Observer interface {
	Observe(req domain.Request, v domain.Verdict)
}

type ObserverFunc func(req domain.Request, v domain.Verdict)

func (f ObserverFunc) Observe(req domain.Request, v domain.Verdict) { f(req, v) }

type state int

const (
	stateQueued state = iota
	stateDispatched
	stateTombstoned // session ended while dispatched, completion is discarded
	stateExpired    // deadline passed while dispatched, slot already released
	stateDone
)

func (s state) String() string {
	switch s {
	case stateQueued:
		return "queued"
	case stateDispatched:
		return "dispatched"
	case stateTombstoned:
		return "tombstoned"
	case stateExpired:
		return "expired"
	case stateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type task struct {
	req    domain.Request
	future *Future
	state  state
	elem   *list.Element
	cancel context.CancelFunc
	timer  *time.Timer
}

type delivery struct {
	req     domain.Request
	verdict domain.Verdict
}

type Option func(*Scheduler)

// WithDispatchTimeout bounds how long a dispatched request may hold its slot.
// Zero disables the deadline.
func WithDispatchTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observers = append(s.observers, o) }
}

// WithEndedSessionMemory sets how many ended session IDs are remembered.
func WithEndedSessionMemory(n int) Option {
	return func(s *Scheduler) { s.ended = newEndedSessions(n) }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

type Scheduler struct {
	mu          sync.Mutex
	adapter     Adapter
	concurrency int
	running     int
	queue       *list.List // *task, FIFO
	sessions    map[domain.SessionID][]*task
	ended       *endedSessions
	closed      bool
	counters    Counters
	pending     []delivery // observer calls owed once the lock is released

	timeout   time.Duration
	observers []Observer
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(concurrency int, opts ...Option) (*Scheduler, error) {
	if concurrency < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, concurrency)
	}

	s := &Scheduler{
		concurrency: concurrency,
		queue:       list.New(),
		sessions:    make(map[domain.SessionID][]*task),
		ended:       newEndedSessions(DefaultEndedSessionMemory),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	return s, nil
}

// SetAdapter makes the model available. Until it is called every Submit is
// rejected with ErrNotReady.
func (s *Scheduler) SetAdapter(a Adapter) {
	s.mu.Lock()
	defer s.unlock()

	s.adapter = a
	s.logger.Info("model ready, accepting requests")
}

func (s *Scheduler) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adapter != nil && !s.closed
}

// Submit queues req and returns immediately. The future resolves with an
// error verdict right away when the model is not ready, the scheduler is
// closed, or req belongs to a session that has already ended.
func (s *Scheduler) Submit(req domain.Request) *Future {
	req = req.WithID()

	s.mu.Lock()
	defer s.unlock()

	s.counters.Submitted++

	var reject error
	switch {
	case s.closed:
		reject = ErrClosed
	case s.adapter == nil:
		reject = ErrNotReady
	case req.SessionID != "" && s.ended.contains(req.SessionID):
		reject = ErrCancelled
	}
	if reject != nil {
		s.counters.Rejected++
		v := domain.Failed(req.URL, reject)
		s.pending = append(s.pending, delivery{req: req, verdict: v})
		s.logger.Debug("request rejected", "id", req.ID, "url", req.URL, "reason", reject)
		return resolvedFuture(req, v)
	}

	t := &task{req: req, future: newFuture(req), state: stateQueued}
	t.elem = s.queue.PushBack(t)
	s.track(t)
	s.logger.Debug("request queued", "id", req.ID, "session", req.SessionID, "queued", s.queue.Len())

	s.dispatchLocked()
	return t.future
}

// SetConcurrency changes the occupancy limit. Raising it dispatches queued
// requests before returning; lowering it never preempts running ones.
func (s *Scheduler) SetConcurrency(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidConcurrency, n)
	}

	s.mu.Lock()
	defer s.unlock()

	if n != s.concurrency {
		s.logger.Info("concurrency changed", "old", s.concurrency, "new", n)
	}
	s.concurrency = n
	s.dispatchLocked()
	return nil
}

func (s *Scheduler) Concurrency() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.concurrency
}

// CancelSession drops queued requests of the session and tombstones the
// dispatched ones. Every affected request resolves with ErrCancelled now;
// tombstoned requests keep their slot until the model returns. It reports
// how many requests were cancelled.
func (s *Scheduler) CancelSession(id domain.SessionID) int {
	if id == "" {
		return 0
	}

	s.mu.Lock()
	defer s.unlock()

	s.ended.add(id)
	tasks := s.sessions[id]
	delete(s.sessions, id)

	n := 0
	for _, t := range tasks {
		switch t.state {
		case stateQueued:
			s.queue.Remove(t.elem)
			t.elem = nil
			t.state = stateDone
		case stateDispatched:
			t.state = stateTombstoned
			t.cancel()
		default:
			continue
		}
		n++
		s.counters.Cancelled++
		s.deliverLocked(t, domain.Failed(t.req.URL, ErrCancelled))
	}

	if n > 0 {
		s.logger.Info("session cancelled", "session", id, "requests", n)
	}
	return n
}

// Close rejects queued requests with ErrClosed, cancels the context of
// running ones and waits for them to return or ctx to end.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for e := s.queue.Front(); e != nil; e = e.Next() {
			t := e.Value.(*task)
			t.elem = nil
			t.state = stateDone
			s.untrack(t)
			s.counters.Rejected++
			s.deliverLocked(t, domain.Failed(t.req.URL, ErrClosed))
		}
		s.queue.Init()
	}
	s.unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatchLocked moves requests from the head of the queue into the model
// while there is free capacity.
func (s *Scheduler) dispatchLocked() {
	for s.running < s.concurrency && s.queue.Len() > 0 {
		t := s.queue.Remove(s.queue.Front()).(*task)
		t.elem = nil
		t.state = stateDispatched
		s.running++
		s.counters.Dispatched++

		var ctx context.Context
		ctx, t.cancel = context.WithCancel(s.ctx)
		if s.timeout > 0 {
			t.timer = time.AfterFunc(s.timeout, func() { s.expire(t) })
		}

		s.logger.Debug("request dispatched", "id", t.req.ID, "running", s.running, "concurrency", s.concurrency)

		s.wg.Add(1)
		go s.run(ctx, s.adapter, t)
	}
}

func (s *Scheduler) run(ctx context.Context, a Adapter, t *task) {
	defer s.wg.Done()

	v := a.Classify(ctx, t.req)

	s.mu.Lock()
	defer s.unlock()
	s.completeLocked(t, v)
}

func (s *Scheduler) completeLocked(t *task, v domain.Verdict) {
	t.cancel()
	if t.timer != nil {
		t.timer.Stop()
	}

	switch t.state {
	case stateDispatched:
		s.release()
		s.untrack(t)
		if v.Failed() {
			s.counters.Failed++
		} else {
			s.counters.Completed++
		}
		s.deliverLocked(t, v)
	case stateTombstoned:
		s.release()
		s.counters.Discarded++
		s.logger.Debug("discarded completion of cancelled request", "id", t.req.ID)
	case stateExpired:
		s.counters.Discarded++
		s.logger.Debug("discarded completion of expired request", "id", t.req.ID)
	default:
		panic(fmt.Sprintf("scheduler: completion for request %s in state %s", t.req.ID, t.state))
	}
	t.state = stateDone

	s.dispatchLocked()
}

func (s *Scheduler) expire(t *task) {
	s.mu.Lock()
	defer s.unlock()

	switch t.state {
	case stateDispatched:
		s.untrack(t)
		s.counters.Expired++
		s.deliverLocked(t, domain.Failed(t.req.URL, ErrTimeout))
		s.logger.Warn("classification timed out", "id", t.req.ID, "url", t.req.URL, "timeout", s.timeout)
	case stateTombstoned:
		// already resolved as cancelled
	default:
		return
	}

	t.state = stateExpired
	t.cancel()
	s.release()
	s.dispatchLocked()
}

func (s *Scheduler) release() {
	s.running--
	if s.running < 0 {
		panic("scheduler: occupancy below zero")
	}
}

func (s *Scheduler) deliverLocked(t *task, v domain.Verdict) {
	t.future.resolve(v)
	s.pending = append(s.pending, delivery{req: t.req, verdict: v})
}

// unlock releases the lock and then runs the observer calls collected while
// it was held.
func (s *Scheduler) unlock() {
	ds := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, d := range ds {
		for _, o := range s.observers {
			o.Observe(d.req, d.verdict)
		}
	}
}

func (s *Scheduler) track(t *task) {
	if id := t.req.SessionID; id != "" {
		s.sessions[id] = append(s.sessions[id], t)
	}
}

func (s *Scheduler) untrack(t *task) {
	id := t.req.SessionID
	if id == "" {
		return
	}
	tasks := s.sessions[id]
	for i, other := range tasks {
		if other == t {
			tasks = append(tasks[:i], tasks[i+1:]...)
			break
		}
	}
	if len(tasks) == 0 {
		delete(s.sessions, id)
	} else {
		s.sessions[id] = tasks
	}
}
