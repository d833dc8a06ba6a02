// Package actor implements the single-consumer mailbox primitive that every
// component of the orchestration core (Manager, Supervisor, Guard, Classifier,
// Router, Agent) is built on: one goroutine drains a FIFO queue of closures,
// processing each to completion before taking the next. There are no locks
// inside a mailbox's owner state — all access is serialized by construction.
package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrStopped is returned by Ask/Tell when the mailbox has already been stopped.
var ErrStopped = errors.New("actor: mailbox stopped")

// job is a unit of work queued into a Mailbox. done, if non-nil, is closed
// after the job's closure returns, regardless of outcome.
type job struct {
	run  func(ctx context.Context)
	done chan struct{}
}

// Mailbox is a single-consumer FIFO closure queue. Create one per actor-style
// component with New, call Start once to begin draining it, and Stop to drain
// in-flight work and shut the consumer goroutine down.
type Mailbox struct {
	name string
	log  *slog.Logger

	queue chan job

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	stopped   chan struct{}
	wg        sync.WaitGroup

	mu      sync.RWMutex
	running bool
}

// New creates a Mailbox with the given name (used in log lines) and queue
// depth. A depth of 0 makes Tell block until the consumer is free; component
// owners typically pick a small positive depth (e.g. 32) to absorb bursts.
func New(name string, depth int) *Mailbox {
	if depth < 0 {
		depth = 0
	}
	return &Mailbox{
		name:    name,
		log:     slog.With("component", name),
		queue:   make(chan job, depth),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start spawns the consumer goroutine. Calling Start more than once is a
// no-op — mirrors the teacher's idempotent WorkerPool.Start.
func (m *Mailbox) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.mu.Lock()
		m.running = true
		m.mu.Unlock()

		m.wg.Add(1)
		go m.run(ctx)
	})
}

// Stop signals the consumer to drain its queue and exit, then waits for it.
// Safe to call multiple times and safe to call without a prior Start.
func (m *Mailbox) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}

func (m *Mailbox) run(ctx context.Context) {
	defer m.wg.Done()
	defer close(m.stopped)
	m.log.Debug("mailbox started")

	for {
		select {
		case <-m.stopCh:
			m.drainAndExit(ctx)
			return
		case <-ctx.Done():
			m.drainAndExit(ctx)
			return
		case j := <-m.queue:
			m.exec(ctx, j)
		}
	}
}

// drainAndExit finishes any jobs already sitting in the channel buffer before
// the consumer exits, so a Tell/Ask issued just before Stop isn't silently
// dropped — it still runs, but Stop itself does not block on jobs submitted
// concurrently with or after it.
func (m *Mailbox) drainAndExit(ctx context.Context) {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	for {
		select {
		case j := <-m.queue:
			m.exec(ctx, j)
		default:
			m.log.Debug("mailbox stopped")
			return
		}
	}
}

func (m *Mailbox) exec(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("mailbox job panicked", "recover", r)
		}
		if j.done != nil {
			close(j.done)
		}
	}()
	j.run(ctx)
}

func (m *Mailbox) isRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Tell enqueues fn without waiting for it to run (fire-and-forget). Returns
// ErrStopped if the mailbox is not running.
func (m *Mailbox) Tell(fn func(ctx context.Context)) error {
	if !m.isRunning() {
		return ErrStopped
	}
	select {
	case m.queue <- job{run: fn}:
		return nil
	case <-m.stopCh:
		return ErrStopped
	}
}

// Ask enqueues fn and blocks until it has run to completion, returning
// whatever fn returned through the closure capture. Callers typically close
// over a local result variable:
//
//	var reply Classification
//	err := mb.Ask(ctx, func(ctx context.Context) { reply = classify(ctx, req) })
func (m *Mailbox) Ask(ctx context.Context, fn func(ctx context.Context)) error {
	if !m.isRunning() {
		return ErrStopped
	}
	done := make(chan struct{})
	select {
	case m.queue <- job{run: fn, done: done}:
	case <-m.stopCh:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("actor: enqueue to %s: %w", m.name, ctx.Err())
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("actor: await %s: %w", m.name, ctx.Err())
	}
}

// QueueDepth reports the number of jobs currently buffered, for the
// morgana_mailbox_queue_depth gauge.
func (m *Mailbox) QueueDepth() int {
	return len(m.queue)
}
