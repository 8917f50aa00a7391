// Package queue implements the bounded single-consumer command queue that
// serializes drive commands into one execution stream.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/drive-control/dcc/internal/adapter"
)

// ErrQueueFull is returned by EnqueueDrive when the queue is at capacity.
var ErrQueueFull = errors.New("drive command queue is full")

// ErrMaxsizeNotPositive is returned by SetMaxsize for non-positive values.
var ErrMaxsizeNotPositive = errors.New("maxsize must be positive")

// DriveCommand is an immutable differential-drive request. A zero Duration
// means the command has no timed stop.
type DriveCommand struct {
	LeftSpeed  float64
	RightSpeed float64
	Duration   time.Duration
}

// entryKind tags queue entries so the union can grow without disturbing
// ordering semantics.
type entryKind int

const (
	kindDrive entryKind = iota
)

type entry struct {
	kind  entryKind
	drive DriveCommand
}

// Limiter is the execution-throttle contract the worker blocks on before
// each command.
type Limiter interface {
	WaitForToken(ctx context.Context) error
}

// Observer receives a callback after each executed command. Implementations
// must be safe for concurrent use.
type Observer interface {
	CommandExecuted()
}

// CommandQueue owns FIFO ordering and backpressure for drive commands.
// Exactly one background worker consumes entries; Clear discards queued
// entries but never interrupts a command whose execution (including its
// duration sleep and trailing stop) has already begun.
type CommandQueue struct {
	actuator adapter.Actuator
	limiter  Limiter
	observer Observer

	mu      sync.Mutex
	idle    *sync.Cond
	entries []entry
	maxsize int
	pending int // entries enqueued but not yet marked done

	wake   chan struct{}
	cancel context.CancelFunc
	exited chan struct{}
}

// New creates a stopped queue. maxsize must be positive.
func New(actuator adapter.Actuator, limiter Limiter, maxsize int) (*CommandQueue, error) {
	if maxsize <= 0 {
		return nil, ErrMaxsizeNotPositive
	}
	q := &CommandQueue{
		actuator: actuator,
		limiter:  limiter,
		maxsize:  maxsize,
		wake:     make(chan struct{}, 1),
	}
	q.idle = sync.NewCond(&q.mu)
	return q, nil
}

// SetObserver installs an execution observer. Call before Start.
func (q *CommandQueue) SetObserver(o Observer) {
	q.observer = o
}

// Start launches the worker. It is a no-op if a worker is already running.
func (q *CommandQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.exited != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.exited = make(chan struct{})
	go q.run(ctx, q.exited)
}

// Stop signals shutdown and blocks until the worker has exited. Residual
// entries are drained and marked done without execution, so WaitUntilIdle
// callers are released. The queue may be restarted afterward.
func (q *CommandQueue) Stop() {
	q.mu.Lock()
	if q.exited == nil {
		q.mu.Unlock()
		return
	}
	cancel, exited := q.cancel, q.exited
	q.cancel, q.exited = nil, nil
	q.mu.Unlock()

	cancel()
	<-exited
}

// EnqueueDrive appends a drive command and returns the resulting queue
// depth. It fails fast with ErrQueueFull when the queue is at capacity.
func (q *CommandQueue) EnqueueDrive(cmd DriveCommand) (int, error) {
	q.mu.Lock()
	if len(q.entries) >= q.maxsize {
		q.mu.Unlock()
		return 0, ErrQueueFull
	}
	q.entries = append(q.entries, entry{kind: kindDrive, drive: cmd})
	q.pending++
	depth := len(q.entries)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return depth, nil
}

// Clear discards all queued-but-unstarted entries without executing them.
func (q *CommandQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.discardLocked()
}

// WaitUntilIdle blocks until every enqueued entry has been marked done.
func (q *CommandQueue) WaitUntilIdle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pending > 0 {
		q.idle.Wait()
	}
}

// SetMaxsize replaces the capacity bound for subsequent enqueues.
func (q *CommandQueue) SetMaxsize(maxsize int) error {
	if maxsize <= 0 {
		return ErrMaxsizeNotPositive
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxsize = maxsize
	return nil
}

// Depth returns the number of queued-but-unstarted entries.
func (q *CommandQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// run is the single consumer loop.
func (q *CommandQueue) run(ctx context.Context, exited chan struct{}) {
	defer close(exited)
	defer func() {
		// Drain whatever is still queued so idle waiters are released.
		q.mu.Lock()
		q.discardLocked()
		q.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		e, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}
		q.execute(ctx, e)
		q.markDone()
	}
}

// execute runs one entry. Failures never abort the worker loop; the caller
// marks the entry done regardless of outcome.
func (q *CommandQueue) execute(ctx context.Context, e entry) {
	if e.kind != kindDrive {
		return
	}
	if err := q.limiter.WaitForToken(ctx); err != nil {
		// Shutdown raced the throttle wait; the entry is skipped.
		return
	}
	q.actuator.Drive(e.drive.LeftSpeed, e.drive.RightSpeed)
	if e.drive.Duration > 0 {
		// An in-flight timed drive runs to completion; neither Clear nor
		// Stop interrupts the sleep or the trailing stop.
		time.Sleep(e.drive.Duration)
		q.actuator.Stop()
	}
	if q.observer != nil {
		q.observer.CommandExecuted()
	}
}

func (q *CommandQueue) pop() (entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return entry{}, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, true
}

func (q *CommandQueue) markDone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending--
	if q.pending <= 0 {
		q.pending = 0
		q.idle.Broadcast()
	}
}

// discardLocked drops all queued entries and marks them done. Caller must
// hold q.mu.
func (q *CommandQueue) discardLocked() {
	q.pending -= len(q.entries)
	q.entries = nil
	if q.pending <= 0 {
		q.pending = 0
		q.idle.Broadcast()
	}
}
