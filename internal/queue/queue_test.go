package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/drive-control/dcc/internal/adapter/fake"
	"github.com/drive-control/dcc/internal/ratelimit"
	"github.com/drive-control/dcc/internal/testutil"
)

// openLimiter never throttles.
type openLimiter struct{}

func (openLimiter) WaitForToken(ctx context.Context) error { return nil }

// gateLimiter blocks until released, so tests can hold the worker.
type gateLimiter struct {
	release chan struct{}
	once    sync.Once
}

func newGateLimiter() *gateLimiter {
	return &gateLimiter{release: make(chan struct{})}
}

func (g *gateLimiter) WaitForToken(ctx context.Context) error {
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gateLimiter) Release() {
	g.once.Do(func() { close(g.release) })
}

func TestNewRejectsNonPositiveMaxsize(t *testing.T) {
	if _, err := New(fake.NewActuator(), openLimiter{}, 0); err != ErrMaxsizeNotPositive {
		t.Fatalf("New with maxsize 0 error = %v, want %v", err, ErrMaxsizeNotPositive)
	}
}

func TestEnqueueReportsDepthAndRejectsWhenFull(t *testing.T) {
	q, err := New(fake.NewActuator(), openLimiter{}, 3)
	testutil.AssertNoError(t, err)

	// Worker not started: the first N enqueues succeed with depths 1..N,
	// the (N+1)-th fails fast.
	for i := 1; i <= 3; i++ {
		depth, err := q.EnqueueDrive(DriveCommand{LeftSpeed: 0.1})
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, depth, i)
	}
	if _, err := q.EnqueueDrive(DriveCommand{LeftSpeed: 0.1}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("enqueue past capacity error = %v, want %v", err, ErrQueueFull)
	}
}

func TestWorkerExecutesInSubmissionOrder(t *testing.T) {
	actuator := fake.NewActuator()
	q, err := New(actuator, openLimiter{}, 16)
	testutil.AssertNoError(t, err)

	commands := []DriveCommand{
		{LeftSpeed: 0.1, RightSpeed: 0.1},
		{LeftSpeed: 0.2, RightSpeed: -0.2},
		{LeftSpeed: -0.3, RightSpeed: 0.3},
		{LeftSpeed: 0.4, RightSpeed: 0.4},
	}
	for _, cmd := range commands {
		_, err := q.EnqueueDrive(cmd)
		testutil.AssertNoError(t, err)
	}

	q.Start()
	defer q.Stop()
	q.WaitUntilIdle()

	calls := actuator.Calls()
	testutil.AssertEqual(t, len(calls), len(commands))
	for i, cmd := range commands {
		if calls[i].Op != "drive" || calls[i].Left != cmd.LeftSpeed || calls[i].Right != cmd.RightSpeed {
			t.Fatalf("call %d = %+v, want drive(%v, %v)", i, calls[i], cmd.LeftSpeed, cmd.RightSpeed)
		}
	}
}

func TestDurationCommandStopsAfterSleep(t *testing.T) {
	actuator := fake.NewActuator()
	q, err := New(actuator, openLimiter{}, 4)
	testutil.AssertNoError(t, err)

	_, err = q.EnqueueDrive(DriveCommand{LeftSpeed: 0.4, RightSpeed: -0.2, Duration: 20 * time.Millisecond})
	testutil.AssertNoError(t, err)

	q.Start()
	defer q.Stop()
	q.WaitUntilIdle()

	calls := actuator.Calls()
	testutil.AssertEqual(t, len(calls), 2)
	if calls[0].Op != "drive" || calls[0].Left != 0.4 || calls[0].Right != -0.2 {
		t.Fatalf("first call = %+v, want drive(0.4, -0.2)", calls[0])
	}
	testutil.AssertEqual(t, calls[1].Op, "stop")
}

func TestClearDiscardsQueuedEntriesAndReleasesIdleWaiters(t *testing.T) {
	actuator := fake.NewActuator()
	q, err := New(actuator, openLimiter{}, 8)
	testutil.AssertNoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := q.EnqueueDrive(DriveCommand{LeftSpeed: 0.5})
		testutil.AssertNoError(t, err)
	}
	q.Clear()
	testutil.AssertEqual(t, q.Depth(), 0)

	done := make(chan struct{})
	go func() {
		q.WaitUntilIdle()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitUntilIdle did not return after Clear")
	}
	testutil.AssertEqual(t, len(actuator.Calls()), 0)
}

func TestSecondEnqueueFailsWhileFirstStillQueued(t *testing.T) {
	actuator := fake.NewActuator()
	gate := newGateLimiter()
	q, err := New(actuator, gate, 1)
	testutil.AssertNoError(t, err)

	depth, err := q.EnqueueDrive(DriveCommand{LeftSpeed: 0.2})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, depth, 1)

	if _, err := q.EnqueueDrive(DriveCommand{LeftSpeed: 0.3}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second enqueue error = %v, want %v", err, ErrQueueFull)
	}

	q.Start()
	defer q.Stop()
	gate.Release()
	q.WaitUntilIdle()
	testutil.AssertEqual(t, len(actuator.Calls()), 1)
}

func TestStopDrainsResidualEntries(t *testing.T) {
	actuator := fake.NewActuator()
	gate := newGateLimiter()
	q, err := New(actuator, gate, 8)
	testutil.AssertNoError(t, err)

	q.Start()
	for i := 0; i < 4; i++ {
		_, err := q.EnqueueDrive(DriveCommand{LeftSpeed: 0.1})
		testutil.AssertNoError(t, err)
	}

	// Worker is parked on the gated limiter; Stop must still drain and
	// release idle waiters without executing anything.
	q.Stop()

	done := make(chan struct{})
	go func() {
		q.WaitUntilIdle()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitUntilIdle did not return after Stop")
	}
	testutil.AssertEqual(t, len(actuator.Calls()), 0)
}

func TestStartIsIdempotentAndStopAllowsRestart(t *testing.T) {
	actuator := fake.NewActuator()
	q, err := New(actuator, openLimiter{}, 4)
	testutil.AssertNoError(t, err)

	q.Start()
	q.Start()
	q.Stop()
	q.Stop()

	q.Start()
	defer q.Stop()
	_, err = q.EnqueueDrive(DriveCommand{LeftSpeed: 0.7, RightSpeed: 0.7})
	testutil.AssertNoError(t, err)
	q.WaitUntilIdle()

	calls := actuator.Calls()
	testutil.AssertEqual(t, len(calls), 1)
	testutil.AssertEqual(t, calls[0].Op, "drive")
}

func TestSetMaxsizeAppliesToSubsequentEnqueues(t *testing.T) {
	q, err := New(fake.NewActuator(), openLimiter{}, 1)
	testutil.AssertNoError(t, err)

	if err := q.SetMaxsize(0); err != ErrMaxsizeNotPositive {
		t.Fatalf("SetMaxsize(0) error = %v, want %v", err, ErrMaxsizeNotPositive)
	}
	testutil.AssertNoError(t, q.SetMaxsize(2))

	_, err = q.EnqueueDrive(DriveCommand{})
	testutil.AssertNoError(t, err)
	_, err = q.EnqueueDrive(DriveCommand{})
	testutil.AssertNoError(t, err)
	if _, err := q.EnqueueDrive(DriveCommand{}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("enqueue past raised capacity error = %v, want %v", err, ErrQueueFull)
	}
}

func TestExecutionThrottleOrdering(t *testing.T) {
	// A real bucket with one immediate token: the second command must wait
	// for the refill but ordering is preserved.
	limiter, err := ratelimit.New(50.0, 1)
	testutil.AssertNoError(t, err)

	actuator := fake.NewActuator()
	q, err := New(actuator, limiter, 8)
	testutil.AssertNoError(t, err)

	_, err = q.EnqueueDrive(DriveCommand{LeftSpeed: 0.1})
	testutil.AssertNoError(t, err)
	_, err = q.EnqueueDrive(DriveCommand{LeftSpeed: 0.2})
	testutil.AssertNoError(t, err)

	q.Start()
	defer q.Stop()
	q.WaitUntilIdle()

	calls := actuator.Calls()
	testutil.AssertEqual(t, len(calls), 2)
	testutil.AssertEqual(t, calls[0].Left, 0.1)
	testutil.AssertEqual(t, calls[1].Left, 0.2)
}
