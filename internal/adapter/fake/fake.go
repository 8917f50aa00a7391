// Package fake provides scripted adapter implementations for testing.
package fake

import (
	"context"
	"sync"

	"github.com/drive-control/dcc/internal/adapter"
)

// Call records a single actuator invocation in submission order.
type Call struct {
	Op    string // "drive", "stop", "brake", "estop", "reset"
	Left  float64
	Right float64
}

// Actuator implements adapter.Actuator and records every call, including the
// estop latch behavior of the real drivetrain.
type Actuator struct {
	mu      sync.Mutex
	calls   []Call
	latched bool
}

// NewActuator creates a recording fake actuator.
func NewActuator() *Actuator {
	return &Actuator{}
}

func (a *Actuator) Drive(left, right float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.latched {
		return
	}
	a.calls = append(a.calls, Call{Op: "drive", Left: left, Right: right})
}

func (a *Actuator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.latched {
		return
	}
	a.calls = append(a.calls, Call{Op: "stop"})
}

func (a *Actuator) Brake() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.latched {
		return
	}
	a.calls = append(a.calls, Call{Op: "brake"})
}

func (a *Actuator) EmergencyStop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, Call{Op: "estop"})
	a.latched = true
}

func (a *Actuator) ResetEstop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, Call{Op: "reset"})
	a.latched = false
}

// Calls returns a copy of the recorded calls in invocation order.
func (a *Actuator) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Call, len(a.calls))
	copy(out, a.calls)
	return out
}

// Latched reports whether the estop latch is set.
func (a *Actuator) Latched() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latched
}

// Servo implements adapter.Servo with plain position tracking.
type Servo struct {
	mu        sync.Mutex
	pan, tilt float64
}

// NewServo creates a fake pan/tilt servo at the neutral position.
func NewServo() *Servo {
	return &Servo{}
}

func (s *Servo) MoveTo(pan, tilt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pan = pan
	s.tilt = tilt
}

func (s *Servo) Pan() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pan
}

func (s *Servo) Tilt() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tilt
}

// Ultrasonic implements adapter.UltrasonicSource with a fixed reading and
// canned history.
type Ultrasonic struct {
	Reading     adapter.UltrasonicReading
	HistoryList []adapter.UltrasonicReading
	Err         error
}

func (u *Ultrasonic) Read(ctx context.Context) (adapter.UltrasonicReading, error) {
	if u.Err != nil {
		return adapter.UltrasonicReading{}, u.Err
	}
	return u.Reading, nil
}

func (u *Ultrasonic) History() []adapter.UltrasonicReading {
	return u.HistoryList
}

// Line implements adapter.LineSource with a fixed reading.
type Line struct {
	Reading adapter.LineTelemetry
	Err     error
}

func (l *Line) Read(ctx context.Context) (adapter.LineTelemetry, error) {
	if l.Err != nil {
		return adapter.LineTelemetry{}, l.Err
	}
	return l.Reading, nil
}

// Encoders implements adapter.EncoderSource with a fixed telemetry frame.
type Encoders struct {
	Telemetry adapter.EncoderTelemetry
	Err       error
}

func (e *Encoders) Read(ctx context.Context) (adapter.EncoderTelemetry, error) {
	if e.Err != nil {
		return adapter.EncoderTelemetry{}, e.Err
	}
	return e.Telemetry, nil
}

var (
	_ adapter.Actuator         = (*Actuator)(nil)
	_ adapter.Servo            = (*Servo)(nil)
	_ adapter.UltrasonicSource = (*Ultrasonic)(nil)
	_ adapter.LineSource       = (*Line)(nil)
	_ adapter.EncoderSource    = (*Encoders)(nil)
)
