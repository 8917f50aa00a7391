// Package sim provides an in-memory drivetrain backend that records pin
// state instead of touching GPIO. It backs tests and bench runs on machines
// without the robot attached.
package sim

import (
	"math"
	"sync"

	"github.com/drive-control/dcc/internal/drivetrain"
)

// Backend records the simulated H-bridge pin state.
type Backend struct {
	mu        sync.Mutex
	levels    map[int]int
	duty      map[int]int
	frequency map[int]int
	closed    bool
}

var _ drivetrain.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{
		levels:    make(map[int]int),
		duty:      make(map[int]int),
		frequency: make(map[int]int),
	}
}

func (b *Backend) SetupMotor(m drivetrain.Motor, frequencyHz int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.levels[m.ForwardPin] = 0
	b.levels[m.ReversePin] = 0
	b.duty[m.PWMPin] = 0
	b.frequency[m.PWMPin] = frequencyHz
	return nil
}

func (b *Backend) CommandMotor(m drivetrain.Motor, value float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.duty[m.PWMPin] = int(math.Round(255 * math.Abs(value)))
	switch {
	case value > 0:
		b.levels[m.ForwardPin] = 1
		b.levels[m.ReversePin] = 0
	case value < 0:
		b.levels[m.ForwardPin] = 0
		b.levels[m.ReversePin] = 1
	default:
		b.levels[m.ForwardPin] = 0
		b.levels[m.ReversePin] = 0
	}
	return nil
}

func (b *Backend) BrakeMotor(m drivetrain.Motor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.duty[m.PWMPin] = 255
	b.levels[m.ForwardPin] = 1
	b.levels[m.ReversePin] = 1
	return nil
}

func (b *Backend) EstopMotor(m drivetrain.Motor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.duty[m.PWMPin] = 0
	b.levels[m.ForwardPin] = 0
	b.levels[m.ReversePin] = 0
	return nil
}

func (b *Backend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Duty returns the recorded PWM duty cycle (0-255) for a pin.
func (b *Backend) Duty(pin int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.duty[pin]
}

// Level returns the recorded digital level for a pin.
func (b *Backend) Level(pin int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levels[pin]
}

// Frequency returns the PWM frequency configured for a pin.
func (b *Backend) Frequency(pin int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frequency[pin]
}

// Closed reports whether Shutdown has been called.
func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
