package sensors

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/drive-control/dcc/internal/adapter"
)

// AnalogReader samples one reflectance sensor, returning a raw value.
type AnalogReader func(ctx context.Context) (float64, error)

var (
	ErrEMAAlpha   = errors.New("ema alpha must be in (0, 1]")
	ErrThresholds = errors.New("inactive threshold must not exceed active threshold")
)

const (
	defaultEMAAlpha          = 0.5
	defaultActiveThreshold   = 0.6
	defaultInactiveThreshold = 0.4
)

// Bounds is the raw min/max calibration range of one reflectance sensor.
type Bounds struct {
	Low  float64
	High float64
}

func (b Bounds) normalize(value float64) float64 {
	if b.High <= b.Low {
		return 0
	}
	n := (value - b.Low) / (b.High - b.Low)
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

// LineFollower normalizes the reflectance pair, smooths it with an
// exponential moving average and derives on-line state with hysteresis:
// the line is acquired when either channel rises above the active
// threshold and lost only when both fall below the inactive threshold.
type LineFollower struct {
	leftReader  AnalogReader
	rightReader AnalogReader

	mu                sync.Mutex
	emaAlpha          float64
	activeThreshold   float64
	inactiveThreshold float64
	calLeft           Bounds
	calRight          Bounds
	emaLeft           float64
	emaRight          float64
	seeded            bool
	onLine            bool
}

var _ adapter.LineSource = (*LineFollower)(nil)

// NewLineFollower creates a follower with stock smoothing and hysteresis.
func NewLineFollower(left, right AnalogReader) *LineFollower {
	return &LineFollower{
		leftReader:        left,
		rightReader:       right,
		emaAlpha:          defaultEMAAlpha,
		activeThreshold:   defaultActiveThreshold,
		inactiveThreshold: defaultInactiveThreshold,
		calLeft:           Bounds{0, 1},
		calRight:          Bounds{0, 1},
	}
}

// Configure replaces the smoothing factor and hysteresis thresholds.
func (f *LineFollower) Configure(emaAlpha, activeThreshold, inactiveThreshold float64) error {
	if emaAlpha <= 0 || emaAlpha > 1 {
		return ErrEMAAlpha
	}
	if inactiveThreshold > activeThreshold {
		return ErrThresholds
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emaAlpha = emaAlpha
	f.activeThreshold = activeThreshold
	f.inactiveThreshold = inactiveThreshold
	return nil
}

// Calibrate updates the raw min/max bounds used for normalization.
func (f *LineFollower) Calibrate(left, right Bounds) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calLeft = left
	f.calRight = right
}

// Read samples both sensors and returns the filtered telemetry.
func (f *LineFollower) Read(ctx context.Context) (adapter.LineTelemetry, error) {
	rawLeft, err := f.leftReader(ctx)
	if err != nil {
		return adapter.LineTelemetry{}, fmt.Errorf("failed to read left sensor: %w", err)
	}
	rawRight, err := f.rightReader(ctx)
	if err != nil {
		return adapter.LineTelemetry{}, fmt.Errorf("failed to read right sensor: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	left := f.calLeft.normalize(rawLeft)
	right := f.calRight.normalize(rawRight)
	if f.seeded {
		left = f.emaAlpha*left + (1-f.emaAlpha)*f.emaLeft
		right = f.emaAlpha*right + (1-f.emaAlpha)*f.emaRight
	}
	f.emaLeft, f.emaRight = left, right
	f.seeded = true

	if !f.onLine {
		if left >= f.activeThreshold || right >= f.activeThreshold {
			f.onLine = true
		}
	} else if left < f.inactiveThreshold && right < f.inactiveThreshold {
		f.onLine = false
	}

	return adapter.LineTelemetry{Left: left, Right: right, OnLine: f.onLine}, nil
}
