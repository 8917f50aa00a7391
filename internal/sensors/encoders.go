package sensors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/drive-control/dcc/internal/adapter"
)

// EncoderSample is one raw observation of the cumulative tick counters.
type EncoderSample struct {
	TicksLeft  int
	TicksRight int
	At         time.Time
}

// SampleReader reads the current cumulative encoder tick counts.
type SampleReader func(ctx context.Context) (EncoderSample, error)

var (
	ErrTicksPerRevolution = errors.New("ticks per revolution must be positive")
	ErrWheelRadius        = errors.New("wheel radius must be positive")
	ErrMinInterval        = errors.New("minimum sample interval must be positive")
)

const (
	defaultTicksPerRevolution = 20
	defaultWheelRadiusM       = 0.03
	defaultMinInterval        = 5 * time.Millisecond
)

// WheelEncoders derives wheel velocities from cumulative hall-effect tick
// counts. Samples closer together than the minimum interval are rejected as
// invalid so jitter cannot produce velocity spikes.
type WheelEncoders struct {
	reader SampleReader

	mu                 sync.Mutex
	ticksPerRevolution int
	wheelRadius        float64
	minInterval        time.Duration
	last               *EncoderSample
}

var _ adapter.EncoderSource = (*WheelEncoders)(nil)

// NewWheelEncoders creates an encoder reader with the stock wheel geometry.
func NewWheelEncoders(reader SampleReader) *WheelEncoders {
	return &WheelEncoders{
		reader:             reader,
		ticksPerRevolution: defaultTicksPerRevolution,
		wheelRadius:        defaultWheelRadiusM,
		minInterval:        defaultMinInterval,
	}
}

// Calibrate updates the conversion constants.
func (w *WheelEncoders) Calibrate(ticksPerRevolution int, wheelRadius float64) error {
	if ticksPerRevolution <= 0 {
		return ErrTicksPerRevolution
	}
	if wheelRadius <= 0 {
		return ErrWheelRadius
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ticksPerRevolution = ticksPerRevolution
	w.wheelRadius = wheelRadius
	return nil
}

// Read samples the counters and returns the filtered telemetry.
func (w *WheelEncoders) Read(ctx context.Context) (adapter.EncoderTelemetry, error) {
	sample, err := w.reader(ctx)
	if err != nil {
		return adapter.EncoderTelemetry{}, fmt.Errorf("failed to read encoder sample: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.last == nil {
		w.last = &sample
		return adapter.EncoderTelemetry{
			CumulativeTicksLeft:  sample.TicksLeft,
			CumulativeTicksRight: sample.TicksRight,
		}, nil
	}

	deltaT := sample.At.Sub(w.last.At)
	if deltaT < w.minInterval {
		return adapter.EncoderTelemetry{
			CumulativeTicksLeft:  w.last.TicksLeft,
			CumulativeTicksRight: w.last.TicksRight,
		}, nil
	}

	angularLeft := w.angularVelocity(sample.TicksLeft-w.last.TicksLeft, deltaT)
	angularRight := w.angularVelocity(sample.TicksRight-w.last.TicksRight, deltaT)
	w.last = &sample

	return adapter.EncoderTelemetry{
		CumulativeTicksLeft:  sample.TicksLeft,
		CumulativeTicksRight: sample.TicksRight,
		AngularVelocityLeft:  angularLeft,
		AngularVelocityRight: angularRight,
		LinearVelocityLeft:   angularLeft * w.wheelRadius,
		LinearVelocityRight:  angularRight * w.wheelRadius,
		Valid:                true,
	}, nil
}

func (w *WheelEncoders) angularVelocity(deltaTicks int, deltaT time.Duration) float64 {
	revolutions := float64(deltaTicks) / float64(w.ticksPerRevolution)
	return revolutions * 2 * math.Pi / deltaT.Seconds()
}
