// Package sensors turns raw hardware samples into filtered telemetry:
// ultrasonic ranging with spike rejection, line reflectance with smoothing
// and hysteresis, and wheel encoder velocity estimation.
package sensors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/drive-control/dcc/internal/adapter"
)

// EchoTimeReader measures one ultrasonic echo round trip in seconds.
type EchoTimeReader func(ctx context.Context) (float64, error)

var ErrMedianWindow = errors.New("median window must be at least 1")

const (
	defaultSpeedOfSound = 343.0
	defaultMedianWindow = 3
	defaultMaxDeviation = 0.2
	defaultHistorySize  = 5
)

// Ranger converts echo round-trip times into distances. A reading is valid
// when it stays within maxDeviation of the median of the recent raw samples;
// only valid readings enter the history.
type Ranger struct {
	reader EchoTimeReader

	mu           sync.Mutex
	speedOfSound float64
	offset       float64
	medianWindow int
	maxDeviation float64
	samples      []float64
	history      []adapter.UltrasonicReading
	historySize  int
}

var _ adapter.UltrasonicSource = (*Ranger)(nil)

// NewRanger creates a ranger with the stock HC-SR04 filter settings.
func NewRanger(reader EchoTimeReader) *Ranger {
	r, _ := NewRangerWithFilter(reader, defaultMedianWindow, defaultMaxDeviation, defaultHistorySize)
	return r
}

// NewRangerWithFilter creates a ranger with custom filter settings.
func NewRangerWithFilter(reader EchoTimeReader, medianWindow int, maxDeviation float64, historySize int) (*Ranger, error) {
	if medianWindow < 1 {
		return nil, ErrMedianWindow
	}
	return &Ranger{
		reader:       reader,
		speedOfSound: defaultSpeedOfSound,
		medianWindow: medianWindow,
		maxDeviation: maxDeviation,
		historySize:  historySize,
	}, nil
}

// Calibrate adjusts the coefficients used for distance conversion.
func (r *Ranger) Calibrate(speedOfSound, offset float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speedOfSound = speedOfSound
	r.offset = offset
}

// Read triggers a measurement and returns the filtered distance.
func (r *Ranger) Read(ctx context.Context) (adapter.UltrasonicReading, error) {
	echoSeconds, err := r.reader(ctx)
	if err != nil {
		return adapter.UltrasonicReading{}, fmt.Errorf("failed to read echo time: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	raw := r.offset + echoSeconds*r.speedOfSound/2
	r.samples = append(r.samples, raw)
	if len(r.samples) > r.medianWindow {
		r.samples = r.samples[len(r.samples)-r.medianWindow:]
	}

	reading := adapter.UltrasonicReading{DistanceM: raw, Valid: r.withinDeviation(raw)}
	if reading.Valid {
		r.history = append(r.history, reading)
		if len(r.history) > r.historySize {
			r.history = r.history[len(r.history)-r.historySize:]
		}
	}
	return reading, nil
}

// History returns the recent valid readings, oldest first.
func (r *Ranger) History() []adapter.UltrasonicReading {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]adapter.UltrasonicReading, len(r.history))
	copy(out, r.history)
	return out
}

func (r *Ranger) withinDeviation(raw float64) bool {
	if len(r.samples) < r.medianWindow {
		return true
	}
	med := median(r.samples)
	if med == 0 {
		return true
	}
	return math.Abs(raw-med)/med <= r.maxDeviation
}

func median(samples []float64) float64 {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
