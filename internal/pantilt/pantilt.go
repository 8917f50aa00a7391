// Package pantilt tracks camera mount servo positions and enforces the
// mechanical travel limits of the mount.
package pantilt

import (
	"sync"

	"github.com/drive-control/dcc/internal/adapter"
)

// Limits is the travel range of one axis in degrees.
type Limits struct {
	Lower float64
	Upper float64
}

func (l Limits) clamp(value float64) float64 {
	if value < l.Lower {
		return l.Lower
	}
	if value > l.Upper {
		return l.Upper
	}
	return value
}

// Servos positions the pan/tilt mount. Requests beyond the mechanical
// limits are clamped, not rejected.
type Servos struct {
	mu         sync.Mutex
	pan        float64
	tilt       float64
	panLimits  Limits
	tiltLimits Limits
}

var _ adapter.Servo = (*Servos)(nil)

// New creates a servo tracker with the stock mount limits.
func New() *Servos {
	return NewWithLimits(Limits{-90, 90}, Limits{-45, 45})
}

// NewWithLimits creates a servo tracker with custom travel limits.
func NewWithLimits(pan, tilt Limits) *Servos {
	return &Servos{panLimits: pan, tiltLimits: tilt}
}

// MoveTo positions both axes, clamping each to its travel range.
func (s *Servos) MoveTo(pan, tilt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pan = s.panLimits.clamp(pan)
	s.tilt = s.tiltLimits.clamp(tilt)
}

// Center returns both axes to zero.
func (s *Servos) Center() {
	s.MoveTo(0, 0)
}

func (s *Servos) Pan() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pan
}

func (s *Servos) Tilt() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tilt
}

func (s *Servos) PanLimits() Limits {
	return s.panLimits
}

func (s *Servos) TiltLimits() Limits {
	return s.tiltLimits
}
