// Package adapter defines the southbound hardware ports the control plane
// depends on. Concrete drivers (physical or simulated) are injected at
// startup; nothing in this repository constructs one implicitly.
package adapter

import (
	"context"
)

// Actuator is the stable southbound contract for the drivetrain.
//
// EmergencyStop latches the driver in a safe state: subsequent Drive, Stop
// and Brake calls are ignored until ResetEstop releases the latch.
type Actuator interface {
	// Drive commands the left and right motors with speeds in [-1, 1].
	Drive(leftSpeed, rightSpeed float64)

	// Stop coasts both motors by dropping drive output.
	Stop()

	// Brake shorts both motors for rapid deceleration.
	Brake()

	// EmergencyStop cuts all outputs and latches the driver.
	EmergencyStop()

	// ResetEstop releases the emergency-stop latch.
	ResetEstop()
}

// Servo is the pan/tilt head contract.
type Servo interface {
	// MoveTo positions the head, clamping to mechanical limits.
	MoveTo(panDeg, tiltDeg float64)

	// Pan returns the current pan position in degrees.
	Pan() float64

	// Tilt returns the current tilt position in degrees.
	Tilt() float64
}

// UltrasonicReading is the telemetry for a single distance measurement.
type UltrasonicReading struct {
	DistanceM float64 `json:"distance_m"`
	Valid     bool    `json:"valid"`
}

// UltrasonicSource reads distance measurements and keeps a bounded history
// of readings that passed the source's validity filter.
type UltrasonicSource interface {
	Read(ctx context.Context) (UltrasonicReading, error)
	History() []UltrasonicReading
}

// LineTelemetry is the normalized reading from the pair of line sensors.
type LineTelemetry struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	OnLine bool    `json:"on_line"`
}

// LineSource reads the reflectance sensor pair.
type LineSource interface {
	Read(ctx context.Context) (LineTelemetry, error)
}

// EncoderTelemetry is the filtered output of the wheel encoder pair.
// Velocities are zero and Valid is false until two samples far enough
// apart have been observed.
type EncoderTelemetry struct {
	CumulativeTicksLeft  int     `json:"cumulative_ticks_left"`
	CumulativeTicksRight int     `json:"cumulative_ticks_right"`
	AngularVelocityLeft  float64 `json:"angular_velocity_left"`
	AngularVelocityRight float64 `json:"angular_velocity_right"`
	LinearVelocityLeft   float64 `json:"linear_velocity_left"`
	LinearVelocityRight  float64 `json:"linear_velocity_right"`
	Valid                bool    `json:"valid"`
}

// EncoderSource reads the wheel encoder pair.
type EncoderSource interface {
	Read(ctx context.Context) (EncoderTelemetry, error)
}
