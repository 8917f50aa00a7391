// Package drivetrain commands a dual-motor differential drive through an
// injected GPIO backend. It compensates requested speeds with per-motor
// trim and calibration curves before handing them to the backend.
package drivetrain

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/drive-control/dcc/internal/adapter"
)

var (
	ErrNoMotors      = errors.New("drivetrain config must define left and right motors")
	ErrBadCurvePoint = errors.New("speed curve points must contain exactly two values")
)

// Motor is the static wiring of one motor channel.
type Motor struct {
	Name       string
	PWMPin     int
	ForwardPin int
	ReversePin int
}

// Backend is the low-level GPIO surface the controller drives. Implementations
// exist for real hardware daemons and for simulation.
type Backend interface {
	SetupMotor(m Motor, frequencyHz int) error
	CommandMotor(m Motor, value float64) error
	BrakeMotor(m Motor) error
	EstopMotor(m Motor) error
	Shutdown() error
}

type curvePoint struct {
	in  float64
	out float64
}

type motorChannel struct {
	motor Motor
	trim  float64
	curve []curvePoint
}

// Controller is a differential-drive actuator. EmergencyStop latches it:
// Drive, Stop and Brake are ignored until ResetEstop releases the latch.
type Controller struct {
	mu      sync.Mutex
	backend Backend
	left    motorChannel
	right   motorChannel
	estop   bool
	logger  *slog.Logger
}

var _ adapter.Actuator = (*Controller)(nil)

// New builds a controller from cfg and prepares both motor channels on the
// backend.
func New(cfg Config, backend Backend) (*Controller, error) {
	frequency := cfg.PWMFrequency
	if frequency == 0 {
		frequency = defaultPWMFrequency
	}

	left, err := buildChannel("left", cfg.Motors)
	if err != nil {
		return nil, err
	}
	right, err := buildChannel("right", cfg.Motors)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		backend: backend,
		left:    left,
		right:   right,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, ch := range []motorChannel{c.left, c.right} {
		if err := backend.SetupMotor(ch.motor, frequency); err != nil {
			return nil, fmt.Errorf("failed to setup motor %s: %w", ch.motor.Name, err)
		}
	}
	return c, nil
}

// SetLogger attaches a structured logger for backend failures.
func (c *Controller) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

// Drive commands both motors with speeds in [-1, 1]. Requests are trimmed,
// curve-compensated and saturated before reaching the backend.
func (c *Controller) Drive(leftSpeed, rightSpeed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.estop {
		return
	}
	c.commandMotor(c.left, leftSpeed)
	c.commandMotor(c.right, rightSpeed)
}

// Stop coasts both motors by dropping PWM to zero.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.estop {
		return
	}
	c.commandMotor(c.left, 0)
	c.commandMotor(c.right, 0)
}

// Brake shorts both motors for rapid deceleration.
func (c *Controller) Brake() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.estop {
		return
	}
	for _, ch := range []motorChannel{c.left, c.right} {
		if err := c.backend.BrakeMotor(ch.motor); err != nil {
			c.logger.Warn("brake command failed", "motor", ch.motor.Name, "error", err)
		}
	}
}

// EmergencyStop cuts all outputs and latches the controller.
func (c *Controller) EmergencyStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range []motorChannel{c.left, c.right} {
		if err := c.backend.EstopMotor(ch.motor); err != nil {
			c.logger.Warn("estop command failed", "motor", ch.motor.Name, "error", err)
		}
	}
	c.estop = true
}

// ResetEstop releases the emergency stop latch.
func (c *Controller) ResetEstop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.estop = false
}

// Latched reports whether the emergency stop latch is engaged.
func (c *Controller) Latched() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.estop
}

// Close releases backend resources.
func (c *Controller) Close() error {
	return c.backend.Shutdown()
}

func (c *Controller) commandMotor(ch motorChannel, request float64) {
	value := clamp(interpolate(ch.curve, clamp(request+ch.trim)))
	if err := c.backend.CommandMotor(ch.motor, value); err != nil {
		c.logger.Warn("motor command failed", "motor", ch.motor.Name, "error", err)
	}
}

func buildChannel(name string, motors map[string]MotorConfig) (motorChannel, error) {
	mc, ok := motors[name]
	if !ok {
		return motorChannel{}, ErrNoMotors
	}
	curve, err := ensureCurve(mc.SpeedCurve)
	if err != nil {
		return motorChannel{}, fmt.Errorf("motor %s: %w", name, err)
	}
	return motorChannel{
		motor: Motor{
			Name:       name,
			PWMPin:     mc.PWMPin,
			ForwardPin: mc.ForwardPin,
			ReversePin: mc.ReversePin,
		},
		trim:  mc.Trim,
		curve: curve,
	}, nil
}

// ensureCurve normalizes calibration points: sorted by input, anchored at
// (0,0) and (1,1) so interpolation always has endpoints.
func ensureCurve(points [][]float64) ([]curvePoint, error) {
	curve := make([]curvePoint, 0, len(points)+2)
	for _, p := range points {
		if len(p) != 2 {
			return nil, ErrBadCurvePoint
		}
		curve = append(curve, curvePoint{in: p[0], out: p[1]})
	}
	sort.Slice(curve, func(i, j int) bool { return curve[i].in < curve[j].in })
	if len(curve) == 0 {
		return []curvePoint{{0, 0}, {1, 1}}, nil
	}
	if curve[0].in > 0 {
		curve = append([]curvePoint{{0, 0}}, curve...)
	}
	if curve[len(curve)-1].in < 1 {
		curve = append(curve, curvePoint{1, 1})
	}
	return curve, nil
}

// interpolate maps a signed speed through the calibration curve, preserving
// the sign and interpolating linearly between the surrounding points.
func interpolate(curve []curvePoint, value float64) float64 {
	magnitude := value
	sign := 1.0
	if value < 0 {
		magnitude = -value
		sign = -1.0
	}

	if magnitude <= curve[0].in {
		return sign * curve[0].out
	}
	for i := 1; i < len(curve); i++ {
		p0, p1 := curve[i-1], curve[i]
		if magnitude <= p1.in || i == len(curve)-1 {
			if p1.in == p0.in {
				return sign * p1.out
			}
			position := (magnitude - p0.in) / (p1.in - p0.in)
			return sign * (p0.out + position*(p1.out-p0.out))
		}
	}
	return sign * curve[len(curve)-1].out
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
