package drivetrain_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/drive-control/dcc/internal/drivetrain"
	"github.com/drive-control/dcc/internal/drivetrain/sim"
	"github.com/drive-control/dcc/internal/testutil"
)

func tunedConfig() drivetrain.Config {
	return drivetrain.Config{
		PWMFrequency: 1000,
		Motors: map[string]drivetrain.MotorConfig{
			"left": {
				PWMPin:     18,
				ForwardPin: 4,
				ReversePin: 17,
				Trim:       0.1,
				SpeedCurve: [][]float64{{0, 0}, {0.5, 0.45}, {1, 1}},
			},
			"right": {
				PWMPin:     19,
				ForwardPin: 27,
				ReversePin: 22,
				Trim:       -0.05,
			},
		},
	}
}

func newController(t *testing.T) (*drivetrain.Controller, *sim.Backend) {
	t.Helper()
	backend := sim.New()
	c, err := drivetrain.New(tunedConfig(), backend)
	testutil.AssertNoError(t, err)
	return c, backend
}

func TestNewConfiguresBothMotors(t *testing.T) {
	_, backend := newController(t)

	testutil.AssertEqual(t, backend.Frequency(18), 1000)
	testutil.AssertEqual(t, backend.Frequency(19), 1000)
	testutil.AssertEqual(t, backend.Duty(18), 0)
	testutil.AssertEqual(t, backend.Level(4), 0)
}

func TestNewRejectsMissingMotor(t *testing.T) {
	cfg := tunedConfig()
	delete(cfg.Motors, "right")

	_, err := drivetrain.New(cfg, sim.New())
	if !errors.Is(err, drivetrain.ErrNoMotors) {
		t.Fatalf("err = %v, want ErrNoMotors", err)
	}
}

func TestNewRejectsMalformedCurve(t *testing.T) {
	cfg := tunedConfig()
	motor := cfg.Motors["left"]
	motor.SpeedCurve = [][]float64{{0, 0, 0}}
	cfg.Motors["left"] = motor

	_, err := drivetrain.New(cfg, sim.New())
	if !errors.Is(err, drivetrain.ErrBadCurvePoint) {
		t.Fatalf("err = %v, want ErrBadCurvePoint", err)
	}
}

func TestDriveAppliesTrimAndCurve(t *testing.T) {
	c, backend := newController(t)

	// left: 0.4 + 0.1 trim lands on the 0.45 curve point; right: 0.5 - 0.05
	// through the identity curve.
	c.Drive(0.4, 0.5)

	testutil.AssertEqual(t, backend.Duty(18), 115) // round(255 * 0.45)
	testutil.AssertEqual(t, backend.Level(4), 1)
	testutil.AssertEqual(t, backend.Level(17), 0)

	testutil.AssertEqual(t, backend.Duty(19), 115) // round(255 * 0.45)
	testutil.AssertEqual(t, backend.Level(27), 1)
}

func TestDriveReverseSetsReversePin(t *testing.T) {
	c, backend := newController(t)

	c.Drive(0, -0.5)

	testutil.AssertEqual(t, backend.Duty(19), 140) // round(255 * 0.55)
	testutil.AssertEqual(t, backend.Level(27), 0)
	testutil.AssertEqual(t, backend.Level(22), 1)
}

func TestDriveSaturatesBeyondFullScale(t *testing.T) {
	c, backend := newController(t)

	// 1.0 + 0.1 trim clamps back to 1.0 before the curve.
	c.Drive(1.0, 0)

	testutil.AssertEqual(t, backend.Duty(18), 255)
}

func TestStopDropsPWMWithoutBraking(t *testing.T) {
	c, backend := newController(t)

	c.Drive(0.5, 0.5)
	c.Stop()

	testutil.AssertEqual(t, backend.Duty(18), 0)
	testutil.AssertEqual(t, backend.Level(4), 0)
	testutil.AssertEqual(t, backend.Level(17), 0)
}

func TestBrakeShortsBothMotors(t *testing.T) {
	c, backend := newController(t)

	c.Brake()

	testutil.AssertEqual(t, backend.Duty(18), 255)
	testutil.AssertEqual(t, backend.Level(4), 1)
	testutil.AssertEqual(t, backend.Level(17), 1)
	testutil.AssertEqual(t, backend.Duty(19), 255)
}

func TestEmergencyStopLatchesUntilReset(t *testing.T) {
	c, backend := newController(t)

	c.Drive(0.5, 0.5)
	c.EmergencyStop()

	testutil.AssertEqual(t, backend.Duty(18), 0)
	testutil.AssertEqual(t, backend.Duty(19), 0)
	if !c.Latched() {
		t.Fatal("controller not latched after emergency stop")
	}

	// Latched: drive and brake commands must not reach the backend.
	c.Drive(0.5, 0.5)
	testutil.AssertEqual(t, backend.Duty(18), 0)
	c.Brake()
	testutil.AssertEqual(t, backend.Duty(18), 0)

	c.ResetEstop()
	c.Drive(0, 0.5)
	testutil.AssertEqual(t, backend.Duty(19), 115)
}

func TestCloseShutsDownBackend(t *testing.T) {
	c, backend := newController(t)

	testutil.AssertNoError(t, c.Close())
	if !backend.Closed() {
		t.Fatal("backend not shut down")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drivetrain.yaml")
	data := `
pwm_frequency: 800
motors:
  left:
    pwm_pin: 18
    forward_pin: 4
    reverse_pin: 17
    trim: 0.1
    speed_curve:
      - [0.0, 0.0]
      - [1.0, 1.0]
  right:
    pwm_pin: 19
    forward_pin: 27
    reverse_pin: 22
`
	testutil.AssertNoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := drivetrain.LoadConfig(path)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, cfg.PWMFrequency, 800)
	testutil.AssertEqual(t, cfg.Motors["left"].PWMPin, 18)
	testutil.AssertEqual(t, cfg.Motors["left"].Trim, 0.1)
	testutil.AssertEqual(t, len(cfg.Motors["left"].SpeedCurve), 2)
}
