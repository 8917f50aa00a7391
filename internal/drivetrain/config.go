package drivetrain

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultPWMFrequency = 1000

// MotorConfig is the wiring and tuning of one motor channel.
type MotorConfig struct {
	PWMPin     int         `yaml:"pwm_pin"`
	ForwardPin int         `yaml:"forward_pin"`
	ReversePin int         `yaml:"reverse_pin"`
	Trim       float64     `yaml:"trim"`
	SpeedCurve [][]float64 `yaml:"speed_curve"`
}

// Config describes the drivetrain hardware.
type Config struct {
	PWMFrequency int                    `yaml:"pwm_frequency"`
	Motors       map[string]MotorConfig `yaml:"motors"`
}

// DefaultConfig returns the stock EduKit wiring with neutral tuning.
func DefaultConfig() Config {
	return Config{
		PWMFrequency: defaultPWMFrequency,
		Motors: map[string]MotorConfig{
			"left":  {PWMPin: 18, ForwardPin: 4, ReversePin: 17},
			"right": {PWMPin: 19, ForwardPin: 27, ReversePin: 22},
		},
	}
}

// LoadConfig reads a drivetrain configuration from a YAML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read drivetrain config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse drivetrain config: %w", err)
	}
	return cfg, nil
}
