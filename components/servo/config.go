package servo

import (
	"time"

	"github.com/pkg/errors"
	viamutils "go.viam.com/utils"

	"github.com/cyber-run/OpenMV-H7/utils"
)

// Config describes the servo shield wiring and the mechanical limits of the robot.
type Config struct {
	PanChannel   int `json:"pan_channel"`
	LeftChannel  int `json:"left_channel"`
	RightChannel int `json:"right_channel"`
	// NumChannels is the number of channels released by SoftReset.
	NumChannels int `json:"num_channels"`

	// Degrees is the mechanical span of the pan servo, centered on 0.
	Degrees float64 `json:"degrees"`
	// PanTrim is added to every requested pan angle to compensate an off center mount.
	PanTrim float64 `json:"pan_trim_deg"`

	// LeftZero and RightZero offset the speed of each continuous rotation servo so that a
	// commanded speed of 0 stops the wheel.
	LeftZero  float64 `json:"left_zero"`
	RightZero float64 `json:"right_zero"`
	// LeftDirection and RightDirection are +1 or -1. The wheels are mounted mirrored so one
	// of them runs inverted.
	LeftDirection  float64 `json:"left_direction"`
	RightDirection float64 `json:"right_direction"`
	// LeftCurve and RightCurve linearize the speed response of each wheel.
	LeftCurve  SpeedCurve `json:"left_curve"`
	RightCurve SpeedCurve `json:"right_curve"`

	// Slew is the largest change of commanded wheel speed per step.
	Slew float64 `json:"slew"`
	// StepDelay is the wait between two ramp steps.
	StepDelay time.Duration `json:"step_delay"`
	// ResetCountdown is the number of one second steps SoftReset waits before returning.
	ResetCountdown int `json:"reset_countdown_s"`

	PulseMinUs  float64 `json:"pulse_min_us"`
	PulseMaxUs  float64 `json:"pulse_max_us"`
	FrequencyHz float64 `json:"frequency_hz"`
	// Resolution is the number of duty ticks in one PWM period.
	Resolution int `json:"resolution"`
}

// DefaultConfig matches the servo shield of the robot: pan on 7, wheels on 5 and 4, a 120 degree
// pan and 700-2300us pulses at 50Hz on a 12 bit PWM controller.
func DefaultConfig() Config {
	return Config{
		PanChannel:     7,
		LeftChannel:    5,
		RightChannel:   4,
		NumChannels:    16,
		Degrees:        120,
		LeftZero:       -0.05,
		RightZero:      0.05,
		LeftDirection:  1,
		RightDirection: -1,
		Slew:           0.25,
		StepDelay:      50 * time.Millisecond,
		ResetCountdown: 3,
		PulseMinUs:     700,
		PulseMaxUs:     2300,
		FrequencyHz:    50,
		Resolution:     4095,
	}
}

// MinDeg is the lowest pan angle.
func (cfg Config) MinDeg() float64 {
	return -cfg.Degrees / 2
}

// MaxDeg is the highest pan angle.
func (cfg Config) MaxDeg() float64 {
	return cfg.Degrees / 2
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.NumChannels <= 0 {
		return viamutils.NewConfigValidationFieldRequiredError(path, "num_channels")
	}
	for name, ch := range map[string]int{
		"pan_channel":   cfg.PanChannel,
		"left_channel":  cfg.LeftChannel,
		"right_channel": cfg.RightChannel,
	} {
		if ch < 0 || ch >= cfg.NumChannels {
			return viamutils.NewConfigValidationError(path,
				errors.Errorf("%s must be between 0 and %d, got %d", name, cfg.NumChannels-1, ch))
		}
	}
	if cfg.PanChannel == cfg.LeftChannel || cfg.PanChannel == cfg.RightChannel || cfg.LeftChannel == cfg.RightChannel {
		return viamutils.NewConfigValidationError(path, errors.New("pan, left and right channels must differ"))
	}
	if cfg.Degrees <= 0 {
		return viamutils.NewConfigValidationFieldRequiredError(path, "degrees")
	}
	if cfg.LeftDirection != 1 && cfg.LeftDirection != -1 {
		return viamutils.NewConfigValidationError(path, errors.New("left_direction must be 1 or -1"))
	}
	if cfg.RightDirection != 1 && cfg.RightDirection != -1 {
		return viamutils.NewConfigValidationError(path, errors.New("right_direction must be 1 or -1"))
	}
	if cfg.Slew < 0 || cfg.Slew > 2 {
		return viamutils.NewConfigValidationError(path, utils.NewOutOfRangeError("slew", cfg.Slew, 0, 2))
	}
	if cfg.StepDelay < 0 {
		return viamutils.NewConfigValidationError(path, errors.New("step_delay cannot be negative"))
	}
	if cfg.ResetCountdown < 0 {
		return viamutils.NewConfigValidationError(path, errors.New("reset_countdown_s cannot be negative"))
	}
	if cfg.FrequencyHz <= 0 {
		return viamutils.NewConfigValidationFieldRequiredError(path, "frequency_hz")
	}
	if cfg.Resolution <= 0 {
		return viamutils.NewConfigValidationFieldRequiredError(path, "resolution")
	}
	if cfg.PulseMinUs <= 0 || cfg.PulseMaxUs <= cfg.PulseMinUs {
		return viamutils.NewConfigValidationError(path,
			errors.Errorf("pulse range must satisfy 0 < pulse_min_us < pulse_max_us, got %v-%v", cfg.PulseMinUs, cfg.PulseMaxUs))
	}
	if cfg.PulseMaxUs >= 1e6/cfg.FrequencyHz {
		return viamutils.NewConfigValidationError(path,
			errors.Errorf("pulse_max_us %v does not fit in a %vHz period", cfg.PulseMaxUs, cfg.FrequencyHz))
	}
	if err := cfg.LeftCurve.Validate(); err != nil {
		return viamutils.NewConfigValidationError(path, errors.Wrap(err, "left_curve"))
	}
	if err := cfg.RightCurve.Validate(); err != nil {
		return viamutils.NewConfigValidationError(path, errors.Wrap(err, "right_curve"))
	}
	return nil
}
