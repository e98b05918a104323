package calibration

import (
	"time"

	"github.com/pkg/errors"
	viamutils "go.viam.com/utils"

	"github.com/cyber-run/OpenMV-H7/vision"
)

// Config holds the operator parameters of a calibration and measurement run.
type Config struct {
	// CalibrationCode is the color code of the reference target swept during calibration.
	CalibrationCode vision.Code `json:"calibration_code"`
	// PrimaryCode is the color code of the target tracked while measuring.
	PrimaryCode vision.Code `json:"primary_code"`
	// AcceptanceThreshold is the largest angle error, in degrees, of a detection allowed to widen
	// the envelope.
	AcceptanceThreshold float64 `json:"acceptance_threshold_deg"`
	// InitialSearch is how long an attempt waits for the first detection.
	InitialSearch time.Duration `json:"initial_search"`
	// LostTimeout ends an attempt once the target has not been seen for that long.
	LostTimeout time.Duration `json:"lost_timeout"`
	RequiredMin float64       `json:"required_min_deg"`
	RequiredMax float64       `json:"required_max_deg"`
	// MaxAttempts bounds the calibration attempts. 0 retries forever.
	MaxAttempts int `json:"max_attempts"`
	// Cycles is the number of disturbance periods a measurement lasts.
	Cycles float64 `json:"cycles"`
}

// DefaultConfig returns the parameters used on the robot.
func DefaultConfig() Config {
	return Config{
		CalibrationCode:     vision.CodeFor(2),
		PrimaryCode:         vision.CodeFor(0),
		AcceptanceThreshold: 20,
		InitialSearch:       3 * time.Second,
		LostTimeout:         1500 * time.Millisecond,
		RequiredMin:         -25,
		RequiredMax:         25,
		Cycles:              10,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.CalibrationCode == 0 {
		return viamutils.NewConfigValidationFieldRequiredError(path, "calibration_code")
	}
	if cfg.PrimaryCode == 0 {
		return viamutils.NewConfigValidationFieldRequiredError(path, "primary_code")
	}
	if cfg.CalibrationCode == cfg.PrimaryCode {
		return viamutils.NewConfigValidationError(path, errors.New("calibration_code and primary_code must differ"))
	}
	if cfg.AcceptanceThreshold <= 0 {
		return viamutils.NewConfigValidationFieldRequiredError(path, "acceptance_threshold_deg")
	}
	if cfg.InitialSearch <= 0 {
		return viamutils.NewConfigValidationFieldRequiredError(path, "initial_search")
	}
	if cfg.LostTimeout <= 0 {
		return viamutils.NewConfigValidationFieldRequiredError(path, "lost_timeout")
	}
	if cfg.RequiredMin > cfg.RequiredMax {
		return viamutils.NewConfigValidationError(path,
			errors.Errorf("required_min_deg (%v) cannot be above required_max_deg (%v)", cfg.RequiredMin, cfg.RequiredMax))
	}
	if cfg.MaxAttempts < 0 {
		return viamutils.NewConfigValidationError(path, errors.New("max_attempts cannot be negative"))
	}
	if cfg.Cycles <= 0 {
		return viamutils.NewConfigValidationFieldRequiredError(path, "cycles")
	}
	return nil
}
