// Package config defines the operator configuration of the robot.
package config

import (
	"image"

	"github.com/pkg/errors"
	viamutils "go.viam.com/utils"

	"github.com/cyber-run/OpenMV-H7/components/servo"
	"github.com/cyber-run/OpenMV-H7/components/servo/pca9685"
	"github.com/cyber-run/OpenMV-H7/control"
	"github.com/cyber-run/OpenMV-H7/logging"
	"github.com/cyber-run/OpenMV-H7/services/calibration"
	"github.com/cyber-run/OpenMV-H7/vision"
)

// Frame sources.
const (
	SourceSerial = "serial"
	SourceImages = "images"
)

// Config is the whole configuration, read once at startup.
type Config struct {
	LogLevel    string                 `json:"log_level"`
	Camera      control.CameraGeometry `json:"camera"`
	PID         control.PIDConfig      `json:"pid"`
	Servo       servo.Config           `json:"servo"`
	Calibration calibration.Config     `json:"calibration"`
	Vision      Vision                 `json:"vision"`
	Data        Data                   `json:"data"`
	Hardware    pca9685.Config         `json:"hardware"`
}

// Vision selects where blobs come from.
type Vision struct {
	// Source is SourceSerial for blobs found on the camera, SourceImages for frames searched here.
	Source   string `json:"source"`
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate"`

	FramesDir  string             `json:"frames_dir"`
	Loop       bool               `json:"loop"`
	Thresholds []vision.Threshold `json:"thresholds"`
	Find       vision.FindOptions `json:"find"`
	// ROI is x, y, width, height. Empty searches the full frame.
	ROI []int `json:"roi"`
}

// Data is where measurement records go.
type Data struct {
	Dir string `json:"dir"`
}

// Default returns the configuration of the stock robot.
func Default() Config {
	return Config{
		LogLevel:    logging.INFO.String(),
		Camera:      control.DefaultCameraGeometry(),
		PID:         control.DefaultPIDConfig(),
		Servo:       servo.DefaultConfig(),
		Calibration: calibration.DefaultConfig(),
		Vision: Vision{
			Source:   SourceSerial,
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
			Thresholds: []vision.Threshold{
				{30, 100, 15, 127, 15, 127}, // red
				{30, 100, -64, -8, -32, 32}, // green
				{0, 30, 0, 64, -128, 0},     // blue
			},
			Find: vision.DefaultFindOptions(),
		},
		Data:     Data{Dir: "curves"},
		Hardware: pca9685.DefaultConfig(),
	}
}

// FindOptions returns the blob filters with the ROI applied.
func (v Vision) FindOptions() vision.FindOptions {
	opts := v.Find
	if len(v.ROI) == 4 {
		opts.ROI = image.Rect(v.ROI[0], v.ROI[1], v.ROI[0]+v.ROI[2], v.ROI[1]+v.ROI[3])
	}
	return opts
}

// Validate ensures all parts of the config are valid.
func (v *Vision) Validate(path string) error {
	switch v.Source {
	case SourceSerial:
		if v.Port == "" {
			return viamutils.NewConfigValidationFieldRequiredError(path, "port")
		}
		if v.BaudRate < 0 {
			return viamutils.NewConfigValidationError(path, errors.Errorf("baud_rate cannot be negative, got %d", v.BaudRate))
		}
	case SourceImages:
		if v.FramesDir == "" {
			return viamutils.NewConfigValidationFieldRequiredError(path, "frames_dir")
		}
		if len(v.Thresholds) == 0 {
			return viamutils.NewConfigValidationFieldRequiredError(path, "thresholds")
		}
	case "":
		return viamutils.NewConfigValidationFieldRequiredError(path, "source")
	default:
		return viamutils.NewConfigValidationError(path,
			errors.Errorf("source must be %q or %q, got %q", SourceSerial, SourceImages, v.Source))
	}
	for i, th := range v.Thresholds {
		if err := th.Validate(); err != nil {
			return viamutils.NewConfigValidationError(path, errors.Wrapf(err, "thresholds[%d]", i))
		}
	}
	if len(v.ROI) != 0 && len(v.ROI) != 4 {
		return viamutils.NewConfigValidationError(path, errors.New("roi must be [x, y, width, height]"))
	}
	if len(v.ROI) == 4 && (v.ROI[2] <= 0 || v.ROI[3] <= 0) {
		return viamutils.NewConfigValidationError(path, errors.New("roi width and height must be positive"))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if _, err := logging.LevelFromString(cfg.LogLevel); err != nil {
		return viamutils.NewConfigValidationError(path, err)
	}
	if err := cfg.Camera.Validate(); err != nil {
		return viamutils.NewConfigValidationError(joinPath(path, "camera"), err)
	}
	if err := cfg.PID.Validate(); err != nil {
		return viamutils.NewConfigValidationError(joinPath(path, "pid"), err)
	}
	if err := cfg.Servo.Validate(joinPath(path, "servo")); err != nil {
		return err
	}
	if err := cfg.Calibration.Validate(joinPath(path, "calibration")); err != nil {
		return err
	}
	if err := cfg.Vision.Validate(joinPath(path, "vision")); err != nil {
		return err
	}
	if cfg.Data.Dir == "" {
		return viamutils.NewConfigValidationFieldRequiredError(joinPath(path, "data"), "dir")
	}
	if err := cfg.Hardware.Validate(joinPath(path, "hardware")); err != nil {
		return err
	}
	if cfg.Hardware.FrequencyHz != cfg.Servo.FrequencyHz {
		return viamutils.NewConfigValidationError(path, errors.Errorf(
			"hardware frequency_hz (%v) must match servo frequency_hz (%v)", cfg.Hardware.FrequencyHz, cfg.Servo.FrequencyHz))
	}
	if cfg.Servo.NumChannels > pca9685.NumChannels {
		return viamutils.NewConfigValidationError(joinPath(path, "servo"),
			errors.Errorf("num_channels cannot exceed %d", pca9685.NumChannels))
	}
	return nil
}

func joinPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}
