package main

import (
	"context"
	"io"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/cyber-run/OpenMV-H7/components/base/differential"
	"github.com/cyber-run/OpenMV-H7/components/servo"
	"github.com/cyber-run/OpenMV-H7/components/servo/pca9685"
	"github.com/cyber-run/OpenMV-H7/config"
	"github.com/cyber-run/OpenMV-H7/control"
	"github.com/cyber-run/OpenMV-H7/logging"
	"github.com/cyber-run/OpenMV-H7/services/tracker"
	"github.com/cyber-run/OpenMV-H7/vision"
	"github.com/cyber-run/OpenMV-H7/vision/colorblob"
	"github.com/cyber-run/OpenMV-H7/vision/serialsource"
)

type dutyWriteCloser interface {
	servo.DutyWriter
	io.Closer
}

var (
	appFs      = afero.NewOsFs()
	openDriver = func(cfg pca9685.Config, logger logging.Logger) (dutyWriteCloser, error) {
		return pca9685.Open(cfg, logger)
	}
)

// robot is everything the commands drive, assembled from the config.
type robot struct {
	cfg    *config.Config
	logger logging.Logger
	clk    clock.Clock

	driver    dutyWriteCloser
	source    vision.Source
	srcCloser io.Closer
	servos    *servo.Servos
	base      *differential.Base
	tracker   *tracker.Tracker
}

func openRobot(cfg *config.Config, logger logging.Logger) (r *robot, err error) {
	r = &robot{cfg: cfg, logger: logger, clk: clock.New()}
	r.driver, err = openDriver(cfg.Hardware, logger.Sublogger("pca9685"))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, r.driver.Close())
		}
	}()

	r.source, r.srcCloser, err = openSource(cfg.Vision, appFs, logger.Sublogger("vision"))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, r.srcCloser.Close())
		}
	}()

	r.servos, err = servo.New(cfg.Servo, r.driver, r.clk, logger.Sublogger("servo"))
	if err != nil {
		return nil, err
	}
	r.base = differential.NewBase(r.servos, logger.Sublogger("base"))
	r.tracker, err = tracker.New(tracker.Deps{
		Source:    r.source,
		Estimator: control.NewEstimator(cfg.Camera),
		PID:       control.NewPID(cfg.PID),
		Pan:       r.servos,
		Base:      r.base,
		Clock:     r.clk,
		Logger:    logger.Sublogger("tracker"),
	}, cfg.Servo.MaxDeg())
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Close stops the wheels and releases the camera and the PWM controller.
func (r *robot) Close() error {
	// the command context is usually canceled by now
	return multierr.Combine(
		r.base.Stop(context.Background()),
		r.srcCloser.Close(),
		r.driver.Close(),
	)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openSource(cfg config.Vision, fs afero.Fs, logger logging.Logger) (vision.Source, io.Closer, error) {
	switch cfg.Source {
	case config.SourceSerial:
		src, err := serialsource.Open(cfg.Port, cfg.BaudRate, logger)
		if err != nil {
			return nil, nil, err
		}
		return src, src, nil
	case config.SourceImages:
		finder, err := colorblob.NewFinder(cfg.Thresholds, cfg.FindOptions())
		if err != nil {
			return nil, nil, err
		}
		frames, err := colorblob.NewDirFrames(fs, cfg.FramesDir, cfg.Loop)
		if err != nil {
			return nil, nil, err
		}
		logger.Infow("replaying recorded frames", "dir", cfg.FramesDir, "loop", cfg.Loop)
		return colorblob.NewSource(frames, finder), nopCloser{}, nil
	default:
		return nil, nil, errors.Errorf("unknown vision source %q", cfg.Source)
	}
}
