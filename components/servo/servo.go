// Package servo drives the pan servo and the two continuous rotation wheel servos of the robot
// through a PWM duty controller.
package servo

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/cyber-run/OpenMV-H7/logging"
	"github.com/cyber-run/OpenMV-H7/utils"
)

// A DutyWriter applies a duty value to one PWM channel. The value is applied before the next
// control tick.
type DutyWriter interface {
	SetDuty(ctx context.Context, channel, duty int) error
}

// Servos owns the pan angle and wheel speed state. Every actuation goes through it and calls
// are serialized, so the two wheel duties of one step are always written together.
type Servos struct {
	mu      sync.Mutex
	cfg     Config
	driver  DutyWriter
	clk     clock.Clock
	logger  logging.Logger
	duty    dutyMap
	pan     float64
	wheels  wheelRamp
	ramping atomic.Bool
}

// New returns Servos writing to driver. The pan and wheels are not moved until the first
// command.
func New(cfg Config, driver DutyWriter, clk clock.Clock, logger logging.Logger) (*Servos, error) {
	if err := cfg.Validate("servo"); err != nil {
		return nil, err
	}
	if driver == nil {
		return nil, errors.New("servos need a duty writer")
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Servos{
		cfg:    cfg,
		driver: driver,
		clk:    clk,
		logger: logger,
		duty:   newDutyMap(cfg),
		wheels: wheelRamp{slew: cfg.Slew},
	}, nil
}

// Config returns the configuration the servos were built with.
func (s *Servos) Config() Config {
	return s.cfg
}

// DutyRange returns the duty ticks of the shortest and longest pulse.
func (s *Servos) DutyRange() (int, int) {
	return s.duty.min, s.duty.max
}

// SetPanAngle trims and clamps angle, moves the pan servo there and returns the angle reached
// with the trim removed.
func (s *Servos) SetPanAngle(ctx context.Context, angle float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setPanAngle(ctx, angle)
}

func (s *Servos) setPanAngle(ctx context.Context, angle float64) (float64, error) {
	physical := utils.Clamp(angle+s.cfg.PanTrim, s.cfg.MinDeg(), s.cfg.MaxDeg())
	s.pan = physical
	duty := s.duty.angleDuty(physical, s.cfg.Degrees)
	if err := s.driver.SetDuty(ctx, s.cfg.PanChannel, duty); err != nil {
		return physical - s.cfg.PanTrim, errors.Wrap(err, "couldn't move the pan servo")
	}
	s.logger.Debugw("pan moved", "angle", physical, "duty", duty)
	return physical - s.cfg.PanTrim, nil
}

// PanAngle returns the current pan angle with the trim removed.
func (s *Servos) PanAngle() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pan - s.cfg.PanTrim
}

// SetWheelSpeeds clamps both targets to [-1, 1] and ramps the wheels toward them. Each step
// moves a wheel by at most the slew limit and writes both duties; between steps it waits
// StepDelay. It returns once both wheels are at their targets or ctx is done, in which case the
// wheels keep the last step written.
func (s *Servos) SetWheelSpeeds(ctx context.Context, left, right float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	left, right = utils.ClampUnit(left), utils.ClampUnit(right)
	defer s.ramping.Store(false)
	for {
		ramping := s.wheels.step(left, right)
		s.ramping.Store(ramping)
		if err := s.writeWheels(ctx); err != nil {
			return err
		}
		if !ramping {
			return nil
		}
		if err := s.wait(ctx, s.cfg.StepDelay); err != nil {
			return err
		}
	}
}

func (s *Servos) writeWheels(ctx context.Context) error {
	leftDuty := s.duty.speedDuty(s.cfg.LeftCurve.Throttle(s.wheels.left), s.cfg.LeftZero, s.cfg.LeftDirection)
	rightDuty := s.duty.speedDuty(s.cfg.RightCurve.Throttle(s.wheels.right), s.cfg.RightZero, s.cfg.RightDirection)
	err := multierr.Combine(
		errors.Wrap(s.driver.SetDuty(ctx, s.cfg.LeftChannel, leftDuty), "left wheel"),
		errors.Wrap(s.driver.SetDuty(ctx, s.cfg.RightChannel, rightDuty), "right wheel"),
	)
	if err != nil {
		return err
	}
	s.logger.Debugw("wheels stepped", "left", s.wheels.left, "right", s.wheels.right)
	return nil
}

// Ramping reports whether a SetWheelSpeeds call is between ramp steps.
func (s *Servos) Ramping() bool {
	return s.ramping.Load()
}

// WheelSpeeds returns the commanded speed of both wheels.
func (s *Servos) WheelSpeeds() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wheels.left, s.wheels.right
}

// Release stops driving one channel. Releasing a wheel channel forgets its commanded speed.
func (s *Servos) Release(ctx context.Context, channel int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.release(ctx, channel)
}

func (s *Servos) release(ctx context.Context, channel int) error {
	if channel < 0 || channel >= s.cfg.NumChannels {
		return errors.Errorf("channel %d out of range [0, %d)", channel, s.cfg.NumChannels)
	}
	if err := s.driver.SetDuty(ctx, channel, 0); err != nil {
		return errors.Wrapf(err, "couldn't release channel %d", channel)
	}
	switch channel {
	case s.cfg.LeftChannel:
		s.wheels.left = 0
	case s.cfg.RightChannel:
		s.wheels.right = 0
	}
	return nil
}

// SoftReset releases every channel, centers the pan and then counts down ResetCountdown
// seconds so the mechanics settle before the caller issues further commands.
func (s *Servos) SoftReset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for ch := 0; ch < s.cfg.NumChannels; ch++ {
		err = multierr.Combine(err, s.release(ctx, ch))
	}
	s.wheels.reset()
	if _, panErr := s.setPanAngle(ctx, 0); panErr != nil {
		err = multierr.Combine(err, panErr)
	}
	if err != nil {
		return err
	}
	for i := s.cfg.ResetCountdown; i > 0; i-- {
		s.logger.Infof("%d seconds remaining", i)
		if err := s.wait(ctx, time.Second); err != nil {
			return err
		}
	}
	s.logger.Info("servos reset")
	return nil
}

func (s *Servos) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := s.clk.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
