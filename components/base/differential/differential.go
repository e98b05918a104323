// Package differential turns (drive, bias) commands into left and right wheel speeds for a
// two wheeled robot.
package differential

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/cyber-run/OpenMV-H7/logging"
	"github.com/cyber-run/OpenMV-H7/utils"
)

// Mix converts a forward drive and a steering bias, both in [-1, 1], to wheel speeds. A bias of
// 0 drives both wheels at drive. The magnitude of the bias moves speed from the straight
// component into the turn so neither wheel leaves [-1, 1], in reverse as well as forward. A
// positive bias turns left.
func Mix(drive, bias float64) (left, right float64) {
	drive, bias = utils.ClampUnit(drive), utils.ClampUnit(bias)
	diff := bias * drive
	// shrinks toward zero whatever the sign of drive
	straight := drive * (1 - math.Abs(bias))
	return utils.ClampUnit(straight - diff), utils.ClampUnit(straight + diff)
}

// A WheelDriver accepts wheel speed targets.
type WheelDriver interface {
	SetWheelSpeeds(ctx context.Context, left, right float64) error
}

// Base drives the wheels from mixed commands.
type Base struct {
	mu     sync.Mutex
	wheels WheelDriver
	logger logging.Logger
	drive  float64
	bias   float64
}

// NewBase returns a Base driving wheels.
func NewBase(wheels WheelDriver, logger logging.Logger) *Base {
	return &Base{wheels: wheels, logger: logger}
}

// Drive mixes drive and bias and commands the wheels.
func (b *Base) Drive(ctx context.Context, drive, bias float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	left, right := Mix(drive, bias)
	if err := b.wheels.SetWheelSpeeds(ctx, left, right); err != nil {
		return errors.Wrap(err, "couldn't drive base")
	}
	b.drive, b.bias = utils.ClampUnit(drive), utils.ClampUnit(bias)
	b.logger.Debugw("drive", "drive", b.drive, "bias", b.bias, "left", left, "right", right)
	return nil
}

// Stop drives with zero drive and zero bias.
func (b *Base) Stop(ctx context.Context) error {
	return b.Drive(ctx, 0, 0)
}

// Command returns the last drive and bias applied.
func (b *Base) Command() (drive, bias float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drive, b.bias
}

// IsMoving reports whether the last command had a nonzero drive.
func (b *Base) IsMoving() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drive != 0
}
