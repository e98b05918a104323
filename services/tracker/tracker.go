// Package tracker keeps a colored target centered with the pan servo and optionally drives the
// robot after it.
package tracker

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/cyber-run/OpenMV-H7/control"
	"github.com/cyber-run/OpenMV-H7/logging"
	"github.com/cyber-run/OpenMV-H7/utils"
	"github.com/cyber-run/OpenMV-H7/vision"
)

// Pan is the pan actuator.
type Pan interface {
	SetPanAngle(ctx context.Context, angle float64) (float64, error)
	PanAngle() float64
}

// Driver is the drive base.
type Driver interface {
	Drive(ctx context.Context, drive, bias float64) error
}

// Deps are the collaborators of a Tracker. Base is only needed to follow.
type Deps struct {
	Source    vision.Source
	Estimator *control.Estimator
	PID       *control.PID
	Pan       Pan
	Base      Driver
	Clock     clock.Clock
	Logger    logging.Logger
}

// Result is the outcome of one tracking tick.
type Result struct {
	Blob vision.Blob
	// AngleError is the error measured before the pan moved.
	AngleError float64
	// Pan is the pan angle after the tick.
	Pan float64
}

// Tracker runs the closed pan loop: blob -> angle error -> PID -> pan.
type Tracker struct {
	src      vision.Source
	est      *control.Estimator
	pid      *control.PID
	pan      Pan
	base     Driver
	maxPan   float64
	clk      clock.Clock
	logger   logging.Logger
	notFound *rate.Sometimes
}

// New returns a Tracker. maxPanDeg is the pan angle that maps to full steering bias when
// following.
func New(deps Deps, maxPanDeg float64) (*Tracker, error) {
	if deps.Source == nil || deps.Estimator == nil || deps.PID == nil || deps.Pan == nil {
		return nil, errors.New("tracker needs a source, an estimator, a pid and a pan")
	}
	if maxPanDeg <= 0 {
		return nil, errors.Errorf("max pan angle must be positive, got %v", maxPanDeg)
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewBlankLogger("tracker")
	}
	return &Tracker{
		src:      deps.Source,
		est:      deps.Estimator,
		pid:      deps.PID,
		pan:      deps.Pan,
		base:     deps.Base,
		maxPan:   maxPanDeg,
		clk:      clk,
		logger:   logger,
		notFound: &rate.Sometimes{First: 1, Interval: 2 * time.Second},
	}, nil
}

// Track moves the pan one PID step toward blob.
func (t *Tracker) Track(ctx context.Context, blob vision.Blob) (Result, error) {
	angleErr := t.est.AngleError(blob)
	inc := t.pid.Update(angleErr, t.clk.Now())
	pan, err := t.pan.SetPanAngle(ctx, t.pan.PanAngle()+inc)
	if err != nil {
		return Result{}, errors.Wrap(err, "couldn't track blob")
	}
	return Result{Blob: blob, AngleError: angleErr, Pan: pan}, nil
}

// TrackCode grabs a frame and tracks its biggest blob if that blob carries code. When it does
// not, the pan holds still and found is false.
func (t *Tracker) TrackCode(ctx context.Context, code vision.Code) (res Result, found bool, err error) {
	blobs, err := t.src.Blobs(ctx)
	if err != nil {
		return Result{}, false, errors.Wrap(err, "couldn't grab frame")
	}
	blob, ok := vision.BiggestWithCode(blobs, code)
	if !ok {
		t.notFound.Do(func() {
			t.logger.Debugw("target not found", "code", code, "blobs", len(blobs))
		})
		return Result{Pan: t.pan.PanAngle()}, false, nil
	}
	res, err = t.Track(ctx, blob)
	return res, err == nil, err
}

// Run tracks code until ctx is done.
func (t *Tracker) Run(ctx context.Context, code vision.Code) error {
	for ctx.Err() == nil {
		if _, _, err := t.TrackCode(ctx, code); err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
	}
	return nil
}

// Bias returns the steering bias for a pan angle: the camera looking left steers left.
func (t *Tracker) Bias(pan float64) float64 {
	return utils.ClampUnit(pan / t.maxPan)
}

// FollowStep tracks code for one frame and drives at speed toward it. Without a target the
// base stops.
func (t *Tracker) FollowStep(ctx context.Context, speed float64, code vision.Code) (bool, error) {
	if t.base == nil {
		return false, errors.New("following needs a base")
	}
	res, found, err := t.TrackCode(ctx, code)
	if err != nil {
		return false, err
	}
	if !found {
		return false, t.base.Drive(ctx, 0, 0)
	}
	return true, t.base.Drive(ctx, speed, t.Bias(res.Pan))
}

// Follow runs FollowStep until ctx is done, then stops the base.
func (t *Tracker) Follow(ctx context.Context, speed float64, code vision.Code) error {
	if t.base == nil {
		return errors.New("following needs a base")
	}
	var err error
	for ctx.Err() == nil {
		if _, err = t.FollowStep(ctx, speed, code); err != nil {
			if ctx.Err() != nil {
				err = nil
			}
			break
		}
	}
	// ctx is done or failing, stopping must still reach the wheels
	return multierr.Combine(err, t.base.Drive(context.Background(), 0, 0))
}
