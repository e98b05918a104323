package tracker_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"github.com/cyber-run/OpenMV-H7/components/base/differential"
	"github.com/cyber-run/OpenMV-H7/components/servo"
	"github.com/cyber-run/OpenMV-H7/components/servo/fake"
	"github.com/cyber-run/OpenMV-H7/control"
	"github.com/cyber-run/OpenMV-H7/logging"
	"github.com/cyber-run/OpenMV-H7/services/tracker"
	"github.com/cyber-run/OpenMV-H7/testutils/inject"
	"github.com/cyber-run/OpenMV-H7/vision"
	"github.com/cyber-run/OpenMV-H7/vision/serialsource"
)

const (
	red  = vision.Code(1)
	blue = vision.Code(4)
)

// 64 degrees over 320 columns makes every 5 columns left of center one degree of error.
var geometry = control.CameraGeometry{FrameWidth: 320, FrameHeight: 240, HFOVDeg: 64}

type rig struct {
	servos  *servo.Servos
	base    *differential.Base
	source  *inject.Source
	tracker *tracker.Tracker
	frames  [][]vision.Blob
}

func newRig(t *testing.T, logger logging.Logger) *rig {
	t.Helper()
	cfg := servo.DefaultConfig()
	cfg.StepDelay = 0
	cfg.ResetCountdown = 0
	servos, err := servo.New(cfg, fake.NewDutyWriter(), clock.New(), logger.Sublogger("servo"))
	test.That(t, err, test.ShouldBeNil)

	r := &rig{servos: servos, base: differential.NewBase(servos, logger.Sublogger("base"))}
	r.source = &inject.Source{BlobsFunc: func(ctx context.Context) ([]vision.Blob, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(r.frames) == 0 {
			return nil, nil
		}
		f := r.frames[0]
		r.frames = r.frames[1:]
		return f, nil
	}}
	r.tracker, err = tracker.New(tracker.Deps{
		Source:    r.source,
		Estimator: control.NewEstimator(geometry),
		PID:       control.NewPID(control.PIDConfig{P: 0.2}),
		Pan:       servos,
		Base:      r.base,
		Clock:     clock.New(),
		Logger:    logger,
	}, cfg.MaxDeg())
	test.That(t, err, test.ShouldBeNil)
	return r
}

func TestNew(t *testing.T) {
	_, err := tracker.New(tracker.Deps{}, 60)
	test.That(t, err, test.ShouldNotBeNil)

	r := newRig(t, logging.NewTestLogger(t))
	_, err = tracker.New(tracker.Deps{
		Source:    r.source,
		Estimator: control.NewEstimator(geometry),
		PID:       control.NewPID(control.DefaultPIDConfig()),
		Pan:       r.servos,
	}, 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestTrackCode(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, logging.NewTestLogger(t))

	// 50 columns left of center is +10 degrees of error, P=0.2 turns it into +2 degrees of pan
	r.frames = [][]vision.Blob{{{CX: 110, Pixels: 300, Code: red}}}
	res, found, err := r.tracker.TrackCode(ctx, red)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, res.AngleError, test.ShouldAlmostEqual, 10.0)
	test.That(t, res.Pan, test.ShouldAlmostEqual, 2.0)
	test.That(t, r.servos.PanAngle(), test.ShouldAlmostEqual, 2.0)

	// the pan keeps accumulating
	r.frames = [][]vision.Blob{{{CX: 110, Pixels: 300, Code: red}}}
	res, _, err = r.tracker.TrackCode(ctx, red)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Pan, test.ShouldAlmostEqual, 4.0)

	// the pan is clamped to the mechanical range
	_, err = r.servos.SetPanAngle(ctx, 59)
	test.That(t, err, test.ShouldBeNil)
	r.frames = [][]vision.Blob{{{CX: 10, Pixels: 300, Code: red}}}
	res, _, err = r.tracker.TrackCode(ctx, red)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Pan, test.ShouldEqual, 60.0)
}

func TestTrackCodeNotFound(t *testing.T) {
	ctx := context.Background()
	logger, logs := logging.NewObservedTestLogger(t)
	r := newRig(t, logger)
	_, err := r.servos.SetPanAngle(ctx, 12)
	test.That(t, err, test.ShouldBeNil)

	// the biggest blob has another code, so the red one is ignored
	r.frames = [][]vision.Blob{
		{{CX: 10, Pixels: 100, Code: red}, {CX: 300, Pixels: 500, Code: blue}},
		nil,
		{},
		nil,
	}
	for i := 0; i < 4; i++ {
		res, found, err := r.tracker.TrackCode(ctx, red)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, found, test.ShouldBeFalse)
		test.That(t, res.Pan, test.ShouldEqual, 12.0)
	}
	test.That(t, r.servos.PanAngle(), test.ShouldEqual, 12.0)
	test.That(t, logs.FilterMessage("target not found").Len(), test.ShouldEqual, 1)

	r.source.BlobsFunc = func(ctx context.Context) ([]vision.Blob, error) {
		return nil, errors.New("usb gone")
	}
	_, _, err = r.tracker.TrackCode(ctx, red)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "usb gone")
}

func TestFollowStep(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, logging.NewTestLogger(t))
	_, err := r.servos.SetPanAngle(ctx, 30)
	test.That(t, err, test.ShouldBeNil)

	// centered target: the pan stays at 30 degrees which is half the steering bias
	r.frames = [][]vision.Blob{{{CX: 160, Pixels: 300, Code: red}}}
	found, err := r.tracker.FollowStep(ctx, 0.8, red)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldBeTrue)
	left, right := r.servos.WheelSpeeds()
	test.That(t, left, test.ShouldAlmostEqual, 0.0)
	test.That(t, right, test.ShouldAlmostEqual, 0.8)
	drive, bias := r.base.Command()
	test.That(t, drive, test.ShouldEqual, 0.8)
	test.That(t, bias, test.ShouldEqual, 0.5)

	// lost target stops the robot
	r.frames = [][]vision.Blob{{{CX: 160, Pixels: 300, Code: blue}}}
	found, err = r.tracker.FollowStep(ctx, 0.8, red)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldBeFalse)
	left, right = r.servos.WheelSpeeds()
	test.That(t, left, test.ShouldEqual, 0.0)
	test.That(t, right, test.ShouldEqual, 0.0)
	test.That(t, r.tracker.Bias(-90), test.ShouldEqual, -1.0)
}

func TestFollowUntilCanceled(t *testing.T) {
	r := newRig(t, logging.NewTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	r.source.BlobsFunc = func(ctx context.Context) ([]vision.Blob, error) {
		calls++
		if calls == 5 {
			cancel()
			return nil, ctx.Err()
		}
		return []vision.Blob{{CX: 150, Pixels: 300, Code: red}}, nil
	}
	test.That(t, r.tracker.Follow(ctx, 0.5, red), test.ShouldBeNil)
	test.That(t, calls, test.ShouldEqual, 5)
	test.That(t, r.base.IsMoving(), test.ShouldBeFalse)
	left, right := r.servos.WheelSpeeds()
	test.That(t, left, test.ShouldEqual, 0.0)
	test.That(t, right, test.ShouldEqual, 0.0)
	test.That(t, r.servos.PanAngle(), test.ShouldBeGreaterThan, 0)
}

func TestRun(t *testing.T) {
	r := newRig(t, logging.NewTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	r.source.BlobsFunc = func(ctx context.Context) ([]vision.Blob, error) {
		calls++
		switch calls {
		case 3:
			cancel()
			return nil, ctx.Err()
		default:
			return []vision.Blob{{CX: 210, Pixels: 300, Code: red}}, nil
		}
	}
	test.That(t, r.tracker.Run(ctx, red), test.ShouldBeNil)
	// two ticks of -10 degrees error
	test.That(t, r.servos.PanAngle(), test.ShouldAlmostEqual, -4.0)

	r.source.BlobsFunc = func(ctx context.Context) ([]vision.Blob, error) {
		return nil, errors.New("frame timeout")
	}
	err := r.tracker.Run(context.Background(), red)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRunSkipsGarbledCameraLines(t *testing.T) {
	logger := logging.NewTestLogger(t)
	r := newRig(t, logger)
	// the second line is a frame cut off mid blob
	stream := "110,120,10,10,200,1\n,120,10,10\n110,120,10,10,200,1\n"
	src := serialsource.NewSource(io.NopCloser(strings.NewReader(stream)), logger)
	trk, err := tracker.New(tracker.Deps{
		Source:    src,
		Estimator: control.NewEstimator(geometry),
		PID:       control.NewPID(control.PIDConfig{P: 0.2}),
		Pan:       r.servos,
		Base:      r.base,
		Clock:     clock.New(),
		Logger:    logger,
	}, servo.DefaultConfig().MaxDeg())
	test.That(t, err, test.ShouldBeNil)

	err = trk.Run(context.Background(), red)
	test.That(t, errors.Is(err, io.EOF), test.ShouldBeTrue)
	// both good frames were tracked, the garbled one held the pan
	test.That(t, r.servos.PanAngle(), test.ShouldAlmostEqual, 4.0)
}
