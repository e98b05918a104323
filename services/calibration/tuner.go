// Package calibration finds the pan range reachable while tracking a reference target and then
// records how the pan follows an oscillating target.
package calibration

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/cyber-run/OpenMV-H7/data"
	"github.com/cyber-run/OpenMV-H7/logging"
	"github.com/cyber-run/OpenMV-H7/services/tracker"
	"github.com/cyber-run/OpenMV-H7/vision"
)

// ErrCalibrationFailed is returned once MaxAttempts attempts produced no valid envelope.
var ErrCalibrationFailed = errors.New("calibration failed")

// Tracker moves the pan one step toward a blob.
type Tracker interface {
	Track(ctx context.Context, blob vision.Blob) (tracker.Result, error)
}

// Deps are the collaborators of a Tuner.
type Deps struct {
	Source  vision.Source
	Tracker Tracker
	Pan     tracker.Pan
	Sink    data.Sink
	Clock   clock.Clock
	Logger  logging.Logger
}

// A Tuner runs calibration and measurement. Its methods must be called from one goroutine at a
// time. State and Envelope may be read from anywhere.
type Tuner struct {
	cfg     Config
	src     vision.Source
	tracker Tracker
	pan     tracker.Pan
	sink    data.Sink
	clk     clock.Clock
	logger  logging.Logger

	mu    sync.Mutex
	state State
	env   Envelope
}

// NewTuner returns an idle Tuner.
func NewTuner(cfg Config, deps Deps) (*Tuner, error) {
	if err := cfg.Validate("calibration"); err != nil {
		return nil, err
	}
	if deps.Source == nil || deps.Tracker == nil || deps.Pan == nil || deps.Sink == nil {
		return nil, errors.New("tuner needs a source, a tracker, a pan and a sink")
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewBlankLogger("calibration")
	}
	return &Tuner{
		cfg:     cfg,
		src:     deps.Source,
		tracker: deps.Tracker,
		pan:     deps.Pan,
		sink:    deps.Sink,
		clk:     clk,
		logger:  logger,
		env:     Envelope{RequiredMin: cfg.RequiredMin, RequiredMax: cfg.RequiredMax},
	}, nil
}

// State returns the current step of the run.
func (t *Tuner) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Envelope returns the envelope of the last calibration attempt.
func (t *Tuner) Envelope() Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.env
}

func (t *Tuner) setState(s State) {
	t.mu.Lock()
	prev := t.state
	t.state = s
	t.mu.Unlock()
	if prev != s {
		t.logger.Debugw("state changed", "from", prev, "to", s)
	}
}

func (t *Tuner) setEnvelope(env Envelope) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.env = env
}

// Run calibrates, waits for the primary target, measures for Cycles periods of freq and stores
// the record in the sink. It returns the name the record was stored under. The tuner is idle
// again when Run returns.
func (t *Tuner) Run(ctx context.Context, freq float64) (string, error) {
	if freq <= 0 || math.IsNaN(freq) || math.IsInf(freq, 0) {
		return "", errors.Errorf("frequency must be positive, got %v", freq)
	}
	defer t.setState(Idle)

	env, err := t.Calibrate(ctx)
	if err != nil {
		return "", err
	}
	if err := t.AwaitLock(ctx, env); err != nil {
		return "", err
	}
	rec, err := t.Measure(ctx, freq)
	if err != nil {
		return "", err
	}

	t.setState(Done)
	name, err := t.sink.Write(ctx, rec, freq)
	if err != nil {
		return "", errors.Wrap(err, "couldn't store measurement")
	}
	t.logger.Infow("measurement stored", "name", name, "freq", freq, "samples", rec.Len())
	return name, nil
}

// Calibrate repeats calibration attempts until one discovers a valid envelope. With MaxAttempts
// set it gives up with ErrCalibrationFailed.
func (t *Tuner) Calibrate(ctx context.Context) (Envelope, error) {
	for attempt := 1; ; attempt++ {
		t.setState(Calibrating)
		env, err := t.sweep(ctx)
		t.setEnvelope(env)
		if err != nil {
			return env, err
		}

		t.setState(Validating)
		if env.Valid() {
			t.logger.Infow("calibration accepted", "min", env.Min, "max", env.Max, "attempt", attempt)
			return env, nil
		}
		t.logger.Warnw("pan range too narrow, move the robot closer to the target or check the color thresholds",
			"min", env.Min, "max", env.Max,
			"required_min", env.RequiredMin, "required_max", env.RequiredMax,
			"attempt", attempt)
		if t.cfg.MaxAttempts > 0 && attempt >= t.cfg.MaxAttempts {
			t.setState(Idle)
			return env, errors.Wrapf(ErrCalibrationFailed, "no valid envelope after %d attempts", attempt)
		}
	}
}

// sweep runs one attempt: it tracks the calibration target until it has been lost for
// LostTimeout and returns the pan range reached on confident detections.
func (t *Tuner) sweep(ctx context.Context) (Envelope, error) {
	env := Envelope{RequiredMin: t.cfg.RequiredMin, RequiredMax: t.cfg.RequiredMax}
	if _, err := t.pan.SetPanAngle(ctx, 0); err != nil {
		return env, errors.Wrap(err, "couldn't center pan")
	}

	deadline := t.clk.Now().Add(t.cfg.InitialSearch)
	for t.clk.Now().Before(deadline) {
		blob, found, err := t.grab(ctx, t.cfg.CalibrationCode)
		if err != nil {
			return env, err
		}
		if !found {
			continue
		}
		res, err := t.tracker.Track(ctx, blob)
		if err != nil {
			return env, err
		}
		deadline = t.clk.Now().Add(t.cfg.LostTimeout)
		if math.Abs(res.AngleError) >= t.cfg.AcceptanceThreshold {
			continue
		}
		if env.widen(res.Pan) {
			t.logger.Debugw("envelope widened", "min", env.Min, "max", env.Max)
		}
	}
	return env, nil
}

// AwaitLock points the pan at the top of env and blocks until the primary target is the biggest
// blob of a frame.
func (t *Tuner) AwaitLock(ctx context.Context, env Envelope) error {
	t.setState(AwaitingLock)
	if _, err := t.pan.SetPanAngle(ctx, env.Max); err != nil {
		return errors.Wrap(err, "couldn't move pan to the envelope")
	}
	t.logger.Infow("waiting for the primary target", "code", t.cfg.PrimaryCode, "pan", env.Max)
	for {
		_, found, err := t.grab(ctx, t.cfg.PrimaryCode)
		if err != nil {
			return err
		}
		if found {
			return nil
		}
	}
}

// Measure tracks the primary target for Cycles periods of freq. Every frame with the target adds
// a sample. Frames without it add nothing.
func (t *Tuner) Measure(ctx context.Context, freq float64) (*data.Record, error) {
	if freq <= 0 {
		return nil, errors.Errorf("frequency must be positive, got %v", freq)
	}
	t.setState(Measuring)
	duration := time.Duration(t.cfg.Cycles / freq * float64(time.Second))
	rec := data.NewRecord()
	var lost int

	start := t.clk.Now()
	for t.clk.Since(start) < duration {
		blob, found, err := t.grab(ctx, t.cfg.PrimaryCode)
		if err != nil {
			return nil, err
		}
		elapsed := t.clk.Since(start)
		if !found {
			lost++
			continue
		}
		res, err := t.tracker.Track(ctx, blob)
		if err != nil {
			return nil, err
		}
		rec.Append(data.Sample{Time: elapsed.Seconds(), Error: res.AngleError, Angle: res.Pan})
	}
	t.logger.Infow("measurement finished", "freq", freq, "duration", duration, "samples", rec.Len(), "lost_frames", lost)
	return rec, nil
}

// grab reads one frame and returns its biggest blob when it carries code.
func (t *Tuner) grab(ctx context.Context, code vision.Code) (vision.Blob, bool, error) {
	if err := ctx.Err(); err != nil {
		return vision.Blob{}, false, err
	}
	blobs, err := t.src.Blobs(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return vision.Blob{}, false, ctxErr
		}
		return vision.Blob{}, false, errors.Wrap(err, "couldn't grab frame")
	}
	blob, ok := vision.BiggestWithCode(blobs, code)
	return blob, ok, nil
}
