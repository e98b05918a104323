package servo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"github.com/cyber-run/OpenMV-H7/components/servo"
	"github.com/cyber-run/OpenMV-H7/components/servo/fake"
	"github.com/cyber-run/OpenMV-H7/logging"
	"github.com/cyber-run/OpenMV-H7/testutils/inject"
)

// testConfig uses one duty tick per microsecond so duties read as pulse widths: 1000us to
// 2000us, centered on 1500us.
func testConfig() servo.Config {
	cfg := servo.DefaultConfig()
	cfg.PulseMinUs = 1000
	cfg.PulseMaxUs = 2000
	cfg.FrequencyHz = 50
	cfg.Resolution = 20000
	cfg.LeftZero = 0
	cfg.RightZero = 0
	cfg.StepDelay = 0
	cfg.ResetCountdown = 0
	return cfg
}

func newServos(t *testing.T, cfg servo.Config, w servo.DutyWriter) *servo.Servos {
	t.Helper()
	s, err := servo.New(cfg, w, clock.New(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return s
}

func TestNew(t *testing.T) {
	logger := logging.NewTestLogger(t)
	_, err := servo.New(testConfig(), nil, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)

	bad := testConfig()
	bad.Degrees = 0
	_, err = servo.New(bad, fake.NewDutyWriter(), nil, logger)
	test.That(t, err, test.ShouldNotBeNil)

	s, err := servo.New(servo.DefaultConfig(), fake.NewDutyWriter(), nil, logger)
	test.That(t, err, test.ShouldBeNil)
	minDuty, maxDuty := s.DutyRange()
	test.That(t, minDuty, test.ShouldEqual, 143)
	test.That(t, maxDuty, test.ShouldEqual, 470)
}

func TestSetPanAngle(t *testing.T) {
	ctx := context.Background()
	w := fake.NewDutyWriter()
	cfg := testConfig()
	s := newServos(t, cfg, w)

	got, err := s.SetPanAngle(ctx, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, 2.0)
	test.That(t, s.PanAngle(), test.ShouldEqual, 2.0)
	duty, ok := w.Duty(cfg.PanChannel)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, duty, test.ShouldEqual, 1517)

	got, err = s.SetPanAngle(ctx, 95)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, 60.0)
	duty, _ = w.Duty(cfg.PanChannel)
	test.That(t, duty, test.ShouldEqual, 2000)

	got, err = s.SetPanAngle(ctx, -95)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, -60.0)
	duty, _ = w.Duty(cfg.PanChannel)
	test.That(t, duty, test.ShouldEqual, 1000)
}

func TestSetPanAngleClampIdempotent(t *testing.T) {
	ctx := context.Background()
	for _, trim := range []float64{0, 5, -7.5} {
		w := fake.NewDutyWriter()
		cfg := testConfig()
		cfg.PanTrim = trim
		s := newServos(t, cfg, w)
		for angle := -200.0; angle <= 200; angle += 7.3 {
			got, err := s.SetPanAngle(ctx, angle)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, got+trim, test.ShouldBeBetweenOrEqual, cfg.MinDeg(), cfg.MaxDeg())
			duty, _ := w.Duty(cfg.PanChannel)

			again, err := s.SetPanAngle(ctx, got)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, again, test.ShouldAlmostEqual, got)
			dutyAgain, _ := w.Duty(cfg.PanChannel)
			test.That(t, dutyAgain, test.ShouldEqual, duty)
		}
	}
}

func TestSetPanAngleTrim(t *testing.T) {
	ctx := context.Background()
	w := fake.NewDutyWriter()
	cfg := testConfig()
	cfg.PanTrim = 5
	s := newServos(t, cfg, w)

	got, err := s.SetPanAngle(ctx, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, 0.0)
	duty, _ := w.Duty(cfg.PanChannel)
	test.That(t, duty, test.ShouldEqual, 1542)

	got, err = s.SetPanAngle(ctx, 100)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, 55.0)
	test.That(t, s.PanAngle(), test.ShouldEqual, 55.0)
}

func speedsFromDuties(duties []int, direction float64) []float64 {
	out := make([]float64, 0, len(duties))
	for _, d := range duties {
		out = append(out, direction*float64(d-1500)/500)
	}
	return out
}

func TestSetWheelSpeedsRamp(t *testing.T) {
	ctx := context.Background()
	w := fake.NewDutyWriter()
	cfg := testConfig()
	s := newServos(t, cfg, w)

	test.That(t, s.SetWheelSpeeds(ctx, 1, 1), test.ShouldBeNil)
	test.That(t, w.History(cfg.LeftChannel), test.ShouldResemble, []int{1625, 1750, 1875, 2000})
	test.That(t, w.History(cfg.RightChannel), test.ShouldResemble, []int{1375, 1250, 1125, 1000})
	test.That(t, speedsFromDuties(w.History(cfg.LeftChannel), 1), test.ShouldResemble, []float64{0.25, 0.5, 0.75, 1})
	test.That(t, speedsFromDuties(w.History(cfg.RightChannel), -1), test.ShouldResemble, []float64{0.25, 0.5, 0.75, 1})

	// both duties of a step are written together
	writes := w.Writes()
	test.That(t, writes, test.ShouldHaveLength, 8)
	for i := 0; i < len(writes); i += 2 {
		test.That(t, writes[i].Channel, test.ShouldEqual, cfg.LeftChannel)
		test.That(t, writes[i+1].Channel, test.ShouldEqual, cfg.RightChannel)
	}

	left, right := s.WheelSpeeds()
	test.That(t, left, test.ShouldEqual, 1.0)
	test.That(t, right, test.ShouldEqual, 1.0)
	test.That(t, s.Ramping(), test.ShouldBeFalse)

	// a change within the slew limit snaps in one step
	w.Clear()
	test.That(t, s.SetWheelSpeeds(ctx, 0.9, 1.5), test.ShouldBeNil)
	test.That(t, w.History(cfg.LeftChannel), test.ShouldResemble, []int{1950})
	test.That(t, w.History(cfg.RightChannel), test.ShouldResemble, []int{1000})
}

func TestSetWheelSpeedsRampingFlag(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	var s *servo.Servos
	var flags []bool
	w := &inject.DutyWriter{DutyWriter: fake.NewDutyWriter()}
	w.SetDutyFunc = func(ctx context.Context, channel, duty int) error {
		if channel == cfg.RightChannel {
			flags = append(flags, s.Ramping())
		}
		return w.DutyWriter.SetDuty(ctx, channel, duty)
	}
	s = newServos(t, cfg, w)

	test.That(t, s.SetWheelSpeeds(ctx, -1, 0), test.ShouldBeNil)
	test.That(t, flags, test.ShouldResemble, []bool{true, true, true, false})
	test.That(t, s.Ramping(), test.ShouldBeFalse)
}

func TestSetWheelSpeedsWithDelay(t *testing.T) {
	cfg := testConfig()
	cfg.StepDelay = 5 * time.Millisecond
	w := fake.NewDutyWriter()
	s := newServos(t, cfg, w)

	start := time.Now()
	test.That(t, s.SetWheelSpeeds(context.Background(), 0.5, 0.5), test.ShouldBeNil)
	test.That(t, time.Since(start), test.ShouldBeGreaterThanOrEqualTo, cfg.StepDelay)
	test.That(t, w.History(cfg.LeftChannel), test.ShouldHaveLength, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Clear()
	err := s.SetWheelSpeeds(ctx, -0.5, -0.5)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	// the first step is written before the wait is interrupted
	left, right := s.WheelSpeeds()
	test.That(t, left, test.ShouldEqual, 0.25)
	test.That(t, right, test.ShouldEqual, 0.25)
	test.That(t, w.History(cfg.LeftChannel), test.ShouldHaveLength, 1)
	test.That(t, s.Ramping(), test.ShouldBeFalse)
}

func TestSetWheelSpeedsError(t *testing.T) {
	cfg := testConfig()
	w := &inject.DutyWriter{DutyWriter: fake.NewDutyWriter()}
	w.SetDutyFunc = func(ctx context.Context, channel, duty int) error {
		if channel == cfg.RightChannel {
			return errors.New("i2c nack")
		}
		return nil
	}
	s := newServos(t, cfg, w)
	err := s.SetWheelSpeeds(context.Background(), 1, 1)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "right wheel")
	test.That(t, err.Error(), test.ShouldContainSubstring, "i2c nack")
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	w := fake.NewDutyWriter()
	cfg := testConfig()
	s := newServos(t, cfg, w)

	test.That(t, s.SetWheelSpeeds(ctx, 0.2, 0.2), test.ShouldBeNil)
	_, err := s.SetPanAngle(ctx, 10)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, s.Release(ctx, cfg.LeftChannel), test.ShouldBeNil)
	duty, _ := w.Duty(cfg.LeftChannel)
	test.That(t, duty, test.ShouldEqual, 0)
	left, right := s.WheelSpeeds()
	test.That(t, left, test.ShouldEqual, 0.0)
	test.That(t, right, test.ShouldEqual, 0.2)

	// other channels are untouched
	duty, _ = w.Duty(cfg.PanChannel)
	test.That(t, duty, test.ShouldNotEqual, 0)
	test.That(t, s.PanAngle(), test.ShouldEqual, 10.0)

	test.That(t, s.Release(ctx, 16), test.ShouldNotBeNil)
	test.That(t, s.Release(ctx, -1), test.ShouldNotBeNil)
}

func TestSoftReset(t *testing.T) {
	ctx := context.Background()
	w := fake.NewDutyWriter()
	cfg := testConfig()
	logger, logs := logging.NewObservedTestLogger(t)
	s, err := servo.New(cfg, w, clock.New(), logger)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, s.SetWheelSpeeds(ctx, 1, -1), test.ShouldBeNil)
	_, err = s.SetPanAngle(ctx, 30)
	test.That(t, err, test.ShouldBeNil)
	w.Clear()

	test.That(t, s.SoftReset(ctx), test.ShouldBeNil)
	writes := w.Writes()
	test.That(t, writes, test.ShouldHaveLength, cfg.NumChannels+1)
	for ch := 0; ch < cfg.NumChannels; ch++ {
		test.That(t, writes[ch], test.ShouldResemble, fake.Write{Channel: ch, Duty: 0})
	}
	test.That(t, writes[cfg.NumChannels], test.ShouldResemble, fake.Write{Channel: cfg.PanChannel, Duty: 1500})
	test.That(t, s.PanAngle(), test.ShouldEqual, 0.0)
	left, right := s.WheelSpeeds()
	test.That(t, left, test.ShouldEqual, 0.0)
	test.That(t, right, test.ShouldEqual, 0.0)
	test.That(t, logs.FilterMessage("servos reset").Len(), test.ShouldEqual, 1)
}

func TestSoftResetCountdownCanceled(t *testing.T) {
	w := fake.NewDutyWriter()
	cfg := testConfig()
	cfg.ResetCountdown = 3
	logger, logs := logging.NewObservedTestLogger(t)
	s, err := servo.New(cfg, w, clock.New(), logger)
	test.That(t, err, test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.SoftReset(ctx)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	test.That(t, logs.FilterMessage("3 seconds remaining").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterMessage("2 seconds remaining").Len(), test.ShouldEqual, 0)
	duty, _ := w.Duty(cfg.PanChannel)
	test.That(t, duty, test.ShouldEqual, 1500)
}

func TestSoftResetCountdown(t *testing.T) {
	w := fake.NewDutyWriter()
	cfg := testConfig()
	cfg.ResetCountdown = 2
	mock := clock.NewMock()
	logger, logs := logging.NewObservedTestLogger(t)
	s, err := servo.New(cfg, w, mock, logger)
	test.That(t, err, test.ShouldBeNil)

	done := make(chan error, 1)
	go func() {
		done <- s.SoftReset(context.Background())
	}()
	for logs.FilterMessage("servos reset").Len() == 0 {
		mock.Add(100 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
	test.That(t, <-done, test.ShouldBeNil)
	test.That(t, logs.FilterMessage("2 seconds remaining").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterMessage("1 seconds remaining").Len(), test.ShouldEqual, 1)
}
