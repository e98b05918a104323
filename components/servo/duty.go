package servo

import (
	"math"

	"github.com/pkg/errors"

	"github.com/cyber-run/OpenMV-H7/utils"
)

// dutyMap is the affine map from a normalized command to PWM duty ticks. A value of 0 maps to the
// middle of the pulse range and a value of +-0.5 to either end.
type dutyMap struct {
	min  int
	max  int
	mid  float64
	span float64
}

func newDutyMap(cfg Config) dutyMap {
	periodUs := 1e6 / cfg.FrequencyHz
	usToDuty := func(us float64) int {
		return int(float64(cfg.Resolution) * us / periodUs)
	}
	minDuty, maxDuty := usToDuty(cfg.PulseMinUs), usToDuty(cfg.PulseMaxUs)
	return dutyMap{
		min:  minDuty,
		max:  maxDuty,
		mid:  float64(minDuty+maxDuty) / 2,
		span: float64(maxDuty - minDuty),
	}
}

// duty converts value/scale to ticks, clamped to the pulse range.
func (m dutyMap) duty(value, scale float64) int {
	d := m.mid + m.span*(value/scale)
	return utils.ClampInt(int(math.Round(d)), m.min, m.max)
}

// angleDuty converts a physical pan angle to ticks.
func (m dutyMap) angleDuty(angle, degrees float64) int {
	return m.duty(angle, degrees)
}

// speedDuty converts a wheel speed in [-1, 1] to ticks. zero is the wheel's static trim and
// direction +-1 mirrors the wheel.
func (m dutyMap) speedDuty(speed, zero, direction float64) int {
	return m.duty(direction*(speed+zero), 2)
}

// SpeedCurve inverts a sine fit of measured wheel speed against throttle,
// speed = YScale*sin((throttle-Shift)/XScale), so a requested speed can be turned into the
// throttle that produces it. Forward and Reverse are fitted separately. A zero curve is the
// identity.
type SpeedCurve struct {
	Forward SineFit `json:"forward"`
	Reverse SineFit `json:"reverse"`
}

// SineFit holds the coefficients of one side of a SpeedCurve.
type SineFit struct {
	Shift  float64 `json:"shift"`
	XScale float64 `json:"xscale"`
	YScale float64 `json:"yscale"`
}

func (f SineFit) zero() bool {
	return f.Shift == 0 && f.XScale == 0 && f.YScale == 0
}

func (f SineFit) validate() error {
	if f.zero() {
		return nil
	}
	if f.YScale == 0 {
		return errors.New("yscale cannot be 0 in a non empty fit")
	}
	return nil
}

func (f SineFit) throttle(speed float64) float64 {
	if f.zero() {
		return speed
	}
	return f.XScale*math.Asin(utils.Clamp(speed/f.YScale, -1, 1)) + f.Shift
}

// IsIdentity reports whether the curve leaves speeds unchanged.
func (c SpeedCurve) IsIdentity() bool {
	return c.Forward.zero() && c.Reverse.zero()
}

// Validate ensures the curve can be inverted.
func (c SpeedCurve) Validate() error {
	if err := c.Forward.validate(); err != nil {
		return errors.Wrap(err, "forward")
	}
	return errors.Wrap(c.Reverse.validate(), "reverse")
}

// Throttle returns the throttle in [-1, 1] that yields speed.
func (c SpeedCurve) Throttle(speed float64) float64 {
	if c.IsIdentity() || speed == 0 {
		return speed
	}
	if speed > 0 {
		return utils.ClampUnit(c.Forward.throttle(speed))
	}
	return utils.ClampUnit(c.Reverse.throttle(speed))
}
