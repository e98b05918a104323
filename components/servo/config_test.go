package servo

import (
	"testing"
	"time"

	"go.viam.com/test"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	test.That(t, cfg.Validate("servo"), test.ShouldBeNil)
	test.That(t, cfg.MinDeg(), test.ShouldEqual, -60.0)
	test.That(t, cfg.MaxDeg(), test.ShouldEqual, 60.0)

	for _, tc := range []struct {
		name   string
		mutate func(*Config)
		errStr string
	}{
		{"channels", func(c *Config) { c.NumChannels = 0 }, "num_channels"},
		{"pan range", func(c *Config) { c.PanChannel = 16 }, "pan_channel"},
		{"shared channel", func(c *Config) { c.LeftChannel = c.RightChannel }, "must differ"},
		{"degrees", func(c *Config) { c.Degrees = 0 }, "degrees"},
		{"direction", func(c *Config) { c.RightDirection = 0.5 }, "right_direction"},
		{"slew", func(c *Config) { c.Slew = -0.1 }, "slew"},
		{"step delay", func(c *Config) { c.StepDelay = -time.Millisecond }, "step_delay"},
		{"countdown", func(c *Config) { c.ResetCountdown = -1 }, "reset_countdown_s"},
		{"pulse", func(c *Config) { c.PulseMaxUs = c.PulseMinUs }, "pulse range"},
		{"period", func(c *Config) { c.FrequencyHz = 500 }, "period"},
		{"curve", func(c *Config) { c.LeftCurve.Forward.XScale = 1 }, "left_curve"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConfig()
			tc.mutate(&c)
			err := c.Validate("servo")
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errStr)
		})
	}
}
