// Package pca9685 writes servo duties to a PCA9685 16 channel PWM controller over I2C.
package pca9685

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	viamutils "go.viam.com/utils"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/pca9685"
	"periph.io/x/host/v3"

	"github.com/cyber-run/OpenMV-H7/logging"
	"github.com/cyber-run/OpenMV-H7/utils"
)

// NumChannels is the number of PWM outputs of the chip.
const NumChannels = 16

// maxDuty is the largest 12 bit off count.
const maxDuty = 4095

// Config selects the bus and address of the controller.
type Config struct {
	Bus         string  `json:"i2c_bus"`
	Address     uint16  `json:"i2c_address"`
	FrequencyHz float64 `json:"frequency_hz"`
}

// DefaultConfig is the servo shield on the first I2C bus.
func DefaultConfig() Config {
	return Config{Bus: "I2C1", Address: 0x40, FrequencyHz: 50}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Bus == "" {
		return viamutils.NewConfigValidationFieldRequiredError(path, "i2c_bus")
	}
	if cfg.Address == 0 || cfg.Address > 0x7f {
		return viamutils.NewConfigValidationError(path, errors.Errorf("i2c_address 0x%x is not a 7 bit address", cfg.Address))
	}
	if cfg.FrequencyHz < 24 || cfg.FrequencyHz > 1526 {
		return viamutils.NewConfigValidationError(path, utils.NewOutOfRangeError("frequency_hz", cfg.FrequencyHz, 24, 1526))
	}
	return nil
}

// Driver is a servo.DutyWriter backed by a PCA9685.
type Driver struct {
	mu     sync.Mutex
	bus    i2c.BusCloser
	dev    *pca9685.Dev
	logger logging.Logger
}

// Open initializes the host drivers, opens the bus and sets the PWM frequency.
func Open(cfg Config, logger logging.Logger) (*Driver, error) {
	if err := cfg.Validate("hardware"); err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "couldn't initialize host drivers")
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't open i2c bus %q", cfg.Bus)
	}
	dev, err := pca9685.NewI2C(bus, cfg.Address)
	if err != nil {
		return nil, errors.Wrap(multierrClose(err, bus), "couldn't reach pca9685")
	}
	if err := dev.SetPwmFreq(physic.Hertz * physic.Frequency(cfg.FrequencyHz)); err != nil {
		return nil, errors.Wrap(multierrClose(err, bus), "couldn't set pwm frequency")
	}
	logger.Infow("pca9685 ready", "bus", cfg.Bus, "address", cfg.Address, "frequency_hz", cfg.FrequencyHz)
	return &Driver{bus: bus, dev: dev, logger: logger}, nil
}

// SetDuty sets the off count of channel. Duty 0 turns the output fully off.
func (d *Driver) SetDuty(ctx context.Context, channel, duty int) error {
	if channel < 0 || channel >= NumChannels {
		return errors.Errorf("pca9685 channel %d out of range", channel)
	}
	if duty < 0 || duty > maxDuty {
		return errors.Errorf("pca9685 duty %d out of range [0, %d]", duty, maxDuty)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if duty == 0 {
		return d.dev.SetFullOff(channel)
	}
	return d.dev.SetPwm(channel, 0, gpio.Duty(duty))
}

// Close turns every output off and releases the bus.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.dev.SetAllPwm(0, 0)
	return multierrClose(err, d.bus)
}
