// Package control implements the pieces of the pan tracking loop: the angle error estimated
// from a blob and the PID controller turning that error into a pan increment.
package control

import (
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/cyber-run/OpenMV-H7/utils"
)

// PIDConfig holds the controller gains. IMax bounds the magnitude of the integral term; with
// IMax 0 the integral never accumulates.
type PIDConfig struct {
	P    float64 `json:"p"`
	I    float64 `json:"i"`
	D    float64 `json:"d"`
	IMax float64 `json:"imax"`
}

// DefaultPIDConfig is the proportional only tuning the pan loop ships with.
func DefaultPIDConfig() PIDConfig {
	return PIDConfig{P: 0.22}
}

// Validate ensures the gains are usable.
func (cfg PIDConfig) Validate() error {
	for name, v := range map[string]float64{"p": cfg.P, "i": cfg.I, "d": cfg.D, "imax": cfg.IMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("pid gain %s must be finite", name)
		}
	}
	if cfg.IMax < 0 {
		return errors.New("pid imax cannot be negative")
	}
	return nil
}

// PID is a discrete PID controller. Its state is only cleared by Reset.
type PID struct {
	mu       sync.Mutex
	cfg      PIDConfig
	integral float64
	lastErr  float64
	lastTime time.Time
	primed   bool
}

// NewPID returns a controller with the given gains.
func NewPID(cfg PIDConfig) *PID {
	return &PID{cfg: cfg}
}

// Output returns the control increment for err, dt after the previous sample. A dt <= 0 adds no
// derivative and a negative dt adds no integral either.
func (p *PID) Output(err float64, dt time.Duration) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.output(err, dt)
}

func (p *PID) output(err float64, dt time.Duration) float64 {
	dtS := dt.Seconds()
	if dtS > 0 {
		p.integral += p.cfg.I * err * dtS
	}
	p.integral = utils.Clamp(p.integral, -p.cfg.IMax, p.cfg.IMax)

	deriv := 0.0
	if p.primed && dtS > 0 {
		deriv = p.cfg.D * (err - p.lastErr) / dtS
	}
	p.lastErr = err
	p.primed = true
	return p.cfg.P*err + p.integral + deriv
}

// Update is Output with dt measured from the previous Update. The first call after construction
// or Reset uses dt 0.
func (p *PID) Update(err float64, now time.Time) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var dt time.Duration
	if !p.lastTime.IsZero() {
		dt = now.Sub(p.lastTime)
	}
	p.lastTime = now
	return p.output(err, dt)
}

// Reset clears the integral, the last error and the last sample time.
func (p *PID) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.integral = 0
	p.lastErr = 0
	p.lastTime = time.Time{}
	p.primed = false
}

// Integral returns the accumulated integral term.
func (p *PID) Integral() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.integral
}

// Config returns the controller gains.
func (p *PID) Config() PIDConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}
