// Package pid implements the roll stabilization controllers.
package pid

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/felixge/pidctrl"
)

// Controller turns an attitude error into an actuator command.
type Controller interface {
	// Update advances the controller by dt seconds and returns the clamped output.
	Update(target, current, dt float64) float64
	// Reset zeroes the integral and derivative memory. Call it on any
	// discontinuous mode change.
	Reset()
	SetGains(kp, ki, kd float64)
}

// Kind selects the controller flavour.
type Kind string

const (
	// ErrorKind integrates the error with its own integral clamp.
	ErrorKind Kind = "error"
	// SetpointKind tracks a setpoint with derivative on measurement.
	SetpointKind Kind = "setpoint"
)

var ErrBadConfig = errors.New("pid: invalid configuration")

type Config struct {
	Kind          Kind    `yaml:"kind" json:"kind"`
	Kp            float64 `yaml:"kp" json:"kp"`
	Ki            float64 `yaml:"ki" json:"ki"`
	Kd            float64 `yaml:"kd" json:"kd"`
	IntegralLimit float64 `yaml:"integral_limit" json:"integral_limit"` // ±, error·s
	OutMin        float64 `yaml:"out_min" json:"out_min"`
	OutMax        float64 `yaml:"out_max" json:"out_max"`
	MinDt         float64 `yaml:"min_dt" json:"min_dt"` // seconds
}

func DefaultConfig() Config {
	return Config{
		Kind:          ErrorKind,
		Kp:            1.5,
		Ki:            0.1,
		Kd:            0.05,
		IntegralLimit: 45,
		OutMin:        -90,
		OutMax:        90,
		MinDt:         1e-3,
	}
}

// DefaultSetpointConfig mirrors the wider ±180° output of the setpoint loop.
func DefaultSetpointConfig() Config {
	c := DefaultConfig()
	c.Kind = SetpointKind
	c.OutMin, c.OutMax = -180, 180
	return c
}

func (c Config) Validate() error {
	if c.Kind != ErrorKind && c.Kind != SetpointKind {
		return fmt.Errorf("%w: unknown kind %q", ErrBadConfig, c.Kind)
	}
	if c.Kp < 0 || c.Ki < 0 || c.Kd < 0 {
		return fmt.Errorf("%w: negative gain (kp=%v ki=%v kd=%v)", ErrBadConfig, c.Kp, c.Ki, c.Kd)
	}
	if !(c.OutMin < c.OutMax) {
		return fmt.Errorf("%w: output range [%v, %v] is empty", ErrBadConfig, c.OutMin, c.OutMax)
	}
	if c.Kind == ErrorKind && c.IntegralLimit <= 0 {
		return fmt.Errorf("%w: integral_limit must be positive", ErrBadConfig)
	}
	if c.MinDt <= 0 {
		return fmt.Errorf("%w: min_dt must be positive", ErrBadConfig)
	}
	return nil
}

// New builds the controller selected by cfg.Kind.
func New(cfg Config) (Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Kind == SetpointKind {
		return NewSetpoint(cfg), nil
	}
	return NewPID(cfg), nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// PID is the error-driven controller: output = kp·e + ki·∫e·dt + kd·de/dt.
type PID struct {
	cfg       Config
	integral  float64
	prevError float64
	primed    bool
}

func NewPID(cfg Config) *PID {
	return &PID{cfg: cfg}
}

// Compute advances the controller with the given error. dt is floored to
// MinDt; the integral is held within ±IntegralLimit and the output within
// [OutMin, OutMax].
func (p *PID) Compute(err, dt float64) float64 {
	if !(dt >= p.cfg.MinDt) {
		dt = p.cfg.MinDt
	}
	p.integral = clamp(p.integral+err*dt, -p.cfg.IntegralLimit, p.cfg.IntegralLimit)

	var deriv float64
	if p.primed {
		deriv = (err - p.prevError) / dt
	}
	p.prevError, p.primed = err, true

	out := p.cfg.Kp*err + p.cfg.Ki*p.integral + p.cfg.Kd*deriv
	return clamp(out, p.cfg.OutMin, p.cfg.OutMax)
}

func (p *PID) Update(target, current, dt float64) float64 {
	return p.Compute(target-current, dt)
}

func (p *PID) Reset() {
	p.integral, p.prevError, p.primed = 0, 0, false
}

func (p *PID) SetGains(kp, ki, kd float64) {
	p.cfg.Kp, p.cfg.Ki, p.cfg.Kd = kp, ki, kd
}

// Integral returns the accumulated error·s.
func (p *PID) Integral() float64 { return p.integral }

// Setpoint tracks a target with pidctrl: derivative on the measurement and
// the integral bounded by the output limits.
type Setpoint struct {
	cfg    Config
	ctrl   *pidctrl.PIDController
	primed bool
}

func NewSetpoint(cfg Config) *Setpoint {
	s := &Setpoint{cfg: cfg}
	s.Reset()
	return s
}

func (s *Setpoint) Update(target, current, dt float64) float64 {
	if !(dt >= s.cfg.MinDt) {
		dt = s.cfg.MinDt
	}
	if !s.primed {
		// Seed the measurement history so the first derivative is not a kick.
		s.ctrl.Set(current)
		s.ctrl.UpdateDuration(current, 0)
		s.primed = true
	}
	s.ctrl.Set(target)
	out := s.ctrl.UpdateDuration(current, time.Duration(dt*float64(time.Second)))
	return clamp(out, s.cfg.OutMin, s.cfg.OutMax)
}

// Reset rebuilds the underlying controller; pidctrl keeps no public reset.
func (s *Setpoint) Reset() {
	s.ctrl = pidctrl.NewPIDController(s.cfg.Kp, s.cfg.Ki, s.cfg.Kd)
	s.ctrl.SetOutputLimits(s.cfg.OutMin, s.cfg.OutMax)
	s.primed = false
}

func (s *Setpoint) SetGains(kp, ki, kd float64) {
	s.cfg.Kp, s.cfg.Ki, s.cfg.Kd = kp, ki, kd
	s.ctrl.SetPID(kp, ki, kd)
}
