/*
	Copyright (c) 2026 The rocketfc Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	computer.go: The per-tick flight pipeline. Estimate attitude, classify the
	phase, run the stabilization loop, sequence deployment, emit a record.
*/

// Package computer runs the flight pipeline, one sensor frame per tick.
package computer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rocketfc/rocketfc/attitude"
	"github.com/rocketfc/rocketfc/deploy"
	"github.com/rocketfc/rocketfc/flight"
	"github.com/rocketfc/rocketfc/log"
	"github.com/rocketfc/rocketfc/model"
	"github.com/rocketfc/rocketfc/pid"
	"github.com/rocketfc/rocketfc/record"
)

var ErrBadConfig = errors.New("computer: invalid configuration")

// Config gathers the tuning of every pipeline stage.
type Config struct {
	Attitude attitude.Config `yaml:"attitude" json:"attitude"`
	Flight   flight.Config   `yaml:"flight" json:"flight"`
	Control  pid.Config      `yaml:"control" json:"control"`
	Deploy   deploy.Config   `yaml:"deploy" json:"deploy"`

	ServoChannel uint8        `yaml:"servo_channel" json:"servo_channel"`
	ServoNeutral float64      `yaml:"servo_neutral" json:"servo_neutral"`
	ControlFrom  flight.State `yaml:"control_from" json:"control_from"`
	ControlUntil flight.State `yaml:"control_until" json:"control_until"`
	MaxDt        float64      `yaml:"max_dt" json:"max_dt"`
}

func DefaultConfig() Config {
	return Config{
		Attitude:     attitude.DefaultConfig(),
		Flight:       flight.DefaultConfig(),
		Control:      pid.DefaultConfig(),
		Deploy:       deploy.DefaultConfig(),
		ServoChannel: 0,
		ServoNeutral: 90,
		ControlFrom:  flight.Launched,
		ControlUntil: flight.Coasting,
		MaxDt:        0.2,
	}
}

// stages copies the stall ceiling into the estimator and classifier tuning.
func (c Config) stages() Config {
	c.Attitude.MaxDt = c.MaxDt
	c.Flight.MaxDt = c.MaxDt
	return c
}

func (c Config) Validate() error {
	if c.MaxDt <= 0 {
		return fmt.Errorf("%w: max_dt must be positive", ErrBadConfig)
	}
	c = c.stages()
	for _, err := range []error{c.Attitude.Validate(), c.Flight.Validate(), c.Control.Validate(), c.Deploy.Validate()} {
		if err != nil {
			return err
		}
	}
	switch {
	case c.ServoChannel == c.Deploy.Channel:
		return fmt.Errorf("%w: stabilizer and deployment share servo channel %d", ErrBadConfig, c.ServoChannel)
	case c.ServoNeutral < 0 || c.ServoNeutral > 180:
		return fmt.Errorf("%w: servo_neutral %v outside [0, 180]", ErrBadConfig, c.ServoNeutral)
	case c.ControlFrom > c.ControlUntil:
		return fmt.Errorf("%w: control window %s..%s is empty", ErrBadConfig, c.ControlFrom, c.ControlUntil)
	}
	return nil
}

// Computer owns the core components. It is driven from a single goroutine.
type Computer struct {
	cfg     Config
	est     *attitude.Estimator
	cls     *flight.Classifier
	ctl     pid.Controller
	seq     *deploy.Sequencer
	act     deploy.Actuator
	sink    record.Sink
	metrics *Metrics

	n           uint32
	lastT       time.Duration
	primed      bool
	launched    bool
	liftoffAt   time.Duration
	controlling bool
	target      float64
	output      float64
	servo       float64

	gains chan [3]float64
}

// New validates cfg and wires the pipeline. sink and metrics may be nil.
func New(cfg Config, act deploy.Actuator, sink record.Sink, metrics *Metrics) (*Computer, error) {
	cfg = cfg.stages()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	est, err := attitude.New(cfg.Attitude)
	if err != nil {
		return nil, err
	}
	cls, err := flight.NewClassifier(cfg.Flight)
	if err != nil {
		return nil, err
	}
	ctl, err := pid.New(cfg.Control)
	if err != nil {
		return nil, err
	}
	seq, err := deploy.NewSequencer(cfg.Deploy, act)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = record.MultiSink(nil)
	}
	return &Computer{
		cfg:     cfg,
		est:     est,
		cls:     cls,
		ctl:     ctl,
		seq:     seq,
		act:     act,
		sink:    sink,
		metrics: metrics,
		servo:   cfg.ServoNeutral,
		gains:   make(chan [3]float64, 1),
	}, nil
}

// Start arms the deployment mechanism and centers the stabilizer.
func (c *Computer) Start() error {
	if err := c.seq.Arm(); err != nil {
		return fmt.Errorf("arm deployment servo: %w", err)
	}
	if err := c.act.SetPosition(c.cfg.ServoChannel, c.cfg.ServoNeutral); err != nil {
		return fmt.Errorf("center stabilizer servo: %w", err)
	}
	return nil
}

// SetGains retunes the stabilization controller. It is safe to call from
// any goroutine; the gains take effect at the start of the next tick.
func (c *Computer) SetGains(kp, ki, kd float64) {
	g := [3]float64{kp, ki, kd}
	for {
		select {
		case c.gains <- g:
			return
		default:
		}
		// Replace a pending update that has not been applied yet.
		select {
		case <-c.gains:
		default:
		}
	}
}

func (c *Computer) State() flight.State       { return c.cls.State() }
func (c *Computer) Attitude() attitude.Attitude { return c.est.Attitude() }

// Tick runs one frame through the pipeline and returns its record.
func (c *Computer) Tick(f model.Frame) record.FlightRecord {
	select {
	case g := <-c.gains:
		c.ctl.SetGains(g[0], g[1], g[2])
		log.Infof("Control Info: gains set to kp=%v ki=%v kd=%v", g[0], g[1], g[2])
	default:
	}

	var dt float64
	if c.primed {
		dt = (f.T - c.lastT).Seconds()
	}
	c.lastT, c.primed = f.T, true
	stalled := !(dt > 0 && dt <= c.cfg.MaxDt)

	att := c.est.Update(f.Imu, f.Mag, dt)
	state := c.cls.Update(f, dt)
	faults := c.cls.Faults()
	if state >= flight.Launched && !c.launched {
		c.launched, c.liftoffAt = true, f.T
	}

	rocketRoll := att.Yaw
	c.stabilize(state, att, rocketRoll, dt, stalled)

	var since time.Duration
	if c.launched {
		since = f.T - c.liftoffAt
	}
	dstate := c.seq.Update(state, faults, since)

	c.n++
	rec := record.FlightRecord{
		Seq:           c.n,
		TimeMs:        uint32(f.T.Milliseconds()),
		Imu:           f.Imu,
		Mag:           f.Mag,
		Baro:          f.Baro,
		Gps:           f.Gps,
		Attitude:      att,
		RocketRoll:    rocketRoll,
		State:         state,
		Faults:        faults,
		Deploy:        dstate,
		Deployed:      c.seq.Deployed(),
		ControlOutput: c.output,
		ServoDeg:      c.servo,
		Stalled:       stalled,
	}
	if c.metrics != nil {
		c.metrics.Observe(rec)
	}
	c.sink.Send(rec)
	return rec
}

// stabilize holds the spin angle captured at liftoff while the phase is
// inside the control window, and centers the servo outside it.
func (c *Computer) stabilize(state flight.State, att attitude.Attitude, roll, dt float64, stalled bool) {
	active := att.Valid && state >= c.cfg.ControlFrom && state <= c.cfg.ControlUntil
	switch {
	case active && !c.controlling:
		c.ctl.Reset()
		c.target, c.controlling = roll, true
		log.Infof("Control Info: holding roll %.1f in %s", roll, state)
	case !active && c.controlling:
		c.ctl.Reset()
		c.controlling = false
		log.Infof("Control Info: released in %s", state)
	}
	if stalled {
		return
	}

	c.output = 0
	if c.controlling {
		// Feed the wrapped error so ±180° crossings do not kick the loop.
		current := c.target - attitude.WrapDeg(c.target-roll)
		c.output = c.ctl.Update(c.target, current, dt)
	}
	c.servo = attitude.Clamp(c.cfg.ServoNeutral+c.output, 0, 180)
	if err := c.act.SetPosition(c.cfg.ServoChannel, c.servo); err != nil {
		log.Errorf("Control Error: set position %.1f: %s", c.servo, err)
	}
}

// Source produces sensor frames. Read blocks until the next frame is ready.
type Source interface {
	Read(ctx context.Context) (model.Frame, error)
}

// MaxReadErrors is how many consecutive failed reads Run tolerates.
const MaxReadErrors = 5

// Run ticks the computer once per period until ctx is done or the source is
// exhausted (io.EOF). A zero period ticks as fast as the source delivers.
func (c *Computer) Run(ctx context.Context, src Source, period time.Duration) error {
	var tick <-chan time.Time
	if period > 0 {
		t := time.NewTicker(period)
		defer t.Stop()
		tick = t.C
	}
	failures := 0
	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		f, err := src.Read(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			failures++
			log.Warnf("Sensor Error: read failed (%d/%d): %s", failures, MaxReadErrors, err)
			if failures >= MaxReadErrors {
				return fmt.Errorf("sensor read failed %d times: %w", failures, err)
			}
			continue
		}
		failures = 0
		c.Tick(f)
	}
}
