package pid

import (
	"math"
	"testing"
)

const tolerance = 1e-9

func TestProportionalOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kp, cfg.Ki, cfg.Kd = 2, 0, 0
	p := NewPID(cfg)
	tests := []struct{ err, want float64 }{
		{0, 0},
		{10, 20},
		{-10, -20},
		{44, 88},
		{45, 90},
		{46, 90},
		{-46, -90},
		{1000, 90},
	}
	for _, tt := range tests {
		if got := p.Compute(tt.err, 0.01); math.Abs(got-tt.want) > tolerance {
			t.Errorf("Compute(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestIntegralClamp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kp, cfg.Ki, cfg.Kd = 0, 1, 0
	p := NewPID(cfg)
	for i := 0; i < 10000; i++ {
		out := p.Compute(100, 0.02)
		if out > cfg.OutMax || out < cfg.OutMin {
			t.Fatalf("tick %d: output %v outside clamp", i, out)
		}
		if math.Abs(p.Integral()) > cfg.IntegralLimit {
			t.Fatalf("tick %d: integral %v beyond ±%v", i, p.Integral(), cfg.IntegralLimit)
		}
	}
	if p.Integral() != cfg.IntegralLimit {
		t.Errorf("integral = %v, want it pinned at %v", p.Integral(), cfg.IntegralLimit)
	}
	// The wound-up integral unwinds as soon as the error reverses.
	p.Compute(-100, 0.02)
	if p.Integral() >= cfg.IntegralLimit {
		t.Errorf("integral %v did not unwind", p.Integral())
	}
}

func TestDerivative(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kp, cfg.Ki, cfg.Kd = 0, 0, 1
	p := NewPID(cfg)
	if got := p.Compute(5, 0.1); got != 0 {
		t.Errorf("first tick derivative = %v, want 0", got)
	}
	if got := p.Compute(6, 0.1); math.Abs(got-10) > 1e-6 {
		t.Errorf("derivative = %v, want 10", got)
	}
}

func TestDtFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kp, cfg.Ki, cfg.Kd = 0, 1, 0
	for _, dt := range []float64{0, -1, math.NaN()} {
		p := NewPID(cfg)
		out := p.Compute(10, dt)
		if math.IsNaN(out) || math.IsInf(out, 0) {
			t.Fatalf("dt=%v produced %v", dt, out)
		}
		if math.Abs(p.Integral()-10*cfg.MinDt) > tolerance {
			t.Errorf("dt=%v: integral %v, want %v", dt, p.Integral(), 10*cfg.MinDt)
		}
	}
}

func TestReset(t *testing.T) {
	p := NewPID(DefaultConfig())
	for i := 0; i < 50; i++ {
		p.Compute(30, 0.02)
	}
	p.Reset()
	if p.Integral() != 0 {
		t.Errorf("integral %v after Reset", p.Integral())
	}
	fresh := NewPID(DefaultConfig())
	if a, b := p.Compute(7, 0.02), fresh.Compute(7, 0.02); a != b {
		t.Errorf("reset controller gave %v, fresh gave %v", a, b)
	}
}

func TestSetGains(t *testing.T) {
	p := NewPID(DefaultConfig())
	p.SetGains(3, 0, 0)
	if got := p.Update(10, 5, 0.02); math.Abs(got-15) > tolerance {
		t.Errorf("Update = %v, want 15", got)
	}
}

func TestSetpointClamp(t *testing.T) {
	cfg := DefaultSetpointConfig()
	cfg.Kp, cfg.Ki, cfg.Kd = 10, 0, 0
	s := NewSetpoint(cfg)
	if got := s.Update(100, 0, 0.02); got != 180 {
		t.Errorf("Update = %v, want 180", got)
	}
	if got := s.Update(-100, 0, 0.02); got != -180 {
		t.Errorf("Update = %v, want -180", got)
	}
	if got := s.Update(5, 0, 0.02); math.Abs(got-50) > 1e-6 {
		t.Errorf("Update = %v, want 50", got)
	}
}

func TestSetpointIntegralBounded(t *testing.T) {
	cfg := DefaultSetpointConfig()
	cfg.Kp, cfg.Ki, cfg.Kd = 0, 5, 0
	s := NewSetpoint(cfg)
	for i := 0; i < 5000; i++ {
		if out := s.Update(90, 0, 0.02); out > cfg.OutMax {
			t.Fatalf("tick %d: %v above %v", i, out, cfg.OutMax)
		}
	}
	s.Reset()
	if got := s.Update(0, 0, 0.02); got != 0 {
		t.Errorf("after Reset output = %v, want 0", got)
	}
}

func TestNewSelectsKind(t *testing.T) {
	c, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*PID); !ok {
		t.Errorf("New(error kind) = %T", c)
	}
	c, err = New(DefaultSetpointConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*Setpoint); !ok {
		t.Errorf("New(setpoint kind) = %T", c)
	}
}

func TestConfigValidate(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.Kind = "fuzzy" },
		func(c *Config) { c.Kp = -1 },
		func(c *Config) { c.OutMin, c.OutMax = 10, 10 },
		func(c *Config) { c.IntegralLimit = 0 },
		func(c *Config) { c.MinDt = 0 },
	}
	for i, mut := range bad {
		cfg := DefaultConfig()
		mut(&cfg)
		if _, err := New(cfg); err == nil {
			t.Errorf("case %d: expected an error", i)
		}
	}
}
