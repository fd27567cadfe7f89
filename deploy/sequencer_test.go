package deploy

import (
	"errors"
	"testing"
	"time"

	"github.com/rocketfc/rocketfc/flight"
)

type command struct {
	channel uint8
	deg     float64
}

type fakeActuator struct {
	cmds []command
	fail bool
}

func (f *fakeActuator) SetPosition(channel uint8, deg float64) error {
	f.cmds = append(f.cmds, command{channel, deg})
	if f.fail {
		return errors.New("i2c nack")
	}
	return nil
}

func newSequencer(t *testing.T, cfg Config) (*Sequencer, *fakeActuator) {
	t.Helper()
	act := &fakeActuator{}
	s, err := NewSequencer(cfg, act)
	if err != nil {
		t.Fatal(err)
	}
	return s, act
}

func TestIdleUntilTrigger(t *testing.T) {
	s, act := newSequencer(t, DefaultConfig())
	for _, ph := range []flight.State{flight.Standby, flight.Launched, flight.Powered, flight.Coasting} {
		for i := 0; i < 10; i++ {
			if st := s.Update(ph, flight.Faults{}, time.Second); st != Idle {
				t.Fatalf("%s: sequencer left IDLE", ph)
			}
		}
	}
	if len(act.cmds) != 0 {
		t.Errorf("IDLE issued %d commands", len(act.cmds))
	}
	if s.Deployed() {
		t.Error("deployed before apogee")
	}
}

func TestSequence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PunchTicks, cfg.LockTicks = 3, 2
	s, act := newSequencer(t, cfg)

	want := []State{Punch, Punch, Punch, Lock, Lock, Done, Done, Done}
	for i, w := range want {
		if got := s.Update(flight.Apogee, flight.Faults{}, 5*time.Second); got != w {
			t.Fatalf("tick %d: state %s, want %s", i, got, w)
		}
		if !s.Deployed() {
			t.Fatalf("tick %d: deployed not latched", i)
		}
	}
	if len(act.cmds) != len(want) {
		t.Fatalf("%d commands, want one per non-IDLE tick (%d)", len(act.cmds), len(want))
	}
	for i, c := range act.cmds {
		wantDeg := cfg.LockAngle
		if want[i] == Punch {
			wantDeg = cfg.PunchAngle
		}
		if c.channel != cfg.Channel || c.deg != wantDeg {
			t.Errorf("command %d = %+v, want channel %d at %v", i, c, cfg.Channel, wantDeg)
		}
	}
}

// Re-triggering the predicates after deployment must never fire again.
func TestIrreversible(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PunchTicks, cfg.LockTicks = 2, 2
	s, act := newSequencer(t, cfg)

	s.Update(flight.Apogee, flight.Faults{}, 0)
	phases := []flight.State{flight.Apogee, flight.Descent, flight.Apogee, flight.Standby, flight.Landed}
	punches := 0
	for i := 0; i < 200; i++ {
		prev := s.State()
		st := s.Update(phases[i%len(phases)], flight.Faults{Baro: i%3 == 0}, time.Hour)
		if st < prev {
			t.Fatalf("tick %d: went back from %s to %s", i, prev, st)
		}
		if !s.Deployed() {
			t.Fatalf("tick %d: deployed cleared", i)
		}
	}
	for _, c := range act.cmds {
		if c.deg == cfg.PunchAngle {
			punches++
		}
	}
	if punches != cfg.PunchTicks {
		t.Errorf("punch commanded %d times, want %d", punches, cfg.PunchTicks)
	}
	if s.State() != Done {
		t.Errorf("state %s, want DONE", s.State())
	}
}

func TestDescentTrigger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Trigger = flight.Descent
	s, _ := newSequencer(t, cfg)
	if s.Update(flight.Apogee, flight.Faults{}, 0) != Idle {
		t.Error("fired at APOGEE with a DESCENT trigger")
	}
	if s.Update(flight.Descent, flight.Faults{}, 0) != Punch {
		t.Error("did not fire at DESCENT")
	}
}

func TestBaroFaultDefers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackupDelay = 0
	s, _ := newSequencer(t, cfg)
	if s.Update(flight.Apogee, flight.Faults{Baro: true}, 0) != Idle {
		t.Error("fired on a faulted barometer tick")
	}
	if s.Update(flight.Apogee, flight.Faults{}, 0) != Punch {
		t.Error("did not fire once the barometer recovered")
	}
}

func TestBackupTimer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackupDelay = 10 * time.Second
	s, _ := newSequencer(t, cfg)
	if s.Update(flight.Coasting, flight.Faults{Baro: true}, 9*time.Second) != Idle {
		t.Error("fired before the backup delay")
	}
	if s.Update(flight.Standby, flight.Faults{}, time.Minute) != Idle {
		t.Error("backup timer fired on the pad")
	}
	if s.Update(flight.Coasting, flight.Faults{Baro: true}, 10*time.Second) != Punch {
		t.Error("backup timer did not fire")
	}
}

func TestArm(t *testing.T) {
	s, act := newSequencer(t, DefaultConfig())
	if err := s.Arm(); err != nil {
		t.Fatal(err)
	}
	if len(act.cmds) != 1 || act.cmds[0].deg != DefaultConfig().ArmAngle {
		t.Errorf("Arm issued %+v", act.cmds)
	}
	s.Update(flight.Apogee, flight.Faults{}, 0)
	n := len(act.cmds)
	s.Arm()
	if len(act.cmds) != n {
		t.Error("Arm after deployment moved the servo")
	}
}

func TestActuatorErrorsCounted(t *testing.T) {
	s, act := newSequencer(t, DefaultConfig())
	act.fail = true
	s.Update(flight.Apogee, flight.Faults{}, 0)
	s.Update(flight.Apogee, flight.Faults{}, 0)
	if s.ActuatorErrors() != 2 {
		t.Errorf("ActuatorErrors = %d, want 2", s.ActuatorErrors())
	}
	if !s.Deployed() {
		t.Error("actuator failure cleared the deployed latch")
	}
}

func TestConfigValidate(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.Trigger = flight.Coasting },
		func(c *Config) { c.PunchAngle = 181 },
		func(c *Config) { c.LockAngle = -1 },
		func(c *Config) { c.PunchTicks = 0 },
		func(c *Config) { c.BackupDelay = -time.Second },
	}
	for i, mut := range bad {
		cfg := DefaultConfig()
		mut(&cfg)
		if _, err := NewSequencer(cfg, &fakeActuator{}); err == nil {
			t.Errorf("case %d: expected an error", i)
		}
	}
	if _, err := NewSequencer(DefaultConfig(), nil); err == nil {
		t.Error("nil actuator accepted")
	}
}
