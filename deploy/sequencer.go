// Package deploy sequences the one-shot parachute release.
package deploy

import (
	"errors"
	"fmt"
	"time"

	"github.com/rocketfc/rocketfc/flight"
	"github.com/rocketfc/rocketfc/log"
)

// State is the deployment sub-state. Like flight phases it only moves forward.
type State uint8

const (
	Idle State = iota
	Punch
	Lock
	Done
)

var stateNames = [...]string{"IDLE", "PUNCH", "LOCK", "DONE"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Actuator commands a servo channel to an angle in degrees.
type Actuator interface {
	SetPosition(channel uint8, deg float64) error
}

var ErrBadConfig = errors.New("deploy: invalid configuration")

type Config struct {
	Trigger     flight.State  `yaml:"trigger" json:"trigger"` // APOGEE or DESCENT
	Channel     uint8         `yaml:"channel" json:"channel"`
	ArmAngle    float64       `yaml:"arm_angle" json:"arm_angle"`
	PunchAngle  float64       `yaml:"punch_angle" json:"punch_angle"`
	LockAngle   float64       `yaml:"lock_angle" json:"lock_angle"`
	PunchTicks  int           `yaml:"punch_ticks" json:"punch_ticks"`
	LockTicks   int           `yaml:"lock_ticks" json:"lock_ticks"`
	BackupDelay time.Duration `yaml:"backup_delay" json:"backup_delay"` // after liftoff, 0 disables
}

func DefaultConfig() Config {
	return Config{
		Trigger:     flight.Apogee,
		Channel:     1,
		ArmAngle:    0,
		PunchAngle:  120,
		LockAngle:   90,
		PunchTicks:  25,
		LockTicks:   50,
		BackupDelay: 15 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.Trigger != flight.Apogee && c.Trigger != flight.Descent {
		return fmt.Errorf("%w: trigger must be APOGEE or DESCENT, got %s", ErrBadConfig, c.Trigger)
	}
	for _, a := range []float64{c.ArmAngle, c.PunchAngle, c.LockAngle} {
		if a < 0 || a > 180 {
			return fmt.Errorf("%w: angle %v outside [0, 180]", ErrBadConfig, a)
		}
	}
	if c.PunchTicks < 1 || c.LockTicks < 1 {
		return fmt.Errorf("%w: punch_ticks and lock_ticks must be at least 1", ErrBadConfig)
	}
	if c.BackupDelay < 0 {
		return fmt.Errorf("%w: negative backup_delay", ErrBadConfig)
	}
	return nil
}

// Sequencer drives IDLE -> PUNCH -> LOCK -> DONE. Once Deployed is set it
// stays set, the state never returns to IDLE or PUNCH, and the punch angle
// is never commanded again.
type Sequencer struct {
	cfg      Config
	act      Actuator
	state    State
	deployed bool
	ticks    int // ticks spent in the current state
	errs     int
}

func NewSequencer(cfg Config, act Actuator) (*Sequencer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if act == nil {
		return nil, fmt.Errorf("%w: nil actuator", ErrBadConfig)
	}
	return &Sequencer{cfg: cfg, act: act}, nil
}

func (s *Sequencer) State() State   { return s.state }
func (s *Sequencer) Deployed() bool { return s.deployed }

// ActuatorErrors counts failed position commands.
func (s *Sequencer) ActuatorErrors() int { return s.errs }

// Arm moves the mechanism to its armed position. Call it once before flight.
func (s *Sequencer) Arm() error {
	if s.deployed {
		return nil
	}
	return s.act.SetPosition(s.cfg.Channel, s.cfg.ArmAngle)
}

// Update advances the sequence. phase is this tick's flight phase, faults its
// sensor fault flags, and sinceLiftoff the time since LAUNCHED (0 before).
func (s *Sequencer) Update(phase flight.State, faults flight.Faults, sinceLiftoff time.Duration) State {
	switch s.state {
	case Idle:
		if s.shouldFire(phase, faults, sinceLiftoff) {
			s.enter(Punch)
			s.deployed = true
		}
	case Punch:
		if s.ticks >= s.cfg.PunchTicks {
			s.enter(Lock)
		}
	case Lock:
		if s.ticks >= s.cfg.LockTicks {
			s.enter(Done)
		}
	}

	if s.state != Idle {
		s.ticks++
		s.command()
	}
	return s.state
}

func (s *Sequencer) shouldFire(phase flight.State, faults flight.Faults, since time.Duration) bool {
	// Apogee and descent are barometric evidence; a disqualified reading
	// this tick does not count.
	if phase >= s.cfg.Trigger && !faults.Baro {
		return true
	}
	if s.cfg.BackupDelay > 0 && phase >= flight.Launched && since >= s.cfg.BackupDelay {
		log.Warnf("Deploy Info: backup timer fired %s after liftoff in %s", since, phase)
		return true
	}
	return false
}

func (s *Sequencer) enter(st State) {
	log.Infof("Deploy Info: %s -> %s", s.state, st)
	s.state, s.ticks = st, 0
}

// command re-issues the position every tick so a glitched servo recovers.
func (s *Sequencer) command() {
	angle := s.cfg.LockAngle
	if s.state == Punch {
		angle = s.cfg.PunchAngle
	}
	if err := s.act.SetPosition(s.cfg.Channel, angle); err != nil {
		s.errs++
		log.Errorf("Deploy Error: set position %v on channel %d: %s", angle, s.cfg.Channel, err)
	}
}
