package flight

import (
	"math"

	"github.com/rocketfc/rocketfc/log"
	"github.com/rocketfc/rocketfc/model"
)

// Counters holds the consecutive-tick debounce counts. Each counter only
// grows while its predicate holds and is zeroed when it fails or when the
// phase changes. Apogee, Descent and Landed hold on ticks without a
// barometer sample.
type Counters struct {
	Powered   uint16
	MotorOver uint16
	Apogee    uint16
	Descent   uint16
	Landed    uint16
}

// Classifier is owned by the flight loop and is not safe for concurrent use.
type Classifier struct {
	cfg       Config
	state     State
	cnt       Counters
	faults    Faults
	ascending bool

	// Jump check baseline: the last accepted barometer sample, the time
	// since it was taken and how many jumps in a row it has rejected.
	prevBaro    *model.BaroSample
	sinceBaro   float64
	baroRejects uint16
}

func NewClassifier(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{cfg: cfg}, nil
}

func (c *Classifier) State() State       { return c.state }
func (c *Classifier) Counters() Counters { return c.cnt }
func (c *Classifier) Faults() Faults     { return c.faults }

// Update folds one frame into the classifier and returns the phase. At most
// one transition happens per tick. A dt outside (0, MaxDt] is a stall and
// leaves everything untouched.
func (c *Classifier) Update(f model.Frame, dt float64) State {
	if !(dt > 0 && dt <= c.cfg.MaxDt) {
		// The jump check needs a fresh baseline after a gap.
		c.prevBaro, c.sinceBaro, c.baroRejects = nil, 0, 0
		return c.state
	}
	c.sinceBaro += dt
	p := c.evaluate(f, dt)

	n := c.cfg.DebounceTicks
	switch c.state {
	case Standby:
		if p.launch {
			c.advance(Launched)
		}
	case Launched:
		if debounce(&c.cnt.Powered, p.burn) >= n {
			c.advance(Powered)
		}
	case Powered:
		if debounce(&c.cnt.MotorOver, p.coast) >= n {
			c.advance(Coasting)
		}
	case Coasting:
		if p.baro && debounce(&c.cnt.Apogee, p.apogee) >= n {
			c.advance(Apogee)
		}
	case Apogee:
		if p.baro && debounce(&c.cnt.Descent, p.descent) >= n {
			c.advance(Descent)
		}
	case Descent:
		if p.baro && debounce(&c.cnt.Landed, p.landed) >= c.cfg.LandedTicks {
			c.advance(Landed)
		}
	}
	return c.state
}

// evaluate derives the predicates and fault flags for one frame.
func (c *Classifier) evaluate(f model.Frame, dt float64) predicates {
	var p predicates

	c.faults = Faults{IMU: c.cfg.IsOMGimu(f.Imu)}
	imuOK := !c.faults.IMU

	var baro model.BaroSample
	baroOK := false
	if f.Baro != nil {
		p.baro = true
		baro = *f.Baro
		c.faults.Baro = c.cfg.IsOMGbaro(baro, c.prevBaro, c.sinceBaro)
		baroOK = !c.faults.Baro
		c.acceptBaro(baro)
	}

	accel := f.Imu.AccelMagnitude()
	if imuOK {
		p.burn = accel > c.cfg.BurnAccel
		p.coast = !p.burn
	}
	p.launch = f.PinDetached || (imuOK && accel > c.cfg.LiftoffAccel)

	if baroOK {
		if c.state >= Launched && baro.ClimbRate > 0 {
			c.ascending = true
		}
		p.apogee = c.ascending && baro.ClimbRate <= 0
		p.descent = baro.ClimbRate < -c.cfg.DescentRate
		p.landed = imuOK &&
			math.Abs(accel-model.StandardGravity) < c.cfg.LandedAccelBand &&
			math.Abs(baro.ClimbRate) < c.cfg.LandedClimbRate
	}
	return p
}

// acceptBaro moves the jump check baseline. A faulted sample is not a
// baseline unless the only complaint is the jump and it has persisted for
// DebounceTicks samples, in which case the step is taken as real.
func (c *Classifier) acceptBaro(b model.BaroSample) {
	if c.faults.Baro {
		if c.cfg.IsOMGbaro(b, nil, 0) {
			return
		}
		c.baroRejects++
		if c.baroRejects < c.cfg.DebounceTicks {
			return
		}
	}
	c.prevBaro, c.sinceBaro, c.baroRejects = &b, 0, 0
}

func (c *Classifier) advance(to State) {
	log.Infof("Flight Info: %s -> %s", c.state, to)
	c.state = to
	c.cnt = Counters{}
}

func debounce(counter *uint16, holds bool) uint16 {
	if !holds {
		*counter = 0
	} else if *counter < math.MaxUint16 {
		*counter++
	}
	return *counter
}
