// Package attitude fuses body-frame gyro, accelerometer and optional
// magnetometer samples into roll, pitch and yaw.
//
// Frame convention: the sensor frame is the body frame, right handed, with z
// up while the rocket stands on the pad. Yaw is rotation about body z, which
// is also the airframe's long (spin) axis.
package attitude

import (
	"math"

	"github.com/rocketfc/rocketfc/log"
	"github.com/rocketfc/rocketfc/model"
)

// Attitude is the estimator output for one tick. Angles are in degrees.
type Attitude struct {
	Roll, Pitch, Yaw float64
	Q                Quaternion
	GyroWeight       float64 // complementary only: 1 = gyro only, 0 = accel/mag only
	Valid            bool    // false until the first valid sample has seeded the filter
}

// input is one pre-filtered tick handed to a fusion strategy.
type input struct {
	acc   vec3 // m/s²
	accOK bool // false when the accelerometer reading was dropped
	gyr   vec3 // rad/s
	mag   vec3
	magOK bool
}

// fuser is one sensor fusion strategy.
type fuser interface {
	seed(roll, pitch, yaw float64)
	update(in input, dt float64)
	euler() (roll, pitch, yaw float64) // radians
	quaternion() Quaternion
	norm() float64
	weight() float64
}

// filterState is the shared front end: low-passed raw channels.
type filterState struct {
	acc, gyr, mag vec3
	hasMag        bool
	initialized   bool
}

// Estimator is not safe for concurrent use; it is owned by the flight loop.
type Estimator struct {
	cfg  Config
	st   filterState
	f    fuser
	last Attitude
}

// New validates cfg and returns an estimator at rest.
func New(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Estimator{cfg: cfg}
	e.Reset()
	return e, nil
}

// Reset drops all filter state. The next valid sample seeds the estimate.
func (e *Estimator) Reset() {
	inv := exactInvSqrt
	if e.cfg.FastInvSqrt {
		inv = invSqrt
	}
	switch e.cfg.Mode {
	case Mahony:
		e.f = newMahony(&e.cfg, inv)
	case DCM:
		e.f = newDCM(&e.cfg)
	default:
		e.f = newComplementary(&e.cfg, inv)
	}
	e.st = filterState{}
	e.last = Attitude{Q: Identity}
}

// Mode returns the active fusion strategy.
func (e *Estimator) Mode() Mode { return e.cfg.Mode }

// Attitude returns the latest estimate.
func (e *Estimator) Attitude() Attitude { return e.last }

// Norm returns the normalization measure of the internal representation:
// the quaternion norm, or for DCM the column norm furthest from 1.
func (e *Estimator) Norm() float64 { return e.f.norm() }

// Update advances the estimate by dt seconds. A dt outside (0, MaxDt] is a
// stall: the previous estimate is returned unchanged. The first valid sample
// seeds the estimate whatever its dt. mag may be nil.
func (e *Estimator) Update(s model.ImuSample, mag *model.MagSample, dt float64) Attitude {
	if !s.Finite() {
		return e.last
	}
	acc := vec3{s.Ax, s.Ay, s.Az}
	gyr := vec3{s.Gx, s.Gy, s.Gz}
	accOK := !s.AccelZero()
	var m vec3
	magOK := mag != nil && !mag.Zero()
	if magOK {
		m = vec3{mag.Mx, mag.My, mag.Mz}
		magOK = m.finite()
	}

	if !e.st.initialized {
		if !accOK {
			// Cannot level without gravity; wait for a usable sample.
			return e.last
		}
		e.st = filterState{acc: acc, gyr: gyr, mag: m, hasMag: magOK, initialized: true}
		roll, pitch := tilt(acc)
		yaw := 0.0
		if magOK {
			yaw = magneticYaw(m, roll, pitch)
		}
		e.f.seed(roll, pitch, yaw)
		log.Debugf("Attitude Info: seeded %s roll=%.1f pitch=%.1f yaw=%.1f", e.cfg.Mode, roll*Deg, pitch*Deg, yaw*Deg)
		e.last = e.output()
		return e.last
	}

	if !(dt > 0 && dt <= e.cfg.MaxDt) {
		return e.last
	}

	k := e.cfg.LPFK
	if accOK {
		e.st.acc = e.st.acc.add(acc.sub(e.st.acc).scale(k))
	}
	e.st.gyr = e.st.gyr.add(gyr.sub(e.st.gyr).scale(k))
	if magOK {
		if !e.st.hasMag {
			e.st.mag, e.st.hasMag = m, true
		} else {
			e.st.mag = e.st.mag.add(m.sub(e.st.mag).scale(k))
		}
	}

	e.f.update(input{
		acc:   e.st.acc,
		accOK: accOK,
		gyr:   e.st.gyr.scale(Rad),
		mag:   e.st.mag,
		magOK: magOK,
	}, dt)
	e.last = e.output()
	return e.last
}

func (e *Estimator) output() Attitude {
	r, p, y := e.f.euler()
	if e.st.hasMag {
		y = WrapPi(y + e.cfg.DeclinationDeg*Rad)
	}
	return Attitude{
		Roll:       r * Deg,
		Pitch:      p * Deg,
		Yaw:        y * Deg,
		Q:          e.f.quaternion(),
		GyroWeight: e.f.weight(),
		Valid:      true,
	}
}

// tilt returns roll and pitch (radians) from the gravity reaction measured by
// the accelerometer.
func tilt(a vec3) (roll, pitch float64) {
	roll = math.Atan2(a[1], a[2])
	pitch = math.Atan2(-a[0], math.Sqrt(a[1]*a[1]+a[2]*a[2]))
	return
}

// magneticYaw de-rotates the magnetometer by roll and pitch and returns the
// magnetic heading about body z. Declination is applied on output.
func magneticYaw(m vec3, roll, pitch float64) float64 {
	cr, sr := math.Cos(roll), math.Sin(roll)
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	xh := m[0]*cp + m[1]*sr*sp + m[2]*cr*sp
	yh := m[2]*sr - m[1]*cr
	return math.Atan2(yh, xh)
}
