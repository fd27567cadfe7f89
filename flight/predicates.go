package flight

import (
	"math"

	"github.com/rocketfc/rocketfc/model"
)

// Faults flags sensor readings that were disqualified this tick. A faulted
// signal contributes no evidence to any phase predicate.
type Faults struct {
	IMU  bool
	Baro bool
}

// Any reports whether either sensor is faulted.
func (f Faults) Any() bool { return f.IMU || f.Baro }

// IsOMGimu reports an implausible inertial reading: non-finite values or
// values beyond the sensor's full scale.
func (c Config) IsOMGimu(s model.ImuSample) bool {
	if !s.Finite() {
		return true
	}
	return s.AccelMagnitude() > c.ImuAccelLimit || s.GyroMagnitude() > c.ImuGyroLimit
}

// IsOMGbaro reports an implausible barometer reading: non-finite values,
// pressure outside the physical window, or an altitude step that the
// previous climb rate cannot explain over elapsed seconds. prev may be nil.
func (c Config) IsOMGbaro(b model.BaroSample, prev *model.BaroSample, elapsed float64) bool {
	if !b.Finite() {
		return true
	}
	if b.Pressure < c.MinPressure || b.Pressure > c.MaxPressure {
		return true
	}
	if prev != nil {
		predicted := prev.Altitude + prev.ClimbRate*elapsed
		if math.Abs(b.Altitude-predicted) > c.BaroJumpTolerance {
			return true
		}
	}
	return false
}

// predicates is the per-tick evidence derived from one frame. baro is false
// when the frame carried no barometer sample; the barometer gated counters
// hold on such ticks instead of resetting.
type predicates struct {
	baro    bool
	launch  bool
	burn    bool
	coast   bool
	apogee  bool
	descent bool
	landed  bool
}
