package sensors

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rocketfc/rocketfc/log"
	"github.com/rocketfc/rocketfc/model"
)

// ErrNotLevel is returned when the board is not at rest during calibration.
var ErrNotLevel = errors.New("sensors: board moved during calibration")

// Calibration holds the per-board corrections applied to raw readings.
type Calibration struct {
	GyroBias   [3]float64    `yaml:"gyro_bias" json:"gyro_bias"`     // deg/s
	AccelScale float64       `yaml:"accel_scale" json:"accel_scale"` // multiplies the raw accel vector
	MagBias    [3]float64    `yaml:"mag_bias" json:"mag_bias"`       // hard iron
	MagAinv    [3][3]float64 `yaml:"mag_ainv" json:"mag_ainv"`       // soft iron
}

// IdentityCalibration applies no correction.
func IdentityCalibration() Calibration {
	return Calibration{
		AccelScale: 1,
		MagAinv:    [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	}
}

// Apply corrects a reading in place. mag may be nil.
func (c Calibration) Apply(s *model.ImuSample, mag *model.MagSample) {
	scale := c.AccelScale
	if scale == 0 {
		scale = 1
	}
	s.Ax *= scale
	s.Ay *= scale
	s.Az *= scale
	s.Gx -= c.GyroBias[0]
	s.Gy -= c.GyroBias[1]
	s.Gz -= c.GyroBias[2]

	if mag == nil {
		return
	}
	x := mag.Mx - c.MagBias[0]
	y := mag.My - c.MagBias[1]
	z := mag.Mz - c.MagBias[2]
	a := c.MagAinv
	if a == ([3][3]float64{}) {
		a = IdentityCalibration().MagAinv
	}
	mag.Mx = a[0][0]*x + a[0][1]*y + a[0][2]*z
	mag.My = a[1][0]*x + a[1][1]*y + a[1][2]*z
	mag.Mz = a[2][0]*x + a[2][1]*y + a[2][2]*z
}

// Calibrate measures gyro bias and accel scale with the board at rest on the
// pad. The driver averages between reads, so after clearing the averages a
// single read over settle gives the resting mean.
func Calibrate(r IMUReader, settle time.Duration) (Calibration, error) {
	log.Infof("Sensor Info: calibrating IMU")
	if _, _, err := r.Read(); err != nil { // clear out the averages
		return Calibration{}, err
	}
	time.Sleep(settle)
	s, _, err := r.Read()
	if err != nil {
		return Calibration{}, err
	}
	return calibrationFrom(s)
}

func calibrationFrom(s model.ImuSample) (Calibration, error) {
	g := s.AccelMagnitude()
	if math.Abs(g-model.StandardGravity) > 0.2*model.StandardGravity || s.GyroMagnitude() > 10 {
		return Calibration{}, fmt.Errorf("%w: |a| %.2f m/s², |w| %.2f deg/s", ErrNotLevel, g, s.GyroMagnitude())
	}
	c := IdentityCalibration()
	c.AccelScale = model.StandardGravity / g
	c.GyroBias = [3]float64{s.Gx, s.Gy, s.Gz}
	log.Infof("Sensor Info: IMU calibrated: accel scale %6f; gyro %6f %6f %6f",
		c.AccelScale, c.GyroBias[0], c.GyroBias[1], c.GyroBias[2])
	return c, nil
}
