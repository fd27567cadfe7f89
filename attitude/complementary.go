package attitude

import (
	"math"

	"github.com/rocketfc/rocketfc/model"
)

// complementary blends gyro-propagated Euler angles with the accelerometer
// tilt and magnetic heading. The gyro weight adapts to how far |a| is from
// 1 g: under thrust or buffeting the accelerometer is not measuring gravity.
type complementary struct {
	cfg              *Config
	inv              func(float64) float64
	roll, pitch, yaw float64
	w                float64 // low-passed gyro weight
	q                Quaternion
}

func newComplementary(cfg *Config, inv func(float64) float64) *complementary {
	return &complementary{cfg: cfg, inv: inv, q: Identity}
}

func (c *complementary) seed(roll, pitch, yaw float64) {
	c.roll, c.pitch, c.yaw = roll, pitch, yaw
	c.w = 0
	c.q = FromEuler(roll, pitch, yaw).normalized(c.inv)
}

// gyroWeight maps the accelerometer magnitude (in g) to a gyro trust weight.
func (c *complementary) gyroWeight(g float64) float64 {
	if g < c.cfg.FaultBelowG {
		return 1
	}
	dev := math.Abs(g - 1)
	if dev <= c.cfg.DeadBandG {
		return 0
	}
	return smoothstep((dev - c.cfg.DeadBandG) / (c.cfg.FullScaleG - c.cfg.DeadBandG))
}

func (c *complementary) update(in input, dt float64) {
	p, q, r := in.gyr[0], in.gyr[1], in.gyr[2]

	sr, cr := math.Sin(c.roll), math.Cos(c.roll)
	sp, cp := math.Sin(c.pitch), math.Cos(c.pitch)
	if math.Abs(cp) < c.cfg.CosPitchFloor {
		cp = math.Copysign(c.cfg.CosPitchFloor, cp)
	}
	tp := sp / cp

	rollG := WrapPi(c.roll + (p+(q*sr+r*cr)*tp)*dt)
	pitchG := Clamp(c.pitch+(q*cr-r*sr)*dt, -math.Pi/2, math.Pi/2)
	yawG := WrapPi(c.yaw + (q*sr+r*cr)/cp*dt)

	if !in.accOK {
		c.roll, c.pitch, c.yaw = rollG, pitchG, yawG
		c.q = FromEuler(c.roll, c.pitch, c.yaw).normalized(c.inv)
		return
	}

	c.w += c.cfg.WeightLPFK * (c.gyroWeight(in.acc.norm()/model.StandardGravity) - c.w)
	c.w = Clamp(c.w, 0, 1)

	rollA, pitchA := tilt(in.acc)
	c.roll = blendAngle(rollG, rollA, c.w)
	c.pitch = Clamp(c.w*pitchG+(1-c.w)*pitchA, -math.Pi/2, math.Pi/2)
	if in.magOK {
		c.yaw = blendAngle(yawG, magneticYaw(in.mag, c.roll, c.pitch), c.w)
	} else {
		c.yaw = yawG
	}
	c.q = FromEuler(c.roll, c.pitch, c.yaw).normalized(c.inv)
}

func (c *complementary) euler() (float64, float64, float64) { return c.roll, c.pitch, c.yaw }
func (c *complementary) quaternion() Quaternion               { return c.q }
func (c *complementary) norm() float64                        { return c.q.Norm() }
func (c *complementary) weight() float64                      { return c.w }
