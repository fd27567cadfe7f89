package attitude

import "math"

// Quaternion is a unit rotation quaternion (W, X, Y, Z) taking body-frame
// vectors into the world frame.
type Quaternion struct {
	W, X, Y, Z float64
}

// Identity is the level, north-facing attitude.
var Identity = Quaternion{W: 1}

// invSqrt is the fast inverse square root with two Newton steps. Relative
// error is below 5e-6, well inside the 1e-4 normalization tolerance.
func invSqrt(x float64) float64 {
	half := 0.5 * x
	i := math.Float64bits(x)
	i = 0x5fe6eb50c7b537a9 - (i >> 1)
	y := math.Float64frombits(i)
	y = y * (1.5 - half*y*y)
	y = y * (1.5 - half*y*y)
	return y
}

func exactInvSqrt(x float64) float64 {
	return 1 / math.Sqrt(x)
}

// Norm returns |q|.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// normalized rescales q with the given inverse square root. A degenerate
// quaternion becomes Identity.
func (q Quaternion) normalized(inv func(float64) float64) Quaternion {
	n2 := q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z
	if n2 < 1e-12 || math.IsNaN(n2) || math.IsInf(n2, 0) {
		return Identity
	}
	r := inv(n2)
	return Quaternion{q.W * r, q.X * r, q.Y * r, q.Z * r}
}

// Normalize returns q scaled to unit length.
func (q Quaternion) Normalize() Quaternion {
	return q.normalized(exactInvSqrt)
}

// FromEuler builds the quaternion for the Z-Y-X (yaw, pitch, roll) rotation,
// angles in radians.
func FromEuler(roll, pitch, yaw float64) Quaternion {
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)
	return Quaternion{
		W: cr*cp*cy + sr*sp*sy,
		X: sr*cp*cy - cr*sp*sy,
		Y: cr*sp*cy + sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
	}
}

// Euler returns roll, pitch, yaw in radians. The asin argument is clamped so
// numerical drift past ±1 cannot produce NaN.
func (q Quaternion) Euler() (roll, pitch, yaw float64) {
	roll = math.Atan2(2*(q.W*q.X+q.Y*q.Z), 1-2*(q.X*q.X+q.Y*q.Y))
	pitch = math.Asin(Clamp(2*(q.W*q.Y-q.Z*q.X), -1, 1))
	yaw = math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))
	return
}
