package attitude

import "math"

type vec3 [3]float64

func (v vec3) add(o vec3) vec3      { return vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }
func (v vec3) sub(o vec3) vec3      { return vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }
func (v vec3) scale(s float64) vec3 { return vec3{v[0] * s, v[1] * s, v[2] * s} }
func (v vec3) dot(o vec3) float64   { return v[0]*o[0] + v[1]*o[1] + v[2]*o[2] }
func (v vec3) norm() float64        { return math.Sqrt(v.dot(v)) }

func (v vec3) cross(o vec3) vec3 {
	return vec3{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

func (v vec3) finite() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// mat3 is row-major.
type mat3 [3][3]float64

func identity3() mat3 {
	return mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

func (m mat3) mulVec(v vec3) vec3 {
	return vec3{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

func (m mat3) mul(o mat3) mat3 {
	var r mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				r[i][j] += m[i][k] * o[k][j]
			}
		}
	}
	return r
}

func (m mat3) transpose() mat3 {
	return mat3{
		{m[0][0], m[1][0], m[2][0]},
		{m[0][1], m[1][1], m[2][1]},
		{m[0][2], m[1][2], m[2][2]},
	}
}

func (m mat3) col(j int) vec3 { return vec3{m[0][j], m[1][j], m[2][j]} }

func (m *mat3) setCol(j int, v vec3) {
	m[0][j], m[1][j], m[2][j] = v[0], v[1], v[2]
}

func skew(v vec3) mat3 {
	return mat3{
		{0, -v[2], v[1]},
		{v[2], 0, -v[0]},
		{-v[1], v[0], 0},
	}
}

// matFromEuler returns the body-to-world rotation Rz(yaw)·Ry(pitch)·Rx(roll).
func matFromEuler(roll, pitch, yaw float64) mat3 {
	cr, sr := math.Cos(roll), math.Sin(roll)
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	cy, sy := math.Cos(yaw), math.Sin(yaw)
	return mat3{
		{cy * cp, cy*sp*sr - sy*cr, cy*sp*cr + sy*sr},
		{sy * cp, sy*sp*sr + cy*cr, sy*sp*cr - cy*sr},
		{-sp, cp * sr, cp * cr},
	}
}
