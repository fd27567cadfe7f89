package attitude

import "math"

// dcm is the Mahony direction cosine matrix filter. R maps body vectors into
// the world frame and is re-orthonormalized after every integration step.
type dcm struct {
	cfg  *Config
	r    mat3
	bias vec3 // rad/s
}

func newDCM(cfg *Config) *dcm {
	return &dcm{cfg: cfg, r: identity3()}
}

func (d *dcm) seed(roll, pitch, yaw float64) {
	d.r = matFromEuler(roll, pitch, yaw)
	d.bias = vec3{}
}

// correction is the body-frame rotation error between measured and
// predicted gravity, plus the horizontal magnetic heading error.
func (d *dcm) correction(in input) vec3 {
	var e vec3
	if !in.accOK {
		return e
	}
	rt := d.r.transpose()
	gEst := rt.mulVec(vec3{0, 0, 1})
	if an := in.acc.norm(); an > 1e-6 {
		e = e.add(in.acc.scale(1 / an).cross(gEst))
	}
	if in.magOK {
		if mn := in.mag.norm(); mn > 1e-6 {
			mb := in.mag.scale(1 / mn)
			mh := mb.sub(gEst.scale(mb.dot(gEst)))
			if n := mh.norm(); n > 1e-6 {
				north := rt.mulVec(vec3{1, 0, 0})
				e = e.add(mh.scale(1 / n).cross(north).scale(d.cfg.KpMag / math.Max(d.cfg.KpAcc, 1e-6)))
			}
		}
	}
	if !e.finite() {
		return vec3{}
	}
	return e
}

func (d *dcm) update(in input, dt float64) {
	e := d.correction(in)
	if d.cfg.Ki > 0 {
		d.bias = d.bias.sub(e.scale(d.cfg.Ki * dt))
	}
	w := in.gyr.add(e.scale(d.cfg.KpAcc)).sub(d.bias)
	if !w.finite() {
		return
	}
	dot := d.r.mul(skew(w))
	for i := range d.r {
		for j := range d.r[i] {
			d.r[i][j] += dot[i][j] * dt
		}
	}
	d.orthonormalize()
}

// orthonormalize runs Gram-Schmidt over the columns of R.
func (d *dcm) orthonormalize() {
	c0, c1 := d.r.col(0), d.r.col(1)
	if n := c0.norm(); n > 0 && !math.IsNaN(n) {
		c0 = c0.scale(1 / n)
	} else {
		c0 = vec3{1, 0, 0}
	}
	c1 = c1.sub(c0.scale(c0.dot(c1)))
	if n := c1.norm(); n > 0 && !math.IsNaN(n) {
		c1 = c1.scale(1 / n)
	} else {
		c1 = vec3{0, 1, 0}
	}
	c2 := c0.cross(c1)
	d.r.setCol(0, c0)
	d.r.setCol(1, c1)
	d.r.setCol(2, c2.scale(1/c2.norm()))
}

func (d *dcm) euler() (float64, float64, float64) {
	roll := math.Atan2(d.r[2][1], d.r[2][2])
	pitch := -math.Asin(Clamp(d.r[2][0], -1, 1))
	yaw := math.Atan2(d.r[1][0], d.r[0][0])
	return roll, pitch, yaw
}

func (d *dcm) quaternion() Quaternion {
	r, p, y := d.euler()
	return FromEuler(r, p, y)
}

// norm reports the column norm furthest from 1.
func (d *dcm) norm() float64 {
	worst := 1.0
	for j := 0; j < 3; j++ {
		n := d.r.col(j).norm()
		if math.Abs(n-1) > math.Abs(worst-1) {
			worst = n
		}
	}
	return worst
}

func (d *dcm) weight() float64 { return 0 }
