package attitude

// mahony is the quaternion Mahony filter: a PI controller drives the
// estimated gravity (and magnetic field) direction onto the measured one by
// feeding the cross-product error back into the gyro rates.
type mahony struct {
	cfg      *Config
	inv      func(float64) float64
	q        Quaternion
	integral vec3 // rad/s
}

func newMahony(cfg *Config, inv func(float64) float64) *mahony {
	return &mahony{cfg: cfg, inv: inv, q: Identity}
}

func (m *mahony) seed(roll, pitch, yaw float64) {
	m.q = FromEuler(roll, pitch, yaw).normalized(m.inv)
	m.integral = vec3{}
}

func (m *mahony) update(in input, dt float64) {
	g := in.gyr
	q0, q1, q2, q3 := m.q.W, m.q.X, m.q.Y, m.q.Z

	an2 := in.acc.dot(in.acc)
	if in.accOK && an2 > 0 {
		a := in.acc.scale(m.inv(an2))

		// Estimated gravity direction in the body frame, halved.
		hv := vec3{q1*q3 - q0*q2, q0*q1 + q2*q3, q0*q0 - 0.5 + q3*q3}
		he := a.cross(hv)

		if mn2 := in.mag.dot(in.mag); in.magOK && mn2 > 0 {
			mg := in.mag.scale(m.inv(mn2))
			// Earth-frame field, flattened onto (bx, 0, bz).
			hx := 2 * (mg[0]*(0.5-q2*q2-q3*q3) + mg[1]*(q1*q2-q0*q3) + mg[2]*(q1*q3+q0*q2))
			hy := 2 * (mg[0]*(q1*q2+q0*q3) + mg[1]*(0.5-q1*q1-q3*q3) + mg[2]*(q2*q3-q0*q1))
			bx := 1 / m.inv(hx*hx+hy*hy)
			bz := 2 * (mg[0]*(q1*q3-q0*q2) + mg[1]*(q2*q3+q0*q1) + mg[2]*(0.5-q1*q1-q2*q2))
			hw := vec3{
				bx*(0.5-q2*q2-q3*q3) + bz*(q1*q3-q0*q2),
				bx*(q1*q2-q0*q3) + bz*(q0*q1+q2*q3),
				bx*(q0*q2+q1*q3) + bz*(0.5-q1*q1-q2*q2),
			}
			if e := mg.cross(hw); e.finite() {
				he = he.add(e)
			}
		}

		if m.cfg.TwoKi > 0 {
			m.integral = m.integral.add(he.scale(m.cfg.TwoKi * dt))
			g = g.add(m.integral)
		} else {
			m.integral = vec3{}
		}
		g = g.add(he.scale(m.cfg.TwoKp))
	}

	g = g.scale(0.5 * dt)
	m.q = Quaternion{
		W: q0 + (-q1*g[0] - q2*g[1] - q3*g[2]),
		X: q1 + (q0*g[0] + q2*g[2] - q3*g[1]),
		Y: q2 + (q0*g[1] - q1*g[2] + q3*g[0]),
		Z: q3 + (q0*g[2] + q1*g[1] - q2*g[0]),
	}.normalized(m.inv)
}

func (m *mahony) euler() (float64, float64, float64) { return m.q.Euler() }
func (m *mahony) quaternion() Quaternion               { return m.q }
func (m *mahony) norm() float64                        { return m.q.Norm() }
func (m *mahony) weight() float64                      { return 0 }
