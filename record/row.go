package record

// Row is the flat, scalar form of a FlightRecord used by table-shaped
// outputs such as the SQLite datalog and CSV analysis logs. Absent optional
// samples leave their columns zero with the matching Has flag false.
type Row struct {
	Seq    uint32
	TimeMs uint32

	Ax, Ay, Az float64
	Gx, Gy, Gz float64

	HasMag     bool
	Mx, My, Mz float64

	HasBaro     bool
	Pressure    float64
	Temperature float64
	Altitude    float64
	ClimbRate   float64

	HasGps     bool
	Lat, Lon   float64
	GpsAlt     float64
	GpsSpeed   float64
	GpsHeading float64
	GpsSats    int
	GpsFix     bool

	Roll, Pitch, Yaw float64
	RocketRoll       float64
	GyroWeight       float64

	State     string
	ImuFault  bool
	BaroFault bool
	Deploy    string
	Deployed  bool

	ControlOutput float64
	ServoDeg      float64
	Stalled       bool
}

// Flatten converts r into a Row.
func (r FlightRecord) Flatten() Row {
	row := Row{
		Seq:           r.Seq,
		TimeMs:        r.TimeMs,
		Ax:            r.Imu.Ax,
		Ay:            r.Imu.Ay,
		Az:            r.Imu.Az,
		Gx:            r.Imu.Gx,
		Gy:            r.Imu.Gy,
		Gz:            r.Imu.Gz,
		Roll:          r.Attitude.Roll,
		Pitch:         r.Attitude.Pitch,
		Yaw:           r.Attitude.Yaw,
		RocketRoll:    r.RocketRoll,
		GyroWeight:    r.Attitude.GyroWeight,
		State:         r.State.String(),
		ImuFault:      r.Faults.IMU,
		BaroFault:     r.Faults.Baro,
		Deploy:        r.Deploy.String(),
		Deployed:      r.Deployed,
		ControlOutput: r.ControlOutput,
		ServoDeg:      r.ServoDeg,
		Stalled:       r.Stalled,
	}
	if m := r.Mag; m != nil {
		row.HasMag = true
		row.Mx, row.My, row.Mz = m.Mx, m.My, m.Mz
	}
	if b := r.Baro; b != nil {
		row.HasBaro = true
		row.Pressure, row.Temperature = b.Pressure, b.Temperature
		row.Altitude, row.ClimbRate = b.Altitude, b.ClimbRate
	}
	if g := r.Gps; g != nil {
		row.HasGps = true
		row.Lat, row.Lon = g.Lat(), g.Lon()
		row.GpsAlt = float64(g.Altitude)
		row.GpsSpeed = float64(g.Speed)
		row.GpsHeading = float64(g.Heading)
		row.GpsSats = int(g.Sats)
		row.GpsFix = g.Fix
	}
	return row
}

// Columns returns the float-valued fields of the row keyed by column name,
// for analysis logs that only carry numbers.
func (r Row) Columns() map[string]float64 {
	b := func(v bool) float64 {
		if v {
			return 1
		}
		return 0
	}
	return map[string]float64{
		"TimeMs":        float64(r.TimeMs),
		"Ax":            r.Ax,
		"Ay":            r.Ay,
		"Az":            r.Az,
		"Gx":            r.Gx,
		"Gy":            r.Gy,
		"Gz":            r.Gz,
		"Mx":            r.Mx,
		"My":            r.My,
		"Mz":            r.Mz,
		"Pressure":      r.Pressure,
		"Altitude":      r.Altitude,
		"ClimbRate":     r.ClimbRate,
		"Roll":          r.Roll,
		"Pitch":         r.Pitch,
		"Yaw":           r.Yaw,
		"RocketRoll":    r.RocketRoll,
		"GyroWeight":    r.GyroWeight,
		"ControlOutput": r.ControlOutput,
		"ServoDeg":      r.ServoDeg,
		"Deployed":      b(r.Deployed),
		"ImuFault":      b(r.ImuFault),
		"BaroFault":     b(r.BaroFault),
	}
}
