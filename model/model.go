// Package model holds the sensor sample types shared by the flight core and
// its collaborators. Samples arrive already calibrated and in the body frame.
package model

import (
	"math"
	"time"
)

// StandardGravity in m/s².
const StandardGravity = 9.80665

// ImuSample is one calibrated inertial reading.
// Accelerations are in m/s², angular rates in deg/s.
type ImuSample struct {
	Ax, Ay, Az float64
	Gx, Gy, Gz float64
}

// AccelMagnitude returns |a| in m/s².
func (s ImuSample) AccelMagnitude() float64 {
	return math.Sqrt(s.Ax*s.Ax + s.Ay*s.Ay + s.Az*s.Az)
}

// GyroMagnitude returns |ω| in deg/s.
func (s ImuSample) GyroMagnitude() float64 {
	return math.Sqrt(s.Gx*s.Gx + s.Gy*s.Gy + s.Gz*s.Gz)
}

// AccelZero reports a dropped accelerometer reading (all axes exactly zero).
func (s ImuSample) AccelZero() bool {
	return s.Ax == 0 && s.Ay == 0 && s.Az == 0
}

// Finite reports whether every channel is a real number.
func (s ImuSample) Finite() bool {
	for _, v := range [...]float64{s.Ax, s.Ay, s.Az, s.Gx, s.Gy, s.Gz} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// MagSample is a hard/soft-iron corrected magnetometer reading, any unit.
type MagSample struct {
	Mx, My, Mz float64
}

// Zero reports an empty magnetometer reading.
func (m MagSample) Zero() bool {
	return m.Mx == 0 && m.My == 0 && m.Mz == 0
}

// BaroSample is a barometer reading with derived altitude and climb rate.
type BaroSample struct {
	Pressure    float64 // hPa
	Temperature float64 // °C
	Altitude    float64 // m, relative to the pad
	ClimbRate   float64 // m/s, positive up
}

// Finite reports whether every channel is a real number.
func (b BaroSample) Finite() bool {
	for _, v := range [...]float64{b.Pressure, b.Temperature, b.Altitude, b.ClimbRate} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// GpsSample is carried through to the logs untouched.
type GpsSample struct {
	LatitudeE7  int32
	LongitudeE7 int32
	Altitude    float32 // m MSL
	Speed       float32 // m/s
	Heading     float32 // deg
	Sats        uint8
	Fix         bool
}

// Lat returns the latitude in degrees.
func (g GpsSample) Lat() float64 { return float64(g.LatitudeE7) / 1e7 }

// Lon returns the longitude in degrees.
func (g GpsSample) Lon() float64 { return float64(g.LongitudeE7) / 1e7 }

// Frame is everything read from the sensors in one tick. T is a monotonic
// timestamp (time since boot), never wall-clock time.
type Frame struct {
	T           time.Duration
	Imu         ImuSample
	Mag         *MagSample
	Baro        *BaroSample
	Gps         *GpsSample
	PinDetached bool
}
