// Package sensors adapts the avionics board's sensors to the flight core:
// drivers, calibration, barometric climb rate and replayed sensor logs.
package sensors

import (
	"github.com/rocketfc/rocketfc/model"
)

// IMUReader is a light abstraction over inertial sensor drivers.
type IMUReader interface {
	// Read returns the averaged reading since the last call in body units
	// (m/s², deg/s) and the magnetometer, which is nil when unavailable.
	Read() (model.ImuSample, *model.MagSample, error)
	// Close stops reading the IMU.
	Close()
}

// PressureReader provides an interface to a sensor reading pressure and
// temperature, like the BMP388.
type PressureReader interface {
	Temperature() (temp float64, tempError error) // Temperature returns the temperature in degrees C.
	Pressure() (press float64, pressError error)  // Pressure returns the atmospheric pressure in hPa.
	Close()
}

// PinReader reports whether the launch retention pin has been pulled.
type PinReader interface {
	Detached() bool
}

// FixReader returns the latest GPS fix, nil without one.
type FixReader interface {
	Latest() *model.GpsSample
}
