package sensors

import (
	"context"
	"errors"
	"time"

	"github.com/kidoman/embd"

	"github.com/rocketfc/rocketfc/clock"
	"github.com/rocketfc/rocketfc/log"
	"github.com/rocketfc/rocketfc/model"
)

const (
	numRetries     = 3
	reconnectEvery = 4 * time.Second
)

// ErrNoIMU is returned by Hardware.Read while the IMU is disconnected.
var ErrNoIMU = errors.New("sensors: IMU not connected")

// HardwareConfig selects the buses and pins of the avionics board.
type HardwareConfig struct {
	I2CBus        byte        `yaml:"i2c_bus"`
	ServoAddr     byte        `yaml:"servo_addr"` // PCA9685
	PinGPIO       int         `yaml:"pin_gpio"` // negative disables the retention pin
	ClimbWindow   int         `yaml:"climb_window"`
	GroundSamples int         `yaml:"ground_samples"`
	Calibrate     bool        `yaml:"calibrate"` // measure gyro bias on the pad at startup
	Calibration   Calibration `yaml:"calibration"`
	GPS           GPSConfig   `yaml:"gps"`
}

// DefaultHardwareConfig matches the reference board.
func DefaultHardwareConfig() HardwareConfig {
	return HardwareConfig{
		I2CBus:        1,
		ServoAddr:     PCA9685Address,
		PinGPIO:       17,
		ClimbWindow:   10,
		GroundSamples: 20,
		Calibration:   IdentityCalibration(),
	}
}

// Hardware assembles frames from the on-board sensors. A sensor that fails
// numRetries reads in a row is closed and reconnected later; the barometer
// is optional and a frame without it carries a nil Baro.
type Hardware struct {
	openIMU  func() (IMUReader, error)
	openBaro func() (PressureReader, error)

	imu   IMUReader
	baro  PressureReader
	pin   PinReader
	gps   FixReader
	cal   Calibration
	climb *ClimbEstimator
	clk   clock.Clock

	imuFails, baroFails int
	lastBaroTry         time.Duration
	triedBaro           bool
}

// OpenHardware opens the I2C bus and connects to the IMU (ICM-20948, or a
// BMX160 as fallback), the BMP388 and the retention pin.
func OpenHardware(cfg HardwareConfig, clk clock.Clock) (*Hardware, error) {
	i2cbus := embd.NewI2CBus(cfg.I2CBus)
	openIMU := func() (IMUReader, error) {
		icm, err := NewICM20948(&i2cbus)
		if err == nil {
			return icm, nil
		}
		log.Infof("Sensor Info: no ICM-20948 (%s), trying BMX160", err)
		return NewBMX160(&i2cbus)
	}
	openBaro := func() (PressureReader, error) { return NewBMP388(&i2cbus) }

	var pin PinReader
	if cfg.PinGPIO >= 0 {
		p, err := OpenRetentionPin(cfg.PinGPIO)
		if err != nil {
			return nil, err
		}
		pin = p
	}
	h := newHardware(cfg, clk, openIMU, openBaro, pin)
	if err := h.connectIMU(); err != nil {
		return nil, err
	}
	if cfg.Calibrate {
		cal, err := Calibrate(h.imu, time.Second)
		if err != nil {
			log.Warnf("Sensor Error: calibration failed, using configured values: %s", err)
		} else {
			h.cal.GyroBias, h.cal.AccelScale = cal.GyroBias, cal.AccelScale
		}
	}
	h.connectBaro()
	if cfg.GPS.Device != "" {
		// GPS is optional.
		g, err := OpenGPS(cfg.GPS, clk)
		if err != nil {
			log.Warnf("GPS Error: %s", err)
		} else {
			h.gps = g
		}
	}
	return h, nil
}

func newHardware(cfg HardwareConfig, clk clock.Clock, openIMU func() (IMUReader, error),
	openBaro func() (PressureReader, error), pin PinReader) *Hardware {
	return &Hardware{
		openIMU:  openIMU,
		openBaro: openBaro,
		pin:      pin,
		cal:      cfg.Calibration,
		climb:    NewClimbEstimator(cfg.ClimbWindow, cfg.GroundSamples),
		clk:      clk,
	}
}

func (h *Hardware) connectIMU() error {
	imu, err := h.openIMU()
	if err != nil {
		log.Warnf("Sensor Info: couldn't connect to IMU: %s", err)
		return err
	}
	log.Infof("Sensor Info: IMU connected")
	h.imu, h.imuFails = imu, 0
	return nil
}

func (h *Hardware) connectBaro() {
	h.lastBaroTry, h.triedBaro = h.clk.Now(), true
	baro, err := h.openBaro()
	if err != nil {
		log.Warnf("Sensor Info: couldn't connect to barometer: %s", err)
		return
	}
	log.Infof("Sensor Info: barometer connected")
	h.baro, h.baroFails = baro, 0
	h.climb.ResetWindow()
}

// Read returns the next frame. It does not pace itself.
func (h *Hardware) Read(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}
	if h.imu == nil {
		if err := h.connectIMU(); err != nil {
			return model.Frame{}, ErrNoIMU
		}
	}

	now := h.clk.Now()
	s, mag, err := h.imu.Read()
	if err != nil {
		h.imuFails++
		if h.imuFails >= numRetries {
			log.Errorf("Sensor Error: IMU failed to read %d times, restarting: %s", h.imuFails, err)
			h.imu.Close()
			h.imu = nil
		}
		return model.Frame{}, err
	}
	h.imuFails = 0
	h.cal.Apply(&s, mag)

	f := model.Frame{T: now, Imu: s, Mag: mag}
	f.Baro = h.readBaro(now)
	if h.pin != nil {
		f.PinDetached = h.pin.Detached()
	}
	if h.gps != nil {
		f.Gps = h.gps.Latest()
	}
	return f, nil
}

func (h *Hardware) readBaro(now time.Duration) *model.BaroSample {
	if h.baro == nil {
		if !h.triedBaro || now-h.lastBaroTry >= reconnectEvery {
			h.connectBaro()
		}
		if h.baro == nil {
			return nil
		}
	}
	press, err := h.baro.Pressure()
	var temp float64
	if err == nil {
		temp, err = h.baro.Temperature()
	}
	if err != nil {
		h.baroFails++
		if h.baroFails >= numRetries {
			log.Errorf("Sensor Error: barometer failed to read %d times, restarting: %s", h.baroFails, err)
			h.baro.Close()
			h.baro = nil
		}
		return nil
	}
	h.baroFails = 0
	b := h.climb.Update(now, press, temp)
	return &b
}

// Close releases every connected sensor.
func (h *Hardware) Close() {
	if h.imu != nil {
		h.imu.Close()
		h.imu = nil
	}
	if h.baro != nil {
		h.baro.Close()
		h.baro = nil
	}
	if c, ok := h.pin.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if c, ok := h.gps.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}
