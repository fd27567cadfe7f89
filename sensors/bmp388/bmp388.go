// Package bmp388 drives a Bosch BMP388 pressure and temperature sensor over
// an embd I2C bus. Compensation follows Bosch's BMP3 reference driver in
// integer arithmetic.
package bmp388

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/kidoman/embd"
)

var (
	ErrNotConnected = errors.New("bmp388: not connected")
	ErrConfig       = errors.New("bmp388: configuration rejected, try a lower output data rate")
	ErrNotReady     = errors.New("bmp388: no new measurement")
)

type Config struct {
	Pressure    Oversampling
	Temperature Oversampling
	Mode        Mode
	ODR         OutputDataRate
	IIR         FilterCoefficient
}

// Measurement is one compensated reading.
type Measurement struct {
	Temperature float64 // °C
	Pressure    float64 // hPa
}

// BMP388 is one sensor on a bus.
type BMP388 struct {
	bus    embd.I2CBus
	addr   byte
	mode   Mode
	calib  calibration
	hasCal bool
}

// New returns a driver for the sensor at addr. Nothing is sent to the chip
// until Configure.
func New(bus embd.I2CBus, addr byte) *BMP388 {
	return &BMP388{bus: bus, addr: addr}
}

type calibration struct {
	t1, t2 uint16
	t3     int8

	p1, p2 int16
	p3, p4 int8
	p5, p6 uint16
	p7, p8 int8
	p9     int16
	p10    int8
	p11    int8
}

func parseCalibration(b []byte) calibration {
	le := binary.LittleEndian
	return calibration{
		t1:  le.Uint16(b[0:]),
		t2:  le.Uint16(b[2:]),
		t3:  int8(b[4]),
		p1:  int16(le.Uint16(b[5:])),
		p2:  int16(le.Uint16(b[7:])),
		p3:  int8(b[9]),
		p4:  int8(b[10]),
		p5:  le.Uint16(b[11:]),
		p6:  le.Uint16(b[13:]),
		p7:  int8(b[15]),
		p8:  int8(b[16]),
		p9:  int16(le.Uint16(b[17:])),
		p10: int8(b[19]),
		p11: int8(b[20]),
	}
}

// Connected reports whether the chip answers with the BMP388 id.
func (d *BMP388) Connected() bool {
	id, err := d.bus.ReadByteFromReg(d.addr, regChipID)
	return err == nil && id == ChipID
}

// Configure powers both sensors, applies cfg and loads the factory
// calibration. A zero Config selects Normal mode with default sampling.
func (d *BMP388) Configure(cfg Config) error {
	if cfg == (Config{}) {
		cfg.Mode = Normal
	}
	writes := []struct{ reg, val byte }{
		{regPwrCtrl, pwrPress | pwrTemp | byte(cfg.Mode)},
		{regOSR, byte(cfg.Pressure) | byte(cfg.Temperature)<<3},
		{regODR, byte(cfg.ODR)},
		{regConfig, byte(cfg.IIR) << 1},
	}
	for _, w := range writes {
		if err := d.bus.WriteByteToReg(d.addr, w.reg, w.val); err != nil {
			return fmt.Errorf("bmp388: write register %#x: %w", w.reg, err)
		}
	}
	d.mode = cfg.Mode

	status, err := d.bus.ReadByteFromReg(d.addr, regErr)
	if err != nil {
		return fmt.Errorf("bmp388: read error register: %w", err)
	}
	if status&errConf != 0 {
		return ErrConfig
	}

	buf := make([]byte, calibLen)
	if err := d.bus.ReadFromReg(d.addr, regCalib, buf); err != nil {
		return fmt.Errorf("bmp388: read calibration: %w", err)
	}
	d.calib, d.hasCal = parseCalibration(buf), true
	return nil
}

// SetMode changes the power mode, keeping both sensors enabled.
func (d *BMP388) SetMode(mode Mode) error {
	d.mode = mode
	return d.bus.WriteByteToReg(d.addr, regPwrCtrl, pwrPress|pwrTemp|byte(mode))
}

// Reset restores the power-on configuration. Configure must be called again.
func (d *BMP388) Reset() error {
	status, err := d.bus.ReadByteFromReg(d.addr, regStatus)
	if err != nil {
		return fmt.Errorf("bmp388: read status: %w", err)
	}
	if status&statusCmdReady == 0 {
		return errors.New("bmp388: command decoder busy")
	}
	if err := d.bus.WriteByteToReg(d.addr, regCmd, cmdSoftReset); err != nil {
		return fmt.Errorf("bmp388: soft reset: %w", err)
	}
	d.hasCal = false
	return nil
}

// Read returns temperature and pressure from one burst of the data
// registers, so both come from the same conversion.
func (d *BMP388) Read() (Measurement, error) {
	if !d.hasCal || !d.Connected() {
		return Measurement{}, ErrNotConnected
	}
	if d.mode == Forced || d.mode == Sleep {
		if err := d.SetMode(Forced); err != nil {
			return Measurement{}, err
		}
	}
	status, err := d.bus.ReadByteFromReg(d.addr, regStatus)
	if err != nil {
		return Measurement{}, err
	}
	if status&(statusPress|statusTemp) != statusPress|statusTemp {
		return Measurement{}, ErrNotReady
	}

	buf := make([]byte, dataLen)
	if err := d.bus.ReadFromReg(d.addr, regData, buf); err != nil {
		return Measurement{}, err
	}
	rawPress := int64(buf[0]) | int64(buf[1])<<8 | int64(buf[2])<<16
	rawTemp := int64(buf[3]) | int64(buf[4])<<8 | int64(buf[5])<<16

	tlin := d.calib.tempLinear(rawTemp)
	// Centidegrees and centipascal.
	return Measurement{
		Temperature: float64((tlin*25)/16384) / 100,
		Pressure:    float64(d.calib.pressure(rawPress, tlin)) / 10000,
	}, nil
}

// ReadTemperature returns the compensated temperature in °C.
func (d *BMP388) ReadTemperature() (float64, error) {
	m, err := d.Read()
	return m.Temperature, err
}

// ReadPressure returns the compensated pressure in hPa.
func (d *BMP388) ReadPressure() (float64, error) {
	m, err := d.Read()
	return m.Pressure, err
}

func (c calibration) tempLinear(raw int64) int64 {
	d1 := raw - 256*int64(c.t1)
	d2 := int64(c.t2) * d1
	d3 := d1 * d1
	d4 := d3 * int64(c.t3)
	d5 := d2*262144 + d4
	return d5 / 4294967296
}

func (c calibration) pressure(raw, tlin int64) uint64 {
	d1 := tlin * tlin
	d2 := d1 / 64
	d3 := (d2 * tlin) / 256
	d4 := (int64(c.p8) * d3) / 32
	d5 := (int64(c.p7) * d1) * 16
	d6 := (int64(c.p6) * tlin) * 4194304
	offset := int64(c.p5)*140737488355328 + d4 + d5 + d6

	d2 = (int64(c.p4) * d3) / 32
	d4 = (int64(c.p3) * d1) * 4
	d5 = (int64(c.p2) - 16384) * tlin * 2097152
	sensitivity := (int64(c.p1)-16384)*70368744177664 + d2 + d4 + d5

	d1 = (sensitivity / 16777216) * raw
	d2 = int64(c.p10) * tlin
	d3 = d2 + 65536*int64(c.p9)
	d4 = (d3 * raw) / 8192
	// Divide before multiplying so raw*d4 can't overflow.
	d5 = (raw * (d4 / 10)) / 512 * 10
	d6 = int64(uint64(raw) * uint64(raw))
	d2 = (int64(c.p11) * d6) / 65536
	d3 = (d2 * raw) / 128
	d4 = offset/4 + d1 + d5 + d3
	return (uint64(d4) * 25) / 1099511627776
}
