package sensors

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kidoman/embd"

	"github.com/rocketfc/rocketfc/sensors/bmp388"
)

const bmpPollPeriod = 20 * time.Millisecond

// BMP388 polls a Bosch BMP388 in the background and satisfies PressureReader.
type BMP388 struct {
	sensor *bmp388.BMP388

	mu          sync.Mutex
	temperature float64
	pressure    float64
	err         error
	running     bool
	done        chan struct{}
}

// NewBMP388 configures the sensor for high-rate sampling and starts polling.
func NewBMP388(i2cbus *embd.I2CBus) (*BMP388, error) {
	dev := bmp388.New(*i2cbus, bmp388.Address)
	if !dev.Connected() {
		return nil, bmp388.ErrNotConnected
	}
	cfg := bmp388.Config{
		Pressure:    bmp388.Sampling8X,
		Temperature: bmp388.Sampling1X,
		Mode:        bmp388.Normal,
		ODR:         bmp388.Odr50,
		IIR:         bmp388.Coeff3,
	}
	if err := dev.Configure(cfg); err != nil {
		return nil, fmt.Errorf("bmp388: %w", err)
	}
	bmp := &BMP388{sensor: dev, running: true, done: make(chan struct{})}
	bmp.poll()
	go bmp.run()
	return bmp, nil
}

func (bmp *BMP388) run() {
	clock := time.NewTicker(bmpPollPeriod)
	defer clock.Stop()
	for {
		select {
		case <-bmp.done:
			return
		case <-clock.C:
			bmp.poll()
		}
	}
}

func (bmp *BMP388) poll() {
	m, err := bmp.sensor.Read()
	if errors.Is(err, bmp388.ErrNotReady) {
		return
	}
	bmp.mu.Lock()
	defer bmp.mu.Unlock()
	bmp.err = err
	if err == nil {
		bmp.pressure, bmp.temperature = m.Pressure, m.Temperature
	}
}

// Close stops polling and puts the sensor to sleep.
func (bmp *BMP388) Close() {
	bmp.mu.Lock()
	if !bmp.running {
		bmp.mu.Unlock()
		return
	}
	bmp.running = false
	bmp.mu.Unlock()
	close(bmp.done)
	_ = bmp.sensor.SetMode(bmp388.Sleep)
}

// Temperature returns the current temperature in degrees C measured by the BMP388.
func (bmp *BMP388) Temperature() (float64, error) {
	bmp.mu.Lock()
	defer bmp.mu.Unlock()
	if !bmp.running {
		return 0, bmp388.ErrNotConnected
	}
	return bmp.temperature, bmp.err
}

// Pressure returns the current pressure in hPa.
func (bmp *BMP388) Pressure() (float64, error) {
	bmp.mu.Lock()
	defer bmp.mu.Unlock()
	if !bmp.running {
		return 0, bmp388.ErrNotConnected
	}
	return bmp.pressure, bmp.err
}
