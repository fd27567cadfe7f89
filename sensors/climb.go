package sensors

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/rocketfc/rocketfc/model"
)

// QNH is the standard sea level pressure in hPa.
const QNH = 1013.25

// PressureAltitude converts a pressure in hPa to ISA altitude in meters.
func PressureAltitude(press, qnh float64) float64 {
	return 44330.77 * (1.0 - math.Pow(press/qnh, 0.190284))
}

// ClimbEstimator turns raw pressure readings into altitude above the pad and a
// vertical speed. The climb rate is the least-squares slope over a sliding
// window, which rejects the single-sample noise a finite difference amplifies.
type ClimbEstimator struct {
	window      int
	groundCount int

	ts, alts []float64
	ground   float64
	nGround  int
}

// NewClimbEstimator fits over window samples and averages the first
// groundSamples altitudes into the pad reference.
func NewClimbEstimator(window, groundSamples int) *ClimbEstimator {
	if window < 2 {
		window = 2
	}
	if groundSamples < 1 {
		groundSamples = 1
	}
	return &ClimbEstimator{
		window:      window,
		groundCount: groundSamples,
		ts:          make([]float64, 0, window),
		alts:        make([]float64, 0, window),
	}
}

// Ground returns the pad altitude and whether it is settled.
func (c *ClimbEstimator) Ground() (float64, bool) {
	return c.ground, c.nGround >= c.groundCount
}

// Update adds a reading taken at t and returns the derived sample.
func (c *ClimbEstimator) Update(t time.Duration, press, temp float64) model.BaroSample {
	alt := PressureAltitude(press, QNH)
	if c.nGround < c.groundCount {
		c.nGround++
		c.ground += (alt - c.ground) / float64(c.nGround)
	}

	if len(c.ts) == c.window {
		copy(c.ts, c.ts[1:])
		copy(c.alts, c.alts[1:])
		c.ts = c.ts[:c.window-1]
		c.alts = c.alts[:c.window-1]
	}
	c.ts = append(c.ts, t.Seconds())
	c.alts = append(c.alts, alt)

	var climb float64
	if len(c.ts) >= 2 && c.ts[len(c.ts)-1] > c.ts[0] {
		_, climb = stat.LinearRegression(c.ts, c.alts, nil, false)
	}
	return model.BaroSample{
		Pressure:    press,
		Temperature: temp,
		Altitude:    alt - c.ground,
		ClimbRate:   climb,
	}
}

// Reset drops the window and the pad reference.
func (c *ClimbEstimator) Reset() {
	c.ResetWindow()
	c.ground = 0
	c.nGround = 0
}

// ResetWindow drops the slope window but keeps the pad reference, so
// altitudes stay relative to the same ground after a sensor restart.
func (c *ClimbEstimator) ResetWindow() {
	c.ts = c.ts[:0]
	c.alts = c.alts[:0]
}
