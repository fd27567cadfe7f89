package attitude

import (
	"errors"
	"fmt"
)

// Mode selects the sensor fusion strategy.
type Mode string

const (
	Complementary Mode = "complementary"
	Mahony        Mode = "mahony"
	DCM           Mode = "dcm"
)

var ErrBadConfig = errors.New("attitude: invalid configuration")

// Config holds the estimator tuning. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	Mode Mode `yaml:"mode" json:"mode"`

	LPFK           float64 `yaml:"lpf_k" json:"lpf_k"`                     // raw channel low-pass coefficient
	WeightLPFK     float64 `yaml:"weight_lpf_k" json:"weight_lpf_k"`       // adaptive weight low-pass coefficient
	DeadBandG      float64 `yaml:"dead_band_g" json:"dead_band_g"`         // |a|-1g below which the gyro weight is 0
	FullScaleG     float64 `yaml:"full_scale_g" json:"full_scale_g"`       // |a|-1g at which the gyro weight reaches 1
	FaultBelowG    float64 `yaml:"fault_below_g" json:"fault_below_g"`     // |a| under this trusts the gyro alone
	DeclinationDeg float64 `yaml:"declination_deg" json:"declination_deg"` // added to the magnetic yaw
	CosPitchFloor  float64 `yaml:"cos_pitch_floor" json:"cos_pitch_floor"`

	TwoKp float64 `yaml:"two_kp" json:"two_kp"` // Mahony proportional gain (2*Kp)
	TwoKi float64 `yaml:"two_ki" json:"two_ki"` // Mahony integral gain (2*Ki)

	KpAcc float64 `yaml:"kp_acc" json:"kp_acc"` // DCM gravity correction gain
	KpMag float64 `yaml:"kp_mag" json:"kp_mag"` // DCM heading correction gain
	Ki    float64 `yaml:"ki" json:"ki"`         // DCM gyro bias gain

	MaxDt       float64 `yaml:"-" json:"-"` // seconds; longer ticks are stalls. Set from computer.Config
	FastInvSqrt bool    `yaml:"fast_inv_sqrt" json:"fast_inv_sqrt"`
}

func DefaultConfig() Config {
	return Config{
		Mode:           Complementary,
		LPFK:           0.20,
		WeightLPFK:     0.15,
		DeadBandG:      0.03,
		FullScaleG:     0.30,
		FaultBelowG:    0.20,
		DeclinationDeg: 8.6,
		CosPitchFloor:  1e-3,
		TwoKp:          3.0,
		TwoKi:          0.4,
		KpAcc:          2.0,
		KpMag:          0.5,
		Ki:             0.01,
		MaxDt:          0.2,
		FastInvSqrt:    true,
	}
}

// Validate rejects configurations the estimator cannot run with.
func (c Config) Validate() error {
	switch c.Mode {
	case Complementary, Mahony, DCM:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrBadConfig, c.Mode)
	}
	if c.LPFK <= 0 || c.LPFK > 1 {
		return fmt.Errorf("%w: lpf_k %v not in (0, 1]", ErrBadConfig, c.LPFK)
	}
	if c.WeightLPFK <= 0 || c.WeightLPFK > 1 {
		return fmt.Errorf("%w: weight_lpf_k %v not in (0, 1]", ErrBadConfig, c.WeightLPFK)
	}
	if c.DeadBandG < 0 || c.FullScaleG <= c.DeadBandG {
		return fmt.Errorf("%w: need 0 <= dead_band_g < full_scale_g", ErrBadConfig)
	}
	if c.FaultBelowG < 0 || c.FaultBelowG >= 1 {
		return fmt.Errorf("%w: fault_below_g %v not in [0, 1)", ErrBadConfig, c.FaultBelowG)
	}
	if c.CosPitchFloor <= 0 || c.CosPitchFloor >= 1 {
		return fmt.Errorf("%w: cos_pitch_floor %v not in (0, 1)", ErrBadConfig, c.CosPitchFloor)
	}
	if c.TwoKp < 0 || c.TwoKi < 0 || c.KpAcc < 0 || c.KpMag < 0 || c.Ki < 0 {
		return fmt.Errorf("%w: negative feedback gain", ErrBadConfig)
	}
	if c.MaxDt <= 0 {
		return fmt.Errorf("%w: max_dt must be positive", ErrBadConfig)
	}
	return nil
}
