package flight

import (
	"errors"
	"fmt"
)

var ErrBadConfig = errors.New("flight: invalid configuration")

// Config holds the phase detection thresholds. Accelerations in m/s²,
// rates in m/s.
type Config struct {
	LiftoffAccel    float64 `yaml:"liftoff_accel" json:"liftoff_accel"`
	BurnAccel       float64 `yaml:"burn_accel" json:"burn_accel"`
	DescentRate     float64 `yaml:"descent_rate" json:"descent_rate"`
	LandedAccelBand float64 `yaml:"landed_accel_band" json:"landed_accel_band"`
	LandedClimbRate float64 `yaml:"landed_climb_rate" json:"landed_climb_rate"`
	DebounceTicks   uint16  `yaml:"debounce_ticks" json:"debounce_ticks"`
	LandedTicks     uint16  `yaml:"landed_ticks" json:"landed_ticks"`

	ImuAccelLimit     float64 `yaml:"imu_accel_limit" json:"imu_accel_limit"` // sensor full scale
	ImuGyroLimit      float64 `yaml:"imu_gyro_limit" json:"imu_gyro_limit"`   // deg/s full scale
	MinPressure       float64 `yaml:"min_pressure" json:"min_pressure"`       // hPa
	MaxPressure       float64 `yaml:"max_pressure" json:"max_pressure"`       // hPa
	BaroJumpTolerance float64 `yaml:"baro_jump_tolerance" json:"baro_jump_tolerance"`

	// MaxDt is the stall ceiling in seconds. computer.Config sets it.
	MaxDt float64 `yaml:"-" json:"-"`
}

func DefaultConfig() Config {
	return Config{
		LiftoffAccel:      25,
		BurnAccel:         15,
		DescentRate:       2,
		LandedAccelBand:   1.5,
		LandedClimbRate:   0.5,
		DebounceTicks:     5,
		LandedTicks:       50,
		ImuAccelLimit:     16 * 9.80665,
		ImuGyroLimit:      2000,
		MinPressure:       300,
		MaxPressure:       1100,
		BaroJumpTolerance: 30,
		MaxDt:             0.2,
	}
}

func (c Config) Validate() error {
	switch {
	case c.DebounceTicks == 0 || c.LandedTicks == 0:
		return fmt.Errorf("%w: debounce tick counts must be at least 1", ErrBadConfig)
	case c.LiftoffAccel <= 0 || c.BurnAccel <= 0:
		return fmt.Errorf("%w: acceleration thresholds must be positive", ErrBadConfig)
	case c.DescentRate <= 0:
		return fmt.Errorf("%w: descent_rate must be positive", ErrBadConfig)
	case c.LandedAccelBand <= 0 || c.LandedClimbRate <= 0:
		return fmt.Errorf("%w: landed bands must be positive", ErrBadConfig)
	case c.ImuAccelLimit <= c.LiftoffAccel:
		return fmt.Errorf("%w: imu_accel_limit %v must exceed liftoff_accel %v", ErrBadConfig, c.ImuAccelLimit, c.LiftoffAccel)
	case c.ImuGyroLimit <= 0:
		return fmt.Errorf("%w: imu_gyro_limit must be positive", ErrBadConfig)
	case c.MinPressure >= c.MaxPressure:
		return fmt.Errorf("%w: pressure window [%v, %v] is empty", ErrBadConfig, c.MinPressure, c.MaxPressure)
	case c.BaroJumpTolerance <= 0:
		return fmt.Errorf("%w: baro_jump_tolerance must be positive", ErrBadConfig)
	case c.MaxDt <= 0:
		return fmt.Errorf("%w: max_dt must be positive", ErrBadConfig)
	}
	return nil
}
