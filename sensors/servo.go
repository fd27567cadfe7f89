package sensors

import (
	"fmt"
	"sync"

	"github.com/kidoman/embd"
	"github.com/kidoman/embd/controller/pca9685"

	"github.com/rocketfc/rocketfc/attitude"
)

const (
	// PCA9685Address is the default I2C address of the servo board.
	PCA9685Address = 0x40

	servoFreq  = 50 // Hz, a 20 ms frame
	servoMinUs = 500
	servoMaxUs = 2500
	pwmTicks   = 4096
	framePerUs = 20000
)

// ServoTicks converts a servo angle to the PCA9685 off count for a 50 Hz frame.
// The angle is clamped to [0, 180].
func ServoTicks(deg float64) uint16 {
	deg = attitude.Clamp(deg, 0, 180)
	us := float64(servoMinUs) + float64(servoMaxUs-servoMinUs)*(deg/180)
	ticks := attitude.Clamp(us*pwmTicks/framePerUs, 0, pwmTicks-1)
	return uint16(ticks + 0.5)
}

// ServoDriver drives hobby servos from a PCA9685 PWM board. It satisfies
// deploy.Actuator.
type ServoDriver struct {
	mu  sync.Mutex
	pwm *pca9685.PCA9685
}

// NewServoDriver wakes the PCA9685 at addr and sets the 50 Hz servo frame.
func NewServoDriver(bus embd.I2CBus, addr byte) (*ServoDriver, error) {
	pwm := pca9685.New(bus, addr)
	pwm.Freq = servoFreq
	// The first write wakes the chip; a failure here means it isn't on the bus.
	if err := pwm.SetPwm(0, 0, 0); err != nil {
		return nil, fmt.Errorf("pca9685: %w", err)
	}
	return &ServoDriver{pwm: pwm}, nil
}

// SetPosition commands channel to deg.
func (s *ServoDriver) SetPosition(channel uint8, deg float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pwm.SetPwm(int(channel), 0, int(ServoTicks(deg))); err != nil {
		return fmt.Errorf("pca9685 channel %d: %w", channel, err)
	}
	return nil
}

// Close puts the PCA9685 to sleep.
func (s *ServoDriver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pwm.Close()
}
