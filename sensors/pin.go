package sensors

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
)

// RetentionPin reads the launch-rail retention pin. The pin shorts the GPIO
// to ground while inserted; once pulled the internal pull-up drives it high.
type RetentionPin struct {
	pin   rpio.Pin
	latch bool
}

// OpenRetentionPin maps the GPIO memory and configures the pin as a
// pulled-up input.
func OpenRetentionPin(gpio int) (*RetentionPin, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("retention pin: %w", err)
	}
	pin := rpio.Pin(gpio)
	pin.Input()
	pin.PullUp()
	return &RetentionPin{pin: pin}, nil
}

// Detached reports whether the pin has been pulled. It latches: contact
// bounce during liftoff never reports the pin as back in place.
func (p *RetentionPin) Detached() bool {
	if !p.latch && p.pin.Read() == rpio.High {
		p.latch = true
	}
	return p.latch
}

// Close unmaps the GPIO memory.
func (p *RetentionPin) Close() error {
	return rpio.Close()
}
