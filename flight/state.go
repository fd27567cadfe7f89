// Package flight classifies the phase of flight from debounced sensor
// predicates. Phases only ever move forward.
package flight

import (
	"fmt"
	"strings"
)

// State is the flight phase. The numeric order is the flight order.
type State uint8

const (
	Standby State = iota
	Launched
	Powered
	Coasting
	Apogee
	Descent
	Landed
)

var stateNames = [...]string{"STANDBY", "LAUNCHED", "POWERED", "COASTING", "APOGEE", "DESCENT", "LANDED"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// ParseState accepts a state name in any case.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if strings.EqualFold(n, name) {
			return State(i), nil
		}
	}
	return Standby, fmt.Errorf("flight: unknown state %q", name)
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
