// Package record defines the per-tick flight snapshot and the sink interface
// collaborators implement to receive it.
package record

import (
	"github.com/rocketfc/rocketfc/attitude"
	"github.com/rocketfc/rocketfc/deploy"
	"github.com/rocketfc/rocketfc/flight"
	"github.com/rocketfc/rocketfc/model"
)

// FlightRecord is composed once per tick after every core component has
// run. Each field has a single writer; sinks treat it as read-only.
type FlightRecord struct {
	Seq    uint32
	TimeMs uint32 // monotonic ms since boot

	Imu  model.ImuSample
	Mag  *model.MagSample
	Baro *model.BaroSample
	Gps  *model.GpsSample

	Attitude   attitude.Attitude
	RocketRoll float64 // deg, spin about the airframe long axis

	State  flight.State
	Faults flight.Faults

	Deploy   deploy.State
	Deployed bool

	ControlOutput float64 // controller output, deg
	ServoDeg      float64 // commanded stabilizer servo angle
	Stalled       bool    // dt was out of range; estimates were held
}

// Sink receives every record. Send must not block the flight loop.
type Sink interface {
	Send(rec FlightRecord)
}

// MultiSink fans a record out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Send(rec FlightRecord) {
	for _, s := range m {
		s.Send(rec)
	}
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(FlightRecord)

func (f SinkFunc) Send(rec FlightRecord) { f(rec) }
