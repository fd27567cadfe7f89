// Package telemetry carries flight records off the board: a websocket
// broadcaster for the ground dashboard, a framed serial link for the radio
// and a CSV analysis log.
package telemetry

import (
	"github.com/rocketfc/rocketfc/record"
)

// Message is the envelope every websocket payload uses.
type Message struct {
	Type string     `json:"type"`
	Data *Telemetry `json:"data,omitempty"`
}

// Telemetry is the dashboard view of a FlightRecord.
type Telemetry struct {
	Seq         uint32  `json:"seq" msgpack:"q"`
	TimeMs      uint32  `json:"timestamp" msgpack:"t"`
	Roll        float32 `json:"roll" msgpack:"r"`
	Pitch       float32 `json:"pitch" msgpack:"p"`
	Yaw         float32 `json:"yaw" msgpack:"y"`
	RocketRoll  float32 `json:"rocketRoll" msgpack:"rr"`
	Latitude    float64 `json:"latitude,omitempty" msgpack:"la,omitempty"`
	Longitude   float64 `json:"longitude,omitempty" msgpack:"lo,omitempty"`
	Altitude    float32 `json:"altitude" msgpack:"a"`
	ClimbRate   float32 `json:"climbRate" msgpack:"c"`
	Speed       float32 `json:"speed" msgpack:"s"`
	Temperature float32 `json:"temperature" msgpack:"tc"`
	Pressure    float32 `json:"pressure" msgpack:"hp"`
	Parachute   uint8   `json:"parachuteStatus" msgpack:"d"`
	FlightPhase uint8   `json:"flightPhase" msgpack:"f"`
	PhaseName   string  `json:"phaseName" msgpack:"-"`
	DeployState string  `json:"deployState" msgpack:"-"`
	ServoDeg    float32 `json:"servo" msgpack:"sv"`
	ImuFault    bool    `json:"imuFault" msgpack:"fi"`
	BaroFault   bool    `json:"baroFault" msgpack:"fb"`
	Stalled     bool    `json:"stalled" msgpack:"st"`
}

// FromRecord builds the dashboard view of rec.
func FromRecord(rec record.FlightRecord) Telemetry {
	t := Telemetry{
		Seq:         rec.Seq,
		TimeMs:      rec.TimeMs,
		Roll:        float32(rec.Attitude.Roll),
		Pitch:       float32(rec.Attitude.Pitch),
		Yaw:         float32(rec.Attitude.Yaw),
		RocketRoll:  float32(rec.RocketRoll),
		FlightPhase: uint8(rec.State),
		PhaseName:   rec.State.String(),
		DeployState: rec.Deploy.String(),
		ServoDeg:    float32(rec.ServoDeg),
		ImuFault:    rec.Faults.IMU,
		BaroFault:   rec.Faults.Baro,
		Stalled:     rec.Stalled,
	}
	if rec.Deployed {
		t.Parachute = 1
	}
	if b := rec.Baro; b != nil {
		t.Altitude = float32(b.Altitude)
		t.ClimbRate = float32(b.ClimbRate)
		t.Temperature = float32(b.Temperature)
		t.Pressure = float32(b.Pressure)
	}
	if g := rec.Gps; g != nil && g.Fix {
		t.Latitude = g.Lat()
		t.Longitude = g.Lon()
		t.Speed = g.Speed
	}
	return t
}
