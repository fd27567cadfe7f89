package record

import (
	"testing"

	"github.com/rocketfc/rocketfc/deploy"
	"github.com/rocketfc/rocketfc/flight"
	"github.com/rocketfc/rocketfc/model"
)

func TestFlatten(t *testing.T) {
	r := FlightRecord{
		Seq:    3,
		TimeMs: 1500,
		Imu:    model.ImuSample{Az: 9.8, Gz: 12},
		Baro:   &model.BaroSample{Pressure: 1001, Altitude: 42, ClimbRate: -3},
		Gps:    &model.GpsSample{LatitudeE7: 375665000, LongitudeE7: 1269780000, Sats: 9, Fix: true},
		State:  flight.Descent,
		Deploy: deploy.Lock,

		Deployed: true,
		ServoDeg: 95,
	}
	row := r.Flatten()
	if row.HasMag {
		t.Error("HasMag set without a magnetometer sample")
	}
	if !row.HasBaro || row.Altitude != 42 || row.ClimbRate != -3 {
		t.Errorf("baro columns: %+v", row)
	}
	if !row.HasGps || row.Lat != 37.5665 || row.GpsSats != 9 {
		t.Errorf("gps columns: lat=%v sats=%d", row.Lat, row.GpsSats)
	}
	if row.State != "DESCENT" || row.Deploy != "LOCK" {
		t.Errorf("state columns: %s %s", row.State, row.Deploy)
	}
	cols := row.Columns()
	if cols["Deployed"] != 1 || cols["ServoDeg"] != 95 || cols["Gz"] != 12 {
		t.Errorf("columns: %v", cols)
	}
}

func TestMultiSink(t *testing.T) {
	var got []uint32
	s := MultiSink{
		SinkFunc(func(r FlightRecord) { got = append(got, r.Seq) }),
		SinkFunc(func(r FlightRecord) { got = append(got, r.Seq*10) }),
	}
	s.Send(FlightRecord{Seq: 2})
	if len(got) != 2 || got[0] != 2 || got[1] != 20 {
		t.Errorf("got %v", got)
	}
}
