package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rocketfc/rocketfc/datalog"
	"github.com/rocketfc/rocketfc/flight"
	"github.com/rocketfc/rocketfc/model"
	"github.com/rocketfc/rocketfc/record"
)

func TestSummary(t *testing.T) {
	s := &summary{transitions: make(map[flight.State]uint32)}
	states := []flight.State{flight.Standby, flight.Standby, flight.Launched, flight.Powered, flight.Powered}
	for i, st := range states {
		s.Send(record.FlightRecord{
			TimeMs:   uint32(i * 10),
			State:    st,
			Baro:     &model.BaroSample{Altitude: float64(i), ClimbRate: float64(10 - i)},
			Deployed: i >= 3,
		})
	}
	if s.records != 5 || s.lastMs != 40 {
		t.Errorf("records %d over %d ms", s.records, s.lastMs)
	}
	if s.transitions[flight.Launched] != 20 || s.transitions[flight.Powered] != 30 {
		t.Errorf("transitions = %v", s.transitions)
	}
	if s.maxAlt != 4 || s.maxClimb != 10 || s.deployMs != 30 {
		t.Errorf("max alt %v, max climb %v, deploy at %d", s.maxAlt, s.maxClimb, s.deployMs)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("t_ms,ax,ay,az,gx,gy,gz,altitude,climb\n")
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&b, "%d,0,0,9.80665,0,0,0,0,0\n", i*10)
	}
	in := filepath.Join(dir, "pad.csv")
	if err := os.WriteFile(in, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "out")
	if err := run("", out, in); err != nil {
		t.Fatal(err)
	}
	flights, err := datalog.Flights(filepath.Join(out, "flights.db"))
	if err != nil {
		t.Fatal(err)
	}
	if len(flights) != 1 || flights[0].Records != 200 || flights[0].Site != "pad" {
		t.Fatalf("flights = %+v", flights)
	}
	if flights[0].FinalState != flight.Standby.String() {
		t.Errorf("final state %s on the pad", flights[0].FinalState)
	}
	for _, name := range []string{"flight-" + flights[0].ID + ".rlg", "analysis.csv"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Error(err)
		}
	}
}
