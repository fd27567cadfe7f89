package computer

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rocketfc/rocketfc/deploy"
	"github.com/rocketfc/rocketfc/flight"
	"github.com/rocketfc/rocketfc/model"
	"github.com/rocketfc/rocketfc/record"
)

const tick = 10 * time.Millisecond

type servoCmd struct {
	ch  uint8
	deg float64
}

type fakeServo struct{ cmds []servoCmd }

func (f *fakeServo) SetPosition(ch uint8, deg float64) error {
	f.cmds = append(f.cmds, servoCmd{ch, deg})
	return nil
}

func (f *fakeServo) on(ch uint8) []float64 {
	var out []float64
	for _, c := range f.cmds {
		if c.ch == ch {
			out = append(out, c.deg)
		}
	}
	return out
}

// flightSim produces frames for a simple vertical flight profile.
type flightSim struct {
	t   time.Duration
	alt float64
}

func (s *flightSim) frame(accel, climb, spin float64) model.Frame {
	s.t += tick
	s.alt += climb * tick.Seconds()
	return model.Frame{
		T:    s.t,
		Imu:  model.ImuSample{Az: accel, Gz: spin},
		Baro: &model.BaroSample{Pressure: 1000, Altitude: s.alt, ClimbRate: climb},
	}
}

func newComputer(t *testing.T, sink record.Sink) (*Computer, *fakeServo) {
	t.Helper()
	servo := &fakeServo{}
	c, err := New(DefaultConfig(), servo, sink, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c, servo
}

func TestFullFlightDeploysOnce(t *testing.T) {
	var recs []record.FlightRecord
	c, servo := newComputer(t, record.SinkFunc(func(r record.FlightRecord) { recs = append(recs, r) }))
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	sim := &flightSim{}
	phases := []struct {
		n            int
		accel, climb float64
	}{
		{100, model.StandardGravity, 0}, // pad
		{150, 80, 60},                   // burn
		{300, 2, 40},                    // coast
		{50, 2, 0},                      // apogee
		{200, 9, -20},                   // descent
	}
	for _, p := range phases {
		for i := 0; i < p.n; i++ {
			c.Tick(sim.frame(p.accel, p.climb, 0))
		}
	}

	var seen []flight.State
	deployedAt := -1
	for i, r := range recs {
		if len(seen) == 0 || seen[len(seen)-1] != r.State {
			seen = append(seen, r.State)
		}
		if r.Deployed && deployedAt < 0 {
			deployedAt = i
			if r.State < flight.Apogee {
				t.Errorf("deployed in %s", r.State)
			}
		}
		if deployedAt >= 0 && !r.Deployed {
			t.Fatalf("record %d: deployed latch cleared", i)
		}
		if r.Seq != uint32(i+1) {
			t.Fatalf("record %d has seq %d", i, r.Seq)
		}
	}
	want := []flight.State{flight.Standby, flight.Launched, flight.Powered, flight.Coasting, flight.Apogee, flight.Descent}
	if len(seen) != len(want) {
		t.Fatalf("phases %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("phases %v, want %v", seen, want)
		}
	}
	if deployedAt < 0 {
		t.Fatal("never deployed")
	}

	cfg := DefaultConfig().Deploy
	punches := 0
	for _, deg := range servo.on(cfg.Channel) {
		if deg == cfg.PunchAngle {
			punches++
		}
	}
	if punches != cfg.PunchTicks {
		t.Errorf("punch commanded %d times, want %d", punches, cfg.PunchTicks)
	}
	if last := recs[len(recs)-1]; last.Deploy != deploy.Done {
		t.Errorf("final deploy state %s", last.Deploy)
	}
}

func TestStabilizerCountersSpin(t *testing.T) {
	c, servo := newComputer(t, nil)
	sim := &flightSim{}
	for i := 0; i < 20; i++ {
		c.Tick(sim.frame(model.StandardGravity, 0, 0))
	}
	// Every command so far is neutral: no control before liftoff.
	for _, deg := range servo.on(0) {
		if deg != 90 {
			t.Fatalf("servo moved to %v on the pad", deg)
		}
	}
	var rec record.FlightRecord
	for i := 0; i < 30; i++ {
		rec = c.Tick(sim.frame(80, 30, 200))
	}
	if rec.State < flight.Launched {
		t.Fatalf("state %s", rec.State)
	}
	// Positive spin about z drives the roll above the captured target,
	// so the correction is negative.
	if rec.ControlOutput >= 0 || rec.ServoDeg >= 90 {
		t.Errorf("output %v servo %v, want a negative correction", rec.ControlOutput, rec.ServoDeg)
	}
	if rec.ServoDeg < 0 || rec.ServoDeg > 180 {
		t.Errorf("servo %v outside [0, 180]", rec.ServoDeg)
	}
}

func TestSetGainsAppliesNextTick(t *testing.T) {
	c, _ := newComputer(t, nil)
	// Only the last pending update counts.
	c.SetGains(5, 0, 0)
	c.SetGains(0, 0, 0)
	sim := &flightSim{}
	for i := 0; i < 20; i++ {
		c.Tick(sim.frame(model.StandardGravity, 0, 0))
	}
	var rec record.FlightRecord
	for i := 0; i < 30; i++ {
		rec = c.Tick(sim.frame(80, 30, 200))
	}
	if rec.ControlOutput != 0 || rec.ServoDeg != 90 {
		t.Errorf("zero gains: output %v servo %v", rec.ControlOutput, rec.ServoDeg)
	}
}

func TestStallHoldsEverything(t *testing.T) {
	c, servo := newComputer(t, nil)
	sim := &flightSim{}
	var before record.FlightRecord
	for i := 0; i < 10; i++ {
		before = c.Tick(sim.frame(model.StandardGravity, 0, 0))
	}
	n := len(servo.cmds)
	// A frame 1 s late and one from the past.
	late := sim.frame(60, 0, 500)
	late.T += time.Second
	past := late
	past.T -= 2 * time.Second
	for _, f := range []model.Frame{late, past} {
		r := c.Tick(f)
		if !r.Stalled {
			t.Errorf("T=%v not flagged as stalled", f.T)
		}
		if r.Attitude != before.Attitude || r.State != before.State {
			t.Errorf("stalled tick changed the estimate: %+v", r)
		}
	}
	if len(servo.cmds) != n {
		t.Errorf("stalled ticks commanded the servo")
	}
}

func TestStallCeilingShared(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDt = 0.05
	cfg.Attitude.MaxDt = 1
	cfg.Flight.MaxDt = 1
	c, err := New(cfg, &fakeServo{}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	sim := &flightSim{}
	var before record.FlightRecord
	for i := 0; i < 5; i++ {
		before = c.Tick(sim.frame(model.StandardGravity, 0, 0))
	}
	// 100 ms is inside the stage defaults but past the computer's ceiling.
	late := sim.frame(60, 0, 500)
	late.T += 90 * time.Millisecond
	r := c.Tick(late)
	if !r.Stalled {
		t.Fatal("100 ms tick not flagged as stalled")
	}
	if r.State != flight.Standby || r.Attitude != before.Attitude {
		t.Errorf("estimator or classifier ran on a stalled tick: %+v", r)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c, err := New(DefaultConfig(), &fakeServo{}, nil, m)
	if err != nil {
		t.Fatal(err)
	}
	sim := &flightSim{}
	for i := 0; i < 5; i++ {
		c.Tick(sim.frame(model.StandardGravity, 0, 0))
	}
	c.Tick(sim.frame(math.NaN(), 0, 0))
	if got := testutil.ToFloat64(m.ticks); got != 6 {
		t.Errorf("ticks = %v, want 6", got)
	}
	// The first frame has no dt.
	if got := testutil.ToFloat64(m.stalls); got != 1 {
		t.Errorf("stalls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.faults.WithLabelValues("imu")); got != 1 {
		t.Errorf("imu faults = %v, want 1", got)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServoChannel = cfg.Deploy.Channel
	if _, err := New(cfg, &fakeServo{}, nil, nil); !errors.Is(err, ErrBadConfig) {
		t.Errorf("shared channel: err = %v", err)
	}
	cfg = DefaultConfig()
	cfg.ControlFrom, cfg.ControlUntil = flight.Apogee, flight.Launched
	if _, err := New(cfg, &fakeServo{}, nil, nil); err == nil {
		t.Error("empty control window accepted")
	}
	cfg = DefaultConfig()
	cfg.MaxDt = 0
	if _, err := New(cfg, &fakeServo{}, nil, nil); !errors.Is(err, ErrBadConfig) {
		t.Errorf("zero max_dt: err = %v", err)
	}
	cfg = DefaultConfig()
	cfg.Control.Kp = -1
	if _, err := New(cfg, &fakeServo{}, nil, nil); err == nil {
		t.Error("negative gain accepted")
	}
}

type sliceSource struct {
	frames []model.Frame
	errs   int
}

func (s *sliceSource) Read(ctx context.Context) (model.Frame, error) {
	if s.errs > 0 {
		s.errs--
		return model.Frame{}, errors.New("i2c timeout")
	}
	if len(s.frames) == 0 {
		return model.Frame{}, io.EOF
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func TestRunUntilEOF(t *testing.T) {
	var n int
	c, _ := newComputer(t, record.SinkFunc(func(record.FlightRecord) { n++ }))
	sim := &flightSim{}
	src := &sliceSource{errs: MaxReadErrors - 1}
	for i := 0; i < 25; i++ {
		src.frames = append(src.frames, sim.frame(model.StandardGravity, 0, 0))
	}
	if err := c.Run(context.Background(), src, 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 25 {
		t.Errorf("%d records, want 25", n)
	}
}

func TestRunGivesUpOnReadErrors(t *testing.T) {
	c, _ := newComputer(t, nil)
	src := &sliceSource{errs: MaxReadErrors}
	if err := c.Run(context.Background(), src, 0); err == nil {
		t.Error("expected an error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	c, _ := newComputer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Run(ctx, &sliceSource{}, time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
