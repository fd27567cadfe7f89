// replay re-flies a recorded sensor log through the flight computer on a
// manual clock and writes the same outputs the daemon would.
//
//	replay -config rocketfc.yaml -out /tmp/bench flight.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/exp/slices"

	"github.com/rocketfc/rocketfc/clock"
	"github.com/rocketfc/rocketfc/computer"
	"github.com/rocketfc/rocketfc/config"
	"github.com/rocketfc/rocketfc/datalog"
	"github.com/rocketfc/rocketfc/flight"
	"github.com/rocketfc/rocketfc/flightlog"
	"github.com/rocketfc/rocketfc/log"
	"github.com/rocketfc/rocketfc/record"
	"github.com/rocketfc/rocketfc/sensors"
	"github.com/rocketfc/rocketfc/telemetry"
)

// nullServo accepts every command.
type nullServo struct{}

func (nullServo) SetPosition(uint8, float64) error { return nil }

// summary follows the records of one replay.
type summary struct {
	records     int
	lastMs      uint32
	transitions map[flight.State]uint32
	maxAlt      float64
	maxClimb    float64
	deployMs    uint32
	deployed    bool
	stalls      int
	faults      int
}

func (s *summary) Send(rec record.FlightRecord) {
	if _, seen := s.transitions[rec.State]; !seen {
		s.transitions[rec.State] = rec.TimeMs
	}
	s.records++
	s.lastMs = rec.TimeMs
	if b := rec.Baro; b != nil {
		if b.Altitude > s.maxAlt {
			s.maxAlt = b.Altitude
		}
		if b.ClimbRate > s.maxClimb {
			s.maxClimb = b.ClimbRate
		}
	}
	if rec.Deployed && !s.deployed {
		s.deployed, s.deployMs = true, rec.TimeMs
	}
	if rec.Stalled {
		s.stalls++
	}
	if rec.Faults.Any() {
		s.faults++
	}
}

func ms(t uint32) string {
	return (time.Duration(t) * time.Millisecond).String()
}

func (s *summary) print(out string) {
	fmt.Printf("%s records over %s\n", humanize.Comma(int64(s.records)), ms(s.lastMs))
	states := make([]flight.State, 0, len(s.transitions))
	for st := range s.transitions {
		states = append(states, st)
	}
	slices.Sort(states)
	for _, st := range states {
		fmt.Printf("  %-9s at %s\n", st, ms(s.transitions[st]))
	}
	fmt.Printf("max altitude %.1f m, max climb %.1f m/s\n", s.maxAlt, s.maxClimb)
	if s.deployed {
		fmt.Printf("parachute deployed at %s\n", ms(s.deployMs))
	} else {
		fmt.Println("parachute NOT deployed")
	}
	if s.stalls > 0 || s.faults > 0 {
		fmt.Printf("%d stalled ticks, %d ticks with sensor faults\n", s.stalls, s.faults)
	}
	if out == "" {
		return
	}
	filepath.Walk(out, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			fmt.Printf("wrote %s (%s)\n", path, humanize.Bytes(uint64(info.Size())))
		}
		return nil
	})
}

func openSource(path string, clk *clock.Manual) (computer.Source, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	var src computer.Source
	if strings.EqualFold(filepath.Ext(path), ".rlg") {
		src, err = sensors.NewLogReplay(f, clk)
	} else {
		src, err = sensors.NewReplay(f, clk)
	}
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return src, f.Close, nil
}

func run(cfgPath, out, in string) error {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			return err
		}
	}

	clk := &clock.Manual{}
	src, closeSrc, err := openSource(in, clk)
	if err != nil {
		return err
	}
	defer closeSrc()

	sum := &summary{transitions: make(map[flight.State]uint32)}
	sinks := record.MultiSink{sum}
	var closers []func() error
	defer func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warnf("Replay Error: %s", err)
			}
		}
	}()

	if out != "" {
		if err := os.MkdirAll(out, 0o755); err != nil {
			return err
		}
		dcfg := cfg.Datalog
		dcfg.Path = filepath.Join(out, "flights.db")
		dcfg.Site = strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		dl, err := datalog.Open(dcfg)
		if err != nil {
			return err
		}
		closers = append(closers, dl.Close)

		f, err := os.Create(filepath.Join(out, "flight-"+dl.FlightID()+".rlg"))
		if err != nil {
			return err
		}
		w, err := flightlog.NewWriter(f)
		if err != nil {
			f.Close()
			return err
		}
		closers = append(closers, w.Close)

		a, err := telemetry.NewAnalysisLog(filepath.Join(out, "analysis.csv"))
		if err != nil {
			return err
		}
		closers = append(closers, func() error { a.Close(); return nil })
		sinks = append(sinks, dl, w, a)
	}

	comp, err := computer.New(cfg.Computer, nullServo{}, sinks, nil)
	if err != nil {
		return err
	}
	if err := comp.Start(); err != nil {
		return err
	}
	if err := comp.Run(context.Background(), src, 0); err != nil {
		return err
	}
	for _, c := range closers {
		if err := c(); err != nil {
			return err
		}
	}
	closers = nil
	sum.print(out)
	return nil
}

func main() {
	cfgPath := flag.String("config", "", "configuration file (defaults when empty)")
	out := flag.String("out", "", "directory for the datalog, RLG1 log and analysis CSV")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: replay [-config file] [-out dir] log.csv|log.rlg")
		os.Exit(2)
	}
	if err := log.Init(*debug, ""); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(*cfgPath, *out, flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
}
