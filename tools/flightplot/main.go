// flightplot draws the altitude, attitude and control traces of an RLG1
// flight log into PNG files.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/rocketfc/rocketfc/flightlog"
	"github.com/rocketfc/rocketfc/record"
)

// series holds one trace per plotted channel, x in seconds.
type series struct {
	altitude, climb              plotter.XYs
	roll, pitch, yaw, rocketRoll plotter.XYs
	servo, control, state        plotter.XYs
}

func extract(recs []record.FlightRecord) series {
	var s series
	for _, r := range recs {
		t := float64(r.TimeMs) / 1000
		if b := r.Baro; b != nil {
			s.altitude = append(s.altitude, plotter.XY{X: t, Y: b.Altitude})
			s.climb = append(s.climb, plotter.XY{X: t, Y: b.ClimbRate})
		}
		if r.Attitude.Valid {
			s.roll = append(s.roll, plotter.XY{X: t, Y: r.Attitude.Roll})
			s.pitch = append(s.pitch, plotter.XY{X: t, Y: r.Attitude.Pitch})
			s.yaw = append(s.yaw, plotter.XY{X: t, Y: r.Attitude.Yaw})
			s.rocketRoll = append(s.rocketRoll, plotter.XY{X: t, Y: r.RocketRoll})
		}
		s.servo = append(s.servo, plotter.XY{X: t, Y: r.ServoDeg})
		s.control = append(s.control, plotter.XY{X: t, Y: r.ControlOutput})
		s.state = append(s.state, plotter.XY{X: t, Y: float64(r.State) * 10})
	}
	return s
}

func save(file, title, ylabel string, lines ...interface{}) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())
	if err := plotutil.AddLines(p, lines...); err != nil {
		return err
	}
	return p.Save(10*vg.Inch, 5*vg.Inch, file)
}

func plotFlight(s series, dir, prefix string) ([]string, error) {
	var written []string
	type chart struct {
		name, title, ylabel string
		lines               []interface{}
	}
	charts := []chart{
		{"altitude", "Altitude", "m, m/s", []interface{}{"Altitude", s.altitude, "Climb", s.climb}},
		{"attitude", "Attitude", "deg", []interface{}{"Roll", s.roll, "Pitch", s.pitch, "Yaw", s.yaw,
			"Rocket roll", s.rocketRoll}},
		{"control", "Control", "deg", []interface{}{"Servo", s.servo, "Output", s.control,
			"Phase x10", s.state}},
	}
	for _, c := range charts {
		if empty(c.lines) {
			continue
		}
		file := filepath.Join(dir, prefix+c.name+".png")
		if err := save(file, c.title, c.ylabel, c.lines...); err != nil {
			return written, fmt.Errorf("%s: %w", file, err)
		}
		written = append(written, file)
	}
	return written, nil
}

// empty reports a chart whose every trace has no points.
func empty(lines []interface{}) bool {
	for _, l := range lines {
		if xys, ok := l.(plotter.XYs); ok && len(xys) > 0 {
			return false
		}
	}
	return true
}

func main() {
	dir := flag.String("dir", ".", "output directory")
	prefix := flag.String("prefix", "", "file name prefix")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: flightplot [-dir dir] [-prefix p] flight.rlg")
		os.Exit(2)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	recs, err := flightlog.ReadAll(f)
	f.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "flightplot:", err)
		os.Exit(1)
	}

	written, err := plotFlight(extract(recs), *dir, *prefix)
	for _, w := range written {
		fmt.Println("wrote", w)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "flightplot:", err)
		os.Exit(1)
	}
}
