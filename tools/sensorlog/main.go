// sensorlog reads the avionics board and prints one CSV row per frame, in
// the column layout the replay source reads back.
//
//	sensorlog -hz 100 -duration 30s > bench.csv
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/kidoman/embd/host/all"

	"github.com/rocketfc/rocketfc/clock"
	"github.com/rocketfc/rocketfc/config"
	"github.com/rocketfc/rocketfc/log"
	"github.com/rocketfc/rocketfc/model"
	"github.com/rocketfc/rocketfc/sensors"
)

var header = []string{"t_ms", "ax", "ay", "az", "gx", "gy", "gz", "mx", "my", "mz",
	"pressure", "temperature", "altitude", "climb", "lat", "lon", "gps_alt", "sats", "pin"}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func frameRow(f model.Frame) []string {
	row := make([]string, len(header))
	row[0] = strconv.FormatInt(f.T.Milliseconds(), 10)
	for i, v := range []float64{f.Imu.Ax, f.Imu.Ay, f.Imu.Az, f.Imu.Gx, f.Imu.Gy, f.Imu.Gz} {
		row[1+i] = ftoa(v)
	}
	if m := f.Mag; m != nil {
		row[7], row[8], row[9] = ftoa(m.Mx), ftoa(m.My), ftoa(m.Mz)
	}
	if b := f.Baro; b != nil {
		row[10], row[11], row[12], row[13] = ftoa(b.Pressure), ftoa(b.Temperature), ftoa(b.Altitude), ftoa(b.ClimbRate)
	}
	if g := f.Gps; g != nil && g.Fix {
		row[14], row[15] = ftoa(g.Lat()), ftoa(g.Lon())
		row[16] = ftoa(float64(g.Altitude))
		row[17] = strconv.Itoa(int(g.Sats))
	}
	row[18] = "0"
	if f.PinDetached {
		row[18] = "1"
	}
	return row
}

// capture writes frames from src until ctx is done, the source ends or
// limit frames were written. A zero limit is unlimited.
func capture(ctx context.Context, src interface {
	Read(context.Context) (model.Frame, error)
}, w io.Writer, period time.Duration, limit int) (int, error) {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write(header); err != nil {
		return 0, err
	}

	var tick <-chan time.Time
	if period > 0 {
		t := time.NewTicker(period)
		defer t.Stop()
		tick = t.C
	}
	n := 0
	for limit == 0 || n < limit {
		if tick != nil {
			select {
			case <-ctx.Done():
				return n, nil
			case <-tick:
			}
		}
		f, err := src.Read(ctx)
		if err == io.EOF || ctx.Err() != nil {
			return n, nil
		}
		if err != nil {
			log.Warnf("Sensor Error: %s", err)
			continue
		}
		if err := cw.Write(frameRow(f)); err != nil {
			return n, err
		}
		n++
	}
	return n, cw.Error()
}

func main() {
	cfgPath := flag.String("config", config.DefaultPath, "configuration file")
	hz := flag.Int("hz", 100, "sample rate")
	duration := flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	flag.Parse()

	if err := log.Init(false, ""); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	hw, err := sensors.OpenHardware(cfg.Hardware, clock.NewMonotonic())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer hw.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	n, err := capture(ctx, hw, os.Stdout, time.Second/time.Duration(*hz), 0)
	fmt.Fprintf(os.Stderr, "%d frames\n", n)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
