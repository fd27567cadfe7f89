package sensors

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rocketfc/rocketfc/clock"
	"github.com/rocketfc/rocketfc/flightlog"
	"github.com/rocketfc/rocketfc/model"
)

// ErrMissingColumn is returned when a replay CSV lacks a required column.
var ErrMissingColumn = errors.New("replay: missing column")

var requiredColumns = []string{"t_ms", "ax", "ay", "az", "gx", "gy", "gz"}

// Replay feeds recorded sensor data back through the flight loop. Rows are
// read from a CSV with a header naming the columns; optional column groups
// (mx my mz, pressure temperature, altitude climb, lat lon) are used when
// present and non-empty. Accelerations are m/s², rates deg/s, pressure hPa.
type Replay struct {
	r     *csv.Reader
	cols  map[string]int
	clk   *clock.Manual
	climb *ClimbEstimator
	line  int
}

// NewReplay reads the header row. clk, when not nil, is set to each row's
// timestamp before the frame is returned.
func NewReplay(r io.Reader, clk *clock.Manual) (*Replay, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("replay: header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, name)
		}
	}
	return &Replay{r: cr, cols: cols, clk: clk, climb: NewClimbEstimator(10, 20), line: 1}, nil
}

// Read returns the next row as a frame, or io.EOF after the last one.
func (rp *Replay) Read(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}
	row, err := rp.r.Read()
	if err != nil {
		return model.Frame{}, err
	}
	rp.line++
	f, err := rp.parse(row)
	if err != nil {
		return model.Frame{}, fmt.Errorf("replay line %d: %w", rp.line, err)
	}
	if rp.clk != nil {
		rp.clk.Set(f.T)
	}
	return f, nil
}

func (rp *Replay) parse(row []string) (model.Frame, error) {
	var perr error
	field := func(name string) (float64, bool) {
		i, ok := rp.cols[name]
		if !ok || i >= len(row) || strings.TrimSpace(row[i]) == "" {
			return 0, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil && perr == nil {
			perr = fmt.Errorf("column %s: %w", name, err)
		}
		return v, err == nil
	}
	must := func(name string) float64 {
		v, ok := field(name)
		if !ok && perr == nil {
			perr = fmt.Errorf("%w %q", ErrMissingColumn, name)
		}
		return v
	}

	var f model.Frame
	f.T = time.Duration(must("t_ms") * float64(time.Millisecond))
	f.Imu = model.ImuSample{
		Ax: must("ax"), Ay: must("ay"), Az: must("az"),
		Gx: must("gx"), Gy: must("gy"), Gz: must("gz"),
	}

	mx, okx := field("mx")
	my, oky := field("my")
	mz, okz := field("mz")
	if okx && oky && okz {
		f.Mag = &model.MagSample{Mx: mx, My: my, Mz: mz}
	}

	if alt, ok := field("altitude"); ok {
		climb, _ := field("climb")
		press, _ := field("pressure")
		temp, _ := field("temperature")
		f.Baro = &model.BaroSample{Pressure: press, Temperature: temp, Altitude: alt, ClimbRate: climb}
	} else if press, ok := field("pressure"); ok {
		temp, _ := field("temperature")
		b := rp.climb.Update(f.T, press, temp)
		f.Baro = &b
	}

	lat, okLat := field("lat")
	lon, okLon := field("lon")
	if okLat && okLon {
		g := &model.GpsSample{
			LatitudeE7:  int32(math.Round(lat * 1e7)),
			LongitudeE7: int32(math.Round(lon * 1e7)),
			Fix:         true,
		}
		if v, ok := field("gps_alt"); ok {
			g.Altitude = float32(v)
		}
		if v, ok := field("sats"); ok {
			g.Sats = uint8(v)
		}
		f.Gps = g
	}

	if v, ok := field("pin"); ok {
		f.PinDetached = v != 0
	}
	return f, perr
}

// LogReplay re-flies a recorded RLG1 flight log. Only the sensor inputs of
// each record are used; the estimates are recomputed.
type LogReplay struct {
	r   *flightlog.Reader
	clk *clock.Manual
}

// NewLogReplay reads the log header.
func NewLogReplay(r io.Reader, clk *clock.Manual) (*LogReplay, error) {
	fr, err := flightlog.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &LogReplay{r: fr, clk: clk}, nil
}

// Read returns the next record's sensor frame, or io.EOF.
func (lr *LogReplay) Read(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}
	rec, err := lr.r.Next()
	if err != nil {
		return model.Frame{}, err
	}
	f := model.Frame{
		T:    time.Duration(rec.TimeMs) * time.Millisecond,
		Imu:  rec.Imu,
		Mag:  rec.Mag,
		Baro: rec.Baro,
		Gps:  rec.Gps,
	}
	if lr.clk != nil {
		lr.clk.Set(f.T)
	}
	return f, nil
}
