package sensors

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/rocketfc/rocketfc/clock"
	"github.com/rocketfc/rocketfc/log"
	"github.com/rocketfc/rocketfc/model"
)

const (
	knotsToMps = 0.514444
	// A fix older than this is not attached to frames.
	gpsStale = 3 * time.Second
)

var ErrNoNMEA = errors.New("sensors: no valid NMEA received")

// GPSConfig selects the serial GPS receiver. An empty device disables it.
// A zero baud rate probes the common rates.
type GPSConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

var gpsBaudRates = []int{9600, 38400, 115200, 57600, 4800}

// validateNMEAChecksum reports whether s is "$...*xx" with xx the XOR of every
// byte between the two markers. On success it returns the sentence body.
func validateNMEAChecksum(s string) (string, bool) {
	if !strings.HasPrefix(s, "$") {
		return "", false
	}
	body, cs, found := strings.Cut(strings.TrimPrefix(s, "$"), "*")
	if !found || len(cs) < 2 {
		return "", false
	}
	want, err := strconv.ParseUint(cs[:2], 16, 8)
	if err != nil {
		return "", false
	}
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return body, sum == byte(want)
}

// parseCoord converts ddmm.mmmm (latitude, degDigits 2) or dddmm.mmmm
// (longitude, degDigits 3) to signed degrees.
func parseCoord(v, hemi string, degDigits int) (float64, bool) {
	if len(v) < degDigits+2 {
		return 0, false
	}
	deg, err1 := strconv.Atoi(v[:degDigits])
	min, err2 := strconv.ParseFloat(v[degDigits:], 64)
	if err1 != nil || err2 != nil {
		return 0, false
	}
	d := float64(deg) + min/60
	if hemi == "S" || hemi == "W" {
		d = -d
	}
	return d, true
}

// nmeaState folds GGA and RMC sentences into one fix.
type nmeaState struct {
	fix model.GpsSample
}

// processNMEALine applies one sentence and reports whether it was used.
func (n *nmeaState) processNMEALine(line string) bool {
	body, ok := validateNMEAChecksum(strings.TrimSpace(line))
	if !ok {
		return false
	}
	x := strings.Split(body, ",")
	if len(x[0]) < 5 {
		return false
	}
	switch x[0][2:] {
	case "GGA":
		return n.gga(x)
	case "RMC":
		return n.rmc(x)
	}
	return false
}

// $GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47
func (n *nmeaState) gga(x []string) bool {
	if len(x) < 10 {
		return false
	}
	q, err := strconv.Atoi(x[6])
	if err != nil {
		return false
	}
	if q == 0 {
		n.fix.Fix = false
		return true
	}
	lat, ok1 := parseCoord(x[2], x[3], 2)
	lon, ok2 := parseCoord(x[4], x[5], 3)
	alt, err := strconv.ParseFloat(x[9], 64)
	if !ok1 || !ok2 || err != nil {
		return false
	}
	fix := n.fix
	fix.LatitudeE7 = int32(math.Round(lat * 1e7))
	fix.LongitudeE7 = int32(math.Round(lon * 1e7))
	fix.Altitude = float32(alt)
	if sats, err := strconv.Atoi(x[7]); err == nil {
		fix.Sats = uint8(sats)
	}
	fix.Fix = true
	n.fix = fix
	return true
}

// $GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A
func (n *nmeaState) rmc(x []string) bool {
	if len(x) < 9 {
		return false
	}
	if x[2] != "A" {
		n.fix.Fix = false
		return true
	}
	lat, ok1 := parseCoord(x[3], x[4], 2)
	lon, ok2 := parseCoord(x[5], x[6], 3)
	knots, err := strconv.ParseFloat(x[7], 64)
	if !ok1 || !ok2 || err != nil {
		return false
	}
	fix := n.fix
	fix.LatitudeE7 = int32(math.Round(lat * 1e7))
	fix.LongitudeE7 = int32(math.Round(lon * 1e7))
	fix.Speed = float32(knots * knotsToMps)
	// Some receivers leave the course empty when stationary.
	if tc, err := strconv.ParseFloat(x[8], 64); err == nil {
		fix.Heading = float32(tc)
	}
	fix.Fix = true
	n.fix = fix
	return true
}

// GPS keeps the latest fix of an NMEA receiver, read in its own goroutine.
type GPS struct {
	mu      sync.Mutex
	state   nmeaState
	fixAt   time.Duration
	hasFix  bool
	clk     clock.Clock
	port    io.ReadCloser
	done    chan struct{}
	closeOnce sync.Once
}

// OpenGPS opens the receiver's serial port, probing baud rates when none is
// configured.
func OpenGPS(cfg GPSConfig, clk clock.Clock) (*GPS, error) {
	rates := gpsBaudRates
	if cfg.Baud > 0 {
		rates = []int{cfg.Baud}
	}
	for _, baud := range rates {
		p, err := serial.OpenPort(&serial.Config{Name: cfg.Device, Baud: baud, ReadTimeout: 2500 * time.Millisecond})
		if err != nil {
			return nil, fmt.Errorf("gps %s: %w", cfg.Device, err)
		}
		if len(rates) == 1 || probeNMEA(p) {
			log.Infof("GPS Info: opened %s at %d baud", cfg.Device, baud)
			return NewGPS(p, clk), nil
		}
		log.Debugf("GPS Info: no NMEA on %s at %d baud", cfg.Device, baud)
		p.Close()
		time.Sleep(250 * time.Millisecond)
	}
	return nil, fmt.Errorf("gps %s: %w", cfg.Device, ErrNoNMEA)
}

// probeNMEA waits for data and reports whether any line is valid NMEA.
func probeNMEA(r io.Reader) bool {
	time.Sleep(3 * time.Second)
	buf := make([]byte, 4096)
	n, _ := r.Read(buf)
	for _, line := range strings.Split(string(buf[:n]), "\n") {
		if _, ok := validateNMEAChecksum(strings.TrimSpace(line)); ok {
			return true
		}
	}
	return false
}

// NewGPS starts reading sentences from port.
func NewGPS(port io.ReadCloser, clk clock.Clock) *GPS {
	g := &GPS{clk: clk, port: port, done: make(chan struct{})}
	go g.reader()
	return g
}

func (g *GPS) reader() {
	defer close(g.done)
	scanner := bufio.NewScanner(g.port)
	for scanner.Scan() {
		s := scanner.Text()
		i := strings.Index(s, "$")
		if i < 0 {
			continue
		}
		g.mu.Lock()
		if g.state.processNMEALine(s[i:]) && g.state.fix.Fix {
			g.fixAt, g.hasFix = g.clk.Now(), true
		}
		g.mu.Unlock()
	}
	if err := scanner.Err(); err != nil {
		log.Warnf("GPS Error: %s", err)
	}
}

// Latest returns a copy of the current fix, or nil when there is none or it
// is stale.
func (g *GPS) Latest() *model.GpsSample {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.hasFix || !g.state.fix.Fix || g.clk.Now()-g.fixAt > gpsStale {
		return nil
	}
	fix := g.state.fix
	return &fix
}

// Close stops the reader and closes the port.
func (g *GPS) Close() error {
	var err error
	g.closeOnce.Do(func() {
		err = g.port.Close()
		<-g.done
	})
	return err
}
