package sensors

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rocketfc/rocketfc/clock"
)

// nmea frames body as a sentence with its checksum.
func nmea(body string) string {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, sum)
}

const (
	ggaBody = "GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"
	rmcBody = "GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"
)

func TestValidateNMEAChecksum(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{nmea(ggaBody), true},
		{"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47", true},
		{"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*48", false},
		{"GPGGA,123519*47", false},
		{"$GPGGA,123519", false},
		{"$GPGGA,123519*4", false},
	}
	for _, tt := range tests {
		if _, ok := validateNMEAChecksum(tt.in); ok != tt.ok {
			t.Errorf("validateNMEAChecksum(%q) = %v, want %v", tt.in, ok, tt.ok)
		}
	}
}

func TestParseNMEA(t *testing.T) {
	var n nmeaState
	if !n.processNMEALine(nmea(ggaBody)) {
		t.Fatal("GGA not used")
	}
	if !n.processNMEALine(nmea(rmcBody)) {
		t.Fatal("RMC not used")
	}
	f := n.fix
	if !f.Fix || f.LatitudeE7 != 481173000 || f.LongitudeE7 != 115166667 {
		t.Errorf("position = %d, %d (fix %v)", f.LatitudeE7, f.LongitudeE7, f.Fix)
	}
	if f.Sats != 8 || f.Altitude != 545.4 {
		t.Errorf("sats %d, altitude %v", f.Sats, f.Altitude)
	}
	if math.Abs(float64(f.Speed)-11.5235) > 1e-3 || f.Heading != 84.4 {
		t.Errorf("speed %v, heading %v", f.Speed, f.Heading)
	}

	if !n.processNMEALine(nmea("GPRMC,123520,V,,,,,,,230394,,")) || n.fix.Fix {
		t.Error("void RMC kept the fix")
	}
	if n.processNMEALine(nmea("GPGSV,3,1,11,03,03,111,00")) {
		t.Error("GSV used")
	}
	if !n.processNMEALine(nmea("GNGGA,123521,3326.000,S,07036.000,W,2,11,0.8,600,M,0,M,,")) {
		t.Fatal("GNGGA not used")
	}
	if n.fix.LatitudeE7 != -334333333 || n.fix.LongitudeE7 != -706000000 {
		t.Errorf("southern fix = %d, %d", n.fix.LatitudeE7, n.fix.LongitudeE7)
	}
}

func TestGPSReader(t *testing.T) {
	var clk clock.Manual
	clk.Set(time.Second)
	input := strings.Join([]string{
		"garbage",
		"\x00\x00" + nmea(ggaBody),
		nmea(rmcBody),
	}, "\r\n") + "\r\n"
	g := NewGPS(io.NopCloser(strings.NewReader(input)), &clk)
	<-g.done

	fix := g.Latest()
	if fix == nil || fix.LatitudeE7 != 481173000 {
		t.Fatalf("fix = %+v", fix)
	}
	clk.Advance(gpsStale + time.Millisecond)
	if g.Latest() != nil {
		t.Error("stale fix returned")
	}
	if err := g.Close(); err != nil {
		t.Error(err)
	}
}

func TestHardwareCarriesGPS(t *testing.T) {
	var clk clock.Manual
	g := NewGPS(io.NopCloser(strings.NewReader(nmea(ggaBody)+"\n")), &clk)
	<-g.done

	h := newHardware(DefaultHardwareConfig(), &clk, func() (IMUReader, error) { return &fakeIMU{}, nil },
		func() (PressureReader, error) { return &fakeBaro{press: 1000}, nil }, nil)
	h.gps = g
	f, err := h.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.Gps == nil || f.Gps.Sats != 8 {
		t.Errorf("gps = %+v", f.Gps)
	}
	h.Close()
}
