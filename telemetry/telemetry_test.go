package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/rocketfc/rocketfc/attitude"
	"github.com/rocketfc/rocketfc/deploy"
	"github.com/rocketfc/rocketfc/flight"
	"github.com/rocketfc/rocketfc/model"
	"github.com/rocketfc/rocketfc/record"
)

func sampleRecord() record.FlightRecord {
	return record.FlightRecord{
		Seq:      42,
		TimeMs:   12345,
		Imu:      model.ImuSample{Az: 9.8},
		Baro:     &model.BaroSample{Pressure: 990.5, Temperature: 18, Altitude: 412, ClimbRate: -3},
		Gps:      &model.GpsSample{LatitudeE7: 375665000, LongitudeE7: 1269780000, Speed: 12, Fix: true},
		Attitude: attitude.Attitude{Roll: 1, Pitch: 2, Yaw: 30, Valid: true},
		State:    flight.Descent,
		Deploy:   deploy.Lock,
		Deployed: true,
		ServoDeg: 90,
	}
}

func TestFromRecord(t *testing.T) {
	tm := FromRecord(sampleRecord())
	if tm.Seq != 42 || tm.TimeMs != 12345 || tm.Yaw != 30 || tm.Altitude != 412 || tm.ClimbRate != -3 {
		t.Errorf("telemetry = %+v", tm)
	}
	if tm.Parachute != 1 || tm.FlightPhase != uint8(flight.Descent) || tm.PhaseName != flight.Descent.String() {
		t.Errorf("status fields = %+v", tm)
	}
	if tm.Latitude < 37.5664 || tm.Latitude > 37.5666 || tm.Speed != 12 {
		t.Errorf("gps fields = %+v", tm)
	}

	rec := sampleRecord()
	rec.Baro, rec.Gps, rec.Deployed = nil, nil, false
	tm = FromRecord(rec)
	if tm.Altitude != 0 || tm.Latitude != 0 || tm.Parachute != 0 {
		t.Errorf("absent samples leaked: %+v", tm)
	}
}

func TestFrame(t *testing.T) {
	want := FromRecord(sampleRecord())
	frame, err := EncodeFrame(want)
	if err != nil {
		t.Fatal(err)
	}
	if frame[0] != StartByte {
		t.Fatalf("start byte %#x", frame[0])
	}
	got, err := DecodeFrame(frame)
	if err != nil {
		t.Fatal(err)
	}
	want.PhaseName, want.DeployState = "", ""
	if got != want {
		t.Errorf("decoded %+v, want %+v", got, want)
	}

	bad := append([]byte(nil), frame...)
	bad[5] ^= 0xff
	if _, err := DecodeFrame(bad); !errors.Is(err, ErrBadChecksum) {
		t.Errorf("corrupted payload: err = %v", err)
	}
	if _, err := DecodeFrame(frame[:len(frame)-1]); !errors.Is(err, ErrBadFrame) {
		t.Errorf("truncated frame: err = %v", err)
	}
}

type fakePort struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestSerialSinkDownsamples(t *testing.T) {
	port := &fakePort{}
	s := NewSerialSink(port, 5)
	rec := sampleRecord()
	for i := 0; i < 10; i++ {
		rec.Seq = uint32(i)
		s.Send(rec)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !port.closed {
		t.Error("port not closed")
	}

	data := port.buf.Bytes()
	var seqs []uint32
	for len(data) > 0 {
		n := int(data[1]) | int(data[2])<<8
		tm, err := DecodeFrame(data[:n+4])
		if err != nil {
			t.Fatal(err)
		}
		seqs = append(seqs, tm.Seq)
		data = data[n+4:]
	}
	if len(seqs) != 2 || seqs[0] != 0 || seqs[1] != 5 {
		t.Errorf("sent seqs %v, want [0 5]", seqs)
	}
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster(16, 1)
	defer b.Close()
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := websocket.Dial(url, "", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for b.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("socket never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.Send(sampleRecord())
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var raw string
	if err := websocket.Message.Receive(conn, &raw); err != nil {
		t.Fatal(err)
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "telemetry" || msg.Data == nil || msg.Data.Seq != 42 {
		t.Errorf("message = %s", raw)
	}
}

func TestBroadcasterDropsWhenFull(t *testing.T) {
	b := &Broadcaster{messages: make(chan []byte, 2), done: make(chan struct{})}
	for i := 0; i < 5; i++ {
		b.Broadcast([]byte("x"))
	}
	if b.Dropped() != 3 {
		t.Errorf("dropped %d, want 3", b.Dropped())
	}
}

func TestAnalysisLog(t *testing.T) {
	name := filepath.Join(t.TempDir(), "logs", "analysis.csv")
	a, err := NewAnalysisLog(name)
	if err != nil {
		t.Fatal(err)
	}
	a.Send(sampleRecord())
	a.Send(sampleRecord())
	a.Close()

	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2", len(lines))
	}
	header := strings.Split(lines[0], ",")
	vals := strings.Split(lines[1], ",")
	if len(header) != len(vals) {
		t.Fatalf("%d columns, %d values", len(header), len(vals))
	}
	for i, h := range header {
		if h == "Yaw" && vals[i] != "30.000000" {
			t.Errorf("Yaw = %s, want 30.000000", vals[i])
		}
	}
}
