// Package flightlog reads and writes the compact "RLG1" binary flight log:
// a 4-byte magic, little-endian u16 version and u16 record size, then packed
// little-endian records back to back.
package flightlog

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rocketfc/rocketfc/attitude"
	"github.com/rocketfc/rocketfc/deploy"
	"github.com/rocketfc/rocketfc/flight"
	"github.com/rocketfc/rocketfc/log"
	"github.com/rocketfc/rocketfc/model"
	"github.com/rocketfc/rocketfc/record"
)

const (
	Magic = "RLG1"

	// Version1 is the original 103-byte layout without deployment fields.
	Version1 = 1
	// Version2 appends deployment, fault and magnetometer fields.
	Version2 = 2
)

var (
	ErrBadHeader  = errors.New("flightlog: bad header")
	ErrShortRead  = errors.New("flightlog: truncated record")
	ErrRecordSize = errors.New("flightlog: record size does not match version")
)

type imuV1 struct{ Ax, Ay, Az, Gx, Gy, Gz float32 }

type baroV1 struct{ Pressure, Temperature, Altitude, ClimbRate float32 }

type gpsV1 struct {
	LatE7, LonE7            int32
	Altitude, Speed, Heading float32
	Sats, Fix               uint8
}

// recordV1 matches "<6f4f2i3fBB5f4IBI".
type recordV1 struct {
	Imu                          imuV1
	Baro                         baroV1
	Gps                          gpsV1
	Roll, FilterRoll, Pitch, Yaw float32
	ServoDeg                     float32
	BaroTimeMs, GpsTimeMs        uint32
	ATimeMs, ARxTimeMs           uint32
	State                        uint8
	TimeMs                       uint32
}

// Flag bits in recordV2.Flags.
const (
	flagDeployed = 1 << iota
	flagImuFault
	flagBaroFault
	flagStalled
	flagHasMag
	flagHasBaro
	flagHasGps
)

type recordV2 struct {
	V1            recordV1
	Deploy        uint8
	Flags         uint8
	Seq           uint32
	Mx, My, Mz    float32
	ControlOutput float32
	GyroWeight    float32
}

// RecordSize returns the encoded record size for a version, or 0.
func RecordSize(version uint16) int {
	switch version {
	case Version1:
		return binary.Size(recordV1{})
	case Version2:
		return binary.Size(recordV2{})
	}
	return 0
}

func toV2(r record.FlightRecord) recordV2 {
	v := recordV2{
		V1: recordV1{
			Imu: imuV1{
				float32(r.Imu.Ax), float32(r.Imu.Ay), float32(r.Imu.Az),
				float32(r.Imu.Gx), float32(r.Imu.Gy), float32(r.Imu.Gz),
			},
			Roll:       float32(r.Attitude.Roll),
			FilterRoll: float32(r.RocketRoll),
			Pitch:      float32(r.Attitude.Pitch),
			Yaw:        float32(r.Attitude.Yaw),
			ServoDeg:   float32(r.ServoDeg),
			ATimeMs:    r.TimeMs,
			ARxTimeMs:  r.TimeMs,
			State:      uint8(r.State),
			TimeMs:     r.TimeMs,
		},
		Deploy:        uint8(r.Deploy),
		Seq:           r.Seq,
		ControlOutput: float32(r.ControlOutput),
		GyroWeight:    float32(r.Attitude.GyroWeight),
	}
	if b := r.Baro; b != nil {
		v.V1.Baro = baroV1{float32(b.Pressure), float32(b.Temperature), float32(b.Altitude), float32(b.ClimbRate)}
		v.V1.BaroTimeMs = r.TimeMs
		v.Flags |= flagHasBaro
	}
	if g := r.Gps; g != nil {
		v.V1.Gps = gpsV1{LatE7: g.LatitudeE7, LonE7: g.LongitudeE7, Altitude: g.Altitude, Speed: g.Speed, Heading: g.Heading, Sats: g.Sats}
		if g.Fix {
			v.V1.Gps.Fix = 1
		}
		v.V1.GpsTimeMs = r.TimeMs
		v.Flags |= flagHasGps
	}
	if m := r.Mag; m != nil {
		v.Mx, v.My, v.Mz = float32(m.Mx), float32(m.My), float32(m.Mz)
		v.Flags |= flagHasMag
	}
	for bit, set := range map[uint8]bool{
		flagDeployed:  r.Deployed,
		flagImuFault:  r.Faults.IMU,
		flagBaroFault: r.Faults.Baro,
		flagStalled:   r.Stalled,
	} {
		if set {
			v.Flags |= bit
		}
	}
	return v
}

func (v recordV1) toRecord() record.FlightRecord {
	r := record.FlightRecord{
		TimeMs: v.TimeMs,
		Imu: model.ImuSample{
			Ax: float64(v.Imu.Ax), Ay: float64(v.Imu.Ay), Az: float64(v.Imu.Az),
			Gx: float64(v.Imu.Gx), Gy: float64(v.Imu.Gy), Gz: float64(v.Imu.Gz),
		},
		Attitude: attitude.Attitude{
			Roll:  float64(v.Roll),
			Pitch: float64(v.Pitch),
			Yaw:   float64(v.Yaw),
			Valid: true,
		},
		RocketRoll: float64(v.FilterRoll),
		State:      flight.State(v.State),
		ServoDeg:   float64(v.ServoDeg),
	}
	r.Attitude.Q = attitude.FromEuler(r.Attitude.Roll*attitude.Rad, r.Attitude.Pitch*attitude.Rad, r.Attitude.Yaw*attitude.Rad)
	r.Baro = &model.BaroSample{
		Pressure:    float64(v.Baro.Pressure),
		Temperature: float64(v.Baro.Temperature),
		Altitude:    float64(v.Baro.Altitude),
		ClimbRate:   float64(v.Baro.ClimbRate),
	}
	r.Gps = &model.GpsSample{
		LatitudeE7:  v.Gps.LatE7,
		LongitudeE7: v.Gps.LonE7,
		Altitude:    v.Gps.Altitude,
		Speed:       v.Gps.Speed,
		Heading:     v.Gps.Heading,
		Sats:        v.Gps.Sats,
		Fix:         v.Gps.Fix != 0,
	}
	return r
}

func (v recordV2) toRecord() record.FlightRecord {
	r := v.V1.toRecord()
	r.Seq = v.Seq
	r.Deploy = deploy.State(v.Deploy)
	r.Deployed = v.Flags&flagDeployed != 0
	r.Faults = flight.Faults{IMU: v.Flags&flagImuFault != 0, Baro: v.Flags&flagBaroFault != 0}
	r.Stalled = v.Flags&flagStalled != 0
	r.ControlOutput = float64(v.ControlOutput)
	r.Attitude.GyroWeight = float64(v.GyroWeight)
	if v.Flags&flagHasMag != 0 {
		r.Mag = &model.MagSample{Mx: float64(v.Mx), My: float64(v.My), Mz: float64(v.Mz)}
	}
	if v.Flags&flagHasBaro == 0 {
		r.Baro = nil
	}
	if v.Flags&flagHasGps == 0 {
		r.Gps = nil
	}
	return r
}

// Writer appends version 2 records. It implements record.Sink; the first
// write error is kept and reported by Close.
type Writer struct {
	mu       sync.Mutex
	w        *bufio.Writer
	c        io.Closer
	err      error
	n        int
	reported bool
}

// NewWriter writes the header to w. If w is an io.Closer, Close closes it.
func NewWriter(w io.Writer) (*Writer, error) {
	fw := &Writer{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		fw.c = c
	}
	var hdr bytes.Buffer
	hdr.WriteString(Magic)
	binary.Write(&hdr, binary.LittleEndian, uint16(Version2))
	binary.Write(&hdr, binary.LittleEndian, uint16(RecordSize(Version2)))
	if _, err := fw.w.Write(hdr.Bytes()); err != nil {
		return nil, fmt.Errorf("flightlog: write header: %w", err)
	}
	return fw, nil
}

// Send implements record.Sink.
func (fw *Writer) Send(r record.FlightRecord) {
	if err := fw.Write(r); err != nil && !fw.reported {
		fw.reported = true
		log.Errorf("Flightlog Error: %s", err)
	}
}

func (fw *Writer) Write(r record.FlightRecord) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.err != nil {
		return fw.err
	}
	if err := binary.Write(fw.w, binary.LittleEndian, toV2(r)); err != nil {
		fw.err = fmt.Errorf("flightlog: write record %d: %w", fw.n, err)
		return fw.err
	}
	fw.n++
	return nil
}

// Count returns the number of records written.
func (fw *Writer) Count() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.n
}

func (fw *Writer) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	err := fw.w.Flush()
	if fw.err != nil {
		err = fw.err
	}
	if fw.c != nil {
		if cerr := fw.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Reader decodes records of either version. Files without a header are read
// as version 1.
type Reader struct {
	r       *bufio.Reader
	version uint16
}

func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	fr := &Reader{r: br, version: Version1}
	magic, err := br.Peek(len(Magic))
	if err == io.EOF || (err == nil && string(magic) != Magic) {
		return fr, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadHeader, err)
	}
	br.Discard(len(Magic))
	var hdr struct{ Version, RecSize uint16 }
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadHeader, err)
	}
	size := RecordSize(hdr.Version)
	if size == 0 {
		return nil, fmt.Errorf("%w: unknown version %d", ErrBadHeader, hdr.Version)
	}
	if int(hdr.RecSize) != size {
		return nil, fmt.Errorf("%w: version %d has %d-byte records, header says %d", ErrRecordSize, hdr.Version, size, hdr.RecSize)
	}
	fr.version = hdr.Version
	return fr, nil
}

func (fr *Reader) Version() uint16 { return fr.version }

// Next returns the next record, or io.EOF at the end of the log. A partial
// trailing record yields ErrShortRead.
func (fr *Reader) Next() (record.FlightRecord, error) {
	buf := make([]byte, RecordSize(fr.version))
	if _, err := io.ReadFull(fr.r, buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			return record.FlightRecord{}, ErrShortRead
		}
		return record.FlightRecord{}, err
	}
	br := bytes.NewReader(buf)
	if fr.version == Version1 {
		var v recordV1
		if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
			return record.FlightRecord{}, err
		}
		return v.toRecord(), nil
	}
	var v recordV2
	if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
		return record.FlightRecord{}, err
	}
	return v.toRecord(), nil
}

// ReadAll decodes every complete record in r.
func ReadAll(r io.Reader) ([]record.FlightRecord, error) {
	fr, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	var recs []record.FlightRecord
	for {
		rec, err := fr.Next()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}
