package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/tarm/serial"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rocketfc/rocketfc/log"
	"github.com/rocketfc/rocketfc/record"
)

// StartByte opens every radio frame.
const StartByte = 0xAA

var (
	ErrBadFrame    = errors.New("telemetry: bad frame")
	ErrBadChecksum = errors.New("telemetry: checksum mismatch")
)

// SerialConfig selects the radio's serial port.
type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	Every  int    `yaml:"every"` // send every n-th record
}

// EncodeFrame packs t as: start byte, little-endian u16 payload length,
// msgpack payload, and an 8-bit sum of the length and payload bytes.
func EncodeFrame(t Telemetry) ([]byte, error) {
	payload, err := msgpack.Marshal(&t)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0xffff {
		return nil, fmt.Errorf("%w: %d-byte payload", ErrBadFrame, len(payload))
	}
	frame := make([]byte, 3, len(payload)+4)
	frame[0] = StartByte
	binary.LittleEndian.PutUint16(frame[1:], uint16(len(payload)))
	frame = append(frame, payload...)
	frame = append(frame, checksum(frame[1:]))
	return frame, nil
}

// DecodeFrame is the inverse of EncodeFrame.
func DecodeFrame(frame []byte) (Telemetry, error) {
	var t Telemetry
	if len(frame) < 4 || frame[0] != StartByte {
		return t, ErrBadFrame
	}
	n := int(binary.LittleEndian.Uint16(frame[1:]))
	if len(frame) != n+4 {
		return t, fmt.Errorf("%w: length %d, header says %d", ErrBadFrame, len(frame)-4, n)
	}
	if checksum(frame[1:n+3]) != frame[n+3] {
		return t, ErrBadChecksum
	}
	err := msgpack.Unmarshal(frame[3:n+3], &t)
	return t, err
}

func checksum(b []byte) byte {
	var sum byte
	for _, c := range b {
		sum += c
	}
	return sum
}

// SerialSink writes framed telemetry to the radio. Frames are written from
// a separate goroutine; a full queue drops the record.
type SerialSink struct {
	port    io.WriteCloser
	frames  chan []byte
	wg      sync.WaitGroup
	every   int
	n       int
	dropped atomic.Uint64
	errs    atomic.Uint64
}

// OpenSerial opens the radio port.
func OpenSerial(cfg SerialConfig) (*SerialSink, error) {
	port, err := serial.OpenPort(&serial.Config{Name: cfg.Device, Baud: cfg.Baud})
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", cfg.Device, err)
	}
	log.Infof("Telemetry Info: radio on %s at %d baud", cfg.Device, cfg.Baud)
	return NewSerialSink(port, cfg.Every), nil
}

// NewSerialSink writes to port, which it owns.
func NewSerialSink(port io.WriteCloser, every int) *SerialSink {
	s := &SerialSink{port: port, frames: make(chan []byte, 64), every: every}
	s.wg.Add(1)
	go s.writer()
	return s
}

func (s *SerialSink) Send(rec record.FlightRecord) {
	s.n++
	if s.every > 1 && s.n%s.every != 1 {
		return
	}
	frame, err := EncodeFrame(FromRecord(rec))
	if err != nil {
		log.Errorf("Telemetry Error: encode: %s", err)
		return
	}
	select {
	case s.frames <- frame:
	default:
		s.dropped.Add(1)
	}
}

func (s *SerialSink) writer() {
	defer s.wg.Done()
	for frame := range s.frames {
		if _, err := s.port.Write(frame); err != nil {
			if s.errs.Add(1) == 1 {
				log.Errorf("Telemetry Error: radio write: %s", err)
			}
		}
	}
}

// Dropped returns how many records were discarded because the queue was full.
func (s *SerialSink) Dropped() uint64 { return s.dropped.Load() }

// Close flushes queued frames and closes the port.
func (s *SerialSink) Close() error {
	close(s.frames)
	s.wg.Wait()
	return s.port.Close()
}
