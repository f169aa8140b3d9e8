package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"tiltlock/internal/ahrs"
)

// SerialConfig describes a microcontroller bridge streaming text lines:
//
//	A,<x>,<y>,<z>   accelerometer, m/s²
//	M,<x>,<y>,<z>   magnetometer, µT
//
// Blank lines and lines starting with '#' are ignored.
type SerialConfig struct {
	Port     string
	BaudRate int
}

// Serial reads sensor lines from a serial port.
type Serial struct {
	cfg  SerialConfig
	open func(path string, mode *serial.Mode) (io.ReadCloser, error)

	mu     sync.Mutex
	port   io.ReadCloser
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSerial(cfg SerialConfig) (*Serial, error) {
	if strings.TrimSpace(cfg.Port) == "" {
		return nil, fmt.Errorf("serial: port is empty")
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 115200
	}
	return &Serial{cfg: cfg, open: openSerialPort}, nil
}

func openSerialPort(path string, mode *serial.Mode) (io.ReadCloser, error) {
	return serial.Open(path, mode)
}

func (s *Serial) Name() string { return "serial" }

func (s *Serial) Probe() Availability {
	return Availability{Accelerometer: true, MagneticField: true}
}

func (s *Serial) Start(ctx context.Context, sink Sink) error {
	if sink == nil {
		return fmt.Errorf("serial: sink is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return fmt.Errorf("serial: already started")
	}

	mode := &serial.Mode{
		BaudRate: s.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := s.open(s.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("serial: open %s: %w", s.cfg.Port, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.port = port
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.readLoop(ctx, port, sink, s.done)
	go func(done chan struct{}) {
		// Closing the port is the only way to unblock a pending read.
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = port.Close()
	}(s.done)
	return nil
}

func (s *Serial) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.port, s.cancel, s.done = nil, nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return ErrNotStarted
	}
	cancel()
	<-done
	return nil
}

func (s *Serial) readLoop(ctx context.Context, r io.Reader, sink Sink, done chan struct{}) {
	defer close(done)
	sc := bufio.NewScanner(r)
	var bad uint64
	for sc.Scan() {
		rd, ok, err := ParseSensorLine(sc.Text())
		if err != nil {
			bad++
			if bad == 1 || bad%100 == 0 {
				log.Printf("serial: %v (%d bad lines)", err, bad)
			}
			continue
		}
		if !ok {
			continue
		}
		rd.At = time.Now()
		sink.Sensor(rd)
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, io.EOF) {
		log.Printf("serial: read %s: %v", s.cfg.Port, err)
	}
}

// ParseSensorLine parses one bridge line. ok is false for lines that carry
// no reading.
func ParseSensorLine(line string) (ahrs.Reading, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ahrs.Reading{}, false, nil
	}
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return ahrs.Reading{}, false, fmt.Errorf("serial: want 4 fields, got %d in %q", len(fields), line)
	}

	var kind ahrs.SensorKind
	switch strings.ToUpper(strings.TrimSpace(fields[0])) {
	case "A":
		kind = ahrs.Accelerometer
	case "M":
		kind = ahrs.MagneticField
	default:
		return ahrs.Reading{}, false, fmt.Errorf("serial: unknown tag %q", fields[0])
	}

	var v [3]float64
	for i := range v {
		f, err := strconv.ParseFloat(strings.TrimSpace(fields[i+1]), 64)
		if err != nil {
			return ahrs.Reading{}, false, fmt.Errorf("serial: field %d: %w", i+1, err)
		}
		v[i] = f
	}
	return ahrs.Reading{Kind: kind, Vector: ahrs.Vector3{X: v[0], Y: v[1], Z: v[2]}}, true, nil
}
