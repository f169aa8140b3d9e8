package source

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"tiltlock/internal/ahrs"
	"tiltlock/internal/i2c"
	"tiltlock/internal/sensors/icm20948"
)

type IMUConfig struct {
	Bus      int
	Addr     uint16
	MagAddr  uint16
	Interval time.Duration
}

type imuDevice interface {
	Read() (icm20948.Sample, error)
	HasMag() bool
}

// IMU polls an ICM-20948 on a Linux I2C bus.
type IMU struct {
	cfg  IMUConfig
	open func(cfg IMUConfig) (imuDevice, io.Closer, error)

	devMu  sync.Mutex
	dev    imuDevice
	closer io.Closer

	magOverflows atomic.Uint64

	poller
}

func NewIMU(cfg IMUConfig) *IMU {
	if cfg.Bus == 0 {
		cfg.Bus = 1
	}
	if cfg.Addr == 0 {
		cfg.Addr = icm20948.DefaultAddress()
	}
	if cfg.MagAddr == 0 {
		cfg.MagAddr = icm20948.MagAddress()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 20 * time.Millisecond
	}
	s := &IMU{cfg: cfg, open: openICM20948}
	s.name, s.interval, s.read = "imu", cfg.Interval, s.readOnce
	return s
}

func openICM20948(cfg IMUConfig) (imuDevice, io.Closer, error) {
	bus, err := i2c.OpenIndex(cfg.Bus)
	if err != nil {
		return nil, nil, err
	}
	dev := bus.Dev(cfg.Addr)
	// The magnetometer only answers once New has enabled bypass, so it
	// cannot be probed up front.
	d, err := icm20948.New(dev, bus.Dev(cfg.MagAddr))
	if err != nil {
		d, err = icm20948.New(dev, nil)
		if err != nil {
			_ = bus.Close()
			return nil, nil, err
		}
	}
	return d, bus, nil
}

func (s *IMU) Name() string { return "imu" }

// Probe opens the device once to learn whether the magnetometer answers.
func (s *IMU) Probe() Availability {
	s.devMu.Lock()
	defer s.devMu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return Availability{}
	}
	return Availability{Accelerometer: true, MagneticField: s.dev.HasMag()}
}

func (s *IMU) ensureOpen() error {
	if s.dev != nil {
		return nil
	}
	dev, closer, err := s.open(s.cfg)
	if err != nil {
		return fmt.Errorf("imu: %w", err)
	}
	s.dev, s.closer = dev, closer
	return nil
}

func (s *IMU) Start(ctx context.Context, sink Sink) error {
	s.devMu.Lock()
	err := s.ensureOpen()
	s.devMu.Unlock()
	if err != nil {
		return err
	}
	return s.start(ctx, sink)
}

// Stop halts polling and releases the bus.
func (s *IMU) Stop() error {
	err := s.stop()
	s.devMu.Lock()
	defer s.devMu.Unlock()
	if s.closer != nil {
		_ = s.closer.Close()
	}
	s.dev, s.closer = nil, nil
	return err
}

func (s *IMU) readOnce(now time.Time, sink Sink) error {
	s.devMu.Lock()
	dev := s.dev
	s.devMu.Unlock()
	if dev == nil {
		return fmt.Errorf("imu: device closed")
	}

	sample, err := dev.Read()
	if err != nil {
		return err
	}
	at := sample.Time
	if at.IsZero() {
		at = now
	}
	sink.Sensor(ahrs.Reading{Kind: ahrs.Accelerometer, Vector: sample.Accel, At: at})
	// Overflowed magnetometer samples are dropped; the pair waits for the next.
	if sample.MagOvf {
		if n := s.magOverflows.Add(1); n == 1 || n%100 == 0 {
			log.Printf("imu: magnetometer overflow (%d), strong field nearby?", n)
		}
	}
	if sample.MagOK {
		sink.Sensor(ahrs.Reading{Kind: ahrs.MagneticField, Vector: sample.Mag, At: at})
	}
	return nil
}
