package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"tiltlock/internal/ahrs"
)

const (
	DefaultIIORoot = "/sys/bus/iio/devices"

	// IIO reports magnetic field in gauss.
	gaussToMicroTesla = 100.0
)

type IIOConfig struct {
	// Root is the directory holding iio:deviceN entries.
	Root string
	// AccelDevice and MagDevice pin a device directory; empty means the
	// first device under Root exposing the channel.
	AccelDevice string
	MagDevice   string
	Interval    time.Duration
}

// IIO polls Linux industrial-I/O sysfs channels.
type IIO struct {
	accel *iioChannel
	mag   *iioChannel
	poller
}

type iioChannel struct {
	kind   ahrs.SensorKind
	dir    string
	raw    [3]string
	offset [3]float64
	scale  [3]float64
	unit   float64
}

func NewIIO(cfg IIOConfig) (*IIO, error) {
	if cfg.Root == "" {
		cfg.Root = DefaultIIORoot
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 20 * time.Millisecond
	}

	s := &IIO{}
	var err error
	if s.accel, err = findIIOChannel(cfg.Root, cfg.AccelDevice, "accel", ahrs.Accelerometer, 1); err != nil {
		return nil, err
	}
	if s.mag, err = findIIOChannel(cfg.Root, cfg.MagDevice, "magn", ahrs.MagneticField, gaussToMicroTesla); err != nil {
		return nil, err
	}
	if s.accel == nil && s.mag == nil {
		return nil, fmt.Errorf("iio: no accelerometer or magnetometer under %s", cfg.Root)
	}
	s.name, s.interval, s.read = "iio", cfg.Interval, s.readOnce
	return s, nil
}

func (s *IIO) Name() string { return "iio" }

func (s *IIO) Probe() Availability {
	return Availability{Accelerometer: s.accel != nil, MagneticField: s.mag != nil}
}

func (s *IIO) Start(ctx context.Context, sink Sink) error { return s.start(ctx, sink) }

func (s *IIO) Stop() error { return s.stop() }

func (s *IIO) readOnce(now time.Time, sink Sink) error {
	for _, ch := range []*iioChannel{s.accel, s.mag} {
		if ch == nil {
			continue
		}
		v, err := ch.readVector()
		if err != nil {
			return err
		}
		sink.Sensor(ahrs.Reading{Kind: ch.kind, Vector: v, At: now})
	}
	return nil
}

// findIIOChannel locates the device exposing in_<prefix>_x_raw. A pinned
// device that lacks the channel is an error; no match during discovery is
// not.
func findIIOChannel(root, pinned, prefix string, kind ahrs.SensorKind, unit float64) (*iioChannel, error) {
	probe := "in_" + prefix + "_x_raw"
	if pinned != "" {
		dir := pinned
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		if !fileExists(filepath.Join(dir, probe)) {
			return nil, fmt.Errorf("iio: %s has no %s", dir, probe)
		}
		return loadIIOChannel(dir, prefix, kind, unit)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("iio: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "iio:device") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		dir := filepath.Join(root, n)
		if fileExists(filepath.Join(dir, probe)) {
			return loadIIOChannel(dir, prefix, kind, unit)
		}
	}
	return nil, nil
}

func loadIIOChannel(dir, prefix string, kind ahrs.SensorKind, unit float64) (*iioChannel, error) {
	ch := &iioChannel{kind: kind, dir: dir, unit: unit}

	shared, haveShared, err := readFloatIfExists(filepath.Join(dir, "in_"+prefix+"_scale"))
	if err != nil {
		return nil, err
	}
	sharedOff, _, err := readFloatIfExists(filepath.Join(dir, "in_"+prefix+"_offset"))
	if err != nil {
		return nil, err
	}

	for i, axis := range []string{"x", "y", "z"} {
		ch.raw[i] = filepath.Join(dir, "in_"+prefix+"_"+axis+"_raw")
		ch.scale[i] = 1
		if haveShared {
			ch.scale[i] = shared
		}
		if v, ok, err := readFloatIfExists(filepath.Join(dir, "in_"+prefix+"_"+axis+"_scale")); err != nil {
			return nil, err
		} else if ok {
			ch.scale[i] = v
		}
		ch.offset[i] = sharedOff
		if v, ok, err := readFloatIfExists(filepath.Join(dir, "in_"+prefix+"_"+axis+"_offset")); err != nil {
			return nil, err
		} else if ok {
			ch.offset[i] = v
		}
	}
	return ch, nil
}

func (c *iioChannel) readVector() (ahrs.Vector3, error) {
	var out [3]float64
	for i := range c.raw {
		raw, err := readFloat(c.raw[i])
		if err != nil {
			return ahrs.Vector3{}, err
		}
		out[i] = (raw + c.offset[i]) * c.scale[i] * c.unit
	}
	return ahrs.Vector3{X: out[0], Y: out[1], Z: out[2]}, nil
}

func readFloat(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("iio: %w", err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, fmt.Errorf("iio: parse %s: %w", path, err)
	}
	return v, nil
}

func readFloatIfExists(path string) (float64, bool, error) {
	if !fileExists(path) {
		return 0, false, nil
	}
	v, err := readFloat(path)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
