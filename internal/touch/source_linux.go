//go:build linux

package touch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/holoplot/go-evdev"

	"tiltlock/internal/gesture"
	"tiltlock/internal/source"
)

type Config struct {
	// Device is an /dev/input/eventN path. Empty picks the first device
	// reporting absolute X and BTN_TOUCH.
	Device  string
	Metrics gesture.DisplayMetrics
	Grab    bool
	Options
}

// Source reads a touchscreen through evdev.
type Source struct {
	cfg Config

	mu   sync.Mutex
	dev  *evdev.InputDevice
	done chan struct{}
}

func NewSource(cfg Config) (*Source, error) {
	if cfg.Metrics.WidthPx <= 0 || cfg.Metrics.HeightPx <= 0 {
		return nil, fmt.Errorf("touch: display size must be set")
	}
	return &Source{cfg: cfg}, nil
}

func (s *Source) Name() string { return "touch" }

func (s *Source) Probe() source.Availability {
	path, err := s.devicePath()
	return source.Availability{Touch: err == nil && path != ""}
}

func (s *Source) devicePath() (string, error) {
	if s.cfg.Device != "" {
		return s.cfg.Device, nil
	}
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return "", fmt.Errorf("touch: list devices: %w", err)
	}
	for _, p := range paths {
		dev, err := evdev.Open(p.Path)
		if err != nil {
			continue
		}
		ok := isTouchscreen(dev)
		_ = dev.Close()
		if ok {
			return p.Path, nil
		}
	}
	return "", fmt.Errorf("touch: no touchscreen found")
}

func isTouchscreen(dev *evdev.InputDevice) bool {
	abs, err := dev.AbsInfos()
	if err != nil {
		return false
	}
	_, hasMT := abs[evdev.ABS_MT_POSITION_X]
	_, hasX := abs[evdev.ABS_X]
	if !hasMT && !hasX {
		return false
	}
	for _, code := range dev.CapableEvents(evdev.EV_KEY) {
		if code == evdev.BTN_TOUCH {
			return true
		}
	}
	return false
}

func axesOf(dev *evdev.InputDevice) (Axis, Axis, error) {
	abs, err := dev.AbsInfos()
	if err != nil {
		return Axis{}, Axis{}, err
	}
	pick := func(mt, single evdev.EvCode) (Axis, bool) {
		if a, ok := abs[mt]; ok {
			return Axis{Min: a.Minimum, Max: a.Maximum}, true
		}
		if a, ok := abs[single]; ok {
			return Axis{Min: a.Minimum, Max: a.Maximum}, true
		}
		return Axis{}, false
	}
	x, okX := pick(evdev.ABS_MT_POSITION_X, evdev.ABS_X)
	y, okY := pick(evdev.ABS_MT_POSITION_Y, evdev.ABS_Y)
	if !okX || !okY {
		return Axis{}, Axis{}, fmt.Errorf("touch: device has no absolute x/y")
	}
	return x, y, nil
}

func (s *Source) Start(ctx context.Context, sink source.Sink) error {
	if sink == nil {
		return fmt.Errorf("touch: sink is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev != nil {
		return fmt.Errorf("touch: already started")
	}

	path, err := s.devicePath()
	if err != nil {
		return err
	}
	dev, err := evdev.Open(path)
	if err != nil {
		return fmt.Errorf("touch: open %s: %w", path, err)
	}
	x, y, err := axesOf(dev)
	if err != nil {
		_ = dev.Close()
		return err
	}
	if s.cfg.Grab {
		if err := dev.Grab(); err != nil {
			log.Printf("touch: grab %s: %v", path, err)
		}
	}

	tr := NewTranslator(x, y, s.cfg.Metrics, s.cfg.Options)
	s.dev = dev
	s.done = make(chan struct{})
	go s.readLoop(ctx, dev, tr, sink, s.done)
	go func(done chan struct{}) {
		select {
		case <-ctx.Done():
			s.closeDevice(dev)
		case <-done:
		}
	}(s.done)
	log.Printf("touch: reading %s (x %d..%d, y %d..%d)", path, x.Min, x.Max, y.Min, y.Max)
	return nil
}

func (s *Source) readLoop(ctx context.Context, dev *evdev.InputDevice, tr *Translator, sink source.Sink, done chan struct{}) {
	defer close(done)
	for {
		ev, err := dev.ReadOne()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("touch: read: %v", err)
			}
			return
		}
		if te, ok := tr.Feed(ev, time.Now()); ok {
			sink.Touch(te)
		}
	}
}

func (s *Source) closeDevice(dev *evdev.InputDevice) {
	_ = dev.Close()
}

// Stop closes the device, which ends the pending read.
func (s *Source) Stop() error {
	s.mu.Lock()
	dev, done := s.dev, s.done
	s.dev, s.done = nil, nil
	s.mu.Unlock()
	if dev == nil {
		return source.ErrNotStarted
	}
	s.closeDevice(dev)
	<-done
	return nil
}
