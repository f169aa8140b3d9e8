//go:build !linux

// Package touch turns Linux evdev touchscreen events into single-pointer
// touch events in display pixels.
package touch

import (
	"context"
	"fmt"

	"tiltlock/internal/gesture"
	"tiltlock/internal/source"
)

type Options struct {
	SwapXY  bool
	InvertX bool
	InvertY bool
}

type Config struct {
	Device  string
	Metrics gesture.DisplayMetrics
	Grab    bool
	Options
}

type Source struct{}

func NewSource(cfg Config) (*Source, error) {
	return nil, fmt.Errorf("touch: evdev unsupported on this platform")
}

func (s *Source) Name() string               { return "touch" }
func (s *Source) Probe() source.Availability { return source.Availability{} }
func (s *Source) Stop() error                { return source.ErrNotStarted }
func (s *Source) Start(context.Context, source.Sink) error {
	return fmt.Errorf("touch: evdev unsupported on this platform")
}
