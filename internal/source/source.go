// Package source defines how sensor and touch producers feed the session,
// and implements the hardware-backed sensor sources.
package source

import (
	"context"
	"errors"

	"tiltlock/internal/ahrs"
	"tiltlock/internal/gesture"
)

// ErrNotStarted is returned by Stop on a source that is not running.
var ErrNotStarted = errors.New("source: not started")

// Sink receives input from sources. Implementations must be safe for
// concurrent use.
type Sink interface {
	Sensor(r ahrs.Reading)
	Touch(ev gesture.TouchEvent)
}

// Source produces readings and/or touches until stopped.
//
// Start must not block; it launches the source's goroutines and returns.
// Stop halts delivery and waits for those goroutines to exit. A stopped
// source may be started again.
type Source interface {
	Name() string
	Start(ctx context.Context, sink Sink) error
	Stop() error
}

// Availability reports which inputs a source can deliver.
type Availability struct {
	Accelerometer bool `json:"accelerometer"`
	MagneticField bool `json:"magnetic_field"`
	Touch         bool `json:"touch"`
}

// Merge returns the union of a and b.
func (a Availability) Merge(b Availability) Availability {
	return Availability{
		Accelerometer: a.Accelerometer || b.Accelerometer,
		MagneticField: a.MagneticField || b.MagneticField,
		Touch:         a.Touch || b.Touch,
	}
}

// AvailabilityOf returns the availability of a source delivering kind.
func AvailabilityOf(kind ahrs.SensorKind) Availability {
	switch kind {
	case ahrs.Accelerometer:
		return Availability{Accelerometer: true}
	case ahrs.MagneticField:
		return Availability{MagneticField: true}
	}
	return Availability{}
}

// Orientation reports whether both fusion inputs are present.
func (a Availability) Orientation() bool {
	return a.Accelerometer && a.MagneticField
}

// Prober is implemented by sources that can tell, before Start, which
// inputs they will deliver.
type Prober interface {
	Probe() Availability
}

// Probe returns the combined availability of srcs. Sources that do not
// implement Prober are assumed to deliver nothing.
func Probe(srcs []Source) Availability {
	var out Availability
	for _, s := range srcs {
		if p, ok := s.(Prober); ok {
			out = out.Merge(p.Probe())
		}
	}
	return out
}
