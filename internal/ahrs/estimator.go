package ahrs

import (
	"fmt"
	"time"
)

// SensorKind tags a reading with the sensor that produced it.
type SensorKind int

const (
	Accelerometer SensorKind = iota + 1
	MagneticField
)

func (k SensorKind) String() string {
	switch k {
	case Accelerometer:
		return "accel"
	case MagneticField:
		return "mag"
	default:
		return fmt.Sprintf("sensor(%d)", int(k))
	}
}

// ParseSensorKind is the inverse of SensorKind.String.
func ParseSensorKind(s string) (SensorKind, error) {
	switch s {
	case "accel":
		return Accelerometer, nil
	case "mag":
		return MagneticField, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSensor, s)
}

// Reading is one timestamped sensor sample.
type Reading struct {
	Kind   SensorKind
	Vector Vector3
	At     time.Time
}

// pendingSample is the accelerometer/magnetometer pair awaiting fusion.
type pendingSample struct {
	accel     Vector3
	mag       Vector3
	haveAccel bool
	haveMag   bool
}

// Estimator pairs readings and fuses each complete pair exactly once.
//
// Both slots are cleared after every fusion attempt, so every result uses
// one fresh accelerometer sample and one fresh magnetometer sample.
// The zero value is ready to use. An Estimator is not safe for concurrent
// use.
type Estimator struct {
	pending pendingSample

	last     Angles
	haveLast bool
}

// Ingest stores v in the slot for kind. When both slots are full it fuses
// them, clears both and returns the new angles with ok set.
//
// An incomplete pair returns ok=false and a nil error. A degenerate pair
// returns ok=false and an error wrapping ErrDegenerateInput; Last keeps the
// previous angles.
func (e *Estimator) Ingest(kind SensorKind, v Vector3) (Angles, bool, error) {
	switch kind {
	case Accelerometer:
		e.pending.accel = v
		e.pending.haveAccel = true
	case MagneticField:
		e.pending.mag = v
		e.pending.haveMag = true
	default:
		return Angles{}, false, fmt.Errorf("%w: %d", ErrUnknownSensor, int(kind))
	}

	if !e.pending.haveAccel || !e.pending.haveMag {
		return Angles{}, false, nil
	}

	accel, mag := e.pending.accel, e.pending.mag
	e.pending = pendingSample{}

	a, err := Compute(accel, mag)
	if err != nil {
		return Angles{}, false, err
	}
	e.last = a
	e.haveLast = true
	return a, true, nil
}

// Last returns the most recent successfully fused angles.
func (e *Estimator) Last() (Angles, bool) {
	return e.last, e.haveLast
}

// Reset drops any half-filled pair. The last angles are kept.
func (e *Estimator) Reset() {
	e.pending = pendingSample{}
}
