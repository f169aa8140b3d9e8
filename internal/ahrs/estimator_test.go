package ahrs

import (
	"errors"
	"testing"
)

var (
	accelTilted = Vector3{X: 0, Y: 6.9367, Z: 6.9367}
	magNorth    = Vector3{X: 0, Y: 20, Z: -40}
)

func TestEstimator_WaitsForBothReadings(t *testing.T) {
	var e Estimator
	if _, ok, err := e.Ingest(Accelerometer, accelTilted); ok || err != nil {
		t.Fatalf("ok=%v err=%v want incomplete", ok, err)
	}
	// A second accelerometer sample replaces the first, still incomplete.
	if _, ok, err := e.Ingest(Accelerometer, accelTilted); ok || err != nil {
		t.Fatalf("ok=%v err=%v want incomplete", ok, err)
	}
	a, ok, err := e.Ingest(MagneticField, magNorth)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v want fused", ok, err)
	}
	if a.PitchDeg < 44.9 || a.PitchDeg > 45.1 {
		t.Fatalf("pitch=%v want ~45", a.PitchDeg)
	}
}

func TestEstimator_ClearsBothSlotsAfterFusion(t *testing.T) {
	var e Estimator
	_, _, _ = e.Ingest(MagneticField, magNorth)
	if _, ok, _ := e.Ingest(Accelerometer, accelTilted); !ok {
		t.Fatalf("expected fusion")
	}
	if p := e.pending; p.haveAccel || p.haveMag {
		t.Fatalf("pending=%+v want empty", p)
	}

	// Only a new accelerometer sample must not fuse again.
	if _, ok, err := e.Ingest(Accelerometer, accelTilted); ok || err != nil {
		t.Fatalf("ok=%v err=%v want incomplete", ok, err)
	}
	if _, ok, _ := e.Ingest(MagneticField, magNorth); !ok {
		t.Fatalf("expected fusion after fresh magnetometer sample")
	}
}

func TestEstimator_DegenerateKeepsPreviousAngles(t *testing.T) {
	var e Estimator
	_, _, _ = e.Ingest(Accelerometer, accelTilted)
	first, ok, _ := e.Ingest(MagneticField, magNorth)
	if !ok {
		t.Fatalf("expected fusion")
	}

	_, _, _ = e.Ingest(Accelerometer, Vector3{Z: 9.8})
	_, ok, err := e.Ingest(MagneticField, Vector3{Z: 45})
	if ok {
		t.Fatalf("degenerate pair must not report ok")
	}
	if !errors.Is(err, ErrDegenerateInput) {
		t.Fatalf("err=%v want ErrDegenerateInput", err)
	}
	last, have := e.Last()
	if !have || last != first {
		t.Fatalf("last=%v have=%v want %v", last, have, first)
	}
	if p := e.pending; p.haveAccel || p.haveMag {
		t.Fatalf("degenerate pair must still clear slots, pending=%+v", p)
	}
}

func TestEstimator_UnknownKindLeavesSlots(t *testing.T) {
	var e Estimator
	_, _, _ = e.Ingest(Accelerometer, accelTilted)
	_, ok, err := e.Ingest(SensorKind(9), magNorth)
	if ok || !errors.Is(err, ErrUnknownSensor) {
		t.Fatalf("ok=%v err=%v want ErrUnknownSensor", ok, err)
	}
	if p := e.pending; !p.haveAccel || p.haveMag {
		t.Fatalf("pending=%+v want accel only", p)
	}
}

func TestEstimator_ResetDropsHalfPair(t *testing.T) {
	var e Estimator
	_, _, _ = e.Ingest(Accelerometer, accelTilted)
	e.Reset()
	if _, ok, _ := e.Ingest(MagneticField, magNorth); ok {
		t.Fatalf("reset must drop the pending accelerometer sample")
	}
}

func TestParseSensorKind(t *testing.T) {
	for _, k := range []SensorKind{Accelerometer, MagneticField} {
		got, err := ParseSensorKind(k.String())
		if err != nil || got != k {
			t.Fatalf("ParseSensorKind(%q)=%v,%v", k.String(), got, err)
		}
	}
	if _, err := ParseSensorKind("gyro"); !errors.Is(err, ErrUnknownSensor) {
		t.Fatalf("err=%v want ErrUnknownSensor", err)
	}
}
