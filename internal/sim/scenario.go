package sim

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"tiltlock/internal/ahrs"
	"tiltlock/internal/gesture"
)

// ScenarioScript is a deterministic, script-driven input description.
//
// Time is expressed as Go duration strings (e.g. "0s", "250ms", "10s").
// If Duration is zero, it is derived from the latest time in the script.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 12s
//	field:
//	  horizontal_ut: 20
//	  vertical_ut: 40
//	poses:
//	  - t: 0s
//	    pitch_deg: 85
//	  - t: 4s
//	    pitch_deg: 45
//	    roll_deg: 5
//	touches:
//	  - t: 2s
//	    kind: down
//	    x: 1050
//	    y: 960
//	readings:
//	  - t: 6s
//	    sensor: accel
//	    vector: [0, 0, 9.81]
//
// Poses are interpolated and sampled at the source rate; touches and
// readings fire once when their time is reached. Each list must be sorted
// by t.
type ScenarioScript struct {
	Version  int               `yaml:"version"`
	Duration time.Duration     `yaml:"duration"`
	Field    *FieldSpec        `yaml:"field"`
	Poses    []PoseKeyframe    `yaml:"poses"`
	Touches  []TouchKeyframe   `yaml:"touches"`
	Readings []ReadingKeyframe `yaml:"readings"`
}

type FieldSpec struct {
	HorizontalUT float64 `yaml:"horizontal_ut"`
	VerticalUT   float64 `yaml:"vertical_ut"`
}

type PoseKeyframe struct {
	T          time.Duration `yaml:"t"`
	AzimuthDeg float64       `yaml:"azimuth_deg"`
	PitchDeg   float64       `yaml:"pitch_deg"`
	RollDeg    float64       `yaml:"roll_deg"`
}

type TouchKeyframe struct {
	T    time.Duration `yaml:"t"`
	Kind string        `yaml:"kind"`
	X    float64       `yaml:"x"`
	Y    float64       `yaml:"y"`
}

type ReadingKeyframe struct {
	T      time.Duration `yaml:"t"`
	Sensor string        `yaml:"sensor"`
	Vector []float64     `yaml:"vector"`
}

// Scenario is the validated, runtime representation.
type Scenario struct {
	field    ahrs.GeoField
	poses    []PoseKeyframe
	touches  []timedTouch
	readings []timedReading
	duration time.Duration
}

type timedTouch struct {
	t  time.Duration
	ev gesture.TouchEvent
}

type timedReading struct {
	t time.Duration
	r ahrs.Reading
}

// LoadScenarioScript reads and unmarshals a YAML scenario script from path.
func LoadScenarioScript(path string) (ScenarioScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ScenarioScript{}, err
	}
	return ParseScenarioScriptYAML(b)
}

// ParseScenarioScriptYAML parses a YAML scenario script. Unknown keys are
// rejected.
func ParseScenarioScriptYAML(b []byte) (ScenarioScript, error) {
	var s ScenarioScript
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return ScenarioScript{}, fmt.Errorf("scenario: %w", err)
	}
	return s, nil
}

// NewScenario validates script and returns a runtime Scenario.
func NewScenario(script ScenarioScript) (*Scenario, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario version %d", script.Version)
	}
	if len(script.Poses) == 0 && len(script.Touches) == 0 && len(script.Readings) == 0 {
		return nil, fmt.Errorf("scenario has no poses, touches or readings")
	}

	out := &Scenario{field: ahrs.DefaultGeoField, poses: script.Poses}
	if script.Field != nil {
		if !(script.Field.HorizontalUT > 0) || math.IsInf(script.Field.HorizontalUT, 0) {
			return nil, fmt.Errorf("field.horizontal_ut must be > 0")
		}
		if !finite(script.Field.VerticalUT) {
			return nil, fmt.Errorf("field.vertical_ut must be finite")
		}
		out.field = ahrs.GeoField{HorizontalUT: script.Field.HorizontalUT, VerticalUT: script.Field.VerticalUT}
	}

	var last time.Duration
	check := func(list string, i int, t, prev time.Duration) error {
		if t < 0 {
			return fmt.Errorf("%s[%d].t must be >= 0", list, i)
		}
		if i > 0 && t < prev {
			return fmt.Errorf("%s[%d].t=%s is before %s[%d].t=%s", list, i, t, list, i-1, prev)
		}
		if t > last {
			last = t
		}
		return nil
	}

	for i, p := range script.Poses {
		var prev time.Duration
		if i > 0 {
			prev = script.Poses[i-1].T
		}
		if err := check("poses", i, p.T, prev); err != nil {
			return nil, err
		}
		if !(p.PitchDeg >= -90 && p.PitchDeg <= 90) {
			return nil, fmt.Errorf("poses[%d].pitch_deg must be within [-90, 90]", i)
		}
		if !finite(p.AzimuthDeg) || !finite(p.RollDeg) {
			return nil, fmt.Errorf("poses[%d]: azimuth_deg and roll_deg must be finite", i)
		}
	}
	for i, k := range script.Touches {
		var prev time.Duration
		if i > 0 {
			prev = script.Touches[i-1].T
		}
		if err := check("touches", i, k.T, prev); err != nil {
			return nil, err
		}
		kind, err := gesture.ParseTouchKind(k.Kind)
		if err != nil {
			return nil, fmt.Errorf("touches[%d]: %w", i, err)
		}
		if !finite(k.X) || !finite(k.Y) {
			return nil, fmt.Errorf("touches[%d]: x and y must be finite", i)
		}
		out.touches = append(out.touches, timedTouch{t: k.T, ev: gesture.TouchEvent{Kind: kind, X: k.X, Y: k.Y}})
	}
	for i, k := range script.Readings {
		var prev time.Duration
		if i > 0 {
			prev = script.Readings[i-1].T
		}
		if err := check("readings", i, k.T, prev); err != nil {
			return nil, err
		}
		kind, err := ahrs.ParseSensorKind(k.Sensor)
		if err != nil {
			return nil, fmt.Errorf("readings[%d]: %w", i, err)
		}
		if len(k.Vector) != 3 {
			return nil, fmt.Errorf("readings[%d].vector must have 3 elements", i)
		}
		if !finite(k.Vector[0]) || !finite(k.Vector[1]) || !finite(k.Vector[2]) {
			return nil, fmt.Errorf("readings[%d].vector must be finite", i)
		}
		out.readings = append(out.readings, timedReading{
			t: k.T,
			r: ahrs.Reading{Kind: kind, Vector: ahrs.Vector3{X: k.Vector[0], Y: k.Vector[1], Z: k.Vector[2]}},
		})
	}

	out.duration = script.Duration
	if out.duration <= 0 {
		out.duration = last
	}
	if out.duration <= 0 && len(script.Poses) == 0 {
		return nil, fmt.Errorf("duration is required (or deriveable from the script)")
	}
	return out, nil
}

// Duration returns the effective scenario duration.
func (s *Scenario) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.duration
}

func (s *Scenario) Field() ahrs.GeoField { return s.field }

// HasPoses reports whether the scenario drives continuous orientation.
func (s *Scenario) HasPoses() bool { return s != nil && len(s.poses) > 0 }

func (s *Scenario) hasReadings(kind ahrs.SensorKind) bool {
	for _, r := range s.readings {
		if r.r.Kind == kind {
			return true
		}
	}
	return false
}

// PoseAt returns the interpolated pose at elapsed, clamped to the script.
func (s *Scenario) PoseAt(elapsed time.Duration) ahrs.Angles {
	if !s.HasPoses() {
		return ahrs.Angles{}
	}
	k0, k1, alpha := selectSegment(s.poses, elapsed)
	return ahrs.Angles{
		AzimuthDeg: lerpAngleDeg(k0.AzimuthDeg, k1.AzimuthDeg, alpha),
		PitchDeg:   lerp(k0.PitchDeg, k1.PitchDeg, alpha),
		RollDeg:    lerpAngleDeg(k0.RollDeg, k1.RollDeg, alpha),
	}
}

// touchesIn returns touches with from < t <= to. from < 0 includes t == 0.
func (s *Scenario) touchesIn(from, to time.Duration) []gesture.TouchEvent {
	var out []gesture.TouchEvent
	for _, k := range s.touches {
		if k.t > from && k.t <= to {
			out = append(out, k.ev)
		}
	}
	return out
}

func (s *Scenario) readingsIn(from, to time.Duration) []ahrs.Reading {
	var out []ahrs.Reading
	for _, k := range s.readings {
		if k.t > from && k.t <= to {
			out = append(out, k.r)
		}
	}
	return out
}

func selectSegment(kfs []PoseKeyframe, t time.Duration) (PoseKeyframe, PoseKeyframe, float64) {
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0 := kfs[idx-1]
	k1 := kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return k0, k1, alpha
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// lerpAngleDeg interpolates along the shorter arc and returns a value in
// [-180, 180).
func lerpAngleDeg(a0, a1, t float64) float64 {
	delta := wrap180(a1 - a0)
	return wrap180(a0 + delta*t)
}

func wrap180(x float64) float64 {
	x = math.Mod(x+180, 360)
	if x < 0 {
		x += 360
	}
	if x >= 360 {
		x = 0
	}
	return x - 180
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
