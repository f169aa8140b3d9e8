package gesture

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"tiltlock/internal/ahrs"
)

func TestNewRegion_Layout(t *testing.T) {
	got, err := NewRegion(DisplayMetrics{WidthPx: 1080, HeightPx: 1920, Density: 2.0}, DefaultMarginDp)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	want := Region{XStart: 930, YStart: 810, YEnd: 1110}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("region mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRegion_RejectsBadMetrics(t *testing.T) {
	cases := []struct {
		name   string
		m      DisplayMetrics
		margin float64
	}{
		{"ZeroWidth", DisplayMetrics{WidthPx: 0, HeightPx: 100, Density: 1}, 75},
		{"ZeroHeight", DisplayMetrics{WidthPx: 100, HeightPx: 0, Density: 1}, 75},
		{"ZeroDensity", DisplayMetrics{WidthPx: 100, HeightPx: 100}, 75},
		{"ZeroMargin", DisplayMetrics{WidthPx: 100, HeightPx: 100, Density: 1}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewRegion(tc.m, tc.margin); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestRegion_ContainsIsStrict(t *testing.T) {
	r := Region{XStart: 1000, YStart: 800, YEnd: 1200}
	cases := []struct {
		x, y float64
		want bool
	}{
		{1050, 1000, true},
		{1000, 1000, false},
		{1050, 800, false},
		{1050, 1200, false},
		{999, 1000, false},
		{5000, 801, true},
		{1050, 1199.5, true},
	}
	for _, tc := range cases {
		if got := r.Contains(tc.x, tc.y); got != tc.want {
			t.Fatalf("Contains(%v,%v)=%v want %v", tc.x, tc.y, got, tc.want)
		}
	}
}

func TestTracker_FollowsLatestEvent(t *testing.T) {
	tr := NewTracker(Region{XStart: 1000, YStart: 800, YEnd: 1200})

	steps := []struct {
		ev   TouchEvent
		want bool
	}{
		{TouchEvent{Kind: TouchDown, X: 1050, Y: 1000}, true},
		{TouchEvent{Kind: TouchMove, X: 1060, Y: 1010}, true},
		{TouchEvent{Kind: TouchMove, X: 500, Y: 1010}, false},
		{TouchEvent{Kind: TouchMove, X: 1060, Y: 1010}, true},
		{TouchEvent{Kind: TouchUp, X: 1060, Y: 1010}, false},
		{TouchEvent{Kind: TouchDown, X: 1060, Y: 1010}, true},
		{TouchEvent{Kind: TouchCancel, X: 1060, Y: 1010}, false},
		{TouchEvent{Kind: TouchDown, X: 1060, Y: 1010}, true},
		{TouchEvent{Kind: TouchOutside, X: 1060, Y: 1010}, false},
	}
	for i, s := range steps {
		if got := tr.OnTouch(s.ev); got != s.want {
			t.Fatalf("step %d (%v): inRange=%v want %v", i, s.ev.Kind, got, s.want)
		}
		if tr.InRange() != s.want {
			t.Fatalf("step %d: InRange() disagrees with OnTouch", i)
		}
	}

	tr.OnTouch(TouchEvent{Kind: TouchDown, X: 1050, Y: 1000})
	tr.Reset()
	if tr.InRange() {
		t.Fatalf("Reset must clear in-range state")
	}
}

func TestParseTouchKind(t *testing.T) {
	for k := range touchKindNames {
		got, err := ParseTouchKind(k.String())
		if err != nil || got != k {
			t.Fatalf("ParseTouchKind(%q)=%v,%v", k.String(), got, err)
		}
	}
	if _, err := ParseTouchKind("pinch"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestLockController_Evaluate(t *testing.T) {
	c, err := NewLockController(DefaultLockConfig())
	if err != nil {
		t.Fatalf("NewLockController: %v", err)
	}
	cases := []struct {
		name    string
		pitch   float64
		roll    float64
		inRange bool
		want    Outcome
	}{
		{"UnlockPose", 45, 0, true, TriggerUnlock},
		{"NotTouching", 45, 0, false, NoChange},
		{"PitchLowBoundary", 40, 0, true, NoChange},
		{"PitchHighBoundary", 50, 0, true, NoChange},
		{"PitchJustInside", 40.01, 0, true, TriggerUnlock},
		{"RollLowBoundary", 45, -50, true, NoChange},
		{"RollHighBoundary", 45, 100, true, NoChange},
		{"RollJustInside", 45, 99.9, true, TriggerUnlock},
		{"TopEdgeDown", 45, 180, true, NoChange},
		{"Flat", 89, 0, true, NoChange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Evaluate(ahrs.Angles{PitchDeg: tc.pitch, RollDeg: tc.roll}, tc.inRange)
			if got != tc.want {
				t.Fatalf("Evaluate=%v want %v", got, tc.want)
			}
		})
	}
}

func TestLockController_RepeatsWithoutDebounce(t *testing.T) {
	c, _ := NewLockController(DefaultLockConfig())
	a := ahrs.Angles{PitchDeg: 45, RollDeg: 0}
	for i := 0; i < 3; i++ {
		if got := c.Evaluate(a, true); got != TriggerUnlock {
			t.Fatalf("evaluation %d: %v want unlock", i, got)
		}
	}
}

func TestLevelController_Evaluate(t *testing.T) {
	c, err := NewLevelController(DefaultLevelConfig())
	if err != nil {
		t.Fatalf("NewLevelController: %v", err)
	}
	cases := []struct {
		pitch float64
		want  Outcome
	}{
		{85, TriggerLock},
		{80, NoChange},
		{90, NoChange},
		{80.5, TriggerLock},
		{45, NoChange},
		{-85, NoChange},
	}
	for _, tc := range cases {
		// Azimuth and roll are irrelevant to locking.
		a := ahrs.Angles{AzimuthDeg: 123, PitchDeg: tc.pitch, RollDeg: -170}
		if got := c.Evaluate(a); got != tc.want {
			t.Fatalf("pitch=%v: %v want %v", tc.pitch, got, tc.want)
		}
	}
}

func TestControllers_RejectInvertedWindows(t *testing.T) {
	if _, err := NewLockController(LockConfig{Pitch: Window{Min: 50, Max: 40}, Roll: Window{Min: -50, Max: 100}}); err == nil {
		t.Fatalf("expected error for inverted pitch window")
	}
	if _, err := NewLockController(LockConfig{Pitch: Window{Min: 40, Max: 50}, Roll: Window{Min: 0, Max: 0}}); err == nil {
		t.Fatalf("expected error for empty roll window")
	}
	if _, err := NewLevelController(LevelConfig{Pitch: Window{Min: 90, Max: 80}}); err == nil {
		t.Fatalf("expected error for inverted lock window")
	}
}

func TestUnlockPoseFromSensors(t *testing.T) {
	c, _ := NewLockController(DefaultLockConfig())
	l, _ := NewLevelController(DefaultLevelConfig())

	accel, mag := ahrs.Synthesize(ahrs.Angles{PitchDeg: 45}, ahrs.DefaultGeoField)
	a, err := ahrs.Compute(accel, mag)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got := c.Evaluate(a, true); got != TriggerUnlock {
		t.Fatalf("tilted pose: %v want unlock", got)
	}
	if got := l.Evaluate(a); got != NoChange {
		t.Fatalf("tilted pose must not lock: %v", got)
	}

	accel, mag = ahrs.Synthesize(ahrs.Angles{PitchDeg: 85}, ahrs.DefaultGeoField)
	a, err = ahrs.Compute(accel, mag)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got := l.Evaluate(a); got != TriggerLock {
		t.Fatalf("flat pose: %v want lock", got)
	}
}

func TestLevelController_RepeatsWithoutDebounce(t *testing.T) {
	c, _ := NewLevelController(DefaultLevelConfig())
	a := ahrs.Angles{PitchDeg: 85}
	for i := 0; i < 3; i++ {
		if got := c.Evaluate(a); got != TriggerLock {
			t.Fatalf("evaluation %d: %v want lock", i, got)
		}
	}
}
