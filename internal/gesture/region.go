// Package gesture decides unlock and lock transitions from orientation
// angles and touch input.
package gesture

import (
	"fmt"
	"time"
)

// DefaultMarginDp is the half-size of the unlock touch band in
// density-independent units.
const DefaultMarginDp = 75

// DisplayMetrics describes the screen the region is laid out on.
type DisplayMetrics struct {
	WidthPx  int `json:"width_px"`
	HeightPx int `json:"height_px"`
	// Density is pixels per density-independent unit.
	Density float64 `json:"density"`
}

// Region is the touch band along the right edge of the screen, centered
// vertically. The band extends to the right edge, so no XEnd is stored.
type Region struct {
	XStart float64 `json:"x_start"`
	YStart float64 `json:"y_start"`
	YEnd   float64 `json:"y_end"`
}

// NewRegion lays out the unlock band for the given display.
func NewRegion(m DisplayMetrics, marginDp float64) (Region, error) {
	if m.WidthPx <= 0 || m.HeightPx <= 0 {
		return Region{}, fmt.Errorf("gesture: invalid display size %dx%d", m.WidthPx, m.HeightPx)
	}
	if m.Density <= 0 {
		return Region{}, fmt.Errorf("gesture: invalid display density %v", m.Density)
	}
	if marginDp <= 0 {
		return Region{}, fmt.Errorf("gesture: invalid margin %vdp", marginDp)
	}

	pixRange := marginDp * m.Density
	half := 0.5 * float64(m.HeightPx)
	return Region{
		XStart: float64(m.WidthPx) - pixRange,
		YStart: half - pixRange,
		YEnd:   half + pixRange,
	}, nil
}

// Contains reports whether (x, y) lies strictly inside the band.
func (r Region) Contains(x, y float64) bool {
	return x > r.XStart && y > r.YStart && y < r.YEnd
}

// TouchKind is the phase of a single-pointer touch event.
type TouchKind int

const (
	TouchDown TouchKind = iota + 1
	TouchMove
	TouchUp
	TouchCancel
	// TouchOutside is a movement outside the bounds of the screen element.
	TouchOutside
)

var touchKindNames = map[TouchKind]string{
	TouchDown:    "down",
	TouchMove:    "move",
	TouchUp:      "up",
	TouchCancel:  "cancel",
	TouchOutside: "outside",
}

func (k TouchKind) String() string {
	if s, ok := touchKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("touch(%d)", int(k))
}

// ParseTouchKind is the inverse of TouchKind.String.
func ParseTouchKind(s string) (TouchKind, error) {
	for k, name := range touchKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("gesture: unknown touch kind %q", s)
}

// TouchEvent is one pointer event in display pixel coordinates.
type TouchEvent struct {
	Kind TouchKind
	X, Y float64
	At   time.Time
}

// InRangeAfter returns the in-range state after ev. Down and Move test the
// coordinates; every other kind ends the gesture.
func InRangeAfter(r Region, ev TouchEvent) bool {
	switch ev.Kind {
	case TouchDown, TouchMove:
		return r.Contains(ev.X, ev.Y)
	default:
		return false
	}
}

// Tracker keeps the in-range state of the current touch gesture.
// Only the most recent event matters; multi-touch is not tracked.
type Tracker struct {
	region  Region
	inRange bool
}

func NewTracker(r Region) *Tracker {
	return &Tracker{region: r}
}

// OnTouch applies ev and returns the new in-range state.
func (t *Tracker) OnTouch(ev TouchEvent) bool {
	t.inRange = InRangeAfter(t.region, ev)
	return t.inRange
}

func (t *Tracker) InRange() bool { return t.inRange }

func (t *Tracker) Region() Region { return t.region }

// Reset ends any gesture in progress.
func (t *Tracker) Reset() { t.inRange = false }
