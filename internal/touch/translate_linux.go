//go:build linux

// Package touch turns Linux evdev touchscreen events into single-pointer
// touch events in display pixels.
package touch

import (
	"time"

	"github.com/holoplot/go-evdev"

	"tiltlock/internal/gesture"
)

// Axis is the reported range of one absolute axis.
type Axis struct {
	Min, Max int32
}

// Translator is a small state machine over one evdev frame at a time.
// It tracks the first contact only: on multi-touch devices that is slot 0,
// and the single-touch ABS_X/ABS_Y/BTN_TOUCH emulation is ignored.
type Translator struct {
	x, y     Axis
	widthPx  float64
	heightPx float64
	swapXY   bool
	invertX  bool
	invertY  bool

	rawX, rawY int32
	// mt is set once the device reports multi-touch events; slot is the
	// slot the following ABS_MT_* events apply to.
	mt         bool
	slot       int32
	moved      bool
	active     bool
	wantDown   bool
	wantUp     bool
}

type Options struct {
	SwapXY  bool
	InvertX bool
	InvertY bool
}

func NewTranslator(x, y Axis, m gesture.DisplayMetrics, opt Options) *Translator {
	return &Translator{
		x:        x,
		y:        y,
		widthPx:  float64(m.WidthPx),
		heightPx: float64(m.HeightPx),
		swapXY:   opt.SwapXY,
		invertX:  opt.InvertX,
		invertY:  opt.InvertY,
	}
}

// Feed consumes one input event. At each SYN_REPORT it may emit a touch.
func (t *Translator) Feed(ev *evdev.InputEvent, at time.Time) (gesture.TouchEvent, bool) {
	switch ev.Type {
	case evdev.EV_ABS:
		switch ev.Code {
		case evdev.ABS_MT_SLOT:
			t.mt = true
			t.slot = ev.Value
		case evdev.ABS_MT_POSITION_X:
			t.mt = true
			if t.slot == 0 {
				t.rawX = ev.Value
				t.moved = true
			}
		case evdev.ABS_MT_POSITION_Y:
			t.mt = true
			if t.slot == 0 {
				t.rawY = ev.Value
				t.moved = true
			}
		case evdev.ABS_MT_TRACKING_ID:
			t.mt = true
			if t.slot != 0 {
				break
			}
			// Protocol B devices may never send BTN_TOUCH.
			if ev.Value < 0 {
				t.wantUp = true
			} else {
				t.wantDown = true
			}
		case evdev.ABS_X:
			if !t.mt {
				t.rawX = ev.Value
				t.moved = true
			}
		case evdev.ABS_Y:
			if !t.mt {
				t.rawY = ev.Value
				t.moved = true
			}
		}
	case evdev.EV_KEY:
		// BTN_TOUCH stays down while any finger is; slot 0 decides on
		// multi-touch devices.
		if ev.Code == evdev.BTN_TOUCH && !t.mt {
			if ev.Value != 0 {
				t.wantDown = true
			} else {
				t.wantUp = true
			}
		}
	case evdev.EV_SYN:
		switch ev.Code {
		case evdev.SYN_REPORT:
			return t.flush(at)
		case evdev.SYN_DROPPED:
			wasActive := t.active
			t.reset()
			if wasActive {
				return gesture.TouchEvent{Kind: gesture.TouchCancel, At: at}, true
			}
		}
	}
	return gesture.TouchEvent{}, false
}

func (t *Translator) flush(at time.Time) (gesture.TouchEvent, bool) {
	defer func() {
		t.moved, t.wantDown, t.wantUp = false, false, false
	}()

	x, y := t.pixels()
	switch {
	case t.wantUp && t.active:
		t.active = false
		return gesture.TouchEvent{Kind: gesture.TouchUp, X: x, Y: y, At: at}, true
	case t.wantDown && !t.active:
		t.active = true
		return gesture.TouchEvent{Kind: gesture.TouchDown, X: x, Y: y, At: at}, true
	case t.moved && t.active:
		return gesture.TouchEvent{Kind: gesture.TouchMove, X: x, Y: y, At: at}, true
	}
	return gesture.TouchEvent{}, false
}

func (t *Translator) reset() {
	t.moved, t.active, t.wantDown, t.wantUp = false, false, false, false
}

func (t *Translator) pixels() (float64, float64) {
	fx := normalize(t.rawX, t.x)
	fy := normalize(t.rawY, t.y)
	if t.swapXY {
		fx, fy = fy, fx
	}
	if t.invertX {
		fx = 1 - fx
	}
	if t.invertY {
		fy = 1 - fy
	}
	return fx * t.widthPx, fy * t.heightPx
}

func normalize(v int32, a Axis) float64 {
	if a.Max <= a.Min {
		return 0
	}
	f := float64(v-a.Min) / float64(a.Max-a.Min)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
