//go:build linux

package touch

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/holoplot/go-evdev"

	"tiltlock/internal/gesture"
)

var panel = gesture.DisplayMetrics{WidthPx: 1000, HeightPx: 2000, Density: 2}

func abs(code evdev.EvCode, v int32) *evdev.InputEvent {
	return &evdev.InputEvent{Type: evdev.EV_ABS, Code: code, Value: v}
}

func key(code evdev.EvCode, v int32) *evdev.InputEvent {
	return &evdev.InputEvent{Type: evdev.EV_KEY, Code: code, Value: v}
}

func syn() *evdev.InputEvent {
	return &evdev.InputEvent{Type: evdev.EV_SYN, Code: evdev.SYN_REPORT}
}

// feed runs events through tr and collects emitted touches.
func feed(tr *Translator, evs ...*evdev.InputEvent) []gesture.TouchEvent {
	var out []gesture.TouchEvent
	for _, ev := range evs {
		if te, ok := tr.Feed(ev, time.Time{}); ok {
			out = append(out, te)
		}
	}
	return out
}

func TestTranslator_DownMoveUp(t *testing.T) {
	tr := NewTranslator(Axis{Min: 0, Max: 4000}, Axis{Min: 0, Max: 4000}, panel, Options{})
	got := feed(tr,
		abs(evdev.ABS_MT_TRACKING_ID, 7),
		abs(evdev.ABS_MT_POSITION_X, 3600),
		abs(evdev.ABS_MT_POSITION_Y, 2000),
		key(evdev.BTN_TOUCH, 1),
		syn(),
		abs(evdev.ABS_MT_POSITION_X, 3800),
		syn(),
		syn(),
		abs(evdev.ABS_MT_TRACKING_ID, -1),
		key(evdev.BTN_TOUCH, 0),
		syn(),
	)
	want := []gesture.TouchEvent{
		{Kind: gesture.TouchDown, X: 900, Y: 1000},
		{Kind: gesture.TouchMove, X: 950, Y: 1000},
		{Kind: gesture.TouchUp, X: 950, Y: 1000},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("touches mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslator_SingleTouchProtocol(t *testing.T) {
	tr := NewTranslator(Axis{Min: 100, Max: 1100}, Axis{Min: 0, Max: 1000}, panel, Options{})
	got := feed(tr,
		abs(evdev.ABS_X, 600),
		abs(evdev.ABS_Y, 250),
		key(evdev.BTN_TOUCH, 1),
		syn(),
		key(evdev.BTN_TOUCH, 0),
		syn(),
	)
	want := []gesture.TouchEvent{
		{Kind: gesture.TouchDown, X: 500, Y: 500},
		{Kind: gesture.TouchUp, X: 500, Y: 500},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("touches mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslator_SecondFingerIsIgnored(t *testing.T) {
	tr := NewTranslator(Axis{Min: 0, Max: 4000}, Axis{Min: 0, Max: 4000}, panel, Options{})
	got := feed(tr,
		abs(evdev.ABS_MT_SLOT, 0),
		abs(evdev.ABS_MT_TRACKING_ID, 7),
		abs(evdev.ABS_MT_POSITION_X, 3600),
		abs(evdev.ABS_MT_POSITION_Y, 2000),
		key(evdev.BTN_TOUCH, 1),
		abs(evdev.ABS_X, 3600),
		abs(evdev.ABS_Y, 2000),
		syn(),
		// Second finger lands and moves.
		abs(evdev.ABS_MT_SLOT, 1),
		abs(evdev.ABS_MT_TRACKING_ID, 8),
		abs(evdev.ABS_MT_POSITION_X, 400),
		abs(evdev.ABS_MT_POSITION_Y, 400),
		syn(),
		abs(evdev.ABS_MT_POSITION_X, 500),
		syn(),
		// First finger moves.
		abs(evdev.ABS_MT_SLOT, 0),
		abs(evdev.ABS_MT_POSITION_X, 3800),
		syn(),
		// Second finger lifts; BTN_TOUCH stays down.
		abs(evdev.ABS_MT_SLOT, 1),
		abs(evdev.ABS_MT_TRACKING_ID, -1),
		syn(),
		// First finger lifts.
		abs(evdev.ABS_MT_SLOT, 0),
		abs(evdev.ABS_MT_TRACKING_ID, -1),
		key(evdev.BTN_TOUCH, 0),
		syn(),
	)
	want := []gesture.TouchEvent{
		{Kind: gesture.TouchDown, X: 900, Y: 1000},
		{Kind: gesture.TouchMove, X: 950, Y: 1000},
		{Kind: gesture.TouchUp, X: 950, Y: 1000},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("touches mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslator_MoveWithoutContactIsIgnored(t *testing.T) {
	tr := NewTranslator(Axis{Max: 100}, Axis{Max: 100}, panel, Options{})
	if got := feed(tr, abs(evdev.ABS_X, 50), syn()); len(got) != 0 {
		t.Fatalf("got %+v want nothing", got)
	}
}

func TestTranslator_SwapAndInvert(t *testing.T) {
	tr := NewTranslator(Axis{Max: 100}, Axis{Max: 100}, panel, Options{SwapXY: true, InvertX: true})
	got := feed(tr,
		abs(evdev.ABS_X, 25),
		abs(evdev.ABS_Y, 10),
		key(evdev.BTN_TOUCH, 1),
		syn(),
	)
	// Swapped: fx=0.10, fy=0.25; inverted x: 0.90.
	want := []gesture.TouchEvent{{Kind: gesture.TouchDown, X: 900, Y: 500}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("touches mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslator_DroppedCancelsActiveTouch(t *testing.T) {
	tr := NewTranslator(Axis{Max: 100}, Axis{Max: 100}, panel, Options{})
	got := feed(tr,
		key(evdev.BTN_TOUCH, 1),
		syn(),
		&evdev.InputEvent{Type: evdev.EV_SYN, Code: evdev.SYN_DROPPED},
		&evdev.InputEvent{Type: evdev.EV_SYN, Code: evdev.SYN_DROPPED},
	)
	if len(got) != 2 || got[0].Kind != gesture.TouchDown || got[1].Kind != gesture.TouchCancel {
		t.Fatalf("got %+v want down then a single cancel", got)
	}
}

func TestNormalizeClamps(t *testing.T) {
	a := Axis{Min: 0, Max: 10}
	if got := normalize(-5, a); got != 0 {
		t.Fatalf("normalize(-5)=%v", got)
	}
	if got := normalize(15, a); got != 1 {
		t.Fatalf("normalize(15)=%v", got)
	}
	if got := normalize(5, Axis{}); got != 0 {
		t.Fatalf("degenerate axis=%v", got)
	}
}
