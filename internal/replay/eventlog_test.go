package replay

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tiltlock/internal/ahrs"
	"tiltlock/internal/gesture"
)

type fakeSleeper struct {
	slept []time.Duration
}

func (fs *fakeSleeper) Sleep(d time.Duration) {
	fs.slept = append(fs.slept, d)
}

func accel(at time.Duration, x, y, z float64) Record {
	return Record{At: at, Reading: &ahrs.Reading{Kind: ahrs.Accelerometer, Vector: ahrs.Vector3{X: x, Y: y, Z: z}}}
}

func TestReaderReadAll(t *testing.T) {
	in := strings.NewReader(`
# comment

START
0, accel, 0, 0, 9.81
10,mag,1.5,-2,40
25,touch,down,1000,960
`)

	recs, err := NewReader(in).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	want := []Record{
		{},
		accel(0, 0, 0, 9.81),
		{At: 10, Reading: &ahrs.Reading{Kind: ahrs.MagneticField, Vector: ahrs.Vector3{X: 1.5, Y: -2, Z: 40}}},
		{At: 25, Touch: &gesture.TouchEvent{Kind: gesture.TouchDown, X: 1000, Y: 960}},
	}
	if diff := cmp.Diff(want, recs); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	if !recs[0].IsStart() || recs[1].IsStart() {
		t.Fatalf("IsStart mismatch")
	}
}

func TestReaderReadAll_InvalidLines(t *testing.T) {
	for _, line := range []string{
		"not-a-valid-line",
		"x,accel,0,0,0",
		"-5,accel,0,0,0",
		"0,gyro,0,0,0",
		"0,accel,0,zero,0",
		"0,touch,poke,1,1",
		"0,touch,down,1",
	} {
		if _, err := NewReader(strings.NewReader(line + "\n")).ReadAll(); err == nil {
			t.Fatalf("%q: expected error", line)
		}
	}
}

func TestPlay_RespectsTimingAndStart(t *testing.T) {
	fs := &fakeSleeper{}
	recs := []Record{
		{At: 1 * time.Second},
		accel(1*time.Second, 1, 0, 0),
		accel(1*time.Second+100*time.Nanosecond, 2, 0, 0),
		{At: 2 * time.Second},
		accel(2*time.Second+50*time.Nanosecond, 3, 0, 0),
	}

	var xs []float64
	err := Play(recs, 1.0, false, fs, func(r Record) error {
		xs = append(xs, r.Reading.Vector.X)
		return nil
	})
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if !reflect.DeepEqual(xs, []float64{1, 2, 3}) {
		t.Fatalf("played %v", xs)
	}
	if !reflect.DeepEqual(fs.slept, []time.Duration{100 * time.Nanosecond}) {
		t.Fatalf("slept = %v, want [100ns]", fs.slept)
	}
}

func TestPlay_SpeedMultiplier(t *testing.T) {
	fs := &fakeSleeper{}
	recs := []Record{accel(0, 0, 0, 1), accel(100, 0, 0, 1)}

	if err := Play(recs, 2.0, false, fs, func(Record) error { return nil }); err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if !reflect.DeepEqual(fs.slept, []time.Duration{50 * time.Nanosecond}) {
		t.Fatalf("slept = %v, want [50ns]", fs.slept)
	}
}

func TestPlay_InvalidInput(t *testing.T) {
	recs := []Record{accel(0, 0, 0, 1)}
	if err := Play(recs, 0, false, nil, func(Record) error { return nil }); err == nil {
		t.Fatalf("expected error for zero speed")
	}
	if err := Play([]Record{{}}, 1, true, nil, func(Record) error { return nil }); err == nil {
		t.Fatalf("expected error for a log with only START")
	}
	if err := Play(recs, 1, false, nil, nil); err == nil {
		t.Fatalf("expected error for nil callback")
	}
}

func TestWriter_WritesExpectedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	w, err := CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}
	w.start = time.Unix(0, 0)

	if err := w.WriteReading(time.Unix(0, 20), ahrs.Reading{Kind: ahrs.MagneticField, Vector: ahrs.Vector3{X: 1.5, Y: -2, Z: 40}}); err != nil {
		t.Fatalf("WriteReading() error: %v", err)
	}
	if err := w.WriteTouch(time.Unix(0, 30), gesture.TouchEvent{Kind: gesture.TouchUp, X: 10, Y: 20.25}); err != nil {
		t.Fatalf("WriteTouch() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := w.WriteTouch(time.Unix(0, 40), gesture.TouchEvent{}); err == nil {
		t.Fatalf("write after Close succeeded")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(b) != "START\n20,mag,1.5,-2,40\n30,touch,up,10,20.25\n" {
		t.Fatalf("unexpected file contents: %q", string(b))
	}
}
