package replay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"tiltlock/internal/ahrs"
	"tiltlock/internal/gesture"
)

// Log format: line-oriented text.
//
// - Blank lines ignored.
// - Lines starting with '#' ignored.
// - Line "START" resets the origin (next record time is relative to 0 again).
// - Data lines are: <t_ns>,<kind>,<a>,<b>,<c>
//   where t_ns is nanoseconds since START and kind is one of
//   accel / mag (a,b,c = x,y,z) or touch (a = touch kind, b,c = x,y in px).

type Record struct {
	At      time.Duration
	Reading *ahrs.Reading
	Touch   *gesture.TouchEvent
}

// IsStart reports whether r is a START marker.
func (r Record) IsStart() bool { return r.Reading == nil && r.Touch == nil }

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFile reads every record in the log at path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	recs := make([]Record, 0, 1024)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{})
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		recs = append(recs, rec)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

func parseLine(line string) (Record, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 5 {
		return Record{}, fmt.Errorf("invalid replay line (want 5 fields): %q", line)
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	tsNs, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid replay timestamp %q: %w", fields[0], err)
	}
	if tsNs < 0 {
		return Record{}, fmt.Errorf("invalid replay timestamp (negative): %d", tsNs)
	}
	rec := Record{At: time.Duration(tsNs)}

	if fields[1] == "touch" {
		kind, err := gesture.ParseTouchKind(fields[2])
		if err != nil {
			return Record{}, err
		}
		x, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return Record{}, fmt.Errorf("invalid touch x %q: %w", fields[3], err)
		}
		y, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return Record{}, fmt.Errorf("invalid touch y %q: %w", fields[4], err)
		}
		rec.Touch = &gesture.TouchEvent{Kind: kind, X: x, Y: y}
		return rec, nil
	}

	kind, err := ahrs.ParseSensorKind(fields[1])
	if err != nil {
		return Record{}, err
	}
	var v [3]float64
	for i := range v {
		v[i], err = strconv.ParseFloat(fields[2+i], 64)
		if err != nil {
			return Record{}, fmt.Errorf("invalid %s component %q: %w", kind, fields[2+i], err)
		}
	}
	rec.Reading = &ahrs.Reading{Kind: kind, Vector: ahrs.Vector3{X: v[0], Y: v[1], Z: v[2]}}
	return rec, nil
}

type Writer struct {
	mu     sync.Mutex
	c      io.Closer
	w      *bufio.Writer
	start  time.Time
	closed bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, time.Now())
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// NewWriter writes the START marker to wc; record times are relative to
// start.
func NewWriter(wc io.WriteCloser, start time.Time) (*Writer, error) {
	bw := bufio.NewWriterSize(wc, 64*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		return nil, err
	}
	return &Writer{c: wc, w: bw, start: start}, nil
}

func (ww *Writer) since(now time.Time) int64 {
	d := now.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	return d.Nanoseconds()
}

func (ww *Writer) WriteReading(now time.Time, r ahrs.Reading) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	_, err := fmt.Fprintf(ww.w, "%d,%s,%s,%s,%s\n", ww.since(now), r.Kind,
		formatFloat(r.Vector.X), formatFloat(r.Vector.Y), formatFloat(r.Vector.Z))
	return err
}

func (ww *Writer) WriteTouch(now time.Time, ev gesture.TouchEvent) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	_, err := fmt.Fprintf(ww.w, "%d,touch,%s,%s,%s\n", ww.since(now), ev.Kind, formatFloat(ev.X), formatFloat(ev.Y))
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (ww *Writer) Flush() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.c.Close()
		return err
	}
	return ww.c.Close()
}

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Play replays records with their relative timing.
//
// cb is invoked for each data record; START markers reset the origin.
// Returning an error from cb stops playback with that error.
//
// speedMultiplier: 1.0 = real time, 2.0 = 2x speed (half waits), 0.5 = half speed.
func Play(records []Record, speedMultiplier float64, loop bool, sleeper Sleeper, cb func(Record) error) error {
	if speedMultiplier <= 0 {
		return fmt.Errorf("speedMultiplier must be > 0")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	if cb == nil {
		return errors.New("callback is nil")
	}
	if !hasData(records) {
		return errors.New("no records")
	}

	for {
		var origin time.Duration
		var lastAt time.Duration
		var haveLast bool

		for _, r := range records {
			if r.IsStart() {
				origin = r.At
				lastAt = 0
				haveLast = false
				continue
			}

			at := r.At - origin
			if at < 0 {
				at = 0
			}
			if haveLast {
				wait := at - lastAt
				if wait < 0 {
					wait = 0
				}
				wait = time.Duration(float64(wait) / speedMultiplier)
				if wait > 0 {
					sleeper.Sleep(wait)
				}
			}

			if err := cb(r); err != nil {
				return err
			}

			lastAt = at
			haveLast = true
		}

		if !loop {
			return nil
		}
	}
}

func hasData(records []Record) bool {
	for _, r := range records {
		if !r.IsStart() {
			return true
		}
	}
	return false
}
