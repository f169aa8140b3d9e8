package replay

import (
	"log"
	"sync/atomic"
	"time"

	"tiltlock/internal/ahrs"
	"tiltlock/internal/gesture"
)

// flushInterval bounds how much of the log a crash can lose.
const flushInterval = time.Second

// Recorder writes every input it sees to an event log. It plugs into a
// session as a tap, so Reading and Touch are called from one goroutine.
type Recorder struct {
	w      *Writer
	now    func() time.Time
	failed atomic.Uint64

	lastFlush time.Time
}

func NewRecorder(w *Writer) *Recorder {
	return &Recorder{w: w, now: time.Now}
}

func (r *Recorder) at(t time.Time) time.Time {
	if t.IsZero() {
		return r.now()
	}
	return t
}

func (r *Recorder) Reading(rd ahrs.Reading) {
	r.check(r.w.WriteReading(r.at(rd.At), rd))
	r.maybeFlush()
}

func (r *Recorder) Touch(ev gesture.TouchEvent) {
	r.check(r.w.WriteTouch(r.at(ev.At), ev))
	r.maybeFlush()
}

func (r *Recorder) maybeFlush() {
	now := r.now()
	if now.Sub(r.lastFlush) < flushInterval {
		return
	}
	r.lastFlush = now
	r.check(r.w.Flush())
}

func (r *Recorder) check(err error) {
	if err == nil {
		return
	}
	if n := r.failed.Add(1); n == 1 || n%100 == 0 {
		log.Printf("record: write failed (%d): %v", n, err)
	}
}

// Failures returns the number of records that could not be written.
func (r *Recorder) Failures() uint64 { return r.failed.Load() }

func (r *Recorder) Close() error { return r.w.Close() }
