package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tiltlock/internal/ahrs"
	"tiltlock/internal/source"
)

// Config selects what the simulated device does. Exactly one of Scenario
// and Sweep should be set; a nil Scenario falls back to Sweep.
type Config struct {
	Scenario *Scenario
	Sweep    TiltSweep
	Field    ahrs.GeoField
	Interval time.Duration
	Loop     bool
}

// Source feeds synthesized sensor readings (and scripted touches) into a
// session as if they came from hardware.
type Source struct {
	cfg Config

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// Playback cursor; only touched by the loop goroutine or by step in
	// tests.
	last  time.Duration
	cycle time.Duration
}

func NewSource(cfg Config) *Source {
	if cfg.Interval <= 0 {
		cfg.Interval = 50 * time.Millisecond
	}
	if cfg.Field.HorizontalUT == 0 && cfg.Field.VerticalUT == 0 {
		cfg.Field = ahrs.DefaultGeoField
		if cfg.Scenario != nil {
			cfg.Field = cfg.Scenario.Field()
		}
	}
	return &Source{cfg: cfg, last: -1}
}

func (s *Source) Name() string {
	if s.cfg.Scenario != nil {
		return "scenario"
	}
	return "sim"
}

// Probe reports a full sensor set. Touch is only claimed when the
// scenario scripts touches.
func (s *Source) Probe() source.Availability {
	a := source.Availability{Accelerometer: true, MagneticField: true}
	if s.cfg.Scenario != nil {
		a.Touch = len(s.cfg.Scenario.touches) > 0
		a.Accelerometer = s.cfg.Scenario.HasPoses() || s.cfg.Scenario.hasReadings(ahrs.Accelerometer)
		a.MagneticField = s.cfg.Scenario.HasPoses() || s.cfg.Scenario.hasReadings(ahrs.MagneticField)
	}
	return a
}

func (s *Source) Start(ctx context.Context, sink source.Sink) error {
	if sink == nil {
		return fmt.Errorf("sim: sink is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("sim: already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.last, s.cycle = -1, 0
	go s.loop(ctx, sink, s.done)
	return nil
}

func (s *Source) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return source.ErrNotStarted
	}
	cancel()
	<-done
	return nil
}

func (s *Source) loop(ctx context.Context, sink source.Sink, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()

	start := time.Now()
	s.step(0, start, sink)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.step(now.Sub(start), now, sink)
		}
	}
}

// step emits everything due at elapsed: scripted touches and readings
// since the previous step, then the current pose as an accel/mag pair.
func (s *Source) step(elapsed time.Duration, now time.Time, sink source.Sink) {
	scn := s.cfg.Scenario
	if scn == nil {
		s.emitPose(s.cfg.Sweep.PoseAt(elapsed), now, sink)
		return
	}

	if d := scn.Duration(); s.cfg.Loop && d > 0 {
		cycle := elapsed / d
		elapsed %= d
		if cycle > s.cycle {
			// Finish the previous cycle, including events at t == d.
			s.emitEvents(scn, s.last, d, now, sink)
			if cycle > s.cycle+1 {
				// At most one whole skipped cycle is replayed.
				s.emitEvents(scn, -1, d, now, sink)
			}
			s.cycle = cycle
			s.last = -1
		}
	}
	s.emitEvents(scn, s.last, elapsed, now, sink)
	s.last = elapsed

	if scn.HasPoses() {
		s.emitPose(scn.PoseAt(elapsed), now, sink)
	}
}

// emitEvents sends scripted touches and readings with from < t <= to.
func (s *Source) emitEvents(scn *Scenario, from, to time.Duration, now time.Time, sink source.Sink) {
	for _, ev := range scn.touchesIn(from, to) {
		ev.At = now
		sink.Touch(ev)
	}
	for _, r := range scn.readingsIn(from, to) {
		r.At = now
		sink.Sensor(r)
	}
}

func (s *Source) emitPose(a ahrs.Angles, now time.Time, sink source.Sink) {
	accel, mag := ahrs.Synthesize(a, s.cfg.Field)
	sink.Sensor(ahrs.Reading{Kind: ahrs.Accelerometer, Vector: accel, At: now})
	sink.Sensor(ahrs.Reading{Kind: ahrs.MagneticField, Vector: mag, At: now})
}
