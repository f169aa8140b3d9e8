package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"tiltlock/internal/ahrs"
	"tiltlock/internal/gesture"
	"tiltlock/internal/source"
)

var ErrClosed = errors.New("session: closed")

// Navigator is told about every screen change. Navigate is called from the
// session loop; a slow navigator delays input handling.
type Navigator interface {
	Navigate(ctx context.Context, t Transition) error
}

// Observer receives a snapshot after every fused orientation, used touch
// and transition.
type Observer interface {
	Observe(s Snapshot)
}

// Tap sees every input before the engine does.
type Tap interface {
	Reading(r ahrs.Reading)
	Touch(ev gesture.TouchEvent)
}

type Config struct {
	Engine     EngineConfig
	Sources    []source.Source
	Navigators []Navigator
	Observers  []Observer
	Taps       []Tap

	// QueueSize bounds the reading and touch queues. Default 64.
	QueueSize int
	// NavigateTimeout bounds each Navigate call. Default 2s.
	NavigateTimeout time.Duration
}

type Snapshot struct {
	Screen         Screen              `json:"screen"`
	Angles         ahrs.Angles         `json:"angles"`
	AnglesValid    bool                `json:"angles_valid"`
	InRange        bool                `json:"in_range"`
	Region         gesture.Region      `json:"region"`
	Sensors        source.Availability `json:"sensors"`
	Degraded       bool                `json:"degraded"`
	Running        bool                `json:"running"`
	Paused         bool                `json:"paused"`
	Counters       Counters            `json:"counters"`
	LastTransition *Transition         `json:"last_transition,omitempty"`
	LastError      string              `json:"last_error,omitempty"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Service owns an Engine and feeds it from its sources on a single
// goroutine. It implements source.Sink.
type Service struct {
	cfg    Config
	engine *Engine

	readings chan ahrs.Reading
	touches  chan gesture.TouchEvent
	dropped  atomic.Uint64

	mu   sync.RWMutex
	snap Snapshot

	srcMu   sync.Mutex
	runCtx  context.Context
	started bool
	paused  bool

	lastDegenerateLog time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func New(cfg Config) (*Service, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.NavigateTimeout <= 0 {
		cfg.NavigateTimeout = 2 * time.Second
	}
	eng, err := NewEngine(cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	s := &Service{
		cfg:      cfg,
		engine:   eng,
		readings: make(chan ahrs.Reading, cfg.QueueSize),
		touches:  make(chan gesture.TouchEvent, cfg.QueueSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	s.snap = Snapshot{
		Screen: eng.Screen(),
		Region: eng.Region(),
	}
	return s, nil
}

// Start probes and starts the sources and launches the session loop.
// A source that fails to start is logged and skipped.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("session: service is nil")
	}
	s.srcMu.Lock()
	defer s.srcMu.Unlock()
	select {
	case <-s.stopCh:
		return ErrClosed
	default:
	}
	if s.started {
		return fmt.Errorf("session: already started")
	}
	s.started = true
	s.runCtx = ctx

	avail := source.Probe(s.cfg.Sources)
	if !avail.Orientation() {
		log.Printf("session: degraded: accelerometer=%v magnetometer=%v; tilt gestures unavailable", avail.Accelerometer, avail.MagneticField)
	}
	s.mu.Lock()
	s.snap.Sensors = avail
	s.snap.Degraded = !avail.Orientation()
	s.snap.Running = true
	s.snap.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()

	s.startSources(ctx)
	go s.run(ctx)
	return nil
}

func (s *Service) startSources(ctx context.Context) {
	for _, src := range s.cfg.Sources {
		if err := src.Start(ctx, s); err != nil {
			log.Printf("session: source %s start failed: %v", src.Name(), err)
			s.setErr(fmt.Sprintf("%s: %v", src.Name(), err))
		}
	}
}

func (s *Service) stopSources() {
	for _, src := range s.cfg.Sources {
		if err := src.Stop(); err != nil && !errors.Is(err, source.ErrNotStarted) {
			log.Printf("session: source %s stop failed: %v", src.Name(), err)
		}
	}
}

// Close stops the loop and the sources. It does not wait for the loop;
// use Done for that.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		// Start holds srcMu until the loop is launched, so started is
		// final once stopCh is closed under the same lock.
		s.srcMu.Lock()
		close(s.stopCh)
		if s.started && !s.paused {
			s.stopSources()
		}
		if !s.started {
			close(s.doneCh)
		}
		s.srcMu.Unlock()

		s.mu.Lock()
		s.snap.Running = false
		s.snap.UpdatedAt = time.Now().UTC()
		s.mu.Unlock()
	})
}

// Done is closed when the session loop has exited.
func (s *Service) Done() <-chan struct{} { return s.doneCh }

// Pause stops the sources. Pending input already queued is still handled.
func (s *Service) Pause() error {
	s.srcMu.Lock()
	defer s.srcMu.Unlock()
	if !s.started {
		return fmt.Errorf("session: not started")
	}
	if s.paused {
		return nil
	}
	s.stopSources()
	s.paused = true
	s.mu.Lock()
	s.snap.Paused = true
	s.mu.Unlock()
	return nil
}

// Resume restarts the sources after Pause.
func (s *Service) Resume() error {
	s.srcMu.Lock()
	defer s.srcMu.Unlock()
	if !s.started {
		return fmt.Errorf("session: not started")
	}
	select {
	case <-s.stopCh:
		return ErrClosed
	default:
	}
	if !s.paused {
		return nil
	}
	s.startSources(s.runCtx)
	s.paused = false
	s.mu.Lock()
	s.snap.Paused = false
	s.mu.Unlock()
	return nil
}

// Sensor queues r without blocking. Readings that do not fit are dropped
// and counted.
func (s *Service) Sensor(r ahrs.Reading) {
	select {
	case s.readings <- r:
	default:
		s.dropped.Add(1)
	}
}

// Touch queues ev, blocking until there is room or the service stops.
func (s *Service) Touch(ev gesture.TouchEvent) {
	select {
	case s.touches <- ev:
	case <-s.stopCh:
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snap
	snap.Counters.Dropped = s.dropped.Load()
	return snap
}

func (s *Service) run(ctx context.Context) {
	defer close(s.doneCh)
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.stopCh:
			return
		case r := <-s.readings:
			s.handleReading(ctx, r)
		case ev := <-s.touches:
			s.handleTouch(ev)
		}
	}
}

func (s *Service) handleReading(ctx context.Context, r ahrs.Reading) {
	for _, t := range s.cfg.Taps {
		t.Reading(r)
	}

	step, err := s.engine.HandleReading(r)
	if err != nil {
		if errors.Is(err, ahrs.ErrDegenerateInput) {
			now := time.Now()
			if now.Sub(s.lastDegenerateLog) >= 5*time.Second {
				s.lastDegenerateLog = now
				log.Printf("session: %v (total %d)", err, s.engine.Counters().Degenerate)
			}
		} else {
			log.Printf("session: reading rejected: %v", err)
		}
		s.update(nil, err)
		return
	}
	if !step.Fused {
		s.update(nil, nil)
		return
	}

	if step.Transition != nil {
		log.Printf("session: %s -> %s (%s)", step.Transition.From, step.Transition.To, step.Transition.Angles)
		s.navigate(ctx, *step.Transition)
	}
	s.notify(s.update(step.Transition, nil))
}

func (s *Service) handleTouch(ev gesture.TouchEvent) {
	for _, t := range s.cfg.Taps {
		t.Touch(ev)
	}
	if _, used := s.engine.HandleTouch(ev); !used {
		s.update(nil, nil)
		return
	}
	s.notify(s.update(nil, nil))
}

func (s *Service) navigate(ctx context.Context, t Transition) {
	for _, n := range s.cfg.Navigators {
		nctx, cancel := context.WithTimeout(ctx, s.cfg.NavigateTimeout)
		err := n.Navigate(nctx, t)
		cancel()
		if err != nil {
			log.Printf("session: navigate %s: %v", t.To, err)
			s.setErr(fmt.Sprintf("navigate: %v", err))
		}
	}
}

func (s *Service) notify(snap Snapshot) {
	for _, o := range s.cfg.Observers {
		o.Observe(snap)
	}
}

func (s *Service) update(t *Transition, err error) Snapshot {
	a, ok := s.engine.Last()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Screen = s.engine.Screen()
	s.snap.Angles = a
	s.snap.AnglesValid = ok
	s.snap.InRange = s.engine.InRange()
	s.snap.Counters = s.engine.Counters()
	if t != nil {
		s.snap.LastTransition = t
	}
	if err != nil {
		s.snap.LastError = err.Error()
	}
	s.snap.UpdatedAt = time.Now().UTC()

	snap := s.snap
	snap.Counters.Dropped = s.dropped.Load()
	return snap
}

func (s *Service) setErr(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastError = msg
	s.snap.UpdatedAt = time.Now().UTC()
}
