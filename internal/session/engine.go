// Package session runs the locked and unlocked screens and moves between
// them as the gesture controllers decide.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tiltlock/internal/ahrs"
	"tiltlock/internal/gesture"
)

// Screen is the active screen.
type Screen int

const (
	Locked Screen = iota
	Unlocked
)

func (s Screen) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("screen(%d)", int(s))
	}
}

func (s Screen) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Screen) UnmarshalText(b []byte) error {
	switch string(b) {
	case "locked":
		*s = Locked
	case "unlocked":
		*s = Unlocked
	default:
		return fmt.Errorf("session: unknown screen %q", b)
	}
	return nil
}

// Transition records one navigation between screens.
type Transition struct {
	ID      uuid.UUID       `json:"id"`
	Outcome gesture.Outcome `json:"outcome"`
	From    Screen          `json:"from"`
	To      Screen          `json:"to"`
	Angles  ahrs.Angles     `json:"angles"`
	At      time.Time       `json:"at"`
}

// Counters are running totals since the engine was created.
type Counters struct {
	Readings       uint64 `json:"readings"`
	Fused          uint64 `json:"fused"`
	Degenerate     uint64 `json:"degenerate"`
	Rejected       uint64 `json:"rejected"`
	Dropped        uint64 `json:"dropped"`
	Touches        uint64 `json:"touches"`
	IgnoredTouches uint64 `json:"ignored_touches"`
	Unlocks        uint64 `json:"unlocks"`
	Locks          uint64 `json:"locks"`
}

// EngineConfig holds everything fixed at construction.
type EngineConfig struct {
	Region gesture.Region
	Lock   gesture.LockConfig
	Level  gesture.LevelConfig
}

// Step is the result of handling one reading.
type Step struct {
	Angles     ahrs.Angles
	Fused      bool
	Outcome    gesture.Outcome
	Transition *Transition
}

// Engine is the synchronous core of a session. The locked screen owns an
// estimator, the touch tracker and the lock controller; the unlocked screen
// owns its own estimator and the level controller. Only the active screen
// receives input.
//
// An Engine is not safe for concurrent use; Service confines it to one
// goroutine.
type Engine struct {
	screen Screen

	lockEst   ahrs.Estimator
	unlockEst ahrs.Estimator
	tracker   *gesture.Tracker
	lock      *gesture.LockController
	level     *gesture.LevelController

	// lastEst is the estimator that fused most recently.
	lastEst  *ahrs.Estimator
	counters Counters

	newID func() uuid.UUID
	now   func() time.Time
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	lock, err := gesture.NewLockController(cfg.Lock)
	if err != nil {
		return nil, err
	}
	level, err := gesture.NewLevelController(cfg.Level)
	if err != nil {
		return nil, err
	}
	return &Engine{
		screen:  Locked,
		tracker: gesture.NewTracker(cfg.Region),
		lock:    lock,
		level:   level,
		newID:   uuid.New,
		now:     time.Now,
	}, nil
}

func (e *Engine) Screen() Screen { return e.screen }

func (e *Engine) InRange() bool { return e.tracker.InRange() }

func (e *Engine) Region() gesture.Region { return e.tracker.Region() }

// Last returns the most recent fused angles from either screen.
func (e *Engine) Last() (ahrs.Angles, bool) {
	if e.lastEst == nil {
		return ahrs.Angles{}, false
	}
	return e.lastEst.Last()
}

func (e *Engine) Counters() Counters { return e.counters }

func (e *Engine) activeEstimator() *ahrs.Estimator {
	if e.screen == Unlocked {
		return &e.unlockEst
	}
	return &e.lockEst
}

// HandleReading routes r to the active screen. A returned error wraps
// ahrs.ErrDegenerateInput or ahrs.ErrUnknownSensor; neither changes the
// screen.
func (e *Engine) HandleReading(r ahrs.Reading) (Step, error) {
	e.counters.Readings++

	est := e.activeEstimator()
	a, ok, err := est.Ingest(r.Kind, r.Vector)
	if err != nil {
		if errors.Is(err, ahrs.ErrDegenerateInput) {
			e.counters.Degenerate++
		} else {
			e.counters.Rejected++
		}
		return Step{}, err
	}
	if !ok {
		return Step{}, nil
	}

	e.counters.Fused++
	e.lastEst = est

	step := Step{Angles: a, Fused: true}
	switch e.screen {
	case Locked:
		step.Outcome = e.lock.Evaluate(a, e.tracker.InRange())
	case Unlocked:
		step.Outcome = e.level.Evaluate(a)
	}

	at := r.At
	if at.IsZero() {
		at = e.now()
	}
	step.Transition = e.apply(step.Outcome, a, at)
	return step, nil
}

// HandleTouch feeds ev to the tracker while the locked screen is active.
// It reports the new in-range state and whether the event was used.
func (e *Engine) HandleTouch(ev gesture.TouchEvent) (inRange, used bool) {
	if e.screen != Locked {
		e.counters.IgnoredTouches++
		return false, false
	}
	e.counters.Touches++
	return e.tracker.OnTouch(ev), true
}

func (e *Engine) apply(o gesture.Outcome, a ahrs.Angles, at time.Time) *Transition {
	var to Screen
	switch {
	case o == gesture.TriggerUnlock && e.screen == Locked:
		to = Unlocked
		e.unlockEst.Reset()
		e.counters.Unlocks++
	case o == gesture.TriggerLock && e.screen == Unlocked:
		to = Locked
		e.lockEst.Reset()
		e.tracker.Reset()
		e.counters.Locks++
	default:
		return nil
	}

	t := &Transition{
		ID:      e.newID(),
		Outcome: o,
		From:    e.screen,
		To:      to,
		Angles:  a,
		At:      at,
	}
	e.screen = to
	return t
}
