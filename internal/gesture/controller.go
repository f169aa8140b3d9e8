package gesture

import (
	"fmt"

	"tiltlock/internal/ahrs"
)

// Outcome is the single observable effect of one controller evaluation.
type Outcome int

const (
	NoChange Outcome = iota
	TriggerUnlock
	TriggerLock
)

func (o Outcome) String() string {
	switch o {
	case NoChange:
		return "no_change"
	case TriggerUnlock:
		return "unlock"
	case TriggerLock:
		return "lock"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(b []byte) error {
	for _, c := range []Outcome{NoChange, TriggerUnlock, TriggerLock} {
		if c.String() == string(b) {
			*o = c
			return nil
		}
	}
	return fmt.Errorf("gesture: unknown outcome %q", b)
}

// Window is an open interval of degrees.
type Window struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Contains reports Min < v < Max.
func (w Window) Contains(v float64) bool {
	return v > w.Min && v < w.Max
}

func (w Window) validate(name string) error {
	if !(w.Min < w.Max) {
		return fmt.Errorf("gesture: %s window min %v must be < max %v", name, w.Min, w.Max)
	}
	return nil
}

// LockConfig holds the unlock windows applied on the locked screen.
type LockConfig struct {
	Pitch Window
	// Roll separates top-edge-up from top-edge-down, which share pitch.
	Roll Window
}

func DefaultLockConfig() LockConfig {
	return LockConfig{
		Pitch: Window{Min: 40, Max: 50},
		Roll:  Window{Min: -50, Max: 100},
	}
}

// LockController fires TriggerUnlock while the touch is in range and the
// device is tilted into the unlock pose. It keeps no state between
// evaluations: every qualifying evaluation fires again.
type LockController struct {
	cfg LockConfig
}

func NewLockController(cfg LockConfig) (*LockController, error) {
	if err := cfg.Pitch.validate("unlock pitch"); err != nil {
		return nil, err
	}
	if err := cfg.Roll.validate("unlock roll"); err != nil {
		return nil, err
	}
	return &LockController{cfg: cfg}, nil
}

// Evaluate is called once per freshly fused orientation.
func (c *LockController) Evaluate(a ahrs.Angles, inRange bool) Outcome {
	if !inRange {
		return NoChange
	}
	if c.cfg.Pitch.Contains(a.PitchDeg) && c.cfg.Roll.Contains(a.RollDeg) {
		return TriggerUnlock
	}
	return NoChange
}

// LevelConfig holds the lock window applied on the unlocked screen.
type LevelConfig struct {
	Pitch Window
}

func DefaultLevelConfig() LevelConfig {
	return LevelConfig{Pitch: Window{Min: 80, Max: 90}}
}

// LevelController fires TriggerLock while the screen is held near
// horizontal, face up. Like LockController it never suppresses repeats.
type LevelController struct {
	cfg LevelConfig
}

func NewLevelController(cfg LevelConfig) (*LevelController, error) {
	if err := cfg.Pitch.validate("lock pitch"); err != nil {
		return nil, err
	}
	return &LevelController{cfg: cfg}, nil
}

func (c *LevelController) Evaluate(a ahrs.Angles) Outcome {
	if c.cfg.Pitch.Contains(a.PitchDeg) {
		return TriggerLock
	}
	return NoChange
}
