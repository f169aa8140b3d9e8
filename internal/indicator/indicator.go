// Package indicator drives a GPIO output line that is high while the
// device is unlocked.
package indicator

import (
	"context"
	"fmt"
	"log"
	"sync"

	"tiltlock/internal/session"
)

type Config struct {
	// Line is a GPIO line name such as "GPIO17". Pin is shorthand for
	// "GPIO<pin>" when Line is empty; nil means unset.
	Line string
	Pin  *int
	// Chip pins the search to one /dev/gpiochipN.
	Chip      string
	ActiveLow bool
}

func (c Config) lineName() string {
	if c.Line != "" {
		return c.Line
	}
	return fmt.Sprintf("GPIO%d", *c.Pin)
}

type output interface {
	SetValue(v int) error
	Close() error
}

type Indicator struct {
	cfg Config

	mu  sync.Mutex
	out output
}

// Open requests the line as an output, driven to the locked level.
func Open(cfg Config) (*Indicator, error) {
	if cfg.Line == "" && cfg.Pin == nil {
		return nil, fmt.Errorf("indicator: line or pin is required")
	}
	if cfg.Line == "" && *cfg.Pin < 0 {
		return nil, fmt.Errorf("indicator: invalid pin %d", *cfg.Pin)
	}
	out, err := openLineFn(cfg.Chip, cfg.lineName(), level(false, cfg.ActiveLow))
	if err != nil {
		return nil, err
	}
	log.Printf("indicator: driving %s", cfg.lineName())
	return &Indicator{cfg: cfg, out: out}, nil
}

func level(unlocked, activeLow bool) int {
	if unlocked != activeLow {
		return 1
	}
	return 0
}

func (i *Indicator) Navigate(_ context.Context, t session.Transition) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.out == nil {
		return fmt.Errorf("indicator: closed")
	}
	if err := i.out.SetValue(level(t.To == session.Unlocked, i.cfg.ActiveLow)); err != nil {
		return fmt.Errorf("indicator: set %s: %w", i.cfg.lineName(), err)
	}
	return nil
}

// Close drives the line to the locked level and releases it.
func (i *Indicator) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.out == nil {
		return nil
	}
	_ = i.out.SetValue(level(false, i.cfg.ActiveLow))
	err := i.out.Close()
	i.out = nil
	return err
}
