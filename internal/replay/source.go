package replay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"tiltlock/internal/source"
)

type SourceConfig struct {
	Path  string
	Speed float64
	Loop  bool
}

// Source plays a recorded event log back into a session.
type Source struct {
	cfg SourceConfig

	mu     sync.Mutex
	recs   []Record
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSource(cfg SourceConfig) *Source {
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	return &Source{cfg: cfg}
}

func (s *Source) Name() string { return "replay" }

func (s *Source) load() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recs != nil {
		return s.recs, nil
	}
	recs, err := ReadFile(s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	s.recs = recs
	return recs, nil
}

// Probe reports the kinds of input present in the log.
func (s *Source) Probe() source.Availability {
	recs, err := s.load()
	if err != nil {
		return source.Availability{}
	}
	var a source.Availability
	for _, r := range recs {
		switch {
		case r.Touch != nil:
			a.Touch = true
		case r.Reading != nil:
			a = a.Merge(source.AvailabilityOf(r.Reading.Kind))
		}
	}
	return a
}

func (s *Source) Start(ctx context.Context, sink source.Sink) error {
	if sink == nil {
		return fmt.Errorf("replay: sink is nil")
	}
	recs, err := s.load()
	if err != nil {
		return err
	}
	if !hasData(recs) {
		return fmt.Errorf("replay: %s has no records", s.cfg.Path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("replay: already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, recs, sink, s.done)
	log.Printf("replay: playing %s (%d records, speed %.2fx, loop=%t)", s.cfg.Path, len(recs), s.cfg.Speed, s.cfg.Loop)
	return nil
}

func (s *Source) run(ctx context.Context, recs []Record, sink source.Sink, done chan struct{}) {
	defer close(done)
	err := Play(recs, s.cfg.Speed, s.cfg.Loop, ctxSleeper{ctx}, func(r Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := time.Now()
		switch {
		case r.Touch != nil:
			ev := *r.Touch
			ev.At = now
			sink.Touch(ev)
		case r.Reading != nil:
			rd := *r.Reading
			rd.At = now
			sink.Sensor(rd)
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("replay: %v", err)
		return
	}
	if err == nil {
		log.Printf("replay: finished %s", s.cfg.Path)
	}
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

// ctxSleeper returns early when ctx is done.
type ctxSleeper struct {
	ctx context.Context
}

func (c ctxSleeper) Sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.ctx.Done():
	case <-t.C:
	}
}
