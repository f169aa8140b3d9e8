package source

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// poller runs read at a fixed interval until stopped. It backs the
// sources that sample hardware rather than receive pushed data.
type poller struct {
	name     string
	interval time.Duration
	read     func(now time.Time, sink Sink) error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *poller) start(ctx context.Context, sink Sink) error {
	if sink == nil {
		return fmt.Errorf("%s: sink is nil", p.name)
	}
	if p.interval <= 0 {
		return fmt.Errorf("%s: interval must be > 0", p.name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return fmt.Errorf("%s: already started", p.name)
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, sink, p.done)
	return nil
}

func (p *poller) stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return ErrNotStarted
	}
	cancel()
	<-done
	return nil
}

func (p *poller) loop(ctx context.Context, sink Sink, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(p.interval)
	defer t.Stop()

	var failures uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if err := p.read(now, sink); err != nil {
				failures++
				// First failure and then every 100th, to keep a dead sensor quiet.
				if failures == 1 || failures%100 == 0 {
					log.Printf("%s: read failed (%d): %v", p.name, failures, err)
				}
				continue
			}
			if failures > 0 {
				log.Printf("%s: recovered after %d failures", p.name, failures)
				failures = 0
			}
		}
	}
}
