package web

import (
	"sync"

	"tiltlock/internal/session"
)

// SnapshotBroadcaster fans session snapshots out to stream listeners (SSE
// and websocket). It keeps the most recent value so new subscribers get an
// immediate sample. Slow subscribers miss updates rather than block the
// session.
type SnapshotBroadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan session.Snapshot
	nextID   int
	last     session.Snapshot
	haveLast bool
}

func NewSnapshotBroadcaster() *SnapshotBroadcaster {
	return &SnapshotBroadcaster{
		subs: make(map[int]chan session.Snapshot),
	}
}

func (b *SnapshotBroadcaster) Subscribe(buffer int) (int, <-chan session.Snapshot) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan session.Snapshot, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	last := b.last
	have := b.haveLast
	b.mu.Unlock()
	if have {
		select {
		case ch <- last:
		default:
		}
	}
	return id, ch
}

func (b *SnapshotBroadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Observe implements session.Observer.
func (b *SnapshotBroadcaster) Observe(snap session.Snapshot) {
	b.Publish(snap)
}

func (b *SnapshotBroadcaster) Publish(snap session.Snapshot) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = snap
	b.haveLast = true
	for _, ch := range b.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Subscribers returns the number of active listeners.
func (b *SnapshotBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
