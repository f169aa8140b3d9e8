package web

import (
	"sync/atomic"
	"time"

	"tiltlock/internal/gesture"
	"tiltlock/internal/session"
)

const serviceName = "tiltlock"

// SessionView is the part of a session the web UI reads.
type SessionView interface {
	Snapshot() session.Snapshot
}

type Status struct {
	startUnixNano int64
	device        atomic.Value // string
	source        atomic.Value // string
	display       atomic.Value // gesture.DisplayMetrics
	sess          SessionView
}

func NewStatus(sess SessionView) *Status {
	s := &Status{sess: sess}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.device.Store("")
	s.source.Store("")
	s.display.Store(gesture.DisplayMetrics{})
	return s
}

func (s *Status) SetStatic(device, source string, display gesture.DisplayMetrics) {
	if device != "" {
		s.device.Store(device)
	}
	if source != "" {
		s.source.Store(source)
	}
	s.display.Store(display)
}

type StatusSnapshot struct {
	Service   string                 `json:"service"`
	NowUTC    string                 `json:"now_utc"`
	UptimeSec int64                  `json:"uptime_sec"`
	Device    string                 `json:"device"`
	Source    string                 `json:"source"`
	Display   gesture.DisplayMetrics `json:"display"`
	Session   *session.Snapshot      `json:"session,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	snap := StatusSnapshot{
		Service:   serviceName,
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Device:    s.device.Load().(string),
		Source:    s.source.Load().(string),
		Display:   s.display.Load().(gesture.DisplayMetrics),
	}
	if s.sess != nil {
		ss := s.sess.Snapshot()
		snap.Session = &ss
	}
	return snap
}
