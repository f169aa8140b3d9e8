package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"tiltlock/internal/ahrs"
	"tiltlock/internal/config"
	"tiltlock/internal/session"
)

func TestRenderFrame(t *testing.T) {
	var buf bytes.Buffer
	renderFrame(&buf, session.Snapshot{Screen: session.Locked})
	if !strings.Contains(buf.String(), "waiting for sensors") {
		t.Fatalf("no-angles frame:\n%s", buf.String())
	}

	buf.Reset()
	renderFrame(&buf, session.Snapshot{
		Screen:      session.Unlocked,
		AnglesValid: true,
		Angles:      ahrs.Angles{PitchDeg: 85},
		LastTransition: &session.Transition{
			From: session.Locked,
			To:   session.Unlocked,
			At:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	})
	for _, want := range []string{"screen:   unlocked", "pitch:       85.0", "lock:     true", "locked -> unlocked at 03:04:05"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("frame missing %q:\n%s", want, buf.String())
		}
	}
}

func TestWatch_RunsSimUntilCancelled(t *testing.T) {
	cfg := config.Config{Display: config.DisplayConfig{WidthPx: 1080, HeightPx: 1920}}
	if err := config.DefaultAndValidate(&cfg); err != nil {
		t.Fatalf("DefaultAndValidate: %v", err)
	}
	cfg.Sensors.Sim.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	var out bytes.Buffer
	if err := watch(ctx, cfg, 20*time.Millisecond, &out); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !strings.Contains(out.String(), "pitch:") {
		t.Fatalf("no angles rendered:\n%s", out.String())
	}
}
