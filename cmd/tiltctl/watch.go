package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gosuri/uilive"
	"github.com/spf13/cobra"

	"tiltlock/internal/config"
	"tiltlock/internal/inputs"
	"tiltlock/internal/session"
)

// frameObserver keeps the latest snapshot for the render loop.
type frameObserver struct {
	mu   sync.Mutex
	snap session.Snapshot
	have bool
}

func (f *frameObserver) Observe(s session.Snapshot) {
	f.mu.Lock()
	f.snap, f.have = s, true
	f.mu.Unlock()
}

func (f *frameObserver) latest() (session.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.have
}

func renderFrame(w io.Writer, s session.Snapshot) {
	fmt.Fprintf(w, "screen:   %s\n", s.Screen)
	if s.AnglesValid {
		fmt.Fprintf(w, "azimuth:  %7.1f\n", s.Angles.AzimuthDeg)
		fmt.Fprintf(w, "pitch:    %7.1f\n", s.Angles.PitchDeg)
		fmt.Fprintf(w, "roll:     %7.1f\n", s.Angles.RollDeg)
		fmt.Fprintf(w, "unlock:   %t (needs touch)\n", unlockPose(s.Angles))
		fmt.Fprintf(w, "lock:     %t\n", lockPose(s.Angles))
	} else {
		fmt.Fprintf(w, "angles:   waiting for sensors\n")
	}
	if s.Degraded {
		fmt.Fprintf(w, "degraded: accel=%t mag=%t\n", s.Sensors.Accelerometer, s.Sensors.MagneticField)
	}
	fmt.Fprintf(w, "counts:   readings=%d fused=%d degenerate=%d unlocks=%d locks=%d\n",
		s.Counters.Readings, s.Counters.Fused, s.Counters.Degenerate, s.Counters.Unlocks, s.Counters.Locks)
	if s.LastTransition != nil {
		fmt.Fprintf(w, "last:     %s -> %s at %s\n", s.LastTransition.From, s.LastTransition.To, s.LastTransition.At.Format(time.TimeOnly))
	}
}

func newWatchCmd() *cobra.Command {
	var (
		configPath string
		refresh    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the configured sensor source and show live angles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return watch(ctx, cfg, refresh, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "./tiltlock.yaml", "Path to YAML config")
	cmd.Flags().DurationVar(&refresh, "refresh", 100*time.Millisecond, "screen refresh interval")
	return cmd
}

func watch(ctx context.Context, cfg config.Config, refresh time.Duration, out io.Writer) error {
	eng, err := inputs.Engine(cfg)
	if err != nil {
		return err
	}
	src, err := inputs.Sensors(cfg.Sensors)
	if err != nil {
		return err
	}
	frames := &frameObserver{}
	scfg := session.Config{Engine: eng, Observers: []session.Observer{frames}}
	if src != nil {
		scfg.Sources = append(scfg.Sources, src)
	}
	svc, err := session.New(scfg)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer func() {
		svc.Close()
		<-svc.Done()
	}()

	// uilive redraws on its own ticker; the loop only refreshes the buffer.
	w := uilive.New()
	w.Out = out
	w.RefreshInterval = refresh
	w.Start()
	defer w.Stop()

	t := time.NewTicker(refresh)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-svc.Done():
			return nil
		case <-t.C:
			s, ok := frames.latest()
			if !ok {
				s = svc.Snapshot()
			}
			renderFrame(w, s)
		}
	}
}
