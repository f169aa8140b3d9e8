package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tiltlock/internal/ahrs"
	"tiltlock/internal/replay"
)

type logSummary struct {
	Segments    int
	Readings    map[string]int
	Touches     map[string]int
	Fused       uint64
	Degenerate  uint64
	UnlockPoses int
	MaxDuration time.Duration
	LastAngles  ahrs.Angles
	HaveAngles  bool
}

// summarizeEventLog replays records through a fresh estimator per segment
// and counts what it sees.
func summarizeEventLog(records []replay.Record) logSummary {
	s := logSummary{Readings: map[string]int{}, Touches: map[string]int{}}
	if len(records) == 0 {
		return s
	}

	var est ahrs.Estimator
	segments := 0
	hasData := false
	for _, r := range records {
		if r.IsStart() {
			segments++
			est = ahrs.Estimator{}
			continue
		}
		hasData = true
		if r.At > s.MaxDuration {
			s.MaxDuration = r.At
		}
		switch {
		case r.Touch != nil:
			s.Touches[r.Touch.Kind.String()]++
		case r.Reading != nil:
			s.Readings[r.Reading.Kind.String()]++
			a, ok, err := est.Ingest(r.Reading.Kind, r.Reading.Vector)
			if errors.Is(err, ahrs.ErrDegenerateInput) {
				s.Degenerate++
				continue
			}
			if ok {
				s.Fused++
				s.LastAngles, s.HaveAngles = a, true
				if unlockPose(a) {
					s.UnlockPoses++
				}
			}
		}
	}
	if segments == 0 && hasData {
		segments = 1
	}
	s.Segments = segments
	return s
}

func writeLogSummary(w io.Writer, path string, s logSummary) {
	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)
	writeCounts(w, "readings", s.Readings)
	writeCounts(w, "touches", s.Touches)
	fmt.Fprintf(w, "fused: %d\n", s.Fused)
	fmt.Fprintf(w, "degenerate: %d\n", s.Degenerate)
	fmt.Fprintf(w, "unlock_poses: %d\n", s.UnlockPoses)
	if s.HaveAngles {
		fmt.Fprintf(w, "last_angles: %s\n", s.LastAngles)
	}
}

func writeCounts(w io.Writer, name string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "%s:\n", name)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, counts[k])
	}
}

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <log>",
		Short: "Summarize a recorded event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(args[0])
			if path == "" {
				return fmt.Errorf("path is empty")
			}
			recs, err := replay.ReadFile(path)
			if err != nil {
				return err
			}
			writeLogSummary(cmd.OutOrStdout(), path, summarizeEventLog(recs))
			return nil
		},
	}
}
