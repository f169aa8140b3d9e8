package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tiltlock/internal/ahrs"
	"tiltlock/internal/gesture"
)

func newComputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compute [--] ax ay az mx my mz",
		Short: "Compute orientation from one accelerometer and one magnetometer sample",
		Args:  cobra.ExactArgs(6),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v [6]float64
			for i, s := range args {
				f, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return fmt.Errorf("argument %d: %w", i+1, err)
				}
				v[i] = f
			}
			a, err := ahrs.Compute(ahrs.Vector3{X: v[0], Y: v[1], Z: v[2]}, ahrs.Vector3{X: v[3], Y: v[4], Z: v[5]})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "azimuth_deg: %.3f\n", a.AzimuthDeg)
			fmt.Fprintf(out, "pitch_deg: %.3f\n", a.PitchDeg)
			fmt.Fprintf(out, "roll_deg: %.3f\n", a.RollDeg)
			fmt.Fprintf(out, "unlock_pose: %t\n", unlockPose(a))
			fmt.Fprintf(out, "lock_pose: %t\n", lockPose(a))
			return nil
		},
	}
}

// unlockPose and lockPose use the default windows and ignore the touch
// region.
func unlockPose(a ahrs.Angles) bool {
	w := gesture.DefaultLockConfig()
	return w.Pitch.Contains(a.PitchDeg) && w.Roll.Contains(a.RollDeg)
}

func lockPose(a ahrs.Angles) bool {
	return gesture.DefaultLevelConfig().Pitch.Contains(a.PitchDeg)
}
