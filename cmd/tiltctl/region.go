package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tiltlock/internal/gesture"
)

func newRegionCmd() *cobra.Command {
	var (
		m        gesture.DisplayMetrics
		marginDp float64
	)
	cmd := &cobra.Command{
		Use:   "region [x y]",
		Short: "Print the unlock touch region for a display",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no arguments or x y, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := gesture.NewRegion(m, marginDp)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "x_start: %g\n", r.XStart)
			fmt.Fprintf(out, "y_start: %g\n", r.YStart)
			fmt.Fprintf(out, "y_end: %g\n", r.YEnd)
			if len(args) == 2 {
				x, err := strconv.ParseFloat(args[0], 64)
				if err != nil {
					return fmt.Errorf("x: %w", err)
				}
				y, err := strconv.ParseFloat(args[1], 64)
				if err != nil {
					return fmt.Errorf("y: %w", err)
				}
				fmt.Fprintf(out, "contains: %t\n", r.Contains(x, y))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&m.WidthPx, "width", 0, "display width in pixels")
	cmd.Flags().IntVar(&m.HeightPx, "height", 0, "display height in pixels")
	cmd.Flags().Float64Var(&m.Density, "density", 1, "pixels per density-independent unit")
	cmd.Flags().Float64Var(&marginDp, "margin-dp", gesture.DefaultMarginDp, "half-size of the touch band in dp")
	_ = cmd.MarkFlagRequired("width")
	_ = cmd.MarkFlagRequired("height")
	return cmd
}
