package sim

import (
	"math"
	"time"

	"tiltlock/internal/ahrs"
)

// TiltSweep moves the device between near-flat and tilted back, over and
// over. Used to exercise the lock/unlock windows without hardware.
type TiltSweep struct {
	Period           time.Duration
	MinPitchDeg      float64
	MaxPitchDeg      float64
	RollAmplitudeDeg float64
	AzimuthDeg       float64
}

// PoseAt returns the deterministic pose at elapsed.
//
// Pitch follows a cosine from MaxPitchDeg down to MinPitchDeg and back;
// roll wobbles at twice that rate so both unlock edges get visited.
func (s TiltSweep) PoseAt(elapsed time.Duration) ahrs.Angles {
	period := s.Period
	if period <= 0 {
		period = 20 * time.Second
	}
	lo, hi := s.MinPitchDeg, s.MaxPitchDeg
	if lo == 0 && hi == 0 {
		lo, hi = 20, 88
	}
	if elapsed < 0 {
		elapsed = 0
	}

	phase := float64(elapsed%period) / float64(period)
	w := 2 * math.Pi * phase

	mid := (hi + lo) / 2
	amp := (hi - lo) / 2
	return ahrs.Angles{
		AzimuthDeg: s.AzimuthDeg,
		PitchDeg:   mid + amp*math.Cos(w),
		RollDeg:    s.RollAmplitudeDeg * math.Sin(2*w),
	}
}
