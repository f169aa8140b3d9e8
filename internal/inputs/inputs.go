// Package inputs builds session inputs from configuration.
package inputs

import (
	"errors"
	"fmt"

	"tiltlock/internal/config"
	"tiltlock/internal/gesture"
	"tiltlock/internal/replay"
	"tiltlock/internal/session"
	"tiltlock/internal/sim"
	"tiltlock/internal/source"
	"tiltlock/internal/touch"
)

// Engine lays out the unlock region and gesture windows from c.
func Engine(c config.Config) (session.EngineConfig, error) {
	region, err := gesture.NewRegion(c.Display.Metrics(), c.Gesture.MarginDp)
	if err != nil {
		return session.EngineConfig{}, err
	}
	return session.EngineConfig{
		Region: region,
		Lock:   c.Gesture.LockConfig(),
		Level:  c.Gesture.LevelConfig(),
	}, nil
}

// ErrHardware marks sensor backends that could not find their device.
var ErrHardware = errors.New("sensor hardware unavailable")

// Sensors builds the orientation source named by s.Source. It returns nil
// for "none". Errors wrapping ErrHardware mean the device is missing;
// anything else is a bad file or setting.
func Sensors(s config.SensorsConfig) (source.Source, error) {
	switch s.Source {
	case config.SourceNone:
		return nil, nil
	case config.SourceIMU:
		return source.NewIMU(source.IMUConfig{
			Bus:      s.IMU.Bus,
			Addr:     s.IMU.Addr,
			MagAddr:  s.IMU.MagAddr,
			Interval: s.IMU.Interval,
		}), nil
	case config.SourceIIO:
		src, err := source.NewIIO(source.IIOConfig{
			Root:        s.IIO.Root,
			AccelDevice: s.IIO.AccelDevice,
			MagDevice:   s.IIO.MagDevice,
			Interval:    s.IIO.Interval,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHardware, err)
		}
		return src, nil
	case config.SourceSerial:
		// The port is opened on Start; an empty one is a settings error.
		src, err := source.NewSerial(source.SerialConfig{Port: s.Serial.Port, BaudRate: s.Serial.Baud})
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.SourceSim:
		return sim.NewSource(sim.Config{
			Sweep: sim.TiltSweep{
				Period:           s.Sim.Period,
				MinPitchDeg:      s.Sim.MinPitchDeg,
				MaxPitchDeg:      s.Sim.MaxPitchDeg,
				RollAmplitudeDeg: s.Sim.RollAmplitudeDeg,
				AzimuthDeg:       s.Sim.AzimuthDeg,
			},
			Interval: s.Sim.Interval,
			Loop:     true,
		}), nil
	case config.SourceScenario:
		script, err := sim.LoadScenarioScript(s.Scenario.Path)
		if err != nil {
			return nil, err
		}
		scn, err := sim.NewScenario(script)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Scenario.Path, err)
		}
		return sim.NewSource(sim.Config{Scenario: scn, Interval: s.Scenario.Interval, Loop: s.Scenario.Loop}), nil
	case config.SourceReplay:
		recs, err := replay.ReadFile(s.Replay.Path)
		if err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
		if len(recs) == 0 {
			return nil, fmt.Errorf("replay: %s has no records", s.Replay.Path)
		}
		return replay.NewSource(replay.SourceConfig{Path: s.Replay.Path, Speed: s.Replay.Speed, Loop: s.Replay.Loop}), nil
	}
	return nil, fmt.Errorf("unknown sensor source %q", s.Source)
}

// Touch opens the configured touchscreen.
func Touch(c config.Config) (*touch.Source, error) {
	return touch.NewSource(touch.Config{
		Device:  c.Touch.Device,
		Metrics: c.Display.Metrics(),
		Grab:    c.Touch.Grab,
		Options: touch.Options{SwapXY: c.Touch.SwapXY, InvertX: c.Touch.InvertX, InvertY: c.Touch.InvertY},
	})
}
