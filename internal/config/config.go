package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tiltlock/internal/gesture"
)

type Config struct {
	// Device names this unit in notices. Defaults to the hostname.
	Device    string          `yaml:"device"`
	Display   DisplayConfig   `yaml:"display"`
	Gesture   GestureConfig   `yaml:"gesture"`
	Sensors   SensorsConfig   `yaml:"sensors"`
	Touch     TouchConfig     `yaml:"touch"`
	Session   SessionConfig   `yaml:"session"`
	Record    RecordConfig    `yaml:"record"`
	Web       WebConfig       `yaml:"web"`
	UDP       UDPConfig       `yaml:"udp"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Indicator IndicatorConfig `yaml:"indicator"`
}

type DisplayConfig struct {
	WidthPx  int     `yaml:"width_px"`
	HeightPx int     `yaml:"height_px"`
	Density  float64 `yaml:"density"`
}

func (d DisplayConfig) Metrics() gesture.DisplayMetrics {
	return gesture.DisplayMetrics{WidthPx: d.WidthPx, HeightPx: d.HeightPx, Density: d.Density}
}

type GestureConfig struct {
	MarginDp float64       `yaml:"margin_dp"`
	Unlock   UnlockWindows `yaml:"unlock"`
	Lock     LockWindows   `yaml:"lock"`
}

func (g GestureConfig) LockConfig() gesture.LockConfig {
	return gesture.LockConfig{Pitch: g.Unlock.Pitch, Roll: g.Unlock.Roll}
}

func (g GestureConfig) LevelConfig() gesture.LevelConfig {
	return gesture.LevelConfig{Pitch: g.Lock.Pitch}
}

type UnlockWindows struct {
	Pitch gesture.Window `yaml:"pitch"`
	Roll  gesture.Window `yaml:"roll"`
}

type LockWindows struct {
	Pitch gesture.Window `yaml:"pitch"`
}

// Sensor source names accepted in sensors.source.
const (
	SourceIMU      = "imu"
	SourceIIO      = "iio"
	SourceSerial   = "serial"
	SourceSim      = "sim"
	SourceScenario = "scenario"
	SourceReplay   = "replay"
	SourceNone     = "none"
)

var sourceNames = []string{SourceIMU, SourceIIO, SourceSerial, SourceSim, SourceScenario, SourceReplay, SourceNone}

type SensorsConfig struct {
	Source   string         `yaml:"source"`
	IMU      IMUConfig      `yaml:"imu"`
	IIO      IIOConfig      `yaml:"iio"`
	Serial   SerialConfig   `yaml:"serial"`
	Sim      SimConfig      `yaml:"sim"`
	Scenario ScenarioConfig `yaml:"scenario"`
	Replay   ReplayConfig   `yaml:"replay"`
}

type IMUConfig struct {
	Bus      int           `yaml:"bus"`
	Addr     uint16        `yaml:"addr"`
	MagAddr  uint16        `yaml:"mag_addr"`
	Interval time.Duration `yaml:"interval"`
}

type IIOConfig struct {
	Root        string        `yaml:"root"`
	AccelDevice string        `yaml:"accel_device"`
	MagDevice   string        `yaml:"mag_device"`
	Interval    time.Duration `yaml:"interval"`
}

type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type SimConfig struct {
	Period           time.Duration `yaml:"period"`
	MinPitchDeg      float64       `yaml:"min_pitch_deg"`
	MaxPitchDeg      float64       `yaml:"max_pitch_deg"`
	RollAmplitudeDeg float64       `yaml:"roll_amplitude_deg"`
	AzimuthDeg       float64       `yaml:"azimuth_deg"`
	Interval         time.Duration `yaml:"interval"`
}

type ScenarioConfig struct {
	Path     string        `yaml:"path"`
	Loop     bool          `yaml:"loop"`
	Interval time.Duration `yaml:"interval"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type TouchConfig struct {
	Enable  bool   `yaml:"enable"`
	Device  string `yaml:"device"`
	Grab    bool   `yaml:"grab"`
	SwapXY  bool   `yaml:"swap_xy"`
	InvertX bool   `yaml:"invert_x"`
	InvertY bool   `yaml:"invert_y"`
}

type SessionConfig struct {
	QueueSize       int           `yaml:"queue_size"`
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type WebConfig struct {
	Enable   bool   `yaml:"enable"`
	Listen   string `yaml:"listen"`
	Contacts int    `yaml:"contacts"`
}

type UDPConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type MQTTConfig struct {
	Enable          bool          `yaml:"enable"`
	Broker          string        `yaml:"broker"`
	Topic           string        `yaml:"topic"`
	ClientID        string        `yaml:"client_id"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	QoS             int           `yaml:"qos"`
	InsecureSkipTLS bool          `yaml:"insecure_skip_tls"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

type IndicatorConfig struct {
	Enable    bool   `yaml:"enable"`
	Line      string `yaml:"line"`
	Pin       *int   `yaml:"pin"`
	Chip      string `yaml:"chip"`
	ActiveLow bool   `yaml:"active_low"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML, rejecting unknown keys, then applies defaults and
// validates.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func unset(w gesture.Window) bool { return w.Min == 0 && w.Max == 0 }

// DefaultAndValidate fills zero values with defaults and checks the
// result. It is also used for configs built in code.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Device == "" {
		if h, err := os.Hostname(); err == nil && h != "" {
			cfg.Device = h
		} else {
			cfg.Device = "tiltlock"
		}
	}

	if cfg.Display.WidthPx <= 0 {
		return fmt.Errorf("display.width_px must be > 0")
	}
	if cfg.Display.HeightPx <= 0 {
		return fmt.Errorf("display.height_px must be > 0")
	}
	if cfg.Display.Density == 0 {
		cfg.Display.Density = 1
	}
	if cfg.Display.Density < 0 {
		return fmt.Errorf("display.density must be > 0")
	}

	g := &cfg.Gesture
	if g.MarginDp == 0 {
		g.MarginDp = gesture.DefaultMarginDp
	}
	if g.MarginDp < 0 {
		return fmt.Errorf("gesture.margin_dp must be > 0")
	}
	if unset(g.Unlock.Pitch) {
		g.Unlock.Pitch = gesture.DefaultLockConfig().Pitch
	}
	if unset(g.Unlock.Roll) {
		g.Unlock.Roll = gesture.DefaultLockConfig().Roll
	}
	if unset(g.Lock.Pitch) {
		g.Lock.Pitch = gesture.DefaultLevelConfig().Pitch
	}
	windows := []struct {
		name string
		w    gesture.Window
	}{
		{"gesture.unlock.pitch", g.Unlock.Pitch},
		{"gesture.unlock.roll", g.Unlock.Roll},
		{"gesture.lock.pitch", g.Lock.Pitch},
	}
	for _, w := range windows {
		if w.w.Min >= w.w.Max {
			return fmt.Errorf("%s.min must be < %s.max", w.name, w.name)
		}
	}

	if err := defaultSensors(&cfg.Sensors); err != nil {
		return err
	}

	if cfg.Session.QueueSize < 0 {
		return fmt.Errorf("session.queue_size must be >= 0")
	}
	if cfg.Session.QueueSize == 0 {
		cfg.Session.QueueSize = 64
	}
	if cfg.Session.NavigateTimeout <= 0 {
		cfg.Session.NavigateTimeout = 2 * time.Second
	}

	if cfg.Record.Enable {
		if cfg.Record.Path == "" {
			return fmt.Errorf("record.path is required when record.enable is true")
		}
		if cfg.Sensors.Source == SourceReplay {
			return fmt.Errorf("record and sensors.source=replay cannot be used together")
		}
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}
	if cfg.Web.Contacts == 0 {
		cfg.Web.Contacts = 20
	}
	if cfg.Web.Contacts < 0 {
		return fmt.Errorf("web.contacts must be >= 0")
	}

	if cfg.UDP.Enable && cfg.UDP.Dest == "" {
		return fmt.Errorf("udp.dest is required when udp.enable is true")
	}

	if cfg.MQTT.Enable {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt.enable is true")
		}
		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = "tiltlock/" + cfg.Device
		}
		if cfg.MQTT.ConnectTimeout <= 0 {
			cfg.MQTT.ConnectTimeout = 10 * time.Second
		}
	}

	if cfg.Indicator.Enable && cfg.Indicator.Line == "" && cfg.Indicator.Pin == nil {
		return fmt.Errorf("indicator.line or indicator.pin is required when indicator.enable is true")
	}
	if cfg.Indicator.Pin != nil && *cfg.Indicator.Pin < 0 {
		return fmt.Errorf("indicator.pin must be >= 0")
	}

	return nil
}

func defaultSensors(s *SensorsConfig) error {
	s.Source = strings.ToLower(strings.TrimSpace(s.Source))
	if s.Source == "" {
		s.Source = SourceSim
	}
	known := false
	for _, n := range sourceNames {
		if s.Source == n {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("sensors.source must be one of %s", strings.Join(sourceNames, ", "))
	}

	// Backend defaults are safe even when another backend is selected.
	if s.IMU.Bus == 0 {
		s.IMU.Bus = 1
	}
	if s.IMU.Addr == 0 {
		s.IMU.Addr = 0x68
	}
	if s.IMU.MagAddr == 0 {
		s.IMU.MagAddr = 0x0C
	}
	if s.IMU.Interval <= 0 {
		s.IMU.Interval = 20 * time.Millisecond
	}
	if s.IIO.Root == "" {
		s.IIO.Root = "/sys/bus/iio/devices"
	}
	if s.IIO.Interval <= 0 {
		s.IIO.Interval = 20 * time.Millisecond
	}
	if s.Serial.Baud <= 0 {
		s.Serial.Baud = 115200
	}
	if s.Sim.Period <= 0 {
		s.Sim.Period = 20 * time.Second
	}
	if s.Sim.MinPitchDeg == 0 && s.Sim.MaxPitchDeg == 0 {
		s.Sim.MinPitchDeg, s.Sim.MaxPitchDeg = 20, 88
	}
	if s.Sim.MinPitchDeg >= s.Sim.MaxPitchDeg {
		return fmt.Errorf("sensors.sim.min_pitch_deg must be < sensors.sim.max_pitch_deg")
	}
	if s.Sim.Interval <= 0 {
		s.Sim.Interval = 50 * time.Millisecond
	}
	if s.Scenario.Interval <= 0 {
		s.Scenario.Interval = 50 * time.Millisecond
	}
	if s.Replay.Speed == 0 {
		s.Replay.Speed = 1
	}
	if s.Replay.Speed < 0 {
		return fmt.Errorf("sensors.replay.speed must be > 0")
	}

	switch s.Source {
	case SourceSerial:
		if s.Serial.Port == "" {
			return fmt.Errorf("sensors.serial.port is required when sensors.source=serial")
		}
	case SourceScenario:
		if s.Scenario.Path == "" {
			return fmt.Errorf("sensors.scenario.path is required when sensors.source=scenario")
		}
	case SourceReplay:
		if s.Replay.Path == "" {
			return fmt.Errorf("sensors.replay.path is required when sensors.source=replay")
		}
	}
	return nil
}
