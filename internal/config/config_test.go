package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tiltlock/internal/gesture"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

const minimal = "display:\n  width_px: 1080\n  height_px: 1920\n"

func TestLoad_RequiresDisplaySize(t *testing.T) {
	path := writeTempConfig(t, "display: {}\n")
	_, err := Load(path)
	requireErrEq(t, err, "display.width_px must be > 0")

	path = writeTempConfig(t, "display:\n  width_px: 10\n")
	_, err = Load(path)
	requireErrEq(t, err, "display.height_px must be > 0")
}

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, minimal+"device: kiosk\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Device != "kiosk" {
		t.Fatalf("device=%q want kiosk", cfg.Device)
	}
	if cfg.Display.Density != 1 {
		t.Fatalf("density=%v want 1", cfg.Display.Density)
	}
	if cfg.Gesture.MarginDp != gesture.DefaultMarginDp {
		t.Fatalf("margin_dp=%v want %v", cfg.Gesture.MarginDp, gesture.DefaultMarginDp)
	}
	if diff := cmp.Diff(gesture.DefaultLockConfig(), cfg.Gesture.LockConfig()); diff != "" {
		t.Fatalf("unlock windows (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(gesture.DefaultLevelConfig(), cfg.Gesture.LevelConfig()); diff != "" {
		t.Fatalf("lock windows (-want +got):\n%s", diff)
	}
	if cfg.Sensors.Source != SourceSim {
		t.Fatalf("source=%q want sim", cfg.Sensors.Source)
	}
	// Backend defaults are populated even when unused.
	if cfg.Sensors.IMU.Bus != 1 || cfg.Sensors.IMU.Addr != 0x68 || cfg.Sensors.IMU.MagAddr != 0x0C {
		t.Fatalf("imu defaults=%+v", cfg.Sensors.IMU)
	}
	if cfg.Sensors.IIO.Root != "/sys/bus/iio/devices" || cfg.Sensors.Serial.Baud != 115200 {
		t.Fatalf("iio/serial defaults: %+v %+v", cfg.Sensors.IIO, cfg.Sensors.Serial)
	}
	if cfg.Sensors.Sim.MinPitchDeg != 20 || cfg.Sensors.Sim.MaxPitchDeg != 88 || cfg.Sensors.Sim.Period != 20*time.Second {
		t.Fatalf("sim defaults=%+v", cfg.Sensors.Sim)
	}
	if cfg.Session.QueueSize != 64 || cfg.Session.NavigateTimeout != 2*time.Second {
		t.Fatalf("session defaults=%+v", cfg.Session)
	}
	if cfg.Web.Listen != ":8080" || cfg.Web.Contacts != 20 {
		t.Fatalf("web defaults=%+v", cfg.Web)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeTempConfig(t, minimal+`
device: bench
gesture:
  margin_dp: 60
  unlock:
    pitch: {min: 35, max: 55}
    roll: {min: -40, max: 90}
sensors:
  source: IMU
  imu:
    bus: 3
    addr: 0x69
    interval: 10ms
mqtt:
  enable: true
  broker: tcp://localhost:1883
  qos: 1
udp:
  enable: true
  dest: 192.168.10.255:4100
indicator:
  enable: true
  pin: 17
touch:
  enable: true
  swap_xy: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Sensors.Source != SourceIMU || cfg.Sensors.IMU.Bus != 3 || cfg.Sensors.IMU.Addr != 0x69 || cfg.Sensors.IMU.Interval != 10*time.Millisecond {
		t.Fatalf("sensors=%+v", cfg.Sensors)
	}
	if got := cfg.Gesture.LockConfig().Pitch; got != (gesture.Window{Min: 35, Max: 55}) {
		t.Fatalf("unlock pitch=%+v", got)
	}
	if cfg.Gesture.LevelConfig().Pitch != (gesture.Window{Min: 80, Max: 90}) {
		t.Fatalf("lock pitch default not applied")
	}
	if cfg.MQTT.Topic != "tiltlock/bench" || cfg.MQTT.ConnectTimeout != 10*time.Second {
		t.Fatalf("mqtt=%+v", cfg.MQTT)
	}
	if !cfg.Touch.Enable || !cfg.Touch.SwapXY {
		t.Fatalf("touch=%+v", cfg.Touch)
	}
	want := gesture.DisplayMetrics{WidthPx: 1080, HeightPx: 1920, Density: 1}
	if cfg.Display.Metrics() != want {
		t.Fatalf("metrics=%+v want %+v", cfg.Display.Metrics(), want)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name  string
		extra string
		want  string
	}{
		{"density", "  density: -1\n", "display.density must be > 0"},
		{"margin", "gesture:\n  margin_dp: -5\n", "gesture.margin_dp must be > 0"},
		{"unlock pitch", "gesture:\n  unlock:\n    pitch: {min: 50, max: 40}\n", "gesture.unlock.pitch.min must be < gesture.unlock.pitch.max"},
		{"lock pitch", "gesture:\n  lock:\n    pitch: {min: 90, max: 90}\n", "gesture.lock.pitch.min must be < gesture.lock.pitch.max"},
		{"source", "sensors:\n  source: gyro\n", "sensors.source must be one of imu, iio, serial, sim, scenario, replay, none"},
		{"serial port", "sensors:\n  source: serial\n", "sensors.serial.port is required when sensors.source=serial"},
		{"scenario path", "sensors:\n  source: scenario\n", "sensors.scenario.path is required when sensors.source=scenario"},
		{"replay path", "sensors:\n  source: replay\n", "sensors.replay.path is required when sensors.source=replay"},
		{"replay speed", "sensors:\n  replay:\n    speed: -2\n", "sensors.replay.speed must be > 0"},
		{"sim pitch", "sensors:\n  sim:\n    min_pitch_deg: 80\n    max_pitch_deg: 20\n", "sensors.sim.min_pitch_deg must be < sensors.sim.max_pitch_deg"},
		{"queue", "session:\n  queue_size: -1\n", "session.queue_size must be >= 0"},
		{"record path", "record:\n  enable: true\n", "record.path is required when record.enable is true"},
		{"record replay", "record:\n  enable: true\n  path: out.log\nsensors:\n  source: replay\n  replay:\n    path: in.log\n", "record and sensors.source=replay cannot be used together"},
		{"contacts", "web:\n  contacts: -1\n", "web.contacts must be >= 0"},
		{"udp dest", "udp:\n  enable: true\n", "udp.dest is required when udp.enable is true"},
		{"mqtt broker", "mqtt:\n  enable: true\n", "mqtt.broker is required when mqtt.enable is true"},
		{"mqtt qos", "mqtt:\n  enable: true\n  broker: tcp://x:1883\n  qos: 3\n", "mqtt.qos must be 0, 1 or 2"},
		{"indicator", "indicator:\n  enable: true\n", "indicator.line or indicator.pin is required when indicator.enable is true"},
		{"indicator pin", "indicator:\n  enable: true\n  pin: -1\n", "indicator.pin must be >= 0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, minimal+tc.extra))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_IndicatorPinZero(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, minimal+"indicator:\n  enable: true\n  pin: 0\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Indicator.Pin == nil || *cfg.Indicator.Pin != 0 {
		t.Fatalf("pin=%v want GPIO0", cfg.Indicator.Pin)
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeTempConfig(t, minimal+"bluetooth:\n  dest: x\n"))
	if err == nil || !strings.Contains(err.Error(), "bluetooth") {
		t.Fatalf("err=%v want unknown field error", err)
	}
}

func TestDefaultAndValidate_InCode(t *testing.T) {
	if err := DefaultAndValidate(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	cfg := Config{Display: DisplayConfig{WidthPx: 800, HeightPx: 480, Density: 1.5}}
	if err := DefaultAndValidate(&cfg); err != nil {
		t.Fatalf("DefaultAndValidate() error: %v", err)
	}
	if cfg.Device == "" {
		t.Fatalf("device not defaulted")
	}
}

func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := Load("../../configs/tiltlock.yaml")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Sensors.Source != SourceScenario || !cfg.Sensors.Scenario.Loop {
		t.Fatalf("sensors=%+v", cfg.Sensors)
	}
	if cfg.Sensors.IMU.Addr != 0x68 || cfg.Sensors.IMU.MagAddr != 0x0C {
		t.Fatalf("imu=%+v", cfg.Sensors.IMU)
	}
	if !cfg.Web.Enable || cfg.MQTT.Enable || cfg.Indicator.Pin == nil || *cfg.Indicator.Pin != 17 {
		t.Fatalf("outputs web=%+v mqtt=%+v indicator=%+v", cfg.Web, cfg.MQTT, cfg.Indicator)
	}
}
