package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rocketfc/rocketfc/attitude"
	"github.com/rocketfc/rocketfc/computer"
	"github.com/rocketfc/rocketfc/flight"
)

const sample = `
loop_hz: 200
computer:
  attitude:
    mode: mahony
  control:
    kp: 2.5
  deploy:
    trigger: descent
    backup_delay: 20s
hardware:
  pin_gpio: -1
  calibration:
    mag_bias: [12.5, -3, 0]
telemetry:
  radio:
    device: /dev/ttyUSB0
`

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LoopHz != 200 || cfg.Computer.Attitude.Mode != attitude.Mahony {
		t.Errorf("top level = %d %s", cfg.LoopHz, cfg.Computer.Attitude.Mode)
	}
	if cfg.Computer.Control.Kp != 2.5 || cfg.Computer.Control.Ki != computer.DefaultConfig().Control.Ki {
		t.Errorf("control = %+v", cfg.Computer.Control)
	}
	if cfg.Computer.Deploy.Trigger != flight.Descent || cfg.Computer.Deploy.BackupDelay != 20*time.Second {
		t.Errorf("deploy = %+v", cfg.Computer.Deploy)
	}
	if cfg.Hardware.PinGPIO != -1 || cfg.Hardware.Calibration.MagBias != [3]float64{12.5, -3, 0} {
		t.Errorf("hardware = %+v", cfg.Hardware)
	}
	// Untouched keys in a touched section keep their defaults.
	if cfg.Hardware.I2CBus != 1 || cfg.Hardware.Calibration.AccelScale != 1 || cfg.Telemetry.Radio.Baud != 57600 {
		t.Errorf("defaults lost: %+v %+v", cfg.Hardware, cfg.Telemetry.Radio)
	}
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		yaml string
		want error
	}{
		{"unknown key", "loop_hz: 100\nloop_hertz: 5\n", nil},
		{"bad state", "computer:\n  deploy:\n    trigger: sideways\n", nil},
		{"slow loop", "loop_hz: 5\n", ErrBadConfig},
		{"loop slower than max dt", "loop_hz: 10\ncomputer:\n  max_dt: 0.05\n", ErrBadConfig},
		{"shared channel", "computer:\n  servo_channel: 1\n", computer.ErrBadConfig},
		{"radio without baud", "telemetry:\n  radio:\n    device: /dev/ttyS0\n    baud: 0\n", ErrBadConfig},
	} {
		_, err := Parse(strings.NewReader(tc.yaml))
		if err == nil {
			t.Errorf("%s: no error", tc.name)
			continue
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Error("missing file did not yield defaults")
	}

	path := filepath.Join(dir, "rocketfc.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	gains, err := Gains(path)
	if err != nil {
		t.Fatal(err)
	}
	if gains.Kp != 2.5 {
		t.Errorf("kp = %v", gains.Kp)
	}

	if err := os.WriteFile(path, []byte("loop_hz: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), path) {
		t.Errorf("err = %v, want it to name the file", err)
	}
}

func TestDefaultRoundTrip(t *testing.T) {
	data, err := Marshal(Default())
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Parse(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("%v\n%s", err, data)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("round trip changed the defaults:\n%s", data)
	}
}
