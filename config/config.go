// Package config loads the flight computer's YAML configuration. Every
// section starts from its package defaults, so a file only names what it
// changes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rocketfc/rocketfc/computer"
	"github.com/rocketfc/rocketfc/datalog"
	"github.com/rocketfc/rocketfc/pid"
	"github.com/rocketfc/rocketfc/sensors"
	"github.com/rocketfc/rocketfc/telemetry"
)

// DefaultPath is where the daemon looks for its configuration.
const DefaultPath = "/etc/rocketfc.yaml"

var ErrBadConfig = errors.New("config: invalid configuration")

type LogConfig struct {
	Dir   string `yaml:"dir"`
	Debug bool   `yaml:"debug"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the status server
}

type TelemetryConfig struct {
	WebsocketEvery int                    `yaml:"websocket_every"`
	Radio          telemetry.SerialConfig `yaml:"radio"`       // empty device disables the radio
	AnalysisLog    string                 `yaml:"analysis_log"` // empty disables the analysis CSV
}

// Config is the whole configuration file.
type Config struct {
	LoopHz       int                    `yaml:"loop_hz"`
	FlightLogDir string                 `yaml:"flight_log_dir"` // RLG1 logs; empty disables
	Computer     computer.Config        `yaml:"computer"`
	Hardware     sensors.HardwareConfig `yaml:"hardware"`
	Datalog      datalog.Config         `yaml:"datalog"` // empty path disables
	Telemetry    TelemetryConfig        `yaml:"telemetry"`
	Log          LogConfig              `yaml:"log"`
	HTTP         HTTPConfig             `yaml:"http"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		LoopHz:       100,
		FlightLogDir: "/var/log/rocketfc",
		Computer:     computer.DefaultConfig(),
		Hardware:     sensors.DefaultHardwareConfig(),
		Datalog:      datalog.DefaultConfig(),
		Telemetry: TelemetryConfig{
			WebsocketEvery: 10,
			Radio:          telemetry.SerialConfig{Baud: 57600, Every: 5},
		},
		Log:  LogConfig{Dir: "/var/log/rocketfc"},
		HTTP: HTTPConfig{Addr: ":9977"},
	}
}

// Validate fails fast on values the flight loop cannot run with.
func (c Config) Validate() error {
	if err := c.Computer.Validate(); err != nil {
		return err
	}
	switch {
	case c.LoopHz < 10 || c.LoopHz > 1000:
		return fmt.Errorf("%w: loop_hz %d outside [10, 1000]", ErrBadConfig, c.LoopHz)
	case 1/float64(c.LoopHz) >= c.Computer.MaxDt:
		return fmt.Errorf("%w: loop period %.3fs is not below max_dt %.3fs", ErrBadConfig, 1/float64(c.LoopHz), c.Computer.MaxDt)
	case c.Telemetry.Radio.Device != "" && c.Telemetry.Radio.Baud <= 0:
		return fmt.Errorf("%w: radio baud %d", ErrBadConfig, c.Telemetry.Radio.Baud)
	case c.Datalog.MaxUsage < 0 || c.Datalog.MaxUsage > 1:
		return fmt.Errorf("%w: datalog max_usage %v outside [0, 1]", ErrBadConfig, c.Datalog.MaxUsage)
	}
	return nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are errors.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Gains re-reads path for the stabilizer gains only. The daemon applies them
// on SIGUSR1 without restarting the flight loop.
func Gains(path string) (pid.Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return pid.Config{}, err
	}
	return cfg.Computer.Control, nil
}

// Marshal renders cfg as YAML, for writing a starting configuration.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
