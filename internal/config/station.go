package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/jump.report/internal/jump"
	"github.com/banshee-data/jump.report/internal/serialmux"
)

// DefaultConfigPath is the canonical defaults file, relative to the repo
// root.
const DefaultConfigPath = "config/station.defaults.json"

const maxFileSize = 1 * 1024 * 1024

// Built-in fallbacks for fields a config file leaves out.
const (
	defaultTestType     = jump.TestSingle
	defaultStallTimeout = 30 * time.Second
	defaultReplayDelay  = 250 * time.Millisecond
	defaultSerialPort   = "/dev/ttyUSB0"
)

// StationConfig is the on-disk station configuration. Every field is
// optional; the Get* accessors fall back to the built-in defaults.
type StationConfig struct {
	// Protocol started at boot.
	TestType      *string   `json:"test_type,omitempty"`
	SensitivityMS *float64  `json:"sensitivity_ms,omitempty"`
	DropHeightsCM []float64 `json:"drop_heights_cm,omitempty"`
	TakeoffFoot   *string   `json:"takeoff_foot,omitempty"`
	SingleKind    *string   `json:"single_kind,omitempty"`
	Roster        []string  `json:"roster,omitempty"`

	// Sensor.
	SerialPort   *string                `json:"serial_port,omitempty"`
	Serial       *serialmux.PortOptions `json:"serial,omitempty"`
	StallTimeout *string                `json:"stall_timeout,omitempty"` // duration string like "30s"
	ReplayDelay  *string                `json:"replay_delay,omitempty"`  // pause between fixture lines in dev mode
}

// LoadStationConfig reads a JSON config file. The path must end in .json
// and the file must be under 1MB.
func LoadStationConfig(path string) (*StationConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &StationConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the working directory
// or one of its parents. It panics when the file cannot be found; meant for
// tests.
func MustLoadDefaultConfig() *StationConfig {
	for _, prefix := range []string{"", "../", "../../", "../../../"} {
		if cfg, err := LoadStationConfig(prefix + DefaultConfigPath); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the config can start a session.
func (c *StationConfig) Validate() error {
	if c.SensitivityMS != nil && *c.SensitivityMS <= 0 {
		return fmt.Errorf("%w, got %v", jump.ErrSensitivity, *c.SensitivityMS)
	}
	if err := c.SessionConfig().WithDefaults().Validate(); err != nil {
		return err
	}
	if c.SingleKind != nil {
		switch jump.JumpKind(*c.SingleKind) {
		case jump.KindSquat, jump.KindCountermovement, jump.KindAbalakov, jump.KindDrop:
		default:
			return fmt.Errorf("single_kind %q is not a single-test movement", *c.SingleKind)
		}
	}
	seen := make(map[string]bool, len(c.Roster))
	for i, id := range c.Roster {
		if id == "" {
			return fmt.Errorf("roster entry %d is empty", i)
		}
		if seen[id] {
			return fmt.Errorf("roster lists %q twice", id)
		}
		seen[id] = true
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	for name, v := range map[string]*string{"stall_timeout": c.StallTimeout, "replay_delay": c.ReplayDelay} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, *v)
		}
	}
	return nil
}

func (c *StationConfig) GetTestType() jump.TestType {
	if c.TestType != nil && *c.TestType != "" {
		return jump.TestType(*c.TestType)
	}
	return defaultTestType
}

func (c *StationConfig) GetSensitivityMS() float64 {
	if c.SensitivityMS != nil {
		return *c.SensitivityMS
	}
	return jump.DefaultSensitivityMS
}

func (c *StationConfig) GetTakeoffFoot() jump.TakeoffFoot {
	if c.TakeoffFoot != nil && *c.TakeoffFoot != "" {
		return jump.TakeoffFoot(*c.TakeoffFoot)
	}
	return jump.FootBoth
}

func (c *StationConfig) GetRoster() []string {
	return append([]string(nil), c.Roster...)
}

func (c *StationConfig) GetSerialPort() string {
	if c.SerialPort != nil && *c.SerialPort != "" {
		return *c.SerialPort
	}
	return defaultSerialPort
}

func (c *StationConfig) GetPortOptions() serialmux.PortOptions {
	if c.Serial != nil {
		return *c.Serial
	}
	return serialmux.PortOptions{}
}

func (c *StationConfig) GetStallTimeout() time.Duration {
	return parseDurationOr(c.StallTimeout, defaultStallTimeout)
}

func (c *StationConfig) GetReplayDelay() time.Duration {
	return parseDurationOr(c.ReplayDelay, defaultReplayDelay)
}

func parseDurationOr(v *string, fallback time.Duration) time.Duration {
	if v == nil || *v == "" {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fallback
	}
	return d
}

// SessionConfig is the protocol configuration the station boots with.
func (c *StationConfig) SessionConfig() jump.Config {
	cfg := jump.Config{
		TestType:      c.GetTestType(),
		SensitivityMS: c.GetSensitivityMS(),
		DropHeightsCM: append([]float64(nil), c.DropHeightsCM...),
		TakeoffFoot:   c.GetTakeoffFoot(),
	}
	if c.SingleKind != nil && cfg.TestType == jump.TestSingle {
		cfg.Kind = jump.JumpKind(*c.SingleKind)
	}
	return cfg
}
