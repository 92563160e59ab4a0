// Package config defines the configuration file of the impedance server and how it is read.
package config

import (
	"fmt"
	"math"
	"net"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gopkg.in/natefinch/lumberjack.v2"

	"go.viam.com/impedance/actuator/sim"
	"go.viam.com/impedance/control"
	"go.viam.com/impedance/impedance"
	"go.viam.com/impedance/logging"
	"go.viam.com/impedance/params"
	"go.viam.com/impedance/telemetry"
)

// DefaultBindAddress is the default address that will be listened on.
const DefaultBindAddress = "localhost:8080"

// Config describes everything the server runs.
type Config struct {
	ConfigFilePath string `json:"-"`

	Controller impedance.Config `json:"controller"`
	Loop       control.Config   `json:"loop"`
	Sim        sim.Config       `json:"sim"`
	Network    NetworkConfig    `json:"network"`
	Params     ParamsConfig     `json:"params"`
	Telemetry  TelemetryConfig  `json:"telemetry"`

	LogConfig []logging.LoggerPatternConfig `json:"log"`
	LogFile   LogFileConfig                 `json:"log_file"`
	Debug     bool                          `json:"debug"`
}

// LogFileConfig describes a rotating file that receives every log line in addition to stdout.
// An empty Path disables it.
type LogFileConfig struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// Validate ensures all parts of the config are valid.
func (lc *LogFileConfig) Validate(path string) error {
	if lc.Path == "" {
		return nil
	}
	if lc.MaxSizeMB < 0 || lc.MaxBackups < 0 || lc.MaxAgeDays < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_size_mb, max_backups and max_age_days can't be negative"))
	}
	if lc.MaxSizeMB == 0 {
		lc.MaxSizeMB = defaultLogFileMaxSizeMB
	}
	return nil
}

const defaultLogFileMaxSizeMB = 100

// Writer returns the rotating file writer described by the config. The caller closes it.
func (lc LogFileConfig) Writer() *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   lc.Path,
		MaxSize:    lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAge:     lc.MaxAgeDays,
		Compress:   lc.Compress,
	}
}

// NetworkConfig describes the web server.
type NetworkConfig struct {
	BindAddress string `json:"bind_address"`
	// CORSOrigins is handed to the cors middleware as is; empty allows every origin.
	CORSOrigins string `json:"cors_origins"`
}

// Validate ensures all parts of the config are valid.
func (nc *NetworkConfig) Validate(path string) error {
	if nc.BindAddress == "" {
		nc.BindAddress = DefaultBindAddress
	}
	if _, _, err := net.SplitHostPort(nc.BindAddress); err != nil {
		return utils.NewConfigValidationError(path, errors.Wrap(err, "error validating bind_address"))
	}
	return nil
}

// ParamsConfig describes the parameter file that is watched for gain changes. An empty File
// disables it.
type ParamsConfig struct {
	File       string `json:"file"`
	DebounceMs int    `json:"debounce_ms"`
}

// Validate ensures all parts of the config are valid.
func (pc *ParamsConfig) Validate(path string) error {
	if pc.DebounceMs < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("debounce_ms can't be negative, got %d", pc.DebounceMs))
	}
	return nil
}

// Debounce returns how long the parameter file must be quiet before it is reloaded.
func (pc ParamsConfig) Debounce() time.Duration {
	if pc.DebounceMs == 0 {
		return params.DefaultDebounce
	}
	return time.Duration(pc.DebounceMs) * time.Millisecond
}

// TelemetryConfig describes where cycle samples go besides the websocket.
type TelemetryConfig struct {
	// RecordFile receives every published sample as JSON lines when set.
	RecordFile  string  `json:"record_file"`
	PublishRate float64 `json:"publish_rate"`
}

// Validate ensures all parts of the config are valid.
func (tc *TelemetryConfig) Validate(path string) error {
	switch {
	case tc.PublishRate == 0:
		tc.PublishRate = telemetry.DefaultPublishRate
	case tc.PublishRate < 0 || math.IsNaN(tc.PublishRate) || math.IsInf(tc.PublishRate, 0):
		return utils.NewConfigValidationError(path, errors.Errorf("publish_rate must be positive, got %v", tc.PublishRate))
	}
	return nil
}

// Ensure ensures all parts of the config are valid and fills in defaults. Controller values are
// not checked here; the controller replaces invalid ones with defaults when it is built.
func (c *Config) Ensure(logger logging.Logger) error {
	if c.Loop.Frequency == 0 {
		c.Loop.Frequency = control.DefaultFrequency
	}
	if c.Loop.Frequency < 0 || c.Loop.Frequency > control.MaxFrequency {
		return utils.NewConfigValidationError("loop",
			errors.Errorf("frequency shouldn't be 0 or above %vHz, got %v", control.MaxFrequency, c.Loop.Frequency))
	}
	if err := c.Network.Validate("network"); err != nil {
		return err
	}
	if err := c.Params.Validate("params"); err != nil {
		return err
	}
	if err := c.Telemetry.Validate("telemetry"); err != nil {
		return err
	}
	if err := c.LogFile.Validate("log_file"); err != nil {
		return err
	}
	if c.Sim.StepSeconds < 0 {
		return utils.NewConfigValidationError("sim", errors.Errorf("step_seconds can't be negative, got %v", c.Sim.StepSeconds))
	}
	for idx, lpc := range c.LogConfig {
		if _, err := logging.LevelFromString(lpc.Level); err != nil {
			return utils.NewConfigValidationError(fmt.Sprintf("log.%d", idx), err)
		}
	}
	if c.Params.File == "" {
		logger.Debug("no parameter file configured, gains only change through the api")
	}
	return nil
}
