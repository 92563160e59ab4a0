package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/impedance/control"
	"go.viam.com/impedance/logging"
	"go.viam.com/impedance/params"
	"go.viam.com/impedance/telemetry"
)

const yamlConfig = `
loop:
  frequency: 500
controller:
  max_qdot: 1.5
  settle_cycles: 3
  stiffness: [100, 100, 100, 100, 50, 50, 20]
  cartesian_sub_mode: velocity_ps
  joint_profile:
    max_acc: 2
    max_vel: 1
    pos_window: 0.001
    kpp_gain: 10
sim:
  initial_q: [0, 0.5, 0, -1.2, 0, 0.6, 0]
  simulate_time: true
network:
  bind_address: 0.0.0.0:9090
params:
  file: /tmp/gains.yaml
  debounce_ms: 50
telemetry:
  record_file: /tmp/run.jsonl
log:
  - pattern: impedance.*
    level: debug
log_file:
  path: /tmp/impedance.log
  max_backups: 3
`

func TestFromReaderYAML(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cfg, err := FromReader(context.Background(), "robot.yaml", strings.NewReader(yamlConfig), logger)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, "robot.yaml")
	test.That(t, cfg.Loop.Frequency, test.ShouldEqual, 500.0)
	test.That(t, cfg.Controller.MaxJointVelocity, test.ShouldEqual, 1.5)
	test.That(t, cfg.Controller.SettleCycles, test.ShouldEqual, 3)
	test.That(t, cfg.Controller.Stiffness, test.ShouldResemble, []float64{100, 100, 100, 100, 50, 50, 20})
	test.That(t, cfg.Controller.CartesianSubMode, test.ShouldEqual, "velocity_ps")
	test.That(t, cfg.Controller.JointProfile, test.ShouldResemble, control.TrapezoidConfig{
		MaxAcc: 2, MaxVel: 1, PosWindow: 0.001, KppGain: 10,
	})
	test.That(t, cfg.Sim.InitialQ, test.ShouldResemble, []float64{0, 0.5, 0, -1.2, 0, 0.6, 0})
	test.That(t, cfg.Sim.SimulateTime, test.ShouldBeTrue)
	test.That(t, cfg.Network.BindAddress, test.ShouldEqual, "0.0.0.0:9090")
	test.That(t, cfg.Params.File, test.ShouldEqual, "/tmp/gains.yaml")
	test.That(t, cfg.Params.Debounce(), test.ShouldEqual, 50*time.Millisecond)
	test.That(t, cfg.Telemetry.RecordFile, test.ShouldEqual, "/tmp/run.jsonl")
	test.That(t, cfg.Telemetry.PublishRate, test.ShouldEqual, telemetry.DefaultPublishRate)
	test.That(t, cfg.LogConfig, test.ShouldResemble, []logging.LoggerPatternConfig{
		{Pattern: "impedance.*", Level: "debug"},
	})
	test.That(t, cfg.LogFile, test.ShouldResemble, LogFileConfig{
		Path: "/tmp/impedance.log", MaxSizeMB: defaultLogFileMaxSizeMB, MaxBackups: 3,
	})
}

func TestFromReaderJSONDefaults(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cfg, err := FromReader(context.Background(), "robot.json", strings.NewReader(`{}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Loop.Frequency, test.ShouldEqual, control.DefaultFrequency)
	test.That(t, cfg.Network.BindAddress, test.ShouldEqual, DefaultBindAddress)
	test.That(t, cfg.Params.Debounce(), test.ShouldEqual, params.DefaultDebounce)
	test.That(t, cfg.Telemetry.PublishRate, test.ShouldEqual, telemetry.DefaultPublishRate)
	test.That(t, cfg.Controller.Stiffness, test.ShouldBeNil)

	cfg, err = FromReader(context.Background(), "robot.json",
		strings.NewReader(`{"controller": {"settle_cycles": 2, "max_qdot": "0.8"}}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Controller.SettleCycles, test.ShouldEqual, 2)
	test.That(t, cfg.Controller.MaxJointVelocity, test.ShouldEqual, 0.8)
}

func TestFromReaderErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for _, tc := range []struct {
		name, path, body, msg string
	}{
		{"bad json", "robot.json", `{"loop":`, "decode"},
		{"bad yaml", "robot.yaml", "loop: [", "decode"},
		{"unknown key", "robot.json", `{"controler": {}}`, "controler"},
		{"unknown nested key", "robot.yaml", "controller:\n  stifness: [1]\n", "stifness"},
		{"wrong type", "robot.json", `{"loop": {"frequency": "fast"}}`, "frequency"},
		{"frequency", "robot.json", `{"loop": {"frequency": 5000}}`, "frequency"},
		{"bind address", "robot.json", `{"network": {"bind_address": "nope"}}`, "bind_address"},
		{"debounce", "robot.json", `{"params": {"debounce_ms": -1}}`, "debounce_ms"},
		{"publish rate", "robot.json", `{"telemetry": {"publish_rate": -3}}`, "publish_rate"},
		{"sim step", "robot.json", `{"sim": {"step_seconds": -1}}`, "step_seconds"},
		{"log file", "robot.json", `{"log_file": {"path": "x.log", "max_age_days": -1}}`, "log_file"},
		{"log level", "robot.json", `{"log": [{"pattern": "*", "level": "loud"}]}`, "loud"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromReader(context.Background(), tc.path, strings.NewReader(tc.body), logger)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.msg)
		})
	}
}

func TestReadExpandsEnvironment(t *testing.T) {
	t.Setenv("IMPEDANCE_TEST_ADDR", "127.0.0.1:7070")
	path := filepath.Join(t.TempDir(), "robot.json")
	test.That(t, os.WriteFile(path, []byte(`{"network": {"bind_address": "${IMPEDANCE_TEST_ADDR}"}}`), 0o600), test.ShouldBeNil)

	cfg, err := Read(context.Background(), path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Network.BindAddress, test.ShouldEqual, "127.0.0.1:7070")
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)

	_, err = Read(context.Background(), filepath.Join(t.TempDir(), "missing.json"), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLogLevelFollowsDebugFlags(t *testing.T) {
	logger := logging.NewBlankLogger("config_test")
	InitLoggingSettings(logger, false)
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.INFO)

	_, err := FromReader(context.Background(), "robot.json", strings.NewReader(`{"debug": true}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.DEBUG)

	UpdateFileConfigDebug(false)
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.INFO)

	InitLoggingSettings(logger, true)
	UpdateFileConfigDebug(false)
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.DEBUG)

	InitLoggingSettings(logger, false)
}

func TestLogFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "impedance.log")
	lc := LogFileConfig{Path: path}
	test.That(t, lc.Validate("log_file"), test.ShouldBeNil)
	w := lc.Writer()
	test.That(t, w.MaxSize, test.ShouldEqual, defaultLogFileMaxSizeMB)

	logger := logging.NewBlankLogger("file")
	logger.AddAppender(logging.NewWriterAppender(w))
	logger.Info("to the file")
	test.That(t, w.Close(), test.ShouldBeNil)

	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, "to the file")
}
