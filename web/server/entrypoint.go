// Package server implements the entry point for running the impedance controller web server.
package server

import (
	"context"
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/impedance/actuator/sim"
	"go.viam.com/impedance/config"
	"go.viam.com/impedance/control"
	"go.viam.com/impedance/impedance"
	"go.viam.com/impedance/kinematics"
	"go.viam.com/impedance/logging"
	"go.viam.com/impedance/params"
	"go.viam.com/impedance/telemetry"
	"go.viam.com/impedance/web"
)

// Arguments for the command.
type Arguments struct {
	ConfigFile string `flag:"0,usage=server config file"`
	CPUProfile string `flag:"cpuprofile,usage=write cpu profile to file"`
	Debug      bool   `flag:"debug"`
	Schema     bool   `flag:"schema,usage=print the config file JSON schema and exit"`
}

// RunServer is an entry point to starting the web server that can be called by main in a code
// sample or otherwise be used to initialize the server.
func RunServer(ctx context.Context, args []string, logger logging.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Schema {
		schema, err := config.Schema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, string(schema))
		return err
	}
	if argsParsed.ConfigFile == "" {
		return errors.New("a config file is required")
	}
	config.InitLoggingSettings(logger, argsParsed.Debug)

	if argsParsed.CPUProfile != "" {
		f, err := os.Create(argsParsed.CPUProfile)
		if err != nil {
			return err
		}
		err = pprof.StartCPUProfile(f)
		if err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	initialReadCtx, cancel := context.WithTimeout(ctx, time.Second*5)
	cfg, err := config.Read(initialReadCtx, argsParsed.ConfigFile, logger)
	if err != nil {
		cancel()
		return err
	}
	cancel()

	if cfg.LogFile.Path != "" {
		logFile := cfg.LogFile.Writer()
		logger.AddAppender(logging.NewWriterAppender(logFile))
		defer func() {
			err = multierr.Combine(err, logFile.Close())
		}()
		logger.Infow("logging to file", "path", cfg.LogFile.Path)
	}

	err = serveWeb(ctx, cfg, logger)
	if err != nil {
		logger.Errorw("error serving web", "error", err)
	}
	return err
}

// serveWeb builds the controller stack described by cfg and serves it until ctx is done.
func serveWeb(ctx context.Context, cfg *config.Config, logger logging.Logger) (err error) {
	registry := logging.NewRegistry()
	named := func(name string) logging.Logger {
		return registry.Register(name, logger.Sublogger(name))
	}
	ctrlLogger := named("impedance")
	simLogger := named("sim")
	loopLogger := named("loop")
	paramsLogger := named("params")
	webLogger := named("web")
	telemetryLogger := named("telemetry")
	if err := registry.UpdateConfig(cfg.LogConfig, logger); err != nil {
		return err
	}

	chain := kinematics.NewKukaLWR4()
	arm, err := sim.NewArm(simLogger, chain, cfg.Sim, nil)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, arm.Close(context.Background()))
	}()

	fanout := telemetry.NewFanout(cfg.Telemetry.PublishRate)
	if cfg.Telemetry.RecordFile != "" {
		var rec *telemetry.Recorder
		rec, err = telemetry.NewFileRecorder(telemetryLogger, cfg.Telemetry.RecordFile)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Combine(err, rec.Close())
		}()
		fanout.Add(rec)
		telemetryLogger.Infow("recording telemetry", "path", cfg.Telemetry.RecordFile)
	}

	ctrl, err := impedance.NewController(ctrlLogger, cfg.Controller, chain, arm, fanout, nil)
	if err != nil {
		return err
	}

	if cfg.Params.File != "" {
		var watcher *params.Watcher
		watcher, err = params.NewWatcher(paramsLogger, cfg.Params.File, ctrl.NumJoints(), ctrl.Gains(), cfg.Params.Debounce())
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Combine(err, watcher.Close())
		}()
	}

	// without time simulation the arm moves in lockstep with the loop
	cycle := ctrl.Cycle
	if !cfg.Sim.SimulateTime {
		cycle = func(ctx context.Context, dt time.Duration) {
			ctrl.Cycle(ctx, dt)
			if err := arm.Advance(dt); err != nil {
				simLogger.Errorw("simulated arm failed to advance", "error", err)
			}
		}
	}
	loop, err := control.NewLoop(loopLogger, cfg.Loop, nil, cycle)
	if err != nil {
		return err
	}

	srv := web.New(webLogger, ctrl, web.Options{
		BindAddress: cfg.Network.BindAddress,
		CORSOrigins: cfg.Network.CORSOrigins,
		Loop:        loop,
	})
	fanout.Add(srv.Hub())
	if err := srv.Start(); err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, srv.Close())
	}()

	if err := loop.Start(); err != nil {
		return err
	}
	defer loop.Stop()

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
