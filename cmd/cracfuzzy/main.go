package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Agrid-Dev/cracfuzzy/cmd/app"
	"github.com/Agrid-Dev/cracfuzzy/internal/crac"
	"github.com/Agrid-Dev/cracfuzzy/internal/report"
	"github.com/Agrid-Dev/cracfuzzy/internal/simulation"
)

const usage = `usage: cracfuzzy <command> [flags]

commands:
  serve     run the live station and its controllers
  simulate  run a 24 h batch simulation and export the trace
`

func main() {
	os.Exit(run(os.Args[1:]))
}

// run dispatches the subcommand and returns the process exit code, so deferred
// cleanup runs before exiting.
func run(args []string) int {
	if len(args) < 1 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd := args[0]; cmd {
	case "serve":
		err = serve(ctx, args[1:])
	case "simulate":
		err = simulate(ctx, args[1:])
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
	if err != nil {
		log.Print(err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to config file (.yaml/.yml/.json)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	rt, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("telemetry sink close failed", zap.Error(err))
		}
	}()

	logger.Info("cracfuzzy starting",
		zap.String("device_id", cfg.DeviceID),
		zap.Strings("components", rt.Device.Components()),
		zap.Duration("step_interval", cfg.Station.StepInterval),
	)
	if err := rt.Device.Run(ctx, cfg.Station.StepInterval); err != nil {
		return fmt.Errorf("device exited: %w", err)
	}
	logger.Info("cracfuzzy stopped")
	return nil
}

func simulate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to config file (.yaml/.yml/.json)")
	csvPath := fs.String("csv", "cracfuzzy.csv", "trace CSV output, empty to skip")
	plotDir := fs.String("plot", "", "directory for PNG charts, empty to skip")
	setpoint := fs.Float64("setpoint", 0, "setpoint in °C (default: station.setpoint)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctrl, model, err := app.NewController(cfg)
	if err != nil {
		return err
	}
	sp := cfg.Station.Setpoint
	if flagSet(fs, "setpoint") {
		sp = *setpoint
	}

	trace, err := simulation.Run(ctx, ctrl, model, cfg.SimulationRun(sp), simulation.Hooks{})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			return fmt.Errorf("simulation: %w", err)
		}
		logger.Warn("simulation interrupted", zap.Int("steps", len(trace)))
	}

	if *csvPath != "" {
		if err := writeCSV(*csvPath, trace); err != nil {
			return err
		}
		logger.Info("trace written", zap.String("path", *csvPath), zap.Int("rows", len(trace)))
	}
	if *plotDir != "" && len(trace) > 0 {
		files, err := report.WriteCharts(*plotDir, trace, cfg.Limits())
		if err != nil {
			return err
		}
		last := trace[len(trace)-1]
		mfs, err := report.WriteMembershipCharts(*plotDir, ctrl.RuleBase(), map[string]float64{
			crac.VarError:               last.Error,
			crac.VarDerivative:          last.Derivative,
			crac.VarExternalTemperature: last.ExternalTemperature,
			crac.VarLoad:                last.Load,
			crac.VarPower:               last.Control,
		})
		if err != nil {
			return err
		}
		logger.Info("charts written", zap.Strings("files", append(files, mfs...)))
	}

	s := trace.Summary(cfg.Limits())
	logger.Info("simulation summary",
		zap.Float64("setpoint", sp),
		zap.Int("steps", s.Steps),
		zap.Float64("mean_temperature", s.MeanTemperature),
		zap.Float64("stddev_temperature", s.StdDevTemperature),
		zap.Float64("min_temperature", s.MinTemperature),
		zap.Float64("max_temperature", s.MaxTemperature),
		zap.Float64("mean_control", s.MeanControl),
		zap.Float64("control_p95", s.ControlP95),
		zap.Int("minutes_in_alert", s.MinutesInAlert),
		zap.Int("minutes_outside_comfort", s.MinutesOutsideComfort),
		zap.Int("no_rule_fired", s.NoRuleFired),
	)
	return nil
}

// flagSet reports whether name was passed explicitly on the command line.
func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func writeCSV(path string, trace simulation.Trace) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	if err := simulation.WriteCSV(f, trace); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
