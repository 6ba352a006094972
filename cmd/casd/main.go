package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/cas-bridge/bridge"
	"github.com/wippyai/cas-bridge/ca"
	"github.com/wippyai/cas-bridge/codec"
	"github.com/wippyai/cas-bridge/engine/enginetest"
	"github.com/wippyai/cas-bridge/server"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to PV definition file (yaml)")
		verbose     = flag.Bool("v", false, "Verbose logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: casd -config <pvs.yaml> [-v]")
		fmt.Fprintln(os.Stderr, "       casd -config <pvs.yaml> -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive && !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
		os.Exit(1)
	}

	logger, err := newLogger(*verbose, *interactive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	bridge.SetLogger(logger)

	if *interactive {
		if err := runInteractive(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configFile, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose, interactive bool) (*zap.Logger, error) {
	if interactive {
		// The TUI owns the terminal.
		return zap.NewNop(), nil
	}
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

type config struct {
	PVs []pvSpec `yaml:"pvs"`
}

type pvSpec struct {
	Name            string    `yaml:"name"`
	Type            string    `yaml:"type"`
	Count           int       `yaml:"count"`
	Value           any       `yaml:"value"`
	Unit            string    `yaml:"unit"`
	Precision       int       `yaml:"precision"`
	EnumStrings     []string  `yaml:"enum_strings"`
	DisplayLimits   []float64 `yaml:"display_limits"`
	ControlLimits   []float64 `yaml:"control_limits"`
	WarningLimits   []float64 `yaml:"warning_limits"`
	AlarmLimits     []float64 `yaml:"alarm_limits"`
	ValueDeadband   float64   `yaml:"value_deadband"`
	ArchiveDeadband float64   `yaml:"archive_deadband"`
}

func loadConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.PVs) == 0 {
		return nil, fmt.Errorf("config defines no pvs")
	}
	return &cfg, nil
}

var typeNames = map[string]ca.DataType{
	"string": ca.TypeString,
	"enum":   ca.TypeEnum,
	"char":   ca.TypeChar,
	"short":  ca.TypeShort,
	"long":   ca.TypeLong,
	"float":  ca.TypeFloat,
	"double": ca.TypeDouble,
}

func (s *pvSpec) options() ([]server.PVOption, error) {
	var opts []server.PVOption
	if s.Count > 1 {
		opts = append(opts, server.WithCount(s.Count))
	}
	if s.ValueDeadband > 0 {
		opts = append(opts, server.WithValueDeadband(s.ValueDeadband))
	}
	if s.ArchiveDeadband > 0 {
		opts = append(opts, server.WithArchiveDeadband(s.ArchiveDeadband))
	}

	var attrs ca.Attributes
	var fields ca.Field
	if s.Value != nil {
		attrs.Value = s.Value
		attrs.Status = ca.StatusNoAlarm
		attrs.Severity = ca.SeverityNoAlarm
		fields |= ca.FieldValue | ca.FieldStatus | ca.FieldSeverity
	}
	if s.Unit != "" {
		attrs.Unit = s.Unit
		fields |= ca.FieldUnit
	}
	if s.Precision > 0 {
		attrs.Precision = s.Precision
		fields |= ca.FieldPrecision
	}
	if len(s.EnumStrings) > 0 {
		attrs.EnumStrings = s.EnumStrings
		fields |= ca.FieldEnumStrings
	}
	limit := func(pair []float64, dst *ca.Limits, f ca.Field) error {
		if len(pair) == 0 {
			return nil
		}
		if len(pair) != 2 {
			return fmt.Errorf("pv %s: limits need exactly two values", s.Name)
		}
		*dst = ca.Limits{Low: pair[0], High: pair[1]}
		fields |= f
		return nil
	}
	if err := limit(s.DisplayLimits, &attrs.DisplayLimits, ca.FieldDisplayLimits); err != nil {
		return nil, err
	}
	if err := limit(s.ControlLimits, &attrs.ControlLimits, ca.FieldControlLimits); err != nil {
		return nil, err
	}
	if err := limit(s.WarningLimits, &attrs.WarningLimits, ca.FieldWarningLimits); err != nil {
		return nil, err
	}
	if err := limit(s.AlarmLimits, &attrs.AlarmLimits, ca.FieldAlarmLimits); err != nil {
		return nil, err
	}
	if fields != 0 {
		opts = append(opts, server.WithInitial(attrs, fields))
	}
	return opts, nil
}

func createPVs(srv *server.Server, cfg *config) ([]*server.PV, error) {
	pvs := make([]*server.PV, 0, len(cfg.PVs))
	for i := range cfg.PVs {
		spec := &cfg.PVs[i]
		typ, ok := typeNames[spec.Type]
		if !ok {
			return nil, fmt.Errorf("pv %s: unknown type %q", spec.Name, spec.Type)
		}
		opts, err := spec.options()
		if err != nil {
			return nil, err
		}
		pv, err := srv.CreatePV(spec.Name, typ, opts...)
		if err != nil {
			return nil, fmt.Errorf("pv %s: %w", spec.Name, err)
		}
		pvs = append(pvs, pv)
	}
	return pvs, nil
}

func run(configFile string, logger *zap.Logger) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	lb := enginetest.NewLoopback()
	srv, err := server.NewServer(lb, codec.Std{})
	if err != nil {
		return err
	}

	pvs, err := createPVs(srv, cfg)
	if err != nil {
		return err
	}
	for _, pv := range pvs {
		logger.Info("serving pv",
			zap.String("pv", pv.Name()),
			zap.Stringer("type", pv.Type()),
			zap.Int("count", pv.Count()),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Watch every PV through the engine like a remote client would.
	events := make(chan enginetest.PostedEvent, 64)
	for _, pv := range pvs {
		ch := lb.Connect(pv.Name()).Wait()
		if ch == nil {
			return fmt.Errorf("pv %s: attach failed", pv.Name())
		}
		_, sub := ch.Monitor(16)
		go func() {
			for ev := range sub {
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	logger.Info("server running", zap.Int("pvs", len(pvs)))
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			lb.Shutdown(context.Background())
			return srv.Shutdown(context.Background())
		case ev := <-events:
			logger.Info("event",
				zap.String("pv", ev.PV),
				zap.Uint8("mask", uint8(ev.Mask)),
				zap.Any("value", ev.Buf.Value),
				zap.Int("status", int(ev.Buf.Status)),
				zap.Int("severity", int(ev.Buf.Severity)),
			)
		}
	}
}
