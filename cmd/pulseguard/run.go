package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/hed1ad/pulseguard/pkg/config"
	pio "github.com/hed1ad/pulseguard/pkg/io"
	"github.com/hed1ad/pulseguard/pkg/io/pcap"
	"github.com/hed1ad/pulseguard/pkg/io/serial"
	"github.com/hed1ad/pulseguard/pkg/pipeline"
	"github.com/hed1ad/pulseguard/pkg/telemetry"
)

const shutdownTimeout = 5 * time.Second

type runOptions struct {
	source   string
	path     string
	port     int
	listen   string
	noServer bool
	realtime bool
}

// apply overrides the loaded configuration with the flags that were set.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Source.Type = o.source
	}
	if flags.Changed("path") {
		cfg.Source.Path = o.path
	}
	if flags.Changed("port") {
		cfg.Source.Port = o.port
	}
	if flags.Changed("listen") {
		cfg.Metrics.Addr = o.listen
	}
	if o.noServer {
		cfg.Metrics.Enabled = false
		cfg.Telemetry.Websocket = false
	}
}

func newRunCmd(a *app) *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a monitoring session",
		Long: `Start a monitoring session.

The session waits out the warm-up, records a baseline of normal readings,
trains the model and then flags outliers until the source ends or the
process is interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			o.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return a.run(cmd.Context(), cfg, o.realtime)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.source, "source", "", "source type: serial, pcap, file or stdin")
	f.StringVar(&o.path, "path", "", "serial device, capture file or log file")
	f.IntVar(&o.port, "port", 0, "keep only pcap payloads to or from this port")
	f.StringVar(&o.listen, "listen", "", "address for /metrics and the /ws display")
	f.BoolVar(&o.noServer, "no-server", false, "disable the metrics and websocket endpoints")
	f.BoolVar(&o.realtime, "realtime", true, "replay pcap captures with their captured spacing")
	return cmd
}

func (a *app) run(ctx context.Context, cfg *config.Config, realtime bool) error {
	logger, err := cfg.Log.Logger(a.stderr)
	if err != nil {
		return err
	}
	pc, err := cfg.Pipeline()
	if err != nil {
		return err
	}

	var (
		sinks   []pipeline.Sink
		metrics *telemetry.Metrics
		hub     *telemetry.Hub
	)
	if cfg.Telemetry.Console {
		sinks = append(sinks, telemetry.NewLogSink(logger))
	}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if metrics, err = telemetry.NewMetrics(reg); err != nil {
			return err
		}
		sinks = append(sinks, metrics)
	}
	if cfg.Telemetry.Websocket {
		hub = telemetry.NewHub(logger)
		sinks = append(sinks, hub)
	}

	p, err := pipeline.New(&pc,
		pipeline.WithLogger(logger),
		pipeline.WithSink(telemetry.Multi(sinks...)),
	)
	if err != nil {
		return err
	}

	src, err := a.openSource(cfg, realtime)
	if err != nil {
		return err
	}
	defer src.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if hub != nil {
		go hub.Run(ctx)
	}
	if metrics != nil || hub != nil {
		srv := telemetry.NewServer(cfg.Metrics.Addr, metrics, hub, logger)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown", "error", err)
			}
		}()
	}

	lines, err := src.Stream(ctx)
	if err != nil {
		return err
	}
	logger.Info("source opened", "type", cfg.Source.Type, "path", cfg.Source.Path)

	return finish(logger, cfg, src, p.Run(ctx, lines))
}

// finish maps the end of a session to the command result. Interrupts are
// a clean exit, as is a replay reaching the end of its input. A live
// sensor going away is a failure.
func finish(logger *slog.Logger, cfg *config.Config, src pio.Source, err error) error {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, pipeline.ErrSourceClosed):
		if s, ok := src.(interface{ Err() error }); ok && s.Err() != nil {
			return fmt.Errorf("%w: %v", err, s.Err())
		}
		if cfg.Source.Type == config.SourceSerial {
			return err
		}
		logger.Info("replay finished", "type", cfg.Source.Type)
		return nil
	default:
		return err
	}
}

func (a *app) openSource(cfg *config.Config, realtime bool) (pio.Source, error) {
	sc := cfg.Source
	switch sc.Type {
	case config.SourceSerial:
		s, err := serial.Open(serial.Config{Port: sc.Path, Baud: sc.Baud, ReadTimeout: sc.ReadTimeout})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SourcePcap:
		opts := []pcap.Option{pcap.WithRealtime(realtime)}
		if sc.Port > 0 {
			opts = append(opts, pcap.WithPort(uint16(sc.Port)))
		}
		r, err := pcap.NewFileReader(sc.Path, opts...)
		if err != nil {
			return nil, fmt.Errorf("pcap: %w", err)
		}
		return r, nil
	case config.SourceFile:
		s, err := pio.OpenFile(sc.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SourceStdin:
		return pio.NewReaderSource(a.stdin), nil
	default:
		return nil, fmt.Errorf("unknown source type %q", sc.Type)
	}
}
