package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tturner/eipcore/internal/capture"
	"github.com/tturner/eipcore/internal/cip/epath"
	"github.com/tturner/eipcore/internal/client"
	"github.com/tturner/eipcore/internal/config"
	"github.com/tturner/eipcore/internal/driver"
	"github.com/tturner/eipcore/internal/enip"
	"github.com/tturner/eipcore/internal/errors"
	"github.com/tturner/eipcore/internal/fragment"
	"github.com/tturner/eipcore/internal/logging"
	"github.com/tturner/eipcore/internal/metrics"
	"github.com/tturner/eipcore/internal/progress"
)

// globalFlags are shared by every command that talks to a device. Flags
// the user set override the config file.
type globalFlags struct {
	configPath  string
	host        string
	port        int
	timeout     time.Duration
	logLevel    string
	logFile     string
	pcap        string
	metricsFile string
}

func (g *globalFlags) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&g.configPath, "config", "", "YAML config file (optional)")
	f.StringVar(&g.host, "host", "", "Target device host or IP address")
	f.IntVar(&g.port, "port", enip.DefaultPort, "EtherNet/IP TCP port")
	f.DurationVar(&g.timeout, "timeout", enip.DefaultTimeout, "Per-exchange timeout")
	f.StringVar(&g.logLevel, "log-level", "info", "Log level (silent, error, info, verbose, debug)")
	f.StringVar(&g.logFile, "log-file", "", "Also write JSON logs to this file")
	f.StringVar(&g.pcap, "pcap", "", "Record every exchange to this pcap file")
	f.StringVar(&g.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
}

// load reads the config file, if any, and applies the flags the user set.
func (g *globalFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.CreateDefaultConfig()
	if g.configPath != "" {
		loaded, err := config.LoadConfig(g.configPath, false)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Target.Host = g.host
	}
	if flags.Changed("port") {
		cfg.Target.Port = g.port
	}
	if flags.Changed("timeout") {
		cfg.Timeouts.ExchangeMs = int(g.timeout / time.Millisecond)
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = g.logLevel
	}
	if flags.Changed("log-file") {
		cfg.Logging.File = g.logFile
	}
	if flags.Changed("pcap") {
		cfg.Capture.PCAP = g.pcap
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.File = g.metricsFile
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Target.Host == "" {
		return nil, missingFlagError(cmd, "--host")
	}
	return cfg, nil
}

// session bundles what one command invocation needs to reach the device.
type session struct {
	cfg     *config.Config
	log     *logging.Logger
	metrics *metrics.Collector
	rec     *capture.Recorder
	client  *client.Client[string]
}

func openSession(cmd *cobra.Command, g *globalFlags) (*session, error) {
	cfg, err := g.load(cmd)
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	log, err := logging.NewLogger(level, cfg.Logging.File)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, log: log, metrics: metrics.New()}
	var d driver.Driver[string] = &enip.Driver{
		Timeout:     cfg.ExchangeTimeout(),
		DialTimeout: cfg.DialTimeout(),
		Logger:      log,
	}
	if cfg.Capture.PCAP != "" {
		rec, err := capture.Create(cfg.Capture.PCAP)
		if err != nil {
			log.Close()
			return nil, err
		}
		s.rec = rec
		d = capture.Wrap(d, rec)
	}
	s.client = client.New(d, cfg.Endpoint(), client.WithLogger(log.With("client")), client.WithMetrics(s.metrics))
	return s, nil
}

// fragmenter returns a Coordinator over the client. A non-nil bar is
// advanced after every round.
func (s *session) fragmenter(bar *progress.Bar) *fragment.Coordinator {
	opts := []fragment.Option{
		fragment.WithMaxChunk(s.cfg.Fragment.MaxChunk),
		fragment.WithLogger(s.log.With("fragment")),
		fragment.WithMetrics(s.metrics),
	}
	if bar != nil {
		opts = append(opts, fragment.WithProgress(func(n uint32) { bar.Round(int64(n)) }))
	}
	return fragment.New(s.client, opts...)
}

// wrap turns transport failures into a user-facing message and CIP
// failures into an operation error.
func (s *session) wrap(err error, operation string) error {
	switch metrics.OutcomeOf(err) {
	case metrics.OutcomeSuccess:
		return nil
	case metrics.OutcomeTransport:
		if stderrors.Is(err, context.Canceled) {
			return err
		}
		return errors.WrapNetworkError(err, s.cfg.Endpoint())
	default:
		return errors.WrapCIPError(err, operation)
	}
}

// close releases the client and flushes capture and metrics files.
func (s *session) close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(s.client.Close())
	if s.rec != nil {
		keep(s.rec.Close())
	}
	if s.cfg.Metrics.File != "" {
		if err := s.metrics.WriteFile(s.cfg.Metrics.File); err != nil {
			keep(fmt.Errorf("write metrics: %w", err))
		}
	}
	keep(s.log.Close())
	return firstErr
}

// tagPath encodes a symbolic tag path for a request.
func tagPath(tag string) ([]byte, error) {
	path, err := epath.Symbolic(tag)
	if err != nil {
		return nil, fmt.Errorf("tag %q: %w", tag, err)
	}
	return path, nil
}
