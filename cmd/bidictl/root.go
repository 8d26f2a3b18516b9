package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"mini-bidi/config"
	"mini-bidi/driver"
	"mini-bidi/log"
	"mini-bidi/metrics"
)

// globalState is what every subcommand shares: output streams, the loaded
// config and the logger built from it.
type globalState struct {
	stdout io.Writer
	stderr io.Writer
	lookup func(string) (string, bool)

	configPath string
	url        string
	logLevel   string

	cfg     config.Config
	logger  *log.Logger
	metrics *prometheus.Registry
}

func newGlobalState(stdout, stderr io.Writer, lookup func(string) (string, bool)) *globalState {
	return &globalState{stdout: stdout, stderr: stderr, lookup: lookup, metrics: prometheus.NewRegistry()}
}

func newRootCommand(gs *globalState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bidictl",
		Short:         "WebDriver BiDi command line client",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return gs.load()
		},
	}
	cmd.SetOut(gs.stdout)
	cmd.SetErr(gs.stderr)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&gs.configPath, "config", "c", "", "YAML or TOML config file")
	flags.StringVar(&gs.url, "url", "", "BiDi session URL (overrides config and BIDI_URL)")
	flags.StringVar(&gs.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	cmd.AddCommand(
		getCmdStatus(gs),
		getCmdEval(gs),
		getCmdLogs(gs),
		getCmdServe(gs),
	)
	return cmd
}

func (gs *globalState) load() error {
	cfg, err := config.Load(gs.configPath, gs.lookup)
	if err != nil {
		return err
	}
	if gs.url != "" {
		cfg.URL = gs.url
	}
	if gs.logLevel != "" {
		cfg.LogLevel = gs.logLevel
	}
	logger, err := log.NewFromLevel(gs.stderr, cfg.LogLevel, cfg.LogFilter)
	if err != nil {
		return err
	}
	gs.cfg, gs.logger = cfg, logger
	return nil
}

func (gs *globalState) connect(ctx context.Context) (*driver.Driver, error) {
	return driver.Connect(ctx, gs.cfg,
		driver.WithLogger(gs.logger),
		driver.WithMetrics(metrics.New(gs.metrics)),
	)
}

// serveMetrics exposes the collected metrics on cfg.MetricsAddr until ctx
// ends. It does nothing when no address is configured.
func (gs *globalState) serveMetrics(ctx context.Context) error {
	if gs.cfg.MetricsAddr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", gs.cfg.MetricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gs.metrics, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			gs.logger.Warnf("metrics", "metrics server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	gs.logger.Infof("metrics", "serving metrics on http://%s/metrics", ln.Addr())
	return nil
}
