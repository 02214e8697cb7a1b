package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-unipa/account"
	"github.com/aluiziolira/go-unipa/config"
	"github.com/aluiziolira/go-unipa/models"
	"github.com/aluiziolira/go-unipa/pipeline"
	"github.com/aluiziolira/go-unipa/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, err := newRootCmd()
	if err == nil {
		err = cmd.ExecuteContext(ctx)
	}
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() (*cobra.Command, error) {
	cfg := config.DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	root := &cobra.Command{
		Use:           "unipa",
		Short:         "Read timetable, grades, attendance and notices from a UNIPA portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, level := newLogger(cfg.Verbose)
			slog.SetDefault(logger)
			slog.SetLogLoggerLevel(level.Level())
			cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
			return cfg.Validate()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.Site, "site", cfg.Site, "Site key, e.g. kindai/higashi-osaka")
	flags.StringVar(&cfg.SitesFile, "sites-file", cfg.SitesFile, "YAML file with extra site descriptors")
	flags.StringVar(&cfg.Username, "user", cfg.Username, "Portal user id")
	flags.StringVar(&cfg.Password, "password", cfg.Password, "Portal password (prefer UNIPA_PLAIN_PASSWORD)")
	flags.BoolVar(&cfg.Stub, "stub", cfg.Stub, "Replay captured fixtures instead of touching the network")
	flags.BoolVar(&cfg.SaveHTML, "save-html", cfg.SaveHTML, "Capture every live page as a fixture")
	flags.StringVar(&cfg.FixtureDir, "fixtures", cfg.FixtureDir, "Fixture directory")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Request timeout")
	flags.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent header")
	flags.StringVarP(&cfg.OutputFile, "output", "o", cfg.OutputFile, "Export extracted records to this file")
	flags.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Export format: csv, json, dual or sqlite")
	flags.IntVar(&cfg.Workers, "workers", cfg.Workers, "Export workers")
	flags.IntVar(&cfg.DedupeMaxSize, "dedupe-size", cfg.DedupeMaxSize, "Record keys remembered for de-duplication")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address for serve (e.g. :9090)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Enable verbose logging")

	root.AddCommand(newLoginCmd(cfg))
	root.AddCommand(newMenuCmd(cfg))
	root.AddCommand(newTimetableCmd(cfg))
	root.AddCommand(newGradesCmd(cfg))
	root.AddCommand(newAttendanceCmd(cfg))
	root.AddCommand(newNoticeCmd(cfg))
	root.AddCommand(newServeCmd(cfg))
	return root, nil
}

func applyEnv(cfg *config.Config) error {
	if value, ok := config.EnvString("UNIPA_USER_ID"); ok {
		cfg.Username = value
	}
	if value, ok := config.EnvString("UNIPA_PLAIN_PASSWORD"); ok {
		cfg.Password = value
	}
	if value, ok := config.EnvString("UNIPA_SITE"); ok {
		cfg.Site = value
	}
	if value, ok := config.EnvString("UNIPA_FIXTURES"); ok {
		cfg.FixtureDir = value
	}
	if value, ok := config.EnvString("UNIPA_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	if value, ok, err := config.EnvBool("UNIPA_STUB"); err != nil {
		return fmt.Errorf("invalid UNIPA_STUB: %w", err)
	} else if ok {
		cfg.Stub = value
	}
	return nil
}

// app is one logged-in session plus the collectors it reports to.
type app struct {
	cfg     *config.Config
	site    config.Site
	session *session.Session
	account *account.Account
	metrics *session.Metrics

	metricsServer *http.Server
}

// openSession resolves the site and logs in.
func openSession(ctx context.Context, cfg *config.Config) (*app, error) {
	site, err := cfg.ResolveSite()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, site: site, metrics: session.NewMetrics()}
	if err := a.login(ctx); err != nil {
		a.logMetrics()
		return nil, err
	}
	return a, nil
}

// login replaces the current session with a freshly authenticated one.
// Metrics carry over.
func (a *app) login(ctx context.Context) error {
	s, err := session.FromConfig(a.cfg, a.site, a.metrics)
	if err != nil {
		return fmt.Errorf("initialising session: %w", err)
	}

	slog.Info("logging in",
		slog.String("site", a.site.Name),
		slog.String("campus", a.site.Campus),
		slog.Bool("stub", a.cfg.Stub),
	)
	acct, err := account.New(s).Login(ctx)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	a.session = s
	a.account = acct
	return nil
}

// startMetricsServer serves /metrics until stopMetricsServer is called.
func (a *app) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.metricsServer = srv
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", a.cfg.MetricsAddr))
}

func (a *app) stopMetricsServer() {
	if a.metricsServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
	a.metricsServer = nil
}

// close ends a one-shot command with a metrics summary in the log.
func (a *app) close() {
	a.stopMetricsServer()
	a.logMetrics()
}

func (a *app) logMetrics() {
	totals, err := a.metrics.Totals()
	if err != nil {
		slog.Warn("gather metrics", slog.Any("error", err))
		return
	}
	attrs := make([]any, 0, len(totals))
	for _, name := range slices.Sorted(maps.Keys(totals)) {
		attrs = append(attrs, slog.Float64(strings.TrimPrefix(name, "unipa_"), totals[name]))
	}
	slog.Info("session metrics", attrs...)
}

// export streams records through the pipeline when an output file is set.
func (a *app) export(records []models.Record) error {
	if a.cfg.OutputFile == "" || len(records) == 0 {
		return nil
	}

	// The command's leading record kind keeps the output file name.
	writer, err := pipeline.NewWriter(a.cfg.OutputFormat, a.cfg.OutputFile, records[0].Kind())
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	p, err := pipeline.NewPipeline(writer, a.cfg.DedupeMaxSize)
	if err != nil {
		return err
	}
	p.Start(a.cfg.Workers)
	if a.cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	if err := p.Process(records); err != nil {
		_ = p.Close()
		return fmt.Errorf("export: %w", err)
	}
	if err := p.Close(); err != nil {
		return fmt.Errorf("pipeline shutdown failed: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}

	m := p.GetMetrics()
	slog.Info("export complete",
		slog.Int64("records", m.Processed),
		slog.Any("validation_errors", m.ValidationErrors),
		slog.Duration("duration", time.Since(startTime)),
		slog.String("output", a.cfg.OutputFile),
		slog.String("format", a.cfg.OutputFormat),
	)
	return nil
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
