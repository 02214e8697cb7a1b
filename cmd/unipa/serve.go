package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-unipa/attendance"
	"github.com/aluiziolira/go-unipa/config"
	"github.com/aluiziolira/go-unipa/grades"
	"github.com/aluiziolira/go-unipa/models"
	"github.com/aluiziolira/go-unipa/notice"
	"github.com/aluiziolira/go-unipa/timetable"
)

const defaultRefreshInterval = 15 * time.Minute

// extractor fetches one page type and returns its records.
type extractor struct {
	kind  string
	fetch func(ctx context.Context, a *app) ([]models.Record, error)
}

var extractors = []extractor{
	{kind: "timetable", fetch: func(ctx context.Context, a *app) ([]models.Record, error) {
		r, err := timetable.Fetch(ctx, a.session)
		if err != nil {
			return nil, err
		}
		return r.Records(), nil
	}},
	{kind: "grades", fetch: func(ctx context.Context, a *app) ([]models.Record, error) {
		r, err := grades.Fetch(ctx, a.session)
		if err != nil {
			return nil, err
		}
		return r.Records(), nil
	}},
	{kind: "attendance", fetch: func(ctx context.Context, a *app) ([]models.Record, error) {
		r, err := attendance.Fetch(ctx, a.session)
		if err != nil {
			return nil, err
		}
		return r.Records(), nil
	}},
	{kind: "notice", fetch: func(ctx context.Context, a *app) ([]models.Record, error) {
		r, err := notice.Fetch(ctx, a.session)
		if err != nil {
			return nil, err
		}
		return r.Records(), nil
	}},
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	interval := defaultRefreshInterval
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Refresh every page on an interval and serve Prometheus metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.MetricsAddr == "" {
				return errors.New("serve needs --metrics-addr")
			}
			if interval <= 0 {
				return fmt.Errorf("interval must be positive, got %s", interval)
			}
			ctx := cmd.Context()
			a, err := openSession(ctx, cfg)
			if err != nil {
				return err
			}
			a.startMetricsServer()
			defer a.close()
			return a.serve(ctx, interval, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", interval, "Time between refreshes")
	return cmd
}

// serve refreshes until ctx is done. Each cycle after the first logs in
// again so an expired portal session does not stall the loop.
func (a *app) serve(ctx context.Context, interval time.Duration, out io.Writer) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for cycle := 1; ; cycle++ {
		switch err := a.relogin(ctx, cycle); {
		case err != nil:
			slog.Warn("refresh login failed", slog.Int("cycle", cycle), slog.Any("error", err))
		default:
			a.refresh(ctx, cycle, out)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *app) relogin(ctx context.Context, cycle int) error {
	if cycle == 1 {
		return nil
	}
	return a.login(ctx)
}

// refresh runs every extractor once. A failing page is logged and skipped.
func (a *app) refresh(ctx context.Context, cycle int, out io.Writer) {
	var records []models.Record
	for _, e := range extractors {
		got, err := e.fetch(ctx, a)
		if err != nil {
			slog.Warn("refresh failed",
				slog.Int("cycle", cycle),
				slog.String("kind", e.kind),
				slog.Any("error", err),
			)
			continue
		}
		_, _ = fmt.Fprintf(out, "cycle %d: %s %d\n", cycle, e.kind, len(got))
		records = append(records, got...)
	}
	if err := a.export(records); err != nil {
		slog.Warn("refresh export failed", slog.Int("cycle", cycle), slog.Any("error", err))
	}
}
