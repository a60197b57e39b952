// Package main is the entry point for the pgsmoke command. It starts a
// disposable PostgreSQL container, points the application at it through
// configuration, runs the smoke queries and tears everything down.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"pgsmoke/config"
	"pgsmoke/internal/app"
	"pgsmoke/internal/dbcontainer"
	"pgsmoke/internal/fixture"
	"pgsmoke/internal/logging"
	"pgsmoke/internal/observability"
	"pgsmoke/internal/version"
)

const teardownTimeout = 30 * time.Second

const (
	queryPing = "SELECT 1"
	queryDate = "SELECT CURRENT_DATE"
)

type options struct {
	image          string
	database       string
	username       string
	password       string
	startupTimeout time.Duration
	logFormat      string
	logLevel       string
	version        bool
}

// parseFlags reads args on top of the loaded configuration, so flags win
// over config.yaml and the environment.
func parseFlags(args []string, base *config.Config, errOut io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("pgsmoke", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&opts.image, "image", base.Container.Image, "PostgreSQL container image")
	fs.StringVar(&opts.database, "database", "integration-tests-db", "database created in the container")
	fs.StringVar(&opts.username, "username", "sa", "database user")
	fs.StringVar(&opts.password, "password", "sa", "database password")
	fs.DurationVar(&opts.startupTimeout, "timeout", base.Container.StartupTimeout, "how long to wait for the container to accept connections")
	fs.StringVar(&opts.logFormat, "log-format", base.Log.Format, "log format: pretty or json")
	fs.StringVar(&opts.logLevel, "log-level", base.Log.Level, "log level: debug, info, warn or error")
	fs.BoolVar(&opts.version, "version", false, "Print version information")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if opts.startupTimeout <= 0 {
		return options{}, fmt.Errorf("-timeout must be positive, got %s", opts.startupTimeout)
	}
	return opts, nil
}

func (o options) containerOptions(metrics *observability.Metrics) []dbcontainer.Option {
	return []dbcontainer.Option{
		dbcontainer.WithImage(o.image),
		dbcontainer.WithDatabase(o.database),
		dbcontainer.WithUsername(o.username),
		dbcontainer.WithPassword(o.password),
		dbcontainer.WithStartupTimeout(o.startupTimeout),
		dbcontainer.WithMetrics(metrics),
	}
}

func main() {
	base, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	opts, err := parseFlags(os.Args[1:], base, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if opts.version {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	if _, err := logging.Setup(os.Stderr, logging.Options{Format: opts.logFormat, Level: opts.logLevel}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	runID := uuid.NewString()
	slog.Info("starting pgsmoke",
		"run_id", runID,
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	ctx, stop := signal.NotifyContext(dbcontainer.ContextWithRunID(context.Background(), runID), syscall.SIGINT, syscall.SIGTERM)
	date, err := run(ctx, metrics, opts.containerOptions(metrics)...)
	stop()

	logSummary(reg)

	if err != nil {
		slog.Error("smoke test failed", "error", err)
		os.Exit(1)
	}
	slog.Info("smoke test passed", "current_date", date)
}

// run performs one full smoke cycle and returns the database's current date.
// The container is stopped on every path, including cancellation.
func run(ctx context.Context, metrics *observability.Metrics, opts ...dbcontainer.Option) (date string, err error) {
	f := fixture.New(opts...)
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if terr := f.Teardown(tctx); terr != nil {
			err = errors.Join(err, fmt.Errorf("teardown: %w", terr))
		}
	}()

	if err := f.Setup(ctx); err != nil {
		return "", err
	}

	cfg, err := f.Config()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	a, err := app.New(ctx, app.Config{AppConfig: cfg, Metrics: metrics})
	if err != nil {
		return "", fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		if serr := a.Shutdown(context.Background()); serr != nil {
			err = errors.Join(err, serr)
		}
	}()

	store := a.Storage()
	if err := store.Execute(ctx, queryPing); err != nil {
		return "", err
	}

	date, err = store.QueryScalar(ctx, queryDate)
	if err != nil {
		return "", err
	}
	if _, perr := time.Parse(time.DateOnly, date); perr != nil {
		return "", fmt.Errorf("%s returned %q, not a date: %w", queryDate, date, perr)
	}
	return date, nil
}

func logSummary(g prometheus.Gatherer) {
	samples, err := observability.Counters(g)
	if err != nil {
		slog.Warn("failed to gather metrics", "error", err)
		return
	}
	for _, s := range samples {
		slog.Info("metric", "name", s.Name, "labels", formatLabels(s.Labels), "value", s.Value)
	}
}

func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+labels[k])
	}
	return strings.Join(parts, ",")
}
