// Command gitops-sync runs the reconciliation daemon: it loads the sync
// configuration, ensures the git workspace, and reconciles the cluster
// against it on a timer until an interrupt or terminate signal arrives.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nimbusdeploy/gitops-sync/internal/config"
	"github.com/nimbusdeploy/gitops-sync/internal/engine"
	"github.com/nimbusdeploy/gitops-sync/internal/gitrepo"
	"github.com/nimbusdeploy/gitops-sync/internal/health"
	"github.com/nimbusdeploy/gitops-sync/internal/lifecycle"
	"github.com/nimbusdeploy/gitops-sync/internal/procexec"
	"github.com/nimbusdeploy/gitops-sync/internal/release"
	"github.com/nimbusdeploy/gitops-sync/internal/report"
)

const defaultWorkspaceDir = "/tmp/gitops-repo"
const defaultMetricsAddr = "127.0.0.1:9090"

var (
	configPath string
	logFormat  string
	once       bool
)

var rootCmd = &cobra.Command{
	Use:   "gitops-sync",
	Short: "Reconcile a Kubernetes cluster against a Git repository via Helm",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to the sync config file")
	rootCmd.Flags().StringVar(&logFormat, "log-format", "", "human|machine, defaults to an isatty probe")
	rootCmd.Flags().BoolVar(&once, "once", false, "run exactly one reconciliation cycle and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	format := report.Format(logFormat)
	if format == "" {
		format = report.DetectFormat()
	}
	logger := report.NewLogger(format, slog.LevelInfo)

	if configPath == "" {
		logger.Error("no config path provided: set --config or CONFIG_PATH")
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("fatal: config load failed", "error", err.Error())
		os.Exit(1)
	}

	lock := lifecycle.NewProcessLock(os.TempDir())
	if err := lock.Acquire(); err != nil {
		logger.Error("fatal: process lock held by another instance", "error", err.Error())
		os.Exit(1)
	}
	defer lock.Release()

	workspaceDir := defaultWorkspaceDir
	runner := procexec.NewExecRunner()
	ws := gitrepo.New(runner, cfg.Git.Repository, cfg.Git.Branch, workspaceDir, 0)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := ws.Ensure(ctx); err != nil {
		logger.Error("fatal: could not prepare git workspace", "error", err.Error())
		os.Exit(1)
	}

	prober := health.NewProber(runner, "kubectl", health.Policy{
		Retries:        cfg.HealthCheck.Retries,
		InitialDelayMs: cfg.HealthCheck.InitialDelayMs,
		BackoffFactor:  cfg.HealthCheck.BackoffFactor,
		MaxDelayMs:     cfg.HealthCheck.MaxDelayMs,
	})
	driver := release.NewDriver(runner, "helm", ws.Path(), cfg.Sync.AutoRollback, cfg.Sync.DryRun, prober, cfg.HealthCheck.Enabled)
	eng := engine.New(cfg, ws, driver)

	registry := prometheus.NewRegistry()
	metrics := report.NewMetrics(registry)
	reporter := report.NewReporter(logger, metrics)
	eng.OnDrop(reporter.TickDropped)

	if addr := metricsAddr(cfg); addr != "" {
		startMetricsServer(ctx, logger, addr, registry)
	}

	svc := lifecycle.NewService(tickerFunc(func(ctx context.Context) {
		reporter.Cycle(eng.Tick(ctx))
	}), mustParseDuration(cfg.Sync.Interval))

	if once {
		svc.RunOnce(ctx)
		return nil
	}

	svc.Run(ctx)
	logger.Info("shutdown complete")
	return nil
}

type tickerFunc func(ctx context.Context)

func (f tickerFunc) Tick(ctx context.Context) { f(ctx) }

func mustParseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		// Load already validated this field through internal/validate's
		// duration grammar; a parse failure here would be an internal bug.
		panic(fmt.Sprintf("lifecycle: invalid interval %q survived validation: %v", s, err))
	}
	return d
}

func metricsAddr(cfg *config.Config) string {
	if cfg.Metrics.ListenAddr != "" {
		return cfg.Metrics.ListenAddr
	}
	return defaultMetricsAddr
}

func startMetricsServer(ctx context.Context, logger *report.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", "error", err.Error())
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
