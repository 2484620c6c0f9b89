// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neunovapdf-backend/internal/config"
	"neunovapdf-backend/internal/domain/model"
	"neunovapdf-backend/internal/domain/ports/adapter"
	"neunovapdf-backend/internal/infra/adapters/archive"
	"neunovapdf-backend/internal/infra/adapters/pdf"
	"neunovapdf-backend/internal/infra/adapters/raster"
	"neunovapdf-backend/internal/infra/api"
	"neunovapdf-backend/internal/infra/logging"
	"neunovapdf-backend/internal/infra/metrics"
	"neunovapdf-backend/internal/infra/quota"
	red "neunovapdf-backend/internal/infra/redis"
	"neunovapdf-backend/internal/infra/sched"
	"neunovapdf-backend/internal/infra/tool"
	"neunovapdf-backend/internal/infra/worker"
	"neunovapdf-backend/internal/infra/workspace"
	"neunovapdf-backend/internal/usecase"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", config.DefaultConfigPath, "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted identifiers)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
	logger.Info().Msg("bye")
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Scratch space ----
	if err := os.MkdirAll(cfg.Scratch.Root, 0o755); err != nil {
		return fmt.Errorf("scratch root: %w", err)
	}
	workspaces := workspace.NewManager(cfg.Scratch.Root, logger)

	// ---- Quota ----
	var (
		tracker adapter.QuotaTracker
		sweep   sched.SweepFunc
	)
	switch cfg.Quota.Backend {
	case "redis":
		client, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer client.Close()
		tracker = red.NewQuotaTracker(client, cfg.Quota.Window)
		logger.Info().Str("backend", "redis").Msg("quota tracker ready")
	default:
		mem, err := quota.NewMemoryTracker(cfg.Quota.Window, cfg.Quota.Capacity)
		if err != nil {
			return fmt.Errorf("quota: %w", err)
		}
		tracker = mem
		sweep = mem.Sweep
		logger.Info().Str("backend", "memory").Int("capacity", cfg.Quota.Capacity).Msg("quota tracker ready")
	}

	// ---- External tools ----
	// the pool outlives the signal: draining requests still need workers
	pool := worker.NewPool(cfg.Tools.Workers, cfg.Tools.Queue, logger)
	pool.Start(context.Background())
	defer pool.Stop()

	invoker := tool.NewInvoker(pool, tool.Options{
		Timeout:        cfg.Tools.Timeout,
		MaxOutputBytes: cfg.Tools.MaxOutputBytes,
	}, logger)

	// ---- Pipelines ----
	processor := usecase.NewProcessor(
		invoker,
		pdf.NewEngine(),
		raster.NewResizer(cfg.Image.JPEGQuality),
		archive.NewZip(),
		usecase.ToolPaths{
			Soffice:     cfg.Tools.Soffice,
			Ghostscript: cfg.Tools.Ghostscript,
			Pdftoppm:    cfg.Tools.Pdftoppm,
			Qpdf:        cfg.Tools.Qpdf,
		},
		usecase.ImageDefaults{
			Width:        cfg.Image.DefaultWidth,
			Height:       cfg.Image.DefaultHeight,
			MaxDimension: cfg.Image.MaxDimension,
		},
		logger,
	)
	runner := usecase.NewJobRunner(tracker, workspaces, processor, map[model.Family]int{
		model.FamilyDocument: cfg.Quota.Limits.Document,
		model.FamilyPDF:      cfg.Quota.Limits.PDF,
		model.FamilyImage:    cfg.Quota.Limits.Image,
	}, logger)

	// ---- HTTP ----
	opts := api.Options{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		RequestTimeout: cfg.Server.RequestTimeout,
		TrustProxy:     cfg.Server.TrustProxy,
		CORSOrigins:    cfg.Server.CORSOrigins,
		StaticDir:      cfg.Static.Dir,
		Dev:            cfg.Runtime.Dev,
	}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(runner, opts, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Str("scratch", workspaces.Root()).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown requested")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		pool.Stop()
		return err
	})

	// ---- Sweepers ----
	if sweep != nil {
		s := sched.NewSweeper("quota", cfg.Quota.SweepInterval, sweep, logger)
		g.Go(func() error { return ignoreCanceled(s.Run(gctx)) })
	}
	if cfg.Scratch.SweepInterval > 0 {
		s := sched.NewSweeper("workspace", cfg.Scratch.SweepInterval, func(ctx context.Context) (int, error) {
			return workspaces.Sweep(ctx, cfg.Scratch.MaxAge)
		}, logger)
		g.Go(func() error { return ignoreCanceled(s.Run(gctx)) })
	}

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
