package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/socify/socify_downloader/internal/cleanup"
	"github.com/socify/socify_downloader/internal/config"
	"github.com/socify/socify_downloader/internal/downloader"
	"github.com/socify/socify_downloader/internal/extractor"
	"github.com/socify/socify_downloader/internal/intake"
	"github.com/socify/socify_downloader/internal/logctx"
	"github.com/socify/socify_downloader/internal/notifier"
	"github.com/socify/socify_downloader/internal/orchestrator"
	"github.com/socify/socify_downloader/internal/telemetry"
	"github.com/socify/socify_downloader/internal/workflow"
)

const (
	serviceName = "socify"
	// Part files this old cannot belong to a live retrieval.
	stalePartAge = time.Hour
)

// app is one wired session: a single workflow state shared by the collector and the orchestrator.
type app struct {
	cfg          *config.Config
	telemetry    *telemetry.Telemetry
	store        *workflow.Store
	collector    *intake.Collector
	orchestrator *orchestrator.Orchestrator
	dispatcher   *notifier.Dispatcher
}

// newLogger builds the JSON logger every command logs through.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()})

	return slog.New(logctx.NewTraceHandler(handler))
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: Version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		ExportInterval: cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	// =========================================================================
	// Start Cleanup
	if n, err := cleanup.RemoveStaleParts(ctx, cfg.TargetDir, downloader.PartPattern, stalePartAge); err != nil {
		logger.Warn("failed to remove stale part files", "dir", cfg.TargetDir, "err", err)
	} else if n > 0 {
		logger.Info("removed stale part files", "count", n)
	}

	// =========================================================================
	// Start Workflow
	store := workflow.NewStore()

	dl := downloader.NewDownloader(cfg.TargetDir, nil, tel)
	dl.LimitRate(cfg.MaxBytesPerSecond)

	o := orchestrator.NewOrchestrator(
		store,
		extractor.NewClient(cfg.APIURL, nil),
		dl,
		cfg.AutoSaveDelay,
		cfg.MaxParallel,
		tel,
	)

	a := &app{
		cfg:          cfg,
		telemetry:    tel,
		store:        store,
		collector:    intake.NewCollector(store),
		orchestrator: o,
	}

	// =========================================================================
	// Start Notification
	if cfg.DiscordWebhookURL != "" {
		a.dispatcher = notifier.NewDispatcher(notifier.NewDiscordNotifier(cfg.DiscordWebhookURL, nil, tel))

		store.Subscribe(a.dispatcher.OnTransition)
		o.OnRetrieval(a.dispatcher.OnRetrieval)

		logger.Info("discord notifications enabled")
	}

	logger.Debug("session wired",
		"api_url", cfg.APIURL,
		"target_dir", cfg.TargetDir,
		"auto_save_delay", cfg.AutoSaveDelay.String(),
		"max_parallel", cfg.MaxParallel,
		"max_bytes_per_second", cfg.MaxBytesPerSecond,
	)

	return a, nil
}

// drain waits for background retrievals and notifications, then flushes telemetry.
func (a *app) drain(ctx context.Context) {
	a.orchestrator.Wait()

	if a.dispatcher != nil {
		a.dispatcher.Wait()
	}

	if err := a.telemetry.Shutdown(ctx); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to shutdown telemetry", "err", err)
	}
}
