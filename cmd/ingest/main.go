package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/tubechat/internal/bootstrap"
	"github.com/timmy/tubechat/internal/config"
	"github.com/timmy/tubechat/internal/domain"
	"github.com/timmy/tubechat/internal/logger"
	"github.com/timmy/tubechat/internal/source"
	"github.com/timmy/tubechat/internal/telemetry"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "tubechat-ingest",
	})
	logger.SetDefaultLogger(appLogger)

	videoURL := flag.String("video", "", "Video URL or id to ingest (defaults to ingest.video_url)")
	policy := flag.String("policy", "", "Re-ingest policy: append or replace (defaults to ingest.policy)")
	refresh := flag.Bool("refresh", false, "Drop the archived transcript and fetch it again")
	listJobs := flag.Int("jobs", 0, "List the N most recent ingest jobs instead of ingesting")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if *policy != "" {
		cfg.Ingest.Policy = *policy
	}
	target := *videoURL
	if target == "" {
		target = cfg.Ingest.VideoURL
	}
	if target == "" && *listJobs == 0 {
		logger.Fatal("No video to ingest: pass -video or set VIDEO_URL")
	}

	shutdownTracing, err := telemetry.Init(cfg.Tracing)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize tracing")
	}
	defer shutdownTracing(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Build(ctx, cfg, bootstrap.Options{})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize services")
	}
	defer components.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	if *listJobs > 0 {
		jobs, err := components.Jobs.ListRecent(ctx, *listJobs)
		if err != nil {
			appLogger.WithError(err).Error("Failed to list ingest jobs")
			return
		}
		for _, job := range jobs {
			appLogger.WithFields(logger.Fields{
				logger.FieldJobID:   job.ID,
				logger.FieldVideoID: job.VideoID,
				logger.FieldStatus:  job.Status,
				logger.FieldCount:   job.ChunkCount,
				"batch":             job.Batch,
				"created_at":        job.CreatedAt,
			}).Info("Ingest job")
		}
		return
	}

	if *refresh {
		evictArchived(ctx, components.Source, target, appLogger)
	}

	appLogger.WithFields(logger.Fields{
		"video":  target,
		"policy": cfg.Ingest.Policy,
	}).Info("Starting ingestion")

	result, err := components.Ingest.Ingest(ctx, target)
	if err != nil {
		appLogger.WithError(err).WithField(logger.FieldErrorKind, domain.ErrorKind(err)).Error("Ingestion failed")
		components.Close()
		os.Exit(1)
	}

	appLogger.WithFields(logger.Fields{
		logger.FieldVideoID: result.VideoID,
		logger.FieldCount:   result.Chunks,
		"batch":             result.Batch,
	}).Info("Ingestion completed")
}

// evictArchived removes the cached transcript of target when the configured
// source keeps one. Failures only log; ingestion proceeds either way.
func evictArchived(ctx context.Context, src source.Source, target string, log *logger.Logger) {
	evicter, ok := src.(source.Evicter)
	if !ok {
		log.Info("Transcript archive disabled, nothing to refresh")
		return
	}
	videoID, err := source.ExtractVideoID(target)
	if err != nil {
		// Ingest reports the invalid URL.
		return
	}
	if err := evicter.Evict(ctx, videoID); err != nil {
		log.WithError(err).Warn("Failed to drop archived transcript")
		return
	}
	log.WithField(logger.FieldVideoID, videoID).Info("Archived transcript dropped")
}
