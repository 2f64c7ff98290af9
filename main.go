package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"propflow/archive"
	"propflow/config"
	"propflow/engine"
	"propflow/feed"
	"propflow/internal/api"
	"propflow/internal/channel"
	"propflow/logger"
	"propflow/mirror"
	"propflow/processor"
	"propflow/store"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Propflow.Name,
		"version":     cfg.Propflow.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting propflow")

	if os.Getenv("CLOUDWATCH_METRICS") == "true" {
		logger.InitCloudWatch(cfg.Storage.S3.Region, cfg.Propflow.Name, cfg.Logging.DashboardName)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Ops.ReportInterval > 0 {
		logger.StartReport(ctx, log, cfg.Ops.ReportInterval)
	}

	channels := channel.NewChannels(cfg.Channels)
	defer channels.Close()

	channels.StartMetricsReporting(ctx)

	source, err := feed.NewSource(cfg)
	if err != nil {
		log.WithError(err).Error("failed to create feed source")
		os.Exit(1)
	}

	snapshots := store.New()
	queryService := engine.NewService(snapshots)

	feedReader := feed.NewReader(cfg, source, channels)
	normalizer := processor.NewNormalizer(cfg, channels)
	assembler := processor.NewAssembler(cfg, channels, snapshots)

	var perfWatcher *feed.PerfWatcher
	if cfg.Ingest.Performance.Enabled {
		perfWatcher = feed.NewPerfWatcher(cfg, source, channels)
	} else {
		log.WithComponent("main").Info("performance watcher disabled")
	}

	var snapshotMirror *mirror.Mirror
	if cfg.Mirror.Enabled {
		snapshotMirror = mirror.NewMirror(cfg, channels)
	} else {
		log.WithComponent("main").Info("redis mirror disabled")
	}

	var archiver *archive.Archiver
	if cfg.Archive.Enabled {
		archiver, err = archive.NewArchiver(cfg, channels)
		if err != nil {
			log.WithError(err).Error("failed to create archiver")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("parquet archiver disabled")
	}

	apiServer, err := api.NewServer(cfg, queryService, snapshots, log)
	if err != nil {
		log.WithError(err).Error("failed to create api server")
		os.Exit(1)
	}
	if apiServer == nil {
		log.WithComponent("main").Info("api server disabled")
	} else {
		apiServer.RegisterComponent("feed_reader", func() interface{} { return feedReader.Stats() })
		if archiver != nil {
			apiServer.RegisterComponent("archiver", func() interface{} { return archiver.Stats() })
		}
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feedReader.Start(ctx); err != nil {
			log.WithError(err).Warn("feed reader failed to start")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := normalizer.Start(ctx); err != nil {
			log.WithError(err).Warn("normalizer failed to start")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := assembler.Start(ctx); err != nil {
			log.WithError(err).Warn("assembler failed to start")
		}
	}()

	if perfWatcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := perfWatcher.Start(ctx); err != nil {
				log.WithError(err).Warn("performance watcher failed to start")
			}
		}()
	}

	if snapshotMirror != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := snapshotMirror.Start(ctx); err != nil {
				log.WithError(err).Warn("redis mirror failed to start")
			}
		}()
	}

	if archiver != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := archiver.Start(ctx); err != nil {
				log.WithError(err).Warn("archiver failed to start")
			}
		}()
	}

	if apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiServer.Run(ctx); err != nil {
				log.WithError(err).Error("api server exited with error")
			}
		}()
	}

	time.Sleep(2 * time.Second)
	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	// Producers stop first so no new work enters the pipeline, then the
	// processors drain, then the snapshot consumers flush.
	log.Info("stopping feed reader")
	feedReader.Stop()

	if perfWatcher != nil {
		log.Info("stopping performance watcher")
		perfWatcher.Stop()
	}

	log.Info("stopping normalizer")
	normalizer.Stop()

	log.Info("stopping assembler")
	assembler.Stop()

	if snapshotMirror != nil {
		log.Info("stopping redis mirror")
		snapshotMirror.Stop()
	}

	if archiver != nil {
		log.Info("stopping archiver")
		archiver.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("propflow stopped")
}
