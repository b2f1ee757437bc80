// Package main implements a Cloud Run service that watches Advent of Code
// leaderboards and announces completions, heroes and daily statistics.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aoc-notifier/config"
	"aoc-notifier/metrics"
	"aoc-notifier/notify"
	"aoc-notifier/poll"
	"aoc-notifier/scraper"
	"aoc-notifier/server"
	"aoc-notifier/storage"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	configPath := os.Getenv("AOC_CONFIG")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if lvl, err := cfg.Level(); err == nil {
		level.Set(lvl)
	}

	// Cloud Run sets PORT
	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	if err := run(ctx, cfg, level, configPath, logger); err != nil {
		logger.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, level *slog.LevelVar, configPath string, logger *slog.Logger) error {
	// Default to local development mode if no bucket specified
	if cfg.StorageBucket == "" && cfg.LocalStorage == "" {
		cfg.LocalStorage = "./data"
		logger.Info("No storage bucket set, defaulting to local development mode", "storage_path", cfg.LocalStorage)
	}

	var storageClient *gcs.Client
	if cfg.LocalStorage != "" {
		if err := os.MkdirAll(cfg.LocalStorage, 0o750); err != nil {
			return err
		}
		logger.Info("Using local storage", "storage_path", cfg.LocalStorage)
	} else {
		var err error
		storageClient, err = gcs.NewClient(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}()
	}
	store := storage.New(storageClient, cfg.StorageBucket, cfg.LocalStorage, logger)

	provider := notificationProvider(ctx, cfg, logger)
	sender := notify.New(provider, logger)

	recorder := metrics.New()
	fetcher := scraper.New(&http.Client{Timeout: 30 * time.Second}, logger, cfg.BaseURL, cfg.Session)
	monitor := poll.New(fetcher, store, sender, recorder, logger, poll.Settings{
		Year:        cfg.Year,
		BoardID:     cfg.BoardID,
		MinInterval: config.MinPollInterval,
	})

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, logger, func(next *config.Config) {
				if lvl, err := next.Level(); err == nil {
					level.Set(lvl)
				}
			})
			if err != nil {
				logger.Warn("Config watch stopped", "error", err)
			}
		}()
	}

	if cfg.PollInterval > 0 {
		go pollLoop(ctx, monitor, cfg.PollInterval, logger)
	}

	srv := server.New(&server.Config{
		Store:   store,
		Poller:  monitor,
		Metrics: recorder.Handler(),
		Logger:  logger,
		BoardID: cfg.BoardID,
		Year:    cfg.Year,
	})
	if err := srv.ListenAndServe(ctx, cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func pollLoop(ctx context.Context, monitor *poll.Monitor, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Polling leaderboards", "interval", interval.String())
	for {
		if err := monitor.CheckAll(ctx); err != nil {
			logger.Error("Poll cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// notificationProvider picks Slack, then Gmail, then the mock provider.
func notificationProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) notify.Provider {
	if cfg.SlackWebhook != "" {
		logger.Info("Sending notifications to Slack")
		return notify.NewSlackProvider(cfg.SlackWebhook, nil, logger)
	}
	if cfg.NotifyEmail != "" {
		service, err := initGmailService(ctx, cfg.GoogleCredentialsJSON)
		if err == nil {
			logger.Info("Sending notifications by email", "to", cfg.NotifyEmail)
			return notify.NewGmailProvider(service, cfg.NotifyEmail, logger)
		}
		logger.Warn("Failed to initialize Gmail service, using mock notifications", "error", err)
	}
	logger.Info("Mock notification mode enabled")
	return notify.NewMockProvider(logger)
}

// isCloudRun checks if we're running in a GCP environment by querying the metadata server.
func isCloudRun(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://metadata.google.internal/computeMetadata/v1/project/project-id", http.NoBody)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}

func initGmailService(ctx context.Context, credsJSON string) (*gmail.Service, error) {
	if credsJSON != "" {
		return gmail.NewService(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}

	// Application Default Credentials of the service account need the
	// gmail.send scope
	if isCloudRun(ctx) {
		return gmail.NewService(ctx)
	}

	return nil, errors.New("google_credentials_json required when not running in Cloud Run")
}
