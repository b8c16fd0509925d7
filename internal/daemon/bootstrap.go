package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"needledrop/internal/analysis"
	"needledrop/internal/config"
	"needledrop/internal/converter"
	"needledrop/internal/deps"
	"needledrop/internal/downloader"
	"needledrop/internal/httpapi"
	"needledrop/internal/logging"
	"needledrop/internal/jobqueue"
	"needledrop/internal/jobstatus"
	"needledrop/internal/pipeline"
	"needledrop/internal/search"
	"needledrop/internal/services"
	"needledrop/internal/services/ffmpeg"
	"needledrop/internal/services/freyr"
	"needledrop/internal/services/scdl"
	"needledrop/internal/services/spotdl"
	"needledrop/internal/services/ytdlp"
	"needledrop/internal/settings"
	"needledrop/internal/tracks"
)

// Build wires every component from configuration and returns a daemon
// ready to Start.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare directories: %w", err)
	}

	for _, status := range deps.CheckBinaries(deps.Requirements(cfg.Downloaders)) {
		if status.Available {
			continue
		}
		if status.Optional {
			logger.Warn("optional tool unavailable",
				logging.FieldTool, status.Name, "detail", status.Detail)
			continue
		}
		return nil, fmt.Errorf("%w: required tool %s unavailable: %s",
			services.ErrConfiguration, status.Name, status.Detail)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("connect redis at %s: %w", cfg.Redis.Addr, err)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	var indexer search.Indexer = search.Disabled{}
	if cfg.Search.Enabled {
		client, err := search.New(cfg.Search.URL, cfg.Search.APIKey, cfg.Search.Index)
		if err != nil {
			pool.Close()
			redisClient.Close()
			return nil, fmt.Errorf("configure search: %w", err)
		}
		indexer = client
	}

	trackStore, err := tracks.NewStore(pool, indexer, logger)
	if err != nil {
		pool.Close()
		redisClient.Close()
		return nil, err
	}
	settingsStore, err := settings.NewStore(pool)
	if err != nil {
		pool.Close()
		redisClient.Close()
		return nil, err
	}
	statusStore, err := jobstatus.NewStore(redisClient, settingsStore, logger)
	if err != nil {
		pool.Close()
		redisClient.Close()
		return nil, err
	}

	strategy, err := buildStrategy(cfg, logger)
	if err != nil {
		pool.Close()
		redisClient.Close()
		return nil, err
	}
	ffmpegClient, err := ffmpeg.New(cfg.Downloaders.FfmpegBin)
	if err != nil {
		pool.Close()
		redisClient.Close()
		return nil, fmt.Errorf("configure ffmpeg: %w", err)
	}
	conv, err := converter.New(cfg.Paths.AudioDir, ffmpegClient, logger)
	if err != nil {
		pool.Close()
		redisClient.Close()
		return nil, err
	}
	analyzer, err := analysis.New(cfg.Analysis.ServiceURL, cfg.Analysis.AudioBaseURL, cfg.Analysis.TimeoutSeconds)
	if err != nil {
		pool.Close()
		redisClient.Close()
		return nil, fmt.Errorf("configure analysis client: %w", err)
	}

	downloadQueue, err := jobqueue.NewQueue(pipeline.QueueDownload, redisClient, queueSettings(cfg.Queues.Download), logger)
	if err != nil {
		pool.Close()
		redisClient.Close()
		return nil, err
	}
	analyzeQueue, err := jobqueue.NewQueue(pipeline.QueueAnalyze, redisClient, queueSettings(cfg.Queues.Analyze), logger)
	if err != nil {
		pool.Close()
		redisClient.Close()
		return nil, err
	}

	downloadHandler := pipeline.NewDownloadHandler(strategy, conv, analyzeQueue, downloadQueue, logger)
	analyzeHandler := pipeline.NewAnalyzeHandler(cfg.Paths.AudioDir, analyzer, trackStore, conv, analyzeQueue, logger)

	downloadPool, err := jobqueue.NewPool(downloadQueue, downloadHandler, poolOptions(cfg.Queues.Download, logger))
	if err != nil {
		pool.Close()
		redisClient.Close()
		return nil, err
	}
	analyzePool, err := jobqueue.NewPool(analyzeQueue, analyzeHandler, poolOptions(cfg.Queues.Analyze, logger))
	if err != nil {
		pool.Close()
		redisClient.Close()
		return nil, err
	}

	server, err := httpapi.New(downloadQueue, analyzeQueue, statusStore, settingsStore, cfg.Paths.AudioDir, logger)
	if err != nil {
		pool.Close()
		redisClient.Close()
		return nil, err
	}

	return New(cfg, logger, Components{
		Server: server,
		Pools:  []*jobqueue.Pool{downloadPool, analyzePool},
		Closers: []func(){
			pool.Close,
			func() { _ = redisClient.Close() },
		},
	})
}

func buildStrategy(cfg *config.Config, logger *slog.Logger) (*downloader.Strategy, error) {
	timeout := cfg.Downloaders.TimeoutSeconds
	freyrClient, err := freyr.New(cfg.Downloaders.FreyrBin, timeout)
	if err != nil {
		return nil, fmt.Errorf("configure freyr: %w", err)
	}
	spotdlClient, err := spotdl.New(cfg.Downloaders.SpotdlBin, timeout)
	if err != nil {
		return nil, fmt.Errorf("configure spotdl: %w", err)
	}
	ytdlpClient, err := ytdlp.New(cfg.Downloaders.YtdlpBin, timeout)
	if err != nil {
		return nil, fmt.Errorf("configure yt-dlp: %w", err)
	}
	scdlClient, err := scdl.New(cfg.Downloaders.ScdlBin, timeout)
	if err != nil {
		return nil, fmt.Errorf("configure scdl: %w", err)
	}
	return downloader.NewStrategy(cfg.Paths.TmpDir, freyrClient, spotdlClient, ytdlpClient, scdlClient, logger), nil
}

func queueSettings(qs config.QueueSettings) jobqueue.Settings {
	return jobqueue.Settings{
		Attempts:      qs.Attempts,
		BackoffMillis: qs.BackoffMillis,
		KeepCompleted: qs.KeepCompleted,
		KeepFailed:    qs.KeepFailed,
	}
}

func poolOptions(qs config.QueueSettings, logger *slog.Logger) jobqueue.PoolOptions {
	return jobqueue.PoolOptions{
		Concurrency:  qs.Concurrency,
		PollInterval: time.Duration(qs.PollIntervalMS) * time.Millisecond,
		Logger:       logger,
	}
}
