package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/studyplus/tracker/internal/analytics"
	"github.com/studyplus/tracker/internal/api"
	"github.com/studyplus/tracker/internal/auth"
	"github.com/studyplus/tracker/internal/config"
	"github.com/studyplus/tracker/internal/db"
	"github.com/studyplus/tracker/internal/health"
	"github.com/studyplus/tracker/internal/jobs"
	"github.com/studyplus/tracker/internal/library"
	"github.com/studyplus/tracker/internal/middleware"
	"github.com/studyplus/tracker/internal/note"
	"github.com/studyplus/tracker/internal/playlist"
	"github.com/studyplus/tracker/internal/searchcache"
	"github.com/studyplus/tracker/internal/tracing"
	"github.com/studyplus/tracker/internal/video"
	"github.com/studyplus/tracker/internal/watch"
	"github.com/studyplus/tracker/internal/youtube"
	"github.com/studyplus/tracker/migrations"
)

// rateLimitCleanupInterval is how often the in-memory limiter drops expired windows.
const rateLimitCleanupInterval = 5 * time.Minute

// stores groups the persistence layer so the server can run on Postgres
// or entirely in memory.
type stores struct {
	videos    video.Repository
	notes     note.Repository
	playlists playlist.Repository
	watch     watch.Store
}

func memoryStores() stores {
	videos := video.NewInMemoryRepository()
	return stores{
		videos:    videos,
		notes:     note.NewInMemoryRepository(videos),
		playlists: playlist.NewInMemoryRepository(videos),
		watch:     watch.NewInMemoryStore(videos),
	}
}

func postgresStores(conn *sql.DB, logger *slog.Logger) stores {
	return stores{
		videos:    video.NewPostgresRepository(conn),
		notes:     note.NewPostgresRepository(conn),
		playlists: playlist.NewPostgresRepository(conn),
		watch:     watch.NewPostgresStore(conn, logger),
	}
}

// app is a fully wired API server.
type app struct {
	handler http.Handler
	jobs    []*jobs.Job
	closers []func(context.Context) error
	logger  *slog.Logger
}

// newApp connects to the configured backends and builds the HTTP handler.
// Without DATABASE_URL every store lives in memory; without REDIS_URL the
// rate limiter and search cache do too.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:    tracing.DefaultServiceName,
		ServiceVersion: version,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		ExporterType:   cfg.TracingExporter,
		OTLPEndpoint:   cfg.TracingEndpoint,
		SamplingRate:   cfg.TracingSamplingRate,
		InsecureMode:   cfg.TracingInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.closers = append(a.closers, tp.Shutdown)

	reg := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	ytMetrics := youtube.NewMetrics()
	watchMetrics := watch.NewMetrics()
	cacheMetrics := searchcache.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	for name, register := range map[string]func(prometheus.Registerer) error{
		"http":        httpMetrics.Register,
		"youtube":     ytMetrics.Register,
		"watch":       watchMetrics.Register,
		"searchcache": cacheMetrics.Register,
		"jobs":        jobMetrics.Register,
	} {
		if err := register(reg); err != nil {
			return nil, fmt.Errorf("failed to register %s metrics: %w", name, err)
		}
	}

	healthCfg := api.HealthHandlersConfig{}

	var st stores
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return conn.Close() })

		applied, err := db.Migrate(ctx, conn, migrations.FS)
		if err != nil {
			return nil, err
		}
		logger.Info("database ready", "migrations_applied", applied)

		st = postgresStores(conn, logger)
		healthCfg.DBChecker = health.NewDBChecker(conn)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		st = memoryStores()
	}

	var (
		limitStore middleware.RateLimitStore
		cache      searchcache.Cache
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })

		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		limitStore = middleware.NewRedisRateLimitStore(client).WithMetrics(httpMetrics)
		cache = searchcache.NewRedisCache(client)
		healthCfg.RedisChecker = health.NewRedisChecker(client)
	} else {
		memLimit := middleware.NewInMemoryRateLimitStore()
		limitStore = memLimit
		cache = searchcache.NewInMemoryCache()
		a.jobs = append(a.jobs, jobs.New(jobs.Config{
			Type:     jobs.JobTypeRateLimitCleanup,
			Interval: rateLimitCleanupInterval,
			Logger:   logger,
			Metrics:  jobMetrics,
		}, jobs.RateLimitCleanup(memLimit)))
	}

	yt := youtube.NewClient(cfg.YouTubeAPIKey, youtube.WithMetrics(ytMetrics))
	healthCfg.YouTubeChecker = health.NewYouTubeChecker(yt.BaseURL(), yt.Configured())
	if !yt.Configured() {
		logger.Warn("YOUTUBE_API_KEY not set, search and imports are disabled")
	}

	importer := library.NewImporter(st.videos, st.playlists, yt, library.WithLogger(logger))
	searcher := searchcache.NewSearcher(cache, yt, cfg.SearchCacheTTL, cacheMetrics)
	broadcaster := watch.NewBroadcaster()
	engine := watch.NewEngine(st.watch,
		watch.WithMergeWindow(cfg.WatchMergeWindow),
		watch.WithPublisher(broadcaster),
		watch.WithMetrics(watchMetrics),
	)
	stats := analytics.NewService(st.watch, st.videos, analytics.WithAllowYesterday(cfg.StreakAllowYesterday))

	mux := api.NewRouter(api.RouterConfig{
		Auth:           auth.NewService(cfg.JWTSecret, auth.WithPreviousSecret(cfg.JWTPreviousSecret)),
		RateLimitStore: limitStore,
		SearchLimit: middleware.RateLimitConfig{
			RequestsPerWindow: cfg.SearchRateLimit,
			WindowDuration:    time.Minute,
		},
		Metrics:        httpMetrics,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Health:         api.NewHealthHandlers(healthCfg),
		Videos:         api.NewVideoHandlers(st.videos, st.notes, importer, yt.Configured()),
		History:        api.NewHistoryHandlers(engine, stats),
		Notes:          api.NewNoteHandlers(st.notes, st.videos),
		Playlists:      api.NewPlaylistHandlers(st.playlists, st.videos, importer),
		Search:         api.NewSearchHandlers(searcher),
		Progress:       api.NewProgressHandlers(broadcaster, cfg.CORSAllowedOrigins),
	})

	a.handler = api.Wrap(mux, api.MiddlewareConfig{
		Logger:      logger,
		ServiceName: tracing.DefaultServiceName,
		Metrics:     httpMetrics,
		CORSOrigins: cfg.CORSAllowedOrigins,
	})

	a.jobs = append(a.jobs, jobs.New(jobs.Config{
		Type:     jobs.JobTypeSearchCacheCleanup,
		Interval: cfg.CacheCleanupInterval,
		Logger:   logger,
		Metrics:  jobMetrics,
	}, jobs.SearchCacheCleanup(searcher, logger)))

	if yt.Configured() {
		a.jobs = append(a.jobs, jobs.New(jobs.Config{
			Type:     jobs.JobTypeDurationRefresh,
			Interval: cfg.DurationRefreshPeriod,
			Logger:   logger,
			Metrics:  jobMetrics,
		}, jobs.DurationRefresh(importer, jobs.DefaultRefreshBatch, logger)))
	}

	return a, nil
}

// startJobs launches every background job. Jobs stop when ctx is cancelled
// or when close is called.
func (a *app) startJobs(ctx context.Context) error {
	for _, j := range a.jobs {
		if err := j.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// close stops jobs and releases backends in reverse order of acquisition.
func (a *app) close(ctx context.Context) {
	for _, j := range a.jobs {
		j.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Error("failed to release resource", "error", err)
		}
	}
}
