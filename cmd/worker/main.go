package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"glance/internal/audit"
	"glance/internal/cache"
	"glance/internal/httpapi/util"
	"glance/internal/pkg/logger"
	"glance/internal/pkg/shutdown"
	"glance/internal/queue"
	"glance/internal/queue/jobstore"
	"glance/internal/render"
	"glance/internal/storage"
	"glance/internal/worker"
	"glance/internal/worker/processor"
)

func main() {
	_ = godotenv.Load()

	log := logger.New(logger.Config{
		Level:       util.Env("LOG_LEVEL", "info"),
		Format:      util.Env("LOG_FORMAT", "json"),
		ServiceName: "glance-worker",
	})

	log.Info("starting glance worker", "version", "0.1.0")

	dbURL := util.MustEnv("DATABASE_URL")
	redisAddr := util.MustEnv("REDIS_ADDR")
	queueName := util.Env("JOB_QUEUE_NAME", "glance:jobs")

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	if err := pool.Ping(ctx); err != nil {
		log.LogFatal("failed to ping PostgreSQL", err)
	}
	shutdownMgr.Register("postgres", func(ctx context.Context) error {
		pool.Close()
		return nil
	})

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})

	store, err := storage.NewStore()
	if err != nil {
		log.LogFatal("failed to initialize object store", err)
	}
	log.Info("object store initialized", "provider", store.Provider())

	pipeline := render.New(render.NewExecRunner(), render.Config{
		PDFTool:      util.Env("PDF_TOOL", "pdftoppm"),
		DocTool:      util.Env("DOC_TOOL", "soffice"),
		PDFTimeout:   util.DurationEnv("PDF_RENDER_TIMEOUT", 5*time.Second),
		DocTimeout:   util.DurationEnv("DOC_CONVERT_TIMEOUT", 20*time.Second),
		JPEGQuality:  util.IntEnv("JPEG_QUALITY", 85),
		MaxDimension: util.IntEnv("MAX_DIMENSION", 1200),
	}, log)

	jobs := jobstore.NewPostgres(pool)
	emitter := audit.NewStreamEmitter(rdb, util.Env("AUDIT_STREAM", "glance:audit"), log)

	proc := processor.New(processor.Deps{
		Pipeline:       pipeline,
		Store:          store,
		Cache:          cache.NewWriter(store),
		Jobs:           jobs,
		Audit:          emitter,
		MaxSourceBytes: util.Int64Env("MAX_SOURCE_BYTES", processor.DefaultMaxSourceBytes),
		Log:            log,
	})

	wpool := worker.NewPool(worker.Deps{
		Queue:       queue.NewRedisQueue(rdb, queueName, log),
		Jobs:        jobs,
		Exec:        proc,
		Concurrency: util.IntEnv("WORKER_CONCURRENCY", worker.DefaultConcurrency),
		MaxAttempts: util.IntEnv("JOB_MAX_ATTEMPTS", worker.DefaultMaxAttempts),
		RetryBase:   util.DurationEnv("JOB_RETRY_BASE", 2*time.Second),
		Log:         log,
	})

	runCtx, cancelRun := context.WithCancel(ctx)
	runExited := make(chan struct{})
	go func() {
		defer close(runExited)
		if err := wpool.Run(runCtx); err != nil && runCtx.Err() == nil {
			log.LogFatal("worker pool failed", err)
		}
	}()

	// Registered last so it runs first: the pool drains before its broker
	// and database connections close underneath it.
	shutdownMgr.Register("worker-pool", func(ctx context.Context) error {
		cancelRun()
		select {
		case <-runExited:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	shutdownMgr.Wait()
}
