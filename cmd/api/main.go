package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"glance/internal/audit"
	"glance/internal/cache"
	"glance/internal/httpapi"
	"glance/internal/httpapi/util"
	"glance/internal/pkg/logger"
	"glance/internal/pkg/shutdown"
	"glance/internal/ports"
	"glance/internal/queue"
	"glance/internal/queue/jobstore"
	"glance/internal/render"
	"glance/internal/storage"
	"glance/internal/worker/processor"
)

func main() {
	_ = godotenv.Load()

	log := logger.New(logger.Config{
		Level:       util.Env("LOG_LEVEL", "info"),
		Format:      util.Env("LOG_FORMAT", "json"),
		ServiceName: "glance-api",
	})

	log.Info("starting glance API", "version", "0.1.0")

	httpPort := util.Env("HTTP_PORT", "8080")
	redisAddr := util.Env("REDIS_ADDR", "localhost:6379")
	queueName := util.Env("JOB_QUEUE_NAME", "glance:jobs")

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	store, err := storage.NewStore()
	if err != nil {
		log.LogFatal("failed to initialize object store", err)
	}
	log.Info("object store initialized", "provider", store.Provider())
	writer := cache.NewWriter(store)

	pipeline := render.New(render.NewExecRunner(), render.Config{
		PDFTool:      util.Env("PDF_TOOL", "pdftoppm"),
		DocTool:      util.Env("DOC_TOOL", "soffice"),
		PDFTimeout:   util.DurationEnv("PDF_RENDER_TIMEOUT", 5*time.Second),
		DocTimeout:   util.DurationEnv("DOC_CONVERT_TIMEOUT", 20*time.Second),
		JPEGQuality:  util.IntEnv("JPEG_QUALITY", 85),
		MaxDimension: util.IntEnv("MAX_DIMENSION", 1200),
	}, log)

	// Broker reachability decides the queue strategy for the lifetime of
	// the process.
	log.Info("probing Redis", "addr", redisAddr)
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	redisUp := rdb.Ping(pingCtx).Err() == nil
	cancel()

	var (
		backend queue.Backend
		emitter ports.AuditEmitter
		pool    *pgxpool.Pool
	)

	if redisUp {
		log.Info("Redis reachable, using distributed queue")
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})

		emitter = audit.NewStreamEmitter(rdb, util.Env("AUDIT_STREAM", "glance:audit"), log)

		dbURL := util.MustEnv("DATABASE_URL")
		pool, err = pgxpool.New(ctx, dbURL)
		if err != nil {
			log.LogFatal("failed to connect to PostgreSQL", err)
		}
		if err := pool.Ping(ctx); err != nil {
			log.LogFatal("failed to ping PostgreSQL", err)
		}
		log.Info("PostgreSQL connected")
		shutdownMgr.Register("postgres", func(ctx context.Context) error {
			pool.Close()
			return nil
		})

		jobs := jobstore.NewPostgres(pool)

		var inline queue.Executor
		if util.Env("INLINE_EXECUTION", "true") == "true" {
			inline = processor.New(processor.Deps{
				Pipeline:       pipeline,
				Store:          store,
				Cache:          writer,
				Jobs:           jobs,
				Audit:          emitter,
				MaxSourceBytes: util.Int64Env("MAX_SOURCE_BYTES", processor.DefaultMaxSourceBytes),
				Log:            log,
			})
		}

		backend = queue.NewRedisBackend(queue.RedisBackendDeps{
			RDB:       rdb,
			QueueName: queueName,
			Store:     jobs,
			Audit:     emitter,
			Log:       log,
			Inline:    inline,
		})
	} else {
		log.Warn("Redis unreachable, falling back to in-process queue", "addr", redisAddr)
		_ = rdb.Close()
		rdb = nil

		emitter = audit.NewLogEmitter(log)
		jobs := jobstore.NewMemory()

		proc := processor.New(processor.Deps{
			Pipeline:       pipeline,
			Store:          store,
			Cache:          writer,
			Jobs:           jobs,
			Audit:          emitter,
			MaxSourceBytes: util.Int64Env("MAX_SOURCE_BYTES", processor.DefaultMaxSourceBytes),
			Log:            log,
		})

		backend = queue.NewInProcBackend(queue.InProcDeps{
			Store:       jobs,
			Exec:        proc,
			Audit:       emitter,
			Log:         log,
			MaxAttempts: util.IntEnv("JOB_MAX_ATTEMPTS", 2),
		})
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Backend: backend,
		Cache:   writer,
		Store:   store,
		Audit:   emitter,
		Log:     log,
		Pool:    pool,
		RDB:     rdb,
	})

	server := &http.Server{
		Addr:         "0.0.0.0:" + httpPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening",
			"addr", server.Addr,
			"queue_mode", backend.Mode(),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait()
}
