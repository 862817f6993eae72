package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"glance/internal/cache"
	"glance/internal/httpapi/handlers"
	"glance/internal/httpapi/util"
	"glance/internal/httpkit"
	"glance/internal/pkg/logger"
	"glance/internal/pkg/middleware"
	"glance/internal/ports"
	"glance/internal/queue"
)

type Deps struct {
	Backend queue.Backend
	Cache   *cache.Writer
	Store   ports.ObjectStore
	Audit   ports.AuditEmitter
	Log     *logger.Logger
	Pool    *pgxpool.Pool
	RDB     *redis.Client
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(d.Log))
	r.Use(middleware.Recovery(d.Log))

	allowedOrigins := util.EnvCSV("CORS_ALLOWED_ORIGINS", nil)
	if len(allowedOrigins) > 0 {
		r.Use(httpkit.CORS(httpkit.CORSOptions{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}))
	}

	h := handlers.New(handlers.Deps{
		Backend: d.Backend,
		Cache:   d.Cache,
		Store:   d.Store,
		Audit:   d.Audit,
		Log:     d.Log,
		Pool:    d.Pool,
		RDB:     d.RDB,
	})

	r.Get("/health", h.Health)

	r.Post("/thumbnails", h.PostThumbnails)
	r.Get("/thumbnails/{documentID}/{contentHash}", h.GetThumbnails)

	r.Get("/jobs/{jobID}", h.GetJob)

	return r
}
