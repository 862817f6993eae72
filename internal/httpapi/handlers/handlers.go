package handlers

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"glance/internal/cache"
	"glance/internal/pkg/logger"
	"glance/internal/ports"
	"glance/internal/queue"
)

type Deps struct {
	Backend queue.Backend
	Cache   *cache.Writer
	Store   ports.ObjectStore
	Audit   ports.AuditEmitter
	Log     *logger.Logger

	// Pool and RDB are nil in in-process mode; deep health checks skip them.
	Pool *pgxpool.Pool
	RDB  *redis.Client
}

type Handler struct {
	backend queue.Backend
	cache   *cache.Writer
	store   ports.ObjectStore
	audit   ports.AuditEmitter
	log     *logger.Logger
	pool    *pgxpool.Pool
	rdb     *redis.Client
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		backend: d.Backend,
		cache:   d.Cache,
		store:   d.Store,
		audit:   d.Audit,
		log:     log.WithComponent("httpapi"),
		pool:    d.Pool,
		rdb:     d.RDB,
	}
}
