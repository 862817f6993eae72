package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"glance/internal/models"
	"glance/internal/pkg/logger"
	"glance/internal/ports"
	"glance/internal/queue/jobstore"
)

// RedisQueue wraps the broker list operations shared by the API (push) and
// the worker (blocking pop, delayed requeue).
type RedisQueue struct {
	rdb       *redis.Client
	queueName string
	log       *logger.Logger
}

func NewRedisQueue(rdb *redis.Client, queueName string, log *logger.Logger) *RedisQueue {
	if log == nil {
		log = logger.NewDefault()
	}
	return &RedisQueue{rdb: rdb, queueName: queueName, log: log.WithComponent("queue")}
}

// Push appends a job payload to the broker list.
func (q *RedisQueue) Push(ctx context.Context, job models.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.queueName, payload).Err()
}

// popTimeout bounds one blocking pop so the consuming loop regularly gets
// control back to promote due retries.
const popTimeout = 2 * time.Second

// Pop blocks until a job is available or the poll window elapses. ok is
// false for empty results and payloads that do not parse; the caller just
// polls again.
func (q *RedisQueue) Pop(ctx context.Context) (job models.Job, ok bool, err error) {
	res, err := q.rdb.BRPop(ctx, popTimeout, q.queueName).Result()
	if errors.Is(err, redis.Nil) {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, err
	}
	if len(res) < 2 {
		return models.Job{}, false, nil
	}
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		q.log.Warn("dropping malformed job payload", "error", err.Error())
		return models.Job{}, false, nil
	}
	return job, true, nil
}

// delayedName is the sorted set holding retry payloads waiting out their
// backoff, scored by visible-at time.
func (q *RedisQueue) delayedName() string {
	return q.queueName + ":delayed"
}

// ScheduleRetry parks a job payload in Redis until its backoff elapses.
// The payload lives broker-side from the moment this returns, so a worker
// crash during the backoff window loses nothing; any worker promotes the
// job once it is due.
func (q *RedisQueue) ScheduleRetry(ctx context.Context, delay time.Duration, job models.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.ZAdd(ctx, q.delayedName(), redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: payload,
	}).Err()
}

// PromoteDue moves every due delayed payload back onto the queue list and
// returns how many it moved. The ZRem result guards the promotion, so
// concurrent workers never push the same payload twice.
func (q *RedisQueue) PromoteDue(ctx context.Context) (int, error) {
	members, err := q.rdb.ZRangeByScore(ctx, q.delayedName(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(time.Now().UnixMilli(), 10),
		Count: 100,
	}).Result()
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, m := range members {
		removed, err := q.rdb.ZRem(ctx, q.delayedName(), m).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, q.queueName, m).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// RedisBackend is the distributed scheduling strategy: payloads in a Redis
// list, status rows in the shared job store, execution in separate worker
// processes.
type RedisBackend struct {
	queue      *RedisQueue
	store      jobstore.Store
	audit      ports.AuditEmitter
	log        *logger.Logger
	inline     Executor
	retryAfter time.Duration
}

// RedisBackendDeps wires a RedisBackend.
type RedisBackendDeps struct {
	RDB       *redis.Client
	QueueName string
	Store     jobstore.Store
	Audit     ports.AuditEmitter
	Log       *logger.Logger
	// Inline, when set, additionally executes fresh jobs immediately on a
	// separate goroutine to cut perceived latency. Purely an optimization:
	// failures are swallowed and the queued path remains source of truth.
	Inline Executor
	// RetryAfter is the poll hint returned to callers.
	RetryAfter time.Duration
}

func NewRedisBackend(d RedisBackendDeps) *RedisBackend {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	retryAfter := d.RetryAfter
	if retryAfter == 0 {
		retryAfter = 2 * time.Second
	}
	return &RedisBackend{
		queue:      NewRedisQueue(d.RDB, d.QueueName, log),
		store:      d.Store,
		audit:      d.Audit,
		log:        log.WithComponent("queue"),
		inline:     d.Inline,
		retryAfter: retryAfter,
	}
}

func (b *RedisBackend) Mode() string { return "redis" }

func (b *RedisBackend) Enqueue(ctx context.Context, req models.RenderRequest) (EnqueueResult, error) {
	if err := req.Validate(); err != nil {
		return EnqueueResult{}, err
	}

	job := models.Job{
		ID:      "job_" + uuid.NewString(),
		Request: req,
		Attempt: 1,
	}

	if err := b.store.CreateJob(ctx, job); err != nil {
		return EnqueueResult{}, err
	}
	if err := b.queue.Push(ctx, job); err != nil {
		return EnqueueResult{}, err
	}

	b.emitRequested(ctx, job)
	b.tryInline(job)

	b.log.FromContext(ctx).Info("job enqueued",
		"job_id", job.ID,
		"document_id", req.DocumentID,
		"widths", req.NormalizedWidths(),
	)

	return EnqueueResult{
		JobID:      job.ID,
		Status:     models.StatusQueued,
		RetryAfter: b.retryAfter,
	}, nil
}

func (b *RedisBackend) GetStatus(ctx context.Context, jobID string, width int) ([]models.JobStatus, error) {
	statuses, err := b.store.GetStatuses(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return filterWidth(statuses, width), nil
}

// tryInline launches the best-effort immediate execution. The duplicate run
// it races against the queued one is benign: variant keys are
// content-addressed and writes are check-then-write.
func (b *RedisBackend) tryInline(job models.Job) {
	if b.inline == nil {
		return
	}
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				b.log.Warn("inline execution panicked", "job_id", job.ID, "panic", rec)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := b.inline.Execute(ctx, job); err != nil {
			b.log.Debug("inline execution failed, queued path will retry",
				"job_id", job.ID,
				"error", err.Error(),
			)
		}
	}()
}

func (b *RedisBackend) emitRequested(ctx context.Context, job models.Job) {
	if b.audit == nil {
		return
	}
	b.audit.Emit(ctx, ports.AuditEvent{
		Name:       ports.EventGenerationRequested,
		DocumentID: job.Request.DocumentID,
		UserID:     job.Request.OwnerID,
		TenantID:   job.Request.TenantID,
		Metadata: map[string]string{
			"job_id":    job.ID,
			"mime_type": job.Request.MimeType,
		},
	})
}
