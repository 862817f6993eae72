package jobstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"glance/internal/models"
	"glance/internal/pkg/errors"
)

// Postgres is the shared job store used in distributed mode.
//
// Expected schema:
//
//	CREATE TABLE thumbnail_job_variants (
//	    job_id      TEXT        NOT NULL,
//	    document_id TEXT        NOT NULL,
//	    width       INTEGER     NOT NULL,
//	    status      TEXT        NOT NULL,
//	    skipped     BOOLEAN     NOT NULL DEFAULT FALSE,
//	    error_code  TEXT,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    updated_at  TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (job_id, width)
//	);
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) CreateJob(ctx context.Context, job models.Job) error {
	now := time.Now().UTC()
	for _, width := range job.Request.NormalizedWidths() {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO thumbnail_job_variants (job_id, document_id, width, status, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$5)
			 ON CONFLICT (job_id, width) DO NOTHING`,
			job.ID, job.Request.DocumentID, width, models.StatusQueued, now,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Postgres) MarkProcessing(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE thumbnail_job_variants
		 SET status=$2, updated_at=NOW()
		 WHERE job_id=$1 AND status=$3`,
		jobID, models.StatusProcessing, models.StatusQueued,
	)
	return err
}

func (s *Postgres) MarkVariant(ctx context.Context, jobID string, width int, status models.VariantStatus, skipped bool, errorCode string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE thumbnail_job_variants
		 SET status=$3, skipped=$4, error_code=NULLIF($5,''), updated_at=NOW()
		 WHERE job_id=$1 AND width=$2`,
		jobID, width, status, skipped, errorCode,
	)
	return err
}

func (s *Postgres) RequeueRetryable(ctx context.Context, jobID string) error {
	codes := errors.RetryableCodes()
	retryable := make([]string, len(codes))
	for i, c := range codes {
		retryable[i] = string(c)
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE thumbnail_job_variants
		 SET status=$2, error_code=NULL, updated_at=NOW()
		 WHERE job_id=$1 AND status=$3 AND error_code = ANY($4)`,
		jobID, models.StatusQueued, models.StatusFailed, retryable,
	)
	return err
}

func (s *Postgres) GetStatuses(ctx context.Context, jobID string) ([]models.JobStatus, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT job_id, document_id, width, status, skipped, COALESCE(error_code,''), created_at, updated_at
		 FROM thumbnail_job_variants
		 WHERE job_id=$1
		 ORDER BY width`,
		jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.JobStatus
	for rows.Next() {
		var st models.JobStatus
		if err := rows.Scan(&st.JobID, &st.DocumentID, &st.Width, &st.Status, &st.Skipped, &st.ErrorCode, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrJobNotFound
	}
	return out, nil
}
