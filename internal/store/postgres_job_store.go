package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/pixelcache/internal/domain"
	_ "github.com/lib/pq"
)

const jobSchemaSQL = `
CREATE TABLE IF NOT EXISTS warm_jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	filename TEXT NOT NULL,
	styles JSONB NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	results JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

type PostgresJobStore struct {
	db *sql.DB
}

func NewPostgresJobStore(ctx context.Context, dsn string) (*PostgresJobStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresJobStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresJobStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, jobSchemaSQL); err != nil {
		return fmt.Errorf("ensure warm_jobs schema: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Close() error {
	return s.db.Close()
}

func (s *PostgresJobStore) Create(ctx context.Context, job domain.WarmJob) error {
	stylesJSON, err := json.Marshal(job.Styles)
	if err != nil {
		return fmt.Errorf("marshal job styles: %w", err)
	}
	resultsJSON, err := marshalResults(job.Results)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO warm_jobs (id, status, filename, styles, webhook_url, results, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID,
		job.Status,
		job.Filename,
		stylesJSON,
		job.WebhookURL,
		resultsJSON,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert warm job: %w", err)
	}

	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, id string) (domain.WarmJob, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, status, filename, styles, webhook_url, results, created_at, updated_at
		 FROM warm_jobs
		 WHERE id = $1`,
		id,
	)

	var (
		job         domain.WarmJob
		stylesJSON  []byte
		resultsJSON []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.Status,
		&job.Filename,
		&stylesJSON,
		&job.WebhookURL,
		&resultsJSON,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WarmJob{}, false, nil
		}
		return domain.WarmJob{}, false, fmt.Errorf("query warm job: %w", err)
	}

	if err := json.Unmarshal(stylesJSON, &job.Styles); err != nil {
		return domain.WarmJob{}, false, fmt.Errorf("unmarshal job styles: %w", err)
	}
	if err := json.Unmarshal(resultsJSON, &job.Results); err != nil {
		return domain.WarmJob{}, false, fmt.Errorf("unmarshal job results: %w", err)
	}

	return job, true, nil
}

func (s *PostgresJobStore) UpdateStatus(ctx context.Context, id, status string) (domain.WarmJob, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE warm_jobs
		 SET status = $1, updated_at = $2
		 WHERE id = $3`,
		status,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return domain.WarmJob{}, fmt.Errorf("update warm job status: %w", err)
	}
	return s.reload(ctx, id, res)
}

func (s *PostgresJobStore) Finish(ctx context.Context, id, status string, results []domain.StyleResult) (domain.WarmJob, error) {
	resultsJSON, err := marshalResults(results)
	if err != nil {
		return domain.WarmJob{}, err
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE warm_jobs
		 SET status = $1, results = $2, updated_at = $3
		 WHERE id = $4`,
		status,
		resultsJSON,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return domain.WarmJob{}, fmt.Errorf("finish warm job: %w", err)
	}
	return s.reload(ctx, id, res)
}

func (s *PostgresJobStore) reload(ctx context.Context, id string, res sql.Result) (domain.WarmJob, error) {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.WarmJob{}, ErrJobNotFound
	}

	job, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.WarmJob{}, err
	}
	if !ok {
		return domain.WarmJob{}, ErrJobNotFound
	}
	return job, nil
}

func marshalResults(results []domain.StyleResult) ([]byte, error) {
	if results == nil {
		results = []domain.StyleResult{}
	}
	body, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("marshal job results: %w", err)
	}
	return body, nil
}
