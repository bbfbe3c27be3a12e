package corpus

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hanzhifeng/quizbank/internal/common"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS questions (
	id             UUID PRIMARY KEY,
	question_text  TEXT NOT NULL,
	options        TEXT[] NOT NULL,
	raw_text       TEXT NOT NULL DEFAULT '',
	canonical_text TEXT NOT NULL,
	fingerprint    TEXT NOT NULL UNIQUE,
	question_type  TEXT NOT NULL DEFAULT 'TEXT',
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_questions_created_at ON questions(created_at DESC);
`

// PostgresRepository stores the corpus in Postgres via a pgx pool.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres creates a pgx pool from cfg and ensures the corpus schema exists.
func OpenPostgres(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*PostgresRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, common.WrapError(err, "parse dsn")
	}
	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.ConnConfig.RuntimeParams["application_name"] = "quizbank"

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, common.WrapError(err, "connect to database")
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, common.WrapError(err, "apply corpus schema")
	}
	logger.Info("corpus.postgres.open")
	return &PostgresRepository{pool: pool, logger: logger}, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// Ping catches DSN issues early, before the first batch run.
func (r *PostgresRepository) Ping(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Question, error) {
	return r.getOne(ctx,
		`SELECT id, question_text, options, raw_text, canonical_text, fingerprint, question_type, created_at
		 FROM questions WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByFingerprint(ctx context.Context, fp string) (*Question, error) {
	return r.getOne(ctx,
		`SELECT id, question_text, options, raw_text, canonical_text, fingerprint, question_type, created_at
		 FROM questions WHERE fingerprint = $1`, fp)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*Question, error) {
	var q Question
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&q.ID, &q.QuestionText, &q.Options, &q.RawText, &q.CanonicalText, &q.Fingerprint, &q.QuestionType, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "query question")
	}
	return &q, nil
}

func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]Question, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, question_text, options, raw_text, canonical_text, fingerprint, question_type, created_at
		 FROM questions ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, common.WrapError(err, "list recent questions")
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.QuestionText, &q.Options, &q.RawText, &q.CanonicalText, &q.Fingerprint, &q.QuestionType, &q.CreatedAt); err != nil {
			return nil, common.WrapError(err, "scan question")
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Insert(ctx context.Context, q *Question) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO questions (id, question_text, options, raw_text, canonical_text, fingerprint, question_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		q.ID, q.QuestionText, q.Options, q.RawText, q.CanonicalText, q.Fingerprint, q.QuestionType, q.CreatedAt)
	if err != nil {
		return common.WrapError(err, "insert question")
	}
	r.logger.Debug("corpus.insert.ok", "id", q.ID, "fingerprint", q.Fingerprint)
	return nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n); err != nil {
		return 0, common.WrapError(err, "count questions")
	}
	return n, nil
}
