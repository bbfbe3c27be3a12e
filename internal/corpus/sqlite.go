package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hanzhifeng/quizbank/internal/common"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS questions (
	id             TEXT PRIMARY KEY,
	question_text  TEXT NOT NULL,
	options_json   TEXT NOT NULL,
	raw_text       TEXT NOT NULL DEFAULT '',
	canonical_text TEXT NOT NULL,
	fingerprint    TEXT NOT NULL UNIQUE,
	question_type  TEXT NOT NULL DEFAULT 'TEXT',
	created_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_questions_created_at ON questions(created_at DESC);
`

// SQLiteRepository stores the corpus in a local SQLite database. Used for the
// CLI and for in-memory test runs; Postgres backs the deployed service.
type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (or creates) the corpus database at path. Use ":memory:"
// for an ephemeral store.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, common.WrapError(err, "open sqlite")
	}
	// The driver serializes writes; a single conn avoids table-lock races on :memory:.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, common.WrapError(err, "apply corpus schema")
	}
	logger.Info("corpus.sqlite.open", "path", path)
	return &SQLiteRepository{db: db, logger: logger}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id uuid.UUID) (*Question, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, question_text, options_json, raw_text, canonical_text, fingerprint, question_type, created_at
		 FROM questions WHERE id = ?`, id.String())
	return scanQuestion(row)
}

func (r *SQLiteRepository) GetByFingerprint(ctx context.Context, fp string) (*Question, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, question_text, options_json, raw_text, canonical_text, fingerprint, question_type, created_at
		 FROM questions WHERE fingerprint = ?`, fp)
	return scanQuestion(row)
}

func (r *SQLiteRepository) ListRecent(ctx context.Context, limit int) ([]Question, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, question_text, options_json, raw_text, canonical_text, fingerprint, question_type, created_at
		 FROM questions ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, common.WrapError(err, "list recent questions")
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		q, err := scanQuestionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Insert(ctx context.Context, q *Question) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return common.WrapError(err, "encode options")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO questions (id, question_text, options_json, raw_text, canonical_text, fingerprint, question_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID.String(), q.QuestionText, string(opts), q.RawText, q.CanonicalText, q.Fingerprint, q.QuestionType, q.CreatedAt)
	if err != nil {
		return common.WrapError(err, "insert question")
	}
	r.logger.Debug("corpus.insert.ok", "id", q.ID, "fingerprint", q.Fingerprint)
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n); err != nil {
		return 0, common.WrapError(err, "count questions")
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row *sql.Row) (*Question, error) {
	q, err := scanQuestionRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return q, err
}

func scanQuestionRows(s rowScanner) (*Question, error) {
	var (
		q       Question
		idStr   string
		optsStr string
	)
	if err := s.Scan(&idStr, &q.QuestionText, &optsStr, &q.RawText, &q.CanonicalText, &q.Fingerprint, &q.QuestionType, &q.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, common.WrapError(err, "scan question")
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse question id %q: %w", idStr, err)
	}
	q.ID = id
	if err := json.Unmarshal([]byte(optsStr), &q.Options); err != nil {
		return nil, common.WrapError(err, "decode options")
	}
	return &q, nil
}
