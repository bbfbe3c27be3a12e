package corpus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Question is one stored corpus record: the canonical comparable text plus the
// structured payload extracted for it.
type Question struct {
	ID            uuid.UUID
	QuestionText  string
	Options       []string
	RawText       string
	CanonicalText string
	Fingerprint   string
	QuestionType  string
	CreatedAt     time.Time
}

// Repository is the persistence contract for the question corpus.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Question, error)
	GetByFingerprint(ctx context.Context, fp string) (*Question, error)
	// ListRecent returns up to limit records, newest first. The similarity
	// scan is bounded to recent records to keep lookups cheap.
	ListRecent(ctx context.Context, limit int) ([]Question, error)
	Insert(ctx context.Context, q *Question) error
	Count(ctx context.Context) (int, error)
}
