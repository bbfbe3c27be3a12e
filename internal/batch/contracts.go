package batch

import (
	"context"

	"github.com/google/uuid"

	"github.com/hanzhifeng/quizbank/internal/corpus"
	"github.com/hanzhifeng/quizbank/internal/dedup"
)

// DuplicateResolver reports whether canonical text duplicates a stored record.
type DuplicateResolver interface {
	Resolve(ctx context.Context, canonical string) (*dedup.Match, error)
}

// RecordInserter persists a new corpus record, deduplicating by fingerprint,
// and returns the backing record's ID.
type RecordInserter interface {
	Insert(ctx context.Context, q *corpus.Question) (uuid.UUID, error)
}
