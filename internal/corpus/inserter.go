package corpus

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/hanzhifeng/quizbank/internal/common"
)

// Inserter serializes corpus writes per fingerprint. Two workers that both
// conclude "new" for the same question collapse into a single insert; the
// loser receives the winner's record ID. Unrelated fingerprints proceed in
// parallel, so there is no global write lock.
type Inserter struct {
	repo   Repository
	group  singleflight.Group
	logger *slog.Logger
}

func NewInserter(repo Repository, logger *slog.Logger) *Inserter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inserter{repo: repo, logger: logger}
}

// Insert persists q unless a record with the same fingerprint already exists,
// and returns the record ID either way.
func (i *Inserter) Insert(ctx context.Context, q *Question) (uuid.UUID, error) {
	v, err, shared := i.group.Do(q.Fingerprint, func() (any, error) {
		existing, err := i.repo.GetByFingerprint(ctx, q.Fingerprint)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return uuid.Nil, err
		}
		if existing != nil {
			return existing.ID, nil
		}
		if err := i.repo.Insert(ctx, q); err != nil {
			return uuid.Nil, err
		}
		return q.ID, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	if shared {
		i.logger.Debug("corpus.insert.coalesced", "fingerprint", q.Fingerprint)
	}
	return v.(uuid.UUID), nil
}
