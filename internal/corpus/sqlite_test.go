package corpus

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanzhifeng/quizbank/internal/common"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := OpenSQLite(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func testQuestion(fp string, createdAt time.Time) *Question {
	return &Question{
		ID:            uuid.New(),
		QuestionText:  "这段文字意在说明什么？",
		Options:       []string{"A. 一", "B. 二", "C. 三", "D. 四"},
		RawText:       "raw",
		CanonicalText: "这段文字意在说明什么",
		Fingerprint:   fp,
		QuestionType:  "VERBAL",
		CreatedAt:     createdAt,
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	q := testQuestion("fp-1", time.Now().UTC())
	require.NoError(t, repo.Insert(ctx, q))

	byID, err := repo.GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q.QuestionText, byID.QuestionText)
	assert.Equal(t, q.Options, byID.Options)
	assert.Equal(t, q.QuestionType, byID.QuestionType)

	byFP, err := repo.GetByFingerprint(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, q.ID, byFP.ID)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteNotFound(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = repo.GetByFingerprint(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteFingerprintUnique(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, testQuestion("fp-dup", time.Now().UTC())))
	assert.Error(t, repo.Insert(ctx, testQuestion("fp-dup", time.Now().UTC())))
}

func TestSQLiteListRecentNewestFirst(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	old := testQuestion("fp-old", base)
	mid := testQuestion("fp-mid", base.Add(10*time.Minute))
	newest := testQuestion("fp-new", base.Add(20*time.Minute))
	for _, q := range []*Question{old, mid, newest} {
		require.NoError(t, repo.Insert(ctx, q))
	}

	recent, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, newest.ID, recent[0].ID)
	assert.Equal(t, mid.ID, recent[1].ID)
}
