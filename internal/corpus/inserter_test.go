package corpus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanzhifeng/quizbank/internal/common"
)

// memRepo is a map-backed Repository with slow inserts, so concurrent callers
// actually overlap inside the singleflight window.
type memRepo struct {
	mu          sync.Mutex
	byFP        map[string]*Question
	insertCalls int
	insertDelay time.Duration
}

func newMemRepo() *memRepo {
	return &memRepo{byFP: make(map[string]*Question)}
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.byFP {
		if q.ID == id {
			return q, nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *memRepo) GetByFingerprint(_ context.Context, fp string) (*Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.byFP[fp]; ok {
		return q, nil
	}
	return nil, common.ErrNotFound
}

func (m *memRepo) ListRecent(_ context.Context, _ int) ([]Question, error) {
	return nil, nil
}

func (m *memRepo) Insert(_ context.Context, q *Question) error {
	if m.insertDelay > 0 {
		time.Sleep(m.insertDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	cp := *q
	m.byFP[q.Fingerprint] = &cp
	return nil
}

func (m *memRepo) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byFP), nil
}

func TestInserterReturnsExistingRecord(t *testing.T) {
	repo := newMemRepo()
	existing := &Question{ID: uuid.New(), Fingerprint: "fp-1"}
	repo.byFP["fp-1"] = existing

	ins := NewInserter(repo, nil)
	id, err := ins.Insert(context.Background(), &Question{ID: uuid.New(), Fingerprint: "fp-1"})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, id)
	assert.Zero(t, repo.insertCalls)
}

func TestInserterCoalescesConcurrentInserts(t *testing.T) {
	repo := newMemRepo()
	repo.insertDelay = 20 * time.Millisecond
	ins := NewInserter(repo, nil)

	const callers = 8
	ids := make([]uuid.UUID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := ins.Insert(context.Background(), &Question{
				ID:          uuid.New(),
				Fingerprint: "fp-shared",
			})
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, repo.insertCalls, "same fingerprint must insert once")
	for i := 1; i < callers; i++ {
		assert.Equal(t, ids[0], ids[i], "all callers must observe the same record")
	}
}

func TestInserterDistinctFingerprintsProceedIndependently(t *testing.T) {
	repo := newMemRepo()
	ins := NewInserter(repo, nil)

	a, err := ins.Insert(context.Background(), &Question{ID: uuid.New(), Fingerprint: "fp-a"})
	require.NoError(t, err)
	b, err := ins.Insert(context.Background(), &Question{ID: uuid.New(), Fingerprint: "fp-b"})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, repo.insertCalls)
}
