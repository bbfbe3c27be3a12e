package dedup

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hanzhifeng/quizbank/internal/common"
	"github.com/hanzhifeng/quizbank/internal/corpus"
)

// Match is a duplicate verdict against a stored corpus record.
type Match struct {
	Record *corpus.Question
	Score  float64
}

// Config tunes the resolver. Zero values fall back to the documented policy.
type Config struct {
	Threshold    float64 // duplicate iff score >= Threshold; default 0.85
	MinTextLen   int     // canonical inputs shorter than this never match; default 10
	RecentWindow int     // how many recent records to scan; default 1000
	CacheSize    int     // positive-match memo entries; default 100
}

type cachedMatch struct {
	id    uuid.UUID
	score float64
}

// Resolver decides whether canonical text duplicates an existing corpus
// record. Read-only against the store; a small LRU memoizes positive matches
// so repeated screenshots of the same question skip the scan.
type Resolver struct {
	repo   corpus.Repository
	cfg    Config
	cache  *lru.Cache[string, cachedMatch]
	logger *slog.Logger
}

func NewResolver(repo corpus.Repository, cfg Config, logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.85
	}
	if cfg.MinTextLen <= 0 {
		cfg.MinTextLen = 10
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 1000
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 100
	}
	cache, err := lru.New[string, cachedMatch](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create match cache: %w", err)
	}
	return &Resolver{repo: repo, cfg: cfg, cache: cache, logger: logger}, nil
}

// Resolve returns the best duplicate match for canonical text, or nil when no
// stored record scores at or above the threshold. Inputs below the minimum
// length resolve to nil outright: short snippets match too eagerly to trust.
func (r *Resolver) Resolve(ctx context.Context, canonical string) (*Match, error) {
	if runeLen(canonical) < r.cfg.MinTextLen {
		return nil, nil
	}

	key := cacheKey(canonical)
	if hit, ok := r.cache.Get(key); ok {
		rec, err := r.repo.GetByID(ctx, hit.id)
		if err == nil {
			r.logger.Debug("dedup.resolve.cache_hit", "match_id", hit.id, "score", hit.score)
			return &Match{Record: rec, Score: hit.score}, nil
		}
		// Record vanished; drop the stale entry and rescan.
		r.cache.Remove(key)
	}

	recent, err := r.repo.ListRecent(ctx, r.cfg.RecentWindow)
	if err != nil {
		return nil, common.WrapError(err, "scan corpus")
	}

	var (
		best      *corpus.Question
		bestScore float64
	)
	for i := range recent {
		rec := &recent[i]
		if rec.CanonicalText == "" {
			continue
		}
		score := Ratio(canonical, rec.CanonicalText)
		if score > bestScore {
			best, bestScore = rec, score
		}
		if score >= r.cfg.Threshold {
			break
		}
	}

	if best == nil || bestScore < r.cfg.Threshold {
		r.logger.Debug("dedup.resolve.miss", "best_score", bestScore, "threshold", r.cfg.Threshold, "scanned", len(recent))
		return nil, nil
	}

	r.cache.Add(key, cachedMatch{id: best.ID, score: bestScore})
	r.logger.Info("dedup.resolve.match", "match_id", best.ID, "score", bestScore)
	return &Match{Record: best, Score: bestScore}, nil
}

func cacheKey(canonical string) string {
	sum := md5.Sum([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
