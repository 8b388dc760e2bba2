package dom

import (
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// RankCache memoizes rankings per (snapshot content, goal). Ranking is a pure
// function, so a hit is indistinguishable from a fresh computation.
type RankCache struct {
	store  *cache.Cache
	logger *zap.Logger
}

// NewRankCache creates a cache whose entries live for ttl. A non-positive ttl
// disables expiry.
func NewRankCache(ttl time.Duration, logger *zap.Logger) *RankCache {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	cleanup := ttl * 2
	if ttl == cache.NoExpiration {
		cleanup = 0
	}
	return &RankCache{
		store:  cache.New(ttl, cleanup),
		logger: logger.Named("rank_cache"),
	}
}

// Rank returns the ranking for s and goal, computing it on a miss. The
// returned slice is owned by the caller.
func (c *RankCache) Rank(s *Snapshot, goal string) []Candidate {
	if s == nil {
		return []Candidate{}
	}

	digest, err := s.Digest()
	if err != nil {
		c.logger.Debug("Snapshot digest failed, ranking without cache.", zap.Error(err))
		return Rank(s, goal)
	}

	key := digest + "\x00" + goal
	if v, ok := c.store.Get(key); ok {
		return append([]Candidate(nil), v.([]Candidate)...)
	}

	ranked := Rank(s, goal)
	c.store.SetDefault(key, append([]Candidate(nil), ranked...))
	return ranked
}

// Len reports the number of cached rankings, including expired entries not
// yet swept.
func (c *RankCache) Len() int {
	return c.store.ItemCount()
}
