package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	defaultKeyPrefix = "fern:similar:"
	DefaultTTL       = 15 * time.Minute
	scanCount        = 500
)

// SimilarGames caches similar-games lookups in redis under
// "<prefix><gameID>:<limit>". Cache failures are logged and treated as misses.
type SimilarGames struct {
	rdb       *redis.Client
	logger    ectologger.Logger
	keyPrefix string
	ttl       time.Duration
}

// NewSimilarGames creates a cache. A zero ttl uses the default.
func NewSimilarGames(rdb *redis.Client, ttl time.Duration, logger ectologger.Logger) *SimilarGames {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SimilarGames{
		rdb:       rdb,
		logger:    logger,
		keyPrefix: defaultKeyPrefix,
		ttl:       ttl,
	}
}

func (c *SimilarGames) key(gameID int64, limit int) string {
	return fmt.Sprintf("%s%d:%d", c.keyPrefix, gameID, limit)
}

func (c *SimilarGames) GetSimilarGames(ctx context.Context, gameID int64, limit int) ([]models.SimilarGame, bool) {
	start := time.Now()
	raw, err := c.rdb.Get(ctx, c.key(gameID, limit)).Bytes()
	metrics.RedisOperationDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())
	if err != nil {
		if err != redis.Nil {
			c.logger.WithContext(ctx).WithError(err).WithField("game_id", gameID).Warn("Similar games cache read failed")
		}
		metrics.RecordCacheLookup(false)
		return nil, false
	}

	var games []models.SimilarGame
	if err := json.Unmarshal(raw, &games); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("game_id", gameID).Warn("Discarding unreadable cache entry")
		metrics.RecordCacheLookup(false)
		return nil, false
	}
	metrics.RecordCacheLookup(true)
	return games, true
}

func (c *SimilarGames) SetSimilarGames(ctx context.Context, gameID int64, limit int, games []models.SimilarGame) {
	raw, err := json.Marshal(games)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("game_id", gameID).Warn("Failed to encode similar games")
		return
	}

	start := time.Now()
	err = c.rdb.Set(ctx, c.key(gameID, limit), raw, c.ttl).Err()
	metrics.RedisOperationDuration.WithLabelValues("set").Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("game_id", gameID).Warn("Similar games cache write failed")
	}
}

// Invalidate drops every cached limit of one game.
func (c *SimilarGames) Invalidate(ctx context.Context, gameID int64) {
	c.deleteMatching(ctx, fmt.Sprintf("%s%d:*", c.keyPrefix, gameID))
}

// Flush drops every cached lookup. A merge removes a game that other games' lists
// may point at, so the whole cache goes.
func (c *SimilarGames) Flush(ctx context.Context) {
	c.deleteMatching(ctx, c.keyPrefix+"*")
}

// GamesMerged flushes the cache after a merge.
func (c *SimilarGames) GamesMerged(ctx context.Context, _ models.MergeResult) {
	c.Flush(ctx)
}

// RunCompleted flushes the cache after an ingestion run, which may add edges and merge games.
func (c *SimilarGames) RunCompleted(ctx context.Context, _ models.EtlReport, _ error) {
	c.Flush(ctx)
}

func (c *SimilarGames) deleteMatching(ctx context.Context, pattern string) {
	start := time.Now()
	defer func() {
		metrics.RedisOperationDuration.WithLabelValues("delete").Observe(time.Since(start).Seconds())
	}()

	iter := c.rdb.Scan(ctx, 0, pattern, scanCount).Iterator()
	batch := make([]string, 0, scanCount)
	deleted := 0
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanCount {
			deleted += c.del(ctx, batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("pattern", pattern).Warn("Similar games cache scan failed")
	}
	if len(batch) > 0 {
		deleted += c.del(ctx, batch)
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"pattern": pattern,
		"deleted": deleted,
	}).Debug("Invalidated similar games cache")
}

func (c *SimilarGames) del(ctx context.Context, keys []string) int {
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Similar games cache delete failed")
	}
	return int(n)
}
