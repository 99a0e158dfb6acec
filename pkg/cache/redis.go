package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"exam-portal/internal/models"
)

var ErrCacheMiss = errors.New("cache miss")

const scoreboardTTL = 30 * 24 * time.Hour

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr string, ttl time.Duration) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func testKey(path string) string        { return "mcq:" + path }
func leaderboardKey(path string) string { return "leaderboard:" + path }

func (c *RedisCache) SetTest(ctx context.Context, path string, bundle *models.TestBundle) error {
	if c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, testKey(path), data, c.ttl).Err()
}

func (c *RedisCache) GetTest(ctx context.Context, path string) (*models.TestBundle, error) {
	data, err := c.client.Get(ctx, testKey(path)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	var bundle models.TestBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// RecordScore keeps the best score per student for a test.
func (c *RedisCache) RecordScore(ctx context.Context, path, email string, score int) error {
	key := leaderboardKey(path)
	pipe := c.client.Pipeline()
	pipe.ZAddArgs(ctx, key, redis.ZAddArgs{
		GT:      true,
		Members: []redis.Z{{Score: float64(score), Member: email}},
	})
	pipe.Expire(ctx, key, scoreboardTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) TopScores(ctx context.Context, path string, limit int64) ([]models.LeaderboardEntry, error) {
	results, err := c.client.ZRevRangeWithScores(ctx, leaderboardKey(path), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]models.LeaderboardEntry, len(results))
	for i, z := range results {
		member, _ := z.Member.(string)
		entries[i] = models.LeaderboardEntry{
			Email: member,
			Score: int(z.Score),
		}
	}
	return entries, nil
}
