package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"honeypot-lab/internal/config"
	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

// ErrNotFound is returned when a key is missing or expired
var ErrNotFound = errors.New("cache: not found")

// RedisCache wraps the Redis client with typed operations
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	reportTTL time.Duration
	logger    *logger.Logger
}

// NewRedis creates a new Redis client
func NewRedis(ctx context.Context, cfg config.RedisConfig, reportTTL time.Duration, log *logger.Logger) (*RedisCache, error) {
	log = log.WithComponent("redis")
	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("connecting to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	log.Info().Msg("connected to Redis successfully")

	return &RedisCache{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		reportTTL: reportTTL,
		logger:    log,
	}, nil
}

// Ping checks connectivity
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	c.logger.Info().Msg("closing Redis connection")
	return c.client.Close()
}

// key prepends the namespace prefix to a key
func (c *RedisCache) key(k string) string {
	return c.keyPrefix + k
}

// getJSON retrieves and unmarshals a JSON value from cache
func (c *RedisCache) getJSON(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// Cache key constants
const (
	// Report archive keys
	KeyReportPrefix = "report:"
	KeyReportIndex  = "reports:index"

	// Rate limiting keys
	KeyRateLimitPrefix = "rate_limit:"
)

// ReportKey returns the archive key for a report id
func ReportKey(id uuid.UUID) string {
	return KeyReportPrefix + id.String()
}

// ArchiveReport stores record under its id and indexes it by creation time.
// Index entries older than the report TTL are trimmed on every write.
func (c *RedisCache) ArchiveReport(ctx context.Context, record *models.ReportRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	cutoff := time.Now().Add(-c.reportTTL)

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.key(ReportKey(record.ID)), data, c.reportTTL)
	pipe.ZAdd(ctx, c.key(KeyReportIndex), redis.Z{
		Score:  float64(record.CreatedAt.UnixMilli()),
		Member: record.ID.String(),
	})
	pipe.ZRemRangeByScore(ctx, c.key(KeyReportIndex), "-inf", fmt.Sprintf("(%d", cutoff.UnixMilli()))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to archive report: %w", err)
	}
	return nil
}

// GetArchivedReport returns an archived report or ErrNotFound
func (c *RedisCache) GetArchivedReport(ctx context.Context, id uuid.UUID) (*models.ReportRecord, error) {
	var record models.ReportRecord
	if err := c.getJSON(ctx, ReportKey(id), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListArchivedReports returns up to limit archived reports, newest first
func (c *RedisCache) ListArchivedReports(ctx context.Context, limit int) ([]*models.ReportRecord, error) {
	ids, err := c.client.ZRevRange(ctx, c.key(KeyReportIndex), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*models.ReportRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(KeyReportPrefix + id)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	records := make([]*models.ReportRecord, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // expired between index and lookup
		}
		var record models.ReportRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			c.logger.Warn().Err(err).Msg("skipping unreadable archived report")
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

// RateLimitWindowKey returns the counter key for key in the window containing now
func RateLimitWindowKey(key string, now time.Time, window time.Duration) string {
	return fmt.Sprintf("%s%s:%d", KeyRateLimitPrefix, key, now.Unix()/int64(window.Seconds()))
}

// CheckRateLimit checks and increments the rate limit counter
// Returns (allowed, remaining, resetTime, error)
func (c *RedisCache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Time, error) {
	now := time.Now()
	windowKey := RateLimitWindowKey(key, now, window)

	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, c.key(windowKey))
	pipe.Expire(ctx, c.key(windowKey), window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, time.Time{}, err
	}

	count := incr.Val()
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	resetTime := now.Add(window)

	return count <= limit, remaining, resetTime, nil
}
