package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seaburr/cookie-cutter-maker/config"
	"github.com/seaburr/cookie-cutter-maker/model"
	"github.com/seaburr/cookie-cutter-maker/utils"
	"go.uber.org/zap"
)

const traceKeyPrefix = "trace:"

// RedisService caches trace results keyed by content hash, so re-uploading
// the same image with the same parameters skips the extraction pipeline.
type RedisService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisService(cfg config.RedisConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisService{client: client, ttl: cfg.TTL}
}

// Ping checks connectivity. The cache is optional; callers treat a failed
// ping as "run without caching".
func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SetTrace stores a trace record under its content-hash key.
func (s *RedisService) SetTrace(ctx context.Context, key string, rec *model.TraceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal trace record: %w", err)
	}
	if err := s.client.Set(ctx, traceKeyPrefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache trace record: %w", err)
	}
	return nil
}

// GetTrace retrieves a cached trace record. A cache miss returns (nil, nil).
func (s *RedisService) GetTrace(ctx context.Context, key string) (*model.TraceRecord, error) {
	data, err := s.client.Get(ctx, traceKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read trace cache: %w", err)
	}
	var rec model.TraceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// Stale or corrupt entry: drop it and treat as a miss.
		utils.Logger.Warn("dropping corrupt trace cache entry", zap.String("key", key))
		s.client.Del(ctx, traceKeyPrefix+key)
		return nil, nil
	}
	return &rec, nil
}

// Close releases the client connection pool.
func (s *RedisService) Close() error {
	return s.client.Close()
}
