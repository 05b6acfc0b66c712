package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const VideoListTTL = 5 * time.Minute

const videoListKey = "videos:list"

// Service is a Redis cache-aside layer. A Service without a client treats
// every lookup as a miss and every write as a no-op.
type Service struct {
	rdb *redis.Client
}

// New connects to redisURL. An empty URL or an unreachable server disables
// caching instead of failing startup.
func New(ctx context.Context, redisURL string) *Service {
	if redisURL == "" {
		slog.Info("redis: no URL configured, caching disabled")
		return &Service{}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		slog.Warn("redis: invalid URL, caching disabled", "error", err)
		return &Service{}
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis: connection failed, caching disabled", "error", err)
		_ = rdb.Close()
		return &Service{}
	}

	slog.Info("redis: connected, caching enabled")
	return &Service{rdb: rdb}
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client) *Service {
	return &Service{rdb: rdb}
}

func (s *Service) Enabled() bool {
	return s != nil && s.rdb != nil
}

// GetVideoList decodes the cached list into dst and reports whether it was
// present.
func (s *Service) GetVideoList(ctx context.Context, dst any) (bool, error) {
	return s.getJSON(ctx, videoListKey, dst)
}

func (s *Service) SetVideoList(ctx context.Context, v any) error {
	return s.setJSON(ctx, videoListKey, v, VideoListTTL)
}

func (s *Service) InvalidateVideoList(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.rdb.Del(ctx, videoListKey).Err(); err != nil {
		return fmt.Errorf("invalidate video list: %w", err)
	}
	return nil
}

func (s *Service) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.rdb.Close()
}

func (s *Service) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Service) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
