package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Cache stores vectors by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error
}

// Cached wraps an oracle with a content-addressed vector cache. Cache
// failures are logged and fall through to the oracle.
type Cached struct {
	next  Oracle
	cache Cache
	ttl   time.Duration
	log   *slog.Logger
}

func NewCached(next Oracle, cache Cache, ttl time.Duration, log *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cached{next: next, cache: cache, ttl: ttl, log: log}
}

func (c *Cached) Model() string { return c.next.Model() }

func (c *Cached) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return c.lookup(ctx, "text", []byte(text), func() ([]float32, error) {
		return c.next.EmbedText(ctx, text)
	})
}

func (c *Cached) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	return c.lookup(ctx, "image", image, func() ([]float32, error) {
		return c.next.EmbedImage(ctx, image)
	})
}

func (c *Cached) lookup(ctx context.Context, kind string, content []byte, compute func() ([]float32, error)) ([]float32, error) {
	key := cacheKey(c.next.Model(), kind, content)

	vec, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.log.Warn("embedding cache get failed, falling back to oracle", "error", err)
	case ok:
		return vec, nil
	}

	vec, err = compute()
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, vec, c.ttl); err != nil {
		c.log.Warn("embedding cache set failed", "key", key, "error", err)
	}
	return vec, nil
}

func cacheKey(model, kind string, content []byte) string {
	sum := sha256.Sum256(content)
	return "ragdoc:emb:" + model + ":" + kind + ":" + hex.EncodeToString(sum[:])
}

// RedisCache is a Cache backed by Redis, storing vectors as
// little-endian float32 blobs.
type RedisCache struct {
	client *goredis.Client
}

// NewRedisCache connects using a redis:// URL.
func NewRedisCache(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := decodeVector(data)
	if err != nil {
		// Corrupt entry; drop it and treat as a miss.
		_ = r.client.Del(ctx, key).Err()
		return nil, false, nil
	}
	return vec, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error {
	return r.client.Set(ctx, key, encodeVector(vec), ttl).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
