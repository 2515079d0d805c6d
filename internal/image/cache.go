package image

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// CachedImage - то, что нужно для повторной выдачи изображения из кэша.
type CachedImage struct {
	ImageURL string `json:"imageUrl"`
	TaskID   string `json:"taskId,omitempty"`
}

// Cache хранит успешно сгенерированные изображения по ключу промпта.
type Cache interface {
	Get(ctx context.Context, key string) (CachedImage, bool)
	Set(ctx context.Context, key string, img CachedImage)
}

// CacheKey - ключ кэша для промпта.
func CacheKey(prompt string) string {
	sum := blake2b.Sum256([]byte(prompt))
	return "vnovel:image:" + hex.EncodeToString(sum[:])
}

type memoryCache struct {
	c *cache.Cache
}

// NewMemoryCache создает кэш в памяти процесса.
func NewMemoryCache(ttl time.Duration) Cache {
	return &memoryCache{c: cache.New(ttl, 2*ttl)}
}

func (m *memoryCache) Get(_ context.Context, key string) (CachedImage, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return CachedImage{}, false
	}
	img, ok := v.(CachedImage)
	return img, ok
}

func (m *memoryCache) Set(_ context.Context, key string, img CachedImage) {
	m.c.SetDefault(key, img)
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache создает кэш в Redis. Ошибки Redis не прерывают генерацию, только логируются.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) Cache {
	return &redisCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisImageCache"),
	}
}

func (r *redisCache) Get(ctx context.Context, key string) (CachedImage, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("Failed to read image cache", zap.String("key", key), zap.Error(err))
		}
		return CachedImage{}, false
	}
	var img CachedImage
	if err := json.Unmarshal(data, &img); err != nil || img.ImageURL == "" {
		r.logger.Warn("Invalid image cache entry", zap.String("key", key), zap.Error(err))
		return CachedImage{}, false
	}
	return img, true
}

func (r *redisCache) Set(ctx context.Context, key string, img CachedImage) {
	data, err := json.Marshal(img)
	if err != nil {
		r.logger.Warn("Failed to encode image cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.logger.Warn("Failed to write image cache", zap.String("key", key), zap.Error(err))
	}
}
