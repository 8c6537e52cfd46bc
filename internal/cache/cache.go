// Package cache provides Redis caching for project listings, per-project
// photo listings and geocode search responses.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/auditlens/backend/internal/config"
	"github.com/auditlens/backend/internal/models"
)

const (
	// Cache key prefixes
	projectPhotosKeyPrefix = "photos:project:"
	projectsKey            = "projects:all"
	searchKeyPrefix        = "geocode:"

	// Default TTL for cached items
	defaultTTL = 5 * time.Minute
)

// Cache defines the interface for caching operations. All read errors
// degrade to a cache miss; the database remains the source of truth.
type Cache interface {
	// GetProjects retrieves the cached project list.
	GetProjects(ctx context.Context) ([]models.Project, bool, error)

	// SetProjects stores the project list.
	SetProjects(ctx context.Context, projects []models.Project) error

	// InvalidateProjects drops the cached project list.
	InvalidateProjects(ctx context.Context) error

	// GetProjectPhotos retrieves a project's cached photo list.
	GetProjectPhotos(ctx context.Context, projectID string) ([]models.Photo, bool, error)

	// SetProjectPhotos stores a project's photo list.
	SetProjectPhotos(ctx context.Context, projectID string, photos []models.Photo) error

	// InvalidateProjectPhotos drops a project's cached photo list.
	InvalidateProjectPhotos(ctx context.Context, projectID string) error

	// GetSearch retrieves a cached geocode response body for a query.
	GetSearch(ctx context.Context, query string) ([]byte, bool, error)

	// SetSearch stores a geocode response body for a query.
	SetSearch(ctx context.Context, query string, body []byte) error

	// Close closes the cache connection.
	Close() error
}

// RedisCache implements Cache using Redis.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(cfg *config.Config, logger *zap.Logger) (Cache, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis cache")

	return &RedisCache{
		client: client,
		logger: logger,
		ttl:    defaultTTL,
	}, nil
}

// NewRedisCacheFromClient wraps an existing client; used by tests.
func NewRedisCacheFromClient(client *redis.Client, logger *zap.Logger) Cache {
	return &RedisCache{client: client, logger: logger, ttl: defaultTTL}
}

// GetProjects retrieves the cached project list.
func (c *RedisCache) GetProjects(ctx context.Context) ([]models.Project, bool, error) {
	data, found := c.get(ctx, projectsKey)
	if !found {
		return nil, false, nil
	}

	var projects []models.Project
	if err := json.Unmarshal(data, &projects); err != nil {
		c.logger.Warn("Failed to unmarshal cached projects", zap.Error(err))
		return nil, false, nil
	}
	return projects, true, nil
}

// SetProjects stores the project list.
func (c *RedisCache) SetProjects(ctx context.Context, projects []models.Project) error {
	return c.set(ctx, projectsKey, projects)
}

// InvalidateProjects drops the cached project list.
func (c *RedisCache) InvalidateProjects(ctx context.Context) error {
	if err := c.client.Del(ctx, projectsKey).Err(); err != nil {
		c.logger.Warn("Failed to invalidate projects cache", zap.Error(err))
		return err
	}
	return nil
}

// GetProjectPhotos retrieves a project's cached photo list.
func (c *RedisCache) GetProjectPhotos(ctx context.Context, projectID string) ([]models.Photo, bool, error) {
	data, found := c.get(ctx, projectPhotosKeyPrefix+projectID)
	if !found {
		return nil, false, nil
	}

	var photos []models.Photo
	if err := json.Unmarshal(data, &photos); err != nil {
		c.logger.Warn("Failed to unmarshal cached photos", zap.Error(err))
		return nil, false, nil
	}
	return photos, true, nil
}

// SetProjectPhotos stores a project's photo list.
func (c *RedisCache) SetProjectPhotos(ctx context.Context, projectID string, photos []models.Photo) error {
	return c.set(ctx, projectPhotosKeyPrefix+projectID, photos)
}

// InvalidateProjectPhotos drops a project's cached photo list.
func (c *RedisCache) InvalidateProjectPhotos(ctx context.Context, projectID string) error {
	key := projectPhotosKeyPrefix + projectID
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("Failed to invalidate photos cache", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// GetSearch retrieves a cached geocode response body.
func (c *RedisCache) GetSearch(ctx context.Context, query string) ([]byte, bool, error) {
	data, found := c.get(ctx, searchKeyPrefix+query)
	if !found {
		return nil, false, nil
	}
	return data, true, nil
}

// SetSearch stores a geocode response body.
func (c *RedisCache) SetSearch(ctx context.Context, query string, body []byte) error {
	key := searchKeyPrefix + query
	if err := c.client.Set(ctx, key, body, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to set cache", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	c.logger.Info("Closing Redis connection")
	return c.client.Close()
}

func (c *RedisCache) get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false // Cache miss
	}
	if err != nil {
		c.logger.Warn("Failed to get from cache", zap.String("key", key), zap.Error(err))
		return nil, false // Treat errors as cache miss
	}
	c.logger.Debug("Cache hit", zap.String("key", key))
	return data, true
}

func (c *RedisCache) set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Failed to marshal value for cache", zap.Error(err))
		return err
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to set cache", zap.String("key", key), zap.Error(err))
		return err
	}

	c.logger.Debug("Cached value", zap.String("key", key))
	return nil
}
