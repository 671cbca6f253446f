// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package rediscache provides a Redis-backed authority.PropertyCache so that
// several session-server instances share cached profile properties.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/multilogin/internal/authority"
	"github.com/holomush/multilogin/pkg/errutil"
)

// keyPrefix namespaces all cache keys.
const keyPrefix = "multilogin:props:"

// Cache implements authority.PropertyCache on Redis. Redis errors are
// logged and treated as cache misses.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure Cache implements the interface.
var _ authority.PropertyCache = (*Cache)(nil)

// New connects to the Redis server at url and verifies the connection.
func New(ctx context.Context, url string, logger *slog.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("redis_url", url).Wrap(err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("CACHE_CONNECT_FAILED").With("operation", "ping redis").Wrap(err)
	}
	return NewWithClient(client, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, logger: logger.With("component", "rediscache")}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if err := c.client.Close(); err != nil {
		return oops.With("operation", "close redis").Wrap(err)
	}
	return nil
}

// Get returns cached properties for key.
func (c *Cache) Get(ctx context.Context, key string) ([]authority.Property, bool) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		errutil.LogWarn(c.logger, "property cache read failed", err, "key", key)
		return nil, false
	}

	var props []authority.Property
	if err := json.Unmarshal(data, &props); err != nil {
		errutil.LogWarn(c.logger, "property cache entry corrupt", err, "key", key)
		return nil, false
	}
	return props, true
}

// Set stores props under key with ttl.
func (c *Cache) Set(ctx context.Context, key string, props []authority.Property, ttl time.Duration) {
	data, err := json.Marshal(props)
	if err != nil {
		errutil.LogWarn(c.logger, "property cache encode failed", err, "key", key)
		return
	}
	if err := c.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		errutil.LogWarn(c.logger, "property cache write failed", err, "key", key)
	}
}
