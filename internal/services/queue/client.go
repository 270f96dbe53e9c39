package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jwebster45206/enlisted/internal/services"
	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis client for queue operations
type Client struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewClient creates a new queue client and checks the connection
func NewClient(redisURL string, logger *slog.Logger) (*Client, error) {
	rdb, err := services.NewRedisClient(redisURL)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Connected to Redis for queue service", "url", redisURL)
	return NewClientFrom(rdb, logger), nil
}

// NewClientFrom wraps an existing Redis client
func NewClientFrom(rdb *redis.Client, logger *slog.Logger) *Client {
	return &Client{
		rdb:    rdb,
		logger: logger,
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetRedisClient returns the underlying Redis client for direct operations
func (c *Client) GetRedisClient() *redis.Client {
	return c.rdb
}
