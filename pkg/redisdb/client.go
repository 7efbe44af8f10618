package redisdb

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Nzyazin/ratecache/internal/core/logger"
	"github.com/Nzyazin/ratecache/pkg/config"
)

type Client struct {
	log logger.Logger
	*redis.Client
}

func NewRedisClient(ctx context.Context, cfg config.RedisConfig, log logger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	log.Info("Connected to Redis",
		logger.StringField("addr", cfg.Addr),
		logger.IntField("db", cfg.DB))

	return &Client{log: log, Client: rdb}, nil
}

func (c *Client) Close() error {
	c.log.Info("Closing redis connection")
	return c.Client.Close()
}
