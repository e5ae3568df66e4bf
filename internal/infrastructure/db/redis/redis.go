package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	pingTimeout       = 5 * time.Second
	defaultClientName = "raven-portal"
)

// Config holds the pool and socket settings for the shared client. Zero
// values fall back to the go-redis defaults.
type Config struct {
	Addr         string
	DB           int
	ClientName   string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) options() *redis.Options {
	name := c.ClientName
	if name == "" {
		name = defaultClientName
	}
	return &redis.Options{
		Addr:         c.Addr,
		DB:           c.DB,
		ClientName:   name,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// Connect builds the client that backs the admission store, the session
// registry and the notifier, and pings it once before handing it out.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(cfg.options())

	timeout := pingTimeout
	if cfg.DialTimeout > timeout {
		timeout = cfg.DialTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}
