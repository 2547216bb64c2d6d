package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	redisOnce sync.Once
	rdb       *redis.Client
)

// Config for the optional Redis client.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Init creates the singleton client and verifies connectivity.
func Init(c Config) error {
	var initErr error
	redisOnce.Do(func() {
		cli := redis.NewClient(&redis.Options{
			Addr:     c.Addr,
			Password: c.Password,
			DB:       c.DB,
			PoolSize: c.PoolSize,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := cli.Ping(ctx).Err(); err != nil {
			initErr = err
			return
		}
		rdb = cli
	})
	return initErr
}

// Client returns the singleton, or nil when Init was never called or
// failed.
func Client() *redis.Client {
	return rdb
}

func Close() error {
	if rdb == nil {
		return nil
	}
	return rdb.Close()
}
