package mgo

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"ChatRelay/logger"
	"ChatRelay/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config represents the MongoDB configuration.
type Config struct {
	URI         string
	Database    string
	Username    string
	Password    string
	AuthSource  string
	MaxPoolSize int
}

type MongoManager struct {
	mu        sync.RWMutex
	db        *mongo.Database
	readyCh   chan struct{} // closed once on first successful connect
	readyOnce sync.Once

	lastErr atomic.Value // error
}

var globalMgr = MongoManager{readyCh: make(chan struct{})}

// StartAsync runs until ctx is done; closes Ready() on the first
// successful connect, reconnects with backoff when the health ping has
// failed repeatedly. The relay starts serving before Mongo is up: store
// calls fail with ErrStore until TryGetDB succeeds.
func StartAsync(ctx context.Context, cfg *Config) {
	go func() {
		const (
			baseBackoff = 200 * time.Millisecond
			maxBackoff  = 5 * time.Second
			healthEvery = 10 * time.Second
			failThresh  = 3
		)

		for {
			// connect phase, backoff with jitter
			attempt := 0
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				db, err := connect(ctx, cfg)
				if err == nil {
					globalMgr.mu.Lock()
					globalMgr.db = db
					globalMgr.mu.Unlock()
					globalMgr.readyOnce.Do(func() { close(globalMgr.readyCh) })
					logger.Infof("[mgo] connected database=%s", cfg.Database)
					break
				}

				globalMgr.lastErr.Store(err)
				logger.Warnf("[mgo] connect failed: %v", err)

				backoff := baseBackoff << attempt
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				jitter := time.Duration(rand.Int63n(int64(backoff/5) + 1))
				timer := time.NewTimer(backoff - jitter/2)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
				if attempt < 6 {
					attempt++
				}
			}

			// health phase: ping until ctx done or repeated failure
			if !healthLoop(ctx, healthEvery, failThresh) {
				return
			}
		}
	}()
}

// healthLoop returns false when ctx is done, true when the connection
// dropped and the caller should reconnect.
func healthLoop(ctx context.Context, every time.Duration, failThresh int) bool {
	fail := 0
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			disconnect()
			return false
		case <-t.C:
			globalMgr.mu.RLock()
			db := globalMgr.db
			globalMgr.mu.RUnlock()
			if db == nil {
				return true
			}
			if err := db.Client().Ping(ctx, nil); err != nil {
				fail++
				globalMgr.lastErr.Store(err)
				if fail >= failThresh {
					logger.Warnf("[mgo] connection lost, reconnecting: %v", err)
					disconnect()
					return true
				}
			} else {
				fail = 0
			}
		}
	}
}

func disconnect() {
	globalMgr.mu.Lock()
	defer globalMgr.mu.Unlock()
	if globalMgr.db != nil {
		_ = globalMgr.db.Client().Disconnect(context.Background())
		globalMgr.db = nil
	}
}

func connect(ctx context.Context, cfg *Config) (*mongo.Database, error) {
	if cfg.URI == "" {
		return nil, errs.ErrStore.WrapMsg("mongo uri is required")
	}
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	}
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		})
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cli, err := mongo.Connect(cctx, opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "mongo connect", "uri", cfg.URI)
	}
	if err := cli.Ping(cctx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, errs.WrapMsg(err, "mongo ping", "uri", cfg.URI)
	}
	return cli.Database(cfg.Database), nil
}

// Ready is closed after the first successful connect.
func Ready() <-chan struct{} {
	return globalMgr.readyCh
}

func WaitReady(ctx context.Context) error {
	select {
	case <-globalMgr.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryGetDB returns the live database handle, or false while disconnected.
func TryGetDB() (*mongo.Database, bool) {
	globalMgr.mu.RLock()
	defer globalMgr.mu.RUnlock()
	if globalMgr.db == nil {
		return nil, false
	}
	return globalMgr.db, true
}

// Connected reports whether a live database handle is held.
func Connected() bool {
	_, ok := TryGetDB()
	return ok
}

// Err returns the most recent connection error.
func Err() error {
	if v := globalMgr.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}
