package store

import (
	"context"
	"encoding/json"

	"ChatRelay/logger"
	redisx "ChatRelay/service/storage/redis"
)

const recentKey = "chatrelay:recent"

// CachedStore fronts a MessageStore with a Redis rolling window of the
// most recent messages. Append writes through; Recent is served from the
// cache when it holds enough entries and falls back to the inner store
// otherwise. Cache failures degrade silently to the inner store.
type CachedStore struct {
	inner  MessageStore
	window int
}

func NewCachedStore(inner MessageStore, window int) *CachedStore {
	if window <= 0 {
		window = 200
	}
	return &CachedStore{inner: inner, window: window}
}

func (s *CachedStore) Append(ctx context.Context, m *ChatMessage) (string, error) {
	id, err := s.inner.Append(ctx, m)
	if err != nil {
		return id, err
	}

	if rdb := redisx.Client(); rdb != nil {
		b, merr := json.Marshal(m)
		if merr == nil {
			pipe := rdb.TxPipeline()
			pipe.LPush(ctx, recentKey, b)
			pipe.LTrim(ctx, recentKey, 0, int64(s.window)-1)
			if _, perr := pipe.Exec(ctx); perr != nil {
				logger.Warnf("[cache] append window: %v", perr)
			}
		}
	}
	return id, nil
}

func (s *CachedStore) Recent(ctx context.Context, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	rdb := redisx.Client()
	if rdb != nil && limit <= s.window {
		// list is newest first
		vals, err := rdb.LRange(ctx, recentKey, 0, int64(limit)-1).Result()
		if err == nil && len(vals) >= limit {
			out := make([]ChatMessage, 0, len(vals))
			for i := len(vals) - 1; i >= 0; i-- {
				var m ChatMessage
				if uerr := json.Unmarshal([]byte(vals[i]), &m); uerr != nil {
					out = nil
					break
				}
				out = append(out, m)
			}
			if out != nil {
				return out, nil
			}
		} else if err != nil {
			logger.Warnf("[cache] read window: %v", err)
		}
	}

	return s.inner.Recent(ctx, limit)
}
