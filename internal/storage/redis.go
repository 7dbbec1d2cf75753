package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"smartdesk/internal/core"
)

// sessionDoc is the stored session document: the log plus its id allocator,
// so ids stay monotonic across process restarts while the key lives.
type sessionDoc struct {
	NextID   int64          `json:"next_id"`
	Messages []core.Message `json:"messages"`
}

// RedisStore keeps session logs as single documents in Redis, the cache-style
// backend. The TTL is refreshed on every read and write. A process-local
// mutex serializes the read-modify-write cycle between the foreground turn
// and the background reminder writer.
type RedisStore struct {
	mu     sync.Mutex
	client *redis.Client
	ttl    time.Duration
	policy PrunePolicy
	now    func() time.Time
}

func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration, policy PrunePolicy) (*RedisStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required for the redis store backend")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl, policy: policy, now: time.Now}, nil
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func (r *RedisStore) load(ctx context.Context, sessionID string) (*sessionDoc, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return &sessionDoc{NextID: 1}, nil
	}
	if err != nil {
		return nil, storageErr(err)
	}

	var doc sessionDoc
	if err := sonic.Unmarshal([]byte(data), &doc); err != nil {
		return nil, storageErr(err)
	}
	if doc.NextID == 0 {
		doc.NextID = 1
	}
	if r.ttl > 0 {
		r.client.Expire(ctx, sessionKey(sessionID), r.ttl)
	}
	return &doc, nil
}

func (r *RedisStore) save(ctx context.Context, sessionID string, doc *sessionDoc) error {
	data, err := sonic.Marshal(doc)
	if err != nil {
		return storageErr(err)
	}
	if err := r.client.Set(ctx, sessionKey(sessionID), data, r.ttl).Err(); err != nil {
		return storageErr(err)
	}
	return nil
}

func (r *RedisStore) Append(ctx context.Context, sessionID string, msg core.Message) (core.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(ctx, sessionID)
	if err != nil {
		return core.Message{}, err
	}

	msg.ID = doc.NextID
	doc.NextID++
	if msg.Timestamp.IsZero() {
		msg.Timestamp = r.now()
	}
	doc.Messages = append(doc.Messages, msg)

	if n := r.policy.drop(doc.Messages, r.now()); n > 0 {
		doc.Messages = doc.Messages[n:]
	}
	if err := r.save(ctx, sessionID, doc); err != nil {
		return core.Message{}, err
	}
	return msg, nil
}

func (r *RedisStore) Recent(ctx context.Context, sessionID string, n int) ([]core.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return append([]core.Message(nil), tail(doc.Messages, n)...), nil
}

func (r *RedisStore) Prune(ctx context.Context, sessionID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	n := r.policy.drop(doc.Messages, r.now())
	if n == 0 {
		return 0, nil
	}
	doc.Messages = doc.Messages[n:]
	if err := r.save(ctx, sessionID, doc); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *RedisStore) Clear(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return storageErr(err)
	}
	return nil
}

func (r *RedisStore) Close() error { return r.client.Close() }
