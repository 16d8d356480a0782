package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hupe1980/agentchain/core"
	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the Redis connection of a RedisStore.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// Prefix namespaces every key. Defaults to "agentchain:session".
	Prefix string
	// TTL expires idle sessions. Zero keeps them forever.
	TTL time.Duration
}

// RedisStore persists sessions in Redis. Each session uses three keys:
//
//	<prefix>:<app>:<user>:<session>:meta    hash  created / updated (unix nanos)
//	<prefix>:<app>:<user>:<session>:state   hash  state key -> JSON value
//	<prefix>:<app>:<user>:<session>:events  list  JSON encoded events
//
// State values round-trip through JSON, so numbers come back as float64.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ core.SessionStore = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address must not be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "agentchain:session"
	}

	return &RedisStore{client: client, prefix: prefix, ttl: cfg.TTL}
}

func (s *RedisStore) key(k core.SessionKey, suffix string) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", s.prefix, k.AppName, k.UserID, k.SessionID, suffix)
}

// Create stores a new session seeded with initialState.
func (s *RedisStore) Create(ctx context.Context, key core.SessionKey, initialState map[string]any) (*core.Session, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	created, err := s.client.HSetNX(ctx, s.key(key, "meta"), "created", now.UnixNano()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis create session: %w", err)
	}

	if !created {
		return nil, exists(key)
	}

	fields, err := encodeState(initialState)
	if err != nil {
		return nil, err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(key, "meta"), "updated", now.UnixNano())

		if len(fields) > 0 {
			pipe.HSet(ctx, s.key(key, "state"), fields)
		}

		s.touch(ctx, pipe, key)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis create session: %w", err)
	}

	sess := core.NewSession(key)
	sess.Created, sess.Updated = now, now
	sess.ApplyStateDelta(initialState)
	sess.Updated = now

	return sess, nil
}

// Get loads the session stored under key.
func (s *RedisStore) Get(ctx context.Context, key core.SessionKey) (*core.Session, error) {
	meta, err := s.client.HGetAll(ctx, s.key(key, "meta")).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	if len(meta) == 0 {
		return nil, notFound(key)
	}

	rawState, err := s.client.HGetAll(ctx, s.key(key, "state")).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get state: %w", err)
	}

	rawEvents, err := s.client.LRange(ctx, s.key(key, "events"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get events: %w", err)
	}

	sess := core.NewSession(key)

	for k, raw := range rawState {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode state key %q: %w", k, err)
		}

		sess.State[k] = v
	}

	for _, raw := range rawEvents {
		var ev core.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}

		sess.Events = append(sess.Events, ev)
	}

	sess.Created = parseNanos(meta["created"])
	sess.Updated = parseNanos(meta["updated"])

	return sess, nil
}

// AppendEvent pushes an event onto the session history.
func (s *RedisStore) AppendEvent(ctx context.Context, key core.SessionKey, ev core.Event) error {
	if err := s.ensure(ctx, key); err != nil {
		return err
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.key(key, "events"), raw)
		pipe.HSet(ctx, s.key(key, "meta"), "updated", time.Now().UTC().UnixNano())
		s.touch(ctx, pipe, key)

		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append event: %w", err)
	}

	return nil
}

// ApplyDelta merges delta into the session state hash.
func (s *RedisStore) ApplyDelta(ctx context.Context, key core.SessionKey, delta map[string]any) error {
	if err := s.ensure(ctx, key); err != nil {
		return err
	}

	fields, err := encodeState(delta)
	if err != nil {
		return err
	}

	if len(fields) == 0 {
		return nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(key, "state"), fields)
		pipe.HSet(ctx, s.key(key, "meta"), "updated", time.Now().UTC().UnixNano())
		s.touch(ctx, pipe, key)

		return nil
	})
	if err != nil {
		return fmt.Errorf("redis apply delta: %w", err)
	}

	return nil
}

// Delete removes every key of the session.
func (s *RedisStore) Delete(ctx context.Context, key core.SessionKey) error {
	n, err := s.client.Del(ctx, s.key(key, "meta"), s.key(key, "state"), s.key(key, "events")).Result()
	if err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}

	if n == 0 {
		return notFound(key)
	}

	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) ensure(ctx context.Context, key core.SessionKey) error {
	n, err := s.client.Exists(ctx, s.key(key, "meta")).Result()
	if err != nil {
		return fmt.Errorf("redis lookup session: %w", err)
	}

	if n == 0 {
		return notFound(key)
	}

	return nil
}

func (s *RedisStore) touch(ctx context.Context, pipe redis.Pipeliner, key core.SessionKey) {
	if s.ttl <= 0 {
		return
	}

	for _, suffix := range []string{"meta", "state", "events"} {
		pipe.Expire(ctx, s.key(key, suffix), s.ttl)
	}
}

func encodeState(values map[string]any) (map[string]any, error) {
	fields := make(map[string]any, len(values))

	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode state key %q: %w", k, err)
		}

		fields[k] = string(raw)
	}

	return fields, nil
}

func parseNanos(raw string) time.Time {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}

	return time.Unix(0, n).UTC()
}
