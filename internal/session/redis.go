package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig configures a Redis connection.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(cfg *RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// redisEnvelope is the stored representation of an entry.
type redisEnvelope struct {
	Version uint64          `json:"version"`
	Value   json.RawMessage `json:"value"`
}

// RedisStore stores sessions in Redis so several orchestrator instances
// can share protocol state. Writes run in WATCH/MULTI transactions.
type RedisStore[T any] struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisStore creates a store on an existing client. Close does not close the client.
func NewRedisStore[T any](client *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisStore[T] {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore[T]{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger.Named("redis_store"),
	}
}

func (r *RedisStore[T]) key(key string) string {
	return r.keyPrefix + key
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore[T]) read(ctx context.Context, getter stringGetter, key string) (*redisEnvelope, error) {
	data, err := getter.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var env redisEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", key, err)
	}
	return &env, nil
}

func (r *RedisStore[T]) Get(ctx context.Context, key string) (*Entry[T], error) {
	env, err := r.read(ctx, r.client, key)
	if err != nil {
		return nil, err
	}

	var value T
	if err := json.Unmarshal(env.Value, &value); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", key, err)
	}
	return &Entry[T]{Value: value, Version: env.Version}, nil
}

// write commits value when check accepts the current version.
func (r *RedisStore[T]) write(ctx context.Context, key string, value T, check func(current uint64) error) (uint64, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}

	var next uint64
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		var current uint64
		env, err := r.read(ctx, tx, key)
		switch {
		case err == nil:
			current = env.Version
		case errors.Is(err, ErrNotFound):
		default:
			return err
		}

		if err := check(current); err != nil {
			return err
		}

		next = current + 1
		data, err := json.Marshal(redisEnvelope{Version: next, Value: raw})
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key(key), data, r.ttl)
			return nil
		})
		return err
	}, r.key(key))
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *RedisStore[T]) Put(ctx context.Context, key string, value T) (uint64, error) {
	noCheck := func(uint64) error { return nil }
	for attempt := 0; ; attempt++ {
		version, err := r.write(ctx, key, value, noCheck)
		if errors.Is(err, redis.TxFailedErr) && attempt < DefaultMaxRetries {
			continue
		}
		return version, err
	}
}

func (r *RedisStore[T]) CompareAndSwap(ctx context.Context, key string, version uint64, value T) (uint64, error) {
	next, err := r.write(ctx, key, value, func(current uint64) error {
		if current != version {
			return ErrVersionConflict
		}
		return nil
	})
	if errors.Is(err, redis.TxFailedErr) {
		r.logger.Debug("Concurrent write detected", zap.String("key", key))
		return 0, ErrVersionConflict
	}
	return next, err
}

func (r *RedisStore[T]) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RedisStore[T]) Close() error {
	return nil
}
