package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisPrefix namespaces cache rows in a shared Redis.
const DefaultRedisPrefix = "unified_cache:"

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

// Redis stores each row as a hash with a server-side expiry.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Address == "" {
		cfg.Address = "localhost:6379"
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedis(rdb, cfg.Prefix), nil
}

// NewRedis wraps an existing client. An empty prefix selects DefaultRedisPrefix.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) redisKey(key string) string {
	return r.prefix + key
}

func (r *Redis) Get(ctx context.Context, key string, now time.Time) (Row, bool, error) {
	fields, err := r.rdb.HGetAll(ctx, r.redisKey(key)).Result()
	if err != nil {
		return Row{}, false, fmt.Errorf("hgetall %q: %w", key, err)
	}
	if len(fields) == 0 {
		return Row{}, false, nil
	}

	row, err := decodeHash(key, fields)
	if err != nil {
		return Row{}, false, err
	}
	// PEXPIREAT may lag; the row's own expiry is authoritative.
	if row.Expired(now) {
		return Row{}, false, nil
	}
	return row, true, nil
}

func (r *Redis) Upsert(ctx context.Context, row Row) error {
	rk := r.redisKey(row.Key)
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, rk)
	pipe.HSet(ctx, rk, map[string]interface{}{
		"data":       string(row.Data),
		"expires_at": strconv.FormatInt(row.ExpiresAt.UnixMilli(), 10),
		"created_at": strconv.FormatInt(row.CreatedAt.UnixMilli(), 10),
		"category":   row.Category,
	})
	pipe.PExpireAt(ctx, rk, row.ExpiresAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert %q: %w", row.Key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Del(ctx, r.redisKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}
	return n > 0, nil
}

func (r *Redis) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	err := r.scan(ctx, func(rk string) error {
		ms, err := r.rdb.HGet(ctx, rk, "expires_at").Int64()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		if now.Before(time.UnixMilli(ms)) {
			return nil
		}
		n, err := r.rdb.Del(ctx, rk).Result()
		removed += n
		return err
	})
	if err != nil {
		return removed, fmt.Errorf("delete expired: %w", err)
	}
	return removed, nil
}

func (r *Redis) Truncate(ctx context.Context) error {
	err := r.scan(ctx, func(rk string) error {
		return r.rdb.Del(ctx, rk).Err()
	})
	if err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
}

func (r *Redis) scan(ctx context.Context, fn func(redisKey string) error) error {
	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

func decodeHash(key string, fields map[string]string) (Row, error) {
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return Row{}, fmt.Errorf("decode %q expires_at: %w", key, err)
	}
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return Row{}, fmt.Errorf("decode %q created_at: %w", key, err)
	}
	data := fields["data"]
	if !json.Valid([]byte(data)) {
		return Row{}, fmt.Errorf("decode %q: data is not valid JSON", key)
	}
	return Row{
		Key:       key,
		Data:      json.RawMessage(data),
		ExpiresAt: time.UnixMilli(expires),
		CreatedAt: time.UnixMilli(created),
		Category:  fields["category"],
	}, nil
}

var _ Backend = (*Redis)(nil)
