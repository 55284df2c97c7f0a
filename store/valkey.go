package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"accounts-service/config"
	"accounts-service/models"

	"github.com/gomodule/redigo/redis"
)

var dialContext = redis.DialContext

// ValkeyStore is a byte cache backed by a Valkey (or any Redis-protocol)
// server. Every failure talking to the server is reported wrapped in
// models.ErrCacheUnavailable.
type ValkeyStore struct {
	pool   *redis.Pool
	prefix string
}

func NewValkeyStore(cfg config.ValkeyConfig) *ValkeyStore {
	pool := &redis.Pool{
		MaxIdle:     cfg.MaxIdle,
		IdleTimeout: cfg.IdleTimeout,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			options := []redis.DialOption{redis.DialDatabase(cfg.DB)}
			if cfg.Password != "" {
				options = append(options, redis.DialPassword(cfg.Password))
			}
			return dialContext(ctx, "tcp", cfg.Addr, options...)
		},
		TestOnBorrow: func(conn redis.Conn, lastUsed time.Time) error {
			if time.Since(lastUsed) < time.Minute {
				return nil
			}
			_, err := conn.Do("PING")
			return err
		},
	}
	return &ValkeyStore{pool: pool, prefix: cfg.Prefix}
}

// Get returns found=false when the key is absent or expired.
func (v *ValkeyStore) Get(ctx context.Context, key string) (value []byte, found bool, err error) {
	reply, err := redis.Bytes(v.do(ctx, "GET", v.key(key)))
	switch {
	case errors.Is(err, redis.ErrNil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return reply, true, nil
}

// Set writes value and its expiry in a single SET, so an interrupted call
// never leaves a key without a TTL.
func (v *ValkeyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("invalid ttl %s for key %q", ttl, key)
	}
	_, err := v.do(ctx, "SET", v.key(key), value, "PX", ttl.Milliseconds())
	return err
}

// SetIfAbsent is Set with NX. It reports false when key already exists.
func (v *ValkeyStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("invalid ttl %s for key %q", ttl, key)
	}
	reply, err := v.do(ctx, "SET", v.key(key), value, "PX", ttl.Milliseconds(), "NX")
	if err != nil {
		return false, err
	}
	return reply != nil, nil
}

func (v *ValkeyStore) Delete(ctx context.Context, key string) error {
	_, err := v.do(ctx, "DEL", v.key(key))
	return err
}

func (v *ValkeyStore) Ping(ctx context.Context) error {
	_, err := v.do(ctx, "PING")
	return err
}

func (v *ValkeyStore) Close() error {
	return v.pool.Close()
}

func (v *ValkeyStore) key(key string) string {
	if v.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", v.prefix, key)
}

func (v *ValkeyStore) do(ctx context.Context, command string, args ...interface{}) (interface{}, error) {
	conn, err := v.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCacheUnavailable, err)
	}
	defer conn.Close()

	reply, err := redis.DoContext(conn, ctx, command, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrCacheUnavailable, command, err)
	}
	return reply, nil
}
