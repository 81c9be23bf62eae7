package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/wallroll/pkg/models"
)

// DefaultKeyPrefix namespaces session keys in Redis.
const DefaultKeyPrefix = "wallroll:session:"

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string        // host:port
	Password string        // Optional AUTH password
	DB       int           // Database index
	TTL      time.Duration // Key expiry, refreshed on every Put (default: SessionTimeout)
	Prefix   string        // Key prefix (default: DefaultKeyPrefix)
	MaxIdle  int           // Idle pool connections (default: 4)
}

// RedisStore keeps sessions in Redis so several workers can share them.
// Expiry is delegated to Redis key TTLs.
type RedisStore struct {
	pool   *redis.Pool
	ttl    time.Duration
	prefix string
}

// NewRedisStore creates a pooled Redis store and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = 4
	}

	pool := &redis.Pool{
		MaxIdle:     maxIdle,
		IdleTimeout: 4 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", cfg.Addr,
				redis.DialPassword(cfg.Password),
				redis.DialDatabase(cfg.DB),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}

	s := newRedisStore(pool, cfg)
	if err := s.Ping(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return s, nil
}

func newRedisStore(pool *redis.Pool, cfg RedisConfig) *RedisStore {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = SessionTimeout
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{pool: pool, ttl: ttl, prefix: prefix}
}

// Ping verifies the Redis connection is alive.
func (r *RedisStore) Ping(ctx context.Context) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = redis.DoContext(conn, ctx, "PING")
	return err
}

// Get loads the session for key. Undecodable entries are dropped and reported as absent.
func (r *RedisStore) Get(ctx context.Context, key string) (*models.Session, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("get redis connection: %w", err)
	}
	defer conn.Close()

	data, err := redis.Bytes(redis.DoContext(conn, ctx, "GET", r.key(key)))
	if errors.Is(err, redis.ErrNil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	s, err := decodeSession(data)
	if err != nil {
		log.Warn().Err(err).Str("chat", key).Msg("Dropping unreadable session")
		if _, delErr := redis.DoContext(conn, ctx, "DEL", r.key(key)); delErr != nil {
			log.Warn().Err(delErr).Str("chat", key).Msg("Failed to delete unreadable session")
		}
		return nil, nil
	}
	return s, nil
}

// Put stores s under key and refreshes its expiry.
func (r *RedisStore) Put(ctx context.Context, key string, s *models.Session) error {
	data, err := encodeSession(s)
	if err != nil {
		return err
	}

	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("get redis connection: %w", err)
	}
	defer conn.Close()

	if _, err := redis.DoContext(conn, ctx, "SET", r.key(key), data, "PX", r.ttl.Milliseconds()); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// Clear removes the session for key.
func (r *RedisStore) Clear(ctx context.Context, key string) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("get redis connection: %w", err)
	}
	defer conn.Close()

	if _, err := redis.DoContext(conn, ctx, "DEL", r.key(key)); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close releases pooled connections.
func (r *RedisStore) Close() error {
	return r.pool.Close()
}

func (r *RedisStore) key(chat string) string {
	return r.prefix + chat
}

func encodeSession(s *models.Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return data, nil
}

func decodeSession(data []byte) (*models.Session, error) {
	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}
	return &s, nil
}
