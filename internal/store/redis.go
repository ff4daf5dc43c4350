package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skillissue/mockview/internal/models"
)

// Key prefixes.
const (
	KeySession = "session:"
	KeyReport  = "report:"
)

// RedisStore keeps sessions and reports as JSON strings that expire after a
// TTL. A zero TTL keeps them forever.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	slog.Debug("Connected to redis", "addr", opts.Addr)
	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// SaveSession stores the session under session:<id>.
func (s *RedisStore) SaveSession(ctx context.Context, sess *models.Session) error {
	if err := checkID(sess.ID); err != nil {
		return err
	}
	return s.set(ctx, KeySession+sess.ID, sess)
}

// LoadSession reads session:<id>.
func (s *RedisStore) LoadSession(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	if err := s.get(ctx, KeySession+id, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// SaveReport stores the report under report:<id>.
func (s *RedisStore) SaveReport(ctx context.Context, r *models.SessionReport) error {
	if err := checkID(r.SessionID); err != nil {
		return err
	}
	return s.set(ctx, KeyReport+r.SessionID, r)
}

// LoadReport reads report:<id>.
func (s *RedisStore) LoadReport(ctx context.Context, id string) (*models.SessionReport, error) {
	var r models.SessionReport
	if err := s.get(ctx, KeyReport+id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	slog.Debug("Stored record", "key", key, "bytes", len(data), "ttl", s.ttl)
	return nil
}

func (s *RedisStore) get(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	return nil
}
