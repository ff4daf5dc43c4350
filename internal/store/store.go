// Package store archives finished sessions and their reports.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/skillissue/mockview/internal/config"
	"github.com/skillissue/mockview/internal/models"
)

// ErrNotFound is returned when no record exists for an id.
var ErrNotFound = errors.New("not found")

// Store persists sessions and reports keyed by session id.
type Store interface {
	SaveSession(ctx context.Context, s *models.Session) error
	LoadSession(ctx context.Context, id string) (*models.Session, error)
	SaveReport(ctx context.Context, r *models.SessionReport) error
	LoadReport(ctx context.Context, id string) (*models.SessionReport, error)
	Close() error
}

// Open returns the store selected by cfg. File stores live under dir.
func Open(ctx context.Context, cfg config.StoreConfig, dir string) (Store, error) {
	switch cfg.Kind {
	case "", "file":
		return NewFileStore(dir), nil
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("store.redis_url is required for the redis store")
		}
		return NewRedisStore(ctx, cfg.RedisURL, cfg.TTL.Std())
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}

func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}
