package storage

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/domain"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSON snapshot backend
//   - "sqlite": SQLite database file, one document row per owner
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API the core depends on. LoadAll may fail; the
// caller then starts from empty state. SaveOne is the preferred incremental
// form; SaveAll is a whole-snapshot, last-writer-wins write.
type Store interface {
	LoadAll(ctx context.Context) (map[string]*domain.UserProfile, error)
	SaveAll(ctx context.Context, users map[string]*domain.UserProfile) error
	SaveOne(ctx context.Context, ownerID string, p *domain.UserProfile) error
	Close() error
}
