package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"remindbot/internal/domain"
	logx "remindbot/pkg/logx"
)

// fileStore keeps the whole user map in one JSON snapshot. Writes go through
// a temp file + rename so a crash mid-write never corrupts the snapshot.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) LoadAll(ctx context.Context) (map[string]*domain.UserProfile, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]*domain.UserProfile{}, nil
		}
		return nil, err
	}
	users := map[string]*domain.UserProfile{}
	if err := json.Unmarshal(b, &users); err != nil {
		return nil, err
	}
	for id, p := range users {
		if p == nil {
			delete(users, id)
			continue
		}
		if p.OwnerID == "" {
			p.OwnerID = id
		}
		p.FillDefaults()
	}
	return users, nil
}

func (s *fileStore) SaveAll(ctx context.Context, users map[string]*domain.UserProfile) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSnapshot(users)
}

// SaveOne on the file driver reads back the snapshot, replaces one owner and
// rewrites it. The snapshot stays small (one document per user), so this is
// cheaper than it looks and keeps the on-disk format to a single file.
func (s *fileStore) SaveOne(ctx context.Context, ownerID string, p *domain.UserProfile) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	users := map[string]*domain.UserProfile{}
	b, err := os.ReadFile(s.path)
	if err == nil {
		if err := json.Unmarshal(b, &users); err != nil {
			s.log.Warn("snapshot unreadable, rewriting from scratch", logx.Err(err))
			users = map[string]*domain.UserProfile{}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	users[ownerID] = p
	return s.writeSnapshot(users)
}

func (s *fileStore) writeSnapshot(users map[string]*domain.UserProfile) error {
	b, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
