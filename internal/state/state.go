// Package state owns the in-memory user map and its write-through
// persistence. Every mutation of shared profile data goes through one mutex,
// which stands in for the single-threaded event loop of the original design:
// command handlers, timer callbacks and sweeper ticks never run business
// logic on the same profile concurrently.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jmhodges/clock"

	"remindbot/internal/domain"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

type State struct {
	log   logx.Logger
	clk   clock.Clock
	store storage.Store

	mu    sync.Mutex
	users map[string]*domain.UserProfile

	// saving guards whole-store saves: a second concurrent full save is
	// skipped rather than queued, to bound latency.
	saving atomic.Bool
}

func New(store storage.Store, clk clock.Clock, log logx.Logger) *State {
	return &State{
		log:   log,
		clk:   clk,
		store: store,
		users: map[string]*domain.UserProfile{},
	}
}

// Load replaces the in-memory map with the persisted snapshot. A load
// failure leaves the state empty; the caller logs and continues, since
// there is nothing to recover from an unreadable store.
func (s *State) Load(ctx context.Context) error {
	users, err := s.store.LoadAll(ctx)
	if err != nil {
		s.mu.Lock()
		s.users = map[string]*domain.UserProfile{}
		s.mu.Unlock()
		return fmt.Errorf("load store: %w", err)
	}
	s.mu.Lock()
	s.users = users
	s.mu.Unlock()
	s.log.Info("store loaded", logx.Int("users", len(users)))
	return nil
}

// Update runs fn on the owner's profile under the state lock, creating the
// profile on first interaction, and persists the result with a per-owner
// save. If the save fails, the in-memory profile is rolled back to its
// pre-fn snapshot so store and memory never silently diverge.
func (s *State) Update(ctx context.Context, ownerID string, fn func(p *domain.UserProfile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.ensureLocked(ownerID)
	snap, snapErr := json.Marshal(p)

	if err := fn(p); err != nil {
		return err
	}

	if err := s.store.SaveOne(ctx, ownerID, p); err != nil {
		if snapErr == nil {
			restored := &domain.UserProfile{}
			if json.Unmarshal(snap, restored) == nil {
				restored.FillDefaults()
				s.users[ownerID] = restored
			}
		}
		return fmt.Errorf("persist %s: %w", ownerID, err)
	}
	return nil
}

// View runs fn read-only on the owner's profile, creating it on first
// interaction. Mutations inside fn are not persisted.
func (s *State) View(ownerID string, fn func(p *domain.UserProfile)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.ensureLocked(ownerID))
}

// Range calls fn for every profile under the state lock. Mutations made by
// fn are in-memory only; pair with SaveAll for a batch persist.
func (s *State) Range(fn func(ownerID string, p *domain.UserProfile)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.users {
		fn(id, p)
	}
}

// Owners returns the current owner ids. Used by sweeps that want per-owner
// error isolation instead of holding the lock across all owners.
func (s *State) Owners() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.users))
	for id := range s.users {
		out = append(out, id)
	}
	return out
}

// SaveAll persists the whole snapshot. If another full save is already in
// flight the call is skipped; callers needing durability should retry.
func (s *State) SaveAll(ctx context.Context) error {
	if !s.saving.CompareAndSwap(false, true) {
		s.log.Debug("full save already in flight, skipping")
		return nil
	}
	defer s.saving.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.SaveAll(ctx, s.users); err != nil {
		return fmt.Errorf("save all: %w", err)
	}
	return nil
}

// UserCount reports how many profiles are loaded.
func (s *State) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *State) ensureLocked(ownerID string) *domain.UserProfile {
	p, ok := s.users[ownerID]
	if !ok {
		p = domain.NewUserProfile(ownerID, s.clk.Now())
		s.users[ownerID] = p
		s.log.Info("profile created", logx.String("owner", ownerID))
	}
	return p
}
