// Package config loads the bot configuration from a JSON or YAML file,
// decodes it strictly, and republishes validated updates when the file
// changes on disk.
package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "remindbot/pkg/logx"
)

// debounceDelay absorbs the burst of events editors emit for one save, and
// lets atomic rename-writes settle before reading.
const debounceDelay = 250 * time.Millisecond

type Manager struct {
	path string

	mu       sync.RWMutex
	cfg      *Config
	lastHash uint64

	// subsMu guards the subscriber list so publish never races Unsubscribe.
	subsMu sync.Mutex
	subs   []chan *Config

	log logx.Logger
}

func NewManager(path string, log logx.Logger) *Manager {
	return &Manager{path: path, log: log}
}

// Parse reads and strictly decodes the config file without committing it.
func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	jb, err := coerceToJSON(m.path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.path, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("decode %s: trailing data", m.path)
	}
	return &cfg, nil
}

// Load parses, validates and commits the config. Called once at startup.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m.commit(cfg)
	return cfg, nil
}

// Get returns the last committed config.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

// Subscribe returns a channel receiving each validated config update.
func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			m.subs[i] = m.subs[len(m.subs)-1]
			m.subs = m.subs[:len(m.subs)-1]
			close(ch)
			return
		}
	}
}

func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- cfg:
		default:
			// Slow subscriber: drop its oldest update, keep the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg:
			default:
				m.log.Debug("config update dropped, subscriber slow")
			}
		}
	}
}

// Watch blocks until ctx is done, reloading the file on change. Invalid or
// unchanged content is skipped; the watcher is recreated with backoff when
// it breaks.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	var timerMu sync.Mutex
	var timer *time.Timer
	reload := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceDelay, func() { m.reload() })
	}

	backoff := 250 * time.Millisecond
	for ctx.Err() == nil {
		w, err := fsnotify.NewWatcher()
		if err == nil {
			err = w.Add(dir)
			if err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			m.log.Warn("config watch setup failed", logx.Err(err), logx.String("dir", dir))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = 250 * time.Millisecond
		m.log.Debug("config watcher started", logx.String("path", m.path))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) {
					reload()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				m.log.Warn("config watch error", logx.Err(err))
			}
		}
		_ = w.Close()
	}
	return nil
}

func (m *Manager) reload() {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config reload parse failed", logx.String("path", m.path), logx.Err(err))
		return
	}
	if err := cfg.Validate(); err != nil {
		m.log.Warn("config reload rejected", logx.String("path", m.path), logx.Err(err))
		return
	}

	h := hashConfig(cfg)
	m.mu.RLock()
	unchanged := h != 0 && h == m.lastHash
	old := m.cfg
	m.mu.RUnlock()
	if unchanged {
		m.log.Debug("config unchanged, skipping publish")
		return
	}

	m.commit(cfg)
	m.publish(cfg)
	m.log.Info("config reloaded",
		logx.String("path", m.path),
		logx.Any("changed", ChangedSections(old, cfg)))
}

func hashConfig(cfg *Config) uint64 {
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
