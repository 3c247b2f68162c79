package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"remindbot/internal/domain"
	logx "remindbot/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS profiles (
    owner_id TEXT PRIMARY KEY,
    doc      TEXT NOT NULL,
    updated  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
`

// sqliteStore keeps one JSON document per owner. The document layout matches
// the file driver so the two are interchangeable.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadAll(ctx context.Context) (map[string]*domain.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner_id, doc FROM profiles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := map[string]*domain.UserProfile{}
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		var p domain.UserProfile
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			s.log.Warn("skipping unreadable profile document", logx.String("owner", id), logx.Err(err))
			continue
		}
		if p.OwnerID == "" {
			p.OwnerID = id
		}
		p.FillDefaults()
		users[id] = &p
	}
	return users, rows.Err()
}

func (s *sqliteStore) SaveAll(ctx context.Context, users map[string]*domain.UserProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for id, p := range users {
		if err := upsertProfile(ctx, tx, id, p); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) SaveOne(ctx context.Context, ownerID string, p *domain.UserProfile) error {
	return upsertProfile(ctx, s.db, ownerID, p)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertProfile(ctx context.Context, db execer, ownerID string, p *domain.UserProfile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO profiles(owner_id, doc) VALUES(?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET doc = excluded.doc,
		     updated = strftime('%Y-%m-%dT%H:%M:%fZ','now')`,
		ownerID, string(doc),
	)
	return err
}
