// Package store keeps ghost memory in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/tatianab/tildeath/internal/models"
)

const opTimeout = 3 * time.Second

// SQLiteGhostStore is a models.GhostStore backed by a single-row table.
type SQLiteGhostStore struct {
	db *sql.DB
}

var _ models.GhostStore = (*SQLiteGhostStore)(nil)

// OpenSQLite opens (creating if needed) the database at path. ":memory:" is
// accepted for tests.
func OpenSQLite(path string) (*SQLiteGhostStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if path != ":memory:" {
		parent := filepath.Dir(path)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteGhostStore{db: db}, nil
}

func (s *SQLiteGhostStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LoadGhost returns an empty memory when nothing has been saved yet.
func (s *SQLiteGhostStore) LoadGhost(ctx context.Context) (*models.GhostMemory, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
SELECT session_count, revelation_level, last_ending, recent, concepts, mutations
FROM ghost_memory
WHERE id = 1
`)
	var (
		g                           models.GhostMemory
		recent, concepts, mutations string
	)
	err := row.Scan(&g.SessionCount, &g.RevelationLevel, &g.LastEnding, &recent, &concepts, &mutations)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.GhostMemory{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ghost memory: %w", err)
	}

	for _, col := range []struct {
		name string
		raw  string
		dst  any
	}{
		{"recent", recent, &g.Recent},
		{"concepts", concepts, &g.Concepts},
		{"mutations", mutations, &g.Mutations},
	} {
		if err := yaml.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, fmt.Errorf("decode ghost %s: %w", col.name, err)
		}
	}
	return &g, nil
}

func (s *SQLiteGhostStore) SaveGhost(ctx context.Context, g *models.GhostMemory) error {
	if g == nil {
		return fmt.Errorf("nil ghost memory")
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	recent, err := yaml.Marshal(g.Recent)
	if err != nil {
		return err
	}
	concepts, err := yaml.Marshal(g.Concepts)
	if err != nil {
		return err
	}
	mutations, err := yaml.Marshal(g.Mutations)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO ghost_memory (
    id, session_count, revelation_level, last_ending, recent, concepts, mutations, updated_at_ms
)
VALUES (1, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    session_count = excluded.session_count,
    revelation_level = excluded.revelation_level,
    last_ending = excluded.last_ending,
    recent = excluded.recent,
    concepts = excluded.concepts,
    mutations = excluded.mutations,
    updated_at_ms = excluded.updated_at_ms
`, g.SessionCount, g.RevelationLevel, g.LastEnding,
		string(recent), string(concepts), string(mutations),
		time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("write ghost memory: %w", err)
	}
	return nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS ghost_memory (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    session_count INTEGER NOT NULL DEFAULT 0,
    revelation_level INTEGER NOT NULL DEFAULT 0,
    last_ending TEXT NOT NULL DEFAULT '',
    recent TEXT NOT NULL DEFAULT '[]',
    concepts TEXT NOT NULL DEFAULT '[]',
    mutations TEXT NOT NULL DEFAULT '[]',
    updated_at_ms INTEGER NOT NULL
)`)
	return err
}
