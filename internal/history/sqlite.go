package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS edit_history (
	store_key  TEXT    NOT NULL,
	item_id    INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	payload    TEXT    NOT NULL,
	PRIMARY KEY (store_key, item_id)
);
CREATE INDEX IF NOT EXISTS idx_edit_history_key_created
	ON edit_history (store_key, created_at DESC);
`

type SQLiteOptions struct {
	Path     string
	MaxItems int
	Logger   *slog.Logger
}

// SQLiteStore persists history items as JSON payloads in a local SQLite
// database. Each key's list is trimmed to MaxItems on append, oldest first.
type SQLiteStore struct {
	db       *sql.DB
	maxItems int
	logger   *slog.Logger
}

func OpenSQLite(opts SQLiteOptions) (*SQLiteStore, error) {
	path := opts.Path
	if path == "" {
		path = "render-studio.db"
	}

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("history: mkdir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: schema: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxItems := opts.MaxItems
	if maxItems <= 0 {
		maxItems = 200
	}

	return &SQLiteStore{db: db, maxItems: maxItems, logger: logger}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, key string, item Item) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO edit_history (store_key, item_id, created_at, payload) VALUES (?, ?, ?, ?)",
		key, item.ID, item.ID, string(payload),
	); err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}

	// Keep the per-key list bounded, dropping the oldest entries.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM edit_history WHERE store_key = ? AND item_id NOT IN (
			SELECT item_id FROM edit_history WHERE store_key = ?
			ORDER BY created_at DESC LIMIT ?)`,
		key, key, s.maxItems,
	); err != nil {
		return fmt.Errorf("history: trim: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) List(ctx context.Context, key string, limit int) ([]Item, error) {
	if limit <= 0 || limit > s.maxItems {
		limit = s.maxItems
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM edit_history WHERE store_key = ? ORDER BY created_at DESC LIMIT ?",
		key, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}

		var item Item
		if err := json.Unmarshal([]byte(payload), &item); err != nil {
			// A corrupt row should not take the whole panel down.
			s.logger.Warn("history: skipping corrupt row", "key", key, "err", err)
			continue
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, key string, id int64) (Item, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM edit_history WHERE store_key = ? AND item_id = ?",
		key, id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("history: get: %w", err)
	}

	var item Item
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		return Item{}, fmt.Errorf("history: decode: %w", err)
	}
	return item, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM edit_history WHERE store_key = ? AND item_id = ?", key, id)
	if err != nil {
		return fmt.Errorf("history: delete: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
