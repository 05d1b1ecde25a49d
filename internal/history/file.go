package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type FileOptions struct {
	Path     string
	MaxItems int
	Debounce time.Duration
	Logger   *slog.Logger
}

// FileStore keeps all history in memory and rewrites one JSON file on change.
// Rapid successive appends are coalesced by a debounce timer so a burst of
// edits costs one disk write.
type FileStore struct {
	mu       sync.Mutex
	path     string
	maxItems int
	debounce time.Duration
	logger   *slog.Logger

	lists map[string][]Item
	timer *time.Timer
}

func OpenFile(opts FileOptions) (*FileStore, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("history: file path is required")
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 800 * time.Millisecond
	}

	maxItems := opts.MaxItems
	if maxItems <= 0 {
		maxItems = 200
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &FileStore{
		path:     opts.Path,
		maxItems: maxItems,
		debounce: debounce,
		logger:   logger,
		lists:    make(map[string][]Item),
	}

	data, err := os.ReadFile(opts.Path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("history: read: %w", err)
	default:
		if err := json.Unmarshal(data, &s.lists); err != nil {
			logger.Warn("history: corrupt file, starting empty", "path", opts.Path, "err", err)
			s.lists = make(map[string][]Item)
		}
	}

	return s, nil
}

func (s *FileStore) Append(_ context.Context, key string, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Newest first.
	list := append([]Item{item}, s.lists[key]...)
	if len(list) > s.maxItems {
		list = list[:s.maxItems]
	}
	s.lists[key] = list

	s.scheduleFlushLocked()
	return nil
}

func (s *FileStore) List(_ context.Context, key string, limit int) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[key]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}

	out := make([]Item, limit)
	copy(out, list[:limit])
	return out, nil
}

func (s *FileStore) Get(_ context.Context, key string, id int64) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.lists[key] {
		if item.ID == id {
			return item, nil
		}
	}
	return Item{}, ErrNotFound
}

func (s *FileStore) Delete(_ context.Context, key string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[key]
	for i, item := range list {
		if item.ID == id {
			s.lists[key] = append(list[:i:i], list[i+1:]...)
			s.scheduleFlushLocked()
			return nil
		}
	}
	return ErrNotFound
}

// Flush forces any pending write to disk immediately. Called on shutdown.
func (s *FileStore) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	data, err := json.MarshalIndent(s.lists, "", "  ")
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}
	return s.writeFile(data)
}

func (s *FileStore) scheduleFlushLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.Flush(); err != nil {
			s.logger.Error("history: flush failed", "err", err)
		}
	})
}

func (s *FileStore) writeFile(data []byte) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("history: mkdir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("history: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("history: rename: %w", err)
	}
	return nil
}
