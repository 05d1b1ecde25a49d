package history

import (
	"context"
	"errors"

	"render-studio/internal/imaging"
)

var ErrNotFound = errors.New("history item not found")

// Item is one completed edit. Items are append-only and never mutated after
// creation; listings are ordered newest-first.
type Item struct {
	ID             int64                 `json:"id"`
	Timestamp      string                `json:"timestamp"`
	SourceImage    imaging.SourceImage   `json:"sourceImage"`
	MaskImage      imaging.SourceImage   `json:"maskImage"`
	ReferenceImage *imaging.SourceImage  `json:"referenceImage,omitempty"`
	Prompt         string                `json:"prompt"`
	ResultImage    string                `json:"resultImage"`
}

// Store is the persistence port for edit history. Implementations are keyed
// by a feature-specific string so multiple panels can share one backend.
type Store interface {
	Append(ctx context.Context, key string, item Item) error
	List(ctx context.Context, key string, limit int) ([]Item, error)
	Get(ctx context.Context, key string, id int64) (Item, error)
	Delete(ctx context.Context, key string, id int64) error
}
