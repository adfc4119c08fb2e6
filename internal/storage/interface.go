package storage

import (
	"context"
	"fmt"

	"github.com/azure/social-listening/internal/models"
)

// Outcome describes what happened to a single AddMention call.
type Outcome int

const (
	Stored Outcome = iota
	DuplicateSkipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Stored:
		return "stored"
	case DuplicateSkipped:
		return "duplicate"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// AddResult is returned for every add attempt. Err is only set for Failed.
type AddResult struct {
	Outcome Outcome
	ID      int64
	Err     error
}

// MentionStore is the idempotent persistence contract. AddMention must be
// atomic per URL and safe for concurrent use.
type MentionStore interface {
	AddMention(ctx context.Context, m *models.Mention) AddResult
	ListMentions(ctx context.Context, filter models.MentionFilter) ([]models.Mention, error)
	AddSource(ctx context.Context, s *models.Source) (int64, error)
	ListSources(ctx context.Context) ([]models.Source, error)
	Close() error
}

// BlobStore defines the contract for archive storage operations
type BlobStore interface {
	Store(ctx context.Context, name string, data []byte) error
	Retrieve(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}
