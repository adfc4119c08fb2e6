package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/azure/social-listening/internal/models"
)

// MemoryStore is a process-local MentionStore. The URL check and the insert
// happen under one lock.
type MemoryStore struct {
	mu       sync.Mutex
	mentions []models.Mention
	byURL    map[string]int64
	sources  []models.Source
	nextID   int64
}

var _ MentionStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byURL: make(map[string]int64)}
}

func (s *MemoryStore) AddMention(ctx context.Context, m *models.Mention) AddResult {
	if err := ctx.Err(); err != nil {
		return AddResult{Outcome: Failed, Err: err}
	}
	if err := m.Validate(); err != nil {
		return AddResult{Outcome: Failed, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byURL[m.URL]; ok {
		return AddResult{Outcome: DuplicateSkipped}
	}
	s.nextID++
	m.ID = s.nextID
	m.FetchedAt = time.Now().UTC()
	s.byURL[m.URL] = m.ID
	s.mentions = append(s.mentions, *m)
	return AddResult{Outcome: Stored, ID: m.ID}
}

func (s *MemoryStore) ListMentions(ctx context.Context, filter models.MentionFilter) ([]models.Mention, error) {
	filter = filter.Normalize()
	q := strings.ToLower(filter.Query)

	s.mu.Lock()
	var matched []models.Mention
	for _, m := range s.mentions {
		if filter.Source != "" && m.Source != filter.Source {
			continue
		}
		if q != "" && !containsFold(m.Title, q) && !containsFold(m.Summary, q) {
			continue
		}
		matched = append(matched, m)
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch {
		case a.PublishedAt == nil && b.PublishedAt != nil:
			return false
		case a.PublishedAt != nil && b.PublishedAt == nil:
			return true
		case a.PublishedAt != nil && !a.PublishedAt.Equal(*b.PublishedAt):
			return a.PublishedAt.After(*b.PublishedAt)
		case !a.FetchedAt.Equal(b.FetchedAt):
			return a.FetchedAt.After(b.FetchedAt)
		}
		return a.ID > b.ID
	})

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], nil
}

func (s *MemoryStore) AddSource(ctx context.Context, src *models.Source) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	src.ID = int64(len(s.sources) + 1)
	s.sources = append(s.sources, *src)
	return src.ID, nil
}

func (s *MemoryStore) ListSources(ctx context.Context) ([]models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.Source(nil), s.sources...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func containsFold(s *string, lowerNeedle string) bool {
	return s != nil && strings.Contains(strings.ToLower(*s), lowerNeedle)
}
