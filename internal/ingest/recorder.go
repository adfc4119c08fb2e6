package ingest

import (
	"context"
	"sync"

	"github.com/azure/social-listening/internal/models"
	"github.com/azure/social-listening/internal/storage"
)

// recordingStore passes every call through and keeps a copy of each mention
// that was newly stored.
type recordingStore struct {
	storage.MentionStore

	mu     sync.Mutex
	stored []models.Mention
}

func newRecordingStore(store storage.MentionStore) *recordingStore {
	return &recordingStore{MentionStore: store}
}

func (r *recordingStore) AddMention(ctx context.Context, m *models.Mention) storage.AddResult {
	res := r.MentionStore.AddMention(ctx, m)
	if res.Outcome == storage.Stored {
		rec := *m
		rec.ID = res.ID
		r.mu.Lock()
		r.stored = append(r.stored, rec)
		r.mu.Unlock()
	}
	return res
}

// Stored returns the mentions recorded so far.
func (r *recordingStore) Stored() []models.Mention {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Mention(nil), r.stored...)
}
