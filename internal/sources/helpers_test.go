package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/azure/social-listening/internal/models"
	"github.com/azure/social-listening/internal/storage"
	"github.com/stretchr/testify/require"
)

// storedByURL lists everything in store keyed by URL.
func storedByURL(t *testing.T, store storage.MentionStore) map[string]models.Mention {
	t.Helper()
	all, err := store.ListMentions(context.Background(), models.MentionFilter{Limit: models.MaxListLimit})
	require.NoError(t, err)
	out := make(map[string]models.Mention, len(all))
	for _, m := range all {
		_, dup := out[m.URL]
		require.False(t, dup, "url stored twice: %s", m.URL)
		out[m.URL] = m
	}
	return out
}

// assertThreadInvariants checks the record invariants every stored mention
// must satisfy.
func assertThreadInvariants(t *testing.T, mentions map[string]models.Mention) {
	t.Helper()
	for url, m := range mentions {
		require.Equal(t, m.ExternalID == nil, m.ThreadExternalID == nil, "threading co-presence for %s", url)
		if m.ReplyDepth != nil {
			require.GreaterOrEqual(t, *m.ReplyDepth, 0, "depth for %s", url)
			if m.IsRoot() {
				require.Equal(t, 0, *m.ReplyDepth, "root depth for %s", url)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// cancelOnAdd cancels the ingestion context as soon as the first mention is
// written, simulating a caller that gives up mid-call.
type cancelOnAdd struct {
	storage.MentionStore
	cancel context.CancelFunc
}

func (s *cancelOnAdd) AddMention(ctx context.Context, m *models.Mention) storage.AddResult {
	res := s.MentionStore.AddMention(ctx, m)
	s.cancel()
	return res
}
