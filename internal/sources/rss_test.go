package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/azure/social-listening/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Test feed</title>
  <link>https://a/</link>
  <description>fixture</description>
  <item>
    <title>First</title>
    <link>https://a/1</link>
    <description>&lt;p&gt;Great &amp;amp; good&lt;/p&gt;</description>
    <author>writer@a (Writer)</author>
    <pubDate>Mon, 01 Jan 2024 00:00:00 +0000</pubDate>
  </item>
  <item>
    <title>Hello</title>
    <pubDate>2024-01-01T00:00:00Z</pubDate>
  </item>
</channel>
</rss>`

func TestRSSSource_GetName(t *testing.T) {
	assert.Equal(t, "rss", NewRSSSource().GetName())
}

func TestRSSSource_IngestIsIdempotent(t *testing.T) {
	var accept, agent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept.Store(r.Header.Get("Accept"))
		agent.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	ctx := context.Background()
	store := storage.NewMemoryStore()
	source := NewRSSSource()

	added, err := source.Ingest(ctx, store, Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Contains(t, accept.Load().(string), "application/rss+xml")
	assert.True(t, strings.HasPrefix(agent.Load().(string), "social-listening/0.1"))

	added, err = source.Ingest(ctx, store, Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, 0, added, "second ingest of the same feed adds nothing")

	stored := storedByURL(t, store)
	require.Len(t, stored, 2)
	assertThreadInvariants(t, stored)

	first, ok := stored["https://a/1"]
	require.True(t, ok)
	assert.Equal(t, "First", *first.Title)
	assert.Equal(t, "Great & good", *first.Summary)
	assert.Equal(t, "rss", first.Source)
	require.NotNil(t, first.PublishedAt)
	assert.Equal(t, 2024, first.PublishedAt.Year())
	require.NotNil(t, first.Sentiment)
	assert.InDelta(t, 2.0/3.0, *first.Sentiment, 1e-9)
	assert.Nil(t, first.ExternalID)
	assert.Nil(t, first.ThreadExternalID)
	assert.Nil(t, first.ParentExternalID)
	assert.Nil(t, first.ReplyDepth)

	synthetic := SyntheticURL("Hello", "2024-01-01T00:00:00Z")
	hello, ok := stored[synthetic]
	require.True(t, ok, "entry without link gets a synthetic url")
	assert.True(t, strings.HasPrefix(hello.URL, "urn:rss:"))
	assert.Equal(t, "Hello", *hello.Title)
	assert.Nil(t, hello.Summary)
}

func TestRSSSource_UsesLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	store := storage.NewMemoryStore()
	_, err := NewRSSSource().Ingest(context.Background(), store, Request{URL: srv.URL, Label: "engineering-blog"})
	require.NoError(t, err)

	for _, m := range storedByURL(t, store) {
		assert.Equal(t, "engineering-blog", m.Source)
	}
}

func TestRSSSource_FallsBackToParserFetch(t *testing.T) {
	var direct, fallback int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("User-Agent"), userAgent) {
			atomic.AddInt32(&direct, 1)
			http.Error(w, "blocked", http.StatusForbidden)
			return
		}
		atomic.AddInt32(&fallback, 1)
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	added, err := NewRSSSource().Ingest(context.Background(), storage.NewMemoryStore(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, int32(1), atomic.LoadInt32(&direct))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fallback))
}

func TestRSSSource_FailsWhenBothFetchesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	added, err := NewRSSSource().Ingest(context.Background(), storage.NewMemoryStore(), Request{URL: srv.URL})
	assert.Error(t, err)
	assert.Equal(t, 0, added)
}

func TestRSSSource_RequiresURL(t *testing.T) {
	_, err := NewRSSSource().Ingest(context.Background(), storage.NewMemoryStore(), Request{})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}
