package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/azure/social-listening/internal/config"
	"github.com/azure/social-listening/internal/models"
	"github.com/azure/social-listening/internal/sources"
	"github.com/azure/social-listening/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockArchive is a mock implementation of the blob store
type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) Store(ctx context.Context, name string, data []byte) error {
	args := m.Called(ctx, name, data)
	return args.Error(0)
}

func (m *MockArchive) Retrieve(ctx context.Context, name string) ([]byte, error) {
	args := m.Called(ctx, name)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockArchive) List(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockArchive) Delete(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

// fakeSource stores one mention per URL in urls, or one derived from the
// request when urls is empty, then returns err.
type fakeSource struct {
	name  string
	urls  []string
	err   error
	delay time.Duration

	mu       sync.Mutex
	requests []sources.Request
	inflight int32
	peak     int32
}

func (f *fakeSource) GetName() string { return f.name }

func (f *fakeSource) Ingest(ctx context.Context, store storage.MentionStore, req sources.Request) (int, error) {
	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		peak := atomic.LoadInt32(&f.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	urls := f.urls
	if len(urls) == 0 && f.err == nil {
		urls = []string{"https://" + f.name + ".example/" + req.URL + req.Query}
	}

	counter := storage.NewCounter(store, f.name)
	for _, u := range urls {
		title := "mention " + u
		counter.Add(ctx, &models.Mention{URL: u, Source: f.name, Title: &title})
	}
	return counter.Added(), f.err
}

func newTestService(cfg *config.Config, archive storage.BlobStore, srcs ...sources.Source) (*Service, *storage.MemoryStore) {
	if cfg == nil {
		cfg = &config.Config{IngestConcurrency: 2}
	}
	store := storage.NewMemoryStore()
	return NewService(cfg, store, archive, sources.NewRegistry(srcs...)), store
}

func metricsOf(t *testing.T, s *Service) Metrics {
	t.Helper()
	var m Metrics
	require.NoError(t, json.Unmarshal([]byte(s.GetMetrics()), &m))
	return m
}

func TestService_RunStoresAndArchives(t *testing.T) {
	archive := &MockArchive{}
	archive.On("Store", mock.Anything, mock.MatchedBy(func(name string) bool {
		return strings.HasPrefix(name, "mentions/rss/") && strings.HasSuffix(name, ".json")
	}), mock.Anything).Return(nil)

	src := &fakeSource{name: "rss", urls: []string{"https://a/1", "https://a/2"}}
	service, store := newTestService(nil, archive, src)

	result, err := service.Run(context.Background(), "rss", sources.Request{URL: "https://a/feed", BearerToken: "secret"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, "rss", result.Platform)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, ArchiveName("rss", time.Now(), result.RunID), result.Archive)

	archive.AssertNumberOfCalls(t, "Store", 1)
	data := archive.Calls[0].Arguments.Get(2).([]byte)
	assert.NotContains(t, string(data), "secret", "bearer tokens never reach the archive")

	var snap snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, result.RunID, snap.RunID)
	assert.Equal(t, "https://a/feed", snap.Request.URL)
	require.Len(t, snap.Mentions, 2)
	for _, m := range snap.Mentions {
		assert.NotZero(t, m.ID)
	}

	all, err := store.ListMentions(context.Background(), models.MentionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	metrics := metricsOf(t, service)
	assert.Equal(t, 1, metrics.Runs)
	assert.Equal(t, 2, metrics.TotalMentions)
	assert.Equal(t, 2, metrics.SourceMetrics["rss"])
	assert.Equal(t, 0, metrics.ErrorCount)
	assert.False(t, metrics.LastRun.IsZero())
}

func TestService_RerunAddsNothingAndSkipsArchive(t *testing.T) {
	archive := &MockArchive{}
	archive.On("Store", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	src := &fakeSource{name: "rss", urls: []string{"https://a/1"}}
	service, _ := newTestService(nil, archive, src)

	_, err := service.Run(context.Background(), "rss", sources.Request{URL: "https://a/feed"})
	require.NoError(t, err)

	result, err := service.Run(context.Background(), "rss", sources.Request{URL: "https://a/feed"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Added)
	assert.Empty(t, result.Archive)
	archive.AssertNumberOfCalls(t, "Store", 1)
	assert.Equal(t, 2, metricsOf(t, service).Runs)
}

func TestService_RunUnknownPlatform(t *testing.T) {
	service, _ := newTestService(nil, nil, &fakeSource{name: "rss"})

	_, err := service.Run(context.Background(), "myspace", sources.Request{})
	assert.ErrorIs(t, err, sources.ErrUnknownSource)
	assert.Equal(t, 0, metricsOf(t, service).Runs)
}

func TestService_RunFailureKeepsPriorWrites(t *testing.T) {
	archive := &MockArchive{}
	archive.On("Store", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	boom := errors.New("platform unavailable")
	src := &fakeSource{name: "reddit", urls: []string{"https://r/1"}, err: boom}
	service, store := newTestService(nil, archive, src)

	result, err := service.Run(context.Background(), "reddit", sources.Request{Query: "q"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, result.Added)
	archive.AssertNumberOfCalls(t, "Store", 1)

	all, err := store.ListMentions(context.Background(), models.MentionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	metrics := metricsOf(t, service)
	assert.Equal(t, 1, metrics.ErrorCount)
	assert.Equal(t, 1, metrics.SourceMetrics["reddit"])
}

func TestService_ArchiveFailureDoesNotFailRun(t *testing.T) {
	archive := &MockArchive{}
	archive.On("Store", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("blob unavailable"))

	service, _ := newTestService(nil, archive, &fakeSource{name: "rss", urls: []string{"https://a/1"}})

	result, err := service.Run(context.Background(), "rss", sources.Request{URL: "https://a/feed"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Empty(t, result.Archive)
	archive.AssertExpectations(t)
}

func TestService_RunScheduled(t *testing.T) {
	cfg := &config.Config{
		Feeds:             []string{"https://a/feed", "https://b/feed"},
		HNQueries:         []string{"golang"},
		MastodonInstance:  "mastodon.social",
		MastodonQueries:   []string{"#golang"},
		RedditQueries:     []string{"kubernetes"},
		IngestConcurrency: 2,
	}
	rss := &fakeSource{name: "rss"}
	hn := &fakeSource{name: "hackernews"}
	masto := &fakeSource{name: "mastodon"}
	reddit := &fakeSource{name: "reddit", err: errors.New("rate limited")}
	service, _ := newTestService(cfg, nil, rss, hn, masto, reddit)

	summary, err := service.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Jobs: 5, Failed: 1, Added: 4}, summary)

	assert.Len(t, rss.requests, 2)
	require.Len(t, masto.requests, 1)
	assert.Equal(t, "mastodon.social", masto.requests[0].Instance)
	assert.Equal(t, "#golang", masto.requests[0].Query)
	require.Len(t, reddit.requests, 1)

	metrics := metricsOf(t, service)
	assert.Equal(t, 5, metrics.Runs)
	assert.Equal(t, 1, metrics.ErrorCount)
}

func TestService_RunScheduledRespectsConcurrency(t *testing.T) {
	cfg := &config.Config{IngestConcurrency: 2}
	for i := 0; i < 6; i++ {
		cfg.Feeds = append(cfg.Feeds, "https://feeds.example/"+string(rune('a'+i)))
	}
	rss := &fakeSource{name: "rss", delay: 20 * time.Millisecond}
	service, _ := newTestService(cfg, nil, rss)

	summary, err := service.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Added)
	assert.LessOrEqual(t, atomic.LoadInt32(&rss.peak), int32(2))
}

func TestService_RunScheduledWithoutSearches(t *testing.T) {
	service, _ := newTestService(&config.Config{IngestConcurrency: 1}, nil, &fakeSource{name: "rss"})

	summary, err := service.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
}

func TestService_MastodonQueriesNeedInstance(t *testing.T) {
	cfg := &config.Config{MastodonQueries: []string{"golang"}, IngestConcurrency: 1}
	service, _ := newTestService(cfg, nil)
	assert.Empty(t, service.scheduledJobs())
}

func TestArchiveName(t *testing.T) {
	at := time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("PST", -8*3600))
	assert.Equal(t, "mentions/mastodon/2024-03-10/abc123.json", ArchiveName("mastodon", at, "abc123"))
}

func TestRecordingStore(t *testing.T) {
	recorder := newRecordingStore(storage.NewMemoryStore())
	ctx := context.Background()

	first := recorder.AddMention(ctx, &models.Mention{URL: "https://a/1", Source: "rss"})
	dup := recorder.AddMention(ctx, &models.Mention{URL: "https://a/1", Source: "rss"})
	bad := recorder.AddMention(ctx, &models.Mention{Source: "rss"})

	assert.Equal(t, storage.Stored, first.Outcome)
	assert.Equal(t, storage.DuplicateSkipped, dup.Outcome)
	assert.Equal(t, storage.Failed, bad.Outcome)

	stored := recorder.Stored()
	require.Len(t, stored, 1)
	assert.Equal(t, first.ID, stored[0].ID)
}
