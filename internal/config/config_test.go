package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DEBUG", "LOG_FORMAT", "STORAGE_DRIVER", "SQLITE_PATH", "POSTGRES_URL",
		"AZURE_STORAGE_ACCOUNT", "AZURE_STORAGE_CONTAINER", "FEEDS", "HN_QUERIES", "MASTODON_INSTANCE",
		"MASTODON_QUERIES", "REDDIT_QUERIES", "INGEST_CONCURRENCY"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.Debug)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "sqlite", cfg.StorageDriver)
	assert.Equal(t, "social_listening.db", cfg.SQLitePath)
	assert.Equal(t, "mentions", cfg.StorageContainer)
	assert.Equal(t, "mastodon.social", cfg.MastodonInstance)
	assert.Equal(t, 4, cfg.IngestConcurrency)
	assert.Empty(t, cfg.Feeds)
	assert.False(t, cfg.HasSavedSearches())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEBUG", "true")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("FEEDS", "https://a/feed.xml, https://b/atom.xml,,")
	t.Setenv("HN_QUERIES", "golang")
	t.Setenv("MASTODON_QUERIES", "#golang OR generics")
	t.Setenv("REDDIT_QUERIES", "kubernetes")
	t.Setenv("INGEST_SCHEDULE", "0 0 * * * *")
	t.Setenv("INGEST_CONCURRENCY", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "memory", cfg.StorageDriver)
	assert.Equal(t, []string{"https://a/feed.xml", "https://b/atom.xml"}, cfg.Feeds)
	assert.Equal(t, []string{"golang"}, cfg.HNQueries)
	assert.Equal(t, []string{"#golang OR generics"}, cfg.MastodonQueries)
	assert.Equal(t, []string{"kubernetes"}, cfg.RedditQueries)
	assert.Equal(t, "0 0 * * * *", cfg.IngestSchedule)
	assert.Equal(t, 8, cfg.IngestConcurrency)
	assert.True(t, cfg.HasSavedSearches())
}

func TestLoad_EmptyScheduleDisables(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("INGEST_SCHEDULE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "", cfg.IngestSchedule)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown driver", env: map[string]string{"STORAGE_DRIVER": "mongo"}},
		{name: "postgres without url", env: map[string]string{"STORAGE_DRIVER": "postgres", "POSTGRES_URL": ""}},
		{name: "zero concurrency", env: map[string]string{"STORAGE_DRIVER": "memory", "INGEST_CONCURRENCY": "0"}},
		{name: "bad log format", env: map[string]string{"STORAGE_DRIVER": "memory", "LOG_FORMAT": "xml"}},
		{name: "bad schedule", env: map[string]string{"STORAGE_DRIVER": "memory", "INGEST_SCHEDULE": "every tuesday"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
