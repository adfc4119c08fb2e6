package sources

import (
	"net/http"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry(DefaultSources(Credentials{})...)

	assert.Equal(t, []string{"hackernews", "mastodon", "reddit", "rss", "twitter"}, registry.Names())

	source, err := registry.Get("mastodon")
	require.NoError(t, err)
	assert.Equal(t, "mastodon", source.GetName())

	_, err = registry.Get("myspace")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestRequestLimitOr(t *testing.T) {
	assert.Equal(t, 10, Request{}.limitOr(10))
	assert.Equal(t, 3, Request{Limit: 3}.limitOr(10))
	assert.Equal(t, 10, Request{Limit: -1}.limitOr(10))
}

func TestCheckStatus(t *testing.T) {
	ok := &resty.Response{RawResponse: &http.Response{StatusCode: http.StatusOK}}
	assert.NoError(t, checkStatus("test", ok))

	failed := &resty.Response{RawResponse: &http.Response{StatusCode: http.StatusBadGateway}}
	err := checkStatus("test", failed)
	require.Error(t, err)
	assert.Equal(t, "test API returned status 502", err.Error())
}
