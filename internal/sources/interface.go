package sources

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/azure/social-listening/internal/storage"
	"github.com/go-resty/resty/v2"
)

const userAgent = "social-listening/0.1"

var (
	ErrInvalidRequest = errors.New("invalid ingest request")
	ErrUnknownSource  = errors.New("unknown source")
)

// Source is implemented by every platform connector. Ingest pulls from the
// platform, hands each normalized mention to store and returns how many were
// newly stored.
type Source interface {
	GetName() string
	Ingest(ctx context.Context, store storage.MentionStore, req Request) (int, error)
}

// Request carries the parameters of one ingestion call. Each source reads
// only the fields it needs.
type Request struct {
	URL            string `json:"url,omitempty"`
	Label          string `json:"label,omitempty"`
	Query          string `json:"query,omitempty"`
	Instance       string `json:"instance,omitempty"`
	Subreddit      string `json:"subreddit,omitempty"`
	TweetID        string `json:"tweet_id,omitempty"`
	BearerToken    string `json:"-"`
	Limit          int    `json:"limit,omitempty"`
	IncludeReplies bool   `json:"include_replies,omitempty"`
}

func (r Request) limitOr(def int) int {
	if r.Limit > 0 {
		return r.Limit
	}
	return def
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// StatusError is returned when a primary platform request answers non-2xx.
type StatusError struct {
	Platform   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned status %d", e.Platform, e.StatusCode)
}

func checkStatus(platform string, resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	body := string(resp.Body())
	if len(body) > 200 {
		body = body[:200]
	}
	return &StatusError{Platform: platform, StatusCode: resp.StatusCode(), Body: body}
}

func newClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent)
}

// Registry dispatches ingestion calls by platform name
type Registry struct {
	sources map[string]Source
}

// NewRegistry indexes sources by GetName
func NewRegistry(srcs ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source, len(srcs))}
	for _, s := range srcs {
		r.sources[s.GetName()] = s
	}
	return r
}

// Get looks up a source by name.
func (r *Registry) Get(name string) (Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return s, nil
}

// Names lists the registered platforms in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Credentials holds the optional platform secrets used by DefaultSources.
type Credentials struct {
	RedditClientID     string
	RedditClientSecret string
	TwitterBearerToken string
}

// DefaultSources builds one connector per supported platform.
func DefaultSources(creds Credentials) []Source {
	return []Source{
		NewRSSSource(),
		NewHackerNewsSource(),
		NewMastodonSource(),
		NewRedditSource(creds.RedditClientID, creds.RedditClientSecret),
		NewTwitterSource(creds.TwitterBearerToken),
	}
}
