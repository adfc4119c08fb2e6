package models

import (
	"errors"
	"time"
)

// Source tags written to Mention.Source by the built-in connectors.
const (
	SourceRSS        = "rss"
	SourceHackerNews = "hackernews"
	SourceMastodon   = "mastodon"
	SourceReddit     = "reddit"
	SourceTwitter    = "twitter"
)

// Mention is one normalized post, comment or reply from any platform
type Mention struct {
	ID          int64      `json:"id"`
	Title       *string    `json:"title"`
	Summary     *string    `json:"summary"`
	URL         string     `json:"url"`
	Source      string     `json:"source"`
	Author      *string    `json:"author"`
	PublishedAt *time.Time `json:"published_at"`
	FetchedAt   time.Time  `json:"fetched_at"`
	Sentiment   *float64   `json:"sentiment"`

	// Threading, nil for sources without conversation structure (RSS, HN)
	ExternalID       *string `json:"external_id"`
	ParentExternalID *string `json:"parent_external_id"`
	ThreadExternalID *string `json:"thread_external_id"`
	ReplyDepth       *int    `json:"reply_depth"`
}

var (
	ErrMissingURL      = errors.New("mention url is required")
	ErrMissingSource   = errors.New("mention source is required")
	ErrThreadMismatch  = errors.New("external_id and thread_external_id must be set together")
	ErrNegativeDepth   = errors.New("reply_depth must not be negative")
	ErrRootDepth       = errors.New("thread root must have reply_depth 0")
	ErrSentimentBounds = errors.New("sentiment must be within [-1, 1]")
)

// Validate checks the record invariants a store relies on.
func (m *Mention) Validate() error {
	if m.URL == "" {
		return ErrMissingURL
	}
	if m.Source == "" {
		return ErrMissingSource
	}
	if (m.ExternalID == nil) != (m.ThreadExternalID == nil) {
		return ErrThreadMismatch
	}
	if m.ReplyDepth != nil {
		if *m.ReplyDepth < 0 {
			return ErrNegativeDepth
		}
		if m.IsRoot() && *m.ReplyDepth != 0 {
			return ErrRootDepth
		}
	}
	if m.Sentiment != nil && (*m.Sentiment < -1 || *m.Sentiment > 1) {
		return ErrSentimentBounds
	}
	return nil
}

// IsRoot reports whether the mention starts its own thread.
func (m *Mention) IsRoot() bool {
	return m.ExternalID != nil && m.ThreadExternalID != nil && *m.ExternalID == *m.ThreadExternalID
}

// Source is a catalog entry for a monitored origin
type Source struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"` // "rss", "twitter", ...
	URL       *string   `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// MentionFilter narrows a mention listing.
type MentionFilter struct {
	Query  string // case-insensitive substring of title or summary
	Source string
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Normalize clamps limit and offset into their accepted ranges.
func (f MentionFilter) Normalize() MentionFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
