package storage

import (
	"context"

	"github.com/azure/social-listening/internal/models"
	"github.com/sirupsen/logrus"
)

// Counter tallies add outcomes for one ingestion call. A failed or duplicate
// add only affects that record.
type Counter struct {
	store      MentionStore
	source     string
	added      int
	duplicates int
	failed     int
}

// NewCounter wraps store for a single ingestion call
func NewCounter(store MentionStore, source string) *Counter {
	return &Counter{store: store, source: source}
}

// Add stores m and records the outcome.
func (c *Counter) Add(ctx context.Context, m *models.Mention) AddResult {
	res := c.store.AddMention(ctx, m)
	switch res.Outcome {
	case Stored:
		c.added++
	case DuplicateSkipped:
		c.duplicates++
		logrus.Debugf("Skipping %s mention already stored: %s", c.source, m.URL)
	default:
		c.failed++
		logrus.WithFields(logrus.Fields{
			"source": c.source,
			"url":    m.URL,
		}).Warnf("Failed to store mention: %v", res.Err)
	}
	return res
}

func (c *Counter) Added() int      { return c.added }
func (c *Counter) Duplicates() int { return c.duplicates }
func (c *Counter) Failed() int     { return c.failed }
