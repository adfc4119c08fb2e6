package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/azure/social-listening/internal/models"
	"github.com/azure/social-listening/internal/storage"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// HackerNewsSource implements the Hacker News Algolia search source
type HackerNewsSource struct {
	client  *resty.Client
	baseURL string
}

type algoliaSearchResponse struct {
	Hits []algoliaHit `json:"hits"`
}

type algoliaHit struct {
	ObjectID        string `json:"objectID"`
	URL             string `json:"url"`
	Title           string `json:"title"`
	StoryTitle      string `json:"story_title"`
	CommentText     string `json:"comment_text"`
	StoryText       string `json:"story_text"`
	Author          string `json:"author"`
	CreatedAtI      int64  `json:"created_at_i"`
	HighlightResult struct {
		CommentText struct {
			Value string `json:"value"`
		} `json:"comment_text"`
	} `json:"_highlightResult"`
}

const defaultHitsPerPage = 50

// NewHackerNewsSource creates a new Hacker News source
func NewHackerNewsSource() *HackerNewsSource {
	return &HackerNewsSource{
		client:  newClient(10 * time.Second),
		baseURL: "https://hn.algolia.com",
	}
}

func (h *HackerNewsSource) GetName() string {
	return models.SourceHackerNews
}

// Ingest stores every search hit for req.Query as an independent mention.
func (h *HackerNewsSource) Ingest(ctx context.Context, store storage.MentionStore, req Request) (int, error) {
	if req.Query == "" {
		return 0, invalid("query is required")
	}

	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":       req.Query,
			"tags":        "(story,comment)",
			"hitsPerPage": strconv.Itoa(req.limitOr(defaultHitsPerPage)),
		}).
		Get(h.baseURL + "/api/v1/search")
	if err != nil {
		return 0, fmt.Errorf("hacker news search failed: %w", err)
	}
	if err := checkStatus("hacker news", resp); err != nil {
		return 0, err
	}

	var searchResp algoliaSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return 0, fmt.Errorf("failed to parse Hacker News response: %w", err)
	}

	counter := storage.NewCounter(store, h.GetName())
	for _, hit := range searchResp.Hits {
		counter.Add(ctx, h.toMention(hit))
	}

	logrus.Infof("Stored %d of %d Hacker News hits for '%s'", counter.Added(), len(searchResp.Hits), req.Query)
	return counter.Added(), nil
}

func (h *HackerNewsSource) toMention(hit algoliaHit) *models.Mention {
	url := hit.URL
	if url == "" {
		url = fmt.Sprintf("https://news.ycombinator.com/item?id=%s", hit.ObjectID)
	}

	summary := firstNonEmpty(hit.CommentText, hit.StoryText, hit.HighlightResult.CommentText.Value)

	return &models.Mention{
		Title:       optional(firstNonEmpty(hit.Title, hit.StoryTitle)),
		Summary:     optional(StripHTML(summary)),
		URL:         url,
		Source:      models.SourceHackerNews,
		Author:      optional(hit.Author),
		PublishedAt: UnixTime(float64(hit.CreatedAtI)),
	}
}
