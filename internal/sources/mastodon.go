package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/azure/social-listening/internal/models"
	"github.com/azure/social-listening/internal/storage"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// MastodonSource searches a Mastodon instance and stores matching statuses
// with their conversation context.
type MastodonSource struct {
	client *resty.Client
}

type mastodonStatus struct {
	ID          string  `json:"id"`
	URL         string  `json:"url"`
	Content     string  `json:"content"`
	CreatedAt   string  `json:"created_at"`
	InReplyToID *string `json:"in_reply_to_id"`
	Account     struct {
		Acct string `json:"acct"`
	} `json:"account"`
}

type mastodonSearchResponse struct {
	Statuses []mastodonStatus `json:"statuses"`
}

type mastodonContext struct {
	Ancestors   []mastodonStatus `json:"ancestors"`
	Descendants []mastodonStatus `json:"descendants"`
}

const defaultMastodonLimit = 40

// NewMastodonSource creates a new Mastodon source
func NewMastodonSource() *MastodonSource {
	return &MastodonSource{
		client: newClient(15 * time.Second),
	}
}

func (m *MastodonSource) GetName() string {
	return models.SourceMastodon
}

// mastodonQuery is a raw query split into hashtags and plain match tokens.
type mastodonQuery struct {
	Raw      string
	Hashtags []string // without the leading '#'
	Tokens   []string
}

var querySeparator = regexp.MustCompile(`\s+OR\s+|\s+`)

func parseMastodonQuery(raw string) mastodonQuery {
	q := mastodonQuery{Raw: raw}
	for _, tok := range querySeparator.Split(strings.TrimSpace(raw), -1) {
		if tok == "" {
			continue
		}
		if strings.HasPrefix(tok, "#") {
			if tag := strings.TrimLeft(tok, "#"); tag != "" {
				q.Hashtags = append(q.Hashtags, tag)
			}
			continue
		}
		if tok = strings.Trim(tok, `"`); tok != "" {
			q.Tokens = append(q.Tokens, tok)
		}
	}
	return q
}

// matchesTokens reports whether any token occurs in text, ignoring case.
// An empty token list matches everything.
func (q mastodonQuery) matchesTokens(text string) bool {
	if len(q.Tokens) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, tok := range q.Tokens {
		if strings.Contains(lower, strings.ToLower(tok)) {
			return true
		}
	}
	return false
}

func (q mastodonQuery) matchesHashtags(text string) bool {
	if len(q.Hashtags) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, tag := range q.Hashtags {
		if strings.Contains(lower, "#"+strings.ToLower(tag)) {
			return true
		}
	}
	return false
}

// searchStrategy is one step of the fallback chain. It returns candidate
// root statuses; applies gates whether the step runs for a query at all.
type searchStrategy struct {
	name    string
	applies func(q mastodonQuery) bool
	fetch   func(ctx context.Context, base string, q mastodonQuery, limit int) []mastodonStatus
}

func (m *MastodonSource) strategies() []searchStrategy {
	return []searchStrategy{
		{
			name:    "full-text search",
			applies: func(q mastodonQuery) bool { return true },
			fetch:   m.fullTextSearch,
		},
		{
			name:    "hashtag timeline",
			applies: func(q mastodonQuery) bool { return len(q.Hashtags) > 0 },
			fetch:   m.hashtagTimelines,
		},
		{
			name:    "public timeline scan",
			applies: func(q mastodonQuery) bool { return len(q.Hashtags) > 0 || len(q.Tokens) > 0 },
			fetch:   m.publicTimelines,
		},
	}
}

// Ingest runs the search strategies in order, stopping after the first one
// that stores at least one mention.
func (m *MastodonSource) Ingest(ctx context.Context, store storage.MentionStore, req Request) (int, error) {
	if req.Instance == "" {
		return 0, invalid("instance is required")
	}
	if strings.TrimSpace(req.Query) == "" {
		return 0, invalid("query is required")
	}

	base := mastodonBase(req.Instance)
	query := parseMastodonQuery(req.Query)
	limit := req.limitOr(defaultMastodonLimit)
	counter := storage.NewCounter(store, m.GetName())

	for _, strategy := range m.strategies() {
		if counter.Added() > 0 {
			break
		}
		if !strategy.applies(query) {
			continue
		}
		statuses := strategy.fetch(ctx, base, query, limit)
		logrus.Debugf("Mastodon %s on %s returned %d candidates for '%s'", strategy.name, base, len(statuses), req.Query)
		for _, status := range statuses {
			m.storeThread(ctx, counter, base, status)
		}
	}

	if err := ctx.Err(); err != nil {
		return counter.Added(), fmt.Errorf("mastodon search on %s interrupted: %w", base, err)
	}

	logrus.Infof("Stored %d Mastodon mentions from %s for '%s'", counter.Added(), base, req.Query)
	return counter.Added(), nil
}

func (m *MastodonSource) storeThread(ctx context.Context, counter *storage.Counter, base string, status mastodonStatus) {
	if status.ID == "" {
		return
	}
	counter.Add(ctx, m.toMention(base, status, status.ID, 0))

	convo, err := m.fetchContext(ctx, base, status.ID)
	if err != nil {
		logrus.Debugf("Mastodon context for %s unavailable: %v", status.ID, err)
		return
	}
	build := func(s mastodonStatus, threadID string, depth int) *models.Mention {
		return m.toMention(base, s, threadID, depth)
	}
	storeContextBands(ctx, counter, status.ID, [][]mastodonStatus{convo.Ancestors, convo.Descendants}, build)
}

func (m *MastodonSource) toMention(base string, status mastodonStatus, threadID string, depth int) *models.Mention {
	link := status.URL
	if link == "" {
		link = fmt.Sprintf("%s/@%s/%s", base, status.Account.Acct, status.ID)
	}
	var parent *string
	if status.InReplyToID != nil && *status.InReplyToID != "" {
		parent = ptr(*status.InReplyToID)
	}
	return &models.Mention{
		Summary:          optional(StripHTML(status.Content)),
		URL:              link,
		Source:           models.SourceMastodon,
		Author:           optional(status.Account.Acct),
		PublishedAt:      ParseTimestamp(status.CreatedAt),
		ExternalID:       ptr(status.ID),
		ParentExternalID: parent,
		ThreadExternalID: ptr(threadID),
		ReplyDepth:       ptr(depth),
	}
}

func (m *MastodonSource) fullTextSearch(ctx context.Context, base string, q mastodonQuery, limit int) []mastodonStatus {
	var out mastodonSearchResponse
	if err := m.getJSON(ctx, base+"/api/v2/search", map[string]string{
		"q":     q.Raw,
		"type":  "statuses",
		"limit": strconv.Itoa(limit),
	}, &out); err != nil {
		logrus.Debugf("Mastodon search on %s failed: %v", base, err)
		return nil
	}
	return out.Statuses
}

func (m *MastodonSource) hashtagTimelines(ctx context.Context, base string, q mastodonQuery, limit int) []mastodonStatus {
	var matched []mastodonStatus
	for _, tag := range q.Hashtags {
		var statuses []mastodonStatus
		if err := m.getJSON(ctx, base+"/api/v1/timelines/tag/"+url.PathEscape(tag), map[string]string{
			"limit": strconv.Itoa(limit),
		}, &statuses); err != nil {
			logrus.Debugf("Mastodon hashtag timeline #%s on %s failed: %v", tag, base, err)
			continue
		}
		for _, s := range statuses {
			if q.matchesTokens(StripHTML(s.Content)) {
				matched = append(matched, s)
			}
		}
	}
	return matched
}

func (m *MastodonSource) publicTimelines(ctx context.Context, base string, q mastodonQuery, limit int) []mastodonStatus {
	var matched []mastodonStatus
	for _, local := range []bool{true, false} {
		var statuses []mastodonStatus
		if err := m.getJSON(ctx, base+"/api/v1/timelines/public", map[string]string{
			"limit": strconv.Itoa(limit),
			"local": strconv.FormatBool(local),
		}, &statuses); err != nil {
			logrus.Debugf("Mastodon public timeline (local=%t) on %s failed: %v", local, base, err)
			continue
		}
		for _, s := range statuses {
			text := StripHTML(s.Content)
			if q.matchesHashtags(text) && q.matchesTokens(text) {
				matched = append(matched, s)
			}
		}
	}
	return matched
}

func (m *MastodonSource) fetchContext(ctx context.Context, base, statusID string) (*mastodonContext, error) {
	var convo mastodonContext
	if err := m.getJSON(ctx, fmt.Sprintf("%s/api/v1/statuses/%s/context", base, url.PathEscape(statusID)), nil, &convo); err != nil {
		return nil, err
	}
	return &convo, nil
}

func (m *MastodonSource) getJSON(ctx context.Context, endpoint string, params map[string]string, out any) error {
	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(endpoint)
	if err != nil {
		return err
	}
	if err := checkStatus("mastodon", resp); err != nil {
		return err
	}
	return json.Unmarshal(resp.Body(), out)
}

func mastodonBase(instance string) string {
	instance = strings.TrimRight(strings.TrimSpace(instance), "/")
	if !strings.HasPrefix(instance, "http") {
		instance = "https://" + instance
	}
	return instance
}
