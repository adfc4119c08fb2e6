package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/azure/social-listening/internal/models"
	"github.com/azure/social-listening/internal/storage"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	redditKindComment = "t1"
	redditKindPost    = "t3"

	redditSiteURL  = "https://www.reddit.com"
	redditOAuthURL = "https://oauth.reddit.com"
	redditTokenURL = "https://www.reddit.com/api/v1/access_token"

	defaultRedditLimit = 25
)

// RedditSource implements Reddit search with full comment-tree expansion
type RedditSource struct {
	clientID     string
	clientSecret string
	client       *resty.Client

	// apiURL is used for requests, siteURL for the stored permalinks.
	apiURL   string
	siteURL  string
	tokenURL string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type redditAuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type redditListing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []redditThing `json:"children"`
	} `json:"data"`
}

type redditThing struct {
	Kind string          `json:"kind"`
	Data redditThingData `json:"data"`
}

type redditThingData struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Selftext  string        `json:"selftext"`
	Body      string        `json:"body"`
	Author    string        `json:"author"`
	Permalink string        `json:"permalink"`
	ParentID  string        `json:"parent_id"`
	Created   float64       `json:"created_utc"`
	Replies   redditReplies `json:"replies"`
}

// redditReplies decodes the "replies" field, which Reddit sends either as a
// listing or as an empty string.
type redditReplies struct {
	Children []redditThing
}

func (r *redditReplies) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		r.Children = nil
		return nil
	}
	var listing redditListing
	if err := json.Unmarshal(data, &listing); err != nil {
		return err
	}
	r.Children = listing.Data.Children
	return nil
}

// NewRedditSource creates a new Reddit source. Without app credentials the
// public JSON endpoints are used.
func NewRedditSource(clientID, clientSecret string) *RedditSource {
	r := &RedditSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       newClient(15 * time.Second),
		apiURL:       redditSiteURL,
		siteURL:      redditSiteURL,
		tokenURL:     redditTokenURL,
	}
	if r.hasCredentials() {
		r.apiURL = redditOAuthURL
	}
	return r
}

func (r *RedditSource) GetName() string {
	return models.SourceReddit
}

func (r *RedditSource) hasCredentials() bool {
	return r.clientID != "" && r.clientSecret != ""
}

// Ingest searches posts and stores each one as a thread root followed by its
// entire comment tree.
func (r *RedditSource) Ingest(ctx context.Context, store storage.MentionStore, req Request) (int, error) {
	if req.Query == "" {
		return 0, invalid("query is required")
	}

	listing, err := r.search(ctx, req)
	if err != nil {
		return 0, err
	}

	counter := storage.NewCounter(store, r.GetName())
	posts := 0
	for _, child := range listing.Data.Children {
		if child.Kind != redditKindPost || child.Data.ID == "" {
			continue
		}
		posts++
		counter.Add(ctx, r.postMention(child.Data))

		comments, err := r.fetchComments(ctx, child.Data.ID)
		if err != nil {
			logrus.Warnf("Failed to fetch Reddit comments for %s: %v", child.Data.ID, err)
			continue
		}
		walkCommentTree(ctx, counter, child.Data.ID, comments, 1, r.commentMention)
	}

	if err := ctx.Err(); err != nil {
		return counter.Added(), fmt.Errorf("reddit search for '%s' interrupted: %w", req.Query, err)
	}

	logrus.Infof("Stored %d Reddit mentions from %d posts for '%s'", counter.Added(), posts, req.Query)
	return counter.Added(), nil
}

func (r *RedditSource) search(ctx context.Context, req Request) (*redditListing, error) {
	path := "/search.json"
	restrict := "off"
	if req.Subreddit != "" {
		path = fmt.Sprintf("/r/%s/search.json", strings.TrimPrefix(req.Subreddit, "r/"))
		restrict = "on"
	}

	request, err := r.request(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := request.
		SetQueryParams(map[string]string{
			"q":           req.Query,
			"limit":       strconv.Itoa(req.limitOr(defaultRedditLimit)),
			"sort":        "new",
			"restrict_sr": restrict,
		}).
		Get(r.apiURL + path)
	if err != nil {
		return nil, fmt.Errorf("reddit search failed: %w", err)
	}
	if err := checkStatus("reddit", resp); err != nil {
		return nil, err
	}

	var listing redditListing
	if err := json.Unmarshal(resp.Body(), &listing); err != nil {
		return nil, fmt.Errorf("failed to parse Reddit listing: %w", err)
	}
	return &listing, nil
}

// fetchComments returns the top-level comment nodes of a post.
func (r *RedditSource) fetchComments(ctx context.Context, postID string) ([]redditThing, error) {
	request, err := r.request(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := request.
		SetQueryParam("limit", "500").
		Get(fmt.Sprintf("%s/comments/%s.json", r.apiURL, postID))
	if err != nil {
		return nil, err
	}
	if err := checkStatus("reddit", resp); err != nil {
		return nil, err
	}

	var tree []redditListing
	if err := json.Unmarshal(resp.Body(), &tree); err != nil {
		return nil, err
	}
	if len(tree) < 2 {
		return nil, nil
	}
	return tree[1].Data.Children, nil
}

func (r *RedditSource) postMention(post redditThingData) *models.Mention {
	return &models.Mention{
		Title:            optional(post.Title),
		Summary:          optional(post.Selftext),
		URL:              r.siteURL + post.Permalink,
		Source:           models.SourceReddit,
		Author:           optional(post.Author),
		PublishedAt:      UnixTime(post.Created),
		ExternalID:       ptr(post.ID),
		ThreadExternalID: ptr(post.ID),
		ReplyDepth:       ptr(0),
	}
}

func (r *RedditSource) commentMention(c redditThingData, threadID string, depth int) *models.Mention {
	link := r.siteURL + c.Permalink
	if c.Permalink == "" {
		link = fmt.Sprintf("%s/comments/%s/_/%s", r.siteURL, threadID, c.ID)
	}
	return &models.Mention{
		Summary:          optional(c.Body),
		URL:              link,
		Source:           models.SourceReddit,
		Author:           optional(c.Author),
		PublishedAt:      UnixTime(c.Created),
		ExternalID:       ptr(c.ID),
		ParentExternalID: optional(stripFullnamePrefix(c.ParentID)),
		ThreadExternalID: ptr(threadID),
		ReplyDepth:       ptr(depth),
	}
}

// stripFullnamePrefix turns a fullname like "t1_abc" into "abc" so parent
// references line up with stored external ids.
func stripFullnamePrefix(fullname string) string {
	if i := strings.Index(fullname, "_"); i == 2 && fullname[0] == 't' {
		return fullname[i+1:]
	}
	return fullname
}

// request returns a request carrying the OAuth bearer token when credentials
// are configured.
func (r *RedditSource) request(ctx context.Context) (*resty.Request, error) {
	req := r.client.R().SetContext(ctx)
	if !r.hasCredentials() {
		return req, nil
	}
	token, err := r.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("reddit authentication failed: %w", err)
	}
	return req.SetAuthToken(token), nil
}

func (r *RedditSource) token(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.accessToken != "" && time.Now().Before(r.tokenExpiry) {
		return r.accessToken, nil
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetBasicAuth(r.clientID, r.clientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
		}).
		Post(r.tokenURL)
	if err != nil {
		return "", err
	}
	if err := checkStatus("reddit auth", resp); err != nil {
		return "", err
	}

	var authResp redditAuthResponse
	if err := json.Unmarshal(resp.Body(), &authResp); err != nil {
		return "", err
	}
	if authResp.AccessToken == "" {
		return "", fmt.Errorf("reddit returned an empty access token")
	}

	r.accessToken = authResp.AccessToken
	// Refresh a minute early.
	r.tokenExpiry = time.Now().Add(time.Duration(authResp.ExpiresIn)*time.Second - time.Minute)
	return r.accessToken, nil
}
