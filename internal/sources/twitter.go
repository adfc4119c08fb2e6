package sources

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/azure/social-listening/internal/models"
	"github.com/azure/social-listening/internal/storage"
	"github.com/g8rswimmer/go-twitter/v2"
	"github.com/sirupsen/logrus"
)

// TwitterSource implements X/Twitter v2 tweet lookup with optional
// conversation expansion
type TwitterSource struct {
	bearerToken string
	httpClient  *http.Client
	host        string
}

type authorize struct {
	Token string
}

func (a authorize) Add(req *http.Request) {
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", a.Token))
	req.Header.Set("User-Agent", userAgent)
}

const (
	twitterHost          = "https://api.twitter.com"
	conversationMaxItems = 50
	// Conversation members are stored one level below the looked-up tweet;
	// the reply graph itself is not reconstructed.
	conversationReplyDepth = 1
)

// NewTwitterSource creates a new Twitter source. bearerToken is used when a
// request does not carry its own.
func NewTwitterSource(bearerToken string) *TwitterSource {
	return &TwitterSource{
		bearerToken: bearerToken,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		host:        twitterHost,
	}
}

func (t *TwitterSource) GetName() string {
	return models.SourceTwitter
}

func (t *TwitterSource) apiClient(token string) *twitter.Client {
	return &twitter.Client{
		Authorizer: authorize{Token: token},
		Client:     t.httpClient,
		Host:       t.host,
	}
}

// Ingest stores the tweet req.TweetID as the root of its conversation and,
// with req.IncludeReplies, every tweet a recent search finds in that
// conversation.
func (t *TwitterSource) Ingest(ctx context.Context, store storage.MentionStore, req Request) (int, error) {
	if req.TweetID == "" {
		return 0, invalid("tweet_id is required")
	}
	token := firstNonEmpty(req.BearerToken, t.bearerToken)
	if token == "" {
		return 0, invalid("bearer token is required")
	}
	client := t.apiClient(token)

	lookup, err := client.TweetLookup(ctx, []string{req.TweetID}, twitter.TweetLookupOpts{
		Expansions:  []twitter.Expansion{twitter.ExpansionAuthorID},
		TweetFields: []twitter.TweetField{twitter.TweetFieldCreatedAt, twitter.TweetFieldConversationID, twitter.TweetFieldAuthorID, twitter.TweetFieldReferencedTweets},
	})
	if err != nil {
		return 0, fmt.Errorf("twitter lookup of %s failed: %w", req.TweetID, err)
	}
	if lookup.Raw == nil || len(lookup.Raw.Tweets) == 0 || lookup.Raw.Tweets[0] == nil {
		return 0, fmt.Errorf("twitter lookup of %s returned no tweet", req.TweetID)
	}
	root := lookup.Raw.Tweets[0]
	if root.ID == "" {
		root.ID = req.TweetID
	}
	conversationID := firstNonEmpty(root.ConversationID, root.ID)

	counter := storage.NewCounter(store, t.GetName())
	counter.Add(ctx, t.toMention(root, conversationID, 0))

	if req.IncludeReplies {
		t.storeConversation(ctx, client, counter, root.ID, conversationID)
	}

	if err := ctx.Err(); err != nil {
		return counter.Added(), fmt.Errorf("twitter ingestion of %s interrupted: %w", req.TweetID, err)
	}

	logrus.Infof("Stored %d Twitter mentions for tweet %s", counter.Added(), req.TweetID)
	return counter.Added(), nil
}

// storeConversation is best effort: lower API tiers reject recent search.
func (t *TwitterSource) storeConversation(ctx context.Context, client *twitter.Client, counter *storage.Counter, rootID, conversationID string) {
	search, err := client.TweetRecentSearch(ctx, "conversation_id:"+conversationID, twitter.TweetRecentSearchOpts{
		MaxResults:  conversationMaxItems,
		TweetFields: []twitter.TweetField{twitter.TweetFieldCreatedAt, twitter.TweetFieldConversationID, twitter.TweetFieldAuthorID, twitter.TweetFieldReferencedTweets},
	})
	if err != nil {
		logrus.Warnf("Twitter conversation search for %s failed: %v", conversationID, err)
		return
	}
	if search.Raw == nil {
		return
	}
	for _, tweet := range search.Raw.Tweets {
		if tweet == nil || tweet.ID == "" || tweet.ID == rootID {
			continue
		}
		if tweet.ID == conversationID {
			// The looked-up tweet was a reply; this one started the thread.
			logrus.Debugf("Storing tweet %s as the root of its conversation", tweet.ID)
			counter.Add(ctx, t.toMention(tweet, conversationID, 0))
			continue
		}
		counter.Add(ctx, t.toMention(tweet, conversationID, conversationReplyDepth))
	}
}

func (t *TwitterSource) toMention(tweet *twitter.TweetObj, conversationID string, depth int) *models.Mention {
	return &models.Mention{
		Summary:          optional(tweet.Text),
		URL:              fmt.Sprintf("https://twitter.com/i/web/status/%s", tweet.ID),
		Source:           models.SourceTwitter,
		Author:           optional(tweet.AuthorID),
		PublishedAt:      ParseTimestamp(tweet.CreatedAt),
		ExternalID:       ptr(tweet.ID),
		ParentExternalID: optional(repliedToID(tweet)),
		ThreadExternalID: ptr(conversationID),
		ReplyDepth:       ptr(depth),
	}
}

func repliedToID(tweet *twitter.TweetObj) string {
	for _, ref := range tweet.ReferencedTweets {
		if ref != nil && ref.Type == "replied_to" {
			return ref.ID
		}
	}
	return ""
}
