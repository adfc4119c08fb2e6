package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/azure/social-listening/internal/models"
	"github.com/azure/social-listening/internal/sources"
)

type rssIngestRequest struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

type hnSearchRequest struct {
	Query       string `json:"query"`
	HitsPerPage int    `json:"hits_per_page"`
}

type mastoSearchRequest struct {
	Instance string `json:"instance"`
	Query    string `json:"query"`
	Limit    int    `json:"limit"`
}

type tweetIngestRequest struct {
	BearerToken    string `json:"bearer_token"`
	TweetID        string `json:"tweet_id"`
	IncludeReplies bool   `json:"include_replies"`
}

type redditSearchRequest struct {
	Query     string `json:"query"`
	Subreddit string `json:"subreddit"`
	Limit     int    `json:"limit"`
}

type ingestResponse struct {
	Status string `json:"status"`
	Added  int    `json:"added"`
	RunID  string `json:"run_id,omitempty"`
}

func (s *Server) handleIngestRSS(w http.ResponseWriter, r *http.Request) {
	var payload rssIngestRequest
	if !decodeBody(w, r, &payload) {
		return
	}
	u, err := url.Parse(payload.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}
	s.runIngest(w, r, models.SourceRSS, sources.Request{URL: payload.URL, Label: strings.TrimSpace(payload.Label)})
}

func (s *Server) handleIngestHackerNews(w http.ResponseWriter, r *http.Request) {
	var payload hnSearchRequest
	if !decodeBody(w, r, &payload) {
		return
	}
	s.runIngest(w, r, models.SourceHackerNews, sources.Request{Query: payload.Query, Limit: payload.HitsPerPage})
}

func (s *Server) handleIngestMastodon(w http.ResponseWriter, r *http.Request) {
	var payload mastoSearchRequest
	if !decodeBody(w, r, &payload) {
		return
	}
	s.runIngest(w, r, models.SourceMastodon, sources.Request{Instance: payload.Instance, Query: payload.Query, Limit: payload.Limit})
}

func (s *Server) handleIngestTweet(w http.ResponseWriter, r *http.Request) {
	var payload tweetIngestRequest
	if !decodeBody(w, r, &payload) {
		return
	}
	s.runIngest(w, r, models.SourceTwitter, sources.Request{
		TweetID:        payload.TweetID,
		BearerToken:    payload.BearerToken,
		IncludeReplies: payload.IncludeReplies,
	})
}

func (s *Server) handleIngestReddit(w http.ResponseWriter, r *http.Request) {
	var payload redditSearchRequest
	if !decodeBody(w, r, &payload) {
		return
	}
	s.runIngest(w, r, models.SourceReddit, sources.Request{Query: payload.Query, Subreddit: payload.Subreddit, Limit: payload.Limit})
}

// runIngest reports every ingestion failure as 400 with the error text. The
// call runs to completion even if the client goes away.
func (s *Server) runIngest(w http.ResponseWriter, r *http.Request, platform string, req sources.Request) {
	result, err := s.ingester.Run(context.WithoutCancel(r.Context()), platform, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{Status: "ok", Added: result.Added, RunID: result.RunID})
}
