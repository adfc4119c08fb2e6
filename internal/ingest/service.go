package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/azure/social-listening/internal/config"
	"github.com/azure/social-listening/internal/models"
	"github.com/azure/social-listening/internal/sources"
	"github.com/azure/social-listening/internal/storage"
	"github.com/lucsky/cuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Service runs ingestion calls against the mention store
type Service struct {
	config   *config.Config
	store    storage.MentionStore
	archive  storage.BlobStore
	registry *sources.Registry
	metrics  *Metrics
	mu       sync.RWMutex
}

// Metrics holds ingestion metrics
type Metrics struct {
	TotalMentions   int            `json:"total_mentions"`
	Runs            int            `json:"runs"`
	ErrorCount      int            `json:"error_count"`
	LastRun         time.Time      `json:"last_run"`
	LastRunDuration string         `json:"last_run_duration"`
	SourceMetrics   map[string]int `json:"source_metrics"`
}

// Result describes one completed ingestion call.
type Result struct {
	RunID    string `json:"run_id"`
	Platform string `json:"platform"`
	Added    int    `json:"added"`
	Archive  string `json:"archive,omitempty"`
}

// Summary aggregates a scheduled pass over every saved search.
type Summary struct {
	Jobs   int `json:"jobs"`
	Failed int `json:"failed"`
	Added  int `json:"added"`
}

// NewService creates a new ingestion service. archive may be nil.
func NewService(cfg *config.Config, store storage.MentionStore, archive storage.BlobStore, registry *sources.Registry) *Service {
	return &Service{
		config:   cfg,
		store:    store,
		archive:  archive,
		registry: registry,
		metrics: &Metrics{
			SourceMetrics: make(map[string]int),
		},
	}
}

// Store exposes the underlying mention store for read paths.
func (s *Service) Store() storage.MentionStore {
	return s.store
}

// Platforms lists the registered connector names.
func (s *Service) Platforms() []string {
	return s.registry.Names()
}

// Run ingests from one platform. Mentions stored before a failure stay
// stored and are still archived.
func (s *Service) Run(ctx context.Context, platform string, req sources.Request) (Result, error) {
	src, err := s.registry.Get(platform)
	if err != nil {
		return Result{}, err
	}

	result := Result{RunID: cuid.New(), Platform: platform}
	log := logrus.WithFields(logrus.Fields{
		"run_id":   result.RunID,
		"platform": platform,
	})
	log.Debug("Starting ingestion run")

	start := time.Now()
	recorder := newRecordingStore(s.store)
	added, runErr := src.Ingest(ctx, recorder, req)
	duration := time.Since(start)
	result.Added = added

	s.updateMetrics(platform, added, duration, runErr != nil)

	// Rows already written are archived even when the run was cancelled.
	if name, err := s.archiveRun(context.WithoutCancel(ctx), result, req, recorder.Stored()); err != nil {
		log.Warnf("Failed to archive ingestion run: %v", err)
	} else {
		result.Archive = name
	}

	if runErr != nil {
		log.Errorf("Ingestion run failed after %v: %v", duration, runErr)
		return result, runErr
	}

	log.Infof("Ingestion run stored %d new mentions in %v", added, duration)
	return result, nil
}

type job struct {
	platform string
	req      sources.Request
}

func (s *Service) scheduledJobs() []job {
	var jobs []job
	for _, feed := range s.config.Feeds {
		jobs = append(jobs, job{platform: models.SourceRSS, req: sources.Request{URL: feed}})
	}
	for _, q := range s.config.HNQueries {
		jobs = append(jobs, job{platform: models.SourceHackerNews, req: sources.Request{Query: q}})
	}
	if s.config.MastodonInstance != "" {
		for _, q := range s.config.MastodonQueries {
			jobs = append(jobs, job{platform: models.SourceMastodon, req: sources.Request{Instance: s.config.MastodonInstance, Query: q}})
		}
	}
	for _, q := range s.config.RedditQueries {
		jobs = append(jobs, job{platform: models.SourceReddit, req: sources.Request{Query: q}})
	}
	return jobs
}

// RunScheduled ingests every configured feed and saved search with at most
// INGEST_CONCURRENCY calls in flight. A failing job is logged and counted;
// the others still run.
func (s *Service) RunScheduled(ctx context.Context) (Summary, error) {
	jobs := s.scheduledJobs()
	summary := Summary{Jobs: len(jobs)}
	if len(jobs) == 0 {
		logrus.Debug("No saved searches configured, skipping scheduled ingestion")
		return summary, nil
	}

	start := time.Now()
	logrus.Infof("Starting scheduled ingestion of %d saved searches", len(jobs))

	limit := s.config.IngestConcurrency
	if limit < 1 {
		limit = 1
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(limit)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			res, err := s.Run(ctx, j.platform, j.req)
			mu.Lock()
			defer mu.Unlock()
			summary.Added += res.Added
			if err != nil {
				summary.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	logrus.Infof("Scheduled ingestion finished in %v: %d new mentions, %d of %d jobs failed",
		time.Since(start), summary.Added, summary.Failed, summary.Jobs)
	return summary, ctx.Err()
}

// archive snapshot written once per run
type snapshot struct {
	RunID    string           `json:"run_id"`
	Platform string           `json:"platform"`
	Request  sources.Request  `json:"request"`
	Archived time.Time        `json:"archived_at"`
	Mentions []models.Mention `json:"mentions"`
}

func (s *Service) archiveRun(ctx context.Context, result Result, req sources.Request, stored []models.Mention) (string, error) {
	if s.archive == nil || len(stored) == 0 {
		return "", nil
	}

	now := time.Now().UTC()
	data, err := json.Marshal(snapshot{
		RunID:    result.RunID,
		Platform: result.Platform,
		Request:  req,
		Archived: now,
		Mentions: stored,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal mentions: %w", err)
	}

	name := ArchiveName(result.Platform, now, result.RunID)
	if err := s.archive.Store(ctx, name, data); err != nil {
		return "", err
	}
	return name, nil
}

// ArchiveName is the blob name of a run snapshot.
func ArchiveName(platform string, at time.Time, runID string) string {
	return fmt.Sprintf("mentions/%s/%s/%s.json", platform, at.UTC().Format("2006-01-02"), runID)
}

func (s *Service) updateMetrics(platform string, added int, duration time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.Runs++
	s.metrics.TotalMentions += added
	s.metrics.SourceMetrics[platform] += added
	s.metrics.LastRun = time.Now()
	s.metrics.LastRunDuration = duration.String()
	if failed {
		s.metrics.ErrorCount++
	}
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}
