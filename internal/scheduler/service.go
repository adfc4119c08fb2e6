package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/azure/social-listening/internal/ingest"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner is the part of the ingestion service the scheduler drives.
type Runner interface {
	RunScheduled(ctx context.Context) (ingest.Summary, error)
}

// Service handles scheduling of ingestion runs
type Service struct {
	schedule string
	runner   Runner
	timeout  time.Duration
	cron     *cron.Cron
}

// NewService creates a new scheduler service. An empty schedule disables it.
func NewService(schedule string, runner Runner) *Service {
	return &Service{
		schedule: schedule,
		runner:   runner,
		timeout:  30 * time.Minute,
		cron:     cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

// Start begins the scheduled ingestion
func (s *Service) Start() error {
	if s.schedule == "" {
		logrus.Info("Scheduled ingestion disabled (INGEST_SCHEDULE is empty)")
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.runOnce); err != nil {
		return fmt.Errorf("invalid ingest schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with schedule %q", s.schedule)
	return nil
}

func (s *Service) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	logrus.Info("Starting scheduled ingestion run")
	summary, err := s.runner.RunScheduled(ctx)
	if err != nil {
		logrus.Errorf("Scheduled ingestion run failed: %v", err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"jobs":   summary.Jobs,
		"failed": summary.Failed,
		"added":  summary.Added,
	}).Info("Scheduled ingestion run completed")
}

// Stop stops the scheduler and waits for a running ingestion to finish
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}
