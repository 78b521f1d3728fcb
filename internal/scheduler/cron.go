package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Ironcock/GameReleaseFetcher/internal/config"
	"github.com/Ironcock/GameReleaseFetcher/internal/controllers"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// pruneSpec runs the history cleanup once a day, away from the feed jobs
const pruneSpec = "30 3 * * *"

// Publisher generates and writes the feed documents
type Publisher interface {
	PublishDaily(ctx context.Context, path string) error
	PublishMonthly(ctx context.Context, path string, trailerHead int) error
}

// RunPruner removes old feed run history
type RunPruner interface {
	PruneRuns(before time.Time) (int, error)
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron   *cron.Cron
	feeds  Publisher
	runs   RunPruner
	cfg    *config.Config
	logger *logrus.Logger

	// mu serializes feed jobs so the catalog API is never paged concurrently
	mu  sync.Mutex
	now func() time.Time
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg *config.Config, feeds Publisher, runs RunPruner, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		feeds:  feeds,
		runs:   runs,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start registers the jobs and starts the scheduler. Feeds whose document
// does not exist yet are generated immediately in the background.
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	if _, err := s.cron.AddFunc(s.cfg.DailyCron, s.runDaily); err != nil {
		return fmt.Errorf("failed to add daily job %q: %w", s.cfg.DailyCron, err)
	}

	if _, err := s.cron.AddFunc(s.cfg.MonthlyCron, s.runMonthly); err != nil {
		return fmt.Errorf("failed to add monthly job %q: %w", s.cfg.MonthlyCron, err)
	}

	if s.runs != nil && s.cfg.RunRetentionDays > 0 {
		if _, err := s.cron.AddFunc(pruneSpec, s.runPrune); err != nil {
			return fmt.Errorf("failed to add prune job: %w", err)
		}
	}

	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"daily":   s.cfg.DailyCron,
		"monthly": s.cfg.MonthlyCron,
	}).Info("Scheduler started")

	go func() {
		if missing(s.cfg.DailyFile) {
			s.logger.Info("No daily feed yet, generating it now")
			s.runDaily()
		}
		if missing(s.cfg.MonthlyFile) {
			s.logger.Info("No monthly feed yet, generating it now")
			s.runMonthly()
		}
	}()

	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
}

// runDaily executes the daily feed job
func (s *Scheduler) runDaily() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Running scheduled daily feed")
	if err := s.feeds.PublishDaily(context.Background(), s.cfg.DailyFile); errors.Is(err, controllers.ErrPartialFeed) {
		s.logger.WithError(err).Warn("Daily feed published with partial results")
	} else if err != nil {
		s.logger.WithError(err).Error("Daily feed job failed")
	} else {
		s.logger.Info("Daily feed job completed successfully")
	}
}

// runMonthly executes the monthly feed job
func (s *Scheduler) runMonthly() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Running scheduled monthly feed")
	if err := s.feeds.PublishMonthly(context.Background(), s.cfg.MonthlyFile, s.cfg.TrailerHead); errors.Is(err, controllers.ErrPartialFeed) {
		s.logger.WithError(err).Warn("Monthly feed published with partial results")
	} else if err != nil {
		s.logger.WithError(err).Error("Monthly feed job failed")
	} else {
		s.logger.Info("Monthly feed job completed successfully")
	}
}

// runPrune deletes feed runs older than the retention period
func (s *Scheduler) runPrune() {
	cutoff := s.now().AddDate(0, 0, -s.cfg.RunRetentionDays)

	n, err := s.runs.PruneRuns(cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Failed to prune feed runs")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"deleted": n,
		"before":  cutoff.Format(time.RFC3339),
	}).Debug("Pruned feed runs")
}

func missing(path string) bool {
	_, err := os.Stat(path)
	return os.IsNotExist(err)
}
