package digger

import (
	"context"
	"time"

	"github.com/pysugar/creator-insights/internal/logging"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// TokenSweeper refreshes tokens that expire within lead.
type TokenSweeper interface {
	RefreshExpiring(ctx context.Context, lead time.Duration) (int, error)
}

// ScheduleConfig controls the background jobs. An empty spec disables a job.
type ScheduleConfig struct {
	// Insights is the cron spec of the daily insights run.
	Insights string
	// RunTimeout bounds one insights run.
	RunTimeout time.Duration

	// TokenSweep is the cron spec of the proactive token refresh.
	TokenSweep string
	// TokenLead is how far ahead of expiry tokens are refreshed.
	TokenLead time.Duration
}

// Scheduler runs the orchestrator and the token sweep on cron schedules.
// Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron   *cron.Cron
	orch   *Orchestrator
	tokens TokenSweeper
	cfg    ScheduleConfig
	log    *logrus.Entry
}

// NewScheduler registers the configured jobs. tokens may be nil when no
// sweep is wanted.
func NewScheduler(orch *Orchestrator, tokens TokenSweeper, cfg ScheduleConfig, logger *logrus.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cronLog := cron.PrintfLogger(logger)
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLog),
			cron.SkipIfStillRunning(cronLog),
		)),
		orch:   orch,
		tokens: tokens,
		cfg:    cfg,
		log:    logrus.NewEntry(logger).WithField("component", "scheduler"),
	}

	if cfg.Insights != "" {
		if _, err := s.cron.AddFunc(cfg.Insights, s.runInsights); err != nil {
			return nil, err
		}
	}
	if cfg.TokenSweep != "" && tokens != nil {
		if _, err := s.cron.AddFunc(cfg.TokenSweep, s.sweepTokens); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.log.WithFields(logrus.Fields{
		"insights":    s.cfg.Insights,
		"token_sweep": s.cfg.TokenSweep,
	}).Info("scheduler started")
	s.cron.Start()
}

// Stop stops scheduling and returns a context that is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) jobContext() (context.Context, context.CancelFunc) {
	ctx := logging.WithRequestID(context.Background(), logging.NewRequestID())
	if s.cfg.RunTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.RunTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Scheduler) runInsights() {
	ctx, cancel := s.jobContext()
	defer cancel()
	if _, err := s.orch.RunAll(ctx); err != nil {
		s.log.WithError(err).Error("insights run failed")
	}
}

func (s *Scheduler) sweepTokens() {
	ctx, cancel := s.jobContext()
	defer cancel()
	n, err := s.tokens.RefreshExpiring(ctx, s.cfg.TokenLead)
	entry := s.log.WithField("refreshed", n)
	if err != nil {
		entry.WithError(err).Warn("token sweep finished with errors")
		return
	}
	entry.Info("token sweep finished")
}
