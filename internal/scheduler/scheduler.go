// Package scheduler runs periodic maintenance jobs. The only job today is
// webhook retention: processed payment events older than the retention
// window are purged on every pass.
package scheduler

import (
	"context"
	"time"

	billingdomain "github.com/counselkit/letterflow/internal/billing/domain"
	"github.com/counselkit/letterflow/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config controls scheduler intervals.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
}

func defaultConfig() Config {
	return Config{
		RunInterval: time.Hour,
		JobTimeout:  5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := defaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	BillingSvc billingdomain.Service
	Config     Config `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	billingSvc billingdomain.Service
}

func New(p Params) *Scheduler {
	return &Scheduler{
		log:        p.Log.Named("scheduler"),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		billingSvc: p.BillingSvc,
	}
}

// RunOnce executes a single maintenance pass.
func (s *Scheduler) RunOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	start := s.clock.Now()
	purged, err := s.billingSvc.PurgeProcessed(ctx)
	if err != nil {
		return err
	}
	if purged > 0 {
		s.log.Info("purged processed webhook events",
			zap.Int64("purged", purged),
			zap.Duration("took", s.clock.Now().Sub(start)),
		)
	}
	return nil
}

// RunForever loops RunOnce until ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
