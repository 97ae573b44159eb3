package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/floradispatch/internal/config"
)

// Scheduler triggers settlement generation once a week.
type Scheduler struct {
	cfg         config.SettlementConfig
	loc         *time.Location
	settlements *SettlementService
	logger      *zap.Logger
	now         func() time.Time
}

func NewScheduler(deps Deps, cfg config.SettlementConfig, settlements *SettlementService) *Scheduler {
	loc := deps.Config.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{cfg: cfg, loc: loc, settlements: settlements, logger: deps.Logger, now: deps.Now}
}

// NextRun returns the first configured weekday/hour slot strictly after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	local := now.In(s.loc)
	run := time.Date(local.Year(), local.Month(), local.Day(), s.cfg.Hour, 0, 0, 0, s.loc)
	days := (int(s.cfg.Weekday) - int(local.Weekday()) + 7) % 7
	run = run.AddDate(0, 0, days)
	if !run.After(now) {
		run = run.AddDate(0, 0, 7)
	}
	return run
}

// PeriodFor is the seven local days ending at the run day's midnight.
func (s *Scheduler) PeriodFor(run time.Time) (time.Time, time.Time) {
	local := run.In(s.loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	return end.AddDate(0, 0, -7), end
}

// Run waits for each slot and generates that week's settlements.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	for {
		next := s.NextRun(s.now())
		s.logger.Info("next settlement run scheduled", zap.Time("at", next))
		if !sleepCtx(ctx, next.Sub(s.now())) {
			return nil
		}

		start, end := s.PeriodFor(next)
		runs, err := s.settlements.Generate(ctx, start, end)
		if err != nil {
			s.logger.Error("weekly settlement incomplete", zap.Int("settled", len(runs)), zap.Error(err))
			continue
		}
		s.logger.Info("weekly settlement finished", zap.Int("stores", len(runs)), zap.Time("period_start", start))
	}
}
