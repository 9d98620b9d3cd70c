// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package schedule runs a single recurring job on a cron expression,
// used as the optional alternative to a fixed-interval ticker for
// snapshot persistence.
package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// CronScheduler wraps a single cron.Cron entry running one job.
type CronScheduler struct {
	cron *cron.Cron
}

// NewCronScheduler parses expr (standard 5-field cron syntax) and
// registers job against it. job runs on the cron library's own
// goroutine; it must not block indefinitely.
func NewCronScheduler(expr string, logger *slog.Logger, job func()) (*CronScheduler, error) {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if _, err := c.AddFunc(expr, job); err != nil {
		return nil, fmt.Errorf("schedule: adding cron job %q: %w", expr, err)
	}
	return &CronScheduler{cron: c}, nil
}

// Start begins running the scheduled job.
func (s *CronScheduler) Start() { s.cron.Start() }

// Stop waits for the job to finish, or for ctx to expire, whichever is
// first.
func (s *CronScheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}
