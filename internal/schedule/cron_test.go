// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package schedule

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestCronScheduler_InvalidExpression(t *testing.T) {
	_, err := NewCronScheduler("not a cron expr", testLogger(), func() {})
	if err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestCronScheduler_RunsJob(t *testing.T) {
	runs := make(chan struct{}, 4)
	s, err := NewCronScheduler("@every 50ms", testLogger(), func() {
		select {
		case runs <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewCronScheduler: %v", err)
	}
	s.Start()

	select {
	case <-runs:
	case <-time.After(1 * time.Second):
		t.Fatal("expected the job to run at least once within 1s")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
}
