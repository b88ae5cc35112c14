package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// StartSweeper destroys idle sessions every interval until ctx ends.
// Stale store rows from earlier processes are removed on the same schedule.
func StartSweeper(ctx context.Context, mgr *Manager, ttl, interval time.Duration) (*cron.Cron, error) {
	if ttl <= 0 || interval <= 0 {
		return nil, fmt.Errorf("sweeper: ttl and interval must be positive")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(cron.Every(interval), cron.FuncJob(func() {
		sweep(ctx, mgr, ttl)
	}))
	c.Start()
	slog.Info("Session sweeper started", "interval", interval, "ttl", ttl)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		slog.Info("Session sweeper shutting down", "reason", ctx.Err())
	}()

	return c, nil
}

func sweep(ctx context.Context, mgr *Manager, ttl time.Duration) {
	if n := mgr.SweepIdle(ctx, ttl); n > 0 {
		slog.Info("Session sweeper expired sessions", "count", n, "live", mgr.Len())
	}

	if mgr.repo == nil {
		return
	}
	if deleted, err := mgr.repo.DeleteStaleChatSessions(ctx, ttl); err != nil {
		slog.Error("Session sweeper failed to delete stale rows", "error", err)
	} else if deleted > 0 {
		slog.Info("Session sweeper deleted stale rows", "count", deleted)
	}
}
