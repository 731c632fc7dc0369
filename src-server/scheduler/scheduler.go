// Package scheduler wires the two independent schedules: nightly
// ingestion and nightly rendering after it. The jobs themselves are
// injected so the write and read paths stay decoupled.
package scheduler

import (
	"fmt"
	"log/slog"

	"techcal/src-server/utils"

	"github.com/robfig/cron/v3"
)

func Start(as *utils.AppState, ingestJob, renderJob func()) (*cron.Cron, error) {
	c := cron.New()

	if _, err := c.AddFunc(as.Config.GetIngestCron(), ingestJob); err != nil {
		return nil, fmt.Errorf("scheduler.Start: invalid ingest cron: %w", err)
	}
	if _, err := c.AddFunc(as.Config.GetRenderCron(), renderJob); err != nil {
		return nil, fmt.Errorf("scheduler.Start: invalid render cron: %w", err)
	}

	c.Start()
	slog.Info("scheduler started",
		"ingest_cron", as.Config.GetIngestCron(),
		"render_cron", as.Config.GetRenderCron(),
	)

	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		<-*gracefulShutdownCh
		<-c.Stop().Done()
		slog.Debug("scheduler stopped")
	}()

	return c, nil
}
