package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// InitializeSchedules starts all the cron jobs (currently just the sweeper).
// The caller stops the returned scheduler on shutdown.
func (serverHandler *ServerHandler) InitializeSchedules() *cron.Cron {
	interval := serverHandler.ServerConfig.SessionSweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	c := cron.New()
	var sweepJob cron.Job
	sweepJob = cron.FuncJob(serverHandler.sweepJobFunc)
	sweepJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(sweepJob) //ensure we don't kick off another if old one is still running
	if _, err := c.AddJob(fmt.Sprintf("@every %s", interval), sweepJob); err != nil {
		Logger.Error("Failed to schedule sweep job", "interval", interval.String(), "error", err)
		return c
	}
	Logger.Info("Adding Sweep Job scheduler", "interval", interval.String(), "sessionTTL", serverHandler.ServerConfig.SessionTTL.String())
	c.Start()
	return c
}
