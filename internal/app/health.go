package app

import (
	"context"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"

	"cadence/internal/eventbus"
	"cadence/internal/monitor"
	"cadence/pkg/logx"
)

// Health is the aggregate daemon health snapshot.
type Health struct {
	Healthy bool                     `json:"healthy"`
	Issues  []string                 `json:"issues,omitempty"`
	Jobs    map[string]monitor.Stats `json:"jobs"`
	// RunningPasses lists engine passes holding their run lock right now.
	RunningPasses []string `json:"running_passes,omitempty"`
}

// HealthStatus combines job-monitor health with a storage ping.
func (a *App) HealthStatus(ctx context.Context) Health {
	report := a.mon.Health()
	h := Health{
		Healthy:       report.Healthy,
		Issues:        report.Issues,
		Jobs:          a.mon.All(),
		RunningPasses: a.proc.HeldLocks(),
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.st.Ping(pctx); err != nil {
		h.Healthy = false
		h.Issues = append(h.Issues, "storage unreachable: "+err.Error())
	}
	return h
}

// healthCheck is the periodic self-check trigger body: recover stuck jobs,
// then publish a degraded event if anything is still wrong.
func (a *App) healthCheck(ctx context.Context) {
	stuckThreshold := a.mon.StuckThreshold()
	if recovered := a.mon.AutoRecoverStuckJobs(stuckThreshold); len(recovered) > 0 {
		a.log.Warn("auto-recovered stuck jobs",
			logx.Any("jobs", recovered), logx.Duration("threshold", stuckThreshold))
	}

	h := a.HealthStatus(ctx)
	if h.Healthy {
		return
	}
	a.log.Warn("health check failed", logx.Any("issues", h.Issues))
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeHealthDegraded, Data: h})
}

// watchdog pets the systemd watchdog when WatchdogSec is configured. A
// pet is withheld while storage is unreachable so systemd restarts a
// wedged daemon.
func (a *App) watchdog(ctx context.Context) {
	interval, err := sd.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, interval/4)
			err := a.st.Ping(pctx)
			cancel()
			if err != nil {
				a.log.Error("watchdog pet withheld, storage unreachable", logx.Err(err))
				continue
			}
			_, _ = sd.SdNotify(false, sd.SdNotifyWatchdog)
		}
	}
}

func notifyReady() { _, _ = sd.SdNotify(false, sd.SdNotifyReady) }

func notifyStopping() { _, _ = sd.SdNotify(false, sd.SdNotifyStopping) }
