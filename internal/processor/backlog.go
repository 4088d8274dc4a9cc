package processor

import (
	"context"
	"fmt"
	"time"

	"cadence/internal/eventbus"
	"cadence/internal/exec"
	"cadence/internal/notify"
	"cadence/internal/schedule"
	"cadence/pkg/logx"
)

// ReplenishBacklog tops up every active schedule whose pending count has
// dropped below the configured minimum: new items are generated through
// the provider and scheduled at the pattern's next occurrences, clipped to
// the schedule's active window.
//
// A run-level failure schedules exactly one delayed re-run; per-schedule
// failures only log and move on.
func (p *Processor) ReplenishBacklog(ctx context.Context) error {
	if !p.backlogLock.TryAcquire() {
		p.log.Warn("backlog replenish skipped, previous run still in progress")
		return ErrRunInProgress
	}
	defer p.backlogLock.Release()

	p.mon.MarkStarted(JobBacklog)
	started := p.now()
	err := p.replenishAll(ctx)
	if err != nil {
		p.mon.MarkFailed(JobBacklog, err)
		p.log.Error("backlog replenish failed", logx.Err(err))
		p.scheduleBacklogRetry(ctx)
		return err
	}
	p.mon.MarkCompleted(JobBacklog, p.now().Sub(started), true)
	return nil
}

func (p *Processor) replenishAll(ctx context.Context) error {
	var active []*schedule.Schedule
	err := exec.WithTimeout(ctx, p.cfg.StoreTimeout, func(ctx context.Context) error {
		var err error
		active, err = p.st.FindActiveSchedules(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("find active schedules: %w", err)
	}

	for _, s := range active {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.PendingCount() >= p.cfg.MinPending {
			continue
		}
		if err := p.replenishOne(ctx, s.ID); err != nil {
			p.log.Warn("schedule replenish failed",
				logx.String("schedule", s.ID), logx.Err(err))
		}
	}
	return nil
}

func (p *Processor) replenishOne(ctx context.Context, scheduleID string) error {
	unlock := p.perSchedule.Lock(scheduleID)
	defer unlock()

	s, err := p.loadSchedule(ctx, scheduleID, p.cfg.StoreTimeout)
	if err != nil {
		return err
	}
	want := p.cfg.TargetPending - s.PendingCount()
	if want <= 0 || !s.IsActive {
		return nil
	}

	ideas, err := p.prov.Generate(ctx, s.Topic, want)
	if err != nil && len(ideas) == 0 {
		return fmt.Errorf("generate ideas: %w", err)
	}
	if err != nil {
		// Partial result: schedule what we got, surface the error in logs only.
		p.log.Warn("partial idea generation",
			logx.String("schedule", s.ID),
			logx.Int("got", len(ideas)), logx.Int("want", want), logx.Err(err))
	}
	if len(ideas) == 0 {
		return nil
	}

	now := p.now()
	times, err := s.NextOccurrenceTimes(now, len(ideas))
	if err != nil {
		return fmt.Errorf("next occurrences: %w", err)
	}
	if len(times) == 0 {
		// Active window exhausted. Nothing left to schedule.
		p.log.Info("schedule active window exhausted, deactivating",
			logx.String("schedule", s.ID))
		s.Deactivate(now)
		return p.saveSchedule(ctx, s, p.cfg.StoreTimeout)
	}

	var items []schedule.Item
	for i, at := range times {
		if i >= len(ideas) {
			break
		}
		it, err := schedule.NewItem(ideas[i].Description, ideas[i].KeyPoints, at, now)
		if err != nil {
			return fmt.Errorf("new item: %w", err)
		}
		items = append(items, it)
	}
	s.AppendItems(now, items...)
	if err := p.saveSchedule(ctx, s, p.cfg.StoreTimeout); err != nil {
		return err
	}

	p.log.Info("backlog replenished",
		logx.String("schedule", s.ID), logx.Int("added", len(items)))
	p.publish(eventbus.TypeBacklogReplenished, notify.Notification{
		OwnerID: s.OwnerID,
		Type:    eventbus.TypeBacklogReplenished,
		Message: fmt.Sprintf("Scheduled %d new items for %q", len(items), s.Topic),
	})
	return nil
}

// scheduleBacklogRetry re-enqueues one delayed replenish attempt. It is a
// single retry, not a retry loop: the next daily trigger is the real
// fallback.
func (p *Processor) scheduleBacklogRetry(ctx context.Context) {
	delay := p.cfg.BacklogRetryDelay
	p.log.Info("scheduling one backlog retry", logx.Duration("delay", delay))
	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if err := p.replenishRetry(ctx); err != nil {
			p.log.Error("backlog retry failed, waiting for next trigger", logx.Err(err))
		}
	}()
}

// replenishRetry is the delayed attempt body. It takes the lock like a
// normal run but never chains another retry.
func (p *Processor) replenishRetry(ctx context.Context) error {
	if !p.backlogLock.TryAcquire() {
		return ErrRunInProgress
	}
	defer p.backlogLock.Release()

	p.mon.MarkStarted(JobBacklog)
	started := p.now()
	err := p.replenishAll(ctx)
	if err != nil {
		p.mon.MarkFailed(JobBacklog, err)
		return err
	}
	p.mon.MarkCompleted(JobBacklog, p.now().Sub(started), true)
	return nil
}
