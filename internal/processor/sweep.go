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

// SweepStale fails pending items that sat more than StaleCutoff past their
// due time without ever being picked up, and returns items stuck in
// processing longer than StuckCutoff back to pending so the next run can
// retry them. Expired items are never silently dropped: they go to failed
// with an explanatory message and an owner notification.
func (p *Processor) SweepStale(ctx context.Context) (int, error) {
	if !p.sweepLock.TryAcquire() {
		p.log.Warn("stale sweep skipped, previous sweep still in progress")
		return 0, ErrRunInProgress
	}
	defer p.sweepLock.Release()

	p.mon.MarkStarted(JobSweep)
	started := p.now()

	expired, recovered, err := p.sweepAll(ctx)
	if err != nil {
		p.mon.MarkFailed(JobSweep, err)
		return expired, err
	}
	p.mon.MarkCompleted(JobSweep, p.now().Sub(started), true)
	if expired > 0 || recovered > 0 {
		p.log.Info("stale sweep finished",
			logx.Int("expired", expired), logx.Int("recovered", recovered))
	}
	return expired, nil
}

func (p *Processor) sweepAll(ctx context.Context) (int, int, error) {
	var active []*schedule.Schedule
	err := exec.WithTimeout(ctx, p.cfg.StoreTimeout, func(ctx context.Context) error {
		var err error
		active, err = p.st.FindActiveSchedules(ctx)
		return err
	})
	if err != nil {
		return 0, 0, fmt.Errorf("find active schedules: %w", err)
	}

	expired, recovered := 0, 0
	for _, s := range active {
		if err := ctx.Err(); err != nil {
			return expired, recovered, err
		}
		e, r, err := p.sweepOne(ctx, s.ID)
		if err != nil {
			p.log.Warn("schedule sweep failed",
				logx.String("schedule", s.ID), logx.Err(err))
			continue
		}
		expired += e
		recovered += r
	}
	return expired, recovered, nil
}

func (p *Processor) sweepOne(ctx context.Context, scheduleID string) (int, int, error) {
	unlock := p.perSchedule.Lock(scheduleID)
	defer unlock()

	s, err := p.loadSchedule(ctx, scheduleID, p.cfg.StoreTimeout)
	if err != nil {
		return 0, 0, err
	}

	now := p.now()
	staleCutoff := now.Add(-p.cfg.StaleCutoff)
	stuckCutoff := now.Add(-p.cfg.StuckCutoff)
	expired, recovered := 0, 0
	for i := range s.Items {
		it := &s.Items[i]

		// A crashed or timed-out run can leave an item in processing
		// forever. Once it has been there past the stuck cutoff, put it
		// back in pending; the next run picks it up again. Expiry is left
		// to a later sweep so the item gets at least one more attempt.
		if it.Status == schedule.StatusProcessing &&
			!it.ProcessingAt.IsZero() && it.ProcessingAt.Before(stuckCutoff) {
			if err := it.RecoverStuck(now); err != nil {
				return expired, recovered, err
			}
			recovered++
			p.log.Warn("stuck item returned to pending",
				logx.String("schedule", s.ID), logx.Int("item", i))
			continue
		}

		if it.Status != schedule.StatusPending || !it.ScheduledFor.Before(staleCutoff) {
			continue
		}
		msg := fmt.Sprintf("expired: still pending %s after scheduled time", now.Sub(it.ScheduledFor).Round(time.Second))
		if err := it.Expire(now, msg); err != nil {
			return expired, recovered, err
		}
		expired++
		p.publish(eventbus.TypeItemExpired, notify.Notification{
			OwnerID: s.OwnerID,
			Type:    eventbus.TypeItemExpired,
			Message: fmt.Sprintf("Item %q expired without processing", it.Description),
		})
	}
	if expired == 0 && recovered == 0 {
		return 0, 0, nil
	}
	s.UpdatedAt = now
	return expired, recovered, p.saveSchedule(ctx, s, p.cfg.StoreTimeout)
}
