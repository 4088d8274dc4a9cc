package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cadence/internal/eventbus"
	"cadence/internal/exec"
	"cadence/internal/monitor"
	"cadence/internal/notify"
	"cadence/internal/provider"
	"cadence/internal/schedule"
	"cadence/internal/store"
	"cadence/pkg/logx"
)

// Job names registered with the monitor.
const (
	JobProcess = "schedule-processor"
	JobBacklog = "backlog-replenish"
	JobSweep   = "stale-sweep"
)

var ErrRunInProgress = errors.New("processing run already in progress")

// Config tunes one processor. Zero fields fall back to defaults sized to a
// 5-minute trigger cadence.
type Config struct {
	Window     schedule.Window
	BatchSize  int
	BatchPause time.Duration

	Retry        exec.RetryPolicy
	RunTimeout   time.Duration
	StoreTimeout time.Duration

	// StaleCutoff is how long past due a pending item may sit before the
	// sweep marks it failed.
	StaleCutoff time.Duration

	// StuckCutoff is how long an item may stay in processing before the
	// sweep returns it to pending, measured from when it was picked up.
	StuckCutoff time.Duration

	// Backlog replenishment: when a schedule's pending count drops below
	// MinPending, generate up to TargetPending. A failed replenish run is
	// re-enqueued once after BacklogRetryDelay.
	MinPending        int
	TargetPending     int
	BacklogRetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Window == (schedule.Window{}) {
		c.Window = schedule.Window{Lead: 5 * time.Minute, Grace: 10 * time.Minute}
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 3
	}
	if c.BatchPause <= 0 {
		c.BatchPause = 2 * time.Second
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialDelay <= 0 {
		c.Retry.InitialDelay = 30 * time.Second
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 10 * time.Minute
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 15 * time.Second
	}
	if c.StaleCutoff <= 0 {
		c.StaleCutoff = 40 * time.Minute
	}
	if c.StuckCutoff <= 0 {
		c.StuckCutoff = 20 * time.Minute
	}
	if c.MinPending <= 0 {
		c.MinPending = 2
	}
	if c.TargetPending <= c.MinPending {
		c.TargetPending = c.MinPending + 3
	}
	if c.BacklogRetryDelay <= 0 {
		c.BacklogRetryDelay = 10 * time.Minute
	}
	return c
}

// Settings are the per-item knobs ProcessScheduledItem honors. The trigger
// path derives them from Config; callers invoking a single item directly
// (manual reprocessing) may override.
type Settings struct {
	Retry        exec.RetryPolicy
	StoreTimeout time.Duration
}

// RunSummary aggregates one trigger run. Item failures land here as
// strings; they never abort the run.
type RunSummary struct {
	StartedAt    time.Time
	Duration     time.Duration
	DueSchedules int
	DueItems     int
	Completed    int
	Failed       int
	Errors       []string
}

// itemRef addresses one due item inside its schedule. The batch worker
// operates on refs, not on shared Schedule pointers, so each worker re-loads
// and saves under the per-schedule lock.
type itemRef struct {
	ScheduleID string
	OwnerID    string
	ItemIndex  int
}

// Processor drives due-item evaluation and execution. One instance per
// process; overlapping trigger fires are collapsed by an in-process run
// lock (single-process deployment is assumed, see DESIGN.md).
type Processor struct {
	cfg  Config
	st   store.Store
	prov provider.Provider
	mon  *monitor.Monitor
	bus  eventbus.Bus
	log  logx.Logger

	runLock     exec.RunLock
	backlogLock exec.RunLock
	sweepLock   exec.RunLock
	perSchedule *exec.KeyedMutex

	now func() time.Time
}

func New(cfg Config, st store.Store, prov provider.Provider, mon *monitor.Monitor, bus eventbus.Bus, log logx.Logger) *Processor {
	cfg = cfg.withDefaults()
	p := &Processor{
		cfg:         cfg,
		st:          st,
		prov:        prov,
		mon:         mon,
		bus:         bus,
		log:         log.With(logx.String("component", "processor")),
		perSchedule: exec.NewKeyedMutex(),
		now:         time.Now,
	}
	mon.StartMonitoring(JobProcess)
	mon.StartMonitoring(JobBacklog)
	mon.StartMonitoring(JobSweep)
	return p
}

func (p *Processor) settings() Settings {
	return Settings{Retry: p.cfg.Retry, StoreTimeout: p.cfg.StoreTimeout}
}

// HeldLocks reports which engine passes are currently running, by job name.
func (p *Processor) HeldLocks() []string {
	var held []string
	if p.runLock.Held() {
		held = append(held, JobProcess)
	}
	if p.backlogLock.Held() {
		held = append(held, JobBacklog)
	}
	if p.sweepLock.Held() {
		held = append(held, JobSweep)
	}
	return held
}

// Run executes one full processing pass: find due schedules, fan their due
// items out in batches, record the outcome. If a previous run still holds
// the lock, Run does zero work and returns ErrRunInProgress.
func (p *Processor) Run(ctx context.Context) (RunSummary, error) {
	if !p.runLock.TryAcquire() {
		p.log.Warn("run skipped, previous run still in progress")
		p.publish(eventbus.TypeRunSkipped, nil)
		return RunSummary{}, ErrRunInProgress
	}
	defer p.runLock.Release()

	p.mon.MarkStarted(JobProcess)
	started := p.now()
	sum := RunSummary{StartedAt: started}

	// WithTimeout may abandon the pass while it is still running, so the
	// pass builds its own summary and hands it over through a buffered
	// channel. Run only reads the handoff, never memory the abandoned
	// goroutine still writes.
	results := make(chan RunSummary, 1)
	err := exec.WithTimeout(ctx, p.cfg.RunTimeout, func(ctx context.Context) error {
		s, err := p.runLocked(ctx, started)
		results <- s
		return err
	})
	select {
	case s := <-results:
		sum = s
	default:
	}
	sum.Duration = p.now().Sub(started)

	if err != nil {
		p.mon.MarkFailed(JobProcess, err)
		p.log.Error("processing run failed", logx.Err(err), logx.Duration("duration", sum.Duration))
		return sum, err
	}
	p.mon.MarkCompleted(JobProcess, sum.Duration, true)
	p.log.Info("processing run finished",
		logx.Int("due_schedules", sum.DueSchedules),
		logx.Int("due_items", sum.DueItems),
		logx.Int("completed", sum.Completed),
		logx.Int("failed", sum.Failed),
		logx.Duration("duration", sum.Duration))
	p.publish(eventbus.TypeRunFinished, sum)
	return sum, nil
}

func (p *Processor) runLocked(ctx context.Context, started time.Time) (RunSummary, error) {
	sum := RunSummary{StartedAt: started}
	now := p.now()

	var due []*schedule.Schedule
	err := exec.WithTimeout(ctx, p.cfg.StoreTimeout, func(ctx context.Context) error {
		var err error
		due, err = p.st.FindDueSchedules(ctx, now, p.cfg.Window.Lead)
		return err
	})
	if err != nil {
		return sum, fmt.Errorf("find due schedules: %w", err)
	}

	var refs []itemRef
	for _, s := range due {
		idx := s.DueItems(now, p.cfg.Window)
		if len(idx) == 0 {
			continue
		}
		sum.DueSchedules++
		for _, i := range idx {
			refs = append(refs, itemRef{ScheduleID: s.ID, OwnerID: s.OwnerID, ItemIndex: i})
		}
	}
	sum.DueItems = len(refs)
	if len(refs) == 0 {
		return sum, nil
	}

	settings := p.settings()
	results := exec.ProcessBatches(ctx, refs, p.cfg.BatchSize, p.cfg.BatchPause,
		func(ctx context.Context, ref itemRef) error {
			return p.ProcessScheduledItem(ctx, ref.ScheduleID, ref.ItemIndex, settings)
		})
	for _, r := range results {
		if r.Err != nil {
			sum.Failed++
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s[%d]: %v",
				refs[r.Index].ScheduleID, refs[r.Index].ItemIndex, r.Err))
		} else {
			sum.Completed++
		}
	}
	return sum, nil
}

// ProcessScheduledItem runs one due item end to end: load, transition to
// processing, generate content through the provider with retry, transition
// to completed or failed, save. Writes to the same schedule are serialized
// by a per-schedule lock so concurrent workers never interleave a
// load-modify-save.
func (p *Processor) ProcessScheduledItem(ctx context.Context, scheduleID string, itemIndex int, settings Settings) error {
	if settings.StoreTimeout <= 0 {
		settings.StoreTimeout = p.cfg.StoreTimeout
	}
	unlock := p.perSchedule.Lock(scheduleID)
	defer unlock()

	s, err := p.loadSchedule(ctx, scheduleID, settings.StoreTimeout)
	if err != nil {
		return fmt.Errorf("load schedule %s: %w", scheduleID, err)
	}
	if itemIndex < 0 || itemIndex >= len(s.Items) {
		return fmt.Errorf("item index %d out of range for schedule %s", itemIndex, scheduleID)
	}
	item := &s.Items[itemIndex]
	if item.Status != schedule.StatusPending {
		// Another worker (or a previous partial run) already picked this
		// item up. Idempotent no-op.
		p.log.Debug("item no longer pending, skipping",
			logx.String("schedule", scheduleID), logx.Int("item", itemIndex),
			logx.String("status", string(item.Status)))
		return nil
	}

	now := p.now()
	if err := item.MarkProcessing(now); err != nil {
		return err
	}
	s.UpdatedAt = now
	if err := p.saveSchedule(ctx, s, settings.StoreTimeout); err != nil {
		return fmt.Errorf("save schedule %s: %w", scheduleID, err)
	}

	ideas, genErr := p.generate(ctx, s, item, settings.Retry)

	now = p.now()
	if genErr != nil {
		if err := item.MarkFailed(now, genErr.Error()); err != nil {
			return err
		}
	} else {
		resultRef := uuid.NewString()
		if len(ideas) > 0 {
			item.KeyPoints = mergeKeyPoints(item.KeyPoints, ideas[0].KeyPoints)
		}
		if err := item.MarkCompleted(now, resultRef); err != nil {
			return err
		}
	}
	s.UpdatedAt = now
	if err := p.saveSchedule(ctx, s, settings.StoreTimeout); err != nil {
		return fmt.Errorf("save schedule %s: %w", scheduleID, err)
	}

	if genErr != nil {
		p.publish(eventbus.TypeItemFailed, notify.Notification{
			OwnerID: s.OwnerID,
			Type:    eventbus.TypeItemFailed,
			Message: fmt.Sprintf("Generation failed for %q: %v", item.Description, genErr),
		})
		return genErr
	}
	p.publish(eventbus.TypeItemCompleted, notify.Notification{
		OwnerID: s.OwnerID,
		Type:    eventbus.TypeItemCompleted,
		Message: fmt.Sprintf("Content ready for %q (ref %s)", item.Description, item.ResultRef),
	})
	return nil
}

// generate calls the provider with bounded retries. Validation errors carry
// the NoRetry marker and fail on the first attempt.
func (p *Processor) generate(ctx context.Context, s *schedule.Schedule, item *schedule.Item, policy exec.RetryPolicy) ([]provider.Idea, error) {
	topic := item.Description
	if topic == "" {
		topic = s.Topic
	}
	var ideas []provider.Idea
	err := exec.Retry(ctx, policy, func(ctx context.Context) error {
		var err error
		ideas, err = p.prov.Generate(ctx, topic, 1)
		if err != nil {
			return err
		}
		if len(ideas) == 0 {
			return errors.New("provider returned no content")
		}
		return nil
	})
	return ideas, err
}

func (p *Processor) loadSchedule(ctx context.Context, id string, d time.Duration) (*schedule.Schedule, error) {
	var s *schedule.Schedule
	err := exec.WithTimeout(ctx, d, func(ctx context.Context) error {
		var err error
		s, err = p.st.Load(ctx, id)
		return err
	})
	return s, err
}

func (p *Processor) saveSchedule(ctx context.Context, s *schedule.Schedule, d time.Duration) error {
	return exec.WithTimeout(ctx, d, func(ctx context.Context) error {
		return p.st.Save(ctx, s)
	})
}

func (p *Processor) publish(typ string, data any) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func mergeKeyPoints(existing, generated []string) []string {
	if len(existing) > 0 {
		return existing
	}
	return generated
}
