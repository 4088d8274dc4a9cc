package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cadence/internal/eventbus"
	"cadence/internal/exec"
	"cadence/internal/runtime/supervisor"
	"cadence/pkg/logx"
)

// Service is the async delivery pipeline: Notify enqueues, workers drain
// the queue through a shared rate limiter and hand each notification to
// the sink with bounded retries. Enqueue never blocks; when the queue is
// full the notification is dropped and counted.
type Service struct {
	cfg  Config
	sink Sink
	log  logx.Logger

	limiter *rate.Limiter
	queue   chan Notification

	dmu   sync.Mutex
	dedup map[string]time.Time

	mu      sync.Mutex
	sup     *supervisor.Supervisor
	started bool
	stopped bool
	dropped uint64
	sent    uint64
}

func New(cfg Config, sink Sink, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:     cfg,
		sink:    sink,
		log:     log.With(logx.String("component", "notify")),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		queue:   make(chan Notification, cfg.QueueSize),
		dedup:   make(map[string]time.Time),
	}
}

// Start spins up the delivery workers. Safe to call once.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Info("notifications disabled")
		return nil
	}
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	for i := 0; i < s.cfg.Workers; i++ {
		name := fmt.Sprintf("notify-worker-%d", i)
		s.sup.Go(name, s.workerLoop)
	}
	s.started = true
	s.log.Info("notification pipeline started",
		logx.Int("workers", s.cfg.Workers),
		logx.Int("queue_size", s.cfg.QueueSize))
	return nil
}

// Stop drains nothing: queued notifications not yet delivered are dropped.
// Delivery is best-effort by contract.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.stopped = true
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	sup.Cancel()
	return sup.Wait(ctx)
}

// Notify enqueues a notification for async delivery. It never blocks.
func (s *Service) Notify(n Notification) error {
	if !s.cfg.Enabled {
		return ErrDisabled
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.mu.Unlock()
	if s.isDuplicate(n) {
		return nil
	}
	select {
	case s.queue <- n:
		return nil
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		s.log.Warn("notification dropped, queue full",
			logx.String("owner", n.OwnerID), logx.String("type", n.Type))
		return ErrQueueFull
	}
}

// ConsumeBus bridges event bus events into the pipeline. Only events whose
// Data is a Notification are forwarded; everything else is ignored.
func (s *Service) ConsumeBus(bus eventbus.Bus) {
	if !s.cfg.Enabled || bus == nil {
		return
	}
	ch, unsub := bus.Subscribe(s.cfg.QueueSize)
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		unsub()
		return
	}
	sup.Go("notify-bus", func(ctx context.Context) error {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-ch:
				if !ok {
					return nil
				}
				if n, ok := ev.Data.(Notification); ok {
					_ = s.Notify(n)
				}
			}
		}
	})
}

// Dropped reports how many notifications were discarded on a full queue.
func (s *Service) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Sent reports successful deliveries.
func (s *Service) Sent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *Service) workerLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-s.queue:
			s.deliver(ctx, n)
		}
	}
}

func (s *Service) deliver(ctx context.Context, n Notification) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	policy := exec.RetryPolicy{MaxAttempts: s.cfg.RetryMax, InitialDelay: s.cfg.RetryBase}
	err := exec.Retry(ctx, policy, func(ctx context.Context) error {
		return s.sink.Send(ctx, n)
	})
	if err != nil {
		s.log.Warn("notification delivery failed",
			logx.String("owner", n.OwnerID), logx.String("type", n.Type), logx.Err(err))
		return
	}
	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
}

func (s *Service) isDuplicate(n Notification) bool {
	if s.cfg.DedupWindow <= 0 {
		return false
	}
	key := n.OwnerID + "|" + n.Type + "|" + n.Message
	now := time.Now()
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if last, ok := s.dedup[key]; ok && now.Sub(last) < s.cfg.DedupWindow {
		return true
	}
	// opportunistic cleanup so the map does not grow without bound
	if len(s.dedup) > 1024 {
		for k, t := range s.dedup {
			if now.Sub(t) >= s.cfg.DedupWindow {
				delete(s.dedup, k)
			}
		}
	}
	s.dedup[key] = now
	return false
}
