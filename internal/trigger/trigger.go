// Package trigger owns the periodic cron entries that drive the
// processor. It knows nothing about scheduling semantics: each entry just
// invokes a job closure, and overlap protection lives behind the
// processor's run locks.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"cadence/pkg/logx"
)

// Config holds the cron specs, one per engine pass. Specs accept standard
// 5-field cron expressions plus descriptors (@every 5m, @daily).
type Config struct {
	Timezone string

	ProcessSpec string // due-item processing
	BacklogSpec string // backlog replenishment
	SweepSpec   string // stale-pending sweep
	HealthSpec  string // health self-check
}

func (c Config) withDefaults() Config {
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.ProcessSpec == "" {
		c.ProcessSpec = "@every 5m"
	}
	if c.BacklogSpec == "" {
		c.BacklogSpec = "0 3 * * *"
	}
	if c.SweepSpec == "" {
		c.SweepSpec = "@every 7m"
	}
	if c.HealthSpec == "" {
		c.HealthSpec = "@every 5m"
	}
	return c
}

// Jobs are the bodies the trigger fires. Nil jobs are skipped.
type Jobs struct {
	Process func(ctx context.Context)
	Backlog func(ctx context.Context)
	Sweep   func(ctx context.Context)
	Health  func(ctx context.Context)
}

type Service struct {
	cfg  Config
	jobs Jobs
	log  logx.Logger

	parser cron.Parser

	mu      sync.Mutex
	c       *cron.Cron
	ctx     context.Context
	running bool
}

func New(cfg Config, jobs Jobs, log logx.Logger) *Service {
	return &Service{
		cfg:    cfg.withDefaults(),
		jobs:   jobs,
		log:    log.With(logx.String("component", "trigger")),
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Validate parses every configured spec without starting anything.
func (s *Service) Validate() error {
	for name, spec := range s.specs() {
		if _, err := s.parser.Parse(spec); err != nil {
			return fmt.Errorf("trigger %s: invalid spec %q: %w", name, spec, err)
		}
	}
	if _, err := time.LoadLocation(s.cfg.Timezone); err != nil {
		return fmt.Errorf("trigger timezone %q: %w", s.cfg.Timezone, err)
	}
	return nil
}

// Start registers all entries and starts the cron loop. Job closures run
// with ctx; cancel it before (or instead of) Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("trigger already started")
	}
	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", s.cfg.Timezone, err)
	}

	s.ctx = ctx
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	for _, e := range []struct {
		name string
		spec string
		fn   func(ctx context.Context)
	}{
		{"process", s.cfg.ProcessSpec, s.jobs.Process},
		{"backlog", s.cfg.BacklogSpec, s.jobs.Backlog},
		{"sweep", s.cfg.SweepSpec, s.jobs.Sweep},
		{"health", s.cfg.HealthSpec, s.jobs.Health},
	} {
		if e.fn == nil {
			continue
		}
		if err := s.addLocked(e.name, e.spec, e.fn); err != nil {
			return err
		}
	}

	s.c.Start()
	s.running = true
	s.log.Info("triggers started",
		logx.String("tz", loc.String()),
		logx.Int("entries", len(s.c.Entries())))
	return nil
}

func (s *Service) addLocked(name, spec string, fn func(ctx context.Context)) error {
	job := cron.FuncJob(func() {
		ctx := s.ctx
		if ctx == nil || ctx.Err() != nil {
			return
		}
		s.log.Debug("trigger fired", logx.String("trigger", name))
		fn(ctx)
	})
	if _, err := s.c.AddJob(spec, job); err != nil {
		return fmt.Errorf("trigger %s: %w", name, err)
	}
	return nil
}

// Stop halts the cron loop and waits for in-flight entry invocations.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	s.running = false
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Entries reports how many triggers are registered. Zero before Start.
func (s *Service) Entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return 0
	}
	return len(s.c.Entries())
}

func (s *Service) specs() map[string]string {
	return map[string]string{
		"process": s.cfg.ProcessSpec,
		"backlog": s.cfg.BacklogSpec,
		"sweep":   s.cfg.SweepSpec,
		"health":  s.cfg.HealthSpec,
	}
}
