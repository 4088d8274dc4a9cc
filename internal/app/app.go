// Package app assembles the daemon: config, logging, storage, the
// processing engine, triggers, and the notification pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cadence/internal/config"
	"cadence/internal/eventbus"
	"cadence/internal/monitor"
	"cadence/internal/notify"
	"cadence/internal/processor"
	"cadence/internal/provider"
	"cadence/internal/runtime/supervisor"
	"cadence/internal/store"
	"cadence/internal/trigger"
	"cadence/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	logs *logx.Service
	log  logx.Logger

	bus eventbus.Bus
	st  store.Store
	mon *monitor.Monitor

	chunker *provider.Chunker
	notif   *notify.Service
	proc    *processor.Processor
	trig    *trigger.Service

	mu      sync.Mutex
	sup     *supervisor.Supervisor
	started bool
}

// New wires the daemon from the config file. The content backend is
// injected so deployments choose between the offline template generator
// and a real generation API without touching wiring.
func New(cfgPath string, backend provider.Provider) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logs, log := logx.New(cfg.BuildLogging())
	cfgm.SetLogger(log.With(logx.String("component", "config")))

	st, err := store.Open(cfg.BuildStorage(), log.With(logx.String("component", "store")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	bus := eventbus.New()
	mon := monitor.New(cfg.BuildMonitor(), log.With(logx.String("component", "monitor")))
	chunker := provider.NewChunker(backend, cfg.BuildProvider(), log.With(logx.String("component", "provider")))

	sink, err := buildSink(cfg, log)
	if err != nil {
		_ = st.Close()
		_ = logs.Close()
		return nil, err
	}
	notif := notify.New(cfg.BuildNotify(), sink, log)

	proc := processor.New(cfg.BuildProcessor(), st, chunker, mon, bus, log)

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logs:    logs,
		log:     log.With(logx.String("component", "app")),
		bus:     bus,
		st:      st,
		mon:     mon,
		chunker: chunker,
		notif:   notif,
		proc:    proc,
	}

	a.trig = trigger.New(cfg.BuildTrigger(), trigger.Jobs{
		Process: func(ctx context.Context) { _, _ = proc.Run(ctx) },
		Backlog: func(ctx context.Context) { _ = proc.ReplenishBacklog(ctx) },
		Sweep:   func(ctx context.Context) { _, _ = proc.SweepStale(ctx) },
		Health:  a.healthCheck,
	}, log)
	if err := a.trig.Validate(); err != nil {
		_ = st.Close()
		_ = logs.Close()
		return nil, err
	}

	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		// Reject reloads the trigger layer could not run with.
		return trigger.New(cfg.BuildTrigger(), trigger.Jobs{}, logx.Nop()).Validate()
	})
	return a, nil
}

// buildSink picks the notification backend: Telegram when configured,
// otherwise the log sink.
func buildSink(cfg *config.Config, log logx.Logger) (notify.Sink, error) {
	n := cfg.Notifications
	if n == nil || !n.Enabled || n.Telegram == nil {
		return notify.NewLogSink(log), nil
	}
	sink, err := notify.NewTelegramSink(notify.TelegramConfig{
		Token:         n.Telegram.Token,
		ChatIDs:       n.Telegram.ChatIDs,
		DefaultChatID: n.Telegram.DefaultChatID,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram sink: %w", err)
	}
	return sink, nil
}

func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errors.New("app already started")
	}

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	if err := a.notif.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("start notify: %w", err)
	}
	a.notif.ConsumeBus(a.bus)

	if err := a.trig.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("start triggers: %w", err)
	}

	a.sup.GoRestart("config-watch", a.cfgm.Watch)
	a.sup.Go0("config-reload", a.consumeReloads)
	a.sup.Go0("watchdog", a.watchdog)

	a.started = true
	a.log.Info("daemon started", logx.String("config", a.cfgPath))
	notifyReady()
	return nil
}

// consumeReloads applies hot-reloadable settings from committed config
// updates. Only the logging section applies live; everything else takes
// effect on restart.
func (a *App) consumeReloads(ctx context.Context) {
	ch := a.cfgm.Subscribe(2)
	defer a.cfgm.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			a.logs.Apply(cfg.BuildLogging())
			a.log.Info("config reload applied",
				logx.String("level", cfg.Logging.Level),
				logx.Bool("restart_required_for_rest", true))
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.started = false
	a.mu.Unlock()

	notifyStopping()
	a.trig.Stop()
	if a.notif != nil {
		_ = a.notif.Stop(ctx)
	}
	var err error
	if sup != nil {
		sup.Cancel()
		err = sup.Wait(ctx)
	}
	if cerr := a.st.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.log.Info("daemon stopped")
	_ = a.logs.Close()
	return err
}
