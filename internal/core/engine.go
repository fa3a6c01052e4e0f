package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/keepmind9/guildbot/internal/ai"
	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/dispatch"
	"github.com/keepmind9/guildbot/internal/event"
	"github.com/keepmind9/guildbot/internal/features"
	"github.com/keepmind9/guildbot/internal/fetch"
	"github.com/keepmind9/guildbot/internal/logger"
	"github.com/keepmind9/guildbot/internal/ratelimit"
	"github.com/keepmind9/guildbot/internal/registry"
	"github.com/keepmind9/guildbot/internal/scheduler"
	"github.com/keepmind9/guildbot/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	// syncTimeout bounds one slash command sync call.
	syncTimeout = 30 * time.Second

	// slashDescriptionLimit is Discord's limit for command descriptions.
	slashDescriptionLimit = 100
)

// Engine connects one platform to the dispatcher and owns every
// long-running component.
type Engine struct {
	config     *Config
	platform   bot.Platform
	botConfig  BotConfig
	gateway    bot.Gateway
	registry   *registry.Registry
	limiter    *ratelimit.Limiter
	pool       *workerpool.WorkerPool
	dispatcher *dispatch.Dispatcher
	deps       *features.Deps
	reminders  *scheduler.Periodic
	pruner     *scheduler.Periodic
	admin      *AdminServer
	events     chan event.Event

	startedAt  time.Time
	connection atomic.Value // bot.Lifecycle
	processed  atomic.Int64

	guildsMu sync.Mutex
	guilds   map[string]bool // guilds seen in ReadyToSync

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewEngine wires every component around platform and st. The caller owns
// st and closes it after Stop.
func NewEngine(config *Config, platform bot.Platform, st store.Store) (*Engine, error) {
	botConfig, err := config.GetBotConfig(platform.Name())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		config:    config,
		platform:  platform,
		botConfig: botConfig,
		gateway:   bot.WithRetry(platform, bot.RetryPolicy{}),
		registry:  registry.New(),
		limiter:   ratelimit.New(),
		pool:      workerpool.New(config.Dispatch.Workers),
		events:    make(chan event.Event, config.Dispatch.EventBuffer),
		startedAt: time.Now(),
		guilds:    make(map[string]bool),
		ctx:       ctx,
		cancel:    cancel,
	}
	e.connection.Store(bot.Disconnected)

	e.deps = newDeps(config, st)
	e.deps.Modules = e

	for _, m := range features.Catalog(e.deps) {
		if !config.ModuleEnabled(m.Name()) {
			logger.WithField("module", m.Name()).Info("module-disabled-by-config")
			continue
		}
		if err := e.registry.RegisterModule(m.Name(), m.Registrations()); err != nil {
			cancel()
			e.pool.Stop()
			return nil, fmt.Errorf("failed to register module %s: %w", m.Name(), err)
		}
	}

	e.dispatcher = dispatch.New(dispatch.Config{
		Prefix:         config.CommandPrefix,
		HandlerTimeout: config.HandlerTimeout(),
		Denylist:       config.Dispatch.Denylist,
		Owners:         config.OwnerIDs(platform.Name()),
		Cooldowns:      config.Cooldowns(),
	}, e.registry, e.limiter, e.gateway, e.pool)

	task := scheduler.NewReminderTask(e.deps.Reminders, e.gateway)
	task.DeliveryTimeout = config.DeliveryTimeout()
	task.MaxAttempts = config.Scheduler.MaxDeliveryAttempts
	e.reminders = scheduler.NewPeriodic("reminders", config.SchedulerInterval(), task.Run)
	e.pruner = scheduler.NewPeriodic("ratelimit-prune", config.PruneInterval(), func(context.Context) error {
		if n := e.limiter.Prune(); n > 0 {
			logger.WithField("buckets", n).Debug("rate-limit-buckets-pruned")
		}
		return nil
	})

	if config.AdminServer.Enabled {
		e.admin = NewAdminServer(config.AdminServer.Addr, e)
	}

	logger.WithFields(logrus.Fields{
		"platform": platform.Name(),
		"handlers": e.registry.Current().Len(),
		"workers":  config.Dispatch.Workers,
		"storage":  config.Storage.Driver,
	}).Info("engine-initialized")

	return e, nil
}

// newDeps builds the feature collaborators from configuration.
func newDeps(config *Config, st store.Store) *features.Deps {
	fetchTimeout := fetch.WithTimeout(config.FetchTimeout())
	return &features.Deps{
		Prefix:    config.CommandPrefix,
		Reminders: store.NewReminders(st),
		Stats:     store.NewStats(st),
		Warnings:  store.NewWarnings(st),
		Polls:     store.NewPolls(st),
		Settings:  store.NewSettings(st),
		AI: ai.New(ai.Config{
			APIKey:      config.AI.APIKey,
			BaseURL:     config.AI.BaseURL,
			Models:      config.AI.Models,
			Model:       config.AI.Model,
			MaxTokens:   config.AI.MaxTokens,
			Temperature: config.AI.Temperature,
			HTTPClient:  &http.Client{Timeout: config.AITimeout()},
		}),
		Weather:    fetch.New("OpenWeatherMap", config.Features.WeatherBaseURL, fetchTimeout),
		Crypto:     fetch.New("CoinGecko", config.Features.CryptoBaseURL, fetchTimeout),
		News:       fetch.New("NewsAPI", config.Features.NewsBaseURL, fetchTimeout, fetch.WithHeader("X-Api-Key", config.Features.NewsAPIKey)),
		WeatherKey: config.Features.WeatherAPIKey,
		NewsKey:    config.Features.NewsAPIKey,
		ClientID:   config.Features.ClientID,
	}
}

// Run starts the platform connection and processes events until ctx is
// cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	logger.Info("starting-guildbot-engine")

	if e.admin != nil {
		go func() {
			if err := e.admin.Start(); err != nil {
				logger.WithError(err).Error("admin-server-failed")
			}
		}()
	}

	if err := e.platform.Start(e.ctx, e.Enqueue, e.onLifecycle); err != nil {
		return fmt.Errorf("failed to start %s bot: %w", e.platform.Name(), err)
	}

	e.pruner.Start(e.ctx)

	e.runEventLoop(ctx)
	return nil
}

// Enqueue hands an event to the loop. It blocks while the buffer is full
// and gives up once the engine stops.
func (e *Engine) Enqueue(ev event.Event) {
	select {
	case e.events <- ev:
	case <-e.ctx.Done():
	}
}

// runEventLoop runs the main event loop for processing events
func (e *Engine) runEventLoop(ctx context.Context) {
	logger.Info("engine-event-loop-started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("event-loop-shutting-down")
			return
		case <-e.ctx.Done():
			logger.Info("event-loop-shutting-down")
			return
		case ev := <-e.events:
			e.HandleEvent(ev)
		}
	}
}

// HandleEvent processes one event on the calling goroutine. A panic is
// logged and swallowed so the loop keeps running.
func (e *Engine) HandleEvent(ev event.Event) (out dispatch.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"event": ev.ID,
				"kind":  ev.Kind.String(),
				"panic": r,
			}).Error("event-panic-recovered")
		}
	}()

	e.processed.Add(1)
	if ev.Kind == event.ReadyToSync {
		e.onReady(ev)
		return dispatch.Outcome{Skipped: true}
	}
	return e.dispatcher.Dispatch(e.ctx, ev)
}

func (e *Engine) onLifecycle(state bot.Lifecycle) {
	e.connection.Store(state)
	logger.WithFields(logrus.Fields{
		"platform": e.platform.Name(),
		"state":    state.String(),
	}).Info("connection-state-changed")
}

// onReady starts the reminder scheduler once and syncs slash commands for
// the guild.
func (e *Engine) onReady(ev event.Event) {
	e.reminders.Start(e.ctx)

	e.guildsMu.Lock()
	e.guilds[ev.Guild.ID] = true
	e.guildsMu.Unlock()

	e.syncCommands(ev.Guild.ID)
}

// syncCommands mirrors the slash-flagged commands of the current snapshot
// to guildID on the worker pool.
func (e *Engine) syncCommands(guildID string) {
	syncer, ok := e.platform.(bot.CommandSyncer)
	if !ok {
		return
	}
	if want := e.botConfig.SyncGuild; want != "" && guildID != want {
		return
	}
	specs := SlashCommands(e.registry.Current())
	e.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(e.ctx, syncTimeout)
		defer cancel()
		if err := syncer.SyncCommands(ctx, guildID, specs); err != nil {
			logger.WithFields(logrus.Fields{
				"guild": guildID,
				"error": err,
			}).Warn("slash-command-sync-failed")
		}
	})
}

func (e *Engine) resyncCommands() {
	e.guildsMu.Lock()
	guilds := make([]string, 0, len(e.guilds))
	for g := range e.guilds {
		guilds = append(guilds, g)
	}
	e.guildsMu.Unlock()

	for _, g := range guilds {
		e.syncCommands(g)
	}
}

// SlashCommands lists the snapshot's slash-flagged commands.
func SlashCommands(snap *registry.Snapshot) []bot.CommandSpec {
	var specs []bot.CommandSpec
	for _, reg := range snap.Commands() {
		if !reg.Slash {
			continue
		}
		spec := bot.CommandSpec{
			Name:        reg.Trigger.Name,
			Description: clip(orDefault(reg.Description, reg.Trigger.Name), slashDescriptionLimit),
		}
		if reg.SlashArgument != "" {
			spec.Argument = reg.SlashArgument
			spec.ArgumentHelp = clip(orDefault(reg.Usage, reg.SlashArgument), slashDescriptionLimit)
		}
		specs = append(specs, spec)
	}
	return specs
}

// ReloadModule rebuilds a loaded module and swaps its handlers in.
func (e *Engine) ReloadModule(name string) error {
	m, err := e.build(name)
	if err != nil {
		return err
	}
	if err := e.registry.ReloadModule(name, m.Registrations()); err != nil {
		return err
	}
	e.resyncCommands()
	return nil
}

// LoadModule registers a module that is not loaded.
func (e *Engine) LoadModule(name string) error {
	m, err := e.build(name)
	if err != nil {
		return err
	}
	if err := e.registry.RegisterModule(name, m.Registrations()); err != nil {
		return err
	}
	e.resyncCommands()
	return nil
}

// UnloadModule removes a module's handlers.
func (e *Engine) UnloadModule(name string) error {
	if name == features.ModuleAdmin {
		return fmt.Errorf("the %s module cannot be unloaded", name)
	}
	if err := e.registry.UnloadModule(name); err != nil {
		return err
	}
	e.resyncCommands()
	return nil
}

func (e *Engine) build(name string) (features.Module, error) {
	m, ok := features.Build(e.deps, name)
	if !ok {
		return nil, &registry.NotFoundError{Kind: "module", Name: name}
	}
	return m, nil
}

// Registry exposes the handler registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Status is a point-in-time view of the engine.
type Status struct {
	Platform         string   `json:"platform"`
	Connection       string   `json:"connection"`
	StartedAt        string   `json:"started_at"`
	UptimeSeconds    int64    `json:"uptime_seconds"`
	LatencyMS        int64    `json:"latency_ms"`
	Generation       uint64   `json:"generation"`
	Handlers         int      `json:"handlers"`
	Modules          []string `json:"modules"`
	EventsProcessed  int64    `json:"events_processed"`
	EventsQueued     int      `json:"events_queued"`
	TasksWaiting     int      `json:"tasks_waiting"`
	RateLimitBuckets int      `json:"rate_limit_buckets"`
	SchedulerRunning bool     `json:"scheduler_running"`
	SchedulerSkipped int64    `json:"scheduler_skipped"`
}

// Status reports the engine's current state.
func (e *Engine) Status() Status {
	snap := e.registry.Current()
	conn, _ := e.connection.Load().(bot.Lifecycle)
	return Status{
		Platform:         e.platform.Name(),
		Connection:       conn.String(),
		StartedAt:        e.startedAt.UTC().Format(time.RFC3339),
		UptimeSeconds:    int64(time.Since(e.startedAt).Seconds()),
		LatencyMS:        e.platform.Latency().Milliseconds(),
		Generation:       snap.Generation,
		Handlers:         snap.Len(),
		Modules:          snap.Modules(),
		EventsProcessed:  e.processed.Load(),
		EventsQueued:     len(e.events),
		TasksWaiting:     e.pool.WaitingQueueSize(),
		RateLimitBuckets: e.limiter.Len(),
		SchedulerRunning: e.reminders.Running(),
		SchedulerSkipped: e.reminders.Skipped(),
	}
}

// Stop gracefully stops the engine
func (e *Engine) Stop() error {
	e.stopOnce.Do(e.stop)
	return nil
}

func (e *Engine) stop() {
	logger.Info("stopping-guildbot-engine")

	e.cancel()

	if e.admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.admin.Shutdown(ctx); err != nil {
			logger.Errorf("failed-to-gracefully-stop-admin-server: %v", err)
		}
	}

	e.reminders.Stop()
	e.pruner.Stop()

	logger.WithField("platform", e.platform.Name()).Info("stopping-bot")
	if err := e.platform.Stop(); err != nil {
		logger.WithFields(logrus.Fields{
			"platform": e.platform.Name(),
			"error":    err,
		}).Error("failed-to-stop-bot")
	}

	e.pool.StopWait()
	logger.Info("engine-stopped")
}

// orDefault returns s, or def when s is empty.
func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// clip cuts s to at most n runes.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
