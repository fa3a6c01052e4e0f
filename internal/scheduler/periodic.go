// Package scheduler runs background work on a fixed interval.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keepmind9/guildbot/internal/logger"
	"github.com/sirupsen/logrus"
)

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

// Periodic runs a Task every Interval. A tick that starts while the
// previous one is still running is skipped.
type Periodic struct {
	name     string
	interval time.Duration
	task     Task

	inFlight atomic.Bool
	skipped  atomic.Int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewPeriodic returns a stopped Periodic.
func NewPeriodic(name string, interval time.Duration, task Task) *Periodic {
	return &Periodic{name: name, interval: interval, task: task}
}

// Start begins ticking. Calling Start on a running Periodic does nothing.
func (p *Periodic) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop(ctx)

	logger.WithFields(logrus.Fields{
		"task":     p.name,
		"interval": p.interval.String(),
	}).Info("periodic-task-started")
}

// Stop cancels the loop and waits for an in-flight tick to return.
func (p *Periodic) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	logger.WithField("task", p.name).Info("periodic-task-stopped")
}

// Running reports whether the loop is active.
func (p *Periodic) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Skipped is the number of ticks skipped because of an overrun.
func (p *Periodic) Skipped() int64 {
	return p.skipped.Load()
}

func (p *Periodic) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.inFlight.CompareAndSwap(false, true) {
				p.skip()
				continue
			}
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				defer p.inFlight.Store(false)
				p.run(ctx)
			}()
		}
	}
}

// Tick runs the task once on the calling goroutine. It returns false
// without running when a tick is already in flight.
func (p *Periodic) Tick(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.skip()
		return false
	}
	defer p.inFlight.Store(false)
	p.run(ctx)
	return true
}

func (p *Periodic) skip() {
	n := p.skipped.Add(1)
	logger.WithFields(logrus.Fields{
		"task":    p.name,
		"skipped": n,
	}).Warn("periodic-tick-skipped-overrun")
}

func (p *Periodic) run(ctx context.Context) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"task":  p.name,
				"panic": r,
			}).Error("periodic-task-panicked")
		}
	}()

	if err := p.task(ctx); err != nil {
		logger.WithFields(logrus.Fields{
			"task":  p.name,
			"error": err,
		}).Warn("periodic-task-failed")
		return
	}
	logger.WithFields(logrus.Fields{
		"task":    p.name,
		"elapsed": time.Since(start).String(),
	}).Debug("periodic-task-finished")
}
