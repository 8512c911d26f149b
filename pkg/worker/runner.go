// Package worker runs background tasks on fixed intervals with
// graceful shutdown.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alphalens/alphalens/pkg/logger"
)

// Worker is one background task
type Worker interface {
	// Name identifies the worker in logs
	Name() string
	// Run executes one iteration
	Run(ctx context.Context) error
}

// Periodic wraps a Worker with ticker-driven execution. A failed
// iteration is logged and the next tick runs normally.
type Periodic struct {
	worker   Worker
	interval time.Duration
	wg       sync.WaitGroup
}

// NewPeriodic creates a periodic runner for the worker
func NewPeriodic(worker Worker, interval time.Duration) *Periodic {
	return &Periodic{
		worker:   worker,
		interval: interval,
	}
}

// Start launches the worker loop. The first iteration runs
// immediately, not after the first tick.
func (p *Periodic) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop waits for the loop to exit, up to the timeout
func (p *Periodic) Stop(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("worker stopped", zap.String("worker", p.worker.Name()))
	case <-time.After(timeout):
		logger.Warn("worker stop timed out", zap.String("worker", p.worker.Name()))
	}
}

func (p *Periodic) loop(ctx context.Context) {
	defer p.wg.Done()

	logger.Info("worker started",
		zap.String("worker", p.worker.Name()),
		zap.Duration("interval", p.interval),
	)

	p.runOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopping", zap.String("worker", p.worker.Name()))
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Periodic) runOnce(ctx context.Context) {
	if err := p.worker.Run(ctx); err != nil {
		logger.Error("worker iteration failed",
			zap.String("worker", p.worker.Name()),
			zap.Error(err),
		)
	}
}

// Group manages a set of periodic workers with shared shutdown
type Group struct {
	mu      sync.Mutex
	workers []*Periodic
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewGroup creates a worker group scoped to the parent context
func NewGroup(ctx context.Context) *Group {
	ctx, cancel := context.WithCancel(ctx)
	return &Group{ctx: ctx, cancel: cancel}
}

// Add registers a worker with its interval
func (g *Group) Add(worker Worker, interval time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.workers = append(g.workers, NewPeriodic(worker, interval))
}

// Start launches every registered worker
func (g *Group) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, w := range g.workers {
		w.Start(g.ctx)
	}
}

// Stop cancels the shared context and waits for each worker
func (g *Group) Stop(timeout time.Duration) {
	g.cancel()

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, w := range g.workers {
		w.Stop(timeout)
	}
}
