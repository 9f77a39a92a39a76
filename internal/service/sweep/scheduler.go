// Package sweep runs the periodic ticket maintenance jobs: expiring unpaid
// holds and purging old cancellations.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper is implemented by the booking service.
type Sweeper interface {
	ExpireStale(ctx context.Context) (int, error)
	PurgeCanceled(ctx context.Context) (int64, error)
}

type Config struct {
	ExpireInterval time.Duration
	PurgeInterval  time.Duration
	// RunTimeout bounds a single run of either job.
	RunTimeout time.Duration
}

type Scheduler struct {
	sweeper Sweeper
	cfg     Config
	log     *slog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

func New(sweeper Sweeper, cfg Config, log *slog.Logger) *Scheduler {
	if cfg.ExpireInterval <= 0 {
		cfg.ExpireInterval = time.Minute
	}

	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = 24 * time.Hour
	}

	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Second
	}

	if log == nil {
		log = slog.Default()
	}

	return &Scheduler{sweeper: sweeper, cfg: cfg, log: log.With("component", "sweep")}
}

// Start launches both jobs. Each runs once immediately and then on its own
// ticker until Stop is called or ctx is done. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})

	s.wg.Add(2)
	go s.loop(ctx, "expire", s.cfg.ExpireInterval, s.expire)
	go s.loop(ctx, "purge", s.cfg.PurgeInterval, s.purge)

	s.log.Info("sweeps started", "expire_every", s.cfg.ExpireInterval, "purge_every", s.cfg.PurgeInterval)
}

// Stop signals both jobs and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("sweeps stopped")
}

// Run starts the jobs and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, job func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	s.runOnce(ctx, name, job)

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx, name, job)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, name string, job func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("sweep panicked", "job", name, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	job(ctx)
}

func (s *Scheduler) expire(ctx context.Context) {
	n, err := s.sweeper.ExpireStale(ctx)
	if err != nil {
		s.log.Error("expire sweep failed", "canceled", n, "error", err)
		return
	}

	if n > 0 {
		s.log.Info("expired unpaid holds", "canceled", n)
	} else {
		s.log.Debug("expire sweep found nothing")
	}
}

func (s *Scheduler) purge(ctx context.Context) {
	n, err := s.sweeper.PurgeCanceled(ctx)
	if err != nil {
		s.log.Error("purge sweep failed", "error", err)
		return
	}

	s.log.Info("purged canceled tickets", "deleted", n)
}
