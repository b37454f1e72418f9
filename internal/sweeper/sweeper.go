// Package sweeper runs the background housekeeping of the ledger: marking
// elapsed QR tokens expired and checking the health of the backing stores.
// Neither job is needed for correctness, token validation always compares
// expires_at itself.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nimasrn/card-ledger/pkg/logger"
	"github.com/nimasrn/card-ledger/pkg/prom"
	"github.com/nimasrn/card-ledger/pkg/worker"
)

const (
	DefaultInterval       = time.Minute
	DefaultBatchSize      = 500
	DefaultReportInterval = 5 * time.Minute
	runTimeout            = 30 * time.Second
)

type Expirer interface {
	SweepExpired(ctx context.Context, limit int) (int64, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Interval       time.Duration
	BatchSize      int
	Workers        int
	ReportInterval time.Duration
	// MaxBatches bounds one run; zero means until a short batch.
	MaxBatches int
}

type job int

const (
	sweepJob job = iota
	healthJob
)

type Sweeper struct {
	expirer Expirer
	checks  map[string]Pinger
	config  Config
	stats   *Stats
	worker  *worker.WorkerManager
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(expirer Expirer, config Config) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.ReportInterval <= 0 {
		config.ReportInterval = DefaultReportInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		expirer: expirer,
		checks:  make(map[string]Pinger),
		config:  config,
		stats:   NewStats(),
		// one slot per job kind: a tick that finds its job still queued is dropped
		worker: worker.NewWorkerManager(2, config.Workers),
		ctx:    ctx,
		cancel: cancel,
	}
}

// WithHealthCheck registers a dependency pinged on every report.
func (s *Sweeper) WithHealthCheck(name string, p Pinger) *Sweeper {
	s.checks[name] = p
	return s
}

func (s *Sweeper) Stats() *Stats {
	return s.stats
}

// Start runs the worker pool and the tickers in the background.
func (s *Sweeper) Start() {
	s.worker.SetWorker(s.handle)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.worker.Start(); err != nil && !errors.Is(err, worker.ErrStopped) {
			logger.Error("sweeper workers stopped", "error", err)
		}
	}()
	go s.schedule()

	logger.Info("sweeper started", "interval", s.config.Interval, "batch_size", s.config.BatchSize, "workers", s.config.Workers)
}

func (s *Sweeper) schedule() {
	defer s.wg.Done()

	sweep := time.NewTicker(s.config.Interval)
	defer sweep.Stop()
	report := time.NewTicker(s.config.ReportInterval)
	defer report.Stop()

	s.submit(sweepJob)
	for {
		select {
		case <-sweep.C:
			s.submit(sweepJob)
		case <-report.C:
			s.submit(healthJob)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Sweeper) submit(j job) {
	if !s.worker.TryEnqueue(j) {
		logger.Debug("sweeper busy, skipping tick", "job", int(j))
	}
}

func (s *Sweeper) handle(workerIndex int, j interface{}) {
	switch j {
	case sweepJob:
		ctx, cancel := context.WithTimeout(s.ctx, runTimeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("qr sweep failed", "worker", workerIndex, "error", err)
		}
	case healthJob:
		s.reportStats()
		s.performHealthCheck(s.ctx)
	default:
		logger.Error("unknown sweeper job", "worker", workerIndex, "job", j)
	}
}

// RunOnce expires tokens in batches until a batch comes back short.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	var total int64
	for batch := 1; ; batch++ {
		n, err := s.expirer.SweepExpired(ctx, s.config.BatchSize)
		total += n
		if err != nil {
			s.stats.RecordFailure()
			prom.IncSweepRun("error")
			return total, err
		}
		if n < int64(s.config.BatchSize) {
			break
		}
		if s.config.MaxBatches > 0 && batch >= s.config.MaxBatches {
			logger.Warn("qr sweep stopped at batch limit", "batches", batch, "expired", total)
			break
		}
		if err := ctx.Err(); err != nil {
			s.stats.RecordFailure()
			prom.IncSweepRun("error")
			return total, err
		}
	}
	s.stats.RecordRun(total, time.Since(start))
	prom.IncSweepRun("ok")
	prom.AddSweepExpired(float64(total))
	return total, nil
}

func (s *Sweeper) reportStats() {
	stats := s.stats.Snapshot()
	logger.Info("sweeper stats", "runs", stats["runs"], "failures", stats["failures"], "expired_tokens", stats["expired_tokens"], "avg_duration_ms", stats["avg_duration_ms"], "uptime_seconds", stats["uptime_seconds"])
}

// performHealthCheck pings every registered dependency and reports whether
// all of them answered.
func (s *Sweeper) performHealthCheck(ctx context.Context) bool {
	healthy := true
	for name, p := range s.checks {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			logger.Error("health check failed", "dependency", name, "error", err)
			healthy = false
		}
	}
	if healthy {
		logger.Debug("health check ok", "dependencies", len(s.checks))
	}
	return healthy
}

// Stop cancels any running sweep and waits for the workers to return.
func (s *Sweeper) Stop() {
	logger.Info("stopping sweeper")
	s.cancel()
	s.worker.Exit()
	s.wg.Wait()
	s.reportStats()
}
