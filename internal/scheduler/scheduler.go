// Package scheduler implements the periodic driver that converts due
// scheduled jobs into terminal published or failed jobs. Each tick scans the
// job store, claims due jobs one by one through a conditional status
// transition, and dispatches claimed jobs through the platform adapter
// registry with bounded parallelism. Ticks run strictly sequentially; a slow
// batch delays the next tick instead of overlapping it.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gopost/engine/internal/dispatch"
	"github.com/gopost/engine/internal/domain"
	"github.com/gopost/engine/internal/logger"
	"github.com/gopost/engine/internal/metrics"
)

const (
	defaultTickInterval    = 60 * time.Second
	defaultBatchSize       = 100
	defaultWorkerCount     = 4
	defaultStoreTimeout    = 5 * time.Second
	defaultDispatchTimeout = 30 * time.Second
)

// JobStore is the durable job store the scheduler drives. It never issues
// queries beyond these shapes.
type JobStore interface {
	QueryDue(ctx context.Context, now time.Time, limit int) ([]domain.PublicationJob, error)
	Claim(ctx context.Context, id string, from, to domain.JobStatus) error
	MarkPublished(ctx context.Context, id string, publishedAt time.Time, resultURL string) error
	MarkFailed(ctx context.Context, id, errorMsg string) error
	Cancel(ctx context.Context, id string) error
}

// CredentialResolver supplies the decrypted secret for a dispatch.
type CredentialResolver interface {
	Resolve(ctx context.Context, tenantID, platform string) (string, error)
}

// AuditSink receives a record for every dispatch outcome and cancellation.
type AuditSink interface {
	Record(ctx context.Context, tenantID string, kind domain.AuditEventKind, message string) error
}

// DedupTracker remembers successful platform calls so a redelivery after a
// lost terminal write does not post twice.
type DedupTracker interface {
	LastResult(ctx context.Context, jobID string) (string, bool)
	MarkDispatched(ctx context.Context, jobID, resultURL string) error
}

// Config holds scheduler tuning.
type Config struct {
	TickInterval    time.Duration
	BatchSize       int
	WorkerCount     int
	StoreTimeout    time.Duration
	DispatchTimeout time.Duration
}

// DefaultConfig returns production defaults. A job becomes eligible within
// one tick interval of its scheduled time; the interval is the latency
// bound, not a real-time guarantee.
func DefaultConfig() Config {
	return Config{
		TickInterval:    defaultTickInterval,
		BatchSize:       defaultBatchSize,
		WorkerCount:     defaultWorkerCount,
		StoreTimeout:    defaultStoreTimeout,
		DispatchTimeout: defaultDispatchTimeout,
	}
}

// Scheduler is the publication engine's periodic driver.
type Scheduler struct {
	jobs     JobStore
	creds    CredentialResolver
	registry *dispatch.Registry
	audit    AuditSink
	dedup    DedupTracker
	metrics  *metrics.Metrics
	clock    Clock
	logger   logger.Logger

	tickInterval    time.Duration
	batchSize       int
	workerCount     int
	storeTimeout    time.Duration
	dispatchTimeout time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	stopped  bool
	mu       sync.Mutex
}

// Deps bundles the scheduler's collaborators. Dedup and Metrics may be nil.
type Deps struct {
	Jobs     JobStore
	Creds    CredentialResolver
	Registry *dispatch.Registry
	Audit    AuditSink
	Dedup    DedupTracker
	Metrics  *metrics.Metrics
	Clock    Clock
	Logger   logger.Logger
}

// New creates a scheduler. Zero config fields fall back to defaults; a nil
// clock uses the system clock.
func New(deps Deps, cfg Config) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = defaultWorkerCount
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = defaultDispatchTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	return &Scheduler{
		jobs:            deps.Jobs,
		creds:           deps.Creds,
		registry:        deps.Registry,
		audit:           deps.Audit,
		dedup:           deps.Dedup,
		metrics:         deps.Metrics,
		clock:           clock,
		logger:          deps.Logger,
		tickInterval:    cfg.TickInterval,
		batchSize:       cfg.BatchSize,
		workerCount:     cfg.WorkerCount,
		storeTimeout:    cfg.StoreTimeout,
		dispatchTimeout: cfg.DispatchTimeout,
		stopChan:        make(chan struct{}),
	}
}

// Start begins the tick loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("scheduler started",
		logger.Duration("tick_interval", s.tickInterval),
		logger.Int("batch_size", s.batchSize),
		logger.Int("worker_count", s.workerCount))
}

// Stop waits for the in-flight tick to finish and halts the loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the tick loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.tickInterval)
	defer ticker.Stop()

	// First pass immediately on start.
	s.RunTick(ctx)

	for {
		select {
		case <-ticker.Chan():
			s.RunTick(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunTick executes one full scan-claim-dispatch pass. It returns when every
// job in the batch has reached its outcome for this tick, so ticks never
// overlap. Exported for deterministic tests; the production loop calls it on
// every ticker fire.
func (s *Scheduler) RunTick(ctx context.Context) {
	started := s.clock.Now()

	queryCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	due, err := s.jobs.QueryDue(queryCtx, started, s.batchSize)
	cancel()
	if err != nil {
		// Infrastructure failure: abort the whole tick, retry next tick.
		s.logger.Error("due-job query failed, skipping tick", logger.Error(err))
		return
	}

	if len(due) > 0 {
		s.logger.Debug("processing due jobs", logger.Int("count", len(due)))
		s.dispatchBatch(ctx, due, started)
	}

	if s.metrics != nil {
		s.metrics.TicksTotal.Inc()
		s.metrics.TickDuration.Observe(s.clock.Now().Sub(started).Seconds())
	}
}

// dispatchBatch fans the batch out over the worker pool. Jobs are
// independent after the claim; a stuck platform delays only the jobs on its
// workers, and the batch joins before the tick ends.
func (s *Scheduler) dispatchBatch(ctx context.Context, jobs []domain.PublicationJob, now time.Time) {
	sem := make(chan struct{}, s.workerCount)
	var wg sync.WaitGroup

	for i := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(job *domain.PublicationJob) {
			defer wg.Done()
			defer func() { <-sem }()
			s.processJob(ctx, job, now)
		}(&jobs[i])
	}

	wg.Wait()
}

// processJob drives one job from claim to terminal state. Every per-job
// failure converts into a failed state plus an audit record; nothing
// propagates out to abort the rest of the batch.
func (s *Scheduler) processJob(ctx context.Context, job *domain.PublicationJob, now time.Time) {
	claimCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	err := s.jobs.Claim(claimCtx, job.ID, domain.JobStatusScheduled, domain.JobStatusProcessing)
	cancel()
	if errors.Is(err, domain.ErrClaimConflict) {
		// Benign: another tick, instance, or a cancellation won.
		if s.metrics != nil {
			s.metrics.ClaimConflictsTotal.Inc()
		}
		s.logger.Debug("claim conflict, skipping job", logger.String("job_id", job.ID))
		return
	}
	if err != nil {
		// Store trouble: leave the job scheduled for the next tick.
		s.logger.Error("claim failed",
			logger.String("job_id", job.ID),
			logger.Error(err))
		return
	}

	adapter, err := s.registry.Resolve(job.Platform)
	if err != nil {
		s.failJob(ctx, job, dispatch.KindValidation, "unsupported platform")
		return
	}

	resolveCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	secret, err := s.creds.Resolve(resolveCtx, job.TenantID, job.Platform)
	cancel()
	if err != nil {
		s.failJob(ctx, job, dispatch.KindAuth, fmt.Sprintf("credential resolution failed: %v", err))
		return
	}

	// A marker from an earlier attempt means the platform call already
	// succeeded and only the terminal write was lost; finish that instead
	// of posting again.
	if s.dedup != nil {
		if resultURL, ok := s.dedup.LastResult(ctx, job.ID); ok {
			s.logger.Warn("job already dispatched, completing terminal write",
				logger.String("job_id", job.ID))
			s.completeJob(ctx, job, now, resultURL)
			return
		}
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	resultURL, err := adapter.Publish(dispatchCtx, job, secret)
	cancel()
	if err != nil {
		s.failJob(ctx, job, dispatchErrorKind(err), err.Error())
		return
	}

	if s.dedup != nil {
		if markErr := s.dedup.MarkDispatched(ctx, job.ID, resultURL); markErr != nil {
			s.logger.Warn("failed to record dispatch marker",
				logger.String("job_id", job.ID),
				logger.Error(markErr))
		}
	}

	s.completeJob(ctx, job, now, resultURL)
}

func (s *Scheduler) completeJob(ctx context.Context, job *domain.PublicationJob, now time.Time, resultURL string) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	err := s.jobs.MarkPublished(storeCtx, job.ID, now, resultURL)
	cancel()
	if err != nil {
		// The platform call succeeded; the dedup marker protects the
		// redelivery this write failure causes.
		s.logger.Error("failed to mark job published",
			logger.String("job_id", job.ID),
			logger.Error(err))
		return
	}

	if s.metrics != nil {
		s.metrics.JobsPublishedTotal.WithLabelValues(job.Platform).Inc()
	}
	s.recordAudit(ctx, job.TenantID, domain.AuditPublishSuccess,
		fmt.Sprintf("job %s published to %s: %s", job.ID, job.Platform, resultURL))
	s.logger.Info("job published",
		logger.String("job_id", job.ID),
		logger.String("platform", job.Platform),
		logger.String("result_url", resultURL))
}

func (s *Scheduler) failJob(ctx context.Context, job *domain.PublicationJob, kind dispatch.ErrorKind, message string) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	err := s.jobs.MarkFailed(storeCtx, job.ID, message)
	cancel()
	if err != nil {
		s.logger.Error("failed to mark job failed",
			logger.String("job_id", job.ID),
			logger.Error(err))
		return
	}

	if s.metrics != nil {
		s.metrics.JobsFailedTotal.WithLabelValues(job.Platform, string(kind)).Inc()
	}
	s.recordAudit(ctx, job.TenantID, domain.AuditPublishFailed,
		fmt.Sprintf("job %s failed on %s: %s", job.ID, job.Platform, message))
	s.logger.Warn("job failed",
		logger.String("job_id", job.ID),
		logger.String("platform", job.Platform),
		logger.String("error", message))
}

// Cancel rewinds a scheduled job to draft. A cancellation racing a claim
// resolves through the store's conditional update; the loser gets
// domain.ErrClaimConflict.
func (s *Scheduler) Cancel(ctx context.Context, jobID, tenantID string) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.jobs.Cancel(storeCtx, jobID); err != nil {
		return err
	}

	s.recordAudit(ctx, tenantID, domain.AuditScheduleCancelled,
		fmt.Sprintf("scheduled publication %s cancelled", jobID))
	s.logger.Info("scheduled publication cancelled",
		logger.String("job_id", jobID))
	return nil
}

func (s *Scheduler) recordAudit(ctx context.Context, tenantID string, kind domain.AuditEventKind, message string) {
	auditCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.audit.Record(auditCtx, tenantID, kind, message); err != nil {
		// Audit failures never fail the job path.
		s.logger.Error("audit record failed",
			logger.String("kind", string(kind)),
			logger.Error(err))
	}
}

// dispatchErrorKind extracts the taxonomy kind from an adapter error for
// the failure metric label.
func dispatchErrorKind(err error) dispatch.ErrorKind {
	var pubErr *dispatch.PublishError
	if errors.As(err, &pubErr) {
		return pubErr.Kind
	}
	return dispatch.KindUnknown
}
