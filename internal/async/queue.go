package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/common"
)

const (
	reasonCancelled = "job cancelled"
	reasonTimedOut  = "job timed out"
	reasonShutdown  = "queue shut down"
)

type jobEntry struct {
	mu      sync.Mutex
	job     Job
	settled []bool
	durSum  time.Duration
	expired bool // a document was cut off by the job deadline
	cancel  context.CancelFunc
	done    chan struct{}
}

// ProcessorQueue runs batches of documents through a DocumentProcessor with bounded concurrency.
type ProcessorQueue struct {
	proc     DocumentProcessor
	sink     EventSink
	logger   *slog.Logger
	defaults Options
	now      func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu     sync.RWMutex
	jobs   map[uuid.UUID]*jobEntry
	closed bool
	wg     sync.WaitGroup
}

func NewProcessorQueue(proc DocumentProcessor, sink EventSink, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = NopSink{}
	}
	defaults := DefaultOptions()
	for _, o := range opts {
		o(&defaults)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessorQueue{
		proc:       proc,
		sink:       sink,
		logger:     logger,
		defaults:   defaults,
		now:        time.Now,
		baseCtx:    ctx,
		baseCancel: cancel,
		jobs:       make(map[uuid.UUID]*jobEntry),
	}
}

// Submit registers a job and returns immediately; processing happens in the background.
// The same document set may be submitted any number of times.
func (q *ProcessorQueue) Submit(ctx context.Context, documentIDs []uuid.UUID, jobType constants.JobType, opts ...Option) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	if len(documentIDs) == 0 {
		return uuid.Nil, common.NewAppError("INVALID_INPUT", "at least one document is required", common.ErrInvalidInput)
	}
	if _, ok := constants.ParseJobType(string(jobType)); !ok {
		return uuid.Nil, common.NewAppError("INVALID_INPUT", fmt.Sprintf("unknown job type %q", jobType), common.ErrInvalidInput)
	}

	o := q.defaults
	for _, opt := range opts {
		opt(&o)
	}

	e := &jobEntry{
		job: Job{
			ID:          uuid.New(),
			DocumentIDs: append([]uuid.UUID(nil), documentIDs...),
			Type:        jobType,
			Status:      constants.JobStatusPending,
			Total:       len(documentIDs),
			Options:     o,
			CreatedAt:   q.now(),
		},
		settled: make([]bool, len(documentIDs)),
		done:    make(chan struct{}),
	}
	jobCtx, cancel := context.WithTimeout(q.baseCtx, o.Timeout)
	e.cancel = cancel

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		cancel()
		q.logger.Warn("queue.job.rejected", "reason", "shutting down", "documents", len(documentIDs))
		return uuid.Nil, common.ErrQueueClosed
	}
	q.jobs[e.job.ID] = e
	q.wg.Add(1)
	q.mu.Unlock()

	q.logger.Info("queue.job.submitted",
		"job_id", e.job.ID,
		"type", jobType,
		"documents", len(documentIDs),
		"max_concurrent", o.MaxConcurrent,
		"timeout", o.Timeout,
	)

	go q.run(common.WithJobID(jobCtx, e.job.ID), e)
	return e.job.ID, nil
}

// Status returns a snapshot of the job.
func (q *ProcessorQueue) Status(jobID uuid.UUID) (*Job, error) {
	e, err := q.entry(jobID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.clone(), nil
}

// Cancel stops a running job. It returns false without touching the job when it is already terminal.
func (q *ProcessorQueue) Cancel(jobID uuid.UUID) (bool, error) {
	e, err := q.entry(jobID)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	if e.job.Status.IsTerminal() {
		e.mu.Unlock()
		return false, nil
	}
	q.terminateLocked(e, constants.JobStatusCancelled, reasonCancelled)
	e.mu.Unlock()
	e.cancel()
	q.logger.Info("queue.job.cancelled", "job_id", jobID)
	return true, nil
}

// Wait blocks until the job is terminal and its workers have returned.
func (q *ProcessorQueue) Wait(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	e, err := q.entry(jobID)
	if err != nil {
		return nil, err
	}
	select {
	case <-e.done:
		return q.Status(jobID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for running ones. When ctx expires first,
// running jobs are aborted and marked failed.
func (q *ProcessorQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
		q.baseCancel()
		return nil
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context, aborting running jobs")
		q.baseCancel()
		<-done
		return ctx.Err()
	}
}

func (q *ProcessorQueue) entry(jobID uuid.UUID) (*jobEntry, error) {
	q.mu.RLock()
	e, ok := q.jobs[jobID]
	q.mu.RUnlock()
	if !ok {
		return nil, common.NewAppError("JOB_NOT_FOUND", jobID.String(), common.ErrJobNotFound)
	}
	return e, nil
}

func (q *ProcessorQueue) run(ctx context.Context, e *jobEntry) {
	defer q.wg.Done()
	defer close(e.done)
	defer e.cancel()
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queue.job.panic", "job_id", e.job.ID, "panic", r)
			e.mu.Lock()
			if !e.job.Status.IsTerminal() {
				q.terminateLocked(e, constants.JobStatusFailed, fmt.Sprintf("internal error: %v", r))
			}
			e.mu.Unlock()
		}
	}()

	e.mu.Lock()
	opts := e.job.Options
	ids := e.job.DocumentIDs
	jobType := e.job.Type
	e.mu.Unlock()

	// the deadline freezes the job even while a processor ignores ctx; late results are dropped by record
	stop := context.AfterFunc(ctx, func() {
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.job.Status.IsTerminal() {
			q.terminateLocked(e, constants.JobStatusTimedOut, reasonTimedOut)
		}
	})
	defer stop()

	sem := semaphore.NewWeighted(int64(opts.MaxConcurrent))
	var g errgroup.Group
	for i, id := range ids {
		// blocks while MaxConcurrent workers are busy; returns early on cancel or timeout
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		if q.isTerminal(e) {
			sem.Release(1)
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			q.processDocument(ctx, e, i, id, jobType, opts)
			return nil
		})
	}
	_ = g.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.Status.IsTerminal() {
		return
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) && (e.job.Processed+e.job.Failed < e.job.Total || e.expired):
		q.terminateLocked(e, constants.JobStatusTimedOut, reasonTimedOut)
	case errors.Is(ctx.Err(), context.Canceled) && e.job.Processed+e.job.Failed < e.job.Total:
		q.terminateLocked(e, constants.JobStatusFailed, reasonShutdown)
	default:
		q.terminateLocked(e, constants.JobStatusCompleted, "")
	}
}

func (q *ProcessorQueue) processDocument(ctx context.Context, e *jobEntry, idx int, id uuid.UUID, jobType constants.JobType, opts Options) {
	start := q.now()

	e.mu.Lock()
	if e.job.Status.IsTerminal() {
		e.mu.Unlock()
		return
	}
	if e.job.Status == constants.JobStatusPending {
		e.job.Status = constants.JobStatusProcessing
		e.job.StartedAt = &start
		q.logger.Info("queue.job.started", "job_id", e.job.ID)
	}
	e.mu.Unlock()

	var (
		payload  any
		err      error
		attempts int
	)
	for attempts = 1; attempts <= opts.RetryAttempts+1; attempts++ {
		payload, err = q.attempt(ctx, id, jobType, opts.DocumentTimeout)
		if err == nil {
			break
		}
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if attempts <= opts.RetryAttempts {
			delay := opts.RetryDelay * time.Duration(attempts)
			q.logger.Warn("queue.document.retry",
				"job_id", e.job.ID, "document_id", id, "attempt", attempts, "delay", delay, "err", err)
			if !sleepCtx(ctx, delay) {
				break
			}
		}
	}
	if attempts > opts.RetryAttempts+1 {
		attempts = opts.RetryAttempts + 1
	}

	expired := err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)
	q.record(e, idx, id, payload, err, attempts, q.now().Sub(start), expired)
}

func (q *ProcessorQueue) attempt(ctx context.Context, id uuid.UUID, jobType constants.JobType, timeout time.Duration) (payload any, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return q.proc.Process(ctx, id, jobType)
}

// record stores one document outcome unless the job is already terminal.
func (q *ProcessorQueue) record(e *jobEntry, idx int, id uuid.UUID, payload any, err error, attempts int, dur time.Duration, expired bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.Status.IsTerminal() || e.settled[idx] {
		return
	}
	e.settled[idx] = true
	e.expired = e.expired || expired
	now := q.now()

	e.job.Results = append(e.job.Results, DocumentResult{
		DocumentID:  id,
		Success:     err == nil,
		Payload:     payload,
		Attempts:    attempts,
		Duration:    dur,
		CompletedAt: now,
	})
	if err != nil {
		e.job.Failed++
		e.job.Errors = append(e.job.Errors, DocumentError{DocumentID: id, Message: err.Error(), Attempts: attempts, At: now})
		q.logger.Error("queue.document.failed", "job_id", e.job.ID, "document_id", id, "attempts", attempts, "err", err)
	} else {
		e.job.Processed++
		q.logger.Debug("queue.document.done", "job_id", e.job.ID, "document_id", id, "elapsed_ms", dur.Milliseconds())
	}
	e.durSum += dur

	settled := e.job.Processed + e.job.Failed
	e.job.Progress = float64(settled) / float64(e.job.Total) * 100
	eta := time.Duration(int64(e.durSum) / int64(settled) * int64(e.job.Total-settled))
	e.job.EstimatedRemaining = &eta

	q.emitLocked(e, EventProgress, &id)
}

// terminateLocked freezes the job. Unsettled documents are recorded as failed so counts always add up.
func (q *ProcessorQueue) terminateLocked(e *jobEntry, status constants.JobStatus, reason string) {
	now := q.now()
	for i, id := range e.job.DocumentIDs {
		if e.settled[i] {
			continue
		}
		e.settled[i] = true
		e.job.Failed++
		e.job.Errors = append(e.job.Errors, DocumentError{DocumentID: id, Message: reason, At: now})
	}
	e.job.Status = status
	e.job.Progress = 100
	zero := time.Duration(0)
	e.job.EstimatedRemaining = &zero
	e.job.CompletedAt = &now

	var ev EventType
	switch status {
	case constants.JobStatusCompleted:
		ev = EventCompleted
	case constants.JobStatusCancelled:
		ev = EventCancelled
	case constants.JobStatusTimedOut:
		ev = EventTimedOut
	default:
		ev = EventFailed
	}
	q.logger.Info("queue.job.finished",
		"job_id", e.job.ID,
		"status", status,
		"processed", e.job.Processed,
		"failed", e.job.Failed,
		"total", e.job.Total,
	)
	q.emitLocked(e, ev, nil)
}

func (q *ProcessorQueue) emitLocked(e *jobEntry, t EventType, documentID *uuid.UUID) {
	ev := Event{
		Type:       t,
		JobID:      e.job.ID,
		Status:     e.job.Status,
		Total:      e.job.Total,
		Processed:  e.job.Processed,
		Failed:     e.job.Failed,
		Progress:   e.job.Progress,
		DocumentID: documentID,
		At:         q.now(),
	}
	if e.job.EstimatedRemaining != nil {
		d := *e.job.EstimatedRemaining
		ev.EstimatedRemaining = &d
	}
	q.publish(ev)
}

func (q *ProcessorQueue) publish(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queue.sink.panic", "job_id", ev.JobID, "event", ev.Type, "panic", r)
		}
	}()
	if err := q.sink.Publish(q.baseCtx, ev); err != nil {
		q.logger.Warn("queue.sink.failed", "job_id", ev.JobID, "event", ev.Type, "err", err)
	}
}

func (q *ProcessorQueue) isTerminal(e *jobEntry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Status.IsTerminal()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
