// Package tasks provides the in-process job queue that chains pipeline
// stages. Jobs are keyed by (stage, record id): re-enqueueing a live key
// is a no-op, and a key never executes twice concurrently. A Run call
// drains the queue with a bounded worker pool. The queue does not retry
// within a run; failed records are picked up again by the next sweep.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"vigia/internal/logger"
	"vigia/internal/notify"
)

// Stage identifies a queue job type.
type Stage string

// Per-record stages, chained by record ID.
const (
	StageDownload Stage = "download"
	StageExtract  Stage = "extract"
	StageEnrich   Stage = "enrich"
)

// Batch stages, chained when the swept count is positive.
const (
	StageClassifyPending    Stage = "classify_pending"
	StageDownloadClassified Stage = "download_classified"
	StageExtractReady       Stage = "extract_ready"
	StageBatchDedup         Stage = "batch_dedup"
	StageBatchEnrich        Stage = "batch_enrich"
)

// Job is one unit of queued work. RecordID is empty for batch jobs.
type Job struct {
	Stage    Stage
	RecordID string
}

// Key is the queue-level identity of the job.
func (j Job) Key() string {
	return string(j.Stage) + ":" + j.RecordID
}

// Handler executes one job.
type Handler func(ctx context.Context, job Job) error

// Stats counts queue activity for one run.
type Stats struct {
	Enqueued   int `json:"enqueued"`
	Suppressed int `json:"suppressed"` // re-enqueues of live keys
	Executed   int `json:"executed"`
	Failed     int `json:"failed"`
}

// Queue is a FIFO job queue with per-key suppression, drained by a
// bounded worker pool. Concurrent Run calls share executions per key.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	jobs     []Job
	pending  map[string]struct{}
	inflight int
	handlers map[Stage]Handler
	stats    Stats

	workers  int
	group    singleflight.Group
	notifier notify.Notifier
	log      *slog.Logger
}

// New builds an empty queue drained by the given number of workers.
// Failures are reported through notifier.
func New(notifier notify.Notifier, workers int) *Queue {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if workers < 1 {
		workers = 1
	}
	q := &Queue{
		pending:  make(map[string]struct{}),
		handlers: make(map[Stage]Handler),
		workers:  workers,
		notifier: notifier,
		log:      logger.Component("tasks"),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Register installs the handler for a stage, replacing any previous one.
// The set of registered stages defines what a run serves: jobs for other
// stages are dropped at the door.
func (q *Queue) Register(stage Stage, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[stage] = handler
}

// Batch adapts a sweep returning its yielded count into a Handler that
// chains into next when the count is positive. An empty next stage ends
// the chain.
func (q *Queue) Batch(next Stage, sweep func(ctx context.Context) (int, error)) Handler {
	return func(ctx context.Context, job Job) error {
		count, err := sweep(ctx)
		if err != nil {
			return err
		}
		if count > 0 && next != "" {
			q.Enqueue(next, "")
		}
		return nil
	}
}

// Enqueue schedules a job. It reports false when the stage is not served
// by this run or the key is already queued or running, in which case
// nothing is scheduled.
func (q *Queue) Enqueue(stage Stage, recordID string) bool {
	job := Job{Stage: stage, RecordID: recordID}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, served := q.handlers[stage]; !served {
		q.log.Debug("stage not served this run, dropping job",
			"stage", stage, "record_id", recordID)
		return false
	}
	if _, live := q.pending[job.Key()]; live {
		q.stats.Suppressed++
		return false
	}
	q.pending[job.Key()] = struct{}{}
	q.jobs = append(q.jobs, job)
	q.stats.Enqueued++
	q.cond.Broadcast()
	return true
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Run drains the queue, including jobs enqueued while draining, using the
// configured worker count. The context is polled between jobs; an
// in-flight job always runs to completion. The final counters are
// returned.
func (q *Queue) Run(ctx context.Context) Stats {
	var wg sync.WaitGroup
	wg.Add(q.workers)
	for i := 0; i < q.workers; i++ {
		go func() {
			defer wg.Done()
			for {
				job, ok := q.take(ctx)
				if !ok {
					return
				}
				err := q.execute(ctx, job)
				q.finish(job, err)
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		q.log.Warn("queue drain interrupted", "reason", ctx.Err())
	}
	return q.Stats()
}

// take blocks until a job is available or the drain is over: the queue is
// empty with no peer mid-job, or the context is done. Workers parked here
// are woken whenever a job is enqueued or finished.
func (q *Queue) take(ctx context.Context) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if ctx.Err() != nil {
			q.cond.Broadcast()
			return Job{}, false
		}
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs = q.jobs[1:]
			q.inflight++
			return job, true
		}
		if q.inflight == 0 {
			q.cond.Broadcast()
			return Job{}, false
		}
		q.cond.Wait()
	}
}

// execute runs the job through the per-key singleflight group so that
// a key is never in flight twice, even across concurrent Run calls.
func (q *Queue) execute(ctx context.Context, job Job) error {
	q.mu.Lock()
	handler, ok := q.handlers[job.Stage]
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("no handler registered for stage %q", job.Stage)
	}

	_, err, _ := q.group.Do(job.Key(), func() (result interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("stage %s panicked: %v", job.Stage, r)
			}
		}()
		return nil, handler(ctx, job)
	})
	return err
}

// finish releases the job's key, records the outcome, and wakes parked
// workers. Failures are notified and counted; the drain moves on.
func (q *Queue) finish(job Job, err error) {
	q.mu.Lock()
	delete(q.pending, job.Key())
	q.inflight--
	if err != nil {
		q.stats.Failed++
	} else {
		q.stats.Executed++
	}
	q.cond.Broadcast()
	q.mu.Unlock()

	if err == nil {
		return
	}
	q.log.Error("task failed", "error", err, "stage", job.Stage, "record_id", job.RecordID)
	event := notify.Event{
		Kind:     notify.KindTaskFailure,
		Stage:    string(job.Stage),
		RecordID: job.RecordID,
		Message:  fmt.Sprintf("task %s failed", job.Key()),
		Error:    err.Error(),
	}
	if nerr := q.notifier.Notify(context.Background(), event); nerr != nil {
		q.log.Warn("failure notification not delivered", "error", nerr)
	}
}
