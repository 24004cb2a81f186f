package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type delivery struct {
	job     SegmentJob
	attempt int
}

// MemoryQueue is an in-process queue with the same at-least-once contract
// as the broker-backed implementation. It backs tests and broker-less
// local runs. Publish delays are honored but may be shortened: delays are
// advisory pacing, not a correctness requirement.
type MemoryQueue struct {
	opts   Options
	logger *slog.Logger

	ch chan delivery

	// inflight settles when every published job has been acked or
	// dead-lettered, including redeliveries.
	inflight sync.WaitGroup

	mu        sync.Mutex
	published []PublishedJob
}

// PublishedJob records a Publish call for inspection in tests.
type PublishedJob struct {
	Job   SegmentJob
	Delay time.Duration
}

func NewMemoryQueue(opts Options, logger *slog.Logger) *MemoryQueue {
	return &MemoryQueue{
		opts:   opts.withDefaults(),
		logger: logger,
		ch:     make(chan delivery, 1024),
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, job SegmentJob, delay time.Duration) error {
	q.mu.Lock()
	q.published = append(q.published, PublishedJob{Job: job, Delay: delay})
	q.mu.Unlock()

	q.inflight.Add(1)
	q.enqueue(delivery{job: job, attempt: 1}, delay)
	return nil
}

func (q *MemoryQueue) enqueue(d delivery, delay time.Duration) {
	if delay <= 0 {
		q.ch <- d
		return
	}
	time.AfterFunc(delay, func() {
		q.ch <- d
	})
}

func (q *MemoryQueue) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < q.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.worker(ctx)
		}()
	}
	wg.Wait()
	return nil
}

func (q *MemoryQueue) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-q.ch:
			q.process(ctx, d)
		}
	}
}

func (q *MemoryQueue) process(ctx context.Context, d delivery) {
	err := q.opts.Handler(ctx, d.job)
	if err == nil {
		q.inflight.Done()
		return
	}

	if d.attempt < q.opts.MaxAttempts {
		if q.logger != nil {
			q.logger.Warn("segment job failed, redelivering",
				"video_id", d.job.VideoID,
				"segment_index", d.job.SegmentIndex,
				"attempt", d.attempt,
				"error", err,
			)
		}
		q.enqueue(delivery{job: d.job, attempt: d.attempt + 1}, q.opts.RetryDelay)
		return
	}

	if q.logger != nil {
		q.logger.Error("segment job exhausted delivery attempts",
			"video_id", d.job.VideoID,
			"segment_index", d.job.SegmentIndex,
			"attempts", d.attempt,
			"error", err,
		)
	}
	if q.opts.OnExhausted != nil {
		q.opts.OnExhausted(ctx, d.job, err)
	}
	q.inflight.Done()
}

// Drain blocks until every published job has settled.
func (q *MemoryQueue) Drain() {
	q.inflight.Wait()
}

// Published returns the Publish calls seen so far, in order.
func (q *MemoryQueue) Published() []PublishedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]PublishedJob, len(q.published))
	copy(out, q.published)
	return out
}
