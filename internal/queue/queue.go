// Package queue carries segment jobs from the segmentation coordinator to
// the consumer workers with at-least-once delivery. Failed deliveries are
// retried with a delay until the per-job attempt budget is exhausted, then
// handed to the dead-letter hook.
package queue

import (
	"context"
	"time"
)

// SegmentJob is the transient message enqueued once per segment. It is
// never persisted outside the queue.
type SegmentJob struct {
	VideoID       string  `json:"videoId"`
	StartTime     float64 `json:"startTime"`
	EndTime       float64 `json:"endTime"`
	SegmentIndex  int     `json:"segmentIndex"`
	TotalSegments int     `json:"totalSegments"`
}

// Handler processes one delivered segment job. Returning an error triggers
// redelivery.
type Handler func(ctx context.Context, job SegmentJob) error

// ExhaustedFunc is invoked once a job has failed its final delivery attempt.
type ExhaustedFunc func(ctx context.Context, job SegmentJob, err error)

type Publisher interface {
	// Publish enqueues a job with an optional delivery delay. The delay is
	// advisory; implementations may deliver earlier.
	Publish(ctx context.Context, job SegmentJob, delay time.Duration) error
}

type Consumer interface {
	// Start runs the worker pool until ctx is cancelled.
	Start(ctx context.Context) error
}

// Options configures a queue consumer.
type Options struct {
	Workers     int
	MaxAttempts int
	RetryDelay  time.Duration
	Handler     Handler
	OnExhausted ExhaustedFunc
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Workers < 1 {
		out.Workers = 1
	}
	if out.MaxAttempts < 1 {
		out.MaxAttempts = 1
	}
	return out
}
