package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryQueue_DeliversOnce(t *testing.T) {
	var mu sync.Mutex
	var got []SegmentJob

	q := NewMemoryQueue(Options{
		Workers:     2,
		MaxAttempts: 3,
		Handler: func(ctx context.Context, job SegmentJob) error {
			mu.Lock()
			got = append(got, job)
			mu.Unlock()
			return nil
		},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Start(ctx)

	for i := 0; i < 5; i++ {
		if err := q.Publish(ctx, SegmentJob{VideoID: "v1", SegmentIndex: i, TotalSegments: 5}, 0); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	q.Drain()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 5 {
		t.Fatalf("delivered %d jobs, want 5", len(got))
	}
	seen := map[int]bool{}
	for _, j := range got {
		seen[j.SegmentIndex] = true
	}
	if len(seen) != 5 {
		t.Errorf("distinct segments delivered = %d, want 5", len(seen))
	}
}

func TestMemoryQueue_RedeliversOnFailure(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	q := NewMemoryQueue(Options{
		Workers:     1,
		MaxAttempts: 3,
		Handler: func(ctx context.Context, job SegmentJob) error {
			mu.Lock()
			attempts++
			n := attempts
			mu.Unlock()
			if n < 2 {
				return errors.New("transient")
			}
			return nil
		},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Start(ctx)

	if err := q.Publish(ctx, SegmentJob{VideoID: "v1"}, 0); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	q.Drain()

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 (one failure, one success)", attempts)
	}
}

func TestMemoryQueue_ExhaustsAttempts(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	var exhausted *SegmentJob
	var exhaustedErr error

	q := NewMemoryQueue(Options{
		Workers:     1,
		MaxAttempts: 3,
		Handler: func(ctx context.Context, job SegmentJob) error {
			mu.Lock()
			attempts++
			mu.Unlock()
			return errors.New("permanent")
		},
		OnExhausted: func(ctx context.Context, job SegmentJob, err error) {
			mu.Lock()
			exhausted = &job
			exhaustedErr = err
			mu.Unlock()
		},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Start(ctx)

	if err := q.Publish(ctx, SegmentJob{VideoID: "v1", SegmentIndex: 2}, 0); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	q.Drain()

	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if exhausted == nil {
		t.Fatal("OnExhausted not invoked")
	}
	if exhausted.SegmentIndex != 2 {
		t.Errorf("exhausted segment = %d, want 2", exhausted.SegmentIndex)
	}
	if exhaustedErr == nil {
		t.Error("exhausted error is nil")
	}
}

func TestMemoryQueue_DelayedPublish(t *testing.T) {
	done := make(chan time.Time, 1)
	start := time.Now()

	q := NewMemoryQueue(Options{
		Workers:     1,
		MaxAttempts: 1,
		Handler: func(ctx context.Context, job SegmentJob) error {
			done <- time.Now()
			return nil
		},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Start(ctx)

	if err := q.Publish(ctx, SegmentJob{VideoID: "v1"}, 50*time.Millisecond); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case at := <-done:
		if at.Sub(start) < 50*time.Millisecond {
			t.Errorf("delivered after %v, want >= 50ms", at.Sub(start))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delayed job never delivered")
	}
}

func TestMemoryQueue_RecordsPublishes(t *testing.T) {
	q := NewMemoryQueue(Options{
		Workers:     1,
		MaxAttempts: 1,
		Handler:     func(ctx context.Context, job SegmentJob) error { return nil },
	}, nil)

	ctx := context.Background()
	q.Publish(ctx, SegmentJob{VideoID: "v1", SegmentIndex: 0}, 0)
	q.Publish(ctx, SegmentJob{VideoID: "v1", SegmentIndex: 1}, 2*time.Second)

	published := q.Published()
	if len(published) != 2 {
		t.Fatalf("Published() len = %d, want 2", len(published))
	}
	if published[1].Delay != 2*time.Second {
		t.Errorf("second publish delay = %v, want 2s", published[1].Delay)
	}
}
