package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cliplens/cliplens-server/internal/blob"
	"github.com/cliplens/cliplens-server/internal/extractor"
	"github.com/cliplens/cliplens-server/internal/metrics"
	"github.com/cliplens/cliplens-server/internal/queue"
)

// Processor consumes segment jobs: it extracts one frame per segment,
// persists it, and detects completion. All of its persistence is
// idempotent, so the queue's at-least-once delivery is safe.
type Processor struct {
	repo      Repository
	videos    blob.Store
	frames    blob.Store
	extractor extractor.Client
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewProcessor(repo Repository, videos, frames blob.Store, ex extractor.Client, m *metrics.Metrics, logger *slog.Logger) *Processor {
	return &Processor{
		repo:      repo,
		videos:    videos,
		frames:    frames,
		extractor: ex,
		metrics:   m,
		logger:    logger,
	}
}

// ProcessSegment handles one delivered job. Errors propagate to the queue
// layer, which redelivers until the attempt budget runs out; the video is
// not marked failed here.
func (p *Processor) ProcessSegment(ctx context.Context, job queue.SegmentJob) error {
	logger := p.logger.With("video_id", job.VideoID, "segment_index", job.SegmentIndex)
	logger.Info("processing segment", "total_segments", job.TotalSegments)

	err := p.processSegment(ctx, job, logger)
	if err != nil {
		p.metrics.SegmentsFailed.Inc()
		return err
	}

	p.metrics.SegmentsProcessed.Inc()
	return nil
}

func (p *Processor) processSegment(ctx context.Context, job queue.SegmentJob, logger *slog.Logger) error {
	frameID := FrameID(job.VideoID, job.SegmentIndex)

	videoData, err := p.videos.Get(ctx, SourceKey(job.VideoID))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return fmt.Errorf("source blob for video %s: %w", job.VideoID, ErrNotFound)
		}
		return fmt.Errorf("fetch source blob: %w", err)
	}

	start := time.Now()
	image, err := p.extractor.ExtractFrame(ctx, extractor.Request{
		VideoID:   job.VideoID,
		FrameID:   frameID,
		StartTime: job.StartTime,
		EndTime:   job.EndTime,
		Video:     videoData,
	})
	if err != nil {
		return fmt.Errorf("extract frame: %w", err)
	}
	p.metrics.ExtractionSeconds.Observe(time.Since(start).Seconds())

	frameKey := FrameKey(job.VideoID, frameID)
	if err := p.frames.Put(ctx, frameKey, image, "image/jpeg"); err != nil {
		return fmt.Errorf("store frame image: %w", err)
	}

	now := time.Now().UTC()
	frame := &Frame{
		ID:           frameID,
		VideoID:      job.VideoID,
		SegmentIndex: job.SegmentIndex,
		StartTime:    job.StartTime,
		EndTime:      job.EndTime,
		Embedding:    "[]",
		FrameURL:     p.frames.URL(frameKey),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.repo.UpsertFrame(ctx, frame); err != nil {
		return fmt.Errorf("persist frame row: %w", err)
	}

	return p.maybeFinalize(ctx, job, logger)
}

// maybeFinalize records the segment as done and flips the video to active
// once the completed set covers every segment. The set insert is
// idempotent and the status write is a compare-and-swap, so concurrent
// workers and redeliveries cannot over-fire.
func (p *Processor) maybeFinalize(ctx context.Context, job queue.SegmentJob, logger *slog.Logger) error {
	newlyDone, err := p.repo.MarkSegmentDone(ctx, job.VideoID, job.SegmentIndex)
	if err != nil {
		return fmt.Errorf("mark segment done: %w", err)
	}
	if !newlyDone {
		logger.Debug("segment already recorded, redelivery")
	}

	done, err := p.repo.CountSegmentsDone(ctx, job.VideoID)
	if err != nil {
		return fmt.Errorf("count completed segments: %w", err)
	}
	if done < job.TotalSegments {
		return nil
	}

	finalized, err := p.repo.SetStatusIf(ctx, job.VideoID, StatusProcessing, StatusActive)
	if err != nil {
		return fmt.Errorf("finalize video: %w", err)
	}
	if finalized {
		p.metrics.VideosFinalized.Inc()
		logger.Info("video segmentation completed", "total_frames", done)
	}
	return nil
}

// HandleExhausted is the queue's dead-letter hook: a segment has failed
// its final delivery attempt, so the whole video is failed. The write is
// conditional on processing, so an already-active video is left alone.
func (p *Processor) HandleExhausted(ctx context.Context, job queue.SegmentJob, cause error) {
	failed, err := p.repo.SetStatusIf(ctx, job.VideoID, StatusProcessing, StatusFailed)
	if err != nil {
		p.logger.Error("failed to mark video failed",
			"video_id", job.VideoID,
			"segment_index", job.SegmentIndex,
			"error", err,
		)
		return
	}
	if failed {
		p.metrics.VideosFailed.Inc()
		p.logger.Error("video failed",
			"video_id", job.VideoID,
			"segment_index", job.SegmentIndex,
			"cause", cause,
		)
	}
}
