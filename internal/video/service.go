package video

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cliplens/cliplens-server/internal/blob"
	"github.com/cliplens/cliplens-server/internal/metrics"
	"github.com/cliplens/cliplens-server/internal/queue"
)

// SegmentResult is returned to the caller of SegmentVideo.
type SegmentResult struct {
	VideoID                 string
	VideoDuration           float64
	SegmentDuration         float64
	TotalSegments           int
	EstimatedProcessingTime int
}

// SegmentationStatus is the polling payload for clients watching a video's
// progress.
type SegmentationStatus struct {
	VideoID         string
	Status          string
	ProcessedFrames int
	LatestFrames    []*Frame
}

// FramesPage is one page of a video's frames ordered by start time.
type FramesPage struct {
	Frames  []*Frame
	Total   int
	Limit   int
	Offset  int
	HasMore bool
}

// Service is the segmentation coordinator and status reader. It owns the
// processing and failed status writes on the coordinator side; the active
// write belongs to the consumer's completion detection.
type Service struct {
	repo      Repository
	videos    blob.Store
	publisher queue.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewService(repo Repository, videos blob.Store, publisher queue.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		videos:    videos,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// RegisterVideo creates a video row in idle state. The source file itself
// is uploaded out of band under SourceKey(id).
func (s *Service) RegisterVideo(ctx context.Context, title, url string, duration float64) (*Video, error) {
	now := time.Now().UTC()
	v := &Video{
		ID:        NewVideoID(),
		Title:     title,
		URL:       url,
		Status:    StatusIdle,
		Duration:  duration,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateVideo(ctx, v); err != nil {
		return nil, fmt.Errorf("create video: %w", err)
	}
	s.logger.Info("video registered", "video_id", v.ID, "duration", duration)
	return v, nil
}

// SegmentVideo fans a video out into one job per segment. The video is
// moved to processing before the first enqueue so a racing status read
// never observes a stale idle.
func (s *Service) SegmentVideo(ctx context.Context, videoID string, segmentDuration float64) (*SegmentResult, error) {
	v, err := s.repo.GetVideo(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	if v == nil {
		return nil, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}

	exists, err := s.videos.Exists(ctx, SourceKey(videoID))
	if err != nil {
		return nil, fmt.Errorf("check source blob: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("source blob for video %s: %w", videoID, ErrNotFound)
	}

	segmentDuration = ClampSegmentDuration(segmentDuration)
	segments := PlanSegments(v.Duration, segmentDuration)
	total := len(segments)

	// A fresh run may re-segment a video; stale completion records would
	// otherwise finalize the new run early.
	if err := s.repo.ClearSegmentProgress(ctx, videoID); err != nil {
		return nil, fmt.Errorf("clear segment progress: %w", err)
	}

	if err := s.repo.MarkProcessing(ctx, videoID, total); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	for _, seg := range segments {
		job := queue.SegmentJob{
			VideoID:       videoID,
			StartTime:     seg.StartTime,
			EndTime:       seg.EndTime,
			SegmentIndex:  seg.Index,
			TotalSegments: total,
		}
		delay := time.Duration(seg.Index) * StaggerDelay
		if err := s.publisher.Publish(ctx, job, delay); err != nil {
			// Jobs already enqueued stay in flight; the video is parked
			// in failed until a fresh SegmentVideo call restarts it.
			if _, failErr := s.repo.SetStatusIf(ctx, videoID, StatusProcessing, StatusFailed); failErr != nil {
				s.logger.Error("failed to mark video failed after enqueue error", "video_id", videoID, "error", failErr)
			}
			s.metrics.VideosFailed.Inc()
			return nil, fmt.Errorf("enqueue segment %d: %w", seg.Index, err)
		}
		s.metrics.SegmentsQueued.Inc()
	}

	s.logger.Info("video segmentation started",
		"video_id", videoID,
		"duration", v.Duration,
		"segment_duration", segmentDuration,
		"total_segments", total,
	)

	return &SegmentResult{
		VideoID:                 videoID,
		VideoDuration:           v.Duration,
		SegmentDuration:         segmentDuration,
		TotalSegments:           total,
		EstimatedProcessingTime: EstimateProcessingTime(total),
	}, nil
}

// GetSegmentationStatus reports the persisted state of a video's pipeline.
// Pure read.
func (s *Service) GetSegmentationStatus(ctx context.Context, videoID string) (*SegmentationStatus, error) {
	v, err := s.repo.GetVideo(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	if v == nil {
		return nil, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}

	processed, err := s.repo.CountFrames(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("count frames: %w", err)
	}

	latest, err := s.repo.LatestFrames(ctx, videoID, 5)
	if err != nil {
		return nil, fmt.Errorf("latest frames: %w", err)
	}

	return &SegmentationStatus{
		VideoID:         videoID,
		Status:          v.Status,
		ProcessedFrames: processed,
		LatestFrames:    latest,
	}, nil
}

// GetVideoFrames returns one page of frames ordered by start time.
func (s *Service) GetVideoFrames(ctx context.Context, videoID string, limit, offset int) (*FramesPage, error) {
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	frames, err := s.repo.ListFrames(ctx, videoID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}

	total, err := s.repo.CountFrames(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("count frames: %w", err)
	}

	return &FramesPage{
		Frames:  frames,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: total > offset+limit,
	}, nil
}
