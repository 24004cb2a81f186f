package video

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	StatusIdle       = "idle"
	StatusProcessing = "processing"
	StatusFailed     = "failed"
	StatusActive     = "active"

	// Segment duration bounds in seconds
	MinSegmentDuration     = 1
	MaxSegmentDuration     = 60
	DefaultSegmentDuration = 5

	// Jobs are staggered on enqueue to avoid saturating the extraction
	// service. Advisory only.
	StaggerDelay = 2 * time.Second

	// Rough per-segment processing estimate in seconds
	estimatePerSegment = 10
)

type Video struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	URL           string    `json:"url"`
	Status        string    `json:"status"`
	Duration      float64   `json:"duration"`
	Text          string    `json:"text"`
	TotalSegments int       `json:"total_segments"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Frame struct {
	ID                string    `json:"id"`
	VideoID           string    `json:"video_id"`
	SegmentIndex      int       `json:"segment_index"`
	StartTime         float64   `json:"start_time"`
	EndTime           float64   `json:"end_time"`
	Transcript        string    `json:"transcript"`
	VisualDescription string    `json:"visual_description"`
	Embedding         string    `json:"embedding"`
	FrameURL          string    `json:"frame_url"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Segment is one fixed-duration slice of a video's timeline.
type Segment struct {
	Index     int
	StartTime float64
	EndTime   float64
}

func NewVideoID() string {
	return uuid.NewString()
}

// FrameID derives the deterministic frame id for a segment. Redelivered
// jobs produce the same id, so persistence upserts instead of duplicating.
func FrameID(videoID string, segmentIndex int) string {
	return fmt.Sprintf("%s_segment_%d", videoID, segmentIndex)
}

// SourceKey is the blob key of a video's source file.
func SourceKey(videoID string) string {
	return videoID + ".mp4"
}

// FrameKey is the blob key of an extracted frame image, namespaced by video.
func FrameKey(videoID, frameID string) string {
	return videoID + "/" + frameID + ".jpg"
}

// ClampSegmentDuration bounds the requested segment duration to
// [MinSegmentDuration, MaxSegmentDuration], defaulting when unset.
func ClampSegmentDuration(seconds float64) float64 {
	if seconds == 0 {
		return DefaultSegmentDuration
	}
	if seconds < MinSegmentDuration {
		return MinSegmentDuration
	}
	if seconds > MaxSegmentDuration {
		return MaxSegmentDuration
	}
	return seconds
}

// PlanSegments splits a duration into segments of segmentDuration seconds.
// The last segment is truncated so its end time equals the video duration.
func PlanSegments(duration, segmentDuration float64) []Segment {
	total := SegmentCount(duration, segmentDuration)
	segments := make([]Segment, 0, total)
	for i := 0; i < total; i++ {
		segments = append(segments, Segment{
			Index:     i,
			StartTime: float64(i) * segmentDuration,
			EndTime:   math.Min(float64(i+1)*segmentDuration, duration),
		})
	}
	return segments
}

func SegmentCount(duration, segmentDuration float64) int {
	if duration <= 0 || segmentDuration <= 0 {
		return 0
	}
	return int(math.Ceil(duration / segmentDuration))
}

// EstimateProcessingTime returns a rough wall-clock estimate in seconds.
func EstimateProcessingTime(totalSegments int) int {
	return totalSegments * estimatePerSegment
}
