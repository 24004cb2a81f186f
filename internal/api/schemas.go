package api

import (
	"time"

	"github.com/cliplens/cliplens-server/internal/video"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type CreateVideoRequest struct {
	Title    string  `json:"title"`
	URL      string  `json:"url,omitempty"`
	Duration float64 `json:"duration"`
}

type CreateVideoResponse struct {
	VideoID string `json:"video_id"`
	Status  string `json:"status"`
}

type SegmentRequest struct {
	SegmentDuration float64 `json:"segment_duration,omitempty"`
}

type SegmentResponse struct {
	VideoID                 string  `json:"video_id"`
	VideoDuration           float64 `json:"video_duration"`
	SegmentDuration         float64 `json:"segment_duration"`
	TotalSegments           int     `json:"total_segments"`
	EstimatedProcessingTime int     `json:"estimated_processing_time_s"`
}

type StatusResponse struct {
	VideoID         string          `json:"video_id"`
	Status          string          `json:"status"`
	ProcessedFrames int             `json:"processed_frames"`
	LatestFrames    []FrameResponse `json:"latest_frames"`
}

type FrameResponse struct {
	ID                string  `json:"id"`
	VideoID           string  `json:"video_id"`
	SegmentIndex      int     `json:"segment_index"`
	StartTime         float64 `json:"start_time"`
	EndTime           float64 `json:"end_time"`
	Transcript        string  `json:"transcript,omitempty"`
	VisualDescription string  `json:"visual_description,omitempty"`
	FrameURL          string  `json:"frame_url"`
	CreatedAt         string  `json:"created_at"`
}

type FramesResponse struct {
	Frames  []FrameResponse `json:"frames"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	HasMore bool            `json:"has_more"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func FrameToResponse(f *video.Frame) FrameResponse {
	return FrameResponse{
		ID:                f.ID,
		VideoID:           f.VideoID,
		SegmentIndex:      f.SegmentIndex,
		StartTime:         f.StartTime,
		EndTime:           f.EndTime,
		Transcript:        f.Transcript,
		VisualDescription: f.VisualDescription,
		FrameURL:          f.FrameURL,
		CreatedAt:         f.CreatedAt.Format(time.RFC3339),
	}
}

func FramesToResponse(frames []*video.Frame) []FrameResponse {
	out := make([]FrameResponse, len(frames))
	for i, f := range frames {
		out[i] = FrameToResponse(f)
	}
	return out
}
