package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cliplens/cliplens-server/internal/video"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Post("/videos", createVideoHandler(cfg))
	r.Post("/videos/{id}/segment", segmentVideoHandler(cfg))
	r.Get("/videos/{id}/status", statusHandler(cfg))
	r.Get("/videos/{id}/frames", framesHandler(cfg))

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: "0.1.0",
			UptimeS: uptime,
		})
	}
}

func createVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateVideoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.Title == "" {
			WriteError(w, http.StatusBadRequest, "title is required", "BAD_REQUEST")
			return
		}
		if req.Duration <= 0 {
			WriteError(w, http.StatusBadRequest, "duration must be positive", "BAD_REQUEST")
			return
		}

		v, err := cfg.VideoService.RegisterVideo(r.Context(), req.Title, req.URL, req.Duration)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to register video", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusCreated, CreateVideoResponse{VideoID: v.ID, Status: v.Status})
	}
}

func segmentVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "video id required", "BAD_REQUEST")
			return
		}

		// An empty body means default segment duration.
		var req SegmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		result, err := cfg.VideoService.SegmentVideo(r.Context(), id, req.SegmentDuration)
		if err != nil {
			if errors.Is(err, video.ErrNotFound) {
				WriteError(w, http.StatusNotFound, "video not found", "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusInternalServerError, "failed to start segmentation", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusAccepted, SegmentResponse{
			VideoID:                 result.VideoID,
			VideoDuration:           result.VideoDuration,
			SegmentDuration:         result.SegmentDuration,
			TotalSegments:           result.TotalSegments,
			EstimatedProcessingTime: result.EstimatedProcessingTime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "video id required", "BAD_REQUEST")
			return
		}

		status, err := cfg.VideoService.GetSegmentationStatus(r.Context(), id)
		if err != nil {
			if errors.Is(err, video.ErrNotFound) {
				WriteError(w, http.StatusNotFound, "video not found", "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusInternalServerError, "failed to read status", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, StatusResponse{
			VideoID:         status.VideoID,
			Status:          status.Status,
			ProcessedFrames: status.ProcessedFrames,
			LatestFrames:    FramesToResponse(status.LatestFrames),
		})
	}
}

func framesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "video id required", "BAD_REQUEST")
			return
		}

		limit := queryInt(r, "limit", 0)
		offset := queryInt(r, "offset", 0)

		page, err := cfg.VideoService.GetVideoFrames(r.Context(), id, limit, offset)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list frames", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, FramesResponse{
			Frames:  FramesToResponse(page.Frames),
			Total:   page.Total,
			Limit:   page.Limit,
			Offset:  page.Offset,
			HasMore: page.HasMore,
		})
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
