// Package extractor calls the external frame-extraction service. The
// service accepts a video blob plus a time range and returns one encoded
// frame for that segment.
package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

// ExtractError represents a failed extraction call.
type ExtractError struct {
	StatusCode int
	Body       string
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("frame extraction failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether the failure is worth redelivering. The
// extraction service is stateless, so server errors and throttling are
// transient; other client errors are permanent.
func (e *ExtractError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Request identifies the segment to extract a frame from.
type Request struct {
	VideoID   string
	FrameID   string
	StartTime float64
	EndTime   float64
	Video     []byte
}

type Client interface {
	// ExtractFrame returns the decoded image bytes for one segment.
	ExtractFrame(ctx context.Context, req Request) ([]byte, error)
}

// HTTPClient talks to the extraction service over HTTP with multipart
// uploads.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type extractResponse struct {
	FrameBase64 string `json:"frameBase64"`
}

func (c *HTTPClient) ExtractFrame(ctx context.Context, req Request) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", req.VideoID+".mp4")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(req.Video); err != nil {
		return nil, fmt.Errorf("write video part: %w", err)
	}

	fields := map[string]string{
		"videoId":   req.VideoID,
		"frameId":   req.FrameID,
		"startTime": strconv.FormatFloat(req.StartTime, 'f', -1, 64),
		"endTime":   strconv.FormatFloat(req.EndTime, 'f', -1, 64),
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	url := c.baseURL + "/video/extract/segment-frame"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ExtractError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	image, err := base64.StdEncoding.DecodeString(result.FrameBase64)
	if err != nil {
		return nil, fmt.Errorf("decode frame payload: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug("frame extracted",
			"video_id", req.VideoID,
			"frame_id", req.FrameID,
			"image_bytes", len(image),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return image, nil
}
