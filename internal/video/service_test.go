package video

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cliplens/cliplens-server/internal/blob"
	"github.com/cliplens/cliplens-server/internal/metrics"
	"github.com/cliplens/cliplens-server/internal/queue"
)

type capturePublisher struct {
	mu     sync.Mutex
	jobs   []queue.SegmentJob
	delays []time.Duration
	failAt int // fail the Nth publish (1-based), 0 disables
}

func (p *capturePublisher) Publish(ctx context.Context, job queue.SegmentJob, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAt > 0 && len(p.jobs)+1 == p.failAt {
		return errors.New("broker unavailable")
	}
	p.jobs = append(p.jobs, job)
	p.delays = append(p.delays, delay)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, pub queue.Publisher) (*Service, *SQLiteRepository, *blob.MemoryStore) {
	t.Helper()
	repo := newTestRepo(t)
	videos := blob.NewMemoryStore("https://videos.local")
	svc := NewService(repo, videos, pub, metrics.New(), testLogger())
	return svc, repo, videos
}

func seedVideoWithBlob(t *testing.T, repo *SQLiteRepository, videos *blob.MemoryStore, id string, duration float64) {
	t.Helper()
	insertVideo(t, repo, id, duration)
	if err := videos.Put(context.Background(), SourceKey(id), []byte("mp4-bytes"), "video/mp4"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
}

func TestSegmentVideo_PlansAndEnqueues(t *testing.T) {
	pub := &capturePublisher{}
	svc, repo, videos := newTestService(t, pub)
	seedVideoWithBlob(t, repo, videos, "v1", 12)

	result, err := svc.SegmentVideo(context.Background(), "v1", 5)
	if err != nil {
		t.Fatalf("SegmentVideo() error = %v", err)
	}

	if result.TotalSegments != 3 {
		t.Errorf("TotalSegments = %d, want 3", result.TotalSegments)
	}
	if result.VideoDuration != 12 {
		t.Errorf("VideoDuration = %f, want 12", result.VideoDuration)
	}
	if result.SegmentDuration != 5 {
		t.Errorf("SegmentDuration = %f, want 5", result.SegmentDuration)
	}
	if result.EstimatedProcessingTime != 30 {
		t.Errorf("EstimatedProcessingTime = %d, want 30", result.EstimatedProcessingTime)
	}

	if len(pub.jobs) != 3 {
		t.Fatalf("enqueued %d jobs, want 3", len(pub.jobs))
	}

	wantBounds := [][2]float64{{0, 5}, {5, 10}, {10, 12}}
	for i, job := range pub.jobs {
		if job.SegmentIndex != i {
			t.Errorf("job %d index = %d", i, job.SegmentIndex)
		}
		if job.StartTime != wantBounds[i][0] || job.EndTime != wantBounds[i][1] {
			t.Errorf("job %d bounds = [%f, %f), want [%f, %f)",
				i, job.StartTime, job.EndTime, wantBounds[i][0], wantBounds[i][1])
		}
		if job.TotalSegments != 3 {
			t.Errorf("job %d total = %d, want 3", i, job.TotalSegments)
		}
		if want := time.Duration(i) * StaggerDelay; pub.delays[i] != want {
			t.Errorf("job %d delay = %v, want %v", i, pub.delays[i], want)
		}
	}

	v, _ := repo.GetVideo(context.Background(), "v1")
	if v.Status != StatusProcessing {
		t.Errorf("video status = %s, want processing", v.Status)
	}
	if v.TotalSegments != 3 {
		t.Errorf("video total_segments = %d, want 3", v.TotalSegments)
	}
}

func TestSegmentVideo_StatusSetBeforeEnqueue(t *testing.T) {
	// The first publish checks the persisted status: it must already be
	// processing when the first job becomes visible to a reader.
	repo := newTestRepo(t)
	videos := blob.NewMemoryStore("")

	var statusAtFirstPublish string
	pub := &statusProbePublisher{
		probe: func() {
			v, _ := repo.GetVideo(context.Background(), "v1")
			statusAtFirstPublish = v.Status
		},
	}

	svc := NewService(repo, videos, pub, metrics.New(), testLogger())
	seedVideoWithBlob(t, repo, videos, "v1", 12)

	if _, err := svc.SegmentVideo(context.Background(), "v1", 5); err != nil {
		t.Fatalf("SegmentVideo() error = %v", err)
	}
	if statusAtFirstPublish != StatusProcessing {
		t.Errorf("status at first publish = %s, want processing", statusAtFirstPublish)
	}
}

type statusProbePublisher struct {
	probe func()
	once  sync.Once
}

func (p *statusProbePublisher) Publish(ctx context.Context, job queue.SegmentJob, delay time.Duration) error {
	p.once.Do(p.probe)
	return nil
}

func TestSegmentVideo_ClampsDuration(t *testing.T) {
	pub := &capturePublisher{}
	svc, repo, videos := newTestService(t, pub)
	seedVideoWithBlob(t, repo, videos, "v1", 120)

	result, err := svc.SegmentVideo(context.Background(), "v1", 500)
	if err != nil {
		t.Fatalf("SegmentVideo() error = %v", err)
	}
	if result.SegmentDuration != MaxSegmentDuration {
		t.Errorf("SegmentDuration = %f, want %d", result.SegmentDuration, MaxSegmentDuration)
	}
	if result.TotalSegments != 2 {
		t.Errorf("TotalSegments = %d, want 2", result.TotalSegments)
	}

	result, err = svc.SegmentVideo(context.Background(), "v1", 0)
	if err != nil {
		t.Fatalf("SegmentVideo() error = %v", err)
	}
	if result.SegmentDuration != DefaultSegmentDuration {
		t.Errorf("SegmentDuration = %f, want %d", result.SegmentDuration, DefaultSegmentDuration)
	}
}

func TestSegmentVideo_MissingVideo(t *testing.T) {
	pub := &capturePublisher{}
	svc, _, _ := newTestService(t, pub)

	_, err := svc.SegmentVideo(context.Background(), "nope", 5)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SegmentVideo() error = %v, want ErrNotFound", err)
	}
	if len(pub.jobs) != 0 {
		t.Errorf("enqueued %d jobs for a missing video", len(pub.jobs))
	}
}

func TestSegmentVideo_MissingBlob(t *testing.T) {
	pub := &capturePublisher{}
	svc, repo, _ := newTestService(t, pub)
	insertVideo(t, repo, "v1", 12) // row exists, blob does not

	_, err := svc.SegmentVideo(context.Background(), "v1", 5)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SegmentVideo() error = %v, want ErrNotFound", err)
	}
	if len(pub.jobs) != 0 {
		t.Errorf("enqueued %d jobs for a video without a source blob", len(pub.jobs))
	}

	v, _ := repo.GetVideo(context.Background(), "v1")
	if v.Status != StatusIdle {
		t.Errorf("video status = %s, want idle (no enqueue happened)", v.Status)
	}
}

func TestSegmentVideo_EnqueueFailureMarksFailed(t *testing.T) {
	pub := &capturePublisher{failAt: 2}
	svc, repo, videos := newTestService(t, pub)
	seedVideoWithBlob(t, repo, videos, "v1", 12)

	_, err := svc.SegmentVideo(context.Background(), "v1", 5)
	if err == nil {
		t.Fatal("SegmentVideo() expected error")
	}

	v, _ := repo.GetVideo(context.Background(), "v1")
	if v.Status != StatusFailed {
		t.Errorf("video status = %s, want failed", v.Status)
	}
}

func TestGetSegmentationStatus(t *testing.T) {
	pub := &capturePublisher{}
	svc, repo, videos := newTestService(t, pub)
	seedVideoWithBlob(t, repo, videos, "v1", 40)
	ctx := context.Background()

	// No frames yet: the reader must tolerate an idle video.
	status, err := svc.GetSegmentationStatus(ctx, "v1")
	if err != nil {
		t.Fatalf("GetSegmentationStatus() error = %v", err)
	}
	if status.Status != StatusIdle {
		t.Errorf("Status = %s, want idle", status.Status)
	}
	if status.ProcessedFrames != 0 {
		t.Errorf("ProcessedFrames = %d, want 0", status.ProcessedFrames)
	}
	if len(status.LatestFrames) != 0 {
		t.Errorf("LatestFrames length = %d, want 0", len(status.LatestFrames))
	}

	for i := 0; i < 8; i++ {
		insertFrame(t, repo, "v1", i, float64(i*5), float64(i*5+5))
	}

	status, err = svc.GetSegmentationStatus(ctx, "v1")
	if err != nil {
		t.Fatalf("GetSegmentationStatus() error = %v", err)
	}
	if status.ProcessedFrames != 8 {
		t.Errorf("ProcessedFrames = %d, want 8", status.ProcessedFrames)
	}
	if len(status.LatestFrames) != 5 {
		t.Errorf("LatestFrames length = %d, want 5", len(status.LatestFrames))
	}
}

func TestGetSegmentationStatus_MissingVideo(t *testing.T) {
	pub := &capturePublisher{}
	svc, _, _ := newTestService(t, pub)

	_, err := svc.GetSegmentationStatus(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGetVideoFrames_Pagination(t *testing.T) {
	pub := &capturePublisher{}
	svc, repo, videos := newTestService(t, pub)
	seedVideoWithBlob(t, repo, videos, "v1", 115)
	ctx := context.Background()

	for i := 0; i < 23; i++ {
		insertFrame(t, repo, "v1", i, float64(i*5), float64(i*5+5))
	}

	page, err := svc.GetVideoFrames(ctx, "v1", 10, 0)
	if err != nil {
		t.Fatalf("GetVideoFrames() error = %v", err)
	}
	if len(page.Frames) != 10 || page.Total != 23 || !page.HasMore {
		t.Errorf("page = %d frames, total %d, hasMore %v; want 10, 23, true",
			len(page.Frames), page.Total, page.HasMore)
	}

	page, err = svc.GetVideoFrames(ctx, "v1", 10, 20)
	if err != nil {
		t.Fatalf("GetVideoFrames() error = %v", err)
	}
	if len(page.Frames) != 3 || page.HasMore {
		t.Errorf("page = %d frames, hasMore %v; want 3, false", len(page.Frames), page.HasMore)
	}
}

func TestGetVideoFrames_ClampsLimit(t *testing.T) {
	pub := &capturePublisher{}
	svc, repo, videos := newTestService(t, pub)
	seedVideoWithBlob(t, repo, videos, "v1", 10)

	page, err := svc.GetVideoFrames(context.Background(), "v1", 500, -3)
	if err != nil {
		t.Fatalf("GetVideoFrames() error = %v", err)
	}
	if page.Limit != 100 {
		t.Errorf("Limit = %d, want 100", page.Limit)
	}
	if page.Offset != 0 {
		t.Errorf("Offset = %d, want 0", page.Offset)
	}

	page, err = svc.GetVideoFrames(context.Background(), "v1", 0, 0)
	if err != nil {
		t.Fatalf("GetVideoFrames() error = %v", err)
	}
	if page.Limit != 20 {
		t.Errorf("default Limit = %d, want 20", page.Limit)
	}
}

func TestRegisterVideo(t *testing.T) {
	pub := &capturePublisher{}
	svc, repo, _ := newTestService(t, pub)

	v, err := svc.RegisterVideo(context.Background(), "demo", "https://videos.local/demo.mp4", 42)
	if err != nil {
		t.Fatalf("RegisterVideo() error = %v", err)
	}
	if v.ID == "" {
		t.Fatal("RegisterVideo() returned empty id")
	}
	if v.Status != StatusIdle {
		t.Errorf("Status = %s, want idle", v.Status)
	}

	stored, _ := repo.GetVideo(context.Background(), v.ID)
	if stored == nil {
		t.Fatal("video row not persisted")
	}
	if stored.Duration != 42 {
		t.Errorf("Duration = %f, want 42", stored.Duration)
	}
}
