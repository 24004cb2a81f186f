package video

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	CreateVideo(ctx context.Context, v *Video) error
	GetVideo(ctx context.Context, id string) (*Video, error)

	// MarkProcessing records the segment plan and moves the video into
	// processing. A fresh segmentation may re-enter processing from any
	// state, so this write is unconditional.
	MarkProcessing(ctx context.Context, id string, totalSegments int) error

	// SetStatusIf performs a conditional status write: the transition
	// happens only while the current status equals from. Returns whether
	// the row changed.
	SetStatusIf(ctx context.Context, id, from, to string) (bool, error)

	UpsertFrame(ctx context.Context, f *Frame) error
	ListFrames(ctx context.Context, videoID string, limit, offset int) ([]*Frame, error)
	LatestFrames(ctx context.Context, videoID string, n int) ([]*Frame, error)
	CountFrames(ctx context.Context, videoID string) (int, error)

	// MarkSegmentDone adds a segment index to the video's completed set.
	// Returns false when the index was already recorded (redelivery).
	MarkSegmentDone(ctx context.Context, videoID string, segmentIndex int) (bool, error)
	CountSegmentsDone(ctx context.Context, videoID string) (int, error)

	// ClearSegmentProgress empties the completed set ahead of a fresh
	// segmentation run.
	ClearSegmentProgress(ctx context.Context, videoID string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateVideo(ctx context.Context, v *Video) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO videos (id, title, url, status, duration, text, total_segments, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.Title, v.URL, v.Status, v.Duration, v.Text, v.TotalSegments,
		v.CreatedAt.Format(time.RFC3339), v.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetVideo(ctx context.Context, id string) (*Video, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, title, url, status, duration, text, total_segments, created_at, updated_at
		FROM videos WHERE id = ?
	`, id)

	var v Video
	var createdAt, updatedAt string
	err := row.Scan(&v.ID, &v.Title, &v.URL, &v.Status, &v.Duration, &v.Text, &v.TotalSegments, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	v.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &v, nil
}

func (r *SQLiteRepository) MarkProcessing(ctx context.Context, id string, totalSegments int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE videos SET status = ?, total_segments = ?, updated_at = datetime('now') WHERE id = ?
	`, StatusProcessing, totalSegments, id)
	return err
}

func (r *SQLiteRepository) SetStatusIf(ctx context.Context, id, from, to string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE videos SET status = ?, updated_at = datetime('now') WHERE id = ? AND status = ?
	`, to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLiteRepository) UpsertFrame(ctx context.Context, f *Frame) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO frames (id, video_id, segment_index, start_time, end_time, transcript, visual_description, embedding, frame_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id, segment_index) DO UPDATE SET
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			frame_url = excluded.frame_url,
			updated_at = excluded.updated_at
	`, f.ID, f.VideoID, f.SegmentIndex, f.StartTime, f.EndTime, f.Transcript, f.VisualDescription,
		f.Embedding, f.FrameURL, f.CreatedAt.Format(time.RFC3339), f.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) ListFrames(ctx context.Context, videoID string, limit, offset int) ([]*Frame, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, video_id, segment_index, start_time, end_time, transcript, visual_description, embedding, frame_url, created_at, updated_at
		FROM frames WHERE video_id = ? ORDER BY start_time ASC LIMIT ? OFFSET ?
	`, videoID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFrames(rows)
}

func (r *SQLiteRepository) LatestFrames(ctx context.Context, videoID string, n int) ([]*Frame, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, video_id, segment_index, start_time, end_time, transcript, visual_description, embedding, frame_url, created_at, updated_at
		FROM frames WHERE video_id = ? ORDER BY start_time DESC LIMIT ?
	`, videoID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFrames(rows)
}

func scanFrames(rows *sql.Rows) ([]*Frame, error) {
	var frames []*Frame
	for rows.Next() {
		var f Frame
		var createdAt, updatedAt string
		if err := rows.Scan(&f.ID, &f.VideoID, &f.SegmentIndex, &f.StartTime, &f.EndTime,
			&f.Transcript, &f.VisualDescription, &f.Embedding, &f.FrameURL, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		f.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		f.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		frames = append(frames, &f)
	}
	return frames, rows.Err()
}

func (r *SQLiteRepository) CountFrames(ctx context.Context, videoID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM frames WHERE video_id = ?", videoID).Scan(&count)
	return count, err
}

func (r *SQLiteRepository) MarkSegmentDone(ctx context.Context, videoID string, segmentIndex int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO segment_progress (video_id, segment_index) VALUES (?, ?)
	`, videoID, segmentIndex)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLiteRepository) CountSegmentsDone(ctx context.Context, videoID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM segment_progress WHERE video_id = ?", videoID).Scan(&count)
	return count, err
}

func (r *SQLiteRepository) ClearSegmentProgress(ctx context.Context, videoID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM segment_progress WHERE video_id = ?", videoID)
	return err
}
