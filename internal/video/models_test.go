package video

import (
	"math"
	"testing"
)

func TestPlanSegments(t *testing.T) {
	tests := []struct {
		name            string
		duration        float64
		segmentDuration float64
		wantTotal       int
	}{
		{"even split", 10, 5, 2},
		{"truncated tail", 12, 5, 3},
		{"single short video", 3, 5, 1},
		{"exact one segment", 5, 5, 1},
		{"long video", 3600, 5, 720},
		{"fractional duration", 12.5, 5, 3},
		{"zero duration", 0, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments := PlanSegments(tt.duration, tt.segmentDuration)
			if len(segments) != tt.wantTotal {
				t.Fatalf("len(segments) = %d, want %d", len(segments), tt.wantTotal)
			}
			if tt.wantTotal == 0 {
				return
			}
			for i, seg := range segments {
				if seg.Index != i {
					t.Errorf("segment %d has index %d", i, seg.Index)
				}
				wantStart := float64(i) * tt.segmentDuration
				if seg.StartTime != wantStart {
					t.Errorf("segment %d start = %f, want %f", i, seg.StartTime, wantStart)
				}
				wantEnd := math.Min(float64(i+1)*tt.segmentDuration, tt.duration)
				if seg.EndTime != wantEnd {
					t.Errorf("segment %d end = %f, want %f", i, seg.EndTime, wantEnd)
				}
			}
			last := segments[len(segments)-1]
			if last.EndTime != tt.duration {
				t.Errorf("last segment end = %f, want %f", last.EndTime, tt.duration)
			}
		})
	}
}

func TestSegmentCount_MatchesCeil(t *testing.T) {
	for _, d := range []float64{0.5, 1, 4.99, 5, 5.01, 12, 59, 60, 61, 3599.5} {
		for _, s := range []float64{1, 2, 5, 30, 60} {
			want := int(math.Ceil(d / s))
			if got := SegmentCount(d, s); got != want {
				t.Errorf("SegmentCount(%f, %f) = %d, want %d", d, s, got, want)
			}
		}
	}
}

func TestClampSegmentDuration(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, DefaultSegmentDuration},
		{0.5, MinSegmentDuration},
		{1, 1},
		{5, 5},
		{60, 60},
		{61, MaxSegmentDuration},
		{1000, MaxSegmentDuration},
	}
	for _, tt := range tests {
		if got := ClampSegmentDuration(tt.in); got != tt.want {
			t.Errorf("ClampSegmentDuration(%f) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

func TestFrameID_Deterministic(t *testing.T) {
	if FrameID("v1", 3) != FrameID("v1", 3) {
		t.Error("FrameID is not deterministic")
	}
	if FrameID("v1", 3) == FrameID("v1", 4) {
		t.Error("FrameID does not vary by segment index")
	}
	if FrameID("v1", 3) != "v1_segment_3" {
		t.Errorf("FrameID = %s, want v1_segment_3", FrameID("v1", 3))
	}
}

func TestBlobKeys(t *testing.T) {
	if got := SourceKey("v1"); got != "v1.mp4" {
		t.Errorf("SourceKey = %s, want v1.mp4", got)
	}
	if got := FrameKey("v1", "v1_segment_0"); got != "v1/v1_segment_0.jpg" {
		t.Errorf("FrameKey = %s, want v1/v1_segment_0.jpg", got)
	}
}
