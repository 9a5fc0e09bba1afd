package pose

import (
	"errors"
	"testing"
)

func fullBody(conf float64) []Keypoint {
	kps := make([]Keypoint, 0, len(AllKeypoints))
	for _, id := range AllKeypoints {
		kps = append(kps, Keypoint{ID: id, X: 0.5, Y: 0.5, Confidence: conf})
	}
	return kps
}

// TestNewFrameValid verifies that a full COCO set is indexed and retrievable.
func TestNewFrameValid(t *testing.T) {
	f, err := NewFrame(fullBody(0.9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	kp, ok := f.Get(LeftKnee)
	if !ok {
		t.Fatal("left_knee missing")
	}
	if kp.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", kp.Confidence)
	}
	if got := len(f.Keypoints()); got != 17 {
		t.Errorf("Keypoints() len = %d, want 17", got)
	}
}

// TestNewFrameRejects verifies malformed keypoint sets are rejected with ErrInvalidKeypoints.
func TestNewFrameRejects(t *testing.T) {
	tests := []struct {
		name string
		kps  []Keypoint
	}{
		{"empty", nil},
		{"unknown id", []Keypoint{{ID: "tail", X: 0.1, Y: 0.1, Confidence: 0.9}}},
		{"duplicate", []Keypoint{
			{ID: Nose, X: 0.1, Y: 0.1, Confidence: 0.9},
			{ID: Nose, X: 0.2, Y: 0.2, Confidence: 0.9},
		}},
		{"confidence above one", []Keypoint{{ID: Nose, X: 0.1, Y: 0.1, Confidence: 1.2}}},
		{"position off frame", []Keypoint{{ID: Nose, X: 1.5, Y: 0.1, Confidence: 0.9}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrame(tt.kps)
			if !errors.Is(err, ErrInvalidKeypoints) {
				t.Errorf("err = %v, want ErrInvalidKeypoints", err)
			}
		})
	}
}

// TestNewFrameUndetectedOffFrame verifies an undetected joint may carry garbage coordinates.
func TestNewFrameUndetectedOffFrame(t *testing.T) {
	_, err := NewFrame([]Keypoint{{ID: LeftAnkle, X: -1, Y: 2, Confidence: 0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestAbsentKeypoint verifies that absent landmarks report zero confidence.
func TestAbsentKeypoint(t *testing.T) {
	f, err := NewFrame([]Keypoint{{ID: Nose, X: 0.5, Y: 0.2, Confidence: 0.8}})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Get(LeftHip); ok {
		t.Error("left_hip should be absent")
	}
	if c := f.MinConfidence(Nose, LeftHip); c != 0 {
		t.Errorf("MinConfidence = %v, want 0", c)
	}
	if f.AllAbove(0.4, Nose, LeftHip) {
		t.Error("AllAbove should be false with an absent joint")
	}
}

// TestCountAbove verifies the strict threshold used for full-body detection.
func TestCountAbove(t *testing.T) {
	kps := fullBody(0.9)
	for i := 0; i < 5; i++ {
		kps[i].Confidence = 0.5
	}
	f, err := NewFrame(kps)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.CountAbove(0.5); got != 12 {
		t.Errorf("CountAbove(0.5) = %d, want 12", got)
	}
}

// TestMirror verifies left/right landmark mapping.
func TestMirror(t *testing.T) {
	if LeftHip.Mirror() != RightHip {
		t.Errorf("LeftHip.Mirror() = %s", LeftHip.Mirror())
	}
	if RightAnkle.Mirror() != LeftAnkle {
		t.Errorf("RightAnkle.Mirror() = %s", RightAnkle.Mirror())
	}
	if Nose.Mirror() != Nose {
		t.Errorf("Nose.Mirror() = %s", Nose.Mirror())
	}
}
