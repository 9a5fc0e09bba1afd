// Package pose defines the 17 COCO body keypoints and a validated per-frame
// view of them.
package pose

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidKeypoints is returned when a keypoint set cannot be used at all.
var ErrInvalidKeypoints = errors.New("invalid keypoints")

// KeypointID names one of the 17 COCO body landmarks.
type KeypointID string

const (
	Nose          KeypointID = "nose"
	LeftEye       KeypointID = "left_eye"
	RightEye      KeypointID = "right_eye"
	LeftEar       KeypointID = "left_ear"
	RightEar      KeypointID = "right_ear"
	LeftShoulder  KeypointID = "left_shoulder"
	RightShoulder KeypointID = "right_shoulder"
	LeftElbow     KeypointID = "left_elbow"
	RightElbow    KeypointID = "right_elbow"
	LeftWrist     KeypointID = "left_wrist"
	RightWrist    KeypointID = "right_wrist"
	LeftHip       KeypointID = "left_hip"
	RightHip      KeypointID = "right_hip"
	LeftKnee      KeypointID = "left_knee"
	RightKnee     KeypointID = "right_knee"
	LeftAnkle     KeypointID = "left_ankle"
	RightAnkle    KeypointID = "right_ankle"
)

// AllKeypoints lists the landmarks in COCO index order.
var AllKeypoints = [...]KeypointID{
	Nose, LeftEye, RightEye, LeftEar, RightEar,
	LeftShoulder, RightShoulder, LeftElbow, RightElbow,
	LeftWrist, RightWrist, LeftHip, RightHip,
	LeftKnee, RightKnee, LeftAnkle, RightAnkle,
}

var keypointIndex = func() map[KeypointID]int {
	m := make(map[KeypointID]int, len(AllKeypoints))
	for i, id := range AllKeypoints {
		m[id] = i
	}
	return m
}()

// Valid reports whether id is one of the 17 known landmarks.
func (id KeypointID) Valid() bool {
	_, ok := keypointIndex[id]
	return ok
}

// Mirror returns the landmark on the opposite side of the body.
// Midline landmarks (nose) map to themselves.
func (id KeypointID) Mirror() KeypointID {
	switch id {
	case LeftEye:
		return RightEye
	case RightEye:
		return LeftEye
	case LeftEar:
		return RightEar
	case RightEar:
		return LeftEar
	case LeftShoulder:
		return RightShoulder
	case RightShoulder:
		return LeftShoulder
	case LeftElbow:
		return RightElbow
	case RightElbow:
		return LeftElbow
	case LeftWrist:
		return RightWrist
	case RightWrist:
		return LeftWrist
	case LeftHip:
		return RightHip
	case RightHip:
		return LeftHip
	case LeftKnee:
		return RightKnee
	case RightKnee:
		return LeftKnee
	case LeftAnkle:
		return RightAnkle
	case RightAnkle:
		return LeftAnkle
	}
	return id
}

// Keypoint is a single detected landmark. X and Y are normalized to the frame.
type Keypoint struct {
	ID         KeypointID `json:"id"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Confidence float64    `json:"confidence"`
}

// Frame holds one person's keypoints for a single video frame, indexed by landmark.
type Frame struct {
	points  [len(AllKeypoints)]Keypoint
	present [len(AllKeypoints)]bool
}

// NewFrame validates raw keypoints and indexes them. It rejects an empty set,
// unknown or duplicated ids, and out-of-range coordinates or confidences.
func NewFrame(kps []Keypoint) (*Frame, error) {
	if len(kps) == 0 {
		return nil, fmt.Errorf("%w: no keypoints", ErrInvalidKeypoints)
	}
	if len(kps) > len(AllKeypoints) {
		return nil, fmt.Errorf("%w: %d keypoints, at most %d allowed", ErrInvalidKeypoints, len(kps), len(AllKeypoints))
	}

	f := &Frame{}
	for _, kp := range kps {
		i, ok := keypointIndex[kp.ID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown keypoint id %q", ErrInvalidKeypoints, kp.ID)
		}
		if f.present[i] {
			return nil, fmt.Errorf("%w: duplicate keypoint id %q", ErrInvalidKeypoints, kp.ID)
		}
		if !inUnit(kp.Confidence) {
			return nil, fmt.Errorf("%w: %s confidence %v outside [0,1]", ErrInvalidKeypoints, kp.ID, kp.Confidence)
		}
		// Absent joints are commonly reported at (0,0) or off-frame; only
		// confident points must carry usable coordinates.
		if kp.Confidence > 0 && (!inUnit(kp.X) || !inUnit(kp.Y)) {
			return nil, fmt.Errorf("%w: %s position (%v,%v) outside [0,1]", ErrInvalidKeypoints, kp.ID, kp.X, kp.Y)
		}
		f.points[i] = kp
		f.present[i] = true
	}
	return f, nil
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Get returns the keypoint for id. An absent landmark comes back with
// confidence 0 and ok=false.
func (f *Frame) Get(id KeypointID) (Keypoint, bool) {
	i, ok := keypointIndex[id]
	if !ok || !f.present[i] {
		return Keypoint{ID: id}, false
	}
	return f.points[i], true
}

// Confidence returns the detection confidence for id, 0 when absent.
func (f *Frame) Confidence(id KeypointID) float64 {
	kp, _ := f.Get(id)
	return kp.Confidence
}

// MinConfidence returns the lowest confidence among ids.
func (f *Frame) MinConfidence(ids ...KeypointID) float64 {
	lowest := 1.0
	for _, id := range ids {
		if c := f.Confidence(id); c < lowest {
			lowest = c
		}
	}
	return lowest
}

// AllAbove reports whether every id is detected with confidence >= floor.
func (f *Frame) AllAbove(floor float64, ids ...KeypointID) bool {
	return f.MinConfidence(ids...) >= floor
}

// CountAbove returns how many landmarks have confidence strictly above threshold.
func (f *Frame) CountAbove(threshold float64) int {
	n := 0
	for i, ok := range f.present {
		if ok && f.points[i].Confidence > threshold {
			n++
		}
	}
	return n
}

// Keypoints returns the present keypoints in COCO order.
func (f *Frame) Keypoints() []Keypoint {
	out := make([]Keypoint, 0, len(AllKeypoints))
	for i, ok := range f.present {
		if ok {
			out = append(out, f.points[i])
		}
	}
	return out
}
