// Package frames holds the per-frame object snapshots produced by the
// detectors and the registry that orders them into tracks.
package frames

import (
	"maps"

	"github.com/ayusman/reptrack/internal/geometry"
)

// Object types produced by the detectors.
const (
	TypePerson        = "person"
	TypeBarbellPlates = "barbell_plates"
)

// FrameObject is the state of one tracked object at one timestamp.
// It is treated as immutable once created.
type FrameObject struct {
	ID        string                       `json:"id"`
	Type      string                       `json:"type"`
	Timestamp int64                        `json:"timestamp"`
	Boundary  geometry.Box                 `json:"boundary"`
	Keypoints map[string]geometry.Position `json:"keypoints,omitempty"`
}

// NewFrameObject builds a FrameObject, copying the keypoint map.
func NewFrameObject(id, objType string, timestamp int64, boundary geometry.Box, keypoints map[string]geometry.Position) FrameObject {
	var kps map[string]geometry.Position
	if keypoints != nil {
		kps = maps.Clone(keypoints)
	}
	return FrameObject{
		ID:        id,
		Type:      objType,
		Timestamp: timestamp,
		Boundary:  boundary,
		Keypoints: kps,
	}
}

// KeypointLocation returns the named keypoint.
func (f FrameObject) KeypointLocation(name string) (geometry.Position, bool) {
	if f.Keypoints == nil {
		return geometry.Position{}, false
	}
	p, ok := f.Keypoints[name]
	return p, ok
}

// InterpolateWithNextFrame estimates the object at time at, between f and next.
// Keypoints missing from next are carried over from f unchanged.
func (f FrameObject) InterpolateWithNextFrame(next FrameObject, at int64) FrameObject {
	factor := 0.0
	if span := next.Timestamp - f.Timestamp; span != 0 {
		factor = float64(at-f.Timestamp) / float64(span)
	}

	var keypoints map[string]geometry.Position
	if f.Keypoints != nil {
		keypoints = make(map[string]geometry.Position, len(f.Keypoints))
		for name, p := range f.Keypoints {
			if q, ok := next.Keypoints[name]; ok {
				keypoints[name] = p.Interpolate(q, factor)
			} else {
				keypoints[name] = p
			}
		}
	}

	return FrameObject{
		ID:        f.ID,
		Type:      f.Type,
		Timestamp: at,
		Boundary:  f.Boundary.Interpolate(next.Boundary, factor),
		Keypoints: keypoints,
	}
}
