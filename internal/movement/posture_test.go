package movement

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ayusman/reptrack/internal/frames"
	"github.com/ayusman/reptrack/internal/geometry"
)

func pose(kps map[string][2]float64) frames.FrameObject {
	m := make(map[string]geometry.Position, len(kps))
	for k, v := range kps {
		m[k] = geometry.NewPosition(v[0], v[1])
	}
	return frames.NewFrameObject("p", frames.TypePerson, 0, geometry.NewBox(0, 0, 1, 1), m)
}

func standingFacingLeft() frames.FrameObject {
	return pose(map[string][2]float64{
		frames.Nose:          {0.4, 0.1},
		frames.LeftShoulder:  {0.5, 0.3},
		frames.RightShoulder: {0.5, 0.3},
		frames.LeftHip:       {0.5, 0.5},
		frames.RightHip:      {0.5, 0.5},
		frames.LeftKnee:      {0.5, 0.7},
		frames.RightKnee:     {0.5, 0.7},
	})
}

func lyingFacingUp() frames.FrameObject {
	return pose(map[string][2]float64{
		frames.LeftShoulder:  {0.2, 0.6},
		frames.RightShoulder: {0.2, 0.6},
		frames.LeftHip:       {0.5, 0.6},
		frames.RightHip:      {0.5, 0.6},
		frames.LeftKnee:      {0.8, 0.6},
		frames.RightKnee:     {0.8, 0.6},
		frames.LeftWrist:     {0.2, 0.2},
		frames.RightWrist:    {0.2, 0.2},
	})
}

func TestPersonMostlyStanding(t *testing.T) {
	assert.True(t, PersonMostlyStanding([]frames.FrameObject{standingFacingLeft()}))
	assert.False(t, PersonMostlyStanding([]frames.FrameObject{lyingFacingUp()}))
}

func TestPersonMostlyFacing(t *testing.T) {
	tests := []struct {
		name  string
		track []frames.FrameObject
		want  Facing
	}{
		{name: "standing left", track: []frames.FrameObject{standingFacingLeft()}, want: FacingLeft},
		{name: "lying up", track: []frames.FrameObject{lyingFacingUp()}, want: FacingUp},
		{name: "no keypoints", track: []frames.FrameObject{pose(nil)}, want: FacingUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PersonMostlyFacing(tt.track))
		})
	}
}

func TestAverageKeypointLocation(t *testing.T) {
	track := []frames.FrameObject{
		pose(map[string][2]float64{frames.Nose: {0.2, 0.4}}),
		pose(map[string][2]float64{frames.Nose: {0.4, 0.6}}),
		pose(nil),
	}

	avg, ok := AverageKeypointLocation(track, frames.Nose)
	assert.True(t, ok)
	assert.InDelta(t, 0.3, avg.X, 1e-12)
	assert.InDelta(t, 0.5, avg.Y, 1e-12)

	_, ok = AverageKeypointLocation(track, frames.LeftToe)
	assert.False(t, ok)
}

func TestAngleBetweenKeypoints(t *testing.T) {
	obj := pose(map[string][2]float64{
		frames.LeftHip:  {0.2, 0.2},
		frames.LeftKnee: {0.4, 0.4},
	})

	angle, ok := AngleBetweenKeypoints(obj, frames.LeftHip, frames.LeftKnee)
	assert.True(t, ok)
	assert.InDelta(t, 45, angle, 1e-9)

	_, ok = AngleBetweenKeypoints(obj, frames.LeftHip, frames.Nose)
	assert.False(t, ok)
}
