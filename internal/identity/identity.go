// Package identity gives detections stable object ids across frames by
// matching them against Kalman-predicted boxes of existing tracks.
package identity

import (
	"fmt"
	"log"
	"math"
	"sort"

	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ayusman/reptrack/internal/detector"
	"github.com/ayusman/reptrack/internal/geometry"
)

// Config holds matching and filter parameters. Distances are in normalized
// image units.
type Config struct {
	// MaxMisses is how many consecutive unmatched frames a track survives.
	MaxMisses int

	// MinScore is the lowest combined score accepted as a match.
	MinScore float64

	// IoUFloor switches from IoU-weighted to distance-only scoring below it.
	IoUFloor float64

	// DistanceWeight controls how fast the distance similarity decays.
	DistanceWeight float64

	// Kalman noise parameters.
	Acceleration     float64
	MeasurementNoise float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxMisses:        30,
		MinScore:         0.3,
		IoUFloor:         0.05,
		DistanceWeight:   10,
		Acceleration:     0.01,
		MeasurementNoise: 0.005,
	}
}

// Assignment pairs a detection with the id of the track it belongs to.
type Assignment struct {
	ID        string
	Detection detector.Detection
}

// Track is a snapshot of one tracked object.
type Track struct {
	ID        string
	Label     string
	Box       geometry.Box
	Predicted geometry.Box
	Hits      int
	Misses    int
}

type track struct {
	id        string
	label     string
	box       geometry.Box
	predicted geometry.Box
	hits      int
	misses    int
	filter    *kalman_filter.KalmanBBox
	// correct feeds a measurement to filter.
	correct func(cx, cy, w, h float64) error
}

// Assigner keeps tracks between frames. It is not safe for concurrent use.
type Assigner struct {
	config Config
	tracks []*track
}

// NewAssigner creates an Assigner with no tracks.
func NewAssigner(config Config) *Assigner {
	return &Assigner{config: config}
}

// Assign matches one frame of detections to tracks and returns the id of
// every detection in input order. Unmatched detections start new tracks. A
// track whose filter rejects its match counts as unmatched for the frame.
func (a *Assigner) Assign(detections []detector.Detection) []Assignment {
	for _, t := range a.tracks {
		t.predict()
	}

	type candidate struct {
		score float64
		track int
		det   int
	}
	var candidates []candidate
	for ti, t := range a.tracks {
		for di, d := range detections {
			if d.Label != t.label {
				continue
			}
			score := a.score(t.predicted, d.Box)
			if score > a.config.MinScore {
				candidates = append(candidates, candidate{score: score, track: ti, det: di})
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	assignments := make([]Assignment, len(detections))
	trackUsed := make([]bool, len(a.tracks))
	trackFailed := make([]bool, len(a.tracks))
	detUsed := make([]bool, len(detections))
	for _, c := range candidates {
		if trackUsed[c.track] || trackFailed[c.track] || detUsed[c.det] {
			continue
		}
		t := a.tracks[c.track]
		if err := t.update(detections[c.det].Box); err != nil {
			log.Printf("Identity: %v", err)
			trackFailed[c.track] = true
			continue
		}
		trackUsed[c.track] = true
		detUsed[c.det] = true
		assignments[c.det] = Assignment{ID: t.id, Detection: detections[c.det]}
	}

	kept := a.tracks[:0]
	for ti, t := range a.tracks {
		if !trackUsed[ti] {
			t.misses++
		}
		if t.misses <= a.config.MaxMisses {
			kept = append(kept, t)
		}
	}
	a.tracks = kept

	for di, d := range detections {
		if detUsed[di] {
			continue
		}
		t := a.newTrack(d)
		a.tracks = append(a.tracks, t)
		assignments[di] = Assignment{ID: t.id, Detection: d}
	}
	return assignments
}

// Tracks returns snapshots of the live tracks.
func (a *Assigner) Tracks() []Track {
	out := make([]Track, len(a.tracks))
	for i, t := range a.tracks {
		out[i] = Track{
			ID:        t.id,
			Label:     t.label,
			Box:       t.box,
			Predicted: t.predicted,
			Hits:      t.hits,
			Misses:    t.misses,
		}
	}
	return out
}

// Reset drops every track.
func (a *Assigner) Reset() {
	a.tracks = nil
}

// score blends IoU with center distance, falling back to a down-weighted
// distance similarity when the boxes barely overlap.
func (a *Assigner) score(predicted, box geometry.Box) float64 {
	iou := predicted.IoU(box)
	distance := predicted.Center().Distance(box.Center())
	similarity := 1.0 / (1.0 + distance*a.config.DistanceWeight)
	if iou > a.config.IoUFloor {
		return iou*0.8 + similarity*0.2
	}
	return similarity * 0.5
}

func (a *Assigner) newTrack(d detector.Detection) *track {
	cx, cy := d.Box.Center().X, d.Box.Center().Y
	w, h := d.Box.Width(), d.Box.Height()
	noise := a.config.MeasurementNoise
	filter := kalman_filter.NewKalmanBBox(
		1.0, 0, 0, 0, 0,
		a.config.Acceleration, noise, noise, noise, noise,
		kalman_filter.WithStateBBox(cx, cy, w, h),
	)
	return &track{
		id:        fmt.Sprintf("%s-%s", d.Label, uuid.New()),
		label:     d.Label,
		box:       d.Box,
		predicted: d.Box,
		hits:      1,
		filter:    filter,
		correct:   filter.Update,
	}
}

func (t *track) predict() {
	t.filter.Predict()
	t.predicted = stateBox(t.filter.GetState())
}

func (t *track) update(box geometry.Box) error {
	c := box.Center()
	if err := t.correct(c.X, c.Y, box.Width(), box.Height()); err != nil {
		return errors.Wrapf(err, "can't update track %s", t.id)
	}
	t.box = box
	t.hits++
	t.misses = 0
	return nil
}

func stateBox(cx, cy, w, h float64) geometry.Box {
	w, h = math.Abs(w), math.Abs(h)
	return geometry.NewBox(cx-w/2, cy-h/2, cx+w/2, cy+h/2)
}
