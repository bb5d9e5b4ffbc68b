package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/reptrack/internal/capture"
	"github.com/ayusman/reptrack/internal/detector"
	"github.com/ayusman/reptrack/internal/frames"
	"github.com/ayusman/reptrack/internal/geometry"
	"github.com/ayusman/reptrack/internal/hook"
)

// runPipeline reads frames until the source ends or ctx is cancelled.
// Frames are processed strictly one at a time in timestamp order.
func (a *App) runPipeline(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer a.finishSession()

	readErrors := 0
	for {
		if ctx.Err() != nil {
			return
		}

		frame, err := a.config.Source.ReadFrame()
		if err != nil {
			if capture.IsEndOfStream(err) {
				log.Println("Source finished")
				return
			}
			if errors.Is(err, capture.ErrSourceNotOpen) {
				return
			}
			readErrors++
			if readErrors >= MaxReadErrors {
				log.Printf("Giving up after %d failed reads: %v", readErrors, err)
				return
			}
			log.Printf("Error reading frame: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(ReadRetryDelay):
			}
			continue
		}
		readErrors = 0

		if err := a.ProcessFrame(ctx, frame); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Error processing frame %d: %v", frame.Timestamp, err)
		}
	}
}

func (a *App) finishSession() {
	if err := a.config.Source.Close(); err != nil {
		log.Printf("Error closing source: %v", err)
	}

	id := a.SessionID()
	if a.config.Store != nil && id != "" {
		if err := a.config.Store.Sessions().End(id); err != nil {
			log.Printf("Error ending session %s: %v", id, err)
		}
	}

	a.notify(hook.EventSessionEnded, id, "", SessionSummary{
		Source:  a.config.SourceName,
		Mode:    a.config.Mode,
		Objects: a.Registry().ObjectIDs(""),
	})
}

// ProcessFrame runs one frame through the motion gate, detection or
// tracking and pose estimation, then records and publishes the observations.
func (a *App) ProcessFrame(ctx context.Context, frame *capture.Frame) error {
	following := a.config.Mode == ModeTrack && a.config.Tracker.IsTracking()
	if !a.updateMotion(frame) && !following {
		return nil
	}

	var (
		observed []observation
		err      error
	)
	switch a.config.Mode {
	case ModeTrack:
		observed, err = a.trackFrame(ctx, frame.Image)
	case ModeDetect:
		observed, err = a.detectFrame(ctx, frame.Image)
	}
	if err != nil {
		return err
	}
	if len(observed) == 0 {
		return nil
	}

	objs := make([]frames.FrameObject, 0, len(observed))
	for _, o := range observed {
		var keypoints map[string]geometry.Position
		if o.label == frames.TypePerson && a.config.Pose != nil {
			keypoints, err = a.config.Pose.Estimate(ctx, frame.Image, o.box)
			if err != nil {
				log.Printf("Pose estimation for %s failed: %v", o.id, err)
				keypoints = nil
			}
		}
		obj := frames.NewFrameObject(o.id, o.label, frame.Timestamp, o.box, keypoints)
		objs = append(objs, obj)
		a.record(obj)
	}

	if a.config.Publisher != nil {
		a.config.Publisher.Publish(Event{
			SessionID: a.SessionID(),
			Timestamp: frame.Timestamp,
			Objects:   objs,
		})
	}
	return nil
}

type observation struct {
	id    string
	label string
	box   geometry.Box
}

// updateMotion feeds the motion detector and reports whether detection
// should run. It switches between idle and active the way the camera frame
// rate does.
func (a *App) updateMotion(frame *capture.Frame) bool {
	if a.config.Motion == nil {
		return true
	}

	moved, _ := a.config.Motion.Detect(frame.Image)
	if moved {
		a.lastMotion = frame.Timestamp
		if !a.active {
			a.active = true
			a.setFPS(ActiveFPS)
			log.Println("Switched to active mode")
		}
	} else if a.active && frame.Timestamp-a.lastMotion > IdleTimeoutMs {
		a.active = false
		a.setFPS(IdleFPS)
		log.Println("Switched to idle mode")
	}
	return a.active
}

func (a *App) setFPS(fps int) {
	if cam, ok := a.config.Source.(capture.Camera); ok {
		cam.SetFPS(fps)
	}
}

// trackFrame follows one person. While no one is followed the detector
// picks the most confident person as the new target.
func (a *App) trackFrame(ctx context.Context, img *geometry.Image) ([]observation, error) {
	t := a.config.Tracker

	if t.IsTracking() {
		res, err := t.Update(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("track: %w", err)
		}
		if !res.IsTracking {
			log.Printf("Lost target %s", a.targetID)
			a.targetID = ""
			return nil, nil
		}
		if res.Detection == nil {
			return nil, nil
		}
		return []observation{{id: a.targetID, label: res.Detection.Label, box: res.Detection.Box}}, nil
	}

	dets, err := a.config.Detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	people := detector.FindPeople(dets, a.config.DetectorConfig.MinConfidence)
	if len(people) == 0 {
		return nil, nil
	}

	target := people[0]
	if err := t.Init(img, target.Box, target.Label); err != nil {
		return nil, fmt.Errorf("start tracking: %w", err)
	}
	a.targetID = fmt.Sprintf("%s-%s", target.Label, uuid.New())
	log.Printf("Tracking %s (confidence %.2f)", a.targetID, target.Confidence)

	return []observation{{id: a.targetID, label: target.Label, box: target.Box}}, nil
}

// detectFrame observes every confident detection and keeps ids stable
// across frames.
func (a *App) detectFrame(ctx context.Context, img *geometry.Image) ([]observation, error) {
	dets, err := a.config.Detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	var confident []detector.Detection
	for _, d := range dets {
		if d.Confidence >= a.config.DetectorConfig.MinConfidence {
			confident = append(confident, d)
		}
	}

	assignments := a.assigner.Assign(confident)

	observed := make([]observation, len(assignments))
	for i, as := range assignments {
		observed[i] = observation{id: as.ID, label: as.Detection.Label, box: as.Detection.Box}
	}
	return observed, nil
}

func (a *App) record(obj frames.FrameObject) {
	a.Registry().Register(obj)

	if a.config.Store == nil {
		return
	}
	if id := a.SessionID(); id != "" {
		if err := a.config.Store.FrameObjects().Save(id, obj); err != nil {
			log.Printf("Error saving %s at %d: %v", obj.ID, obj.Timestamp, err)
		}
	}
}
