// Package app wires frame sources, detection, tracking and pose estimation
// into the rep tracking pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ayusman/reptrack/internal/capture"
	"github.com/ayusman/reptrack/internal/detector"
	"github.com/ayusman/reptrack/internal/frames"
	"github.com/ayusman/reptrack/internal/hook"
	"github.com/ayusman/reptrack/internal/identity"
	"github.com/ayusman/reptrack/internal/movement"
	"github.com/ayusman/reptrack/internal/server/api"
	"github.com/ayusman/reptrack/internal/store"
	"github.com/ayusman/reptrack/internal/tracker"
)

// Pipeline timing constants.
const (
	// IdleFPS is the camera frame rate while nothing moves.
	IdleFPS = 5
	// ActiveFPS is the camera frame rate during active detection.
	ActiveFPS = 15
	// IdleTimeoutMs is how long without motion before switching back to idle mode.
	IdleTimeoutMs = 2000
	// MaxReadErrors consecutive failed reads end the session.
	MaxReadErrors = 10
	// ReadRetryDelay is the pause after a failed read.
	ReadRetryDelay = 50 * time.Millisecond
)

// Pipeline modes.
const (
	ModeTrack  = store.ModeTrack
	ModeDetect = store.ModeDetect
)

// ErrAlreadyRunning is returned by Start while a pipeline is active.
var ErrAlreadyRunning = errors.New("pipeline already running")

// Publisher receives live pipeline events.
type Publisher interface {
	Publish(v any)
}

// Notifier forwards session and rep events to external hooks.
type Notifier interface {
	Notify(ctx context.Context, event, sessionID, objectID string, payload any) error
}

// SessionSummary is sent to hooks when a session ends.
type SessionSummary struct {
	Source  string   `json:"source"`
	Mode    string   `json:"mode"`
	Objects []string `json:"objects"`
}

// RepSummary is sent to hooks after reps are counted.
type RepSummary struct {
	Keypoint1 string            `json:"keypoint1"`
	Keypoint2 string            `json:"keypoint2"`
	Reps      []store.RepRecord `json:"reps"`
}

// Event is published once per frame that produced observations.
type Event struct {
	SessionID string               `json:"session_id"`
	Timestamp int64                `json:"timestamp"`
	Objects   []frames.FrameObject `json:"objects"`
}

// Config holds the collaborators and parameters of the application.
type Config struct {
	Mode       string
	Source     capture.Source
	SourceName string

	Detector       detector.Detector
	DetectorConfig detector.Config
	// Pose is optional; without it observations carry no keypoints.
	Pose detector.PoseEstimator

	// Tracker is required in track mode.
	Tracker *tracker.Tracker

	Identity identity.Config

	// Motion gates detection while no target is followed. Nil disables gating.
	Motion *capture.MotionDetector

	// Store, Publisher and Hooks are optional.
	Store     *store.Store
	Publisher Publisher
	Hooks     Notifier
}

// App is the main application that orchestrates the capture pipeline.
type App struct {
	config   Config
	registry *frames.Registry
	assigner *identity.Assigner

	mu        sync.RWMutex
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}

	// Pipeline state, owned by the pipeline goroutine.
	targetID   string
	active     bool
	lastMotion int64
}

// New creates a new App instance with the given configuration.
func New(config Config) (*App, error) {
	switch config.Mode {
	case ModeTrack:
		if config.Tracker == nil {
			return nil, fmt.Errorf("track mode needs a tracker")
		}
	case ModeDetect:
	default:
		return nil, fmt.Errorf("unknown mode %q", config.Mode)
	}
	if config.Source == nil {
		return nil, fmt.Errorf("no frame source")
	}
	if config.Detector == nil {
		return nil, fmt.Errorf("no detector")
	}

	return &App{
		config:   config,
		registry: frames.NewRegistry(),
		assigner: identity.NewAssigner(config.Identity),
	}, nil
}

// Start opens the source, records a new session and runs the pipeline in
// the background until the source ends or Stop is called.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.done != nil {
		select {
		case <-a.done:
			a.cancel()
		default:
			return ErrAlreadyRunning
		}
	}

	if err := a.config.Source.Open(); err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	if cam, ok := a.config.Source.(capture.Camera); ok {
		cam.SetFPS(IdleFPS)
	}

	a.sessionID = ""
	if a.config.Store != nil {
		sess, err := a.config.Store.Sessions().Create(a.config.SourceName, a.config.Mode)
		if err != nil {
			a.config.Source.Close()
			return fmt.Errorf("create session: %w", err)
		}
		a.sessionID = sess.ID
	}

	a.registry = frames.NewRegistry()
	a.assigner.Reset()
	a.targetID = ""
	a.active = a.config.Motion == nil
	a.lastMotion = 0

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.runPipeline(runCtx, a.done)

	log.Printf("Pipeline started in %s mode", a.config.Mode)
	return nil
}

// Wait blocks until the running pipeline finishes.
func (a *App) Wait() {
	a.mu.RLock()
	done := a.done
	a.mu.RUnlock()
	if done != nil {
		<-done
	}
}

// Stop halts the pipeline, waits for the current frame to finish and
// releases the source.
func (a *App) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	a.mu.Lock()
	a.cancel = nil
	a.done = nil
	a.mu.Unlock()

	log.Println("Pipeline stopped")
}

// Close stops the pipeline and releases the models.
func (a *App) Close() error {
	a.Stop()

	var errs []error
	if err := a.config.Detector.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close detector: %w", err))
	}
	if a.config.Pose != nil {
		if err := a.config.Pose.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pose estimator: %w", err))
		}
	}
	if a.config.Tracker != nil {
		if err := a.config.Tracker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close tracker: %w", err))
		}
	}
	if a.config.Motion != nil {
		a.config.Motion.Close()
	}
	return errors.Join(errs...)
}

// SetPublisher replaces the live event publisher. Call it before Start.
func (a *App) SetPublisher(p Publisher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.config.Publisher = p
}

// SessionID returns the id of the current or last session.
func (a *App) SessionID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sessionID
}

// Registry returns the observations of the current or last session.
func (a *App) Registry() *frames.Registry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.registry
}

// Analyze counts the reps of one object. Live sessions are read from
// memory, older ones from the store. Results are stored when a store is
// configured.
func (a *App) Analyze(req api.AnalyzeRequest) ([]store.RepRecord, error) {
	objs, err := a.track(req.SessionID, req.ObjectID)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, fmt.Errorf("%w: %s", api.ErrUnknownObject, req.ObjectID)
	}

	reps, err := movement.Reps(objs, req.Keypoint1, req.Keypoint2, req.Options)
	if err != nil {
		return nil, fmt.Errorf("count reps: %w", err)
	}

	consistency := movement.RepConsistency(objs, req.Keypoint1, req.Keypoint2, reps)
	records := make([]store.RepRecord, len(reps))
	for i, rep := range reps {
		records[i] = store.RepRecord{
			Index:       i,
			Keypoint1:   req.Keypoint1,
			Keypoint2:   req.Keypoint2,
			StartMs:     rep.StartFrame.Timestamp,
			MiddleMs:    rep.MiddleFrame.Timestamp,
			EndMs:       rep.EndFrame.Timestamp,
			Consistency: consistency[i],
		}
	}

	if a.config.Store != nil && req.SessionID != "" {
		if err := a.config.Store.Reps().Replace(req.SessionID, req.ObjectID, records); err != nil {
			return nil, fmt.Errorf("store reps: %w", err)
		}
	}
	log.Printf("Counted %d reps for %s", len(records), req.ObjectID)

	a.notify(hook.EventRepsCounted, req.SessionID, req.ObjectID, RepSummary{
		Keypoint1: req.Keypoint1,
		Keypoint2: req.Keypoint2,
		Reps:      records,
	})
	return records, nil
}

func (a *App) notify(event, sessionID, objectID string, payload any) {
	if a.config.Hooks == nil {
		return
	}
	if err := a.config.Hooks.Notify(context.Background(), event, sessionID, objectID, payload); err != nil {
		log.Printf("Hook %s: %v", event, err)
	}
}

func (a *App) track(sessionID, objectID string) ([]frames.FrameObject, error) {
	a.mu.RLock()
	live := sessionID == a.sessionID
	registry := a.registry
	a.mu.RUnlock()

	if live {
		if objs := registry.FrameObjects(objectID); len(objs) > 0 {
			return objs, nil
		}
	}
	if a.config.Store == nil || sessionID == "" {
		return nil, nil
	}
	return a.config.Store.FrameObjects().ListByObject(sessionID, objectID)
}
