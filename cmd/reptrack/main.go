package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ayusman/reptrack/internal/app"
	"github.com/ayusman/reptrack/internal/capture"
	"github.com/ayusman/reptrack/internal/config"
	"github.com/ayusman/reptrack/internal/detector"
	"github.com/ayusman/reptrack/internal/hook"
	"github.com/ayusman/reptrack/internal/inference"
	"github.com/ayusman/reptrack/internal/server"
	"github.com/ayusman/reptrack/internal/server/api"
	"github.com/ayusman/reptrack/internal/store"
	"github.com/ayusman/reptrack/internal/tracker"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	video := flag.String("video", "", "video file to process instead of the camera")
	addr := flag.String("addr", "", "HTTP listen address")
	mode := flag.String("mode", "", "pipeline mode (track or detect)")
	flag.Parse()

	fmt.Println("Reptrack - Exercise Rep Tracking")

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *video != "" {
		cfg.Source.Video = *video
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize the store
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	a, err := newApp(cfg, st)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	defer a.Close()

	// Configure and start server
	hub := server.NewHub()
	a.SetPublisher(hub)

	webDir := findWebDir()
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}
	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		Analyzer:  a,
		RepDefaults: api.AnalyzeRequest{
			Keypoint1: cfg.Reps.Keypoint1,
			Keypoint2: cfg.Reps.Keypoint2,
			Options:   cfg.RepOptions(),
		},
		Hub: hub,
	})
	httpServer := &http.Server{Addr: cfg.Server.Addr, Handler: srv}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		log.Fatalf("Failed to start pipeline: %v", err)
	}

	go func() {
		fmt.Printf("Starting server on %s\n", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
}

// newApp builds the frame source and the model-backed stages from cfg.
func newApp(cfg *config.Config, st *store.Store) (*app.App, error) {
	var (
		source     capture.Source
		sourceName string
	)
	if cfg.Source.Video != "" {
		source = capture.NewVideoFile(cfg.Source.Video)
		sourceName = cfg.Source.Video
	} else {
		source = capture.NewCamera(cfg.Source.Device)
		sourceName = fmt.Sprintf("camera:%d", cfg.Source.Device)
	}

	detSession, err := inference.NewProcessSession(cfg.ProcessConfig(cfg.Models.Detector))
	if err != nil {
		return nil, fmt.Errorf("detector model: %w", err)
	}
	poseSession, err := inference.NewProcessSession(cfg.ProcessConfig(cfg.Models.Pose))
	if err != nil {
		detSession.Close()
		return nil, fmt.Errorf("pose model: %w", err)
	}

	appCfg := app.Config{
		Mode:           cfg.Mode,
		Source:         source,
		SourceName:     sourceName,
		Detector:       detector.NewYOLOXDetector(detSession, cfg.DetectorConfig()),
		DetectorConfig: cfg.DetectorConfig(),
		Pose:           detector.NewRTMPoseEstimator(poseSession, cfg.PoseConfig()),
		Identity:       cfg.IdentityConfig(),
		Store:          st,
	}

	if cfg.Mode == config.ModeTrack {
		trackSession, err := inference.NewProcessSession(cfg.ProcessConfig(cfg.Models.Tracker))
		if err != nil {
			detSession.Close()
			poseSession.Close()
			return nil, fmt.Errorf("tracker model: %w", err)
		}
		appCfg.Tracker = tracker.New(trackSession, cfg.TrackerConfig())
	}

	if cfg.Motion.Enabled {
		appCfg.Motion = capture.NewMotionDetector(cfg.Motion.Threshold)
	}

	hooks := hook.NewManager(cfg.Hooks.Dir)
	if err := hooks.Discover(); err != nil {
		log.Printf("Hook discovery failed: %v", err)
	} else if n := len(hooks.List()); n > 0 {
		log.Printf("Loaded %d hooks from %s", n, hooks.Dir())
	}
	appCfg.Hooks = hook.NewDispatcher(hooks, hook.NewExecutor(cfg.GetHookTimeout()))

	log.Printf("Source %s, mode %s", sourceName, cfg.Mode)
	return app.New(appCfg)
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.reptrack/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".reptrack", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
