// Package config loads the reptrack JSON configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cast"

	"github.com/ayusman/reptrack/internal/detector"
	"github.com/ayusman/reptrack/internal/frames"
	"github.com/ayusman/reptrack/internal/geometry"
	"github.com/ayusman/reptrack/internal/identity"
	"github.com/ayusman/reptrack/internal/inference"
	"github.com/ayusman/reptrack/internal/movement"
	"github.com/ayusman/reptrack/internal/tracker"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Pipeline modes.
const (
	ModeTrack  = "track"
	ModeDetect = "detect"
)

// Pose input normalizations.
const (
	PoseNormCLIP     = "clip"
	PoseNormImageNet = "imagenet"
)

// Config is the full application configuration.
type Config struct {
	Mode     string         `json:"mode"`
	Source   SourceConfig   `json:"source"`
	Server   ServerConfig   `json:"server"`
	Store    StoreConfig    `json:"store"`
	Models   ModelsConfig   `json:"models"`
	Motion   MotionConfig   `json:"motion"`
	Tracker  TrackerConfig  `json:"tracker"`
	Detector DetectorConfig `json:"detector"`
	Identity IdentityConfig `json:"identity"`
	Reps     RepsConfig     `json:"reps"`
	Hooks    HooksConfig    `json:"hooks"`
}

// SourceConfig selects the frame source. A non-empty Video wins over Device.
type SourceConfig struct {
	Device int    `json:"device"`
	Video  string `json:"video"`
	FPS    int    `json:"fps"`
}

type ServerConfig struct {
	Addr string `json:"addr"`
}

type StoreConfig struct {
	Path string `json:"path"`
}

// ModelsConfig locates the model files and the service that runs them.
type ModelsConfig struct {
	Command     []string `json:"command,omitempty"`
	Tracker     string   `json:"tracker"`
	Detector    string   `json:"detector"`
	Pose        string   `json:"pose"`
	PoseNorm    string   `json:"pose_norm"`
	IdleTimeout string   `json:"idle_timeout"` // duration string like "5m"
}

type MotionConfig struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold"`
}

type TrackerConfig struct {
	MinConfidence          float64 `json:"min_confidence"`
	MaxConsecutiveFailures int     `json:"max_consecutive_failures"`
	UpdateInterval         int     `json:"update_interval"`
	SearchFactor           float64 `json:"search_factor"`
	Margin                 float64 `json:"margin"`
}

type DetectorConfig struct {
	MinConfidence float64  `json:"min_confidence"`
	Classes       []string `json:"classes"`
}

type IdentityConfig struct {
	MaxMisses int     `json:"max_misses"`
	MinScore  float64 `json:"min_score"`
}

// RepsConfig holds the default rep analysis settings.
type RepsConfig struct {
	Keypoint1         string  `json:"keypoint1"`
	Keypoint2         string  `json:"keypoint2"`
	KeypointsContract bool    `json:"keypoints_contract"`
	Threshold         float64 `json:"threshold"`
	Smoothing         float64 `json:"smoothing"`
}

// HooksConfig locates the external event hooks.
type HooksConfig struct {
	Dir     string `json:"dir"`
	Timeout string `json:"timeout"` // duration string like "10s"
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	tc := tracker.DefaultConfig()
	dc := detector.DefaultConfig()
	ic := identity.DefaultConfig()
	rc := movement.DefaultRepOptions()

	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".reptrack")

	return &Config{
		Mode:   ModeTrack,
		Source: SourceConfig{Device: 0, FPS: 15},
		Server: ServerConfig{Addr: ":8080"},
		Store:  StoreConfig{Path: filepath.Join(dataDir, "reptrack.db")},
		Models: ModelsConfig{
			Tracker:     filepath.Join(dataDir, "models", "mixformer.onnx"),
			Detector:    filepath.Join(dataDir, "models", "yolox.onnx"),
			Pose:        filepath.Join(dataDir, "models", "rtmpose.onnx"),
			PoseNorm:    PoseNormCLIP,
			IdleTimeout: "5m",
		},
		Motion: MotionConfig{Enabled: true, Threshold: 1.0},
		Tracker: TrackerConfig{
			MinConfidence:          tc.MinConfidence,
			MaxConsecutiveFailures: tc.MaxConsecutiveFailures,
			UpdateInterval:         tc.UpdateInterval,
			SearchFactor:           tc.SearchFactor,
			Margin:                 tc.Margin,
		},
		Detector: DetectorConfig{
			MinConfidence: dc.MinConfidence,
			Classes:       dc.Classes,
		},
		Identity: IdentityConfig{
			MaxMisses: ic.MaxMisses,
			MinScore:  ic.MinScore,
		},
		Reps: RepsConfig{
			Keypoint1:         frames.LeftHip,
			Keypoint2:         frames.LeftAnkle,
			KeypointsContract: rc.KeypointsContract,
			Threshold:         rc.Threshold,
			Smoothing:         rc.Smoothing,
		},
		Hooks: HooksConfig{
			Dir:     filepath.Join(dataDir, "hooks"),
			Timeout: "10s",
		},
	}
}

// Load reads a Config from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file keep their default values.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.Mode != ModeTrack && c.Mode != ModeDetect {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeTrack, ModeDetect, c.Mode)
	}
	if c.Source.FPS <= 0 {
		return fmt.Errorf("source.fps must be positive, got %d", c.Source.FPS)
	}
	if c.Source.Video == "" && c.Source.Device < 0 {
		return fmt.Errorf("source.device must be non-negative, got %d", c.Source.Device)
	}
	if c.Models.IdleTimeout != "" {
		if _, err := cast.ToDurationE(c.Models.IdleTimeout); err != nil {
			return fmt.Errorf("invalid models.idle_timeout '%s': %w", c.Models.IdleTimeout, err)
		}
	}
	if c.Models.PoseNorm != PoseNormCLIP && c.Models.PoseNorm != PoseNormImageNet {
		return fmt.Errorf("models.pose_norm must be %q or %q, got %q", PoseNormCLIP, PoseNormImageNet, c.Models.PoseNorm)
	}
	if c.Hooks.Timeout != "" {
		if d, err := cast.ToDurationE(c.Hooks.Timeout); err != nil || d <= 0 {
			return fmt.Errorf("invalid hooks.timeout '%s'", c.Hooks.Timeout)
		}
	}
	if c.Motion.Threshold < 0 || c.Motion.Threshold > 100 {
		return fmt.Errorf("motion.threshold must be between 0 and 100, got %f", c.Motion.Threshold)
	}
	if c.Tracker.MinConfidence < 0 || c.Tracker.MinConfidence > 1 {
		return fmt.Errorf("tracker.min_confidence must be between 0 and 1, got %f", c.Tracker.MinConfidence)
	}
	if c.Tracker.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("tracker.max_consecutive_failures must be at least 1, got %d", c.Tracker.MaxConsecutiveFailures)
	}
	if c.Tracker.UpdateInterval < 1 {
		return fmt.Errorf("tracker.update_interval must be at least 1, got %d", c.Tracker.UpdateInterval)
	}
	if c.Tracker.SearchFactor <= 0 {
		return fmt.Errorf("tracker.search_factor must be positive, got %f", c.Tracker.SearchFactor)
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		return fmt.Errorf("detector.min_confidence must be between 0 and 1, got %f", c.Detector.MinConfidence)
	}
	if len(c.Detector.Classes) == 0 {
		return fmt.Errorf("detector.classes must not be empty")
	}
	if c.Identity.MaxMisses < 0 {
		return fmt.Errorf("identity.max_misses must be non-negative, got %d", c.Identity.MaxMisses)
	}
	if !frames.IsKeypoint(c.Reps.Keypoint1) {
		return fmt.Errorf("reps.keypoint1 %q is not a known keypoint", c.Reps.Keypoint1)
	}
	if !frames.IsKeypoint(c.Reps.Keypoint2) {
		return fmt.Errorf("reps.keypoint2 %q is not a known keypoint", c.Reps.Keypoint2)
	}
	if c.Reps.Threshold < 0 || c.Reps.Smoothing < 0 {
		return fmt.Errorf("reps.threshold and reps.smoothing must be non-negative")
	}
	return nil
}

// GetIdleTimeout returns the model service idle timeout, 5m when unset.
func (c *Config) GetIdleTimeout() time.Duration {
	d, err := cast.ToDurationE(c.Models.IdleTimeout)
	if err != nil || c.Models.IdleTimeout == "" {
		return 5 * time.Minute
	}
	return d
}

// GetHookTimeout returns the per-hook run limit, 10s when unset.
func (c *Config) GetHookTimeout() time.Duration {
	d, err := cast.ToDurationE(c.Hooks.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// TrackerConfig returns the tracker parameters with file overrides applied.
func (c *Config) TrackerConfig() tracker.Config {
	tc := tracker.DefaultConfig()
	tc.MinConfidence = c.Tracker.MinConfidence
	tc.MaxConsecutiveFailures = c.Tracker.MaxConsecutiveFailures
	tc.UpdateInterval = c.Tracker.UpdateInterval
	tc.SearchFactor = c.Tracker.SearchFactor
	tc.Margin = c.Tracker.Margin
	return tc
}

// DetectorConfig returns the detector parameters with file overrides applied.
func (c *Config) DetectorConfig() detector.Config {
	dc := detector.DefaultConfig()
	dc.MinConfidence = c.Detector.MinConfidence
	dc.Classes = c.Detector.Classes
	return dc
}

// PoseConfig returns the pose estimator parameters for the configured normalization.
func (c *Config) PoseConfig() detector.PoseConfig {
	pc := detector.DefaultPoseConfig()
	if c.Models.PoseNorm == PoseNormImageNet {
		pc.Mean, pc.Std = geometry.ImageNetMean, geometry.ImageNetStd
	}
	return pc
}

// IdentityConfig returns the association parameters with file overrides applied.
func (c *Config) IdentityConfig() identity.Config {
	ic := identity.DefaultConfig()
	ic.MaxMisses = c.Identity.MaxMisses
	ic.MinScore = c.Identity.MinScore
	return ic
}

// RepOptions returns the default rep analysis options.
func (c *Config) RepOptions() movement.RepOptions {
	opts := movement.DefaultRepOptions()
	opts.KeypointsContract = c.Reps.KeypointsContract
	opts.Threshold = c.Reps.Threshold
	opts.Smoothing = c.Reps.Smoothing
	return opts
}

// ProcessConfig returns the model service settings for one model file.
func (c *Config) ProcessConfig(model string) inference.ProcessConfig {
	return inference.ProcessConfig{
		Command:     c.Models.Command,
		Model:       model,
		IdleTimeout: c.GetIdleTimeout(),
	}
}
