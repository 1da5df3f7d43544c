package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills in defaults
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.SavePath == "" {
		return fmt.Errorf("save_path is required")
	}

	switch cfg.Backend {
	case "":
		cfg.Backend = "synthetic"
	case "synthetic", "opencv", "gstreamer":
	default:
		return fmt.Errorf("unknown backend '%s' (must be synthetic, opencv or gstreamer)", cfg.Backend)
	}

	if cfg.StatsIntervalS == 0 {
		cfg.StatsIntervalS = 30
	}
	if cfg.StatsIntervalS < 0 {
		return fmt.Errorf("stats_interval_s must be positive")
	}

	if len(cfg.Cameras) == 0 {
		return fmt.Errorf("at least one camera is required")
	}
	seen := make(map[int]bool, len(cfg.Cameras))
	for i, cam := range cfg.Cameras {
		if seen[cam.ID] {
			return fmt.Errorf("camera %d: duplicate id %d", i, cam.ID)
		}
		seen[cam.ID] = true
		if cam.Width <= 0 || cam.Height <= 0 {
			return fmt.Errorf("camera %d: resolution must be > 0, got %dx%d", cam.ID, cam.Width, cam.Height)
		}
		if cam.FPS <= 0 {
			return fmt.Errorf("camera %d: fps must be > 0", cam.ID)
		}
	}

	if cfg.Capture.QueueSize < 0 {
		return fmt.Errorf("capture.queue_size must be >= 0")
	}
	if cfg.Capture.QueueSize == 0 {
		cfg.Capture.QueueSize = 32
	}
	if cfg.Capture.MaxReadRetries == 0 {
		cfg.Capture.MaxReadRetries = 5
	}
	if cfg.Capture.RetryBackoffMS == 0 {
		cfg.Capture.RetryBackoffMS = 50
	}

	if cfg.Recording.JPEGQuality == 0 {
		cfg.Recording.JPEGQuality = 90
	}
	if cfg.Recording.JPEGQuality < 1 || cfg.Recording.JPEGQuality > 100 {
		return fmt.Errorf("recording.jpeg_quality must be 1-100, got %d", cfg.Recording.JPEGQuality)
	}
	switch cfg.Recording.Container {
	case "":
		cfg.Recording.Container = "avi"
	case "avi":
	case "mp4":
		if cfg.Backend != "opencv" {
			return fmt.Errorf("recording.container mp4 requires the opencv backend")
		}
	default:
		return fmt.Errorf("unknown recording container '%s' (must be avi or mp4)", cfg.Recording.Container)
	}

	if cfg.Display.Scale == 0 {
		cfg.Display.Scale = 0.5
	}
	if cfg.Display.Scale < 0 || cfg.Display.Scale > 1 {
		return fmt.Errorf("display.scale must be in (0,1], got %.2f", cfg.Display.Scale)
	}
	if cfg.Display.IntervalMS == 0 {
		cfg.Display.IntervalMS = 100
	}
	if (cfg.Display.Rows == 0) != (cfg.Display.Cols == 0) {
		return fmt.Errorf("display.rows and display.cols must be set together (or both 0 for auto)")
	}

	switch cfg.Snapshot.Format {
	case "":
		cfg.Snapshot.Format = "png"
	case "png", "jpeg", "jpg":
	default:
		return fmt.Errorf("unknown snapshot format '%s' (must be png or jpeg)", cfg.Snapshot.Format)
	}

	// MQTT is optional; defaults only apply when a broker is configured
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = fmt.Sprintf("camrig/status/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
		if cfg.MQTT.IntervalS <= 0 {
			cfg.MQTT.IntervalS = 5
		}
	}

	return nil
}
