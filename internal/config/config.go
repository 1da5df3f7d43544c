// Package config loads and validates the camrigd YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete camrigd configuration
type Config struct {
	InstanceID     string          `yaml:"instance_id"`
	SavePath       string          `yaml:"save_path"`
	Backend        string          `yaml:"backend"`          // synthetic, opencv, gstreamer
	StatsIntervalS int             `yaml:"stats_interval_s"` // status log cadence in seconds (default: 30)
	Cameras        []CameraConfig  `yaml:"cameras"`
	Capture        CaptureConfig   `yaml:"capture"`
	Recording      RecordingConfig `yaml:"recording"`
	Display        DisplayConfig   `yaml:"display"`
	Snapshot       SnapshotConfig  `yaml:"snapshot"`
	MQTT           MQTTConfig      `yaml:"mqtt"`
}

// CameraConfig describes one capture device
type CameraConfig struct {
	ID     int     `yaml:"id"`
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	FPS    float64 `yaml:"fps"`
}

// CaptureConfig tunes the capture loops
type CaptureConfig struct {
	QueueSize      int `yaml:"queue_size"`       // recording queue capacity (default: 32)
	MaxReadRetries int `yaml:"max_read_retries"` // consecutive read failures tolerated (default: 5)
	RetryBackoffMS int `yaml:"retry_backoff_ms"` // pause between read retries (default: 50)
}

// RecordingConfig tunes the recording encoders
type RecordingConfig struct {
	Container   string `yaml:"container"`    // avi (pure Go) or mp4 (opencv backend only, default: avi)
	JPEGQuality int    `yaml:"jpeg_quality"` // MJPEG quality 1-100 (default: 90)
	AutoStart   bool   `yaml:"auto_start"`   // begin a recording session at startup
}

// DisplayConfig controls the composed live view
type DisplayConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Rows        int     `yaml:"rows"` // 0 = auto layout
	Cols        int     `yaml:"cols"` // 0 = auto layout
	Scale       float64 `yaml:"scale"`
	IntervalMS  int     `yaml:"interval_ms"`
	PreviewPath string  `yaml:"preview_path"` // persist the latest composite as JPEG (optional)
}

// SnapshotConfig controls on-demand still captures
type SnapshotConfig struct {
	Format string `yaml:"format"` // png, jpeg
}

// MQTTConfig contains the optional status broker settings
type MQTTConfig struct {
	Broker    string `yaml:"broker"` // empty disables MQTT
	Topic     string `yaml:"topic"`
	QoS       byte   `yaml:"qos"`
	IntervalS int    `yaml:"interval_s"` // status publish cadence in seconds
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
