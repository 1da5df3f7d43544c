package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	camrig "github.com/e7canasta/camrig"
	"github.com/e7canasta/camrig/gstreamer"
	"github.com/e7canasta/camrig/internal/config"
	"github.com/e7canasta/camrig/internal/emitter"
	"github.com/e7canasta/camrig/opencv"
)

const defaultConfigPath = "config/camrig.yaml"

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup structured logger
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting camrig service",
		"config", *configPath,
		"debug", *debug,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctrl, err := buildController(cfg)
	if err != nil {
		slog.Error("failed to create controller", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Partial failures are tolerated: cameras that cannot open are parked
	// in the error state and the rest keep capturing.
	if err := ctrl.Start(ctx); err != nil {
		slog.Warn("some cameras failed to start", "error", err)
	}
	if capturingCount(ctrl) == 0 {
		slog.Error("no camera is capturing, nothing to do")
		ctrl.Close()
		os.Exit(1)
	}

	if cfg.Recording.AutoStart {
		toggleRecording(ctrl)
	}

	go statsLoop(ctx, ctrl, time.Duration(cfg.StatsIntervalS)*time.Second)

	// Optional MQTT status publishing
	var em *emitter.MQTTEmitter
	if cfg.MQTT.Broker != "" {
		clientID := fmt.Sprintf("camrigd-%s", cfg.InstanceID)
		em = emitter.NewMQTTEmitter(cfg.MQTT.Broker, clientID, cfg.MQTT.Topic, cfg.MQTT.QoS)
		if err := em.Connect(); err != nil {
			slog.Warn("mqtt unavailable, continuing without status publishing", "error", err)
			em = nil
		} else {
			interval := time.Duration(cfg.MQTT.IntervalS) * time.Second
			go publishLoop(ctx, em, ctrl, cfg.InstanceID, interval)
		}
	}

	// Composed live view: an on-screen window, a persisted preview JPEG,
	// or both.
	var win *opencv.Window
	var sinks []camrig.FrameSink
	if cfg.Display.Enabled {
		win = opencv.NewWindow(fmt.Sprintf("camrig %s", cfg.InstanceID))
		sinks = append(sinks, win)
	}
	if cfg.Display.PreviewPath != "" {
		sinks = append(sinks, previewSink(cfg.Display.PreviewPath, cfg.Recording.JPEGQuality))
	}

	displayDone := make(chan struct{})
	if len(sinks) > 0 {
		view := camrig.View{
			Layout:   camrig.Layout{Rows: cfg.Display.Rows, Cols: cfg.Display.Cols},
			Scale:    cfg.Display.Scale,
			Interval: time.Duration(cfg.Display.IntervalMS) * time.Millisecond,
			Sink:     fanOut(sinks),
		}
		go func() {
			defer close(displayDone)
			if err := ctrl.Visualize(ctx, view); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("display loop ended", "error", err)
			}
		}()
	} else {
		close(displayDone)
	}

	// Setup signal handling: SIGUSR1 takes a snapshot, SIGUSR2 toggles
	// recording, SIGINT/SIGTERM shut down.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	slog.Info("camrig service ready",
		"instance", cfg.InstanceID,
		"backend", cfg.Backend,
		"cameras", len(cfg.Cameras),
	)

loop:
	for {
		sig := <-sigChan
		switch sig {
		case syscall.SIGUSR1:
			takeSnapshot(ctrl)
		case syscall.SIGUSR2:
			toggleRecording(ctrl)
		default:
			slog.Info("received shutdown signal", "signal", sig)
			break loop
		}
	}

	// Graceful shutdown: stop the display first, then close the controller
	// so any active recording is flushed and finalized.
	cancel()
	<-displayDone

	if err := ctrl.Close(); err != nil {
		slog.Error("shutdown finished with errors", "error", err)
	}
	if em != nil {
		em.Disconnect()
	}
	if win != nil {
		if err := win.Close(); err != nil {
			slog.Warn("failed to close display window", "error", err)
		}
	}

	slog.Info("camrig service stopped successfully")
}

// buildController assembles the device provider, camera set and options
// from the loaded configuration.
func buildController(cfg *config.Config) (*camrig.Controller, error) {
	provider, err := newProvider(cfg.Backend)
	if err != nil {
		return nil, err
	}

	cameras := make([]camrig.CameraConfig, 0, len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		cameras = append(cameras, camrig.CameraConfig{
			ID:     cam.ID,
			Width:  cam.Width,
			Height: cam.Height,
			FPS:    cam.FPS,
		})
	}

	opts := camrig.Options{
		SavePath:         cfg.SavePath,
		SnapshotFormat:   cfg.Snapshot.Format,
		JPEGQuality:      cfg.Recording.JPEGQuality,
		QueueSize:        cfg.Capture.QueueSize,
		MaxReadRetries:   cfg.Capture.MaxReadRetries,
		ReadRetryBackoff: time.Duration(cfg.Capture.RetryBackoffMS) * time.Millisecond,
	}
	if cfg.Backend == "opencv" {
		if cfg.Recording.Container == "mp4" {
			opts.Encoder = opencv.WriterProvider{Codec: "mp4v", Extension: "mp4"}
		} else {
			opts.Encoder = opencv.WriterProvider{}
		}
		opts.Resizer = opencv.Resizer{}
	} else {
		opts.Encoder = camrig.MJPEGProvider{Quality: cfg.Recording.JPEGQuality}
	}

	return camrig.NewController(provider, cameras, opts)
}

func newProvider(backend string) (camrig.DeviceProvider, error) {
	switch backend {
	case "synthetic":
		return camrig.SyntheticProvider{}, nil
	case "opencv":
		return opencv.Provider{}, nil
	case "gstreamer":
		return gstreamer.Provider{}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// previewSink persists each composite to path, overwriting in place. Write
// failures are logged, not fatal: a full disk must not kill the live view.
func previewSink(path string, jpegQuality int) camrig.FrameSink {
	return camrig.FrameSinkFunc(func(f camrig.Frame) error {
		if err := camrig.SaveFrame(path, f, "jpeg", jpegQuality); err != nil {
			slog.Warn("preview write failed", "path", path, "error", err)
		}
		return nil
	})
}

func fanOut(sinks []camrig.FrameSink) camrig.FrameSink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return camrig.FrameSinkFunc(func(f camrig.Frame) error {
		for _, s := range sinks {
			if err := s.Display(f); err != nil {
				return err
			}
		}
		return nil
	})
}

func capturingCount(ctrl *camrig.Controller) int {
	n := 0
	for _, st := range ctrl.Status() {
		if st.State == camrig.StateCapturing || st.State == camrig.StateRecording {
			n++
		}
	}
	return n
}

func takeSnapshot(ctrl *camrig.Controller) {
	base := fmt.Sprintf("snapshot_%s", time.Now().Format("20060102_150405"))
	if err := ctrl.Snapshot(base); err != nil {
		slog.Error("snapshot failed", "error", err)
		return
	}
	slog.Info("snapshot written", "base", base)
}

// toggleRecording stops the active session if one is running, otherwise
// starts a new one named after the current time.
func toggleRecording(ctrl *camrig.Controller) {
	summary, err := ctrl.StopRecording()
	if summary != nil || err != nil {
		if err != nil {
			slog.Error("recording stopped with errors", "error", err)
		}
		if summary != nil {
			var frames, dropped uint64
			for _, res := range summary.Cameras {
				frames += res.Frames
				dropped += res.Dropped
			}
			slog.Info("recording stopped",
				"session", summary.Name,
				"duration", summary.Duration.Round(time.Millisecond),
				"cameras", len(summary.Cameras),
				"frames", frames,
				"dropped", dropped,
			)
		}
		return
	}

	name := fmt.Sprintf("session_%s", time.Now().Format("20060102_150405"))
	info, err := ctrl.StartRecording(name)
	if err != nil {
		slog.Error("failed to start recording", "error", err)
		return
	}
	slog.Info("recording started",
		"session", info.Name,
		"id", info.ID,
		"cameras", len(info.Cameras),
		"skipped", len(info.Skipped),
	)
}

func statsLoop(ctx context.Context, ctrl *camrig.Controller, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, st := range ctrl.Status() {
				if st.Err != "" {
					slog.Warn("camera status",
						"camera", st.CameraID,
						"state", st.State,
						"error", st.Err,
					)
					continue
				}
				slog.Info("camera status",
					"camera", st.CameraID,
					"state", st.State,
					"fps", st.FPS,
					"frames", st.FrameCount,
					"recording", st.Recording,
					"dropped", st.Dropped,
				)
			}
		}
	}
}

func publishLoop(ctx context.Context, em *emitter.MQTTEmitter, ctrl *camrig.Controller, instance string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := em.Publish(statusReport(instance, ctrl.Status())); err != nil {
				slog.Warn("status publish failed", "error", err)
			}
		}
	}
}

func statusReport(instance string, statuses []camrig.Status) emitter.Report {
	report := emitter.Report{
		Instance:  instance,
		Timestamp: time.Now(),
	}
	for _, st := range statuses {
		report.Cameras = append(report.Cameras, emitter.CameraStatus{
			ID:        st.CameraID,
			State:     st.State.String(),
			FPS:       st.FPS,
			Frames:    st.FrameCount,
			Recording: st.Recording,
			Dropped:   st.Dropped,
			Err:       st.Err,
		})
	}
	return report
}
