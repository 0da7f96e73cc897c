// Command voxline is a terminal client for realtime voice conversations with
// a remote speech engine: it streams the microphone up and plays synthesized
// answers back, printing the transcript as it grows.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxline/voxline/internal/config"
	"github.com/voxline/voxline/internal/credentials"
	"github.com/voxline/voxline/internal/observe"
	"github.com/voxline/voxline/internal/session"
	"github.com/voxline/voxline/pkg/audio/pipeline"
	"github.com/voxline/voxline/pkg/engine/realtime"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "voxline.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Run with documented defaults when no config file is present.
			cfg = &config.Config{}
			config.ApplyDefaults(cfg)
		} else {
			fmt.Fprintf(os.Stderr, "voxline: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("voxline starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
		"voice_profile", cfg.Engine.VoiceProfile,
	)

	// ── Metrics ───────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider()
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Engine and devices ────────────────────────────────────────────────────
	creds := credentials.NewEnvPrompt(cfg.Engine.APIKeyVar)

	var dialOpts []realtime.Option
	if cfg.Engine.Endpoint != "" {
		dialOpts = append(dialOpts, realtime.WithEndpoint(cfg.Engine.Endpoint))
	}
	dialOpts = append(dialOpts, realtime.WithCredentialSource(creds.Credential))
	dialer := realtime.New("", dialOpts...)

	captureDev := &pipeline.FFmpegCapture{Device: cfg.Audio.InputDevice}
	playbackDev := pipeline.NewFFplayPlayback(cfg.Audio.OutputSampleRate)
	defer playbackDev.Close()

	ctl, err := session.New(session.Config{
		Engine:            dialer,
		Credentials:       creds,
		CaptureDevice:     captureDev,
		PlaybackDevice:    playbackDev,
		VoiceProfileID:    cfg.Engine.VoiceProfile,
		SystemPersona:     cfg.Engine.Persona,
		InputSampleRate:   cfg.Audio.InputSampleRate,
		OutputSampleRate:  cfg.Audio.OutputSampleRate,
		CaptureBlockSize:  cfg.Audio.CaptureBlock,
		OutboundQueueSize: cfg.Audio.QueueSize,
		Metrics:           metrics,
	})
	if err != nil {
		slog.Error("failed to build session controller", "err", err)
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)

	// ── Metrics endpoint (optional) ───────────────────────────────────────────
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
		g.Go(func() error {
			slog.Info("metrics endpoint listening", "addr", cfg.Server.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	// ── Session ───────────────────────────────────────────────────────────────
	g.Go(func() error {
		if err := ctl.Connect(gctx); err != nil {
			return err
		}
		slog.Info("talking to the engine — press Ctrl+C to hang up")
		<-gctx.Done()
		return nil
	})

	err = g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down")
	ctl.Disconnect()
	ctl.Wait()

	printTranscript(ctl)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := shutdownMetrics(shutdownCtx); serr != nil {
		slog.Warn("metrics provider shutdown error", "err", serr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("session error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// printTranscript writes the finalized conversation to stdout, one line per
// turn.
func printTranscript(ctl *session.Controller) {
	records := ctl.Transcript()
	if len(records) == 0 {
		return
	}
	fmt.Println("--- transcript ---")
	for _, r := range records {
		fmt.Printf("[%s] %s\n", r.Role, r.Text)
	}
}
