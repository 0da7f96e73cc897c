package config

import (
	"strings"
	"testing"

	"log/slog"
)

func TestLoadFromReaderFull(t *testing.T) {
	yaml := `
server:
  log_level: debug
  metrics_addr: ":9090"
engine:
  endpoint: wss://example.test/v1/session
  api_key_var: MY_KEY
  voice_profile: aria
  persona: "be brief"
audio:
  input_sample_rate: 8000
  output_sample_rate: 48000
  capture_block: 2048
  queue_size: 16
  input_device: "pulse:1"
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Server.MetricsAddr != ":9090" {
		t.Errorf("metrics_addr = %q", cfg.Server.MetricsAddr)
	}
	if cfg.Engine.Endpoint != "wss://example.test/v1/session" {
		t.Errorf("endpoint = %q", cfg.Engine.Endpoint)
	}
	if cfg.Engine.APIKeyVar != "MY_KEY" {
		t.Errorf("api_key_var = %q", cfg.Engine.APIKeyVar)
	}
	if cfg.Audio.InputSampleRate != 8000 || cfg.Audio.OutputSampleRate != 48000 {
		t.Errorf("sample rates = %d/%d", cfg.Audio.InputSampleRate, cfg.Audio.OutputSampleRate)
	}
	if cfg.Audio.CaptureBlock != 2048 || cfg.Audio.QueueSize != 16 {
		t.Errorf("capture_block/queue_size = %d/%d", cfg.Audio.CaptureBlock, cfg.Audio.QueueSize)
	}
	if cfg.Audio.InputDevice != "pulse:1" {
		t.Errorf("input_device = %q", cfg.Audio.InputDevice)
	}
}

func TestLoadFromReaderDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("engine:\n  voice_profile: aria\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("default log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Engine.APIKeyVar != DefaultAPIKeyVar {
		t.Errorf("default api_key_var = %q, want %q", cfg.Engine.APIKeyVar, DefaultAPIKeyVar)
	}
	if cfg.Audio.InputSampleRate != 16000 || cfg.Audio.OutputSampleRate != 24000 {
		t.Errorf("default rates = %d/%d, want 16000/24000", cfg.Audio.InputSampleRate, cfg.Audio.OutputSampleRate)
	}
	if cfg.Audio.CaptureBlock != 4096 || cfg.Audio.QueueSize != 64 {
		t.Errorf("default capture_block/queue_size = %d/%d", cfg.Audio.CaptureBlock, cfg.Audio.QueueSize)
	}
}

func TestLoadFromReaderUnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  listen_port: 8080\n"))
	if err == nil {
		t.Fatal("unknown fields must be rejected")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad log level",
			yaml: "server:\n  log_level: verbose\n",
			want: "log_level",
		},
		{
			name: "negative sample rate",
			yaml: "audio:\n  input_sample_rate: -1\n",
			want: "input_sample_rate",
		},
		{
			name: "negative queue size",
			yaml: "audio:\n  queue_size: -5\n",
			want: "queue_size",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  slog.Level
	}{
		{LogDebug, slog.LevelDebug},
		{LogInfo, slog.LevelInfo},
		{LogWarn, slog.LevelWarn},
		{LogError, slog.LevelError},
		{LogLevel(""), slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := tc.level.SlogLevel(); got != tc.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tc.level, got, tc.want)
		}
	}
}
