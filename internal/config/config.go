// Package config provides the configuration schema and loader for the
// Voxline voice client.
package config

// LogLevel controls log verbosity for the Voxline process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Voxline.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Engine EngineConfig `yaml:"engine"`
	Audio  AudioConfig  `yaml:"audio"`
}

// ServerConfig holds logging and observability settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus /metrics endpoint listens
	// on (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// EngineConfig configures the remote speech engine connection.
type EngineConfig struct {
	// Endpoint overrides the engine's default WebSocket URL.
	// Leave empty to use the built-in default.
	Endpoint string `yaml:"endpoint"`

	// APIKeyVar names the environment variable holding the engine credential.
	APIKeyVar string `yaml:"api_key_var"`

	// VoiceProfile selects the synthesized voice (e.g., "aria").
	VoiceProfile string `yaml:"voice_profile"`

	// Persona is a free-text system prompt defining the assistant's behaviour
	// for every session.
	Persona string `yaml:"persona"`
}

// AudioConfig holds capture and playback parameters.
type AudioConfig struct {
	// InputSampleRate is the microphone capture rate in Hz.
	InputSampleRate int `yaml:"input_sample_rate"`

	// OutputSampleRate is the synthesized audio rate in Hz.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// CaptureBlock is the number of samples per encoded chunk.
	CaptureBlock int `yaml:"capture_block"`

	// QueueSize bounds how many chunks buffer while the channel is connecting.
	QueueSize int `yaml:"queue_size"`

	// InputDevice overrides the capture device name passed to the capture
	// backend. Empty selects the platform default.
	InputDevice string `yaml:"input_device"`
}
