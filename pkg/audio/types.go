package audio

import "time"

// AudioFrame is a block of floating-point audio samples flowing through the
// pipeline. Frames are produced by capture hardware or decoded from the wire
// and consumed exactly once: by the codec on the way out, or by the playback
// scheduler on the way in. A frame is owned by the stage currently processing
// it and handed off, not copied.
type AudioFrame struct {
	// Data holds one sample slice per channel. Samples are nominally in
	// [-1.0, 1.0]; out-of-range values are passed through unmodified (the
	// codec wraps rather than saturates, see EncodePCM16).
	Data [][]float32

	// SampleRate in Hz (e.g., 16000 for capture, 24000 for playback).
	SampleRate int
}

// Channels returns the number of channels in the frame.
func (f AudioFrame) Channels() int {
	return len(f.Data)
}

// SampleCount returns the per-channel sample count. Zero for an empty frame.
func (f AudioFrame) SampleCount() int {
	if len(f.Data) == 0 {
		return 0
	}
	return len(f.Data[0])
}

// Duration returns the playback duration of the frame at its sample rate.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(f.SampleCount()) * int64(time.Second) / int64(f.SampleRate))
}
