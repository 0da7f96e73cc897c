// Package audio provides the realtime audio primitives for Voxline: the
// [AudioFrame] sample type, the PCM16/base64 wire codec, the [CaptureStream]
// that feeds microphone blocks to a session, and the [Scheduler] that plays
// synthesized speech gap-free against a monotonic output clock.
//
// Device access is abstracted behind the narrow [CaptureDevice],
// [PlaybackDevice], and [Clock] interfaces so that everything above the
// hardware boundary is testable with fake devices and synthetic clocks.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// EncodedChunk is a transport-safe encoding of one block of PCM16 audio.
// It exists only for the duration of a single send or receive call.
type EncodedChunk struct {
	// Payload is the base64-encoded little-endian 16-bit PCM data.
	Payload string

	// MIME identifies the format and sample rate, e.g. "audio/pcm;rate=16000".
	MIME string
}

// ErrTruncatedPCM is returned by [DecodePCM16] when the decoded byte length
// is not a whole number of samples for the given channel count.
var ErrTruncatedPCM = errors.New("audio: pcm payload is not a whole number of samples")

// MIMEType returns the MIME-style format tag for PCM16 at the given rate.
func MIMEType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// EncodePCM16 converts a frame to little-endian 16-bit PCM, interleaving
// channels, and wraps the result in base64 for text transport.
//
// Each float sample s maps to round(s * 32768). There is deliberately no
// clamping: a sample outside [-1.0, 1.0] wraps around rather than saturating.
// Capture hardware never produces out-of-range samples, so wraparound is
// only reachable through synthetic input.
func EncodePCM16(frame AudioFrame) EncodedChunk {
	samples := frame.SampleCount()
	channels := frame.Channels()
	buf := make([]byte, samples*channels*2)

	i := 0
	for s := 0; s < samples; s++ {
		for c := 0; c < channels; c++ {
			// Convert via int32 so that out-of-range values wrap
			// deterministically instead of hitting the undefined
			// float-to-int16 overflow conversion.
			v := int16(int32(math.Round(float64(frame.Data[c][s]) * 32768)))
			binary.LittleEndian.PutUint16(buf[i:], uint16(v))
			i += 2
		}
	}

	return EncodedChunk{
		Payload: base64.StdEncoding.EncodeToString(buf),
		MIME:    MIMEType(frame.SampleRate),
	}
}

// DecodePCM16 is the inverse of [EncodePCM16]: it base64-decodes payload,
// reinterprets the bytes as little-endian int16 samples, maps them back to
// floating range by dividing by 32768, and de-interleaves into one sample
// slice per channel.
//
// Returns an error for malformed base64 or a byte count that is not a whole
// number of per-channel samples. Callers treating inbound messages leniently
// should drop the chunk on error rather than fail the session.
func DecodePCM16(payload string, sampleRate, channels int) (AudioFrame, error) {
	if channels <= 0 {
		return AudioFrame{}, fmt.Errorf("audio: invalid channel count %d", channels)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return AudioFrame{}, fmt.Errorf("audio: decode base64 payload: %w", err)
	}
	if len(raw)%(2*channels) != 0 {
		return AudioFrame{}, ErrTruncatedPCM
	}

	samples := len(raw) / (2 * channels)
	data := make([][]float32, channels)
	for c := range data {
		data[c] = make([]float32, samples)
	}

	i := 0
	for s := 0; s < samples; s++ {
		for c := 0; c < channels; c++ {
			v := int16(binary.LittleEndian.Uint16(raw[i:]))
			data[c][s] = float32(v) / 32768
			i += 2
		}
	}

	return AudioFrame{Data: data, SampleRate: sampleRate}, nil
}
