package audio

import (
	"errors"
	"math"
	"testing"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	in := AudioFrame{
		Data:       [][]float32{{0, 0.5, -0.25, -1.0, 0.125, 0.9921875}},
		SampleRate: 16000,
	}

	chunk := EncodePCM16(in)
	if chunk.MIME != "audio/pcm;rate=16000" {
		t.Errorf("MIME = %q, want audio/pcm;rate=16000", chunk.MIME)
	}

	out, err := DecodePCM16(chunk.Payload, 16000, 1)
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	if out.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", out.SampleRate)
	}
	if got, want := out.SampleCount(), in.SampleCount(); got != want {
		t.Fatalf("SampleCount = %d, want %d", got, want)
	}

	const tolerance = 1.0 / 32768
	for i, want := range in.Data[0] {
		got := out.Data[0][i]
		if math.Abs(float64(got-want)) > tolerance {
			t.Errorf("sample %d: got %v, want %v (±%v)", i, got, want, tolerance)
		}
	}
}

func TestEncodeWrapsOutOfRange(t *testing.T) {
	// 1.0 rounds to 32768 which does not fit in int16; the conversion wraps
	// to -32768 rather than saturating.
	in := AudioFrame{Data: [][]float32{{1.0}}, SampleRate: 16000}

	out, err := DecodePCM16(EncodePCM16(in).Payload, 16000, 1)
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	if got := out.Data[0][0]; got != -1.0 {
		t.Errorf("wrapped sample = %v, want -1.0", got)
	}
}

func TestStereoInterleaving(t *testing.T) {
	in := AudioFrame{
		Data: [][]float32{
			{0.25, 0.5},
			{-0.25, -0.5},
		},
		SampleRate: 48000,
	}

	out, err := DecodePCM16(EncodePCM16(in).Payload, 48000, 2)
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	if out.Channels() != 2 {
		t.Fatalf("Channels = %d, want 2", out.Channels())
	}

	const tolerance = 1.0 / 32768
	for c := range in.Data {
		for s := range in.Data[c] {
			got, want := out.Data[c][s], in.Data[c][s]
			if math.Abs(float64(got-want)) > tolerance {
				t.Errorf("channel %d sample %d: got %v, want %v", c, s, got, want)
			}
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Run("bad base64", func(t *testing.T) {
		if _, err := DecodePCM16("not base64!!!", 16000, 1); err == nil {
			t.Error("expected error for malformed base64")
		}
	})

	t.Run("truncated pcm", func(t *testing.T) {
		// 6 raw bytes is not a whole number of stereo sample pairs.
		_, err := DecodePCM16("AAAAAAAA", 16000, 2)
		if err == nil {
			t.Fatal("expected error for truncated payload")
		}
		if !errors.Is(err, ErrTruncatedPCM) {
			t.Errorf("err = %v, want ErrTruncatedPCM", err)
		}
	})

	t.Run("invalid channels", func(t *testing.T) {
		if _, err := DecodePCM16("", 16000, 0); err == nil {
			t.Error("expected error for zero channels")
		}
	})
}

func TestMIMEType(t *testing.T) {
	if got := MIMEType(24000); got != "audio/pcm;rate=24000" {
		t.Errorf("MIMEType(24000) = %q", got)
	}
}
