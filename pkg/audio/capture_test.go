package audio_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/voxline/voxline/pkg/audio"
	"github.com/voxline/voxline/pkg/audio/mock"
)

// chunkRecorder collects emitted chunks for assertions.
type chunkRecorder struct {
	mu     sync.Mutex
	chunks []audio.EncodedChunk
}

func (r *chunkRecorder) record(c audio.EncodedChunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, c)
}

func (r *chunkRecorder) all() []audio.EncodedChunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audio.EncodedChunk, len(r.chunks))
	copy(out, r.chunks)
	return out
}

func monoFrame(rate int, samples ...float32) audio.AudioFrame {
	return audio.AudioFrame{Data: [][]float32{samples}, SampleRate: rate}
}

func TestCaptureStreamReblocks(t *testing.T) {
	device := mock.NewCaptureDevice()
	stream := audio.NewCaptureStream(device, 16000, 4)
	rec := &chunkRecorder{}

	if err := stream.Start(context.Background(), rec.record); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// 3 + 5 + 2 samples with blockSize 4: two full blocks, 2 trailing
	// samples discarded on stop.
	device.Session().Push(monoFrame(16000, 0.1, 0.2, 0.3))
	device.Session().Push(monoFrame(16000, 0.4, 0.5, 0.6, 0.7, 0.8))
	device.Session().Push(monoFrame(16000, 0.9, 1.0))
	stream.Stop()

	chunks := rec.all()
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}

	want := [][]float32{
		{0.1, 0.2, 0.3, 0.4},
		{0.5, 0.6, 0.7, 0.8},
	}
	for i, chunk := range chunks {
		frame, err := audio.DecodePCM16(chunk.Payload, 16000, 1)
		if err != nil {
			t.Fatalf("chunk %d: decode: %v", i, err)
		}
		if frame.SampleCount() != 4 {
			t.Fatalf("chunk %d: %d samples, want 4", i, frame.SampleCount())
		}
		for s, w := range want[i] {
			got := frame.Data[0][s]
			if diff := got - w; diff > 1.0/32768 || diff < -1.0/32768 {
				t.Errorf("chunk %d sample %d: got %v, want %v", i, s, got, w)
			}
		}
	}
}

func TestCaptureStreamStartErrors(t *testing.T) {
	t.Run("double start", func(t *testing.T) {
		device := mock.NewCaptureDevice()
		stream := audio.NewCaptureStream(device, 16000, 4)
		if err := stream.Start(context.Background(), func(audio.EncodedChunk) {}); err != nil {
			t.Fatalf("first Start: %v", err)
		}
		defer stream.Stop()
		if err := stream.Start(context.Background(), func(audio.EncodedChunk) {}); err == nil {
			t.Error("second Start should fail")
		}
	})

	t.Run("start after stop", func(t *testing.T) {
		device := mock.NewCaptureDevice()
		stream := audio.NewCaptureStream(device, 16000, 4)
		stream.Stop()
		if err := stream.Start(context.Background(), func(audio.EncodedChunk) {}); err == nil {
			t.Error("Start after Stop should fail")
		}
	})
}

func TestCaptureStreamOpenFailure(t *testing.T) {
	device := mock.NewCaptureDevice()
	device.OpenError = errors.New("microphone permission denied")
	stream := audio.NewCaptureStream(device, 16000, 4)

	err := stream.Start(context.Background(), func(audio.EncodedChunk) {})
	if err == nil {
		t.Fatal("Start should propagate the device error")
	}
	if device.Session() != nil {
		t.Error("no session should be acquired on open failure")
	}
}

func TestCaptureStreamStopIdempotent(t *testing.T) {
	device := mock.NewCaptureDevice()
	stream := audio.NewCaptureStream(device, 16000, 4)
	if err := stream.Start(context.Background(), func(audio.EncodedChunk) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	session := device.Session()
	stream.Stop()
	stream.Stop()

	if session.CloseCount != 1 {
		t.Errorf("CloseCount = %d, want 1 (acquire/release must be 1:1)", session.CloseCount)
	}
}
