package pipeline

import (
	"encoding/binary"
	"os/exec"
	"testing"
	"time"

	"github.com/voxline/voxline/pkg/audio"
)

func TestFailedWriteStillSignalsDone(t *testing.T) {
	p := NewFFplayPlayback(24000)
	// Simulate a player that died after startup: the command handle exists
	// but its stdin is gone, so every write fails.
	p.cmd = &exec.Cmd{}

	frame := audio.AudioFrame{
		Data:       [][]float32{make([]float32, 240)},
		SampleRate: 24000,
	}
	done := make(chan struct{})
	if _, err := p.PlayAt(frame, 0, func() { close(done) }); err != nil {
		t.Fatalf("PlayAt: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("done never fired after the write failed")
	}
}

func TestPCM16BytesConversion(t *testing.T) {
	frame := audio.AudioFrame{
		Data:       [][]float32{{0, 0.5, -1.0}},
		SampleRate: 24000,
	}
	out := pcm16Bytes(frame)
	if len(out) != 6 {
		t.Fatalf("len = %d, want 6", len(out))
	}
	want := []int16{0, 16384, -32768}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(out[i*2:]))
		if got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}
