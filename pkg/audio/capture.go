package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ChunkFunc receives encoded capture blocks in capture order. It is invoked
// from the stream's pump goroutine and must not block for longer than one
// block's duration, or capture will fall behind the device.
type ChunkFunc func(EncodedChunk)

// CaptureStream owns the microphone input path: it acquires a [CaptureDevice]
// session, re-blocks the device's frames into fixed-size sample blocks,
// encodes each block as PCM16/base64, and hands it to the registered
// [ChunkFunc].
//
// All exported methods are safe for concurrent use.
type CaptureStream struct {
	device     CaptureDevice
	sampleRate int
	blockSize  int

	mu      sync.Mutex
	session CaptureSession
	stopped bool
	wg      sync.WaitGroup
}

// NewCaptureStream creates a stream that captures at sampleRate and emits
// blocks of blockSize samples. A blockSize of a few thousand samples keeps
// chunk latency in the 100–300ms range at typical capture rates.
func NewCaptureStream(device CaptureDevice, sampleRate, blockSize int) *CaptureStream {
	return &CaptureStream{
		device:     device,
		sampleRate: sampleRate,
		blockSize:  blockSize,
	}
}

// Start acquires the input device and begins delivering encoded blocks to
// onChunk. Device-acquisition failure propagates synchronously and leaves no
// partially acquired resources behind.
//
// Returns an error if the stream is already started or was already stopped.
func (c *CaptureStream) Start(ctx context.Context, onChunk ChunkFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return fmt.Errorf("audio: capture stream already started")
	}
	if c.stopped {
		return fmt.Errorf("audio: capture stream already stopped")
	}

	session, err := c.device.Open(ctx, c.sampleRate)
	if err != nil {
		return fmt.Errorf("audio: open capture device: %w", err)
	}
	c.session = session

	c.wg.Add(1)
	go c.pump(session.Frames(), onChunk)

	slog.Debug("capture stream started",
		"sample_rate", c.sampleRate,
		"block_size", c.blockSize,
	)
	return nil
}

// Stop releases the input device and waits for the pump goroutine to drain.
// Stopping an already-stopped stream is a no-op.
func (c *CaptureStream) Stop() {
	c.mu.Lock()
	session := c.session
	alreadyStopped := c.stopped
	c.session = nil
	c.stopped = true
	c.mu.Unlock()

	if alreadyStopped || session == nil {
		if session != nil {
			_ = session.Close()
		}
		return
	}

	if err := session.Close(); err != nil {
		slog.Warn("capture stream: device close error", "err", err)
	}
	c.wg.Wait()
	slog.Debug("capture stream stopped")
}

// pump re-blocks device frames into fixed blockSize chunks. It exits when the
// device session's frame channel closes. Blocks are emitted strictly in
// capture order; a trailing partial block is discarded on shutdown.
func (c *CaptureStream) pump(frames <-chan AudioFrame, onChunk ChunkFunc) {
	defer c.wg.Done()

	block := make([]float32, 0, c.blockSize)
	for frame := range frames {
		if frame.Channels() == 0 {
			continue
		}
		// Capture is mono on the wire; multi-channel devices contribute
		// their first channel.
		samples := frame.Data[0]
		for len(samples) > 0 {
			n := c.blockSize - len(block)
			if n > len(samples) {
				n = len(samples)
			}
			block = append(block, samples[:n]...)
			samples = samples[n:]

			if len(block) == c.blockSize {
				onChunk(EncodePCM16(AudioFrame{
					Data:       [][]float32{block},
					SampleRate: c.sampleRate,
				}))
				block = make([]float32, 0, c.blockSize)
			}
		}
	}
}
