// Package mock provides in-memory fakes of the [audio.CaptureDevice],
// [audio.PlaybackDevice], and [audio.Clock] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so that tests
// can assert on call counts and arguments, and they expose exported fields
// the test can set to control return values.
//
// Typical usage:
//
//	device := mock.NewCaptureDevice()
//	stream := audio.NewCaptureStream(device, 16000, 3200)
//	err := stream.Start(ctx, onChunk)
//	device.Session().Push(frame) // feed synthetic capture frames
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/voxline/voxline/pkg/audio"
)

// ─── Clock ────────────────────────────────────────────────────────────────────

// Clock is a manually advanced [audio.Clock] for deterministic scheduling
// tests.
type Clock struct {
	mu  sync.Mutex
	now time.Duration
}

// Now implements [audio.Clock].
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Set moves the clock to an absolute position. The clock never goes
// backwards; Set with an earlier position is ignored.
func (c *Clock) Set(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > c.now {
		c.now = d
	}
}

// ─── CaptureDevice ────────────────────────────────────────────────────────────

// CaptureSession is the fake input session handed out by [CaptureDevice].
// Feed frames with [CaptureSession.Push]; end the stream with Close.
type CaptureSession struct {
	mu         sync.Mutex
	frames     chan audio.AudioFrame
	closed     bool
	CloseCount int
}

// Frames implements [audio.CaptureSession].
func (s *CaptureSession) Frames() <-chan audio.AudioFrame { return s.frames }

// Close implements [audio.CaptureSession]. Closing twice is a no-op.
func (s *CaptureSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return nil
}

// Push delivers a synthetic capture frame. Frames pushed after Close are
// silently dropped.
func (s *CaptureSession) Push(frame audio.AudioFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.frames <- frame
}

// CaptureDevice is a mock implementation of [audio.CaptureDevice].
type CaptureDevice struct {
	mu sync.Mutex

	// OpenError, when non-nil, is returned by Open instead of a session.
	OpenError error

	// OpenCalls records the sample rate of each Open invocation.
	OpenCalls []int

	session *CaptureSession
}

// NewCaptureDevice creates a capture device whose sessions buffer up to 64
// pushed frames.
func NewCaptureDevice() *CaptureDevice {
	return &CaptureDevice{}
}

// Open implements [audio.CaptureDevice].
func (d *CaptureDevice) Open(_ context.Context, sampleRate int) (audio.CaptureSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCalls = append(d.OpenCalls, sampleRate)
	if d.OpenError != nil {
		return nil, d.OpenError
	}
	d.session = &CaptureSession{frames: make(chan audio.AudioFrame, 64)}
	return d.session, nil
}

// Session returns the most recently opened session, or nil if Open has not
// succeeded yet.
func (d *CaptureDevice) Session() *CaptureSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

// ─── PlaybackDevice ───────────────────────────────────────────────────────────

// Voice records one PlayAt invocation and implements [audio.PlaybackVoice].
// Tests drive natural end-of-playback with [Voice.Finish].
type Voice struct {
	// Frame is the frame passed to PlayAt.
	Frame audio.AudioFrame

	// Start is the scheduled start time passed to PlayAt.
	Start time.Duration

	mu       sync.Mutex
	done     func()
	stopped  bool
	finished bool
}

// Stop implements [audio.PlaybackVoice].
func (v *Voice) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopped = true
}

// Stopped reports whether Stop has been called.
func (v *Voice) Stopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}

// Finish simulates the device reaching the natural end of this buffer and
// fires the done callback. Finishing a stopped or already-finished voice is
// a no-op, matching real device semantics.
func (v *Voice) Finish() {
	v.mu.Lock()
	if v.stopped || v.finished {
		v.mu.Unlock()
		return
	}
	v.finished = true
	done := v.done
	v.mu.Unlock()
	if done != nil {
		done()
	}
}

// PlaybackDevice is a mock implementation of [audio.PlaybackDevice] driven by
// a manual [Clock].
type PlaybackDevice struct {
	mu sync.Mutex

	// PlayError, when non-nil, is returned by PlayAt.
	PlayError error

	// Voices records every PlayAt invocation in call order.
	Voices []*Voice

	clock *Clock
}

// NewPlaybackDevice creates a playback device with a fresh manual clock.
func NewPlaybackDevice() *PlaybackDevice {
	return &PlaybackDevice{clock: &Clock{}}
}

// Clock implements [audio.PlaybackDevice]. The returned clock is the mock's
// manual clock; advance it from the test.
func (d *PlaybackDevice) Clock() audio.Clock { return d.clock }

// ManualClock returns the manual clock for direct test control.
func (d *PlaybackDevice) ManualClock() *Clock { return d.clock }

// PlayAt implements [audio.PlaybackDevice]. The done callback is stored on
// the returned [Voice] and fired only via [Voice.Finish].
func (d *PlaybackDevice) PlayAt(frame audio.AudioFrame, start time.Duration, done func()) (audio.PlaybackVoice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.PlayError != nil {
		return nil, d.PlayError
	}
	v := &Voice{Frame: frame, Start: start, done: done}
	d.Voices = append(d.Voices, v)
	return v, nil
}

// VoiceCount returns how many buffers have been scheduled so far.
func (d *PlaybackDevice) VoiceCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Voices)
}

// Voice returns the i-th scheduled voice.
func (d *PlaybackDevice) Voice(i int) *Voice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Voices[i]
}
