package audio

import (
	"context"
	"time"
)

// Clock is the monotonic clock of an output device. Scheduled start times
// are expressed on this clock, not on the wall clock.
//
// Implementations must be safe for concurrent use.
type Clock interface {
	// Now returns the current position of the output clock, measured from an
	// arbitrary but fixed epoch. It never goes backwards.
	Now() time.Duration
}

// CaptureSession is an open handle on an input device. It delivers raw audio
// frames at the device's own cadence until closed.
type CaptureSession interface {
	// Frames returns the read-only channel of captured frames. Frames arrive
	// in capture order. The channel is closed when the session ends, whether
	// by Close or by device failure.
	Frames() <-chan AudioFrame

	// Close releases the input device. It is safe to call Close more than
	// once; subsequent calls are no-ops and return nil.
	Close() error
}

// CaptureDevice is the entry point for an audio input provider (a real
// microphone backend or a test fake).
//
// Implementations must be safe for concurrent use.
type CaptureDevice interface {
	// Open acquires the input device and starts delivering frames at the
	// requested sample rate. The supplied ctx governs the acquisition attempt
	// only; once open, the session remains alive until Close is called.
	//
	// Returns an error if the device cannot be acquired (permission denied,
	// no device). A failed Open must not leave partially acquired resources.
	Open(ctx context.Context, sampleRate int) (CaptureSession, error)
}

// PlaybackVoice is one in-flight buffer scheduled on an output device.
type PlaybackVoice interface {
	// Stop cancels the voice immediately, regardless of its scheduled start
	// time. Stopping an already-finished or already-stopped voice is a no-op.
	Stop()
}

// PlaybackDevice accepts buffers bound to absolute start times on its own
// [Clock] and signals the natural end of each buffer.
//
// Implementations must be safe for concurrent use.
type PlaybackDevice interface {
	// Clock returns the monotonic output clock start times are scheduled on.
	Clock() Clock

	// PlayAt schedules frame to begin at start on the device clock. The done
	// callback fires exactly once when the buffer finishes playing naturally;
	// it does not fire for voices cancelled via Stop. Implementations must
	// not invoke done synchronously from within PlayAt.
	PlayAt(frame AudioFrame, start time.Duration, done func()) (PlaybackVoice, error)
}
