package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Handle represents one in-flight scheduled output buffer. It is owned by the
// [Scheduler] from creation until its natural end event or a forced stop.
type Handle struct {
	start    time.Duration
	duration time.Duration
	voice    PlaybackVoice
	live     atomic.Bool
}

// StartTime returns the scheduled start time on the output clock.
func (h *Handle) StartTime() time.Duration { return h.start }

// Duration returns the buffer's playback duration.
func (h *Handle) Duration() time.Duration { return h.duration }

// Live reports whether the buffer is still in the scheduler's active set.
func (h *Handle) Live() bool { return h.live.Load() }

// Scheduler plays decoded frames gap-free and overlap-free against the output
// device's monotonic clock. It keeps a running next-start-time cursor and an
// active set of in-flight [Handle] values so that a barge-in can cut all
// pending audio at once.
//
// Schedule and Reset may be called from different goroutines (inbound-message
// dispatch vs. interruption handling); the cursor and active set are the only
// shared state and are guarded by one mutex.
type Scheduler struct {
	device PlaybackDevice
	clock  Clock
	onIdle func()

	mu     sync.Mutex
	cursor time.Duration
	active map[*Handle]struct{}
}

// NewScheduler creates a scheduler bound to device. onIdle, if non-nil, is
// invoked (outside the scheduler lock) each time the active set drains to
// empty through natural end-of-playback, the "assistant finished talking"
// signal. It is not invoked by [Scheduler.Reset].
func NewScheduler(device PlaybackDevice, onIdle func()) *Scheduler {
	return &Scheduler{
		device: device,
		clock:  device.Clock(),
		onIdle: onIdle,
		active: make(map[*Handle]struct{}),
	}
}

// Schedule queues frame for playback at max(cursor, now) and advances the
// cursor by the frame's duration. Frames scheduled in call order never
// overlap; when frames arrive at least as fast as real time they play with
// no audible gap. If delivery lags, the next frame simply starts at now;
// there is no resync or compensation.
func (s *Scheduler) Schedule(frame AudioFrame) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.cursor
	if now := s.clock.Now(); now > start {
		start = now
	}

	h := &Handle{start: start, duration: frame.Duration()}
	voice, err := s.device.PlayAt(frame, start, func() { s.finish(h) })
	if err != nil {
		return nil, fmt.Errorf("audio: schedule playback: %w", err)
	}
	h.voice = voice
	h.live.Store(true)

	s.active[h] = struct{}{}
	s.cursor = start + h.duration
	return h, nil
}

// Reset stops every tracked handle, clears the active set, and rewinds the
// cursor to the clock's current time. Used on interruption; a subsequent
// Schedule starts no earlier than now. Reset does not fire the onIdle
// callback; an interrupted assistant did not finish talking.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	stopped := make([]*Handle, 0, len(s.active))
	for h := range s.active {
		h.live.Store(false)
		stopped = append(stopped, h)
	}
	s.active = make(map[*Handle]struct{})
	s.cursor = s.clock.Now()
	s.mu.Unlock()

	for _, h := range stopped {
		h.voice.Stop()
	}
	if len(stopped) > 0 {
		slog.Debug("playback reset", "stopped", len(stopped))
	}
}

// IsActive reports whether any scheduled buffer is still in flight.
func (s *Scheduler) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) > 0
}

// finish is the device's end-of-playback callback. Handles already evicted
// by Reset are ignored so a racing natural end cannot double-fire onIdle.
func (s *Scheduler) finish(h *Handle) {
	s.mu.Lock()
	if _, ok := s.active[h]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.active, h)
	h.live.Store(false)
	idle := len(s.active) == 0
	onIdle := s.onIdle
	s.mu.Unlock()

	if idle && onIdle != nil {
		onIdle()
	}
}
