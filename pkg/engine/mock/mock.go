// Package mock provides scripted in-memory implementations of the
// [engine.Dialer] and [engine.Session] interfaces for use in unit tests.
//
// The mocks record every call so that tests can assert on call counts and
// arguments. Inbound traffic is driven from the test via [Session.Emit];
// the stream ends with [Session.End] (clean close) or
// [Session.EndWithError] (channel-level failure).
package mock

import (
	"context"
	"sync"

	"github.com/voxline/voxline/pkg/audio"
	"github.com/voxline/voxline/pkg/engine"
)

// Session is a scripted implementation of [engine.Session].
type Session struct {
	mu sync.Mutex

	// SendError, when non-nil, is returned by SendAudio.
	SendError error

	// SendCalls records every chunk passed to SendAudio, in call order.
	SendCalls []audio.EncodedChunk

	// CloseCount records how many times Close was called.
	CloseCount int

	msgs   chan engine.Message
	errVal error
	ended  bool
}

// NewSession creates a session whose message channel buffers up to 64
// messages.
func NewSession() *Session {
	return &Session{msgs: make(chan engine.Message, 64)}
}

// SendAudio implements [engine.Session]. Records the chunk.
func (s *Session) SendAudio(chunk audio.EncodedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendError != nil {
		return s.SendError
	}
	s.SendCalls = append(s.SendCalls, chunk)
	return nil
}

// Messages implements [engine.Session].
func (s *Session) Messages() <-chan engine.Message { return s.msgs }

// Err implements [engine.Session].
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close implements [engine.Session]. It ends the message stream cleanly,
// mirroring a server acknowledging a close request. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCount++
	ended := s.ended
	s.ended = true
	s.mu.Unlock()
	if !ended {
		close(s.msgs)
	}
	return nil
}

// Emit delivers one inbound message to the session's consumer. Emitting
// after the stream ended is a no-op.
func (s *Session) Emit(msg engine.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.msgs <- msg
}

// End simulates a server-initiated clean close.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	close(s.msgs)
}

// EndWithError simulates a channel-level failure: Err will return err and
// the message stream ends.
func (s *Session) EndWithError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.errVal = err
	s.ended = true
	close(s.msgs)
}

// SentChunks returns a copy of all chunks recorded by SendAudio.
func (s *Session) SentChunks() []audio.EncodedChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.EncodedChunk, len(s.SendCalls))
	copy(out, s.SendCalls)
	return out
}

// ─── Dialer ───────────────────────────────────────────────────────────────────

// DialCall records the configuration of a single [Dialer.Dial] invocation.
type DialCall struct {
	Config engine.SessionConfig
}

// Dialer is a scripted implementation of [engine.Dialer].
type Dialer struct {
	mu sync.Mutex

	// DialResult is the session returned by Dial.
	DialResult *Session

	// DialError, when non-nil, is returned by Dial instead of a session.
	DialError error

	// DialFunc, when non-nil, is invoked before Dial returns. It can be used
	// to drive activity that must happen while the controller is still
	// connecting (e.g. feeding capture frames into the outbound queue).
	DialFunc func(cfg engine.SessionConfig)

	// DialCalls records all Dial invocations.
	DialCalls []DialCall
}

// Dial implements [engine.Dialer].
func (d *Dialer) Dial(_ context.Context, cfg engine.SessionConfig) (engine.Session, error) {
	d.mu.Lock()
	d.DialCalls = append(d.DialCalls, DialCall{Config: cfg})
	fn := d.DialFunc
	res, err := d.DialResult, d.DialError
	d.mu.Unlock()

	if fn != nil {
		fn(cfg)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CallCount returns how many times Dial was invoked.
func (d *Dialer) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.DialCalls)
}
