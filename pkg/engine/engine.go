// Package engine defines the abstract bidirectional message channel between
// Voxline and a remote conversational speech engine.
//
// The engine consumes a continuous stream of encoded microphone audio and
// produces a multiplexed stream of synthesized audio, transcription deltas
// for both speakers, turn boundaries, and barge-in (interruption) signals.
// The two primary abstractions are:
//
//   - [Dialer] opens a configured [Session] on the remote engine.
//   - [Session] is one live bidirectional channel, valid until Close or a
//     channel-level failure.
//
// Concrete transports live in subpackages (engine/realtime for the WebSocket
// wire protocol, engine/mock for tests). The interfaces are intentionally
// narrow so the session controller stays decoupled from transport details.
//
// Implementations must be safe for concurrent use.
package engine

import (
	"context"

	"github.com/voxline/voxline/pkg/audio"
)

// Role identifies the speaker a transcription fragment belongs to.
type Role string

const (
	// RoleUser marks transcription of the local speaker's microphone audio.
	RoleUser Role = "user"

	// RoleAssistant marks transcription of the engine's synthesized speech.
	RoleAssistant Role = "assistant"
)

// MessageKind discriminates the inbound message union.
type MessageKind int

const (
	// KindTranscription carries a text delta for one role.
	KindTranscription MessageKind = iota

	// KindTurnComplete marks the end of a conversational turn.
	KindTurnComplete

	// KindAudio carries a base64 PCM16 fragment of synthesized speech.
	KindAudio

	// KindInterrupted signals that the user barged in while assistant audio
	// was still playing; all pending playback must be cancelled.
	KindInterrupted
)

// String returns the human-readable name of the message kind.
func (k MessageKind) String() string {
	switch k {
	case KindTranscription:
		return "TRANSCRIPTION"
	case KindTurnComplete:
		return "TURN_COMPLETE"
	case KindAudio:
		return "AUDIO"
	case KindInterrupted:
		return "INTERRUPTED"
	default:
		return "UNKNOWN"
	}
}

// Message is one inbound engine message. Kind selects which fields are
// meaningful: Role and TextDelta for transcriptions, AudioPayload for audio.
type Message struct {
	Kind MessageKind

	// Role is the speaker for KindTranscription messages.
	Role Role

	// TextDelta is the transcription fragment for KindTranscription messages.
	TextDelta string

	// AudioPayload is the base64-encoded PCM16 data for KindAudio messages.
	AudioPayload string
}

// SessionConfig is the configuration record sent when opening a session.
type SessionConfig struct {
	// VoiceProfileID selects the synthesized voice.
	VoiceProfileID string

	// ResponseModality is the requested output form. Voxline always requests
	// "audio".
	ResponseModality string

	// InputTranscription enables transcription of user microphone audio.
	InputTranscription bool

	// OutputTranscription enables transcription of synthesized speech.
	OutputTranscription bool

	// SystemPersona is the fixed system prompt defining the assistant's
	// behaviour for the session.
	SystemPersona string
}

// Session is one open channel to the remote engine.
//
// The session is the hot path of the audio pipeline, so every method must
// return quickly. Callers must call Close when the session is no longer
// needed and must drain Messages promptly to avoid stalling the transport's
// receive loop.
type Session interface {
	// SendAudio delivers one encoded microphone chunk to the engine.
	// Returns an error if the session is closed or the transport fails.
	SendAudio(chunk audio.EncodedChunk) error

	// Messages returns the read-only channel of inbound messages, delivered
	// in arrival order. The channel is closed when the session ends, whether by
	// Close, by a server-initiated close, or by a channel-level error. After
	// it closes, call Err to distinguish a clean close from a failure.
	Messages() <-chan Message

	// Err returns the channel-level error that terminated the session, or
	// nil if it ended cleanly (local or server-initiated close).
	Err() error

	// Close requests the channel to shut down. Safe to call more than once;
	// subsequent calls are no-ops and return nil.
	Close() error
}

// Dialer opens sessions on a remote engine.
type Dialer interface {
	// Dial establishes a session with the given configuration. The supplied
	// ctx governs the connection attempt only; once open, the session lives
	// until Close. The caller owns the session.
	Dial(ctx context.Context, cfg SessionConfig) (Session, error)
}
