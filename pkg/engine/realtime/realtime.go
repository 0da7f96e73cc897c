// Package realtime implements the engine.Dialer interface over the Voxline
// realtime WebSocket protocol.
//
// The client opens a WebSocket to the engine endpoint, sends a single setup
// message carrying the session configuration, then streams audio as JSON
// text frames of the form {"kind":"audio","payload":"<base64 PCM16>"}.
// Inbound frames are a tagged union (transcription deltas, turn boundaries,
// synthesized audio fragments, interruption signals) dispatched onto the
// session's message channel in arrival order. Malformed inbound frames are
// skipped; occasional empty fragments are expected and not an error.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/voxline/voxline/pkg/audio"
	"github.com/voxline/voxline/pkg/engine"
)

// Compile-time assertions that Provider and session satisfy the engine
// interfaces.
var (
	_ engine.Dialer  = (*Provider)(nil)
	_ engine.Session = (*session)(nil)
)

const defaultEndpoint = "wss://engine.voxline.dev/v1/session"

// messageBuffer is the depth of the inbound message channel. Audio fragments
// dominate the traffic; the buffer absorbs dispatch jitter without letting
// the receive loop stall the server.
const messageBuffer = 64

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithEndpoint overrides the WebSocket endpoint. Primarily used in tests to
// point at a local mock server.
func WithEndpoint(url string) Option {
	return func(p *Provider) { p.endpoint = url }
}

// WithCredentialSource supplies the bearer credential lazily at Dial time.
// Use this when the credential can change between connection attempts (for
// example after a re-prompt). Overrides the static key given to New.
func WithCredentialSource(source func() string) Option {
	return func(p *Provider) { p.credential = source }
}

// Provider implements engine.Dialer for the Voxline realtime protocol.
type Provider struct {
	endpoint   string
	credential func() string
}

// New creates a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		endpoint:   defaultEndpoint,
		credential: func() string { return apiKey },
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Dial implements engine.Dialer. It opens the WebSocket, sends the setup
// message, and starts the receive loop. The returned session is ready to
// accept audio immediately.
func (p *Provider) Dial(ctx context.Context, cfg engine.SessionConfig) (engine.Session, error) {
	conn, _, err := websocket.Dial(ctx, p.endpoint, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.credential()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		conn:   conn,
		msgs:   make(chan engine.Message, messageBuffer),
		ctx:    sessCtx,
		cancel: cancel,
	}

	if err := s.writeJSON(setupMessage{Kind: "setup", Session: sessionParams{
		VoiceProfileID:      cfg.VoiceProfileID,
		ResponseModality:    cfg.ResponseModality,
		InputTranscription:  cfg.InputTranscription,
		OutputTranscription: cfg.OutputTranscription,
		SystemPersona:       cfg.SystemPersona,
	}}); err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("realtime: setup: %w", err)
	}

	go s.receiveLoop()

	return s, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Kind    string        `json:"kind"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	VoiceProfileID      string `json:"voice_profile_id,omitempty"`
	ResponseModality    string `json:"response_modality"`
	InputTranscription  bool   `json:"input_transcription"`
	OutputTranscription bool   `json:"output_transcription"`
	SystemPersona       string `json:"system_persona,omitempty"`
}

type audioMessage struct {
	Kind    string `json:"kind"`
	Payload string `json:"payload"`
	MIME    string `json:"mime_type,omitempty"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

// serverEvent is the inbound tagged union. Exactly one arm is set per frame.
type serverEvent struct {
	Transcription *transcriptionEvent `json:"transcription,omitempty"`
	TurnComplete  bool                `json:"turnComplete,omitempty"`
	Audio         string              `json:"audio,omitempty"`
	Interrupted   bool                `json:"interrupted,omitempty"`
	Error         *serverErrorDetail  `json:"error,omitempty"`
}

type transcriptionEvent struct {
	Role      string `json:"role"`
	TextDelta string `json:"textDelta"`
}

// serverErrorDetail is the nested error object of a channel-level error
// frame: {"error":{"code":"...","message":"..."}}.
type serverErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ── session ───────────────────────────────────────────────────────────────────

type session struct {
	conn *websocket.Conn
	msgs chan engine.Message

	mu     sync.Mutex
	errVal error
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// writeJSON marshals v and writes it as a text WebSocket frame.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("realtime: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads frames from the WebSocket and dispatches them. It owns
// the msgs channel and closes it on exit.
func (s *session) receiveLoop() {
	defer close(s.msgs)

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			// Local close or server close are clean endings; anything else
			// is a channel-level error surfaced via Err.
			if s.ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.setErr(err)
			}
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		s.dispatch(&evt)
	}
}

func (s *session) dispatch(evt *serverEvent) {
	switch {
	case evt.Transcription != nil:
		if evt.Transcription.TextDelta == "" {
			return
		}
		role := engine.RoleUser
		if evt.Transcription.Role == string(engine.RoleAssistant) {
			role = engine.RoleAssistant
		}
		s.deliver(engine.Message{
			Kind:      engine.KindTranscription,
			Role:      role,
			TextDelta: evt.Transcription.TextDelta,
		})

	case evt.TurnComplete:
		s.deliver(engine.Message{Kind: engine.KindTurnComplete})

	case evt.Audio != "":
		s.deliver(engine.Message{Kind: engine.KindAudio, AudioPayload: evt.Audio})

	case evt.Interrupted:
		s.deliver(engine.Message{Kind: engine.KindInterrupted})

	case evt.Error != nil:
		// A channel-level error frame terminates the session: record the
		// classified detail and tear the connection down so the read loop
		// exits without overwriting it.
		s.setErr(fmt.Errorf("realtime: server error %s: %s", evt.Error.Code, evt.Error.Message))
		s.cancel()
	}
}

func (s *session) deliver(msg engine.Message) {
	select {
	case s.msgs <- msg:
	case <-s.ctx.Done():
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

// ── engine.Session methods ────────────────────────────────────────────────────

// SendAudio delivers one encoded microphone chunk as an audio frame.
func (s *session) SendAudio(chunk audio.EncodedChunk) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("realtime: session closed")
	}
	s.mu.Unlock()

	return s.writeJSON(audioMessage{
		Kind:    "audio",
		Payload: chunk.Payload,
		MIME:    chunk.MIME,
	})
}

// Messages returns the inbound message channel.
func (s *session) Messages() <-chan engine.Message { return s.msgs }

// Err returns the channel-level error that terminated the session, if any.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close requests the channel to shut down. Idempotent.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}
