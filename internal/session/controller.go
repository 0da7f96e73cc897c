// Package session implements the Voxline session controller: the state
// machine that owns one live conversation end to end. It wires microphone
// capture into the engine channel, dispatches inbound engine messages to
// playback and the transcript, and classifies failures for the user.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxline/voxline/internal/observe"
	"github.com/voxline/voxline/internal/transcript"
	"github.com/voxline/voxline/pkg/audio"
	"github.com/voxline/voxline/pkg/engine"
)

// Default audio parameters. The engine consumes 16 kHz microphone audio and
// produces 24 kHz synthesized audio; both streams are mono PCM16.
const (
	DefaultInputSampleRate  = 16000
	DefaultOutputSampleRate = 24000

	// DefaultCaptureBlockSize is 4096 samples, 256ms at 16 kHz.
	DefaultCaptureBlockSize = 4096

	// DefaultOutboundQueueSize bounds the chunks buffered while connecting.
	DefaultOutboundQueueSize = 64
)

// CredentialProvider is the slice of the credential flow the controller
// needs: existence check and the interactive acquisition step. The credential
// value itself is consumed by the engine dialer.
type CredentialProvider interface {
	HasCredential() bool
	PromptForCredential(ctx context.Context) error
}

// Config assembles a [Controller]. Engine, Credentials, CaptureDevice and
// PlaybackDevice are required; zero-valued audio parameters fall back to the
// package defaults.
type Config struct {
	// Engine opens the channel to the remote speech engine.
	Engine engine.Dialer

	// Credentials resolves the engine credential before dialing.
	Credentials CredentialProvider

	// CaptureDevice provides microphone input.
	CaptureDevice audio.CaptureDevice

	// PlaybackDevice plays synthesized output.
	PlaybackDevice audio.PlaybackDevice

	// VoiceProfileID selects the synthesized voice.
	VoiceProfileID string

	// SystemPersona is the fixed system prompt for every session.
	SystemPersona string

	// InputSampleRate is the capture rate in Hz.
	InputSampleRate int

	// OutputSampleRate is the synthesized audio rate in Hz.
	OutputSampleRate int

	// CaptureBlockSize is the number of samples per encoded chunk.
	CaptureBlockSize int

	// OutboundQueueSize bounds the pre-connect chunk buffer.
	OutboundQueueSize int

	// Metrics receives instrumentation. Optional.
	Metrics *observe.Metrics
}

func (c *Config) validate() error {
	if c.Engine == nil {
		return fmt.Errorf("session: config: Engine is required")
	}
	if c.Credentials == nil {
		return fmt.Errorf("session: config: Credentials is required")
	}
	if c.CaptureDevice == nil {
		return fmt.Errorf("session: config: CaptureDevice is required")
	}
	if c.PlaybackDevice == nil {
		return fmt.Errorf("session: config: PlaybackDevice is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.InputSampleRate == 0 {
		c.InputSampleRate = DefaultInputSampleRate
	}
	if c.OutputSampleRate == 0 {
		c.OutputSampleRate = DefaultOutputSampleRate
	}
	if c.CaptureBlockSize == 0 {
		c.CaptureBlockSize = DefaultCaptureBlockSize
	}
	if c.OutboundQueueSize == 0 {
		c.OutboundQueueSize = DefaultOutboundQueueSize
	}
}

// Controller drives one voice session at a time through the
// DISCONNECTED → CONNECTING → CONNECTED lifecycle, with ERROR as the failure
// terminal. The transcript log survives across sessions of the same
// controller; capture, queue and channel state do not.
//
// All exported methods are safe for concurrent use.
type Controller struct {
	cfg       Config
	metrics   *observe.Metrics
	scheduler *audio.Scheduler
	clock     audio.Clock
	acc       *transcript.Accumulator
	turnLog   *transcript.Log

	// nextStart tracks where the playback cursor should be, for measuring
	// delivery underruns. Touched only by the dispatch goroutine.
	nextStart time.Duration

	// talking mirrors the "assistant is audible" indicator. Set on the first
	// scheduled fragment, cleared by barge-in or by the scheduler draining
	// naturally.
	talking atomic.Bool

	mu      sync.Mutex
	state   State
	lastErr *ClassifiedError
	capture *audio.CaptureStream
	queue   *outboundQueue
	sess    engine.Session

	// gen identifies the connect attempt that owns the in-flight resources.
	// A Connect that loses the mutex to a Disconnect (or a newer Connect)
	// between dial start and session install must not resurrect the session.
	gen uint64

	// credentialSuspect forces a re-prompt on the next Connect after the
	// engine rejected the previous credential.
	credentialSuspect bool

	wg sync.WaitGroup
}

// New creates a controller in the DISCONNECTED state.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	c := &Controller{
		cfg:     cfg,
		metrics: cfg.Metrics,
		clock:   cfg.PlaybackDevice.Clock(),
		acc:     transcript.NewAccumulator(),
		turnLog: transcript.NewLog(),
		state:   StateDisconnected,
	}
	c.scheduler = audio.NewScheduler(cfg.PlaybackDevice, func() {
		c.talking.Store(false)
	})
	return c, nil
}

// Connect establishes a session: resolve the credential, acquire the
// microphone, then dial the engine. Capture starts before the dial so speech
// during connection setup is buffered and flushed in order once the channel
// opens. Only legal from DISCONNECTED or ERROR.
//
// On failure the controller transitions to ERROR and the returned error is
// the classified failure; no resources stay acquired. If Disconnect is called
// while the dial is still in flight, the hang-up wins: Connect releases
// everything it acquired and returns [ErrConnectAborted] with the controller
// left DISCONNECTED.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected && c.state != StateError {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: connect is not valid from %s", state)
	}
	c.state = StateConnecting
	c.lastErr = nil
	c.gen++
	gen := c.gen
	needPrompt := c.credentialSuspect || !c.cfg.Credentials.HasCredential()
	c.mu.Unlock()

	slog.Info("session connecting", "voice_profile", c.cfg.VoiceProfileID)

	if needPrompt {
		if err := c.cfg.Credentials.PromptForCredential(ctx); err != nil {
			cerr := &ClassifiedError{
				Kind:    ErrorCredential,
				Message: "no engine credential available",
				Err:     err,
			}
			c.fail(cerr)
			return cerr
		}
	}

	capture := audio.NewCaptureStream(c.cfg.CaptureDevice, c.cfg.InputSampleRate, c.cfg.CaptureBlockSize)

	c.mu.Lock()
	c.credentialSuspect = false
	c.queue = newOutboundQueue(c.cfg.OutboundQueueSize)
	c.mu.Unlock()

	// The microphone comes up first: a denied or missing device should fail
	// the attempt before any network traffic, and everything said while the
	// dial is in flight lands in the outbound queue.
	if err := capture.Start(ctx, c.handleChunk); err != nil {
		cerr := &ClassifiedError{
			Kind:    ErrorDevice,
			Message: "microphone unavailable",
			Err:     err,
		}
		c.fail(cerr)
		return cerr
	}

	c.mu.Lock()
	if c.state != StateConnecting || c.gen != gen {
		c.mu.Unlock()
		capture.Stop()
		slog.Info("session connect aborted")
		return ErrConnectAborted
	}
	c.capture = capture
	c.mu.Unlock()

	sess, err := c.cfg.Engine.Dial(ctx, engine.SessionConfig{
		VoiceProfileID:      c.cfg.VoiceProfileID,
		ResponseModality:    "audio",
		InputTranscription:  true,
		OutputTranscription: true,
		SystemPersona:       c.cfg.SystemPersona,
	})
	if err != nil {
		capture.Stop()
		c.mu.Lock()
		c.capture = nil
		c.mu.Unlock()

		cerr := classifyChannelError(err)
		c.fail(cerr)
		return cerr
	}

	// Install the session and flush the pre-connect buffer under one lock
	// hold so chunks arriving concurrently cannot be reordered ahead of it.
	c.mu.Lock()
	if c.state != StateConnecting || c.gen != gen {
		// Disconnect beat us here while the dial was in flight. Discard the
		// freshly dialed channel instead of resurrecting the session.
		if c.capture == capture {
			c.capture = nil
		}
		c.mu.Unlock()
		capture.Stop()
		if err := sess.Close(); err != nil {
			slog.Warn("session: closing aborted channel", "err", err)
		}
		slog.Info("session connect aborted")
		return ErrConnectAborted
	}
	c.sess = sess
	c.state = StateConnected
	flushed := c.queue.drain()
	for _, chunk := range flushed {
		if err := c.sendLocked(chunk); err != nil {
			slog.Warn("session: flush send failed", "err", err)
			break
		}
	}
	c.mu.Unlock()

	if len(flushed) > 0 {
		slog.Debug("flushed pre-connect audio", "chunks", len(flushed))
	}
	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(ctx, 1)
	}

	c.wg.Add(1)
	go c.dispatch(sess)

	slog.Info("session connected")
	return nil
}

// Disconnect requests a teardown of the current session. The state
// transition happens when the channel's message stream closes, so the
// controller observes server-initiated and local closes identically. Safe to
// call in any state and more than once.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	sess := c.sess
	capture := c.capture
	c.mu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			slog.Warn("session: close failed", "err", err)
		}
		return
	}

	// No live channel (teardown mid-connect): release the microphone and
	// return to idle directly.
	if capture != nil {
		capture.Stop()
	}
	c.mu.Lock()
	if c.state == StateConnecting {
		c.state = StateDisconnected
	}
	c.capture = nil
	c.queue = nil
	c.mu.Unlock()
}

// handleChunk is the capture callback. While the channel is connecting,
// chunks accumulate in the bounded queue; once connected they are sent
// directly. Runs on the capture pump goroutine.
func (c *Controller) handleChunk(chunk audio.EncodedChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil {
		if c.queue == nil {
			return
		}
		dropped := c.queue.push(chunk)
		if c.metrics != nil {
			c.metrics.ChunksQueued.Add(context.Background(), 1)
			if dropped > 0 {
				c.metrics.ChunksDropped.Add(context.Background(), int64(dropped))
			}
		}
		return
	}

	if err := c.sendLocked(chunk); err != nil {
		// The receive loop surfaces the channel failure; dropping the chunk
		// here is the correct behaviour for a dying session.
		slog.Debug("session: send chunk failed", "err", err)
	}
}

// sendLocked delivers one chunk on the installed session. Caller holds c.mu.
func (c *Controller) sendLocked(chunk audio.EncodedChunk) error {
	if err := c.sess.SendAudio(chunk); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.ChunksSent.Add(context.Background(), 1)
	}
	return nil
}

// dispatch consumes the session's inbound messages until the channel closes,
// then drives the close/error transition. One dispatch goroutine exists per
// live session.
func (c *Controller) dispatch(sess engine.Session) {
	defer c.wg.Done()
	ctx := context.Background()

	for msg := range sess.Messages() {
		switch msg.Kind {
		case engine.KindTranscription:
			if msg.Role == engine.RoleAssistant {
				c.acc.AppendAssistant(msg.TextDelta)
			} else {
				c.acc.AppendUser(msg.TextDelta)
			}

		case engine.KindTurnComplete:
			records := c.acc.FinalizeTurn()
			c.turnLog.Append(records...)
			if c.metrics != nil {
				for _, r := range records {
					c.metrics.RecordTurn(ctx, string(r.Role))
				}
			}

		case engine.KindAudio:
			frame, err := audio.DecodePCM16(msg.AudioPayload, c.cfg.OutputSampleRate, 1)
			if err != nil {
				// A malformed fragment must not kill the session; skip it and
				// keep the stream flowing.
				slog.Warn("session: dropping malformed audio fragment", "err", err)
				continue
			}
			if c.metrics != nil && c.scheduler.IsActive() {
				// Mid-stream lag: the clock overtook the cursor, so the
				// listener heard a gap before this fragment.
				if lag := c.clock.Now() - c.nextStart; lag > 0 {
					c.metrics.ScheduleLag.Record(ctx, lag.Seconds())
				} else {
					c.metrics.ScheduleLag.Record(ctx, 0)
				}
			}
			h, err := c.scheduler.Schedule(frame)
			if err != nil {
				slog.Warn("session: playback schedule failed", "err", err)
				continue
			}
			c.talking.Store(true)
			c.nextStart = h.StartTime() + h.Duration()
			if c.metrics != nil {
				c.metrics.AudioReceived.Add(ctx, 1)
			}

		case engine.KindInterrupted:
			c.scheduler.Reset()
			c.talking.Store(false)
			c.nextStart = 0
			if c.metrics != nil {
				c.metrics.Interruptions.Add(ctx, 1)
			}
			slog.Debug("assistant interrupted, playback cleared")
		}
	}

	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(ctx, -1)
	}

	if err := sess.Err(); err != nil {
		c.handleChannelError(sess, err)
		return
	}
	c.handleChannelClose(sess)
}

// handleChannelClose finishes a cleanly-ended session: release the
// microphone and return to DISCONNECTED. Already-scheduled playback is left
// to drain; a clean close is not a barge-in.
func (c *Controller) handleChannelClose(sess engine.Session) {
	c.mu.Lock()
	if c.sess != sess {
		// A newer session has already been installed; this close is stale.
		c.mu.Unlock()
		return
	}
	capture := c.capture
	c.sess = nil
	c.capture = nil
	c.queue = nil
	c.state = StateDisconnected
	c.lastErr = nil
	c.mu.Unlock()

	c.talking.Store(false)
	if capture != nil {
		capture.Stop()
	}
	slog.Info("session closed")
}

// handleChannelError finishes a failed session: classify, release the
// microphone, and land in ERROR. A credential-shaped failure marks the
// stored credential suspect so the next Connect re-prompts.
func (c *Controller) handleChannelError(sess engine.Session, err error) {
	cerr := classifyChannelError(err)

	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		return
	}
	capture := c.capture
	c.sess = nil
	c.capture = nil
	c.queue = nil
	c.state = StateError
	c.lastErr = cerr
	if cerr.Kind == ErrorCredential {
		c.credentialSuspect = true
	}
	c.mu.Unlock()

	c.talking.Store(false)
	if capture != nil {
		capture.Stop()
	}
	if c.metrics != nil {
		c.metrics.RecordChannelError(context.Background(), cerr.Kind.String())
	}
	slog.Error("session failed", "kind", cerr.Kind.String(), "err", err)
}

// fail records a pre-connect failure and lands in ERROR.
func (c *Controller) fail(cerr *ClassifiedError) {
	c.mu.Lock()
	c.state = StateError
	c.lastErr = cerr
	c.queue = nil
	if cerr.Kind == ErrorCredential {
		c.credentialSuspect = true
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordChannelError(context.Background(), cerr.Kind.String())
	}
	slog.Error("session connect failed", "kind", cerr.Kind.String(), "err", cerr.Err)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the classified error from the most recent failure, or nil.
func (c *Controller) Err() *ClassifiedError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// IsListening reports whether the microphone is currently captured.
func (c *Controller) IsListening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture != nil
}

// IsAssistantTalking reports whether synthesized audio is audible or pending.
func (c *Controller) IsAssistantTalking() bool {
	return c.talking.Load()
}

// Transcript returns a copy of the finalized turn log in order.
func (c *Controller) Transcript() []transcript.TurnRecord {
	return c.turnLog.Records()
}

// ClearTranscript discards all finalized turns.
func (c *Controller) ClearTranscript() {
	c.turnLog.Clear()
}

// Wait blocks until the dispatch goroutine of every past session has
// returned. Intended for shutdown paths and tests.
func (c *Controller) Wait() {
	c.wg.Wait()
}
