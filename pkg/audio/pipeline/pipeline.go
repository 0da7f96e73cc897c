// Package pipeline provides the real audio device backends: microphone
// capture through an ffmpeg subprocess and speaker output through an ffplay
// subprocess. Both implement the device interfaces in pkg/audio, so the rest
// of the system never touches a process pipe directly.
package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/voxline/voxline/pkg/audio"
)

// FFmpegCapture opens the platform microphone via ffmpeg and streams mono
// float32 frames. The zero value uses the ffmpeg binary on PATH and the
// platform default input device.
type FFmpegCapture struct {
	// Path is the ffmpeg executable. Defaults to "ffmpeg".
	Path string

	// Device overrides the input device passed to ffmpeg. Empty selects the
	// platform default.
	Device string

	// FrameSize is the number of samples per emitted frame. Defaults to
	// 100ms worth of samples at the open rate.
	FrameSize int
}

// Open implements [audio.CaptureDevice]. The subprocess is bound to ctx; the
// returned session must still be closed to reap it.
func (d *FFmpegCapture) Open(ctx context.Context, sampleRate int) (audio.CaptureSession, error) {
	path := d.Path
	if path == "" {
		path = "ffmpeg"
	}
	format, device := defaultInput()
	if d.Device != "" {
		device = d.Device
	}
	frameSize := d.FrameSize
	if frameSize == 0 {
		frameSize = sampleRate / 10
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", format,
		"-i", device,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-f", "s16le",
		"-",
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipeline: ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("pipeline: start ffmpeg: %w", err)
	}
	slog.Debug("ffmpeg capture started",
		"pid", cmd.Process.Pid,
		"format", format,
		"device", device,
		"sample_rate", sampleRate,
	)

	s := &captureSession{
		cmd:    cmd,
		frames: make(chan audio.AudioFrame, 4),
	}
	go s.read(stdout, sampleRate, frameSize)
	return s, nil
}

// defaultInput returns the ffmpeg input format and device for this platform.
func defaultInput() (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		// `none:0` selects audio device 0 without opening a camera.
		return "avfoundation", "none:0"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

type captureSession struct {
	cmd    *exec.Cmd
	frames chan audio.AudioFrame

	closeOnce sync.Once
	closeErr  error
}

// Frames implements [audio.CaptureSession].
func (s *captureSession) Frames() <-chan audio.AudioFrame { return s.frames }

// Close implements [audio.CaptureSession]. Kills the ffmpeg process; the
// reader goroutine then hits EOF and closes the frame channel.
func (s *captureSession) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			if err := s.cmd.Process.Kill(); err != nil {
				s.closeErr = fmt.Errorf("pipeline: kill ffmpeg: %w", err)
			}
		}
		_ = s.cmd.Wait()
	})
	return s.closeErr
}

// read converts the s16le byte stream into float32 frames of frameSize
// samples. Exits and closes the frame channel on any read error, including
// the EOF caused by Close.
func (s *captureSession) read(r io.Reader, sampleRate, frameSize int) {
	defer close(s.frames)

	buf := make([]byte, frameSize*2)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				slog.Warn("ffmpeg capture read failed", "err", err)
			}
			return
		}
		samples := make([]float32, frameSize)
		for i := range samples {
			v := int16(binary.LittleEndian.Uint16(buf[i*2:]))
			samples[i] = float32(v) / 32768
		}
		s.frames <- audio.AudioFrame{
			Data:       [][]float32{samples},
			SampleRate: sampleRate,
		}
	}
}

// FFplayPlayback plays scheduled frames through a long-lived ffplay
// subprocess. The playback clock is monotonic wall time measured from device
// creation.
//
// A stopped voice only withholds audio not yet written to ffplay; bytes
// already in the pipe cannot be retracted, so barge-in latency is bounded by
// how far ahead of the clock frames are written. Frames are therefore written
// at their scheduled start, not on arrival.
type FFplayPlayback struct {
	// Path is the ffplay executable. Defaults to "ffplay".
	Path string

	// Volume is the startup volume, 0 to 100. Defaults to 80.
	Volume int

	sampleRate int
	epoch      time.Time

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewFFplayPlayback creates a playback device for mono output at sampleRate.
// ffplay is spawned lazily on the first voice.
func NewFFplayPlayback(sampleRate int) *FFplayPlayback {
	return &FFplayPlayback{
		sampleRate: sampleRate,
		epoch:      time.Now(),
	}
}

// Clock implements [audio.PlaybackDevice].
func (p *FFplayPlayback) Clock() audio.Clock { return deviceClock{epoch: p.epoch} }

type deviceClock struct{ epoch time.Time }

func (c deviceClock) Now() time.Duration { return time.Since(c.epoch) }

// PlayAt implements [audio.PlaybackDevice]. The frame's samples are written
// to ffplay when the clock reaches start; done fires one frame-duration
// later from the voice's own goroutine.
func (p *FFplayPlayback) PlayAt(frame audio.AudioFrame, start time.Duration, done func()) (audio.PlaybackVoice, error) {
	if err := p.ensureRunning(); err != nil {
		return nil, err
	}

	v := &voice{stop: make(chan struct{})}
	go p.run(v, frame, start, done)
	return v, nil
}

// Close kills the ffplay process. Subsequent voices fail until a new device
// is created.
func (p *FFplayPlayback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin != nil {
		_ = p.stdin.Close()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	}
	p.cmd = nil
	p.stdin = nil
	return nil
}

func (p *FFplayPlayback) ensureRunning() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return nil
	}

	path := p.Path
	if path == "" {
		path = "ffplay"
	}
	volume := p.Volume
	if volume <= 0 {
		volume = 80
	}
	// ffplay does not accept ffmpeg-style `-ac`; mono needs `-ch_layout`.
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-nodisp",
		"-volume", fmt.Sprintf("%d", volume),
		"-f", "s16le",
		"-ch_layout", "mono",
		"-ar", fmt.Sprintf("%d", p.sampleRate),
		"-i", "-",
	}
	cmd := exec.Command(path, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		// SDL can pick a silent dummy backend on macOS; prefer CoreAudio.
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("pipeline: ffplay stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("pipeline: start ffplay: %w", err)
	}
	slog.Debug("ffplay started", "pid", cmd.Process.Pid, "sample_rate", p.sampleRate)

	p.cmd = cmd
	p.stdin = stdin
	return nil
}

// write delivers raw PCM bytes to the ffplay stdin under the device lock.
func (p *FFplayPlayback) write(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil {
		return fmt.Errorf("pipeline: ffplay is not running")
	}
	_, err := p.stdin.Write(pcm)
	return err
}

// run is the per-voice goroutine: wait for the start time, write the samples,
// wait out the frame duration, fire done.
func (p *FFplayPlayback) run(v *voice, frame audio.AudioFrame, start time.Duration, done func()) {
	if wait := start - time.Since(p.epoch); wait > 0 {
		select {
		case <-v.stop:
			return
		case <-time.After(wait):
		}
	}
	if v.stopped() {
		return
	}

	if err := p.write(pcm16Bytes(frame)); err != nil {
		slog.Warn("ffplay write failed", "err", err)
		// The scheduler still needs the completion signal, or the voice's
		// handle would stay active forever.
		if done != nil {
			done()
		}
		return
	}

	select {
	case <-v.stop:
	case <-time.After(frame.Duration()):
		if done != nil {
			done()
		}
	}
}

type voice struct {
	once sync.Once
	stop chan struct{}
}

// Stop implements [audio.PlaybackVoice].
func (v *voice) Stop() {
	v.once.Do(func() { close(v.stop) })
}

func (v *voice) stopped() bool {
	select {
	case <-v.stop:
		return true
	default:
		return false
	}
}

// pcm16Bytes renders the frame's first channel as little-endian PCM16.
func pcm16Bytes(frame audio.AudioFrame) []byte {
	if frame.Channels() == 0 {
		return nil
	}
	samples := frame.Data[0]
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(int32(math.Round(float64(s) * 32768)))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
