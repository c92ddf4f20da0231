package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

var (
	// ErrEmptyAudio is returned by Play for an empty buffer.
	ErrEmptyAudio = errors.New("audio data is empty")

	// ErrPlayerClosed is returned once the player has been closed.
	ErrPlayerClosed = errors.New("player is closed")
)

// stream is the slice of *oto.Player the Player drives.
type stream interface {
	Play()
	Pause()
	IsPlaying() bool
	SetVolume(volume float64)
	Close() error
}

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate int // Must match the engine output
	Channels   int // 1 = mono, 2 = stereo
	BufferSize time.Duration
}

// DefaultPlayerConfig returns the configuration matching the speech engines.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate: 22050,
		Channels:   1,
		BufferSize: 100 * time.Millisecond,
	}
}

// Player plays one PCM buffer at a time.
type Player struct {
	newStream func(io.Reader) stream
	poll      time.Duration

	mu      sync.Mutex
	current stream
	paused  bool
	closed  bool
	volume  float64
}

// NewPlayer opens the audio device. oto allows a single context per process,
// so create one Player and share it.
func NewPlayer(config PlayerConfig) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   config.BufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	return newPlayer(func(r io.Reader) stream {
		return ctx.NewPlayer(r)
	}), nil
}

func newPlayer(newStream func(io.Reader) stream) *Player {
	return &Player{
		newStream: newStream,
		poll:      10 * time.Millisecond,
		volume:    1.0,
	}
}

func validateConfig(config PlayerConfig) error {
	switch config.SampleRate {
	case 16000, 22050, 24000, 44100, 48000:
	default:
		return fmt.Errorf("unsupported sample rate %d", config.SampleRate)
	}
	if config.Channels != 1 && config.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Channels)
	}
	if config.BufferSize < 0 {
		return errors.New("buffer size must not be negative")
	}
	return nil
}

// Play plays pcm and blocks until it has finished or ctx is done. A paused
// player holds the buffer until Resume.
func (p *Player) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return ErrEmptyAudio
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPlayerClosed
	}
	if p.current != nil {
		p.mu.Unlock()
		return errors.New("player is busy")
	}

	// oto reads from the buffer asynchronously; keep our own copy alive.
	data := make([]byte, len(pcm))
	copy(data, pcm)

	s := p.newStream(bytes.NewReader(data))
	s.SetVolume(p.volume)
	p.current = s
	if !p.paused {
		s.Play()
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.current = nil
		p.mu.Unlock()
		_ = s.Close()
	}()

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Pause()
			return ctx.Err()
		case <-ticker.C:
			p.mu.Lock()
			finished := !p.paused && !s.IsPlaying()
			closed := p.closed
			p.mu.Unlock()

			if closed {
				return ErrPlayerClosed
			}
			if finished {
				return nil
			}
		}
	}
}

// Pause pauses the current buffer and holds future ones. Pausing twice is a
// no-op.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPlayerClosed
	}
	if p.paused {
		return nil
	}
	p.paused = true
	if p.current != nil {
		p.current.Pause()
	}
	return nil
}

// Resume continues playback. Resuming a playing player is a no-op.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPlayerClosed
	}
	if !p.paused {
		return nil
	}
	p.paused = false
	if p.current != nil {
		p.current.Play()
	}
	return nil
}

// IsPaused reports whether the player is paused.
func (p *Player) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.volume = volume
	if p.current != nil {
		p.current.SetVolume(volume)
	}
	return nil
}

// Close stops playback. A blocked Play returns ErrPlayerClosed.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.current != nil {
		p.current.Pause()
	}
	// oto/v3 contexts cannot be closed; the device is released at exit.
	return nil
}

// Duration returns how long pcm plays at the given format.
func Duration(pcm []byte, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := len(pcm) / (channels * 2)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
