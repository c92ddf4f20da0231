package audio

import (
	"context"
	"sync"
	"time"
)

// Silent is a sink that plays nothing. It takes as long as the audio would
// (scaled by Speed), so narration pacing stays realistic on machines without
// an audio device.
type Silent struct {
	sampleRate int
	channels   int
	speed      float64

	mu      sync.Mutex
	paused  bool
	closed  bool
	resumed chan struct{} // closed while not paused
	pausing chan struct{} // closed while paused
	stop    chan struct{}

	plays int
}

// NewSilent creates a silent sink for the given PCM format. speed divides the
// simulated duration; 0 means real time.
func NewSilent(sampleRate, channels int, speed float64) *Silent {
	s := &Silent{
		sampleRate: sampleRate,
		channels:   channels,
		speed:      speed,
		resumed:    make(chan struct{}),
		pausing:    make(chan struct{}),
		stop:       make(chan struct{}),
	}
	close(s.resumed)
	return s
}

// Play waits out the duration of pcm, not counting time spent paused.
func (s *Silent) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return ErrEmptyAudio
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrPlayerClosed
	}
	s.plays++
	s.mu.Unlock()

	remaining := Duration(pcm, s.sampleRate, s.channels)
	if s.speed > 0 {
		remaining = time.Duration(float64(remaining) / s.speed)
	}

	for {
		s.mu.Lock()
		resumed, pausing := s.resumed, s.pausing
		s.mu.Unlock()

		select {
		case <-resumed:
		case <-s.stop:
			return ErrPlayerClosed
		case <-ctx.Done():
			return ctx.Err()
		}

		start := time.Now()
		timer := time.NewTimer(remaining)
		select {
		case <-timer.C:
			return nil
		case <-pausing:
			timer.Stop()
			remaining -= time.Since(start)
			if remaining < 0 {
				remaining = 0
			}
		case <-s.stop:
			timer.Stop()
			return ErrPlayerClosed
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Pause holds playback until Resume.
func (s *Silent) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrPlayerClosed
	}
	if !s.paused {
		s.paused = true
		close(s.pausing)
		s.resumed = make(chan struct{})
	}
	return nil
}

// Resume continues playback.
func (s *Silent) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrPlayerClosed
	}
	if s.paused {
		s.paused = false
		close(s.resumed)
		s.pausing = make(chan struct{})
	}
	return nil
}

// IsPaused reports whether the sink is paused.
func (s *Silent) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Plays returns how many buffers were started.
func (s *Silent) Plays() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays
}

// Close unblocks any Play in progress.
func (s *Silent) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.stop)
	}
	return nil
}
