package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeStream finishes once drain is called while playing.
type fakeStream struct {
	mu      sync.Mutex
	playing bool
	drained bool
	volume  float64
	closed  bool
	plays   int
}

func (f *fakeStream) Play() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
	f.playing = !f.drained
}

func (f *fakeStream) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
}

func (f *fakeStream) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakeStream) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStream) drain() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drained = true
	f.playing = false
}

func testPlayer() (*Player, chan *fakeStream) {
	created := make(chan *fakeStream, 4)
	p := newPlayer(func(io.Reader) stream {
		s := &fakeStream{}
		created <- s
		return s
	})
	p.poll = time.Millisecond
	return p, created
}

func TestPlayerConfig(t *testing.T) {
	tests := []struct {
		name      string
		config    PlayerConfig
		expectErr bool
	}{
		{"default", DefaultPlayerConfig(), false},
		{"44100 stereo", PlayerConfig{SampleRate: 44100, Channels: 2}, false},
		{"invalid sample rate", PlayerConfig{SampleRate: 12345, Channels: 1}, true},
		{"invalid channels", PlayerConfig{SampleRate: 22050, Channels: 3}, true},
		{"negative buffer", PlayerConfig{SampleRate: 22050, Channels: 1, BufferSize: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(tt.config)
			if (err != nil) != tt.expectErr {
				t.Errorf("validateConfig() error = %v, expectErr %v", err, tt.expectErr)
			}
		})
	}
}

func TestPlayerPlayBlocksUntilFinished(t *testing.T) {
	p, created := testPlayer()

	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background(), []byte{0, 0, 1, 1}) }()

	s := <-created
	select {
	case err := <-done:
		t.Fatalf("Play returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	s.drain()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Play() error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Play did not return after the stream drained")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		t.Error("stream not closed after playback")
	}
}

func TestPlayerPauseHoldsPlayback(t *testing.T) {
	p, created := testPlayer()

	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background(), []byte{0, 0}) }()
	s := <-created

	if err := p.Pause(); err != nil {
		t.Fatal(err)
	}
	if err := p.Pause(); err != nil {
		t.Errorf("second Pause() error: %v", err)
	}
	if s.IsPlaying() {
		t.Error("stream still playing after Pause")
	}

	// A paused, non-playing stream must not count as finished.
	select {
	case err := <-done:
		t.Fatalf("Play returned while paused: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	if err := p.Resume(); err != nil {
		t.Fatal(err)
	}
	if !s.IsPlaying() {
		t.Error("stream not playing after Resume")
	}
	s.drain()
	if err := <-done; err != nil {
		t.Errorf("Play() error: %v", err)
	}
}

func TestPlayerStartsPaused(t *testing.T) {
	p, created := testPlayer()
	_ = p.Pause()

	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background(), []byte{0, 0}) }()
	s := <-created

	time.Sleep(10 * time.Millisecond)
	s.mu.Lock()
	plays := s.plays
	s.mu.Unlock()
	if plays != 0 {
		t.Errorf("paused player started the stream %d times", plays)
	}

	_ = p.Resume()
	s.drain()
	if err := <-done; err != nil {
		t.Errorf("Play() error: %v", err)
	}
}

func TestPlayerErrors(t *testing.T) {
	p, created := testPlayer()

	if err := p.Play(context.Background(), nil); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Play(ctx, []byte{0, 0}) }()
	<-created
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	done = make(chan error, 1)
	go func() { done <- p.Play(context.Background(), []byte{0, 0}) }()
	<-created
	_ = p.Close()
	if err := <-done; !errors.Is(err, ErrPlayerClosed) {
		t.Errorf("expected ErrPlayerClosed, got %v", err)
	}
	if err := p.Play(context.Background(), []byte{0, 0}); !errors.Is(err, ErrPlayerClosed) {
		t.Errorf("expected ErrPlayerClosed after Close, got %v", err)
	}
}

func TestPlayerVolume(t *testing.T) {
	p, created := testPlayer()

	if err := p.SetVolume(1.5); err == nil {
		t.Error("expected error for volume above 1")
	}
	if err := p.SetVolume(0.5); err != nil {
		t.Fatal(err)
	}

	go func() { _ = p.Play(context.Background(), []byte{0, 0}) }()
	s := <-created
	defer s.drain()

	deadline := time.Now().Add(time.Second)
	for !s.IsPlaying() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.volume != 0.5 {
		t.Errorf("stream volume = %v, want 0.5", s.volume)
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		bytes      int
		rate, chns int
		want       time.Duration
	}{
		{44100, 22050, 1, time.Second},
		{88200, 22050, 2, time.Second},
		{0, 22050, 1, 0},
		{100, 0, 1, 0},
	}
	for _, tt := range tests {
		if got := Duration(make([]byte, tt.bytes), tt.rate, tt.chns); got != tt.want {
			t.Errorf("Duration(%d, %d, %d) = %v, want %v", tt.bytes, tt.rate, tt.chns, got, tt.want)
		}
	}
}
