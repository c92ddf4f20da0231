// Package speech defines the speech capability the playback controller
// drives, and an implementation backed by a synthesis engine and an audio
// sink.
package speech

import (
	"context"
	"errors"
)

// ErrClosed is passed to OnEnd for utterances abandoned by Close, and
// returned by Speak after Close.
var ErrClosed = errors.New("speaker closed")

// Utterance is one unit of text to speak.
type Utterance struct {
	Text string
	Lang string

	// Rate scales speaking speed; 1 is the engine default.
	Rate float64

	// OnEnd is called exactly once when the utterance has been spoken, or
	// with the reason it never will be.
	OnEnd func(err error)
}

func (u *Utterance) end(err error) {
	if u.OnEnd != nil {
		u.OnEnd(err)
	}
}

// Status is the live state of a Speaker.
type Status struct {
	Paused   bool
	Speaking bool
}

// Speaker is the speech capability.
type Speaker interface {
	// Speak queues u. A paused speaker holds it until Resume.
	Speak(u *Utterance) error
	Pause() error
	Resume() error
	Status() Status
	Close() error
}

// Engine turns text into 16-bit PCM.
type Engine interface {
	Name() string
	Voice() string
	SampleRate() int
	Synthesize(ctx context.Context, text, lang string, rate float64) ([]byte, error)
	Close() error
}

// Sink plays PCM produced by an Engine. Play blocks until the audio has
// been heard.
type Sink interface {
	Play(ctx context.Context, pcm []byte) error
	Pause() error
	Resume() error
	Close() error
}
