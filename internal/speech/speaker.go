package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/dgnsrekt/speechify/internal/cache"
)

// EngineSpeaker speaks utterances in order on a single worker goroutine:
// synthesize, play, then signal completion.
type EngineSpeaker struct {
	engine Engine
	sink   Sink
	cache  *cache.Manager
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	wake   chan struct{}

	mu      sync.Mutex
	pending []*Utterance
	current *Utterance
	paused  bool
	closed  bool
	resumed chan struct{} // closed while not paused
}

// Option configures an EngineSpeaker.
type Option func(*EngineSpeaker)

// WithCache serves repeated text from the audio cache.
func WithCache(m *cache.Manager) Option {
	return func(s *EngineSpeaker) {
		s.cache = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *EngineSpeaker) {
		s.logger = l
	}
}

// NewEngineSpeaker starts a speaker. Call Close to stop its worker.
func NewEngineSpeaker(engine Engine, sink Sink, opts ...Option) *EngineSpeaker {
	ctx, cancel := context.WithCancel(context.Background())
	s := &EngineSpeaker{
		engine:  engine,
		sink:    sink,
		logger:  log.Default(),
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		resumed: make(chan struct{}),
	}
	close(s.resumed)
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.run()
	return s
}

// Speak queues u behind any utterance already queued.
func (s *EngineSpeaker) Speak(u *Utterance) error {
	if u == nil {
		return errors.New("nil utterance")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.pending = append(s.pending, u)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pause pauses the sink and holds queued utterances.
func (s *EngineSpeaker) Pause() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.paused {
		s.mu.Unlock()
		return nil
	}
	s.paused = true
	s.resumed = make(chan struct{})
	s.mu.Unlock()

	return s.sink.Pause()
}

// Resume resumes the sink and releases queued utterances.
func (s *EngineSpeaker) Resume() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.paused {
		s.mu.Unlock()
		return nil
	}
	s.paused = false
	close(s.resumed)
	s.mu.Unlock()

	return s.sink.Resume()
}

// Status reports whether the speaker is paused and whether it has an
// utterance in progress or queued.
func (s *EngineSpeaker) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Paused:   s.paused,
		Speaking: s.current != nil || len(s.pending) > 0,
	}
}

// Close stops the worker. Queued and in-progress utterances end with
// ErrClosed.
func (s *EngineSpeaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	for _, u := range pending {
		u.end(ErrClosed)
	}
	return nil
}

func (s *EngineSpeaker) run() {
	defer s.wg.Done()

	for {
		u := s.next()
		if u == nil {
			select {
			case <-s.wake:
				continue
			case <-s.ctx.Done():
				return
			}
		}

		err := s.speak(u)
		if err != nil && s.ctx.Err() != nil {
			err = ErrClosed
		}

		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()

		u.end(err)
	}
}

func (s *EngineSpeaker) next() *Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}
	u := s.pending[0]
	s.pending = s.pending[1:]
	s.current = u
	return u
}

func (s *EngineSpeaker) speak(u *Utterance) error {
	if err := s.waitResumed(); err != nil {
		return err
	}

	pcm, err := s.synthesize(u)
	if err != nil {
		s.logger.Error("Synthesis failed", "engine", s.engine.Name(), "error", err)
		return err
	}

	start := time.Now()
	if err := s.sink.Play(s.ctx, pcm); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	s.logger.Debug("Utterance spoken",
		"bytes", humanize.Bytes(uint64(len(pcm))),
		"elapsed", time.Since(start))
	return nil
}

func (s *EngineSpeaker) waitResumed() error {
	s.mu.Lock()
	resumed := s.resumed
	s.mu.Unlock()

	select {
	case <-resumed:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	}
}

func (s *EngineSpeaker) synthesize(u *Utterance) ([]byte, error) {
	var key string
	if s.cache != nil {
		key = cache.Key(s.engine.Name(), s.engine.Voice()+"/"+u.Lang, u.Text, u.Rate)
		if pcm, level, ok := s.cache.Get(key); ok {
			s.logger.Debug("Audio cache hit", "level", level, "bytes", humanize.Bytes(uint64(len(pcm))))
			return pcm, nil
		}
	}

	var limit int
	if l, ok := s.engine.(TextLimiter); ok {
		limit = l.MaxTextSize()
	}

	var pcm []byte
	pieces := Pieces(u.Text, limit)
	for _, piece := range pieces {
		out, err := s.engine.Synthesize(s.ctx, piece, u.Lang, u.Rate)
		if err != nil {
			return nil, err
		}
		pcm = append(pcm, out...)
	}
	if len(pieces) > 1 {
		s.logger.Debug("Synthesized long utterance in pieces", "pieces", len(pieces), "bytes", humanize.Bytes(uint64(len(pcm))))
	}

	if s.cache != nil {
		if err := s.cache.Put(key, pcm); err != nil {
			s.logger.Warn("Failed to cache audio", "error", err)
		}
	}
	return pcm, nil
}
