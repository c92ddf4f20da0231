package engines

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/speechify/internal/speech"
)

// DefaultMaxFailures is how many consecutive primary failures switch a
// Fallback to its secondary engine.
const DefaultMaxFailures = 3

// Fallback synthesizes with a primary engine and switches to a secondary
// one for good once the primary fails maxFailures times in a row.
type Fallback struct {
	primary     speech.Engine
	secondary   speech.Engine
	maxFailures int
	logger      *log.Logger

	mu            sync.Mutex
	failures      int
	usingFallback bool
}

// NewFallback wraps primary with secondary. Both must produce the same PCM
// format.
func NewFallback(primary, secondary speech.Engine, maxFailures int, logger *log.Logger) (*Fallback, error) {
	if primary.SampleRate() != secondary.SampleRate() {
		return nil, fmt.Errorf("fallback %s produces %d Hz, %s produces %d Hz",
			secondary.Name(), secondary.SampleRate(), primary.Name(), primary.SampleRate())
	}
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Fallback{
		primary:     primary,
		secondary:   secondary,
		maxFailures: maxFailures,
		logger:      logger,
	}, nil
}

func (f *Fallback) active() speech.Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usingFallback {
		return f.secondary
	}
	return f.primary
}

// Name returns the name of the engine currently in use, so cached audio
// never mixes voices.
func (f *Fallback) Name() string { return f.active().Name() }

func (f *Fallback) Voice() string { return f.active().Voice() }

func (f *Fallback) SampleRate() int { return f.primary.SampleRate() }

// MaxTextSize is the smaller limit of the two engines, zero if neither has one.
func (f *Fallback) MaxTextSize() int {
	a, b := limitOf(f.primary), limitOf(f.secondary)
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	default:
		return min(a, b)
	}
}

func limitOf(e speech.Engine) int {
	if l, ok := e.(speech.TextLimiter); ok {
		return l.MaxTextSize()
	}
	return 0
}

// UsingFallback reports whether the secondary engine has taken over.
func (f *Fallback) UsingFallback() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usingFallback
}

func (f *Fallback) Synthesize(ctx context.Context, text, lang string, rate float64) ([]byte, error) {
	if f.UsingFallback() {
		return f.secondary.Synthesize(ctx, text, lang, rate)
	}

	pcm, err := f.primary.Synthesize(ctx, text, lang, rate)
	if err == nil {
		f.mu.Lock()
		if f.failures > 0 {
			f.logger.Info("Primary engine recovered", "engine", f.primary.Name(), "failures", f.failures)
			f.failures = 0
		}
		f.mu.Unlock()
		return pcm, nil
	}
	// Cancellation and bad input say nothing about the engine's health.
	if ctx.Err() != nil || errors.Is(err, ErrEmptyText) {
		return nil, err
	}

	f.mu.Lock()
	f.failures++
	failures := f.failures
	switched := failures >= f.maxFailures && !f.usingFallback
	if switched {
		f.usingFallback = true
	}
	f.mu.Unlock()

	f.logger.Warn("Primary engine failed", "engine", f.primary.Name(), "attempt", failures, "max", f.maxFailures, "error", err)
	if failures < f.maxFailures {
		return nil, err
	}
	if switched {
		f.logger.Warn("Switching to fallback engine", "from", f.primary.Name(), "to", f.secondary.Name())
	}

	pcm, ferr := f.secondary.Synthesize(ctx, text, lang, rate)
	if ferr != nil {
		return nil, fmt.Errorf("both engines failed: %w", errors.Join(err, ferr))
	}
	return pcm, nil
}

// Validate checks both engines. An unusable primary switches to the
// secondary straight away; it is an error only when neither can be used.
func (f *Fallback) Validate() error {
	perr := validate(f.primary)
	serr := validate(f.secondary)

	switch {
	case perr != nil && serr != nil:
		return fmt.Errorf("both engines failed: %w", errors.Join(perr, serr))
	case perr != nil:
		f.logger.Warn("Primary engine unavailable, using fallback", "engine", f.primary.Name(), "fallback", f.secondary.Name(), "error", perr)
		f.mu.Lock()
		f.usingFallback = true
		f.mu.Unlock()
	case serr != nil:
		f.logger.Warn("Fallback engine unavailable", "engine", f.secondary.Name(), "error", serr)
	}
	return nil
}

func validate(e speech.Engine) error {
	if v, ok := e.(Validator); ok {
		return v.Validate() //nolint:wrapcheck
	}
	return nil
}

func (f *Fallback) Close() error {
	return errors.Join(f.primary.Close(), f.secondary.Close())
}
