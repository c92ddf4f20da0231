// Package playback implements the client-side narration state machine. A
// Controller pulls one chunk at a time from a remote queue and hands it to
// a speech.Speaker, pulling the next when the speaker finishes.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/speechify/internal/document"
	"github.com/dgnsrekt/speechify/internal/speech"
)

const (
	// DefaultLang is the locale every utterance is spoken in.
	DefaultLang = "en-US"

	// DefaultRate is slightly slower than native speech for comprehension.
	DefaultRate = 0.9
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("controller already started")

// Remote is the ingestion queue as seen from the client.
type Remote interface {
	AddToQueue(ctx context.Context, doc document.Document) (bool, error)
	GetNextChunk(ctx context.Context) (*document.Chunk, error)
}

// Stats summarises controller activity.
type Stats struct {
	ChunksSpoken int64
	Pulls        int64
	Errors       int64
	LastActivity time.Time
}

// Controller is the playback state machine. Its methods are safe for
// concurrent use.
type Controller struct {
	remote  Remote
	speaker speech.Speaker
	logger  *log.Logger
	lang    string
	rate    float64

	wake chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	mu       sync.Mutex
	state    State
	active   *document.Chunk
	listener *subscription
	stats    Stats
}

type subscription struct {
	fn Listener
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithLang sets the utterance locale.
func WithLang(lang string) Option {
	return func(c *Controller) {
		if lang != "" {
			c.lang = lang
		}
	}
}

// WithRate sets the utterance rate.
func WithRate(rate float64) Option {
	return func(c *Controller) {
		if rate > 0 {
			c.rate = rate
		}
	}
}

// New creates a controller in the NotPlaying state. Call Start to run its
// pull loop.
func New(remote Remote, speaker speech.Speaker, opts ...Option) *Controller {
	c := &Controller{
		remote:  remote,
		speaker: speaker,
		logger:  log.Default(),
		lang:    DefaultLang,
		rate:    DefaultRate,
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start runs the pull loop until ctx is done or Close is called.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.loop()
	return nil
}

// Close stops the pull loop. An in-flight fetch is cancelled; utterances
// already handed to the speaker are the speaker's to finish.
func (c *Controller) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	return nil
}

// Play starts or resumes narration. With no active chunk it pulls the next
// one.
func (c *Controller) Play() error {
	c.mu.Lock()
	idle := c.active == nil
	c.mu.Unlock()

	if idle {
		c.requestPull()
	}
	if err := c.speaker.Resume(); err != nil {
		return fmt.Errorf("resume speaker: %w", err)
	}
	c.setState(Playing)
	return nil
}

// Pause pauses narration. The chunk being spoken stays active and finishes
// after the next Play.
func (c *Controller) Pause() error {
	if err := c.speaker.Pause(); err != nil {
		return fmt.Errorf("pause speaker: %w", err)
	}
	c.setState(NotPlaying)
	return nil
}

// Toggle pauses when playing and plays otherwise.
func (c *Controller) Toggle() error {
	if c.State() == Playing {
		return c.Pause()
	}
	return c.Play()
}

// AddToQueue submits doc to the remote queue. If narration had stalled on
// an empty queue, it pulls again.
func (c *Controller) AddToQueue(ctx context.Context, doc document.Document) (bool, error) {
	ok, err := c.remote.AddToQueue(ctx, doc)
	if err != nil {
		return false, err
	}
	c.Refresh()
	return ok, nil
}

// Refresh pulls again if narration is playing but stalled on an empty
// queue. Listeners call it periodically to pick up chunks other clients
// submitted.
func (c *Controller) Refresh() {
	c.mu.Lock()
	stalled := c.state == Playing && c.active == nil
	c.mu.Unlock()

	if stalled {
		c.requestPull()
	}
}

// Reconcile corrects the cached state from the speaker: a speaker that is
// speaking and not paused means Playing. It returns the resulting state.
func (c *Controller) Reconcile() State {
	status := c.speaker.Status()
	if !status.Speaking || status.Paused {
		return c.State()
	}

	c.mu.Lock()
	changed := c.state != Playing
	c.state = Playing
	c.mu.Unlock()

	if changed {
		c.logger.Debug("Playback state reconciled", "state", Playing)
		c.emit(Event{Type: EventState, State: Playing})
	}
	return Playing
}

// State returns the cached state without consulting the speaker.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active returns the chunk being spoken, or nil.
func (c *Controller) Active() *document.Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Stats returns activity counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Subscribe registers l as the only listener, replacing any other. The
// returned func removes l; it does nothing once l has been replaced.
func (c *Controller) Subscribe(l Listener) (unsubscribe func()) {
	sub := &subscription{fn: l}

	c.mu.Lock()
	c.listener = sub
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.listener == sub {
			c.listener = nil
		}
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.stats.LastActivity = time.Now()
	c.mu.Unlock()

	if changed {
		c.logger.Debug("Playback state changed", "state", s)
	}
	// Play and Pause always notify, even when the state is unchanged.
	c.emit(Event{Type: EventState, State: s})
}

func (c *Controller) emit(e Event) {
	c.mu.Lock()
	sub := c.listener
	c.mu.Unlock()

	if sub != nil && sub.fn != nil {
		sub.fn(e)
	}
}

// requestPull wakes the loop. Requests made while one is pending coalesce.
func (c *Controller) requestPull() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) loop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
			c.pull(c.ctx)
		}
	}
}

// pull fetches one chunk and dispatches it. It is only called from the loop,
// so at most one fetch is in flight.
func (c *Controller) pull(ctx context.Context) {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return
	}
	c.stats.Pulls++
	c.mu.Unlock()

	chunk, err := c.remote.GetNextChunk(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.fail("Failed to fetch next chunk", err)
		return
	}
	if chunk == nil || chunk.Empty() {
		c.logger.Debug("Queue is empty, waiting for more content")
		return
	}

	u := &speech.Utterance{
		Text: chunk.Data,
		Lang: c.lang,
		Rate: c.rate,
	}
	u.OnEnd = func(err error) { c.finished(chunk, err) }

	c.mu.Lock()
	c.active = chunk
	playing := c.state == Playing
	c.mu.Unlock()

	if err := c.speaker.Speak(u); err != nil {
		c.mu.Lock()
		if c.active == chunk {
			c.active = nil
		}
		c.mu.Unlock()
		c.fail("Failed to speak chunk", err)
		return
	}

	c.logger.Debug("Speaking chunk", "id", chunk.ID, "source", chunk.Source)
	c.emit(Event{Type: EventChunk, State: c.State(), Chunk: chunk})

	if playing {
		if err := c.speaker.Resume(); err != nil {
			c.logger.Warn("Failed to resume speaker", "error", err)
		}
	}
}

// finished runs when the speaker is done with chunk. It only signals the
// loop; it never pulls inline.
func (c *Controller) finished(chunk *document.Chunk, err error) {
	c.mu.Lock()
	if c.active != chunk {
		c.mu.Unlock()
		return
	}
	c.active = nil
	playing := c.state == Playing
	if err == nil {
		c.stats.ChunksSpoken++
	}
	c.stats.LastActivity = time.Now()
	c.mu.Unlock()

	switch {
	case errors.Is(err, speech.ErrClosed):
		return
	case err != nil:
		// Skip the chunk rather than stall the narration.
		c.fail("Chunk was not spoken", err)
	}

	if playing {
		c.requestPull()
	}
}

func (c *Controller) fail(msg string, err error) {
	c.mu.Lock()
	c.stats.Errors++
	c.mu.Unlock()

	c.logger.Error(msg, "error", err)
	c.emit(Event{Type: EventError, State: c.State(), Err: err})
}
