package playback

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/speechify/internal/document"
	"github.com/dgnsrekt/speechify/internal/speech"
)

type fakeRemote struct {
	mu     sync.Mutex
	chunks []*document.Chunk
	added  []document.Document
	gets   int
	err    error
}

func (r *fakeRemote) AddToQueue(_ context.Context, doc document.Document) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	r.added = append(r.added, doc)
	r.chunks = append(r.chunks, &document.Chunk{ID: doc.Source, Source: doc.Source, Data: doc.Data, Type: doc.Type})
	return true, nil
}

func (r *fakeRemote) GetNextChunk(context.Context) (*document.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	if r.err != nil {
		return nil, r.err
	}
	if len(r.chunks) == 0 {
		return nil, nil
	}
	c := r.chunks[0]
	r.chunks = r.chunks[1:]
	return c, nil
}

func (r *fakeRemote) push(data ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range data {
		r.chunks = append(r.chunks, &document.Chunk{ID: d, Source: "test", Data: d, Type: document.TypeText})
	}
}

func (r *fakeRemote) getCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets
}

// fakeSpeaker holds utterances until the test finishes them.
type fakeSpeaker struct {
	mu          sync.Mutex
	spoken      []string
	inFlight    []*speech.Utterance
	maxInFlight int
	paused      bool
	speaking    bool // forced Speaking status
	resumes     int
}

func (s *fakeSpeaker) Speak(u *speech.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, u.Text)
	s.inFlight = append(s.inFlight, u)
	if len(s.inFlight) > s.maxInFlight {
		s.maxInFlight = len(s.inFlight)
	}
	return nil
}

func (s *fakeSpeaker) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	return nil
}

func (s *fakeSpeaker) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	s.resumes++
	return nil
}

func (s *fakeSpeaker) Status() speech.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return speech.Status{Paused: s.paused, Speaking: s.speaking || len(s.inFlight) > 0}
}

func (s *fakeSpeaker) Close() error { return nil }

// finish completes the oldest utterance with err.
func (s *fakeSpeaker) finish(err error) bool {
	s.mu.Lock()
	if len(s.inFlight) == 0 {
		s.mu.Unlock()
		return false
	}
	u := s.inFlight[0]
	s.inFlight = s.inFlight[1:]
	s.mu.Unlock()

	u.OnEnd(err)
	return true
}

func (s *fakeSpeaker) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func (s *fakeSpeaker) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// recorder collects events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func newTestController(t *testing.T, remote *fakeRemote, speaker *fakeSpeaker) *Controller {
	t.Helper()
	c := New(remote, speaker, WithLogger(log.New(io.Discard)))
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPlayOnEmptyQueue(t *testing.T) {
	remote, speaker := &fakeRemote{}, &fakeSpeaker{}
	c := newTestController(t, remote, speaker)
	rec := &recorder{}
	c.Subscribe(rec.listen)

	if c.State() != NotPlaying {
		t.Fatalf("initial state = %v", c.State())
	}
	if err := c.Play(); err != nil {
		t.Fatal(err)
	}

	eventually(t, "a pull", func() bool { return remote.getCount() == 1 })
	if c.State() != Playing {
		t.Errorf("State() = %v, want PLAYING", c.State())
	}
	if c.Active() != nil {
		t.Errorf("Active() = %+v, want nil", c.Active())
	}
	if got := rec.ofType(EventState); len(got) != 1 || got[0].State != Playing {
		t.Errorf("state events = %+v", got)
	}
}

func TestPlaysChunksInOrder(t *testing.T) {
	remote, speaker := &fakeRemote{}, &fakeSpeaker{}
	remote.push("one", "two", "three")
	c := newTestController(t, remote, speaker)
	rec := &recorder{}
	c.Subscribe(rec.listen)

	_ = c.Play()
	for i := 1; i <= 3; i++ {
		eventually(t, "next utterance", func() bool { return speaker.pending() == 1 })
		if len(speaker.texts()) != i {
			t.Fatalf("spoken %v after %d finishes", speaker.texts(), i-1)
		}
		speaker.finish(nil)
	}

	eventually(t, "idle", func() bool { return c.Active() == nil && remote.getCount() == 4 })

	want := []string{"one", "two", "three"}
	got := speaker.texts()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("spoken[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if n := len(rec.ofType(EventChunk)); n != 3 {
		t.Errorf("chunk events = %d, want 3", n)
	}
	if st := c.Stats(); st.ChunksSpoken != 3 {
		t.Errorf("ChunksSpoken = %d, want 3", st.ChunksSpoken)
	}
}

func TestUtteranceSettings(t *testing.T) {
	remote := &fakeRemote{}
	remote.push("hello")

	var got *speech.Utterance
	var mu sync.Mutex
	speaker := &capturingSpeaker{fakeSpeaker: &fakeSpeaker{}, capture: func(u *speech.Utterance) {
		mu.Lock()
		got = u
		mu.Unlock()
	}}

	c := New(remote, speaker, WithLogger(log.New(io.Discard)))
	_ = c.Start(context.Background())
	defer c.Close()

	_ = c.Play()
	eventually(t, "utterance", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	})

	mu.Lock()
	defer mu.Unlock()
	if got.Lang != "en-US" || got.Rate != 0.9 || got.Text != "hello" {
		t.Errorf("utterance = %+v", got)
	}
}

type capturingSpeaker struct {
	*fakeSpeaker
	capture func(*speech.Utterance)
}

func (s *capturingSpeaker) Speak(u *speech.Utterance) error {
	s.capture(u)
	return s.fakeSpeaker.Speak(u)
}

func TestNeverDoubleSpeaks(t *testing.T) {
	remote, speaker := &fakeRemote{}, &fakeSpeaker{}
	remote.push("a", "b", "c", "d")
	c := newTestController(t, remote, speaker)

	for i := 0; i < 10; i++ {
		_ = c.Play()
		_, _ = c.AddToQueue(context.Background(), document.Document{Type: document.TypeText, Source: "x", Data: "more"})
	}
	eventually(t, "first utterance", func() bool { return speaker.pending() == 1 })
	time.Sleep(20 * time.Millisecond)

	speaker.mu.Lock()
	defer speaker.mu.Unlock()
	if speaker.maxInFlight != 1 {
		t.Errorf("max utterances in flight = %d, want 1", speaker.maxInFlight)
	}
}

func TestPauseStopsChain(t *testing.T) {
	remote, speaker := &fakeRemote{}, &fakeSpeaker{}
	remote.push("one", "two")
	c := newTestController(t, remote, speaker)

	_ = c.Play()
	eventually(t, "first utterance", func() bool { return speaker.pending() == 1 })

	if err := c.Pause(); err != nil {
		t.Fatal(err)
	}
	gets := remote.getCount()
	speaker.finish(nil)

	time.Sleep(20 * time.Millisecond)
	if remote.getCount() != gets {
		t.Error("completion while paused pulled another chunk")
	}
	if c.Active() != nil {
		t.Error("completion while paused did not clear the active chunk")
	}

	_ = c.Play()
	eventually(t, "second utterance", func() bool { return speaker.pending() == 1 })
	if got := speaker.texts(); got[len(got)-1] != "two" {
		t.Errorf("spoken %v", got)
	}
}

func TestPauseThenReconcileIdle(t *testing.T) {
	remote, speaker := &fakeRemote{}, &fakeSpeaker{}
	c := newTestController(t, remote, speaker)

	_ = c.Play()
	_ = c.Pause()
	if got := c.Reconcile(); got != NotPlaying {
		t.Errorf("Reconcile() = %v, want NOT_PLAYING", got)
	}
}

func TestReconcileResyncsToPlaying(t *testing.T) {
	remote, speaker := &fakeRemote{}, &fakeSpeaker{speaking: true}
	c := newTestController(t, remote, speaker)
	rec := &recorder{}
	c.Subscribe(rec.listen)

	if got := c.Reconcile(); got != Playing {
		t.Fatalf("Reconcile() = %v, want PLAYING", got)
	}
	if got := c.Reconcile(); got != Playing {
		t.Fatalf("second Reconcile() = %v", got)
	}
	if n := len(rec.ofType(EventState)); n != 1 {
		t.Errorf("state events = %d, want 1 (only on change)", n)
	}

	// A paused speaker never forces Playing.
	_ = c.Pause()
	if got := c.Reconcile(); got != NotPlaying {
		t.Errorf("Reconcile() with paused speaker = %v", got)
	}
}

func TestAddToQueueUnstalls(t *testing.T) {
	remote, speaker := &fakeRemote{}, &fakeSpeaker{}
	c := newTestController(t, remote, speaker)

	_ = c.Play()
	eventually(t, "empty pull", func() bool { return remote.getCount() == 1 })

	ok, err := c.AddToQueue(context.Background(), document.Document{Type: document.TypeText, Source: "s", Data: "late"})
	if err != nil || !ok {
		t.Fatalf("AddToQueue() = %v, %v", ok, err)
	}
	eventually(t, "unstalled utterance", func() bool { return speaker.pending() == 1 })
	if got := speaker.texts(); got[0] != "late" {
		t.Errorf("spoken %v", got)
	}
}

func TestAddToQueueWhileNotPlaying(t *testing.T) {
	remote, speaker := &fakeRemote{}, &fakeSpeaker{}
	c := newTestController(t, remote, speaker)

	if _, err := c.AddToQueue(context.Background(), document.Document{Type: document.TypeText, Source: "s", Data: "x"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if remote.getCount() != 0 {
		t.Error("AddToQueue pulled while not playing")
	}
}

func TestRefreshPicksUpRemoteChunks(t *testing.T) {
	remote, speaker := &fakeRemote{}, &fakeSpeaker{}
	c := newTestController(t, remote, speaker)

	c.Refresh()
	time.Sleep(20 * time.Millisecond)
	if remote.getCount() != 0 {
		t.Fatal("Refresh pulled while not playing")
	}

	_ = c.Play()
	eventually(t, "empty pull", func() bool { return remote.getCount() == 1 })

	// Another client queues content behind the controller's back.
	remote.push("from elsewhere")
	c.Refresh()
	eventually(t, "refreshed utterance", func() bool { return speaker.pending() == 1 })

	// With a chunk active, Refresh must not fetch again.
	gets := remote.getCount()
	c.Refresh()
	time.Sleep(20 * time.Millisecond)
	if remote.getCount() != gets {
		t.Error("Refresh pulled with a chunk active")
	}
}

func TestRemoteFailureSurfaces(t *testing.T) {
	boom := errors.New("connection refused")
	remote, speaker := &fakeRemote{err: boom}, &fakeSpeaker{}
	c := newTestController(t, remote, speaker)
	rec := &recorder{}
	c.Subscribe(rec.listen)

	_ = c.Play()
	eventually(t, "error event", func() bool { return len(rec.ofType(EventError)) == 1 })

	if e := rec.ofType(EventError)[0]; !errors.Is(e.Err, boom) {
		t.Errorf("error event = %+v", e)
	}
	if c.Active() != nil {
		t.Error("controller not idle after failure")
	}
	if _, err := c.AddToQueue(context.Background(), document.Document{}); !errors.Is(err, boom) {
		t.Errorf("AddToQueue error = %v", err)
	}
}

func TestFailedUtteranceIsSkipped(t *testing.T) {
	remote, speaker := &fakeRemote{}, &fakeSpeaker{}
	remote.push("bad", "good")
	c := newTestController(t, remote, speaker)
	rec := &recorder{}
	c.Subscribe(rec.listen)

	_ = c.Play()
	eventually(t, "first utterance", func() bool { return speaker.pending() == 1 })
	speaker.finish(errors.New("synthesis failed"))

	eventually(t, "second utterance", func() bool { return len(speaker.texts()) == 2 })
	if n := len(rec.ofType(EventError)); n != 1 {
		t.Errorf("error events = %d, want 1", n)
	}
}

func TestSubscribe(t *testing.T) {
	c := New(&fakeRemote{}, &fakeSpeaker{}, WithLogger(log.New(io.Discard)))

	first, second := &recorder{}, &recorder{}
	unsubFirst := c.Subscribe(first.listen)
	c.Subscribe(second.listen)

	_ = c.Pause()
	if len(first.events) != 0 {
		t.Error("replaced listener still received events")
	}
	if len(second.events) != 1 {
		t.Errorf("current listener got %d events, want 1", len(second.events))
	}

	// Unsubscribing the replaced listener must not remove the current one.
	unsubFirst()
	_ = c.Pause()
	if len(second.events) != 2 {
		t.Errorf("current listener got %d events, want 2", len(second.events))
	}
}

func TestUnsubscribeStopsEvents(t *testing.T) {
	c := New(&fakeRemote{}, &fakeSpeaker{}, WithLogger(log.New(io.Discard)))
	rec := &recorder{}
	unsub := c.Subscribe(rec.listen)
	unsub()

	_ = c.Pause()
	if len(rec.events) != 0 {
		t.Errorf("got %d events after unsubscribe", len(rec.events))
	}
}

func TestToggle(t *testing.T) {
	remote, speaker := &fakeRemote{}, &fakeSpeaker{}
	c := newTestController(t, remote, speaker)

	_ = c.Toggle()
	if c.State() != Playing {
		t.Errorf("after first Toggle state = %v", c.State())
	}
	_ = c.Toggle()
	if c.State() != NotPlaying {
		t.Errorf("after second Toggle state = %v", c.State())
	}
	if !speaker.Status().Paused {
		t.Error("speaker not paused")
	}
}

func TestStartTwiceAndClose(t *testing.T) {
	remote := &fakeRemote{}
	c := New(remote, &fakeSpeaker{}, WithLogger(log.New(io.Discard)))
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() = %v", err)
	}
	_ = c.Close()

	_ = c.Play()
	time.Sleep(20 * time.Millisecond)
	if remote.getCount() != 0 {
		t.Error("closed controller still pulling")
	}
}

func TestStateString(t *testing.T) {
	if Playing.String() != "PLAYING" || NotPlaying.String() != "NOT_PLAYING" {
		t.Errorf("unexpected state names %s/%s", Playing, NotPlaying)
	}
}
