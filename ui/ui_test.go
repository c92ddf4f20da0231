package ui

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/speechify/internal/document"
	"github.com/dgnsrekt/speechify/internal/playback"
)

type fakeController struct {
	mu         sync.Mutex
	state      playback.State
	toggles    int
	reconciles int
	toggleErr  error
	listener   playback.Listener
}

func (f *fakeController) Toggle() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	if f.toggleErr != nil {
		return f.toggleErr
	}
	if f.state == playback.Playing {
		f.state = playback.NotPlaying
	} else {
		f.state = playback.Playing
	}
	return nil
}

func (f *fakeController) Reconcile() playback.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconciles++
	return f.state
}

func (f *fakeController) State() playback.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) Stats() playback.Stats {
	return playback.Stats{ChunksSpoken: 3}
}

func (f *fakeController) Subscribe(l playback.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
	return func() {}
}

func (f *fakeController) emit(e playback.Event) {
	f.mu.Lock()
	l := f.listener
	f.mu.Unlock()
	l(e)
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return mm, cmd
}

func TestQuitKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
		{Type: tea.KeyEsc},
	} {
		t.Run(key.String(), func(t *testing.T) {
			m := newModel(Config{}, &fakeController{})
			_, cmd := update(t, m, key)
			if cmd == nil {
				t.Fatal("expected a command")
			}
			if _, ok := cmd().(tea.QuitMsg); !ok {
				t.Error("expected tea.QuitMsg")
			}
		})
	}
}

func TestSpaceToggles(t *testing.T) {
	ctrl := &fakeController{}
	m := newModel(Config{}, ctrl)

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")})
	if cmd == nil {
		t.Fatal("expected toggle command")
	}
	if msg := cmd(); msg != nil {
		t.Errorf("toggle returned %v", msg)
	}
	if ctrl.toggles != 1 || ctrl.State() != playback.Playing {
		t.Errorf("toggles = %d, state = %v", ctrl.toggles, ctrl.State())
	}
}

func TestToggleFailureIsShown(t *testing.T) {
	ctrl := &fakeController{toggleErr: errors.New("speaker gone")}
	m := newModel(Config{}, ctrl)

	msg := toggle(ctrl)()
	if _, ok := msg.(errMsg); !ok {
		t.Fatalf("toggle returned %T, want errMsg", msg)
	}
	m, _ = update(t, m, msg)
	if !strings.Contains(m.View(), "speaker gone") {
		t.Error("view does not show the error")
	}
}

func TestEventsUpdateView(t *testing.T) {
	ctrl := &fakeController{}
	m := newModel(Config{PreviewWidth: 40}, ctrl)

	ctrl.emit(playback.Event{Type: playback.EventState, State: playback.Playing})
	ctrl.emit(playback.Event{Type: playback.EventChunk, Chunk: &document.Chunk{
		ID:     "1",
		Source: "news.example.com",
		Data:   "Reading Text from news.example.com.\n Markets rallied today after a long and rather uneventful week.",
	}})

	for range 2 {
		msg := waitForEvent(m.events)()
		var cmd tea.Cmd
		m, cmd = update(t, m, msg)
		if cmd == nil {
			t.Fatal("event handling must keep listening")
		}
	}

	view := m.View()
	for _, want := range []string{"PLAYING", "news.example.com", "3 spoken", ellipsis} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "uneventful week") {
		t.Error("preview was not truncated")
	}
}

func TestErrorEventClearedByNextChunk(t *testing.T) {
	s := statusDisplay{}
	s.apply(playback.Event{Type: playback.EventError, Err: errors.New("connection refused")})
	if s.errorLine(80) == "" {
		t.Fatal("expected error line")
	}
	s.apply(playback.Event{Type: playback.EventChunk, Chunk: &document.Chunk{Data: "hi"}})
	if s.errorLine(80) != "" {
		t.Error("error not cleared by the next chunk")
	}
}

func TestListenerNeverBlocks(t *testing.T) {
	ctrl := &fakeController{}
	_ = newModel(Config{}, ctrl)

	done := make(chan struct{})
	go func() {
		for range eventBuffer * 2 {
			ctrl.emit(playback.Event{Type: playback.EventState})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener blocked with a full buffer")
	}
}

func TestReconcileTick(t *testing.T) {
	ctrl := &fakeController{state: playback.Playing}
	m := newModel(Config{ReconcileInterval: time.Millisecond}, ctrl)
	m.status.state = playback.NotPlaying

	m, cmd := update(t, m, reconcileMsg{})
	if cmd == nil {
		t.Fatal("reconcile must reschedule itself")
	}
	if ctrl.reconciles != 1 || m.status.state != playback.Playing {
		t.Errorf("reconciles = %d, state = %v", ctrl.reconciles, m.status.state)
	}
}

func TestWaitingView(t *testing.T) {
	m := newModel(Config{}, &fakeController{})
	view := m.View()
	if !strings.Contains(view, "NOT_PLAYING") || !strings.Contains(view, "Waiting for content") {
		t.Errorf("unexpected idle view:\n%s", view)
	}
}
