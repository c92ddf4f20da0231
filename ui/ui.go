// Package ui provides the status display shown while listening.
package ui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/speechify/internal/playback"
)

// eventBuffer bounds how many controller events may wait for the UI.
// Events beyond it are dropped; the reconcile tick repairs the state.
const eventBuffer = 64

// Controller is the part of playback.Controller the UI drives.
type Controller interface {
	Toggle() error
	Reconcile() playback.State
	State() playback.State
	Stats() playback.Stats
	Subscribe(playback.Listener) (unsubscribe func())
}

type (
	eventMsg     playback.Event
	reconcileMsg struct{}
	errMsg       struct{ err error }
)

func (e errMsg) Error() string { return e.err.Error() }

type model struct {
	cfg     Config
	ctrl    Controller
	events  chan playback.Event
	status  statusDisplay
	spinner spinner.Model
	width   int
}

// NewProgram returns a new Tea program showing ctrl's status. It replaces any
// listener already subscribed to ctrl.
func NewProgram(cfg Config, ctrl Controller) *tea.Program {
	log.Debug("Starting status UI", "reconcile_interval", cfg.ReconcileInterval)

	var opts []tea.ProgramOption
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, ctrl), opts...)
}

func newModel(cfg Config, ctrl Controller) model {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = time.Second
	}
	if cfg.PreviewWidth <= 0 {
		cfg.PreviewWidth = 72
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = sp.Style.Foreground(playingColor)

	m := model{
		cfg:     cfg,
		ctrl:    ctrl,
		events:  make(chan playback.Event, eventBuffer),
		spinner: sp,
		width:   cfg.PreviewWidth,
	}
	m.status.state = ctrl.State()
	ctrl.Subscribe(m.listen)
	return m
}

// listen must not block: the controller calls it synchronously.
func (m model) listen(e playback.Event) {
	select {
	case m.events <- e:
	default:
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForEvent(m.events),
		reconcileTick(m.cfg.ReconcileInterval),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case " ", "p":
			return m, toggle(m.ctrl)
		}

	case tea.WindowSizeMsg:
		m.width = min(msg.Width-4, m.cfg.PreviewWidth)

	case eventMsg:
		m.status.apply(playback.Event(msg))
		m.status.spoken = m.ctrl.Stats().ChunksSpoken
		return m, waitForEvent(m.events)

	case reconcileMsg:
		m.status.state = m.ctrl.Reconcile()
		m.status.spoken = m.ctrl.Stats().ChunksSpoken
		return m, reconcileTick(m.cfg.ReconcileInterval)

	case errMsg:
		log.Error("Playback control failed", "error", msg.err)
		m.status.errText = msg.err.Error()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString("\n  ")
	b.WriteString(m.status.header(m.spinner.View()))
	b.WriteString("\n\n")
	b.WriteString(m.status.preview(m.width))
	b.WriteString("\n")
	if line := m.status.errorLine(m.width); line != "" {
		b.WriteString("\n")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n  ")
	b.WriteString(helpStyle.Render("space play/pause • q quit"))
	b.WriteString("\n")
	return b.String()
}

func waitForEvent(events <-chan playback.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-events)
	}
}

func reconcileTick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return reconcileMsg{}
	})
}

func toggle(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		if err := ctrl.Toggle(); err != nil {
			return errMsg{err}
		}
		return nil
	}
}
