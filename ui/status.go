package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/speechify/internal/document"
	"github.com/dgnsrekt/speechify/internal/playback"
)

const ellipsis = "…"

var (
	playingColor = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	pausedColor  = lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"}
	errorColor   = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	subtleColor  = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}

	headerStyle  = lipgloss.NewStyle().Bold(true)
	previewStyle = lipgloss.NewStyle().PaddingLeft(2)
	sourceStyle  = lipgloss.NewStyle().Foreground(subtleColor).PaddingLeft(2)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).PaddingLeft(2)
	helpStyle    = lipgloss.NewStyle().Foreground(subtleColor)
)

// statusDisplay holds what the status view shows about the controller.
type statusDisplay struct {
	state   playback.State
	chunk   *document.Chunk
	spoken  int64
	errText string
}

// apply folds a controller event into the display.
func (s *statusDisplay) apply(e playback.Event) {
	switch e.Type {
	case playback.EventState:
		s.state = e.State
	case playback.EventChunk:
		s.chunk = e.Chunk
		s.errText = ""
	case playback.EventError:
		if e.Err != nil {
			s.errText = e.Err.Error()
		}
	}
}

func (s statusDisplay) icon() string {
	if s.state == playback.Playing {
		return "▶"
	}
	return "⏸"
}

func (s statusDisplay) color() lipgloss.TerminalColor {
	if s.state == playback.Playing {
		return playingColor
	}
	return pausedColor
}

// header renders the one-line state summary.
func (s statusDisplay) header(spin string) string {
	state := lipgloss.NewStyle().Foreground(s.color()).Render(s.icon() + " " + s.state.String())
	line := headerStyle.Render(state)
	if s.state == playback.Playing && spin != "" {
		line += " " + spin
	}
	if s.spoken > 0 {
		line += helpStyle.Render(fmt.Sprintf("  %d spoken", s.spoken))
	}
	return line
}

// preview renders the current chunk, truncated to width.
func (s statusDisplay) preview(width int) string {
	if s.chunk == nil {
		return sourceStyle.Render("Waiting for content" + ellipsis)
	}
	if width < 10 {
		width = 10
	}

	text := strings.Join(strings.Fields(s.chunk.Data), " ")
	lines := []string{
		previewStyle.Render(truncate.StringWithTail(text, uint(width), ellipsis)), //nolint:gosec
	}
	if s.chunk.Source != "" {
		lines = append(lines, sourceStyle.Render(truncate.StringWithTail(s.chunk.Source, uint(width), ellipsis))) //nolint:gosec
	}
	return strings.Join(lines, "\n")
}

func (s statusDisplay) errorLine(width int) string {
	if s.errText == "" {
		return ""
	}
	if width < 10 {
		width = 10
	}
	return errorStyle.Render(truncate.StringWithTail("Error: "+s.errText, uint(width), ellipsis)) //nolint:gosec
}
