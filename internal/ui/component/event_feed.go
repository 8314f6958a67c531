package component

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/solana-rpcmux/internal/ui/style"
)

// EventEntry is a single lifecycle event shown in the feed.
type EventEntry struct {
	Type   string
	Time   time.Time
	Detail string
}

// EventFeed shows recent endpoint and cache lifecycle events, newest first.
type EventFeed struct {
	entries  []EventEntry
	viewport viewport.Model
	style    eventFeedStyle
	width    int
	height   int
}

type eventFeedStyle struct {
	container lipgloss.Style
	title     lipgloss.Style
	timestamp lipgloss.Style
	cooldown  lipgloss.Style
	recovered lipgloss.Style
	failed    lipgloss.Style
	swept     lipgloss.Style
	plain     lipgloss.Style
}

// NewEventFeed creates a new event feed component
func NewEventFeed() *EventFeed {
	palette := style.DefaultPalette()

	return &EventFeed{
		viewport: viewport.New(50, 6),
		style: eventFeedStyle{
			container: lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(palette.Info).
				Padding(0, 1).
				MarginTop(1),

			title: lipgloss.NewStyle().
				Foreground(palette.Info).
				Bold(true),

			timestamp: lipgloss.NewStyle().
				Foreground(palette.TextMuted),

			cooldown:  lipgloss.NewStyle().Foreground(palette.Warning),
			recovered: lipgloss.NewStyle().Foreground(palette.Success),
			failed:    lipgloss.NewStyle().Foreground(palette.Error),
			swept:     lipgloss.NewStyle().Foreground(palette.TextMuted),
			plain:     lipgloss.NewStyle().Foreground(palette.Text),
		},
	}
}

// SetSize sets the component dimensions
func (f *EventFeed) SetSize(width, height int) {
	f.width = width
	f.height = height
	f.style.container = f.style.container.Width(width - 2)

	viewportHeight := height - 3 // Border and title
	if viewportHeight < 2 {
		viewportHeight = 2
	}
	f.viewport.Width = width - 4
	f.viewport.Height = viewportHeight
}

// SetEntries replaces the feed content. Entries are expected newest first.
func (f *EventFeed) SetEntries(entries []EventEntry) {
	f.entries = entries
	f.refreshViewport()
}

// Update forwards scroll input to the viewport
func (f *EventFeed) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	f.viewport, cmd = f.viewport.Update(msg)
	return cmd
}

// View renders the event feed
func (f *EventFeed) View() string {
	content := lipgloss.JoinVertical(
		lipgloss.Left,
		f.style.title.Render("Recent events"),
		f.viewport.View(),
	)

	return f.style.container.Render(content)
}

// GetHeight returns the component height for layout calculations
func (f *EventFeed) GetHeight() int {
	return f.height
}

func (f *EventFeed) refreshViewport() {
	if len(f.entries) == 0 {
		f.viewport.SetContent("No events yet.")
		return
	}

	lines := make([]string, 0, len(f.entries))
	for _, entry := range f.entries {
		lines = append(lines, f.formatEntry(entry))
	}

	f.viewport.SetContent(strings.Join(lines, "\n"))
	f.viewport.GotoTop()
}

func (f *EventFeed) formatEntry(entry EventEntry) string {
	timestamp := f.style.timestamp.Render(entry.Time.Format("15:04:05"))

	var styled string
	switch entry.Type {
	case "endpoint.cooldown":
		styled = f.style.cooldown.Render(entry.Detail)
	case "endpoint.recovered":
		styled = f.style.recovered.Render(entry.Detail)
	case "endpoint.probe_failed", "dispatch.failed":
		styled = f.style.failed.Render(entry.Detail)
	case "cache.swept":
		styled = f.style.swept.Render(entry.Detail)
	default:
		styled = f.style.plain.Render(entry.Detail)
	}

	return fmt.Sprintf("%s %s", timestamp, styled)
}
