package component

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/solana-rpcmux/internal/endpoint"
	"github.com/rovshanmuradov/solana-rpcmux/internal/ui/style"
)

// EndpointDetail provides a detailed view of the selected endpoint
type EndpointDetail struct {
	stats    endpoint.Stats
	hasStats bool
	style    endpointDetailStyle
	width    int
}

type endpointDetailStyle struct {
	container lipgloss.Style
	title     lipgloss.Style
	stats     lipgloss.Style
	muted     lipgloss.Style
}

// NewEndpointDetail creates a new endpoint detail component
func NewEndpointDetail() *EndpointDetail {
	palette := style.DefaultPalette()

	return &EndpointDetail{
		style: endpointDetailStyle{
			container: lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(palette.Secondary).
				Padding(0, 2).
				MarginTop(1),

			title: lipgloss.NewStyle().
				Foreground(palette.Primary).
				Bold(true),

			stats: lipgloss.NewStyle().
				Foreground(palette.Text).
				Padding(0, 1),

			muted: lipgloss.NewStyle().
				Foreground(palette.TextMuted),
		},
	}
}

// SetEndpoint updates the focused endpoint
func (d *EndpointDetail) SetEndpoint(stats endpoint.Stats) {
	d.stats = stats
	d.hasStats = true
}

// Clear removes the focused endpoint
func (d *EndpointDetail) Clear() {
	d.hasStats = false
}

// SetWidth sets the component width
func (d *EndpointDetail) SetWidth(width int) {
	d.width = width
	d.style.container = d.style.container.Width(width - 2)
}

// View renders the endpoint detail pane
func (d *EndpointDetail) View() string {
	if !d.hasStats {
		return ""
	}

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		d.style.title.Render("Focus: "+d.stats.Name),
		d.renderStats(),
		d.renderState(),
	)

	return d.style.container.Render(content)
}

// GetHeight returns the component height for layout calculations
func (d *EndpointDetail) GetHeight() int {
	if !d.hasStats {
		return 0
	}
	return 7
}

func (d *EndpointDetail) renderStats() string {
	leftColumn := lipgloss.JoinVertical(
		lipgloss.Left,
		fmt.Sprintf("Requests: %d", d.stats.RequestCount),
		fmt.Sprintf("Errors: %d (%s)", d.stats.ErrorCount, d.errorRate()),
		fmt.Sprintf("Streak: %d", d.stats.ConsecutiveErrors),
	)

	rightColumn := lipgloss.JoinVertical(
		lipgloss.Left,
		fmt.Sprintf("Priority: %d", d.stats.Priority),
		"Classes: "+strings.Join(d.stats.Classes, ", "),
		"Last used: "+d.lastUsed(),
	)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		d.style.stats.Width(24).Render(leftColumn),
		d.style.stats.Render(rightColumn),
	)
}

func (d *EndpointDetail) renderState() string {
	url := d.style.muted.Render(d.stats.URL)

	if d.stats.InCooldown {
		state := style.WarningStyle.Render(
			"cooling until " + d.stats.CooldownUntil.Format("15:04:05"))
		return state + "  " + url
	}

	return style.SuccessStyle.Render("serving") + "  " + url
}

func (d *EndpointDetail) errorRate() string {
	if d.stats.RequestCount == 0 {
		return "0.0%"
	}
	rate := float64(d.stats.ErrorCount) / float64(d.stats.RequestCount) * 100
	return fmt.Sprintf("%.1f%%", rate)
}

func (d *EndpointDetail) lastUsed() string {
	if d.stats.LastUsed.IsZero() {
		return "never"
	}
	return d.stats.LastUsed.Format(time.Kitchen)
}
