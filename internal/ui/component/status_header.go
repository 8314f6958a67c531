package component

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rovshanmuradov/solana-rpcmux/internal/ui/style"
)

// MuxStatus is the condensed state shown in the header.
type MuxStatus struct {
	Reachable bool
	Degraded  bool
	Latency   time.Duration
	LastCheck time.Time
}

// StatusHeader is the top bar: admin address, reachability, cache hit
// rate and total call count.
type StatusHeader struct {
	addr    string
	status  MuxStatus
	hitRate float64
	calls   uint64
	width   int
	style   statusHeaderStyle
}

type statusHeaderStyle struct {
	container lipgloss.Style
	title     lipgloss.Style
	addr      lipgloss.Style
	good      lipgloss.Style
	warn      lipgloss.Style
	bad       lipgloss.Style
	muted     lipgloss.Style
}

// NewStatusHeader creates a new status header component
func NewStatusHeader(addr string) *StatusHeader {
	palette := style.DefaultPalette()

	return &StatusHeader{
		addr: addr,
		style: statusHeaderStyle{
			container: lipgloss.NewStyle().
				Background(palette.Background).
				Foreground(palette.Text).
				Border(lipgloss.RoundedBorder()).
				BorderForeground(palette.Primary).
				Padding(0, 2).
				MarginBottom(1),

			title: lipgloss.NewStyle().
				Foreground(palette.Primary).
				Bold(true),

			addr: lipgloss.NewStyle().
				Foreground(palette.TextSecondary),

			good: lipgloss.NewStyle().
				Foreground(palette.Success).
				Bold(true),

			warn: lipgloss.NewStyle().
				Foreground(palette.Warning).
				Bold(true),

			bad: lipgloss.NewStyle().
				Foreground(palette.Error).
				Bold(true),

			muted: lipgloss.NewStyle().
				Foreground(palette.TextMuted),
		},
	}
}

// SetStatus updates the reachability section.
func (sh *StatusHeader) SetStatus(status MuxStatus) {
	sh.status = status
}

// SetCacheHitRate updates the cache hit percentage display.
func (sh *StatusHeader) SetCacheHitRate(rate float64) {
	sh.hitRate = rate
}

// SetCalls updates the total dispatched call counter.
func (sh *StatusHeader) SetCalls(calls uint64) {
	sh.calls = calls
}

// SetWidth sets the component width for responsive layout
func (sh *StatusHeader) SetWidth(width int) {
	sh.width = width
	sh.style.container = sh.style.container.Width(width - 4)
}

// View renders the status header
func (sh *StatusHeader) View() string {
	title := sh.style.title.Render("Solana RPC Mux")
	addr := sh.style.addr.Render(sh.addr)
	state := sh.renderState()
	cache := sh.style.muted.Render(fmt.Sprintf("cache %.1f%%", sh.hitRate))
	calls := sh.style.muted.Render(fmt.Sprintf("calls %d", sh.calls))

	content := lipgloss.JoinHorizontal(
		lipgloss.Left,
		title,
		" | ",
		addr,
		" | ",
		state,
		" | ",
		cache,
		" | ",
		calls,
	)

	return sh.style.container.Render(content)
}

// GetHeight returns the component height for layout calculations
func (sh *StatusHeader) GetHeight() int {
	return 4 // Border + padding + content + margin
}

func (sh *StatusHeader) renderState() string {
	if !sh.status.Reachable {
		return sh.style.bad.Render("🔴 unreachable")
	}
	if sh.status.Degraded {
		return sh.style.warn.Render("🟡 degraded")
	}
	return sh.style.good.Render(fmt.Sprintf("🟢 OK (%dms)", sh.status.Latency.Milliseconds()))
}
