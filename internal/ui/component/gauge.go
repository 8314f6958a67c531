package component

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/solana-rpcmux/internal/ui/style"
)

// RateGauge represents a horizontal percentage gauge component
type RateGauge struct {
	value     float64 // 0..100
	width     int
	showValue bool

	// Thresholds for color coding
	goodAbove float64
	warnAbove float64
}

// NewRateGauge creates a new percentage gauge component
func NewRateGauge(width int) *RateGauge {
	return &RateGauge{
		width:     width,
		showValue: true,
		goodAbove: 60.0, // above this the gauge reads healthy
		warnAbove: 25.0, // above this the gauge reads merely warm
	}
}

// SetValue sets the percentage value, clamped to 0..100
func (g *RateGauge) SetValue(value float64) *RateGauge {
	switch {
	case value < 0:
		g.value = 0
	case value > 100:
		g.value = 100
	default:
		g.value = value
	}
	return g
}

// SetWidth sets the gauge width
func (g *RateGauge) SetWidth(width int) *RateGauge {
	g.width = width
	return g
}

// SetShowValue enables/disables the numeric label
func (g *RateGauge) SetShowValue(show bool) *RateGauge {
	g.showValue = show
	return g
}

// SetThresholds sets the color-coding thresholds
func (g *RateGauge) SetThresholds(goodAbove, warnAbove float64) *RateGauge {
	g.goodAbove = goodAbove
	g.warnAbove = warnAbove
	return g
}

// Color returns the current color based on the value
func (g *RateGauge) Color() lipgloss.Color {
	palette := style.DefaultPalette()

	switch {
	case g.value >= g.goodAbove:
		return palette.Success
	case g.value >= g.warnAbove:
		return palette.Warning
	default:
		return palette.Error
	}
}

// View renders the gauge
func (g *RateGauge) View() string {
	bar := lipgloss.NewStyle().Foreground(g.Color()).Render(g.generateBar())

	if g.showValue {
		label := lipgloss.NewStyle().Foreground(g.Color()).Bold(true).
			Render(fmt.Sprintf("%.1f%%", g.value))
		return bar + " " + label
	}

	return bar
}

// generateBar creates the visual gauge representation
func (g *RateGauge) generateBar() string {
	if g.width <= 0 {
		return ""
	}

	filled := int(g.value / 100 * float64(g.width))
	if filled < 1 && g.value > 0 {
		filled = 1
	}
	if filled > g.width {
		filled = g.width
	}

	var result strings.Builder
	for i := 0; i < g.width; i++ {
		if i < filled {
			result.WriteString("█")
		} else {
			result.WriteString("░")
		}
	}

	return result.String()
}
