package component

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rovshanmuradov/solana-rpcmux/internal/ui/style"
)

// Sparkline is a mini graph for showing request-rate trends.
type Sparkline struct {
	data  []float64
	width int
	color lipgloss.Color
}

// NewSparkline creates a sparkline that keeps the last width points.
func NewSparkline(width int) *Sparkline {
	return &Sparkline{
		data:  make([]float64, 0, width),
		width: width,
		color: style.DefaultPalette().Primary,
	}
}

// AddDataPoint appends a sample, discarding the oldest beyond width.
func (s *Sparkline) AddDataPoint(value float64) *Sparkline {
	s.data = append(s.data, value)
	if len(s.data) > s.width {
		s.data = s.data[len(s.data)-s.width:]
	}
	return s
}

// SetWidth resizes the sparkline, trimming stored data if needed.
func (s *Sparkline) SetWidth(width int) *Sparkline {
	if width < 1 {
		width = 1
	}
	s.width = width
	if len(s.data) > width {
		s.data = s.data[len(s.data)-width:]
	}
	return s
}

// SetColor sets the rendering color.
func (s *Sparkline) SetColor(color lipgloss.Color) *Sparkline {
	s.color = color
	return s
}

// View renders the sparkline.
func (s *Sparkline) View() string {
	blocks := s.generateSparkBlocks()
	return lipgloss.NewStyle().Foreground(s.color).Render(blocks)
}

// Latest returns the most recent sample, zero when empty.
func (s *Sparkline) Latest() float64 {
	if len(s.data) == 0 {
		return 0
	}
	return s.data[len(s.data)-1]
}

func (s *Sparkline) generateSparkBlocks() string {
	if len(s.data) == 0 {
		return strings.Repeat("▁", s.width)
	}

	min, max := s.getMinMax()
	if min == max {
		padded := strings.Repeat("▄", len(s.data))
		return padded + strings.Repeat(" ", s.width-len(s.data))
	}

	// Spark characters from lowest to highest
	sparkChars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	var result strings.Builder
	for _, value := range s.data {
		normalized := (value - min) / (max - min)
		index := int(normalized * float64(len(sparkChars)-1))
		if index < 0 {
			index = 0
		} else if index >= len(sparkChars) {
			index = len(sparkChars) - 1
		}
		result.WriteRune(sparkChars[index])
	}
	for i := len(s.data); i < s.width; i++ {
		result.WriteRune(' ')
	}

	return result.String()
}

func (s *Sparkline) getMinMax() (float64, float64) {
	min := s.data[0]
	max := s.data[0]
	for _, value := range s.data {
		if value < min {
			min = value
		}
		if value > max {
			max = value
		}
	}
	return min, max
}
