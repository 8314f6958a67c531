package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// SafeModel wraps a tea.Model so a panic in Init, Update or View degrades
// into an on-screen error instead of tearing down the terminal.
type SafeModel struct {
	inner   tea.Model
	failure string
}

// WithRecovery wraps the given model with panic recovery.
func WithRecovery(inner tea.Model) *SafeModel {
	return &SafeModel{inner: inner}
}

// Failure returns the last captured panic, empty when none occurred.
func (s *SafeModel) Failure() string {
	return s.failure
}

// Init initializes the wrapped model
func (s *SafeModel) Init() (cmd tea.Cmd) {
	defer s.capture(&cmd)
	return s.inner.Init()
}

// Update forwards messages to the wrapped model
func (s *SafeModel) Update(msg tea.Msg) (model tea.Model, cmd tea.Cmd) {
	model = s

	// Keep quit reachable even when the wrapped Update keeps panicking.
	if s.failure != "" {
		if k, ok := msg.(tea.KeyMsg); ok {
			switch k.String() {
			case "ctrl+c", "q":
				return s, tea.Quit
			}
		}
	}

	defer s.capture(&cmd)
	inner, innerCmd := s.inner.Update(msg)
	s.inner = inner
	cmd = innerCmd
	return model, cmd
}

// View renders the wrapped model
func (s *SafeModel) View() (view string) {
	defer func() {
		if r := recover(); r != nil {
			s.failure = fmt.Sprintf("%v", r)
			view = s.failureView()
		}
	}()
	return s.inner.View()
}

func (s *SafeModel) capture(cmd *tea.Cmd) {
	if r := recover(); r != nil {
		s.failure = fmt.Sprintf("%v", r)
		*cmd = nil
	}
}

func (s *SafeModel) failureView() string {
	return fmt.Sprintf("Dashboard crashed: %s\n\nPress q to quit.", s.failure)
}
