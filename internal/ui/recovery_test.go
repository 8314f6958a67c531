package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

type explosiveModel struct {
	panicOnUpdate bool
	panicOnView   bool
	updates       int
}

func (m *explosiveModel) Init() tea.Cmd { return nil }

func (m *explosiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.panicOnUpdate {
		panic("update exploded")
	}
	m.updates++
	return m, nil
}

func (m *explosiveModel) View() string {
	if m.panicOnView {
		panic("view exploded")
	}
	return "all good"
}

func TestSafeModelPassesThroughWhenHealthy(t *testing.T) {
	inner := &explosiveModel{}
	safe := WithRecovery(inner)

	safe.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	if inner.updates != 1 {
		t.Errorf("Expected wrapped model to receive the message, updates=%d", inner.updates)
	}
	if got := safe.View(); got != "all good" {
		t.Errorf("Expected wrapped view, got %q", got)
	}
	if safe.Failure() != "" {
		t.Errorf("Expected no failure, got %q", safe.Failure())
	}
}

func TestSafeModelSurvivesViewPanic(t *testing.T) {
	safe := WithRecovery(&explosiveModel{panicOnView: true})

	view := safe.View()
	if !strings.Contains(view, "view exploded") {
		t.Errorf("Expected panic message in fallback view, got %q", view)
	}
	if safe.Failure() == "" {
		t.Error("Expected failure to be recorded")
	}
}

func TestSafeModelSurvivesUpdatePanic(t *testing.T) {
	safe := WithRecovery(&explosiveModel{panicOnUpdate: true})

	model, cmd := safe.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	if model != tea.Model(safe) {
		t.Error("Expected wrapper to stay in place after a panic")
	}
	if cmd != nil {
		t.Error("Expected nil command after a recovered panic")
	}
}

func TestSafeModelQuitStaysReachableAfterPanic(t *testing.T) {
	safe := WithRecovery(&explosiveModel{panicOnUpdate: true})

	// First message panics and records the failure.
	safe.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})

	// ctrl+c must still quit even though the wrapped Update keeps panicking.
	_, cmd := safe.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("Expected quit command after failure")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("Expected tea.QuitMsg, got %T", cmd())
	}
}
