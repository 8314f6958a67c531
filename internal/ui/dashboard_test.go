package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rovshanmuradov/solana-rpcmux/internal/cache"
	"github.com/rovshanmuradov/solana-rpcmux/internal/dispatch"
	"github.com/rovshanmuradov/solana-rpcmux/internal/endpoint"
	"github.com/rovshanmuradov/solana-rpcmux/internal/solrpc"
)

func sizedDashboard() *Dashboard {
	m := NewDashboard("http://127.0.0.1:9")
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m
}

func sampleSnapshot(calls uint64) solrpc.Snapshot {
	return solrpc.Snapshot{
		Timestamp: time.Now(),
		Dispatch:  dispatch.Stats{Calls: calls, Failures: 2},
		Cache:     cache.Stats{MemoryHits: 30, DiskHits: 10, Misses: 60},
		Endpoints: []endpoint.Stats{
			{Name: "helius", Classes: []string{"read-balance"}, Priority: 1, RequestCount: calls},
			{Name: "public", Classes: []string{"read-slot"}, Priority: 2,
				InCooldown: true, CooldownUntil: time.Now().Add(30 * time.Second)},
		},
	}
}

func TestSnapshotMsgPopulatesTable(t *testing.T) {
	m := sizedDashboard()

	m.Update(SnapshotMsg{Snapshot: sampleSnapshot(100), Latency: 5 * time.Millisecond})

	if !m.haveData {
		t.Fatal("Expected dashboard to record that a snapshot arrived")
	}
	if got := m.table.RowCount(); got != 2 {
		t.Errorf("Expected 2 endpoint rows, got %d", got)
	}
	if m.lastCalls != 100 {
		t.Errorf("Expected lastCalls 100, got %d", m.lastCalls)
	}

	view := m.View()
	if !strings.Contains(view, "helius") {
		t.Error("Expected rendered view to list the helius endpoint")
	}
	if !strings.Contains(view, "req/s") {
		t.Error("Expected rendered view to show the request rate")
	}
}

func TestSnapshotDeltaFeedsSparkline(t *testing.T) {
	m := sizedDashboard()

	m.Update(SnapshotMsg{Snapshot: sampleSnapshot(100)})
	time.Sleep(20 * time.Millisecond)
	m.Update(SnapshotMsg{Snapshot: sampleSnapshot(150)})

	if m.spark.Latest() <= 0 {
		t.Errorf("Expected positive request rate after call count grew, got %f", m.spark.Latest())
	}
}

func TestFetchErrorShownUntilFirstSnapshot(t *testing.T) {
	m := sizedDashboard()

	m.Update(FetchErrMsg{Err: errors.New("connection refused")})

	view := m.View()
	if !strings.Contains(view, "Cannot reach admin server") {
		t.Error("Expected error banner before any snapshot arrived")
	}

	// Once data exists, a transient fetch error must not blank the table.
	m.Update(SnapshotMsg{Snapshot: sampleSnapshot(10)})
	m.Update(FetchErrMsg{Err: errors.New("timeout")})

	view = m.View()
	if strings.Contains(view, "Cannot reach admin server") {
		t.Error("Expected stale table instead of error banner after first snapshot")
	}
	if !strings.Contains(view, "helius") {
		t.Error("Expected stale endpoint rows to stay visible")
	}
}

func TestSelectionDrivesFocusPane(t *testing.T) {
	m := sizedDashboard()
	m.Update(SnapshotMsg{Snapshot: sampleSnapshot(10)})

	if !strings.Contains(m.View(), "Focus: helius") {
		t.Error("Expected focus pane on the first endpoint by default")
	}

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if !strings.Contains(m.View(), "Focus: public") {
		t.Error("Expected focus pane to follow the selection")
	}
}

func TestQuitKeyStopsProgram(t *testing.T) {
	m := sizedDashboard()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("Expected quit command from ctrl+c")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("Expected tea.QuitMsg, got %T", cmd())
	}
}

func TestEventsKeyTogglesFeed(t *testing.T) {
	m := sizedDashboard()
	m.Update(EventsMsg{Records: []EventRecord{
		{Type: "endpoint.cooldown", Time: time.Now(), Detail: "public cooling"},
	}})

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'e'}})
	if !m.showEvents {
		t.Fatal("Expected events feed to open on 'e'")
	}
	if !strings.Contains(m.View(), "public cooling") {
		t.Error("Expected event detail in the opened feed")
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'e'}})
	if m.showEvents {
		t.Error("Expected events feed to close on second 'e'")
	}
}

func TestEndpointStateLabels(t *testing.T) {
	cooling := endpointState(endpoint.Stats{
		InCooldown:    true,
		CooldownUntil: time.Now().Add(45 * time.Second),
	})
	if !strings.Contains(cooling, "cooling") {
		t.Errorf("Expected cooling label, got %q", cooling)
	}

	failing := endpointState(endpoint.Stats{ConsecutiveErrors: 2})
	if !strings.Contains(failing, "2 failing") {
		t.Errorf("Expected failing label, got %q", failing)
	}

	if got := endpointState(endpoint.Stats{}); !strings.Contains(got, "serving") {
		t.Errorf("Expected serving label, got %q", got)
	}
}

func TestHitRateComputation(t *testing.T) {
	rate := hitRate(sampleSnapshot(1))
	if rate < 39.9 || rate > 40.1 {
		t.Errorf("Expected 40%% hit rate from 40 hits / 100 lookups, got %f", rate)
	}

	if got := hitRate(solrpc.Snapshot{}); got != 0 {
		t.Errorf("Expected zero hit rate with no lookups, got %f", got)
	}
}
