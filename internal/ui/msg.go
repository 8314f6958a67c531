package ui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rovshanmuradov/solana-rpcmux/internal/solrpc"
)

// Tea message types for dashboard communication

// pollInterval is how often the dashboard refreshes from the admin server.
const pollInterval = 2 * time.Second

var statsClient = &http.Client{Timeout: 3 * time.Second}

// SnapshotMsg delivers a fresh stats snapshot with its fetch latency.
type SnapshotMsg struct {
	Snapshot solrpc.Snapshot
	Latency  time.Duration
}

// EventRecord mirrors one entry of the admin server's /events feed.
type EventRecord struct {
	Type   string    `json:"type"`
	Time   time.Time `json:"time"`
	Detail string    `json:"detail"`
}

// EventsMsg delivers the recent event feed.
type EventsMsg struct {
	Records []EventRecord
}

// FetchErrMsg reports an unreachable or failing admin server.
type FetchErrMsg struct {
	Err error
}

// TickMsg drives the poll loop.
type TickMsg time.Time

// Tick schedules the next poll.
func Tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// FetchSnapshot loads /stats from the admin server.
func FetchSnapshot(baseURL string) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		var snapshot solrpc.Snapshot
		if err := getJSON(baseURL+"/stats", &snapshot); err != nil {
			return FetchErrMsg{Err: err}
		}
		return SnapshotMsg{Snapshot: snapshot, Latency: time.Since(start)}
	}
}

// FetchEvents loads /events from the admin server.
func FetchEvents(baseURL string) tea.Cmd {
	return func() tea.Msg {
		var records []EventRecord
		if err := getJSON(baseURL+"/events", &records); err != nil {
			return FetchErrMsg{Err: err}
		}
		return EventsMsg{Records: records}
	}
}

func getJSON(url string, out interface{}) error {
	resp, err := statsClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("admin server returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
