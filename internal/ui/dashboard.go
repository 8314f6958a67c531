package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/solana-rpcmux/internal/endpoint"
	"github.com/rovshanmuradov/solana-rpcmux/internal/solrpc"
	"github.com/rovshanmuradov/solana-rpcmux/internal/ui/component"
	"github.com/rovshanmuradov/solana-rpcmux/internal/ui/style"
)

const (
	sparklineWidth = 40
	gaugeWidth     = 16
)

// Dashboard is the live view over the admin server: endpoint table with a
// focus pane, request-rate sparkline, cache gauge and the recent event feed.
type Dashboard struct {
	baseURL string
	keys    KeyMap

	header *component.StatusHeader
	table  *component.Table
	detail *component.EndpointDetail
	spark  *component.Sparkline
	gauge  *component.RateGauge
	feed   *component.EventFeed
	help   *component.HelpBar

	showEvents bool
	snapshot   solrpc.Snapshot
	haveData   bool
	lastCalls  uint64
	lastPoll   time.Time
	fetchErr   error

	width  int
	height int
}

// NewDashboard builds the dashboard model polling the given admin base URL.
func NewDashboard(baseURL string) *Dashboard {
	keys := DefaultKeyMap()

	table := component.NewTable().SetColumns([]component.TableColumn{
		{Header: "ENDPOINT", Width: 14, Align: lipgloss.Left},
		{Header: "CLASSES", Width: 0, Align: lipgloss.Left},
		{Header: "PRIO", Width: 6, Align: lipgloss.Right},
		{Header: "REQS", Width: 9, Align: lipgloss.Right},
		{Header: "ERRS", Width: 7, Align: lipgloss.Right},
		{Header: "STATE", Width: 18, Align: lipgloss.Left},
	})

	return &Dashboard{
		baseURL: baseURL,
		keys:    keys,
		header:  component.NewStatusHeader(baseURL),
		table:   table,
		detail:  component.NewEndpointDetail(),
		spark:   component.NewSparkline(sparklineWidth),
		gauge:   component.NewRateGauge(gaugeWidth),
		feed:    component.NewEventFeed(),
		help:    component.NewHelpBar().SetKeyBindings(keys.ShortHelp()),
	}
}

// Init starts the poll loop.
func (m *Dashboard) Init() tea.Cmd {
	return tea.Batch(FetchSnapshot(m.baseURL), FetchEvents(m.baseURL), Tick())
}

// Update handles messages.
func (m *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.header.SetWidth(msg.Width)
		m.table.SetWidth(msg.Width - 4)
		m.detail.SetWidth(msg.Width - 4)
		m.help.SetWidth(msg.Width)
		m.feed.SetSize(msg.Width-4, maxInt(6, msg.Height-m.header.GetHeight()-m.table.RowCount()-16))
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			return m, tea.Batch(FetchSnapshot(m.baseURL), FetchEvents(m.baseURL))
		case key.Matches(msg, m.keys.Up):
			m.table.MoveUp()
			m.refreshDetail()
			return m, nil
		case key.Matches(msg, m.keys.Down):
			m.table.MoveDown()
			m.refreshDetail()
			return m, nil
		case key.Matches(msg, m.keys.Events):
			m.showEvents = !m.showEvents
			return m, nil
		}

	case TickMsg:
		return m, tea.Batch(FetchSnapshot(m.baseURL), FetchEvents(m.baseURL), Tick())

	case SnapshotMsg:
		m.applySnapshot(msg)
		return m, nil

	case EventsMsg:
		entries := make([]component.EventEntry, 0, len(msg.Records))
		for _, rec := range msg.Records {
			entries = append(entries, component.EventEntry{
				Type:   rec.Type,
				Time:   rec.Time,
				Detail: rec.Detail,
			})
		}
		m.feed.SetEntries(entries)
		return m, nil

	case FetchErrMsg:
		m.fetchErr = msg.Err
		m.header.SetStatus(component.MuxStatus{Reachable: false, LastCheck: time.Now()})
		return m, nil
	}

	// Everything else scrolls the event feed when it is visible.
	if m.showEvents {
		return m, m.feed.Update(msg)
	}
	return m, nil
}

// View renders the dashboard.
func (m *Dashboard) View() string {
	if m.width == 0 || m.height == 0 {
		return "Connecting..."
	}

	sections := []string{m.header.View()}

	if m.fetchErr != nil && !m.haveData {
		banner := style.ErrorStyle.Padding(1, 2).
			Render(fmt.Sprintf("Cannot reach admin server: %v", m.fetchErr))
		sections = append(sections, banner)
	} else {
		sections = append(sections, m.table.View(), m.detail.View(), m.renderRates())
	}

	if m.showEvents {
		sections = append(sections, m.feed.View())
	}

	sections = append(sections, m.help.View())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Dashboard) applySnapshot(msg SnapshotMsg) {
	prevCalls := m.lastCalls
	prevPoll := m.lastPoll

	m.snapshot = msg.Snapshot
	m.fetchErr = nil
	m.lastCalls = msg.Snapshot.Dispatch.Calls
	m.lastPoll = time.Now()

	if m.haveData && !prevPoll.IsZero() {
		elapsed := m.lastPoll.Sub(prevPoll).Seconds()
		if elapsed > 0 && m.lastCalls >= prevCalls {
			m.spark.AddDataPoint(float64(m.lastCalls-prevCalls) / elapsed)
		}
	}
	m.haveData = true

	cooling := 0
	rows := make([][]string, 0, len(msg.Snapshot.Endpoints))
	for _, ep := range msg.Snapshot.Endpoints {
		if ep.InCooldown {
			cooling++
		}
		rows = append(rows, []string{
			ep.Name,
			strings.Join(ep.Classes, ","),
			fmt.Sprintf("%d", ep.Priority),
			fmt.Sprintf("%d", ep.RequestCount),
			fmt.Sprintf("%d", ep.ErrorCount),
			endpointState(ep),
		})
	}
	m.table.SetRows(rows)

	for i, ep := range msg.Snapshot.Endpoints {
		if ep.InCooldown {
			m.table.SetRowStyle(i, style.WarningStyle.Padding(0, 1))
		}
	}
	m.refreshDetail()

	m.header.SetStatus(component.MuxStatus{
		Reachable: true,
		Degraded:  len(msg.Snapshot.Endpoints) > 0 && cooling == len(msg.Snapshot.Endpoints),
		Latency:   msg.Latency,
		LastCheck: time.Now(),
	})
	m.header.SetCalls(msg.Snapshot.Dispatch.Calls)

	m.gauge.SetValue(hitRate(msg.Snapshot))
	m.header.SetCacheHitRate(hitRate(msg.Snapshot))
}

// refreshDetail points the focus pane at the selected table row.
func (m *Dashboard) refreshDetail() {
	selected := m.table.SelectedRow()
	if selected < 0 || selected >= len(m.snapshot.Endpoints) {
		m.detail.Clear()
		return
	}
	m.detail.SetEndpoint(m.snapshot.Endpoints[selected])
}

// renderRates draws the request-rate sparkline, cache gauge and queue depth.
func (m *Dashboard) renderRates() string {
	rate := style.MutedStyle.Render(fmt.Sprintf("req/s %5.1f ", m.spark.Latest()))
	cacheLabel := style.MutedStyle.Render("  cache ")
	queue := style.MutedStyle.Render(fmt.Sprintf("  queue %d", m.snapshot.Throttle.QueueDepth))

	return lipgloss.JoinHorizontal(lipgloss.Center,
		rate, m.spark.View(), cacheLabel, m.gauge.View(), queue)
}

func endpointState(ep endpoint.Stats) string {
	if ep.InCooldown {
		remaining := time.Until(ep.CooldownUntil).Round(time.Second)
		if remaining < 0 {
			remaining = 0
		}
		return fmt.Sprintf("🟡 cooling %s", remaining)
	}
	if ep.ConsecutiveErrors > 0 {
		return fmt.Sprintf("🟠 %d failing", ep.ConsecutiveErrors)
	}
	return "🟢 serving"
}

func hitRate(s solrpc.Snapshot) float64 {
	hits := s.Cache.MemoryHits + s.Cache.DiskHits
	total := hits + s.Cache.Misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
