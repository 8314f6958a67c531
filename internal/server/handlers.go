// internal/server/handlers.go
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rovshanmuradov/solana-rpcmux/internal/events"
)

const eventRingSize = 64

// healthResponse reports process liveness plus a coarse serving state.
// "degraded" means every configured endpoint is cooling down, so only
// cached responses can be served until a cooldown lapses.
type healthResponse struct {
	Status    string    `json:"status"`
	Endpoints int       `json:"endpoints"`
	Cooling   int       `json:"cooling"`
	Timestamp time.Time `json:"timestamp"`
}

type eventRecord struct {
	Type   string    `json:"type"`
	Time   time.Time `json:"time"`
	Detail string    `json:"detail"`
}

type eventRing struct {
	mu      sync.Mutex
	records []eventRecord
	next    int
	full    bool
}

func (r *eventRing) add(rec eventRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.records == nil {
		r.records = make([]eventRecord, eventRingSize)
	}
	r.records[r.next] = rec
	r.next = (r.next + 1) % len(r.records)
	if r.next == 0 {
		r.full = true
	}
}

// newestFirst returns the buffered records, most recent first.
func (r *eventRing) newestFirst() []eventRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.records == nil {
		return nil
	}
	size := r.next
	if r.full {
		size = len(r.records)
	}
	out := make([]eventRecord, 0, size)
	for i := 1; i <= size; i++ {
		idx := (r.next - i + len(r.records)) % len(r.records)
		out = append(out, r.records[idx])
	}
	return out
}

// RecordEvent buffers a bus event for the /events endpoint.
func (s *Server) RecordEvent(e events.Event) {
	rec := eventRecord{Type: string(e.Type()), Time: e.Timestamp()}
	switch ev := e.(type) {
	case events.EndpointCooledDownEvent:
		rec.Detail = fmt.Sprintf("%s cooling until %s after %d consecutive failures",
			ev.Endpoint, ev.Until.Format(time.RFC3339), ev.Consecutive)
	case events.EndpointRecoveredEvent:
		rec.Detail = fmt.Sprintf("%s serving again", ev.Endpoint)
	case events.EndpointProbeFailedEvent:
		rec.Detail = fmt.Sprintf("%s probe failed: %s", ev.Endpoint, ev.Reason)
	case events.DispatchFailedEvent:
		rec.Detail = fmt.Sprintf("%s gave up: %s", ev.Method, ev.Reason)
	case events.CacheSweptEvent:
		rec.Detail = fmt.Sprintf("%d expired entries removed", ev.Removed)
	default:
		rec.Detail = string(e.Type())
	}
	s.recent.add(rec)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snapshot := s.stats.Stats()

	cooling := 0
	for _, ep := range snapshot.Endpoints {
		if ep.InCooldown {
			cooling++
		}
	}

	status := "healthy"
	if len(snapshot.Endpoints) > 0 && cooling == len(snapshot.Endpoints) {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    status,
		Endpoints: len(snapshot.Endpoints),
		Cooling:   cooling,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Stats())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	records := s.recent.newestFirst()
	if records == nil {
		records = []eventRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
