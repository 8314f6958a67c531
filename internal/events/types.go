// internal/events/types.go
package events

import (
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Endpoint health transitions
	EndpointCooledDown  EventType = "endpoint.cooldown"
	EndpointRecovered   EventType = "endpoint.recovered"
	EndpointProbeFailed EventType = "endpoint.probe_failed"

	// Request lifecycle
	DispatchFailed EventType = "dispatch.failed"

	// Cache maintenance
	CacheSwept EventType = "cache.swept"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// EndpointCooledDownEvent is emitted when repeated failures push an
// endpoint into its cooldown window.
type EndpointCooledDownEvent struct {
	BaseEvent
	Endpoint    string
	Until       time.Time
	Consecutive int
}

// EndpointRecoveredEvent is emitted when a cooling endpoint serves a
// request successfully again.
type EndpointRecoveredEvent struct {
	BaseEvent
	Endpoint string
}

// EndpointProbeFailedEvent is emitted when a scheduled health probe fails.
type EndpointProbeFailedEvent struct {
	BaseEvent
	Endpoint string
	Reason   string
}

// DispatchFailedEvent is emitted when a call exhausts every retry and
// failover option without a usable response.
type DispatchFailedEvent struct {
	BaseEvent
	Method string
	Reason string
}

// CacheSweptEvent is emitted after a retention sweep of the response cache.
type CacheSweptEvent struct {
	BaseEvent
	Removed int
}

// NewEndpointCooledDown builds a cooldown event stamped with the current time.
func NewEndpointCooledDown(endpoint string, until time.Time, consecutive int) EndpointCooledDownEvent {
	return EndpointCooledDownEvent{
		BaseEvent:   BaseEvent{EventType: EndpointCooledDown, EventTime: time.Now()},
		Endpoint:    endpoint,
		Until:       until,
		Consecutive: consecutive,
	}
}

// NewEndpointRecovered builds a recovery event stamped with the current time.
func NewEndpointRecovered(endpoint string) EndpointRecoveredEvent {
	return EndpointRecoveredEvent{
		BaseEvent: BaseEvent{EventType: EndpointRecovered, EventTime: time.Now()},
		Endpoint:  endpoint,
	}
}

// NewEndpointProbeFailed builds a probe-failure event stamped with the
// current time.
func NewEndpointProbeFailed(endpoint string, err error) EndpointProbeFailedEvent {
	return EndpointProbeFailedEvent{
		BaseEvent: BaseEvent{EventType: EndpointProbeFailed, EventTime: time.Now()},
		Endpoint:  endpoint,
		Reason:    errReason(err),
	}
}

// NewDispatchFailed builds a dispatch-failure event stamped with the
// current time.
func NewDispatchFailed(method string, err error) DispatchFailedEvent {
	return DispatchFailedEvent{
		BaseEvent: BaseEvent{EventType: DispatchFailed, EventTime: time.Now()},
		Method:    method,
		Reason:    errReason(err),
	}
}

// NewCacheSwept builds a sweep event stamped with the current time.
func NewCacheSwept(removed int) CacheSweptEvent {
	return CacheSweptEvent{
		BaseEvent: BaseEvent{EventType: CacheSwept, EventTime: time.Now()},
		Removed:   removed,
	}
}

func errReason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
