package types

import "time"

// EventKind is the closed vocabulary of queue_log event types. Raw event
// names that do not map onto it are quarantined as KindUnknown instead of
// leaking untyped payloads downstream.
type EventKind string

const (
	KindEnter          EventKind = "ENTER"
	KindConnect        EventKind = "CONNECT"
	KindCompleteAgent  EventKind = "COMPLETE_AGENT"
	KindCompleteCaller EventKind = "COMPLETE_CALLER"
	KindAbandon        EventKind = "ABANDON"
	KindRingNoAnswer   EventKind = "RING_NO_ANSWER"
	KindExitTimeout    EventKind = "EXIT_TIMEOUT"
	KindBusy           EventKind = "BUSY"
	KindFailed         EventKind = "FAILED"
	KindUnknown        EventKind = "UNKNOWN"
)

// IsTerminal reports whether the event kind closes a call session.
func (k EventKind) IsTerminal() bool {
	switch k {
	case KindCompleteAgent, KindCompleteCaller, KindAbandon,
		KindRingNoAnswer, KindExitTimeout, KindBusy, KindFailed:
		return true
	}
	return false
}

// CallEvent is one parsed queue_log line. Immutable once parsed.
type CallEvent struct {
	Timestamp time.Time `json:"timestamp"`
	CallID    string    `json:"callId"`
	QueueName string    `json:"queueName"`
	AgentID   string    `json:"agentId,omitempty"` // extension digits, empty for queue-level events
	Kind      EventKind `json:"kind"`
	HoldTime  int       `json:"holdTime,omitempty"` // seconds, from data1 where the kind guarantees it
	TalkTime  int       `json:"talkTime,omitempty"` // seconds, from data2 where the kind guarantees it
}
